package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/nkamali/MentorAppBack/internal/models"
	"github.com/nkamali/MentorAppBack/internal/repository"
	"github.com/nkamali/MentorAppBack/internal/services"
)

type BookingHandler struct {
	service  bookingApplicationService
	checkout checkoutService
	users    bookingUserReader
}

type bookingApplicationService interface {
	Request(ctx context.Context, consumerID int64, input services.RequestCallInput) (*models.CallDetail, error)
	Decline(ctx context.Context, mentorID int64, callID int64) (*models.Call, error)
	Cancel(ctx context.Context, actorID int64, role string, callID int64) (*models.Call, error)
	GetCall(ctx context.Context, actorID int64, role string, callID int64) (*models.CallDetail, error)
	ListCalls(ctx context.Context, actorID int64, role string, filter repository.CallListFilter) ([]models.CallDetail, error)
}

type checkoutService interface {
	CreateCheckoutForCall(ctx context.Context, callID int64, customerEmail, description string) (string, error)
	RefundCall(ctx context.Context, callID int64) error
}

type bookingUserReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

func NewBookingHandler(
	service *services.BookingService,
	checkout checkoutService,
	users *repository.UserRepository,
) *BookingHandler {
	return &BookingHandler{service: service, checkout: checkout, users: users}
}

type requestCallRequest struct {
	MentorID        int64  `json:"mentor_id"`
	ScheduledAt     string `json:"scheduled_at"`
	DurationMinutes int    `json:"duration_minutes"`
}

func (h *BookingHandler) RequestCall(c *fiber.Ctx) error {
	userID, role, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if role != "user" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	var req requestCallRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	scheduledAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ScheduledAt))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "scheduled_at must be a valid RFC3339 timestamp"})
	}

	detail, err := h.service.Request(c.Context(), userID, services.RequestCallInput{
		MentorID:        req.MentorID,
		ScheduledAt:     scheduledAt,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		return mapBookingError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"call": detail})
}

// Checkout builds a Stripe Checkout session for a requested call; the webhook
// confirms the call once payment completes.
func (h *BookingHandler) Checkout(c *fiber.Ctx) error {
	userID, role, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if role != "user" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	callID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || callID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid call id"})
	}

	detail, err := h.service.GetCall(c.Context(), userID, role, callID)
	if err != nil {
		return mapBookingError(c, err)
	}
	if detail.Status != models.CallStatusRequested {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Call is not awaiting payment"})
	}

	user, err := h.users.GetByID(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch user"})
	}

	description := fmt.Sprintf("Mentor call on %s (%d min)",
		detail.ScheduledAt.UTC().Format("Jan 2, 2006 15:04 MST"), detail.DurationMinutes)
	checkoutURL, err := h.checkout.CreateCheckoutForCall(c.Context(), callID, user.Email, description)
	if err != nil {
		return mapBookingError(c, err)
	}

	return c.JSON(fiber.Map{"checkout_url": checkoutURL})
}

func (h *BookingHandler) Decline(c *fiber.Ctx) error {
	userID, role, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if role != "mentor" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	callID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || callID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid call id"})
	}

	call, err := h.service.Decline(c.Context(), userID, callID)
	if err != nil {
		return mapBookingError(c, err)
	}

	return c.JSON(fiber.Map{"call": call})
}

func (h *BookingHandler) Cancel(c *fiber.Ctx) error {
	userID, role, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if role != "user" && role != "mentor" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	callID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || callID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid call id"})
	}

	call, err := h.service.Cancel(c.Context(), userID, role, callID)
	if err != nil {
		return mapBookingError(c, err)
	}

	// The refund decision is stamped on the call; kicking Stripe is
	// best-effort and never blocks the cancellation response.
	if call.RefundEligible != nil && *call.RefundEligible {
		if err := h.checkout.RefundCall(c.Context(), callID); err != nil {
			log.Printf("booking: refund kick-off for call %d failed: %v", callID, err)
		}
	}

	return c.JSON(fiber.Map{"call": call})
}

func (h *BookingHandler) GetCall(c *fiber.Ctx) error {
	userID, role, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	callID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || callID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid call id"})
	}

	detail, err := h.service.GetCall(c.Context(), userID, role, callID)
	if err != nil {
		return mapBookingError(c, err)
	}

	return c.JSON(fiber.Map{"call": detail})
}

func (h *BookingHandler) ListCalls(c *fiber.Ctx) error {
	userID, role, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	timeframe := strings.TrimSpace(c.Query("timeframe"))
	if timeframe != "" && timeframe != "upcoming" && timeframe != "past" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "timeframe must be upcoming or past"})
	}

	calls, err := h.service.ListCalls(c.Context(), userID, role, repository.CallListFilter{
		Status:    strings.TrimSpace(c.Query("status")),
		Timeframe: timeframe,
	})
	if err != nil {
		return mapBookingError(c, err)
	}

	return c.JSON(fiber.Map{"calls": calls})
}

func mapBookingError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrMentorNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Mentor not found"})
	case errors.Is(err, services.ErrSlotUnavailable):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Requested time is not an available slot"})
	case errors.Is(err, services.ErrSlotTaken):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Requested time was just booked by someone else"})
	case errors.Is(err, services.ErrInvalidState):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Call is not in a state that allows this action"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Call not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process call request"})
	}
}
