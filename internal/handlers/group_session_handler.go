package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/nkamali/MentorAppBack/internal/models"
	"github.com/nkamali/MentorAppBack/internal/repository"
	"github.com/nkamali/MentorAppBack/internal/services"
)

type GroupSessionHandler struct {
	service groupSessionApplicationService
}

type groupSessionApplicationService interface {
	Create(ctx context.Context, mentorID int64, input services.CreateGroupSessionInput) (*models.GroupSession, error)
	Edit(ctx context.Context, mentorID int64, sessionID int64, scheduledAt *time.Time, durationMinutes *int) (*models.GroupSession, error)
	Join(ctx context.Context, consumerID int64, sessionID int64) (*models.GroupSessionDetail, error)
	CancelByMentor(ctx context.Context, mentorID int64, sessionID int64) (*models.GroupSession, error)
	CancelByParticipant(ctx context.Context, consumerID int64, sessionID int64) error
	Get(ctx context.Context, sessionID int64) (*models.GroupSessionDetail, error)
	List(ctx context.Context, actorID int64, role string, filter repository.GroupSessionListFilter) ([]models.GroupSessionDetail, error)
}

func NewGroupSessionHandler(service *services.GroupSessionService) *GroupSessionHandler {
	return &GroupSessionHandler{service: service}
}

type createGroupSessionRequest struct {
	Title              string  `json:"title"`
	ScheduledAt        string  `json:"scheduled_at"`
	DurationMinutes    int     `json:"duration_minutes"`
	MaxCapacity        int     `json:"max_capacity"`
	MinAttendees       int     `json:"min_attendees"`
	PricePerPerson     float64 `json:"price_per_person"`
	FreeForSubscribers bool    `json:"free_for_subscribers"`
}

type editGroupSessionRequest struct {
	ScheduledAt     *string `json:"scheduled_at"`
	DurationMinutes *int    `json:"duration_minutes"`
}

func (h *GroupSessionHandler) Create(c *fiber.Ctx) error {
	mentorID, role, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if role != "mentor" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	var req createGroupSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	scheduledAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ScheduledAt))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "scheduled_at must be a valid RFC3339 timestamp"})
	}

	session, err := h.service.Create(c.Context(), mentorID, services.CreateGroupSessionInput{
		Title:              req.Title,
		ScheduledAt:        scheduledAt,
		DurationMinutes:    req.DurationMinutes,
		MaxCapacity:        req.MaxCapacity,
		MinAttendees:       req.MinAttendees,
		PricePerPerson:     req.PricePerPerson,
		FreeForSubscribers: req.FreeForSubscribers,
	})
	if err != nil {
		return mapGroupSessionError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session": session})
}

func (h *GroupSessionHandler) Edit(c *fiber.Ctx) error {
	mentorID, role, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if role != "mentor" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	sessionID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || sessionID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req editGroupSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	var scheduledAt *time.Time
	if req.ScheduledAt != nil {
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(*req.ScheduledAt))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "scheduled_at must be a valid RFC3339 timestamp"})
		}
		scheduledAt = &parsed
	}

	session, err := h.service.Edit(c.Context(), mentorID, sessionID, scheduledAt, req.DurationMinutes)
	if err != nil {
		return mapGroupSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *GroupSessionHandler) Join(c *fiber.Ctx) error {
	userID, role, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if role != "user" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	sessionID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || sessionID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	detail, err := h.service.Join(c.Context(), userID, sessionID)
	if err != nil {
		return mapGroupSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": detail})
}

func (h *GroupSessionHandler) Leave(c *fiber.Ctx) error {
	userID, role, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if role != "user" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	sessionID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || sessionID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	if err := h.service.CancelByParticipant(c.Context(), userID, sessionID); err != nil {
		return mapGroupSessionError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *GroupSessionHandler) Cancel(c *fiber.Ctx) error {
	mentorID, role, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	if role != "mentor" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	sessionID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || sessionID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := h.service.CancelByMentor(c.Context(), mentorID, sessionID)
	if err != nil {
		return mapGroupSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *GroupSessionHandler) Get(c *fiber.Ctx) error {
	sessionID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || sessionID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	detail, err := h.service.Get(c.Context(), sessionID)
	if err != nil {
		return mapGroupSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": detail})
}

func (h *GroupSessionHandler) List(c *fiber.Ctx) error {
	userID, role, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	timeframe := strings.TrimSpace(c.Query("timeframe"))
	if timeframe != "" && timeframe != "upcoming" && timeframe != "past" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "timeframe must be upcoming or past"})
	}

	sessions, err := h.service.List(c.Context(), userID, role, repository.GroupSessionListFilter{
		Status:    strings.TrimSpace(c.Query("status")),
		Timeframe: timeframe,
	})
	if err != nil {
		return mapGroupSessionError(c, err)
	}

	return c.JSON(fiber.Map{"sessions": sessions})
}

func mapGroupSessionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidCapacity):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Capacity bounds are outside the allowed range"})
	case errors.Is(err, services.ErrLeadTimeTooShort):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Session must be scheduled further in advance"})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrInvalidState):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Session is not in a state that allows this action"})
	case errors.Is(err, services.ErrHasParticipants):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Session already has participants"})
	case errors.Is(err, services.ErrSessionFull):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Session is full"})
	case errors.Is(err, services.ErrAlreadyJoined):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Already joined this session"})
	case errors.Is(err, services.ErrNotJoined):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Not a participant of this session"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process session request"})
	}
}
