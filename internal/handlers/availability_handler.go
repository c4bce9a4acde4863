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
	"github.com/nkamali/MentorAppBack/internal/services"
)

type AvailabilityHandler struct {
	service  availabilityApplicationService
	resolver slotResolverService
}

type availabilityApplicationService interface {
	AddSlot(ctx context.Context, mentorID int64, dayOfWeek, startMinute, endMinute int, timezone string) (*models.AvailabilitySlot, error)
	RemoveSlot(ctx context.Context, mentorID int64, slotID int64) error
	BlockDate(ctx context.Context, mentorID int64, date time.Time, reason *string) (*models.BlockedDate, error)
	UnblockDate(ctx context.Context, mentorID int64, blockID int64) error
	Overview(ctx context.Context, mentorID int64) ([]models.AvailabilitySlot, []models.BlockedDate, error)
}

type slotResolverService interface {
	ListAvailableStarts(ctx context.Context, mentorID int64, fromDate, toDate time.Time, durationMinutes int) ([]time.Time, error)
}

func NewAvailabilityHandler(
	service *services.AvailabilityService,
	resolver *services.SlotResolver,
) *AvailabilityHandler {
	return &AvailabilityHandler{service: service, resolver: resolver}
}

type addSlotRequest struct {
	DayOfWeek   int    `json:"day_of_week"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
	Timezone    string `json:"timezone"`
}

type blockDateRequest struct {
	Date   string  `json:"date"`
	Reason *string `json:"reason"`
}

func (h *AvailabilityHandler) AddSlot(c *fiber.Ctx) error {
	mentorID, _, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req addSlotRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	slot, err := h.service.AddSlot(c.Context(), mentorID, req.DayOfWeek, req.StartMinute, req.EndMinute, req.Timezone)
	if err != nil {
		return mapAvailabilityError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"slot": slot})
}

func (h *AvailabilityHandler) RemoveSlot(c *fiber.Ctx) error {
	mentorID, _, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	slotID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || slotID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid slot id"})
	}

	if err := h.service.RemoveSlot(c.Context(), mentorID, slotID); err != nil {
		return mapAvailabilityError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AvailabilityHandler) BlockDate(c *fiber.Ctx) error {
	mentorID, _, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req blockDateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	date, err := time.Parse("2006-01-02", strings.TrimSpace(req.Date))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "date must be formatted YYYY-MM-DD"})
	}

	block, err := h.service.BlockDate(c.Context(), mentorID, date, req.Reason)
	if err != nil {
		return mapAvailabilityError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"block": block})
}

func (h *AvailabilityHandler) UnblockDate(c *fiber.Ctx) error {
	mentorID, _, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	blockID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || blockID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid block id"})
	}

	if err := h.service.UnblockDate(c.Context(), mentorID, blockID); err != nil {
		return mapAvailabilityError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AvailabilityHandler) Overview(c *fiber.Ctx) error {
	mentorID, _, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	slots, blocks, err := h.service.Overview(c.Context(), mentorID)
	if err != nil {
		return mapAvailabilityError(c, err)
	}

	return c.JSON(fiber.Map{
		"slots":  slots,
		"blocks": blocks,
	})
}

// ListMentorSlots is the consumer-facing expansion: concrete bookable UTC
// start times for a mentor across a date range.
func (h *AvailabilityHandler) ListMentorSlots(c *fiber.Ctx) error {
	mentorID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || mentorID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid mentor id"})
	}

	from, err := time.Parse("2006-01-02", strings.TrimSpace(c.Query("from")))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "from must be formatted YYYY-MM-DD"})
	}
	to, err := time.Parse("2006-01-02", strings.TrimSpace(c.Query("to")))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "to must be formatted YYYY-MM-DD"})
	}

	duration, err := strconv.Atoi(strings.TrimSpace(c.Query("duration", "30")))
	if err != nil || duration <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "duration must be a positive number of minutes"})
	}

	starts, err := h.resolver.ListAvailableStarts(c.Context(), mentorID, from, to, duration)
	if err != nil {
		return mapAvailabilityError(c, err)
	}

	formatted := make([]string, 0, len(starts))
	for _, start := range starts {
		formatted = append(formatted, start.Format(time.RFC3339))
	}

	return c.JSON(fiber.Map{"starts": formatted})
}

func mapAvailabilityError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, services.ErrInvalidRange):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrOverlap):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Slot overlaps an existing slot on that day"})
	case errors.Is(err, services.ErrAlreadyBlocked):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Date is already blocked"})
	case errors.Is(err, services.ErrOutOfWindow):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Date is outside the allowed blocking window"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process availability request"})
	}
}
