package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/nkamali/MentorAppBack/internal/repository"
)

type ProfileHandler struct {
	mentorProfileRepo *repository.MentorProfileRepository
	userRepo          *repository.UserRepository
}

func NewProfileHandler(
	mentorProfileRepo *repository.MentorProfileRepository,
	userRepo *repository.UserRepository,
) *ProfileHandler {
	return &ProfileHandler{
		mentorProfileRepo: mentorProfileRepo,
		userRepo:          userRepo,
	}
}

type updateProfileRequest struct {
	DisplayName *string  `json:"display_name"`
	Bio         *string  `json:"bio"`
	HourlyRate  *float64 `json:"hourly_rate"`
}

// UpdateMyProfile lets a mentor set display name, bio and the hourly rate that
// prices one-on-one calls.
func (h *ProfileHandler) UpdateMyProfile(c *fiber.Ctx) error {
	userID, _, err := currentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.DisplayName != nil && strings.TrimSpace(*req.DisplayName) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "display_name must not be empty"})
	}
	if req.HourlyRate != nil && *req.HourlyRate <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "hourly_rate must be greater than 0"})
	}

	profile, err := h.mentorProfileRepo.Update(c.Context(), userID, repository.MentorProfileUpdateInput{
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
		HourlyRate:  req.HourlyRate,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Profile not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update profile"})
	}

	return c.JSON(fiber.Map{"profile": profile})
}

// GetMentorProfile is the consumer-facing view of a mentor.
func (h *ProfileHandler) GetMentorProfile(c *fiber.Ctx) error {
	mentorID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || mentorID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid mentor id"})
	}

	user, err := h.userRepo.GetByID(c.Context(), mentorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Mentor not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch mentor"})
	}
	if user.Role != "mentor" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Mentor not found"})
	}

	profile, err := h.mentorProfileRepo.GetByUserID(c.Context(), mentorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Mentor not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch mentor"})
	}

	return c.JSON(fiber.Map{
		"mentor": fiber.Map{
			"id":           user.ID,
			"display_name": profile.DisplayName,
			"bio":          profile.Bio,
			"hourly_rate":  profile.HourlyRate,
		},
	})
}
