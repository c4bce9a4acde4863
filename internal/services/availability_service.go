package services

import (
	"context"
	"strings"
	"time"

	"github.com/nkamali/MentorAppBack/internal/models"
	"github.com/nkamali/MentorAppBack/internal/repository"
)

type availabilityStore interface {
	CreateSlot(ctx context.Context, input repository.CreateSlotInput) (*models.AvailabilitySlot, error)
	DeleteSlot(ctx context.Context, slotID int64, mentorID int64) error
	ListSlots(ctx context.Context, mentorID int64) ([]models.AvailabilitySlot, error)
	CreateBlock(ctx context.Context, mentorID int64, date time.Time, reason *string) (*models.BlockedDate, error)
	DeleteBlock(ctx context.Context, blockID int64, mentorID int64) error
	ListBlocks(ctx context.Context, mentorID int64, from time.Time, to time.Time) ([]models.BlockedDate, error)
}

// AvailabilityService owns a mentor's recurring weekly slots and explicit
// date blocks. Pure data plus validation; slot expansion lives in SlotResolver.
type AvailabilityService struct {
	repo   availabilityStore
	clock  Clock
	policy Policy
	locks  *keyedMutex
}

func NewAvailabilityService(repo availabilityStore, clock Clock, policy Policy) *AvailabilityService {
	return &AvailabilityService{
		repo:   repo,
		clock:  clock,
		policy: policy,
		locks:  newKeyedMutex(),
	}
}

const minutesPerDay = 24 * 60

func (s *AvailabilityService) AddSlot(
	ctx context.Context,
	mentorID int64,
	dayOfWeek int,
	startMinute int,
	endMinute int,
	timezone string,
) (*models.AvailabilitySlot, error) {
	if mentorID <= 0 || dayOfWeek < 0 || dayOfWeek > 6 {
		return nil, ErrInvalidInput
	}
	if startMinute < 0 || endMinute > minutesPerDay {
		return nil, ErrInvalidInput
	}
	if startMinute%s.policy.SlotStepMinutes != 0 || endMinute%s.policy.SlotStepMinutes != 0 {
		return nil, ErrInvalidInput
	}
	if startMinute >= endMinute {
		return nil, ErrInvalidRange
	}

	timezone = strings.TrimSpace(timezone)
	if timezone == "" {
		return nil, ErrInvalidInput
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, ErrInvalidInput
	}

	key := mentorKey(mentorID)
	s.locks.lock(key)
	defer s.locks.unlock(key)

	existing, err := s.repo.ListSlots(ctx, mentorID)
	if err != nil {
		return nil, err
	}
	for _, slot := range existing {
		if slot.DayOfWeek != dayOfWeek {
			continue
		}
		if slot.StartMinute < endMinute && startMinute < slot.EndMinute {
			return nil, ErrOverlap
		}
	}

	created, err := s.repo.CreateSlot(ctx, repository.CreateSlotInput{
		MentorID:    mentorID,
		DayOfWeek:   dayOfWeek,
		StartMinute: startMinute,
		EndMinute:   endMinute,
		Timezone:    timezone,
	})
	if err != nil {
		if repository.IsExclusionViolation(err) {
			return nil, ErrOverlap
		}
		return nil, err
	}
	return created, nil
}

// RemoveSlot is idempotent: deleting an absent slot is not an error.
func (s *AvailabilityService) RemoveSlot(ctx context.Context, mentorID int64, slotID int64) error {
	if mentorID <= 0 || slotID <= 0 {
		return ErrInvalidInput
	}
	return s.repo.DeleteSlot(ctx, slotID, mentorID)
}

func (s *AvailabilityService) BlockDate(
	ctx context.Context,
	mentorID int64,
	date time.Time,
	reason *string,
) (*models.BlockedDate, error) {
	if mentorID <= 0 {
		return nil, ErrInvalidInput
	}

	day := truncateToDay(date)
	today := truncateToDay(s.clock.Now())
	daysAhead := int(day.Sub(today).Hours() / 24)
	if daysAhead < s.policy.BlockMinLeadDays || daysAhead > s.policy.BlockHorizonDays {
		return nil, ErrOutOfWindow
	}

	if reason != nil {
		trimmed := strings.TrimSpace(*reason)
		if trimmed == "" {
			reason = nil
		} else {
			reason = &trimmed
		}
	}

	key := mentorKey(mentorID)
	s.locks.lock(key)
	defer s.locks.unlock(key)

	existing, err := s.repo.ListBlocks(ctx, mentorID, day, day)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, ErrAlreadyBlocked
	}

	block, err := s.repo.CreateBlock(ctx, mentorID, day, reason)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrAlreadyBlocked
		}
		return nil, err
	}
	return block, nil
}

// UnblockDate is idempotent like RemoveSlot.
func (s *AvailabilityService) UnblockDate(ctx context.Context, mentorID int64, blockID int64) error {
	if mentorID <= 0 || blockID <= 0 {
		return ErrInvalidInput
	}
	return s.repo.DeleteBlock(ctx, blockID, mentorID)
}

// Overview returns the mentor's recurring slots and the blocks inside the
// configurable horizon, for the availability management screen.
func (s *AvailabilityService) Overview(
	ctx context.Context,
	mentorID int64,
) ([]models.AvailabilitySlot, []models.BlockedDate, error) {
	if mentorID <= 0 {
		return nil, nil, ErrInvalidInput
	}

	slots, err := s.repo.ListSlots(ctx, mentorID)
	if err != nil {
		return nil, nil, err
	}

	today := truncateToDay(s.clock.Now())
	horizon := today.AddDate(0, 0, s.policy.BlockHorizonDays)
	blocks, err := s.repo.ListBlocks(ctx, mentorID, today, horizon)
	if err != nil {
		return nil, nil, err
	}

	return slots, blocks, nil
}

func truncateToDay(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
