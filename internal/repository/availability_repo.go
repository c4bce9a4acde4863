package repository

import (
	"context"
	"time"

	"github.com/nkamali/MentorAppBack/internal/models"
)

type CreateSlotInput struct {
	MentorID    int64
	DayOfWeek   int
	StartMinute int
	EndMinute   int
	Timezone    string
}

type AvailabilityRepository struct {
	db DBTX
}

func NewAvailabilityRepository(db DBTX) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

func (r *AvailabilityRepository) CreateSlot(
	ctx context.Context,
	input CreateSlotInput,
) (*models.AvailabilitySlot, error) {
	query := `
		INSERT INTO availability_slots (mentor_id, day_of_week, start_minute, end_minute, timezone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, mentor_id, day_of_week, start_minute, end_minute, timezone, created_at
	`
	var slot models.AvailabilitySlot
	err := r.db.QueryRow(
		ctx,
		query,
		input.MentorID,
		input.DayOfWeek,
		input.StartMinute,
		input.EndMinute,
		input.Timezone,
	).Scan(
		&slot.ID,
		&slot.MentorID,
		&slot.DayOfWeek,
		&slot.StartMinute,
		&slot.EndMinute,
		&slot.Timezone,
		&slot.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (r *AvailabilityRepository) DeleteSlot(ctx context.Context, slotID int64, mentorID int64) error {
	query := `DELETE FROM availability_slots WHERE id = $1 AND mentor_id = $2`
	_, err := r.db.Exec(ctx, query, slotID, mentorID)
	return err
}

func (r *AvailabilityRepository) ListSlots(
	ctx context.Context,
	mentorID int64,
) ([]models.AvailabilitySlot, error) {
	query := `
		SELECT id, mentor_id, day_of_week, start_minute, end_minute, timezone, created_at
		FROM availability_slots
		WHERE mentor_id = $1
		ORDER BY day_of_week ASC, start_minute ASC
	`
	rows, err := r.db.Query(ctx, query, mentorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slots := make([]models.AvailabilitySlot, 0)
	for rows.Next() {
		var slot models.AvailabilitySlot
		if err := rows.Scan(
			&slot.ID,
			&slot.MentorID,
			&slot.DayOfWeek,
			&slot.StartMinute,
			&slot.EndMinute,
			&slot.Timezone,
			&slot.CreatedAt,
		); err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return slots, nil
}

func (r *AvailabilityRepository) CreateBlock(
	ctx context.Context,
	mentorID int64,
	date time.Time,
	reason *string,
) (*models.BlockedDate, error) {
	query := `
		INSERT INTO blocked_dates (mentor_id, date, reason)
		VALUES ($1, $2, $3)
		RETURNING id, mentor_id, date, reason, created_at
	`
	var block models.BlockedDate
	err := r.db.QueryRow(ctx, query, mentorID, date, reason).Scan(
		&block.ID,
		&block.MentorID,
		&block.Date,
		&block.Reason,
		&block.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &block, nil
}

func (r *AvailabilityRepository) DeleteBlock(ctx context.Context, blockID int64, mentorID int64) error {
	query := `DELETE FROM blocked_dates WHERE id = $1 AND mentor_id = $2`
	_, err := r.db.Exec(ctx, query, blockID, mentorID)
	return err
}

func (r *AvailabilityRepository) ListBlocks(
	ctx context.Context,
	mentorID int64,
	from time.Time,
	to time.Time,
) ([]models.BlockedDate, error) {
	query := `
		SELECT id, mentor_id, date, reason, created_at
		FROM blocked_dates
		WHERE mentor_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`
	rows, err := r.db.Query(ctx, query, mentorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blocks := make([]models.BlockedDate, 0)
	for rows.Next() {
		var block models.BlockedDate
		if err := rows.Scan(
			&block.ID,
			&block.MentorID,
			&block.Date,
			&block.Reason,
			&block.CreatedAt,
		); err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return blocks, nil
}
