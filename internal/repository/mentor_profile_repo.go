package repository

import (
	"context"

	"github.com/nkamali/MentorAppBack/internal/models"
)

type MentorProfileRepository struct {
	db DBTX
}

func NewMentorProfileRepository(db DBTX) *MentorProfileRepository {
	return &MentorProfileRepository{db: db}
}

func (r *MentorProfileRepository) CreateEmpty(ctx context.Context, userID int64) error {
	query := `
		INSERT INTO mentor_profiles (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query, userID)
	return err
}

func (r *MentorProfileRepository) GetByUserID(ctx context.Context, userID int64) (*models.MentorProfile, error) {
	query := `
		SELECT id, user_id, display_name, bio, hourly_rate, created_at, updated_at
		FROM mentor_profiles
		WHERE user_id = $1
	`
	var profile models.MentorProfile
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&profile.ID,
		&profile.UserID,
		&profile.DisplayName,
		&profile.Bio,
		&profile.HourlyRate,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

type MentorProfileUpdateInput struct {
	DisplayName *string
	Bio         *string
	HourlyRate  *float64
}

func (r *MentorProfileRepository) Update(
	ctx context.Context,
	userID int64,
	input MentorProfileUpdateInput,
) (*models.MentorProfile, error) {
	query := `
		UPDATE mentor_profiles
		SET display_name = COALESCE($2, display_name),
			bio = COALESCE($3, bio),
			hourly_rate = COALESCE($4, hourly_rate),
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING id, user_id, display_name, bio, hourly_rate, created_at, updated_at
	`
	var profile models.MentorProfile
	err := r.db.QueryRow(ctx, query, userID, input.DisplayName, input.Bio, input.HourlyRate).Scan(
		&profile.ID,
		&profile.UserID,
		&profile.DisplayName,
		&profile.Bio,
		&profile.HourlyRate,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
