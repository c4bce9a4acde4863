package repository

import (
	"context"
	"time"

	"github.com/nkamali/MentorAppBack/internal/models"
)

type ReminderRepository struct {
	db DBTX
}

func NewReminderRepository(db DBTX) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// Schedule inserts a reminder job; re-scheduling the same (subject, kind) is a
// no-op thanks to the unique constraint.
func (r *ReminderRepository) Schedule(
	ctx context.Context,
	subjectType string,
	subjectID int64,
	kind string,
	fireAt time.Time,
) error {
	query := `
		INSERT INTO reminder_jobs (subject_type, subject_id, kind, fire_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject_type, subject_id, kind) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query, subjectType, subjectID, kind, fireAt)
	return err
}

func (r *ReminderRepository) ListDue(ctx context.Context, now time.Time) ([]models.ReminderJob, error) {
	query := `
		SELECT id, subject_type, subject_id, kind, fire_at, fired_at, created_at
		FROM reminder_jobs
		WHERE fired_at IS NULL AND fire_at <= $1
		ORDER BY fire_at ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]models.ReminderJob, 0)
	for rows.Next() {
		var job models.ReminderJob
		if err := rows.Scan(
			&job.ID,
			&job.SubjectType,
			&job.SubjectID,
			&job.Kind,
			&job.FireAt,
			&job.FiredAt,
			&job.CreatedAt,
		); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return jobs, nil
}

// MarkFiredIfUnfired stamps fired_at once; returns false when another dispatch
// already claimed the job.
func (r *ReminderRepository) MarkFiredIfUnfired(
	ctx context.Context,
	jobID int64,
	firedAt time.Time,
) (bool, error) {
	query := `
		UPDATE reminder_jobs
		SET fired_at = $2
		WHERE id = $1 AND fired_at IS NULL
	`
	tag, err := r.db.Exec(ctx, query, jobID, firedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ReminderRepository) ListBySubject(
	ctx context.Context,
	subjectType string,
	subjectID int64,
) ([]models.ReminderJob, error) {
	query := `
		SELECT id, subject_type, subject_id, kind, fire_at, fired_at, created_at
		FROM reminder_jobs
		WHERE subject_type = $1 AND subject_id = $2
		ORDER BY fire_at ASC
	`
	rows, err := r.db.Query(ctx, query, subjectType, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]models.ReminderJob, 0)
	for rows.Next() {
		var job models.ReminderJob
		if err := rows.Scan(
			&job.ID,
			&job.SubjectType,
			&job.SubjectID,
			&job.Kind,
			&job.FireAt,
			&job.FiredAt,
			&job.CreatedAt,
		); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return jobs, nil
}
