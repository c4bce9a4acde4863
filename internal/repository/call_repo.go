package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nkamali/MentorAppBack/internal/models"
)

type CreateCallInput struct {
	MentorID        int64
	ConsumerID      int64
	ScheduledAt     time.Time
	DurationMinutes int
	Price           float64
}

type CallListFilter struct {
	ActorID   int64
	Role      string
	Status    string
	Timeframe string
}

const callColumns = `id, mentor_id, consumer_id, scheduled_at, duration_min, status, price,
		refund_eligible, cancelled_by, video_room_url, created_at, updated_at`

type CallRepository struct {
	db DBTX
}

func NewCallRepository(db DBTX) *CallRepository {
	return &CallRepository{db: db}
}

func (r *CallRepository) scanCall(row interface{ Scan(dest ...any) error }) (*models.Call, error) {
	var call models.Call
	err := row.Scan(
		&call.ID,
		&call.MentorID,
		&call.ConsumerID,
		&call.ScheduledAt,
		&call.DurationMinutes,
		&call.Status,
		&call.Price,
		&call.RefundEligible,
		&call.CancelledBy,
		&call.VideoRoomURL,
		&call.CreatedAt,
		&call.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &call, nil
}

func (r *CallRepository) Create(ctx context.Context, input CreateCallInput) (*models.Call, error) {
	query := fmt.Sprintf(`
		INSERT INTO calls (mentor_id, consumer_id, scheduled_at, duration_min, status, price)
		VALUES ($1, $2, $3, $4, 'requested', $5)
		RETURNING %s
	`, callColumns)
	return r.scanCall(r.db.QueryRow(
		ctx,
		query,
		input.MentorID,
		input.ConsumerID,
		input.ScheduledAt,
		input.DurationMinutes,
		input.Price,
	))
}

func (r *CallRepository) GetByID(ctx context.Context, callID int64) (*models.Call, error) {
	query := fmt.Sprintf(`SELECT %s FROM calls WHERE id = $1`, callColumns)
	return r.scanCall(r.db.QueryRow(ctx, query, callID))
}

func (r *CallRepository) List(ctx context.Context, filter CallListFilter) ([]models.Call, error) {
	actorColumn := "consumer_id"
	if filter.Role == "mentor" {
		actorColumn = "mentor_id"
	}

	args := []any{filter.ActorID}
	whereParts := []string{fmt.Sprintf("%s = $1", actorColumn)}

	if status := strings.TrimSpace(filter.Status); status != "" {
		args = append(args, status)
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", len(args)))
	}

	switch strings.TrimSpace(filter.Timeframe) {
	case "upcoming":
		whereParts = append(
			whereParts,
			"(scheduled_at + (duration_min * INTERVAL '1 minute')) > NOW()",
		)
	case "past":
		whereParts = append(
			whereParts,
			"(scheduled_at + (duration_min * INTERVAL '1 minute')) <= NOW()",
		)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM calls
		WHERE %s
		ORDER BY scheduled_at ASC, id ASC
	`, callColumns, strings.Join(whereParts, " AND "))

	return r.list(ctx, query, args...)
}

// ListBusyBetween returns REQUESTED/CONFIRMED calls whose interval intersects
// [from, to) for the mentor. Used by the slot resolver.
func (r *CallRepository) ListBusyBetween(
	ctx context.Context,
	mentorID int64,
	from time.Time,
	to time.Time,
) ([]models.Call, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM calls
		WHERE mentor_id = $1
		  AND status IN ('requested', 'confirmed')
		  AND scheduled_at < $3
		  AND (scheduled_at + (duration_min * INTERVAL '1 minute')) > $2
		ORDER BY scheduled_at ASC, id ASC
	`, callColumns)
	return r.list(ctx, query, mentorID, from, to)
}

func (r *CallRepository) HasConflict(
	ctx context.Context,
	mentorID int64,
	scheduledAt time.Time,
	durationMinutes int,
) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM calls
			WHERE mentor_id = $1
			  AND status IN ('requested', 'confirmed')
			  AND scheduled_at < ($2::timestamptz + ($3::int * INTERVAL '1 minute'))
			  AND (scheduled_at + (duration_min * INTERVAL '1 minute')) > $2::timestamptz
		)
	`
	var hasConflict bool
	if err := r.db.QueryRow(ctx, query, mentorID, scheduledAt, durationMinutes).Scan(&hasConflict); err != nil {
		return false, err
	}
	return hasConflict, nil
}

// ConfirmIfRequested is a guarded REQUESTED -> CONFIRMED transition that also
// stores the provisioned room URL. Returns pgx.ErrNoRows when the call is no
// longer REQUESTED.
func (r *CallRepository) ConfirmIfRequested(
	ctx context.Context,
	callID int64,
	videoRoomURL string,
) (*models.Call, error) {
	query := fmt.Sprintf(`
		UPDATE calls
		SET status = 'confirmed', video_room_url = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'requested'
		RETURNING %s
	`, callColumns)
	return r.scanCall(r.db.QueryRow(ctx, query, callID, videoRoomURL))
}

// CancelIfCurrent moves the call to CANCELLED only while its status still
// matches currentStatus, stamping who cancelled and the refund decision.
func (r *CallRepository) CancelIfCurrent(
	ctx context.Context,
	callID int64,
	currentStatus string,
	cancelledBy string,
	refundEligible *bool,
) (*models.Call, error) {
	query := fmt.Sprintf(`
		UPDATE calls
		SET status = 'cancelled', cancelled_by = $3, refund_eligible = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING %s
	`, callColumns)
	return r.scanCall(r.db.QueryRow(ctx, query, callID, currentStatus, cancelledBy, refundEligible))
}

// CompleteDue flips every CONFIRMED call whose end time has passed to
// COMPLETED. Safe to run repeatedly.
func (r *CallRepository) CompleteDue(ctx context.Context, now time.Time) ([]models.Call, error) {
	query := fmt.Sprintf(`
		UPDATE calls
		SET status = 'completed', updated_at = NOW()
		WHERE status = 'confirmed'
		  AND (scheduled_at + (duration_min * INTERVAL '1 minute')) < $1
		RETURNING %s
	`, callColumns)
	return r.list(ctx, query, now)
}

// ExpireRequestedBefore cancels REQUESTED calls created before the cutoff
// that never saw a payment capture.
func (r *CallRepository) ExpireRequestedBefore(ctx context.Context, cutoff time.Time) ([]models.Call, error) {
	query := fmt.Sprintf(`
		UPDATE calls
		SET status = 'cancelled', cancelled_by = 'system', updated_at = NOW()
		WHERE status = 'requested' AND created_at < $1
		RETURNING %s
	`, callColumns)
	return r.list(ctx, query, cutoff)
}

func (r *CallRepository) list(ctx context.Context, query string, args ...any) ([]models.Call, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	calls := make([]models.Call, 0)
	for rows.Next() {
		call, err := r.scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, *call)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return calls, nil
}
