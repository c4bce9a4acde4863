package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nkamali/MentorAppBack/internal/models"
)

type CreateGroupSessionInput struct {
	MentorID           int64
	Title              string
	ScheduledAt        time.Time
	DurationMinutes    int
	MaxCapacity        int
	MinAttendees       int
	PricePerPerson     float64
	FreeForSubscribers bool
}

type GroupSessionListFilter struct {
	ActorID   int64
	Role      string
	Status    string
	Timeframe string
}

const groupSessionColumns = `id, mentor_id, title, scheduled_at, duration_min, max_capacity,
		min_attendees, price_per_person, free_for_subscribers, status, video_room_url,
		created_at, updated_at`

type GroupSessionRepository struct {
	db DBTX
}

func NewGroupSessionRepository(db DBTX) *GroupSessionRepository {
	return &GroupSessionRepository{db: db}
}

func (r *GroupSessionRepository) scanSession(row interface{ Scan(dest ...any) error }) (*models.GroupSession, error) {
	var session models.GroupSession
	err := row.Scan(
		&session.ID,
		&session.MentorID,
		&session.Title,
		&session.ScheduledAt,
		&session.DurationMinutes,
		&session.MaxCapacity,
		&session.MinAttendees,
		&session.PricePerPerson,
		&session.FreeForSubscribers,
		&session.Status,
		&session.VideoRoomURL,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *GroupSessionRepository) Create(
	ctx context.Context,
	input CreateGroupSessionInput,
) (*models.GroupSession, error) {
	query := fmt.Sprintf(`
		INSERT INTO group_sessions
			(mentor_id, title, scheduled_at, duration_min, max_capacity, min_attendees,
			 price_per_person, free_for_subscribers, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'scheduled')
		RETURNING %s
	`, groupSessionColumns)
	return r.scanSession(r.db.QueryRow(
		ctx,
		query,
		input.MentorID,
		input.Title,
		input.ScheduledAt,
		input.DurationMinutes,
		input.MaxCapacity,
		input.MinAttendees,
		input.PricePerPerson,
		input.FreeForSubscribers,
	))
}

func (r *GroupSessionRepository) GetByID(ctx context.Context, sessionID int64) (*models.GroupSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM group_sessions WHERE id = $1`, groupSessionColumns)
	return r.scanSession(r.db.QueryRow(ctx, query, sessionID))
}

// UpdateScheduleIfScheduled edits date and duration only while the session is
// still SCHEDULED. Participant-count guarding happens in the service under the
// per-session lock.
func (r *GroupSessionRepository) UpdateScheduleIfScheduled(
	ctx context.Context,
	sessionID int64,
	scheduledAt time.Time,
	durationMinutes int,
) (*models.GroupSession, error) {
	query := fmt.Sprintf(`
		UPDATE group_sessions
		SET scheduled_at = $2, duration_min = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'
		RETURNING %s
	`, groupSessionColumns)
	return r.scanSession(r.db.QueryRow(ctx, query, sessionID, scheduledAt, durationMinutes))
}

func (r *GroupSessionRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	sessionID int64,
	currentStatus string,
	nextStatus string,
) (*models.GroupSession, error) {
	query := fmt.Sprintf(`
		UPDATE group_sessions
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING %s
	`, groupSessionColumns)
	return r.scanSession(r.db.QueryRow(ctx, query, sessionID, currentStatus, nextStatus))
}

// ConfirmIfScheduled is the quorum transition: SCHEDULED -> CONFIRMED plus the
// provisioned room URL, guarded so two racing joins cannot both confirm.
func (r *GroupSessionRepository) ConfirmIfScheduled(
	ctx context.Context,
	sessionID int64,
	videoRoomURL string,
) (*models.GroupSession, error) {
	query := fmt.Sprintf(`
		UPDATE group_sessions
		SET status = 'confirmed', video_room_url = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'
		RETURNING %s
	`, groupSessionColumns)
	return r.scanSession(r.db.QueryRow(ctx, query, sessionID, videoRoomURL))
}

func (r *GroupSessionRepository) List(
	ctx context.Context,
	filter GroupSessionListFilter,
) ([]models.GroupSessionDetail, error) {
	args := []any{filter.ActorID}
	var whereParts []string
	if filter.Role == "mentor" {
		whereParts = []string{"s.mentor_id = $1"}
	} else {
		whereParts = []string{
			"s.id IN (SELECT session_id FROM session_participants WHERE consumer_id = $1)",
		}
	}

	if status := strings.TrimSpace(filter.Status); status != "" {
		args = append(args, status)
		whereParts = append(whereParts, fmt.Sprintf("s.status = $%d", len(args)))
	}

	switch strings.TrimSpace(filter.Timeframe) {
	case "upcoming":
		whereParts = append(
			whereParts,
			"(s.scheduled_at + (s.duration_min * INTERVAL '1 minute')) > NOW()",
		)
	case "past":
		whereParts = append(
			whereParts,
			"(s.scheduled_at + (s.duration_min * INTERVAL '1 minute')) <= NOW()",
		)
	}

	query := fmt.Sprintf(`
		SELECT s.id, s.mentor_id, s.title, s.scheduled_at, s.duration_min, s.max_capacity,
			s.min_attendees, s.price_per_person, s.free_for_subscribers, s.status,
			s.video_room_url, s.created_at, s.updated_at,
			(SELECT COUNT(*) FROM session_participants p WHERE p.session_id = s.id)
		FROM group_sessions s
		WHERE %s
		ORDER BY s.scheduled_at ASC, s.id ASC
	`, strings.Join(whereParts, " AND "))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	details := make([]models.GroupSessionDetail, 0)
	for rows.Next() {
		var detail models.GroupSessionDetail
		if err := rows.Scan(
			&detail.ID,
			&detail.MentorID,
			&detail.Title,
			&detail.ScheduledAt,
			&detail.DurationMinutes,
			&detail.MaxCapacity,
			&detail.MinAttendees,
			&detail.PricePerPerson,
			&detail.FreeForSubscribers,
			&detail.Status,
			&detail.VideoRoomURL,
			&detail.CreatedAt,
			&detail.UpdatedAt,
			&detail.ParticipantCount,
		); err != nil {
			return nil, err
		}
		details = append(details, detail)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return details, nil
}

func (r *GroupSessionRepository) AddParticipant(
	ctx context.Context,
	sessionID int64,
	consumerID int64,
) (*models.Participant, error) {
	query := `
		INSERT INTO session_participants (session_id, consumer_id)
		VALUES ($1, $2)
		RETURNING id, session_id, consumer_id, joined_at, refund_eligible
	`
	var participant models.Participant
	err := r.db.QueryRow(ctx, query, sessionID, consumerID).Scan(
		&participant.ID,
		&participant.SessionID,
		&participant.ConsumerID,
		&participant.JoinedAt,
		&participant.RefundEligible,
	)
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *GroupSessionRepository) RemoveParticipant(
	ctx context.Context,
	sessionID int64,
	consumerID int64,
) (bool, error) {
	query := `DELETE FROM session_participants WHERE session_id = $1 AND consumer_id = $2`
	tag, err := r.db.Exec(ctx, query, sessionID, consumerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *GroupSessionRepository) CountParticipants(ctx context.Context, sessionID int64) (int, error) {
	query := `SELECT COUNT(*) FROM session_participants WHERE session_id = $1`
	var count int
	if err := r.db.QueryRow(ctx, query, sessionID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *GroupSessionRepository) ListParticipants(
	ctx context.Context,
	sessionID int64,
) ([]models.Participant, error) {
	query := `
		SELECT id, session_id, consumer_id, joined_at, refund_eligible
		FROM session_participants
		WHERE session_id = $1
		ORDER BY joined_at ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := make([]models.Participant, 0)
	for rows.Next() {
		var participant models.Participant
		if err := rows.Scan(
			&participant.ID,
			&participant.SessionID,
			&participant.ConsumerID,
			&participant.JoinedAt,
			&participant.RefundEligible,
		); err != nil {
			return nil, err
		}
		participants = append(participants, participant)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return participants, nil
}

func (r *GroupSessionRepository) MarkParticipantsRefundEligible(
	ctx context.Context,
	sessionID int64,
) error {
	query := `UPDATE session_participants SET refund_eligible = TRUE WHERE session_id = $1`
	_, err := r.db.Exec(ctx, query, sessionID)
	return err
}

// ListQuorumExpired returns SCHEDULED sessions whose quorum deadline
// (scheduled_at minus quorumHours) has passed while still under min_attendees.
func (r *GroupSessionRepository) ListQuorumExpired(
	ctx context.Context,
	now time.Time,
	quorumHours int,
) ([]models.GroupSession, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM group_sessions
		WHERE status = 'scheduled'
		  AND (scheduled_at - ($2::int * INTERVAL '1 hour')) <= $1
		  AND (SELECT COUNT(*) FROM session_participants p WHERE p.session_id = group_sessions.id) < min_attendees
		ORDER BY scheduled_at ASC, id ASC
	`, groupSessionColumns)
	return r.listSessions(ctx, query, now, quorumHours)
}

// CompleteDue flips CONFIRMED sessions past their end time to COMPLETED.
func (r *GroupSessionRepository) CompleteDue(ctx context.Context, now time.Time) ([]models.GroupSession, error) {
	query := fmt.Sprintf(`
		UPDATE group_sessions
		SET status = 'completed', updated_at = NOW()
		WHERE status = 'confirmed'
		  AND (scheduled_at + (duration_min * INTERVAL '1 minute')) < $1
		RETURNING %s
	`, groupSessionColumns)
	return r.listSessions(ctx, query, now)
}

func (r *GroupSessionRepository) listSessions(
	ctx context.Context,
	query string,
	args ...any,
) ([]models.GroupSession, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]models.GroupSession, 0)
	for rows.Next() {
		session, err := r.scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}
