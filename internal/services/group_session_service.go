package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nkamali/MentorAppBack/internal/models"
	"github.com/nkamali/MentorAppBack/internal/repository"
)

type groupSessionStore interface {
	Create(ctx context.Context, input repository.CreateGroupSessionInput) (*models.GroupSession, error)
	GetByID(ctx context.Context, sessionID int64) (*models.GroupSession, error)
	UpdateScheduleIfScheduled(ctx context.Context, sessionID int64, scheduledAt time.Time, durationMinutes int) (*models.GroupSession, error)
	UpdateStatusIfCurrent(ctx context.Context, sessionID int64, currentStatus string, nextStatus string) (*models.GroupSession, error)
	ConfirmIfScheduled(ctx context.Context, sessionID int64, videoRoomURL string) (*models.GroupSession, error)
	List(ctx context.Context, filter repository.GroupSessionListFilter) ([]models.GroupSessionDetail, error)
	AddParticipant(ctx context.Context, sessionID int64, consumerID int64) (*models.Participant, error)
	RemoveParticipant(ctx context.Context, sessionID int64, consumerID int64) (bool, error)
	CountParticipants(ctx context.Context, sessionID int64) (int, error)
	ListParticipants(ctx context.Context, sessionID int64) ([]models.Participant, error)
	MarkParticipantsRefundEligible(ctx context.Context, sessionID int64) error
	ListQuorumExpired(ctx context.Context, now time.Time, quorumHours int) ([]models.GroupSession, error)
	CompleteDue(ctx context.Context, now time.Time) ([]models.GroupSession, error)
}

// GroupSessionService is the quorum-gated state machine:
// SCHEDULED -> CONFIRMED -> COMPLETED, CANCELLED reachable from the first two.
// Joins are serialized per session so exactly one join observes the quorum
// crossing.
type GroupSessionService struct {
	sessions  groupSessionStore
	users     userReader
	rooms     RoomProvisioner
	reminders reminderScheduler
	notifier  Notifier
	events    EventPublisher
	clock     Clock
	policy    Policy
	locks     *keyedMutex
}

func NewGroupSessionService(
	sessions groupSessionStore,
	users userReader,
	rooms RoomProvisioner,
	reminders reminderScheduler,
	notifier Notifier,
	events EventPublisher,
	clock Clock,
	policy Policy,
) *GroupSessionService {
	return &GroupSessionService{
		sessions:  sessions,
		users:     users,
		rooms:     rooms,
		reminders: reminders,
		notifier:  notifier,
		events:    events,
		clock:     clock,
		policy:    policy,
		locks:     newKeyedMutex(),
	}
}

type CreateGroupSessionInput struct {
	Title              string
	ScheduledAt        time.Time
	DurationMinutes    int
	MaxCapacity        int
	MinAttendees       int
	PricePerPerson     float64
	FreeForSubscribers bool
}

func (s *GroupSessionService) Create(
	ctx context.Context,
	mentorID int64,
	input CreateGroupSessionInput,
) (*models.GroupSession, error) {
	if mentorID <= 0 || strings.TrimSpace(input.Title) == "" {
		return nil, ErrInvalidInput
	}
	if input.DurationMinutes <= 0 || input.PricePerPerson < 0 {
		return nil, ErrInvalidInput
	}
	if input.MinAttendees < s.policy.MinAttendeesFloor ||
		input.MaxCapacity > s.policy.MaxCapacityCeiling ||
		input.MinAttendees > input.MaxCapacity {
		return nil, ErrInvalidCapacity
	}

	scheduledAt := input.ScheduledAt.UTC().Truncate(time.Minute)
	if scheduledAt.Sub(s.clock.Now()) < s.policy.GroupLeadTime {
		return nil, ErrLeadTimeTooShort
	}

	return s.sessions.Create(ctx, repository.CreateGroupSessionInput{
		MentorID:           mentorID,
		Title:              strings.TrimSpace(input.Title),
		ScheduledAt:        scheduledAt,
		DurationMinutes:    input.DurationMinutes,
		MaxCapacity:        input.MaxCapacity,
		MinAttendees:       input.MinAttendees,
		PricePerPerson:     input.PricePerPerson,
		FreeForSubscribers: input.FreeForSubscribers,
	})
}

// Edit changes date or duration, but only while nobody has joined yet.
func (s *GroupSessionService) Edit(
	ctx context.Context,
	mentorID int64,
	sessionID int64,
	scheduledAt *time.Time,
	durationMinutes *int,
) (*models.GroupSession, error) {
	key := sessionKey(sessionID)
	s.locks.lock(key)
	defer s.locks.unlock(key)

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.MentorID != mentorID {
		return nil, ErrForbidden
	}
	if session.Status != models.GroupSessionStatusScheduled {
		return nil, ErrInvalidState
	}

	count, err := s.sessions.CountParticipants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrHasParticipants
	}

	newAt := session.ScheduledAt
	if scheduledAt != nil {
		newAt = scheduledAt.UTC().Truncate(time.Minute)
	}
	newDuration := session.DurationMinutes
	if durationMinutes != nil {
		newDuration = *durationMinutes
	}
	if newDuration <= 0 {
		return nil, ErrInvalidInput
	}
	if newAt.Sub(s.clock.Now()) < s.policy.GroupLeadTime {
		return nil, ErrLeadTimeTooShort
	}

	updated, err := s.sessions.UpdateScheduleIfScheduled(ctx, sessionID, newAt, newDuration)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidState
		}
		return nil, err
	}
	return updated, nil
}

// Join adds the consumer and, when this join crosses the quorum exactly,
// confirms the session. The capacity/quorum check runs under the per-session
// lock; room provisioning and notifications happen after it is released.
func (s *GroupSessionService) Join(
	ctx context.Context,
	consumerID int64,
	sessionID int64,
) (*models.GroupSessionDetail, error) {
	if consumerID <= 0 || sessionID <= 0 {
		return nil, ErrInvalidInput
	}

	key := sessionKey(sessionID)
	s.locks.lock(key)
	session, newCount, err := s.joinLocked(ctx, consumerID, sessionID)
	s.locks.unlock(key)
	if err != nil {
		return nil, err
	}

	if newCount == session.MinAttendees {
		session = s.confirmQuorum(ctx, session)
	}

	return &models.GroupSessionDetail{GroupSession: *session, ParticipantCount: newCount}, nil
}

func (s *GroupSessionService) joinLocked(
	ctx context.Context,
	consumerID int64,
	sessionID int64,
) (*models.GroupSession, int, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}
	if session.MentorID == consumerID {
		return nil, 0, ErrInvalidInput
	}
	if session.Status != models.GroupSessionStatusScheduled {
		return nil, 0, ErrInvalidState
	}
	if !session.ScheduledAt.After(s.clock.Now()) {
		return nil, 0, ErrInvalidState
	}

	count, err := s.sessions.CountParticipants(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}
	if count >= session.MaxCapacity {
		return nil, 0, ErrSessionFull
	}

	if _, err := s.sessions.AddParticipant(ctx, sessionID, consumerID); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, 0, ErrAlreadyJoined
		}
		return nil, 0, err
	}

	return session, count + 1, nil
}

// confirmQuorum performs the SCHEDULED -> CONFIRMED transition triggered by
// the quorum-crossing join. The guarded update means a concurrent mentor
// cancellation wins cleanly; in that case the current row is returned as-is.
func (s *GroupSessionService) confirmQuorum(
	ctx context.Context,
	session *models.GroupSession,
) *models.GroupSession {
	roomURL, err := s.rooms.ProvisionRoom(ctx, models.ReminderSubjectGroupSession, session.ID)
	if err != nil {
		log.Printf("groupsession: room provisioning failed for session %d, using fallback: %v", session.ID, err)
		roomURL = fallbackRoomURL(models.ReminderSubjectGroupSession, session.ID)
	}

	confirmed, err := s.sessions.ConfirmIfScheduled(ctx, session.ID, roomURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if current, getErr := s.sessions.GetByID(ctx, session.ID); getErr == nil {
				return current
			}
		} else {
			log.Printf("groupsession: confirming session %d failed: %v", session.ID, err)
		}
		return session
	}

	if err := s.reminders.ScheduleForSubject(
		ctx,
		models.ReminderSubjectGroupSession,
		confirmed.ID,
		confirmed.ScheduledAt,
	); err != nil {
		log.Printf("groupsession: scheduling reminders for session %d failed: %v", confirmed.ID, err)
	}

	s.publish(confirmed.MentorID, Event{Type: "session_confirmed", SubjectType: models.ReminderSubjectGroupSession, SubjectID: confirmed.ID})
	s.notifyParticipants(ctx, confirmed.ID, confirmed.MentorID, "Your group session is confirmed",
		"Enough attendees joined; the session is confirmed. The video room link is available in the app.")

	return confirmed
}

// CancelByMentor cancels a SCHEDULED or CONFIRMED session before its start and
// refunds every participant unconditionally, bypassing the time-cutoff policy.
func (s *GroupSessionService) CancelByMentor(
	ctx context.Context,
	mentorID int64,
	sessionID int64,
) (*models.GroupSession, error) {
	key := sessionKey(sessionID)
	s.locks.lock(key)
	cancelled, err := s.cancelByMentorLocked(ctx, mentorID, sessionID)
	s.locks.unlock(key)
	if err != nil {
		return nil, err
	}

	s.publish(cancelled.MentorID, Event{Type: "session_cancelled", SubjectType: models.ReminderSubjectGroupSession, SubjectID: cancelled.ID})
	s.notifyParticipants(ctx, cancelled.ID, cancelled.MentorID, "Your group session was cancelled",
		"The mentor cancelled the session. Your payment will be refunded in full.")

	return cancelled, nil
}

func (s *GroupSessionService) cancelByMentorLocked(
	ctx context.Context,
	mentorID int64,
	sessionID int64,
) (*models.GroupSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.MentorID != mentorID {
		return nil, ErrForbidden
	}
	if session.Status != models.GroupSessionStatusScheduled &&
		session.Status != models.GroupSessionStatusConfirmed {
		return nil, ErrInvalidState
	}
	if !session.ScheduledAt.After(s.clock.Now()) {
		return nil, ErrInvalidState
	}

	cancelled, err := s.sessions.UpdateStatusIfCurrent(
		ctx,
		sessionID,
		session.Status,
		models.GroupSessionStatusCancelled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidState
		}
		return nil, err
	}

	if err := s.sessions.MarkParticipantsRefundEligible(ctx, sessionID); err != nil {
		return nil, err
	}
	return cancelled, nil
}

// CancelByParticipant removes the consumer's seat before confirmation. Once
// the session is CONFIRMED an individual cannot un-join; only the mentor can
// cancel the whole session.
func (s *GroupSessionService) CancelByParticipant(
	ctx context.Context,
	consumerID int64,
	sessionID int64,
) error {
	key := sessionKey(sessionID)
	s.locks.lock(key)
	defer s.locks.unlock(key)

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != models.GroupSessionStatusScheduled {
		return ErrInvalidState
	}

	removed, err := s.sessions.RemoveParticipant(ctx, sessionID, consumerID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotJoined
	}
	return nil
}

// SweepQuorumDeadline cancels SCHEDULED sessions whose quorum deadline passed
// without enough attendees; every participant becomes refund-eligible. One
// session's failure never aborts the rest of the sweep.
func (s *GroupSessionService) SweepQuorumDeadline(ctx context.Context) (int, error) {
	quorumHours := int(s.policy.QuorumWindow / time.Hour)
	expired, err := s.sessions.ListQuorumExpired(ctx, s.clock.Now(), quorumHours)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, session := range expired {
		key := sessionKey(session.ID)
		s.locks.lock(key)
		_, err := s.sessions.UpdateStatusIfCurrent(
			ctx,
			session.ID,
			models.GroupSessionStatusScheduled,
			models.GroupSessionStatusCancelled,
		)
		if err == nil {
			err = s.sessions.MarkParticipantsRefundEligible(ctx, session.ID)
		}
		s.locks.unlock(key)

		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue // raced with a join that confirmed, or a mentor cancel
			}
			log.Printf("groupsession: quorum sweep failed for session %d: %v", session.ID, err)
			continue
		}

		cancelled++
		s.notifyParticipants(ctx, session.ID, session.MentorID, "Your group session was cancelled",
			"The session did not reach the minimum number of attendees and was cancelled. Your payment will be refunded.")
	}

	if cancelled > 0 {
		log.Printf("groupsession: cancelled %d sessions at quorum deadline", cancelled)
	}
	return cancelled, nil
}

// MarkCompleted transitions CONFIRMED sessions past their end time.
func (s *GroupSessionService) MarkCompleted(ctx context.Context) (int, error) {
	completed, err := s.sessions.CompleteDue(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if len(completed) > 0 {
		log.Printf("groupsession: marked %d sessions completed", len(completed))
	}
	return len(completed), nil
}

func (s *GroupSessionService) Get(ctx context.Context, sessionID int64) (*models.GroupSessionDetail, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	count, err := s.sessions.CountParticipants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &models.GroupSessionDetail{GroupSession: *session, ParticipantCount: count}, nil
}

func (s *GroupSessionService) List(
	ctx context.Context,
	actorID int64,
	role string,
	filter repository.GroupSessionListFilter,
) ([]models.GroupSessionDetail, error) {
	return s.sessions.List(ctx, repository.GroupSessionListFilter{
		ActorID:   actorID,
		Role:      role,
		Status:    filter.Status,
		Timeframe: filter.Timeframe,
	})
}

func (s *GroupSessionService) publish(userID int64, event Event) {
	if s.events != nil {
		s.events.Publish(userID, event)
	}
}

func (s *GroupSessionService) notifyParticipants(
	ctx context.Context,
	sessionID int64,
	mentorID int64,
	subject string,
	body string,
) {
	if s.notifier == nil {
		return
	}

	participants, err := s.sessions.ListParticipants(ctx, sessionID)
	if err != nil {
		log.Printf("groupsession: listing participants of session %d for notification failed: %v", sessionID, err)
		return
	}

	recipients := make([]int64, 0, len(participants)+1)
	for _, participant := range participants {
		recipients = append(recipients, participant.ConsumerID)
	}
	recipients = append(recipients, mentorID)

	for _, userID := range recipients {
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			log.Printf("groupsession: lookup of user %d for notification failed: %v", userID, err)
			continue
		}
		if err := s.notifier.Send(ctx, user.Email, "", subject, body); err != nil {
			log.Printf("groupsession: notification to %s failed: %v", user.Email, err)
		}
		s.publish(userID, Event{Type: "session_update", SubjectType: models.ReminderSubjectGroupSession, SubjectID: sessionID})
	}
}
