package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nkamali/MentorAppBack/internal/models"
)

type reminderStore interface {
	Schedule(ctx context.Context, subjectType string, subjectID int64, kind string, fireAt time.Time) error
	ListDue(ctx context.Context, now time.Time) ([]models.ReminderJob, error)
	MarkFiredIfUnfired(ctx context.Context, jobID int64, firedAt time.Time) (bool, error)
}

type callReader interface {
	GetByID(ctx context.Context, callID int64) (*models.Call, error)
}

type groupSessionReader interface {
	GetByID(ctx context.Context, sessionID int64) (*models.GroupSession, error)
	ListParticipants(ctx context.Context, sessionID int64) ([]models.Participant, error)
}

type userLister interface {
	ListByIDs(ctx context.Context, ids []int64) ([]models.User, error)
}

// ReminderService schedules and dispatches the day-before and hour-before
// reminders for confirmed appointments. Delivery is at-least-once: a job is
// stamped fired only after its notifications went out, so a crash between send
// and stamp re-sends on the next sweep rather than dropping the reminder.
type ReminderService struct {
	reminders reminderStore
	calls     callReader
	sessions  groupSessionReader
	users     userLister
	notifier  Notifier
	clock     Clock
}

func NewReminderService(
	reminders reminderStore,
	calls callReader,
	sessions groupSessionReader,
	users userLister,
	notifier Notifier,
	clock Clock,
) *ReminderService {
	return &ReminderService{
		reminders: reminders,
		calls:     calls,
		sessions:  sessions,
		users:     users,
		notifier:  notifier,
		clock:     clock,
	}
}

var reminderOffsets = map[string]time.Duration{
	models.ReminderKindDayBefore:  24 * time.Hour,
	models.ReminderKindHourBefore: time.Hour,
}

// ScheduleForSubject enqueues both reminder kinds for an appointment starting
// at scheduledAt. Offsets already in the past are skipped, so an appointment
// confirmed 30 minutes before its start gets no reminders at all. Scheduling
// is idempotent per (subject, kind).
func (s *ReminderService) ScheduleForSubject(
	ctx context.Context,
	subjectType string,
	subjectID int64,
	scheduledAt time.Time,
) error {
	now := s.clock.Now()
	for kind, offset := range reminderOffsets {
		fireAt := scheduledAt.Add(-offset)
		if !fireAt.After(now) {
			continue
		}
		if err := s.reminders.Schedule(ctx, subjectType, subjectID, kind, fireAt); err != nil {
			return fmt.Errorf("schedule %s reminder for %s %d: %w", kind, subjectType, subjectID, err)
		}
	}
	return nil
}

// Dispatch fires every due reminder. A subject that is no longer confirmed
// (cancelled, completed) gets its job stamped without a send so it stops
// reappearing. One job's failure never blocks the rest.
func (s *ReminderService) Dispatch(ctx context.Context) (int, error) {
	due, err := s.reminders.ListDue(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}

	fired := 0
	for _, job := range due {
		sent, err := s.dispatchOne(ctx, job)
		if err != nil {
			log.Printf("reminder: dispatch of job %d (%s %s %d) failed: %v",
				job.ID, job.Kind, job.SubjectType, job.SubjectID, err)
			continue
		}
		if sent {
			fired++
		}
	}

	if fired > 0 {
		log.Printf("reminder: dispatched %d reminders", fired)
	}
	return fired, nil
}

func (s *ReminderService) dispatchOne(ctx context.Context, job models.ReminderJob) (bool, error) {
	recipients, scheduledAt, active, err := s.resolveSubject(ctx, job)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Subject row is gone; retire the job.
			_, markErr := s.reminders.MarkFiredIfUnfired(ctx, job.ID, s.clock.Now())
			return false, markErr
		}
		return false, err
	}
	if !active {
		_, err := s.reminders.MarkFiredIfUnfired(ctx, job.ID, s.clock.Now())
		return false, err
	}

	users, err := s.users.ListByIDs(ctx, recipients)
	if err != nil {
		return false, err
	}

	subject, body := reminderText(job.Kind, job.SubjectType, scheduledAt)
	for _, user := range users {
		if err := s.notifier.Send(ctx, user.Email, "", subject, body); err != nil {
			// Leave the job unfired; the next sweep retries the whole send.
			return false, err
		}
	}

	claimed, err := s.reminders.MarkFiredIfUnfired(ctx, job.ID, s.clock.Now())
	if err != nil {
		return false, err
	}
	return claimed, nil
}

func (s *ReminderService) resolveSubject(
	ctx context.Context,
	job models.ReminderJob,
) (recipients []int64, scheduledAt time.Time, active bool, err error) {
	switch job.SubjectType {
	case models.ReminderSubjectCall:
		call, err := s.calls.GetByID(ctx, job.SubjectID)
		if err != nil {
			return nil, time.Time{}, false, err
		}
		if call.Status != models.CallStatusConfirmed {
			return nil, time.Time{}, false, nil
		}
		return []int64{call.ConsumerID, call.MentorID}, call.ScheduledAt, true, nil

	case models.ReminderSubjectGroupSession:
		session, err := s.sessions.GetByID(ctx, job.SubjectID)
		if err != nil {
			return nil, time.Time{}, false, err
		}
		if session.Status != models.GroupSessionStatusConfirmed {
			return nil, time.Time{}, false, nil
		}
		participants, err := s.sessions.ListParticipants(ctx, job.SubjectID)
		if err != nil {
			return nil, time.Time{}, false, err
		}
		ids := make([]int64, 0, len(participants)+1)
		for _, participant := range participants {
			ids = append(ids, participant.ConsumerID)
		}
		ids = append(ids, session.MentorID)
		return ids, session.ScheduledAt, true, nil

	default:
		return nil, time.Time{}, false, fmt.Errorf("unknown reminder subject type %q", job.SubjectType)
	}
}

func reminderText(kind, subjectType string, scheduledAt time.Time) (subject, body string) {
	what := "call"
	if subjectType == models.ReminderSubjectGroupSession {
		what = "group session"
	}

	when := "tomorrow"
	if kind == models.ReminderKindHourBefore {
		when = "in one hour"
	}

	subject = fmt.Sprintf("Reminder: your %s starts %s", what, when)
	body = fmt.Sprintf("Your %s starts %s, at %s. The video room link is available in the app.",
		what, when, scheduledAt.UTC().Format("Mon, 02 Jan 2006 15:04 MST"))
	return subject, body
}
