package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nkamali/MentorAppBack/internal/models"
)

type fakeReminderStore struct {
	jobs   []*models.ReminderJob
	nextID int64
}

func (f *fakeReminderStore) Schedule(_ context.Context, subjectType string, subjectID int64, kind string, fireAt time.Time) error {
	for _, job := range f.jobs {
		if job.SubjectType == subjectType && job.SubjectID == subjectID && job.Kind == kind {
			return nil
		}
	}
	f.nextID++
	f.jobs = append(f.jobs, &models.ReminderJob{
		ID:          f.nextID,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Kind:        kind,
		FireAt:      fireAt,
	})
	return nil
}

func (f *fakeReminderStore) ListDue(_ context.Context, now time.Time) ([]models.ReminderJob, error) {
	due := make([]models.ReminderJob, 0)
	for _, job := range f.jobs {
		if job.FiredAt == nil && !job.FireAt.After(now) {
			due = append(due, *job)
		}
	}
	return due, nil
}

func (f *fakeReminderStore) MarkFiredIfUnfired(_ context.Context, jobID int64, firedAt time.Time) (bool, error) {
	for _, job := range f.jobs {
		if job.ID == jobID {
			if job.FiredAt != nil {
				return false, nil
			}
			stamped := firedAt
			job.FiredAt = &stamped
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeReminderStore) unfiredCount() int {
	count := 0
	for _, job := range f.jobs {
		if job.FiredAt == nil {
			count++
		}
	}
	return count
}

type reminderFixture struct {
	store    *fakeReminderStore
	calls    *fakeCallStore
	sessions *fakeGroupSessionStore
	users    *fakeUsers
	notifier *fakeNotifier
	clock    *fakeClock
	service  *ReminderService
}

func newReminderFixture(now time.Time) *reminderFixture {
	f := &reminderFixture{
		store:    &fakeReminderStore{},
		calls:    newFakeCallStore(),
		sessions: newFakeGroupSessionStore(),
		users: &fakeUsers{users: map[int64]*models.User{
			7:  {ID: 7, Email: "mentor@example.com", Role: "mentor"},
			42: {ID: 42, Email: "learner@example.com", Role: "user"},
			43: {ID: 43, Email: "second@example.com", Role: "user"},
		}},
		notifier: &fakeNotifier{},
		clock:    &fakeClock{now: now},
	}
	f.service = NewReminderService(f.store, f.calls, f.sessions, f.users, f.notifier, f.clock)
	return f
}

func (f *reminderFixture) seedConfirmedCall(scheduledAt time.Time) *models.Call {
	roomURL := "https://video.example.com/room-1"
	call := &models.Call{
		ID:              1,
		MentorID:        7,
		ConsumerID:      42,
		ScheduledAt:     scheduledAt,
		DurationMinutes: 60,
		Status:          models.CallStatusConfirmed,
		VideoRoomURL:    &roomURL,
	}
	f.calls.calls[call.ID] = call
	return call
}

func TestScheduleForSubjectSkipsOffsetsInThePast(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fixture := newReminderFixture(now)

	// 2 hours out: the day-before slot already passed, only hour-before fits.
	if err := fixture.service.ScheduleForSubject(context.Background(), models.ReminderSubjectCall, 1, now.Add(2*time.Hour)); err != nil {
		t.Fatalf("ScheduleForSubject: %v", err)
	}
	if len(fixture.store.jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(fixture.store.jobs))
	}
	if fixture.store.jobs[0].Kind != models.ReminderKindHourBefore {
		t.Fatalf("expected hour_before job, got %q", fixture.store.jobs[0].Kind)
	}
}

func TestScheduleForSubjectEnqueuesBothKindsWhenFarOut(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fixture := newReminderFixture(now)

	if err := fixture.service.ScheduleForSubject(context.Background(), models.ReminderSubjectCall, 1, now.Add(48*time.Hour)); err != nil {
		t.Fatalf("ScheduleForSubject: %v", err)
	}
	if len(fixture.store.jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(fixture.store.jobs))
	}

	// Scheduling again must not duplicate.
	if err := fixture.service.ScheduleForSubject(context.Background(), models.ReminderSubjectCall, 1, now.Add(48*time.Hour)); err != nil {
		t.Fatalf("second ScheduleForSubject: %v", err)
	}
	if len(fixture.store.jobs) != 2 {
		t.Fatalf("expected scheduling to stay idempotent, got %d jobs", len(fixture.store.jobs))
	}
}

func TestDispatchSendsToBothPartiesThenStamps(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fixture := newReminderFixture(now)
	call := fixture.seedConfirmedCall(now.Add(2 * time.Hour))
	if err := fixture.service.ScheduleForSubject(context.Background(), models.ReminderSubjectCall, call.ID, call.ScheduledAt); err != nil {
		t.Fatalf("ScheduleForSubject: %v", err)
	}

	fixture.clock.now = now.Add(61 * time.Minute)
	fired, err := fixture.service.Dispatch(context.Background())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if fired != 1 {
		t.Fatalf("expected 1 fired job, got %d", fired)
	}
	if len(fixture.notifier.sent) != 2 {
		t.Fatalf("expected reminders to both parties, got %v", fixture.notifier.sent)
	}
	if fixture.store.unfiredCount() != 0 {
		t.Fatalf("expected the job to be stamped after the send")
	}

	// A second sweep must not re-send.
	fired, err = fixture.service.Dispatch(context.Background())
	if err != nil {
		t.Fatalf("second Dispatch: %v", err)
	}
	if fired != 0 || len(fixture.notifier.sent) != 2 {
		t.Fatalf("expected no re-send, fired=%d sent=%v", fired, fixture.notifier.sent)
	}
}

func TestDispatchRetriesAfterSendFailure(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fixture := newReminderFixture(now)
	call := fixture.seedConfirmedCall(now.Add(2 * time.Hour))
	if err := fixture.service.ScheduleForSubject(context.Background(), models.ReminderSubjectCall, call.ID, call.ScheduledAt); err != nil {
		t.Fatalf("ScheduleForSubject: %v", err)
	}
	fixture.clock.now = now.Add(61 * time.Minute)

	fixture.notifier.sendErr = errors.New("smtp down")
	fired, err := fixture.service.Dispatch(context.Background())
	if err != nil {
		t.Fatalf("Dispatch with failing notifier: %v", err)
	}
	if fired != 0 {
		t.Fatalf("expected no fired jobs while the notifier fails, got %d", fired)
	}
	if fixture.store.unfiredCount() != 1 {
		t.Fatalf("expected the job to stay unfired for retry")
	}

	fixture.notifier.sendErr = nil
	fired, err = fixture.service.Dispatch(context.Background())
	if err != nil {
		t.Fatalf("Dispatch after recovery: %v", err)
	}
	if fired != 1 {
		t.Fatalf("expected the retry to fire the job, got %d", fired)
	}
	if len(fixture.notifier.sent) != 2 {
		t.Fatalf("expected sends to both parties on retry, got %v", fixture.notifier.sent)
	}
}

func TestDispatchRetiresCancelledSubjectWithoutSending(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fixture := newReminderFixture(now)
	call := fixture.seedConfirmedCall(now.Add(2 * time.Hour))
	if err := fixture.service.ScheduleForSubject(context.Background(), models.ReminderSubjectCall, call.ID, call.ScheduledAt); err != nil {
		t.Fatalf("ScheduleForSubject: %v", err)
	}
	call.Status = models.CallStatusCancelled
	fixture.clock.now = now.Add(61 * time.Minute)

	fired, err := fixture.service.Dispatch(context.Background())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if fired != 0 {
		t.Fatalf("expected no sends for a cancelled call, got %d", fired)
	}
	if len(fixture.notifier.sent) != 0 {
		t.Fatalf("expected no notifications, got %v", fixture.notifier.sent)
	}
	if fixture.store.unfiredCount() != 0 {
		t.Fatalf("expected the stale job to be retired")
	}
}

func TestDispatchRetiresMissingSubject(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fixture := newReminderFixture(now)
	if err := fixture.service.ScheduleForSubject(context.Background(), models.ReminderSubjectCall, 999, now.Add(2*time.Hour)); err != nil {
		t.Fatalf("ScheduleForSubject: %v", err)
	}
	fixture.clock.now = now.Add(61 * time.Minute)

	fired, err := fixture.service.Dispatch(context.Background())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if fired != 0 || len(fixture.notifier.sent) != 0 {
		t.Fatalf("expected nothing sent for a missing subject, fired=%d sent=%v", fired, fixture.notifier.sent)
	}
	if fixture.store.unfiredCount() != 0 {
		t.Fatalf("expected the orphan job to be retired")
	}
}

func TestDispatchSendsToSessionParticipantsAndMentor(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fixture := newReminderFixture(now)

	roomURL := "https://video.example.com/session-room"
	session := &models.GroupSession{
		ID:              5,
		MentorID:        7,
		Title:           "Mock interviews",
		ScheduledAt:     now.Add(2 * time.Hour),
		DurationMinutes: 90,
		MaxCapacity:     10,
		MinAttendees:    2,
		Status:          models.GroupSessionStatusConfirmed,
		VideoRoomURL:    &roomURL,
	}
	fixture.sessions.sessions[session.ID] = session
	fixture.sessions.participants[session.ID] = []models.Participant{
		{ID: 1, SessionID: session.ID, ConsumerID: 42},
		{ID: 2, SessionID: session.ID, ConsumerID: 43},
	}
	if err := fixture.service.ScheduleForSubject(context.Background(), models.ReminderSubjectGroupSession, session.ID, session.ScheduledAt); err != nil {
		t.Fatalf("ScheduleForSubject: %v", err)
	}
	fixture.clock.now = now.Add(61 * time.Minute)

	fired, err := fixture.service.Dispatch(context.Background())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if fired != 1 {
		t.Fatalf("expected 1 fired job, got %d", fired)
	}
	if len(fixture.notifier.sent) != 3 {
		t.Fatalf("expected both participants and the mentor notified, got %v", fixture.notifier.sent)
	}
}
