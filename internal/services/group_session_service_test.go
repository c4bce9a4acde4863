package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nkamali/MentorAppBack/internal/models"
	"github.com/nkamali/MentorAppBack/internal/repository"
)

type fakeGroupSessionStore struct {
	sessions     map[int64]*models.GroupSession
	participants map[int64][]models.Participant
	nextID       int64
}

func newFakeGroupSessionStore() *fakeGroupSessionStore {
	return &fakeGroupSessionStore{
		sessions:     make(map[int64]*models.GroupSession),
		participants: make(map[int64][]models.Participant),
	}
}

func (f *fakeGroupSessionStore) Create(_ context.Context, input repository.CreateGroupSessionInput) (*models.GroupSession, error) {
	f.nextID++
	session := &models.GroupSession{
		ID:                 f.nextID,
		MentorID:           input.MentorID,
		Title:              input.Title,
		ScheduledAt:        input.ScheduledAt,
		DurationMinutes:    input.DurationMinutes,
		MaxCapacity:        input.MaxCapacity,
		MinAttendees:       input.MinAttendees,
		PricePerPerson:     input.PricePerPerson,
		FreeForSubscribers: input.FreeForSubscribers,
		Status:             models.GroupSessionStatusScheduled,
	}
	f.sessions[session.ID] = session
	return session, nil
}

func (f *fakeGroupSessionStore) GetByID(_ context.Context, sessionID int64) (*models.GroupSession, error) {
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *session
	return &copied, nil
}

func (f *fakeGroupSessionStore) UpdateScheduleIfScheduled(_ context.Context, sessionID int64, scheduledAt time.Time, durationMinutes int) (*models.GroupSession, error) {
	session, ok := f.sessions[sessionID]
	if !ok || session.Status != models.GroupSessionStatusScheduled {
		return nil, pgx.ErrNoRows
	}
	session.ScheduledAt = scheduledAt
	session.DurationMinutes = durationMinutes
	copied := *session
	return &copied, nil
}

func (f *fakeGroupSessionStore) UpdateStatusIfCurrent(_ context.Context, sessionID int64, currentStatus, nextStatus string) (*models.GroupSession, error) {
	session, ok := f.sessions[sessionID]
	if !ok || session.Status != currentStatus {
		return nil, pgx.ErrNoRows
	}
	session.Status = nextStatus
	copied := *session
	return &copied, nil
}

func (f *fakeGroupSessionStore) ConfirmIfScheduled(_ context.Context, sessionID int64, videoRoomURL string) (*models.GroupSession, error) {
	session, ok := f.sessions[sessionID]
	if !ok || session.Status != models.GroupSessionStatusScheduled {
		return nil, pgx.ErrNoRows
	}
	session.Status = models.GroupSessionStatusConfirmed
	session.VideoRoomURL = &videoRoomURL
	copied := *session
	return &copied, nil
}

func (f *fakeGroupSessionStore) List(_ context.Context, filter repository.GroupSessionListFilter) ([]models.GroupSessionDetail, error) {
	result := make([]models.GroupSessionDetail, 0)
	for _, session := range f.sessions {
		if filter.Role == "mentor" && session.MentorID != filter.ActorID {
			continue
		}
		if filter.Status != "" && session.Status != filter.Status {
			continue
		}
		result = append(result, models.GroupSessionDetail{
			GroupSession:     *session,
			ParticipantCount: len(f.participants[session.ID]),
		})
	}
	return result, nil
}

func (f *fakeGroupSessionStore) AddParticipant(_ context.Context, sessionID, consumerID int64) (*models.Participant, error) {
	for _, participant := range f.participants[sessionID] {
		if participant.ConsumerID == consumerID {
			return nil, &pgconn.PgError{Code: "23505"}
		}
	}
	f.nextID++
	participant := models.Participant{ID: f.nextID, SessionID: sessionID, ConsumerID: consumerID}
	f.participants[sessionID] = append(f.participants[sessionID], participant)
	return &participant, nil
}

func (f *fakeGroupSessionStore) RemoveParticipant(_ context.Context, sessionID, consumerID int64) (bool, error) {
	list := f.participants[sessionID]
	for i, participant := range list {
		if participant.ConsumerID == consumerID {
			f.participants[sessionID] = append(list[:i], list[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeGroupSessionStore) CountParticipants(_ context.Context, sessionID int64) (int, error) {
	return len(f.participants[sessionID]), nil
}

func (f *fakeGroupSessionStore) ListParticipants(_ context.Context, sessionID int64) ([]models.Participant, error) {
	return append([]models.Participant(nil), f.participants[sessionID]...), nil
}

func (f *fakeGroupSessionStore) MarkParticipantsRefundEligible(_ context.Context, sessionID int64) error {
	list := f.participants[sessionID]
	for i := range list {
		list[i].RefundEligible = true
	}
	return nil
}

func (f *fakeGroupSessionStore) ListQuorumExpired(_ context.Context, now time.Time, quorumHours int) ([]models.GroupSession, error) {
	result := make([]models.GroupSession, 0)
	for _, session := range f.sessions {
		if session.Status != models.GroupSessionStatusScheduled {
			continue
		}
		if len(f.participants[session.ID]) >= session.MinAttendees {
			continue
		}
		deadline := session.ScheduledAt.Add(-time.Duration(quorumHours) * time.Hour)
		if !deadline.After(now) {
			result = append(result, *session)
		}
	}
	return result, nil
}

func (f *fakeGroupSessionStore) CompleteDue(_ context.Context, now time.Time) ([]models.GroupSession, error) {
	completed := make([]models.GroupSession, 0)
	for _, session := range f.sessions {
		end := session.ScheduledAt.Add(time.Duration(session.DurationMinutes) * time.Minute)
		if session.Status == models.GroupSessionStatusConfirmed && end.Before(now) {
			session.Status = models.GroupSessionStatusCompleted
			completed = append(completed, *session)
		}
	}
	return completed, nil
}

type groupSessionFixture struct {
	store     *fakeGroupSessionStore
	users     *fakeUsers
	rooms     *fakeRooms
	reminders *fakeReminderScheduler
	notifier  *fakeNotifier
	events    *fakeEvents
	clock     *fakeClock
	service   *GroupSessionService
}

func newGroupSessionFixture(now time.Time) *groupSessionFixture {
	f := &groupSessionFixture{
		store: newFakeGroupSessionStore(),
		users: &fakeUsers{users: map[int64]*models.User{
			7:  {ID: 7, Email: "mentor@example.com", Role: "mentor"},
			42: {ID: 42, Email: "first@example.com", Role: "user"},
			43: {ID: 43, Email: "second@example.com", Role: "user"},
			44: {ID: 44, Email: "third@example.com", Role: "user"},
			45: {ID: 45, Email: "fourth@example.com", Role: "user"},
		}},
		rooms:     &fakeRooms{url: "https://video.example.com/session-room"},
		reminders: &fakeReminderScheduler{},
		notifier:  &fakeNotifier{},
		events:    &fakeEvents{},
		clock:     &fakeClock{now: now},
	}
	f.service = NewGroupSessionService(
		f.store,
		f.users,
		f.rooms,
		f.reminders,
		f.notifier,
		f.events,
		f.clock,
		DefaultPolicy(),
	)
	return f
}

func (f *groupSessionFixture) mustCreate(t *testing.T, input CreateGroupSessionInput) *models.GroupSession {
	t.Helper()
	session, err := f.service.Create(context.Background(), 7, input)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return session
}

func smallSessionInput(scheduledAt time.Time) CreateGroupSessionInput {
	return CreateGroupSessionInput{
		Title:           "Systems design office hours",
		ScheduledAt:     scheduledAt,
		DurationMinutes: 90,
		MaxCapacity:     3,
		MinAttendees:    2,
		PricePerPerson:  20,
	}
}

func TestCreateGroupSessionRejectsBadCapacity(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fixture := newGroupSessionFixture(now)
	scheduledAt := now.Add(48 * time.Hour)

	cases := []struct {
		name  string
		tweak func(*CreateGroupSessionInput)
	}{
		{"min below floor", func(in *CreateGroupSessionInput) { in.MinAttendees = 1 }},
		{"max above ceiling", func(in *CreateGroupSessionInput) { in.MaxCapacity = 51 }},
		{"min above max", func(in *CreateGroupSessionInput) { in.MinAttendees = 5; in.MaxCapacity = 4 }},
	}
	for _, tc := range cases {
		input := smallSessionInput(scheduledAt)
		tc.tweak(&input)
		if _, err := fixture.service.Create(context.Background(), 7, input); !errors.Is(err, ErrInvalidCapacity) {
			t.Fatalf("%s: expected ErrInvalidCapacity, got %v", tc.name, err)
		}
	}
}

func TestCreateGroupSessionRejectsShortLeadTime(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fixture := newGroupSessionFixture(now)

	input := smallSessionInput(now.Add(12 * time.Hour))
	if _, err := fixture.service.Create(context.Background(), 7, input); !errors.Is(err, ErrLeadTimeTooShort) {
		t.Fatalf("expected ErrLeadTimeTooShort, got %v", err)
	}
}

func TestJoinConfirmsSessionAtQuorum(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fixture := newGroupSessionFixture(now)
	session := fixture.mustCreate(t, smallSessionInput(now.Add(48*time.Hour)))

	first, err := fixture.service.Join(context.Background(), 42, session.ID)
	if err != nil {
		t.Fatalf("first Join: %v", err)
	}
	if first.Status != models.GroupSessionStatusScheduled {
		t.Fatalf("expected scheduled before quorum, got %q", first.Status)
	}
	if len(fixture.reminders.scheduled) != 0 {
		t.Fatalf("expected no reminders before quorum, got %v", fixture.reminders.scheduled)
	}

	second, err := fixture.service.Join(context.Background(), 43, session.ID)
	if err != nil {
		t.Fatalf("second Join: %v", err)
	}
	if second.Status != models.GroupSessionStatusConfirmed {
		t.Fatalf("expected confirmed at quorum, got %q", second.Status)
	}
	if second.ParticipantCount != 2 {
		t.Fatalf("expected participant count 2, got %d", second.ParticipantCount)
	}
	if second.VideoRoomURL == nil || *second.VideoRoomURL != "https://video.example.com/session-room" {
		t.Fatalf("expected provisioned room url, got %v", second.VideoRoomURL)
	}
	if len(fixture.reminders.scheduled) != 1 || fixture.reminders.scheduled[0] != models.ReminderSubjectGroupSession {
		t.Fatalf("expected one session reminder scheduling, got %v", fixture.reminders.scheduled)
	}
}

func TestJoinRejectsFullSession(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fixture := newGroupSessionFixture(now)
	session := fixture.mustCreate(t, smallSessionInput(now.Add(48*time.Hour)))

	for _, consumerID := range []int64{42, 43, 44} {
		if _, err := fixture.service.Join(context.Background(), consumerID, session.ID); err != nil {
			t.Fatalf("Join by %d: %v", consumerID, err)
		}
	}
	if _, err := fixture.service.Join(context.Background(), 45, session.ID); !errors.Is(err, ErrSessionFull) {
		t.Fatalf("expected ErrSessionFull, got %v", err)
	}
}

func TestJoinRejectsDuplicate(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fixture := newGroupSessionFixture(now)
	session := fixture.mustCreate(t, smallSessionInput(now.Add(48*time.Hour)))

	if _, err := fixture.service.Join(context.Background(), 42, session.ID); err != nil {
		t.Fatalf("first Join: %v", err)
	}
	if _, err := fixture.service.Join(context.Background(), 42, session.ID); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("expected ErrAlreadyJoined, got %v", err)
	}
}

func TestJoinRejectsOwnSession(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fixture := newGroupSessionFixture(now)
	session := fixture.mustCreate(t, smallSessionInput(now.Add(48*time.Hour)))

	if _, err := fixture.service.Join(context.Background(), 7, session.ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for the hosting mentor, got %v", err)
	}
}

func TestEditRejectedOnceParticipantsJoined(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fixture := newGroupSessionFixture(now)
	session := fixture.mustCreate(t, smallSessionInput(now.Add(48*time.Hour)))

	newAt := now.Add(72 * time.Hour)
	updated, err := fixture.service.Edit(context.Background(), 7, session.ID, &newAt, nil)
	if err != nil {
		t.Fatalf("Edit before joins: %v", err)
	}
	if !updated.ScheduledAt.Equal(newAt) {
		t.Fatalf("expected rescheduled start %v, got %v", newAt, updated.ScheduledAt)
	}

	if _, err := fixture.service.Join(context.Background(), 42, session.ID); err != nil {
		t.Fatalf("Join: %v", err)
	}
	later := now.Add(96 * time.Hour)
	if _, err := fixture.service.Edit(context.Background(), 7, session.ID, &later, nil); !errors.Is(err, ErrHasParticipants) {
		t.Fatalf("expected ErrHasParticipants, got %v", err)
	}
}

func TestCancelByMentorRefundsEveryParticipant(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fixture := newGroupSessionFixture(now)
	session := fixture.mustCreate(t, smallSessionInput(now.Add(26*time.Hour)))

	for _, consumerID := range []int64{42, 43} {
		if _, err := fixture.service.Join(context.Background(), consumerID, session.ID); err != nil {
			t.Fatalf("Join by %d: %v", consumerID, err)
		}
	}

	// 26 hours out would deny an individual refund under the 24h cutoff;
	// a mentor cancellation refunds regardless.
	cancelled, err := fixture.service.CancelByMentor(context.Background(), 7, session.ID)
	if err != nil {
		t.Fatalf("CancelByMentor: %v", err)
	}
	if cancelled.Status != models.GroupSessionStatusCancelled {
		t.Fatalf("expected cancelled status, got %q", cancelled.Status)
	}
	for _, participant := range fixture.store.participants[session.ID] {
		if !participant.RefundEligible {
			t.Fatalf("expected participant %d to be refund eligible", participant.ConsumerID)
		}
	}
}

func TestCancelByMentorRejectsWrongMentor(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fixture := newGroupSessionFixture(now)
	session := fixture.mustCreate(t, smallSessionInput(now.Add(48*time.Hour)))

	if _, err := fixture.service.CancelByMentor(context.Background(), 8, session.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCancelByParticipantBeforeConfirmation(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fixture := newGroupSessionFixture(now)
	session := fixture.mustCreate(t, smallSessionInput(now.Add(48*time.Hour)))

	if _, err := fixture.service.Join(context.Background(), 42, session.ID); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := fixture.service.CancelByParticipant(context.Background(), 42, session.ID); err != nil {
		t.Fatalf("CancelByParticipant: %v", err)
	}
	if len(fixture.store.participants[session.ID]) != 0 {
		t.Fatalf("expected the seat to be released")
	}
	if err := fixture.service.CancelByParticipant(context.Background(), 42, session.ID); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("expected ErrNotJoined on second leave, got %v", err)
	}
}

func TestCancelByParticipantRejectedAfterConfirmation(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fixture := newGroupSessionFixture(now)
	session := fixture.mustCreate(t, smallSessionInput(now.Add(48*time.Hour)))

	for _, consumerID := range []int64{42, 43} {
		if _, err := fixture.service.Join(context.Background(), consumerID, session.ID); err != nil {
			t.Fatalf("Join by %d: %v", consumerID, err)
		}
	}
	if err := fixture.service.CancelByParticipant(context.Background(), 42, session.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState after confirmation, got %v", err)
	}
}

func TestSweepQuorumDeadlineCancelsUnderQuorumSessions(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fixture := newGroupSessionFixture(now)

	// Inside the 24h quorum window with a single participant.
	underQuorum := fixture.mustCreate(t, smallSessionInput(now.Add(30*time.Hour)))
	if _, err := fixture.service.Join(context.Background(), 42, underQuorum.ID); err != nil {
		t.Fatalf("Join: %v", err)
	}
	fixture.clock.now = now.Add(7 * time.Hour)

	// Still outside its quorum window; must be left alone.
	farOut := fixture.mustCreate(t, smallSessionInput(now.Add(200 * time.Hour)))

	cancelled, err := fixture.service.SweepQuorumDeadline(context.Background())
	if err != nil {
		t.Fatalf("SweepQuorumDeadline: %v", err)
	}
	if cancelled != 1 {
		t.Fatalf("expected 1 cancellation, got %d", cancelled)
	}
	if fixture.store.sessions[underQuorum.ID].Status != models.GroupSessionStatusCancelled {
		t.Fatalf("expected under-quorum session cancelled, got %q", fixture.store.sessions[underQuorum.ID].Status)
	}
	if fixture.store.sessions[farOut.ID].Status != models.GroupSessionStatusScheduled {
		t.Fatalf("expected far-out session untouched, got %q", fixture.store.sessions[farOut.ID].Status)
	}
	for _, participant := range fixture.store.participants[underQuorum.ID] {
		if !participant.RefundEligible {
			t.Fatalf("expected participant %d to be refund eligible", participant.ConsumerID)
		}
	}
}

func TestSweepQuorumDeadlineSparesConfirmedSessions(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	fixture := newGroupSessionFixture(now)
	session := fixture.mustCreate(t, smallSessionInput(now.Add(30*time.Hour)))

	for _, consumerID := range []int64{42, 43} {
		if _, err := fixture.service.Join(context.Background(), consumerID, session.ID); err != nil {
			t.Fatalf("Join by %d: %v", consumerID, err)
		}
	}
	fixture.clock.now = now.Add(7 * time.Hour)

	cancelled, err := fixture.service.SweepQuorumDeadline(context.Background())
	if err != nil {
		t.Fatalf("SweepQuorumDeadline: %v", err)
	}
	if cancelled != 0 {
		t.Fatalf("expected no cancellations, got %d", cancelled)
	}
	if fixture.store.sessions[session.ID].Status != models.GroupSessionStatusConfirmed {
		t.Fatalf("expected confirmed session to survive the sweep, got %q", fixture.store.sessions[session.ID].Status)
	}
}
