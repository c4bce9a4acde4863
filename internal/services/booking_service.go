package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nkamali/MentorAppBack/internal/models"
	"github.com/nkamali/MentorAppBack/internal/repository"
)

type callStore interface {
	Create(ctx context.Context, input repository.CreateCallInput) (*models.Call, error)
	GetByID(ctx context.Context, callID int64) (*models.Call, error)
	List(ctx context.Context, filter repository.CallListFilter) ([]models.Call, error)
	HasConflict(ctx context.Context, mentorID int64, scheduledAt time.Time, durationMinutes int) (bool, error)
	ConfirmIfRequested(ctx context.Context, callID int64, videoRoomURL string) (*models.Call, error)
	CancelIfCurrent(ctx context.Context, callID int64, currentStatus string, cancelledBy string, refundEligible *bool) (*models.Call, error)
	CompleteDue(ctx context.Context, now time.Time) ([]models.Call, error)
	ExpireRequestedBefore(ctx context.Context, cutoff time.Time) ([]models.Call, error)
}

type paymentStore interface {
	Create(ctx context.Context, input repository.CreatePaymentInput) (*models.Payment, error)
	GetByCallID(ctx context.Context, callID int64) (*models.Payment, error)
	ListByCallIDs(ctx context.Context, callIDs []int64) (map[int64]models.Payment, error)
}

type userReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

type mentorProfileReader interface {
	GetByUserID(ctx context.Context, userID int64) (*models.MentorProfile, error)
}

type startsResolver interface {
	ListAvailableStarts(ctx context.Context, mentorID int64, fromDate time.Time, toDate time.Time, durationMinutes int) ([]time.Time, error)
}

type reminderScheduler interface {
	ScheduleForSubject(ctx context.Context, subjectType string, subjectID int64, scheduledAt time.Time) error
}

// BookingService is the one-on-one call state machine:
// REQUESTED -> CONFIRMED -> COMPLETED, with CANCELLED reachable from the two
// non-terminal states. Per-mentor serialization guards the no-overlap
// invariant; the calls table's exclusion constraint backs it up.
type BookingService struct {
	calls          callStore
	payments       paymentStore
	users          userReader
	mentorProfiles mentorProfileReader
	resolver       startsResolver
	rooms          RoomProvisioner
	reminders      reminderScheduler
	notifier       Notifier
	events         EventPublisher
	clock          Clock
	policy         Policy
	locks          *keyedMutex
}

func NewBookingService(
	calls callStore,
	payments paymentStore,
	users userReader,
	mentorProfiles mentorProfileReader,
	resolver startsResolver,
	rooms RoomProvisioner,
	reminders reminderScheduler,
	notifier Notifier,
	events EventPublisher,
	clock Clock,
	policy Policy,
) *BookingService {
	return &BookingService{
		calls:          calls,
		payments:       payments,
		users:          users,
		mentorProfiles: mentorProfiles,
		resolver:       resolver,
		rooms:          rooms,
		reminders:      reminders,
		notifier:       notifier,
		events:         events,
		clock:          clock,
		policy:         policy,
		locks:          newKeyedMutex(),
	}
}

type RequestCallInput struct {
	MentorID        int64
	ScheduledAt     time.Time
	DurationMinutes int
}

// Request re-validates the start against the resolver at call time; a client's
// cached slot list is never trusted.
func (s *BookingService) Request(
	ctx context.Context,
	consumerID int64,
	input RequestCallInput,
) (*models.CallDetail, error) {
	if consumerID <= 0 || input.MentorID <= 0 {
		return nil, ErrInvalidInput
	}
	if consumerID == input.MentorID {
		return nil, ErrInvalidInput
	}
	if !s.policy.durationAllowed(input.DurationMinutes) {
		return nil, ErrInvalidInput
	}

	scheduledAt := input.ScheduledAt.UTC().Truncate(time.Minute)
	if !scheduledAt.After(s.clock.Now()) {
		return nil, ErrSlotUnavailable
	}

	mentor, err := s.users.GetByID(ctx, input.MentorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMentorNotFound
		}
		return nil, err
	}
	if mentor.Role != "mentor" {
		return nil, ErrMentorNotFound
	}

	profile, err := s.mentorProfiles.GetByUserID(ctx, input.MentorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMentorNotFound
		}
		return nil, err
	}
	if profile.HourlyRate == nil || *profile.HourlyRate <= 0 {
		return nil, ErrInvalidInput
	}
	price := *profile.HourlyRate * float64(input.DurationMinutes) / 60

	key := mentorKey(input.MentorID)
	s.locks.lock(key)
	defer s.locks.unlock(key)

	// Resolve a window wide enough that the slot's timezone cannot move the
	// requested instant outside it.
	base := truncateToDay(scheduledAt)
	starts, err := s.resolver.ListAvailableStarts(
		ctx,
		input.MentorID,
		base.AddDate(0, 0, -1),
		base.AddDate(0, 0, 1),
		input.DurationMinutes,
	)
	if err != nil {
		return nil, err
	}
	if !containsInstant(starts, scheduledAt) {
		return nil, ErrSlotUnavailable
	}

	hasConflict, err := s.calls.HasConflict(ctx, input.MentorID, scheduledAt, input.DurationMinutes)
	if err != nil {
		return nil, err
	}
	if hasConflict {
		return nil, ErrSlotTaken
	}

	call, err := s.calls.Create(ctx, repository.CreateCallInput{
		MentorID:        input.MentorID,
		ConsumerID:      consumerID,
		ScheduledAt:     scheduledAt,
		DurationMinutes: input.DurationMinutes,
		Price:           price,
	})
	if err != nil {
		// The exclusion constraint fires when another instance won the race;
		// last writer loses.
		if repository.IsExclusionViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}

	payment, err := s.payments.Create(ctx, repository.CreatePaymentInput{
		CallID:   call.ID,
		UserID:   consumerID,
		MentorID: input.MentorID,
		Amount:   price,
		Status:   models.PaymentStatusPlaceholder,
	})
	if err != nil {
		return nil, err
	}

	return &models.CallDetail{Call: *call, Payment: payment}, nil
}

// Confirm is invoked by the payment collaborator once capture succeeded. It
// provisions the video room, flips REQUESTED -> CONFIRMED and schedules the
// reminders. Reminder or notification failures never roll the transition back.
func (s *BookingService) Confirm(ctx context.Context, callID int64) (*models.Call, error) {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.Status != models.CallStatusRequested {
		return nil, ErrInvalidState
	}

	roomURL, err := s.rooms.ProvisionRoom(ctx, models.ReminderSubjectCall, callID)
	if err != nil {
		log.Printf("booking: room provisioning failed for call %d, using fallback: %v", callID, err)
		roomURL = fallbackRoomURL(models.ReminderSubjectCall, callID)
	}

	confirmed, err := s.calls.ConfirmIfRequested(ctx, callID, roomURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidState
		}
		return nil, err
	}

	if err := s.reminders.ScheduleForSubject(
		ctx,
		models.ReminderSubjectCall,
		confirmed.ID,
		confirmed.ScheduledAt,
	); err != nil {
		log.Printf("booking: scheduling reminders for call %d failed: %v", confirmed.ID, err)
	}

	s.publish(confirmed.ConsumerID, Event{Type: "call_confirmed", SubjectType: models.ReminderSubjectCall, SubjectID: confirmed.ID})
	s.publish(confirmed.MentorID, Event{Type: "call_confirmed", SubjectType: models.ReminderSubjectCall, SubjectID: confirmed.ID})
	s.email(ctx, confirmed.ConsumerID, "Your call is confirmed",
		"Your mentor call has been confirmed. The video room link is available in the app.")

	return confirmed, nil
}

// Decline lets the mentor reject a call that was never confirmed.
func (s *BookingService) Decline(ctx context.Context, mentorID int64, callID int64) (*models.Call, error) {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.MentorID != mentorID {
		return nil, ErrForbidden
	}
	if call.Status != models.CallStatusRequested {
		return nil, ErrInvalidState
	}

	declined, err := s.calls.CancelIfCurrent(ctx, callID, models.CallStatusRequested, "mentor", nil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidState
		}
		return nil, err
	}

	s.publish(declined.ConsumerID, Event{Type: "call_declined", SubjectType: models.ReminderSubjectCall, SubjectID: declined.ID})
	s.email(ctx, declined.ConsumerID, "Your call request was declined",
		"The mentor declined your call request. No payment was captured.")

	return declined, nil
}

// Cancel moves a REQUESTED or CONFIRMED call to CANCELLED and stamps the
// refund decision for the payment collaborator to act on.
func (s *BookingService) Cancel(
	ctx context.Context,
	actorID int64,
	role string,
	callID int64,
) (*models.Call, error) {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}
	if !canAccessCall(role, actorID, call) {
		return nil, ErrForbidden
	}
	if call.Status != models.CallStatusRequested && call.Status != models.CallStatusConfirmed {
		return nil, ErrInvalidState
	}

	eligible := RefundEligible(call.ScheduledAt, s.clock.Now(), s.policy.RefundCutoff)
	cancelled, err := s.calls.CancelIfCurrent(ctx, callID, call.Status, role, &eligible)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidState
		}
		return nil, err
	}

	counterparty := cancelled.MentorID
	if role == "mentor" {
		counterparty = cancelled.ConsumerID
	}
	s.publish(counterparty, Event{Type: "call_cancelled", SubjectType: models.ReminderSubjectCall, SubjectID: cancelled.ID})
	s.email(ctx, counterparty, "A call was cancelled",
		"One of your upcoming calls has been cancelled. Check the app for details.")

	return cancelled, nil
}

// MarkCompleted transitions CONFIRMED calls past their end time to COMPLETED.
// Idempotent; safe to run on a schedule.
func (s *BookingService) MarkCompleted(ctx context.Context) (int, error) {
	completed, err := s.calls.CompleteDue(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if len(completed) > 0 {
		log.Printf("booking: marked %d calls completed", len(completed))
	}
	return len(completed), nil
}

// ExpireStaleRequests cancels REQUESTED calls whose payment capture never
// arrived within the configured TTL, so abandoned requests stop holding slots.
func (s *BookingService) ExpireStaleRequests(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.policy.RequestTTL)
	expired, err := s.calls.ExpireRequestedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(expired) > 0 {
		log.Printf("booking: expired %d stale call requests", len(expired))
	}
	return len(expired), nil
}

func (s *BookingService) GetCall(
	ctx context.Context,
	actorID int64,
	role string,
	callID int64,
) (*models.CallDetail, error) {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}
	if !canAccessCall(role, actorID, call) {
		return nil, ErrForbidden
	}

	detail := &models.CallDetail{Call: *call}
	payment, err := s.payments.GetByCallID(ctx, callID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err == nil {
		detail.Payment = payment
	}
	return detail, nil
}

func (s *BookingService) ListCalls(
	ctx context.Context,
	actorID int64,
	role string,
	filter repository.CallListFilter,
) ([]models.CallDetail, error) {
	calls, err := s.calls.List(ctx, repository.CallListFilter{
		ActorID:   actorID,
		Role:      role,
		Status:    filter.Status,
		Timeframe: filter.Timeframe,
	})
	if err != nil {
		return nil, err
	}

	callIDs := make([]int64, 0, len(calls))
	for _, call := range calls {
		callIDs = append(callIDs, call.ID)
	}

	paymentsByCall, err := s.payments.ListByCallIDs(ctx, callIDs)
	if err != nil {
		return nil, err
	}

	details := make([]models.CallDetail, 0, len(calls))
	for _, call := range calls {
		detail := models.CallDetail{Call: call}
		if payment, ok := paymentsByCall[call.ID]; ok {
			paymentCopy := payment
			detail.Payment = &paymentCopy
		}
		details = append(details, detail)
	}

	return details, nil
}

func (s *BookingService) publish(userID int64, event Event) {
	if s.events != nil {
		s.events.Publish(userID, event)
	}
}

func (s *BookingService) email(ctx context.Context, userID int64, subject, body string) {
	if s.notifier == nil {
		return
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		log.Printf("booking: lookup of user %d for notification failed: %v", userID, err)
		return
	}
	if err := s.notifier.Send(ctx, user.Email, "", subject, body); err != nil {
		log.Printf("booking: notification to %s failed: %v", user.Email, err)
	}
}

func canAccessCall(role string, actorID int64, call *models.Call) bool {
	if role == "user" {
		return call.ConsumerID == actorID
	}
	if role == "mentor" {
		return call.MentorID == actorID
	}
	return false
}

func containsInstant(starts []time.Time, at time.Time) bool {
	for _, start := range starts {
		if start.Equal(at) {
			return true
		}
	}
	return false
}
