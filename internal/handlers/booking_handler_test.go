package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/nkamali/MentorAppBack/internal/models"
	"github.com/nkamali/MentorAppBack/internal/repository"
	"github.com/nkamali/MentorAppBack/internal/services"
)

type stubBookingService struct {
	requestResult  *models.CallDetail
	requestErr     error
	declineResult  *models.Call
	declineErr     error
	cancelResult   *models.Call
	cancelErr      error
	getResult      *models.CallDetail
	getErr         error
	listResult     []models.CallDetail
	listErr        error
	lastActorID    int64
	lastRole       string
	lastCallID     int64
	lastInput      services.RequestCallInput
	lastListFilter repository.CallListFilter
}

func (s *stubBookingService) Request(_ context.Context, consumerID int64, input services.RequestCallInput) (*models.CallDetail, error) {
	s.lastActorID = consumerID
	s.lastInput = input
	return s.requestResult, s.requestErr
}

func (s *stubBookingService) Decline(_ context.Context, mentorID int64, callID int64) (*models.Call, error) {
	s.lastActorID = mentorID
	s.lastCallID = callID
	return s.declineResult, s.declineErr
}

func (s *stubBookingService) Cancel(_ context.Context, actorID int64, role string, callID int64) (*models.Call, error) {
	s.lastActorID = actorID
	s.lastRole = role
	s.lastCallID = callID
	return s.cancelResult, s.cancelErr
}

func (s *stubBookingService) GetCall(_ context.Context, actorID int64, role string, callID int64) (*models.CallDetail, error) {
	s.lastActorID = actorID
	s.lastRole = role
	s.lastCallID = callID
	return s.getResult, s.getErr
}

func (s *stubBookingService) ListCalls(_ context.Context, actorID int64, role string, filter repository.CallListFilter) ([]models.CallDetail, error) {
	s.lastActorID = actorID
	s.lastRole = role
	s.lastListFilter = filter
	return s.listResult, s.listErr
}

type stubCheckoutService struct {
	checkoutURL    string
	checkoutErr    error
	refundErr      error
	checkedOutCall int64
	refundedCalls  []int64
}

func (s *stubCheckoutService) CreateCheckoutForCall(_ context.Context, callID int64, _, _ string) (string, error) {
	s.checkedOutCall = callID
	return s.checkoutURL, s.checkoutErr
}

func (s *stubCheckoutService) RefundCall(_ context.Context, callID int64) error {
	s.refundedCalls = append(s.refundedCalls, callID)
	return s.refundErr
}

type stubUserReader struct {
	user *models.User
	err  error
}

func (s *stubUserReader) GetByID(_ context.Context, _ int64) (*models.User, error) {
	return s.user, s.err
}

func withIdentity(app *fiber.App, userID int64, role string) {
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		c.Locals("role", role)
		return c.Next()
	})
}

func TestRequestCallReturnsCreatedCall(t *testing.T) {
	service := &stubBookingService{
		requestResult: &models.CallDetail{
			Call: models.Call{
				ID:              91,
				MentorID:        7,
				ConsumerID:      42,
				Status:          "requested",
				DurationMinutes: 60,
			},
			Payment: &models.Payment{Status: "placeholder"},
		},
	}
	handler := &BookingHandler{service: service, checkout: &stubCheckoutService{}, users: &stubUserReader{}}

	app := fiber.New()
	withIdentity(app, 42, "user")
	app.Post("/api/v1/calls", handler.RequestCall)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/calls", strings.NewReader(`{
		"mentor_id": 7,
		"scheduled_at": "2026-03-15T09:00:00Z",
		"duration_minutes": 60
	}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if service.lastActorID != 42 {
		t.Fatalf("expected actor id 42, got %d", service.lastActorID)
	}
	if service.lastInput.MentorID != 7 || service.lastInput.DurationMinutes != 60 {
		t.Fatalf("unexpected forwarded input: %+v", service.lastInput)
	}
	if want := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC); !service.lastInput.ScheduledAt.Equal(want) {
		t.Fatalf("expected scheduled_at %v, got %v", want, service.lastInput.ScheduledAt)
	}
}

func TestRequestCallRejectsMentorCaller(t *testing.T) {
	handler := &BookingHandler{service: &stubBookingService{}, checkout: &stubCheckoutService{}, users: &stubUserReader{}}

	app := fiber.New()
	withIdentity(app, 7, "mentor")
	app.Post("/api/v1/calls", handler.RequestCall)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/calls", strings.NewReader(`{"mentor_id": 9}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestRequestCallReturnsConflictWhenSlotTaken(t *testing.T) {
	service := &stubBookingService{requestErr: services.ErrSlotTaken}
	handler := &BookingHandler{service: service, checkout: &stubCheckoutService{}, users: &stubUserReader{}}

	app := fiber.New()
	withIdentity(app, 42, "user")
	app.Post("/api/v1/calls", handler.RequestCall)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/calls", strings.NewReader(`{
		"mentor_id": 7,
		"scheduled_at": "2026-03-15T09:00:00Z",
		"duration_minutes": 60
	}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestCheckoutReturnsStripeURL(t *testing.T) {
	service := &stubBookingService{
		getResult: &models.CallDetail{Call: models.Call{
			ID:          55,
			ConsumerID:  42,
			MentorID:    7,
			ScheduledAt: time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC),
			Status:      models.CallStatusRequested,
		}},
	}
	checkout := &stubCheckoutService{checkoutURL: "https://checkout.stripe.com/pay/cs_test_123"}
	users := &stubUserReader{user: &models.User{ID: 42, Email: "learner@example.com", Role: "user"}}
	handler := &BookingHandler{service: service, checkout: checkout, users: users}

	app := fiber.New()
	withIdentity(app, 42, "user")
	app.Post("/api/v1/calls/:id/checkout", handler.Checkout)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/calls/55/checkout", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if checkout.checkedOutCall != 55 {
		t.Fatalf("expected checkout for call 55, got %d", checkout.checkedOutCall)
	}

	var body struct {
		CheckoutURL string `json:"checkout_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body.CheckoutURL != checkout.checkoutURL {
		t.Fatalf("expected checkout url in response, got %q", body.CheckoutURL)
	}
}

func TestCheckoutRejectsConfirmedCall(t *testing.T) {
	service := &stubBookingService{
		getResult: &models.CallDetail{Call: models.Call{ID: 55, ConsumerID: 42, Status: models.CallStatusConfirmed}},
	}
	handler := &BookingHandler{service: service, checkout: &stubCheckoutService{}, users: &stubUserReader{}}

	app := fiber.New()
	withIdentity(app, 42, "user")
	app.Post("/api/v1/calls/:id/checkout", handler.Checkout)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/calls/55/checkout", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestCancelKicksRefundWhenEligible(t *testing.T) {
	eligible := true
	service := &stubBookingService{
		cancelResult: &models.Call{ID: 55, ConsumerID: 42, Status: models.CallStatusCancelled, RefundEligible: &eligible},
	}
	checkout := &stubCheckoutService{}
	handler := &BookingHandler{service: service, checkout: checkout, users: &stubUserReader{}}

	app := fiber.New()
	withIdentity(app, 42, "user")
	app.Post("/api/v1/calls/:id/cancel", handler.Cancel)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/calls/55/cancel", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(checkout.refundedCalls) != 1 || checkout.refundedCalls[0] != 55 {
		t.Fatalf("expected refund kick-off for call 55, got %v", checkout.refundedCalls)
	}
}

func TestCancelSkipsRefundWhenNotEligible(t *testing.T) {
	notEligible := false
	service := &stubBookingService{
		cancelResult: &models.Call{ID: 55, ConsumerID: 42, Status: models.CallStatusCancelled, RefundEligible: &notEligible},
	}
	checkout := &stubCheckoutService{}
	handler := &BookingHandler{service: service, checkout: checkout, users: &stubUserReader{}}

	app := fiber.New()
	withIdentity(app, 42, "user")
	app.Post("/api/v1/calls/:id/cancel", handler.Cancel)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/calls/55/cancel", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(checkout.refundedCalls) != 0 {
		t.Fatalf("expected no refund kick-off, got %v", checkout.refundedCalls)
	}
}

func TestDeclineRejectsNonMentorCaller(t *testing.T) {
	handler := &BookingHandler{service: &stubBookingService{}, checkout: &stubCheckoutService{}, users: &stubUserReader{}}

	app := fiber.New()
	withIdentity(app, 42, "user")
	app.Post("/api/v1/calls/:id/decline", handler.Decline)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/calls/55/decline", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestGetCallReturnsNotFound(t *testing.T) {
	service := &stubBookingService{getErr: pgx.ErrNoRows}
	handler := &BookingHandler{service: service, checkout: &stubCheckoutService{}, users: &stubUserReader{}}

	app := fiber.New()
	withIdentity(app, 42, "user")
	app.Get("/api/v1/calls/:id", handler.GetCall)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/calls/999", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestListCallsPassesFilterAndRejectsBadTimeframe(t *testing.T) {
	service := &stubBookingService{
		listResult: []models.CallDetail{{Call: models.Call{ID: 5, Status: "confirmed"}}},
	}
	handler := &BookingHandler{service: service, checkout: &stubCheckoutService{}, users: &stubUserReader{}}

	app := fiber.New()
	withIdentity(app, 7, "mentor")
	app.Get("/api/v1/calls", handler.ListCalls)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/calls?status=confirmed&timeframe=upcoming", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastRole != "mentor" {
		t.Fatalf("expected mentor role, got %q", service.lastRole)
	}
	if service.lastListFilter.Status != "confirmed" || service.lastListFilter.Timeframe != "upcoming" {
		t.Fatalf("unexpected filter: %+v", service.lastListFilter)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/calls?timeframe=yesterday", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad timeframe, got %d", resp.StatusCode)
	}
}
