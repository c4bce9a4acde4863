package handlers

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nkamali/MentorAppBack/internal/models"
	"github.com/nkamali/MentorAppBack/internal/services"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test_secret"

type stubPaymentWebhookService struct {
	callID        int64
	err           error
	lastSessionID string
}

func (s *stubPaymentWebhookService) MarkPaidBySessionID(_ context.Context, stripeSessionID string) (int64, error) {
	s.lastSessionID = stripeSessionID
	return s.callID, s.err
}

type stubCallConfirmService struct {
	result     *models.Call
	err        error
	lastCallID int64
}

func (s *stubCallConfirmService) Confirm(_ context.Context, callID int64) (*models.Call, error) {
	s.lastCallID = callID
	return s.result, s.err
}

func newSignedRequest(payload string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	now := time.Now()
	signature := webhook.ComputeSignature(now, []byte(payload), testWebhookSecret)
	req.Header.Set("Stripe-Signature",
		fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(signature)))
	return req
}

func eventPayload(eventType, dataObject string) string {
	return fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"api_version": %q,
		"type": %q,
		"data": {"object": %s}
	}`, stripe.APIVersion, eventType, dataObject)
}

func checkoutCompletedPayload() string {
	return eventPayload("checkout.session.completed", `{"id": "cs_test_123", "object": "checkout.session"}`)
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	handler := NewStripeWebhookHandler(testWebhookSecret, &stubPaymentWebhookService{}, &stubCallConfirmService{})

	app := fiber.New()
	app.Post("/api/webhooks/stripe", handler.HandleWebhook)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader(checkoutCompletedPayload()))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHandleWebhookMarksPaidAndConfirms(t *testing.T) {
	payments := &stubPaymentWebhookService{callID: 55}
	booking := &stubCallConfirmService{result: &models.Call{ID: 55, Status: models.CallStatusConfirmed}}
	handler := NewStripeWebhookHandler(testWebhookSecret, payments, booking)

	app := fiber.New()
	app.Post("/api/webhooks/stripe", handler.HandleWebhook)

	resp, err := app.Test(newSignedRequest(checkoutCompletedPayload()))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if payments.lastSessionID != "cs_test_123" {
		t.Fatalf("expected session cs_test_123, got %q", payments.lastSessionID)
	}
	if booking.lastCallID != 55 {
		t.Fatalf("expected confirmation of call 55, got %d", booking.lastCallID)
	}
}

func TestHandleWebhookTreatsDuplicateDeliveryAsSuccess(t *testing.T) {
	payments := &stubPaymentWebhookService{err: services.ErrInvalidState}
	booking := &stubCallConfirmService{}
	handler := NewStripeWebhookHandler(testWebhookSecret, payments, booking)

	app := fiber.New()
	app.Post("/api/webhooks/stripe", handler.HandleWebhook)

	resp, err := app.Test(newSignedRequest(checkoutCompletedPayload()))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for a duplicate delivery, got %d", resp.StatusCode)
	}
	if booking.lastCallID != 0 {
		t.Fatalf("expected no confirmation attempt, got call %d", booking.lastCallID)
	}
}

func TestHandleWebhookIgnoresUnrelatedEvents(t *testing.T) {
	payments := &stubPaymentWebhookService{}
	handler := NewStripeWebhookHandler(testWebhookSecret, payments, &stubCallConfirmService{})

	app := fiber.New()
	app.Post("/api/webhooks/stripe", handler.HandleWebhook)

	payload := eventPayload("invoice.created", `{}`)
	resp, err := app.Test(newSignedRequest(payload))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if payments.lastSessionID != "" {
		t.Fatalf("expected no payment lookup, got %q", payments.lastSessionID)
	}
}
