package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/nkamali/MentorAppBack/internal/models"
	"github.com/nkamali/MentorAppBack/internal/services"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

type StripeWebhookHandler struct {
	webhookSecret string
	payments      paymentWebhookService
	booking       callConfirmService
}

type paymentWebhookService interface {
	MarkPaidBySessionID(ctx context.Context, stripeSessionID string) (int64, error)
}

type callConfirmService interface {
	Confirm(ctx context.Context, callID int64) (*models.Call, error)
}

func NewStripeWebhookHandler(
	webhookSecret string,
	payments paymentWebhookService,
	booking callConfirmService,
) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		webhookSecret: webhookSecret,
		payments:      payments,
		booking:       booking,
	}
}

// HandleWebhook receives Stripe events. checkout.session.completed marks the
// payment PAID and confirms the call; everything in Confirm past the state
// flip is best-effort, so a Stripe retry of the same event is harmless.
func (h *StripeWebhookHandler) HandleWebhook(c *fiber.Ctx) error {
	event, err := webhook.ConstructEvent(c.Body(), c.Get("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		log.Printf("stripe: webhook signature verification failed: %v", err)
		return c.SendStatus(fiber.StatusBadRequest)
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			log.Printf("stripe: parsing checkout.session failed: %v", err)
			return c.SendStatus(fiber.StatusBadRequest)
		}
		if sess.ID == "" {
			log.Printf("stripe: checkout.session.completed carried no session id")
			return c.SendStatus(fiber.StatusBadRequest)
		}

		callID, err := h.payments.MarkPaidBySessionID(c.Context(), sess.ID)
		if err != nil {
			if errors.Is(err, services.ErrInvalidState) {
				// Duplicate delivery; the payment was already marked paid.
				return c.SendStatus(fiber.StatusOK)
			}
			if errors.Is(err, pgx.ErrNoRows) {
				log.Printf("stripe: no payment found for session %s", sess.ID)
				return c.SendStatus(fiber.StatusOK)
			}
			log.Printf("stripe: marking session %s paid failed: %v", sess.ID, err)
			return c.SendStatus(fiber.StatusInternalServerError)
		}

		if _, err := h.booking.Confirm(c.Context(), callID); err != nil {
			if errors.Is(err, services.ErrInvalidState) {
				// Call already left REQUESTED (confirmed earlier, cancelled,
				// or expired). Nothing more to do for this event.
				return c.SendStatus(fiber.StatusOK)
			}
			log.Printf("stripe: confirming call %d after payment failed: %v", callID, err)
			return c.SendStatus(fiber.StatusInternalServerError)
		}

	default:
		log.Printf("stripe: unhandled event type: %s", event.Type)
	}

	return c.SendStatus(fiber.StatusOK)
}
