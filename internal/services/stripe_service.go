package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/nkamali/MentorAppBack/internal/models"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/refund"
)

type stripePaymentStore interface {
	GetByCallID(ctx context.Context, callID int64) (*models.Payment, error)
	GetByStripeSessionID(ctx context.Context, stripeSessionID string) (*models.Payment, error)
	SetStripeSessionID(ctx context.Context, paymentID int64, stripeSessionID string) error
	UpdateStatusIfCurrent(ctx context.Context, paymentID int64, currentStatus string, nextStatus string) (*models.Payment, error)
}

// StripeService is the payment-collection collaborator. The scheduling core
// only records payment rows and refund eligibility; actual money movement
// happens here and is reported back through the Checkout webhook.
type StripeService struct {
	payments   stripePaymentStore
	successURL string
	cancelURL  string
}

func NewStripeService(payments stripePaymentStore, apiKey, successURL, cancelURL string) *StripeService {
	stripe.Key = apiKey
	return &StripeService{
		payments:   payments,
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

// CreateCheckoutForCall builds a Stripe Checkout session for the call's
// placeholder payment and stores the session ID so the webhook can find the
// payment later. Returns the hosted checkout URL.
func (s *StripeService) CreateCheckoutForCall(
	ctx context.Context,
	callID int64,
	customerEmail string,
	description string,
) (string, error) {
	payment, err := s.payments.GetByCallID(ctx, callID)
	if err != nil {
		return "", err
	}
	if payment.Status != models.PaymentStatusPlaceholder {
		return "", ErrInvalidState
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(string(stripe.CurrencyUSD)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(description),
					},
					UnitAmount: stripe.Int64(toCents(payment.Amount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:    stripe.String(s.successURL),
		CancelURL:     stripe.String(s.cancelURL),
		CustomerEmail: stripe.String(customerEmail),
	}

	sess, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session for call %d: %w", callID, err)
	}

	if err := s.payments.SetStripeSessionID(ctx, payment.ID, sess.ID); err != nil {
		return "", err
	}
	return sess.URL, nil
}

// MarkPaidBySessionID flips the payment to PAID when the Checkout webhook
// reports completion, and returns the call it belongs to. The guarded update
// makes duplicate webhook deliveries a no-op.
func (s *StripeService) MarkPaidBySessionID(ctx context.Context, stripeSessionID string) (int64, error) {
	payment, err := s.payments.GetByStripeSessionID(ctx, stripeSessionID)
	if err != nil {
		return 0, err
	}

	if _, err := s.payments.UpdateStatusIfCurrent(
		ctx,
		payment.ID,
		models.PaymentStatusPlaceholder,
		models.PaymentStatusPaid,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrInvalidState
		}
		return 0, err
	}
	return payment.CallID, nil
}

// RefundCall kicks off a Stripe refund for a cancelled call's payment. Called
// only when the core stamped the call refund-eligible; a payment that never
// reached PAID has nothing to refund.
func (s *StripeService) RefundCall(ctx context.Context, callID int64) error {
	payment, err := s.payments.GetByCallID(ctx, callID)
	if err != nil {
		return err
	}
	if payment.Status != models.PaymentStatusPaid {
		log.Printf("stripe: call %d payment is %s, nothing to refund", callID, payment.Status)
		return nil
	}
	if payment.StripeSessionID == nil || *payment.StripeSessionID == "" {
		return fmt.Errorf("refund call %d: payment has no checkout session", callID)
	}

	sess, err := session.Get(*payment.StripeSessionID, nil)
	if err != nil {
		return fmt.Errorf("refund call %d: fetch session: %w", callID, err)
	}
	if sess.PaymentIntent == nil || sess.PaymentIntent.ID == "" {
		return fmt.Errorf("refund call %d: no payment intent on session %s", callID, *payment.StripeSessionID)
	}

	if _, err := refund.New(&stripe.RefundParams{
		PaymentIntent: stripe.String(sess.PaymentIntent.ID),
	}); err != nil {
		return fmt.Errorf("refund call %d: %w", callID, err)
	}

	if _, err := s.payments.UpdateStatusIfCurrent(
		ctx,
		payment.ID,
		models.PaymentStatusPaid,
		models.PaymentStatusRefunded,
	); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	return nil
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
