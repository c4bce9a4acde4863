package models

import "time"

const (
	PaymentStatusPlaceholder = "placeholder"
	PaymentStatusPaid        = "paid"
	PaymentStatusRefunded    = "refunded"
)

type Payment struct {
	ID              int64     `json:"id"`
	CallID          int64     `json:"call_id"`
	UserID          int64     `json:"user_id"`
	MentorID        int64     `json:"mentor_id"`
	Amount          float64   `json:"amount"`
	Status          string    `json:"status"`
	StripeSessionID *string   `json:"stripe_session_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
