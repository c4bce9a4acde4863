package models

import "time"

const (
	CallStatusRequested = "requested"
	CallStatusConfirmed = "confirmed"
	CallStatusCompleted = "completed"
	CallStatusCancelled = "cancelled"
)

// Call is a one-on-one appointment between a mentor and a consumer.
type Call struct {
	ID              int64     `json:"id"`
	MentorID        int64     `json:"mentor_id"`
	ConsumerID      int64     `json:"consumer_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
	Price           float64   `json:"price"`
	RefundEligible  *bool     `json:"refund_eligible"`
	CancelledBy     *string   `json:"cancelled_by"`
	VideoRoomURL    *string   `json:"video_room_url"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type CallDetail struct {
	Call
	Payment *Payment `json:"payment,omitempty"`
}
