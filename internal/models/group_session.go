package models

import "time"

const (
	GroupSessionStatusScheduled = "scheduled"
	GroupSessionStatusConfirmed = "confirmed"
	GroupSessionStatusCompleted = "completed"
	GroupSessionStatusCancelled = "cancelled"
)

// GroupSession is a capacity-bounded, quorum-gated appointment. It only
// proceeds once MinAttendees have joined; otherwise it auto-cancels at the
// quorum deadline.
type GroupSession struct {
	ID                 int64     `json:"id"`
	MentorID           int64     `json:"mentor_id"`
	Title              string    `json:"title"`
	ScheduledAt        time.Time `json:"scheduled_at"`
	DurationMinutes    int       `json:"duration_minutes"`
	MaxCapacity        int       `json:"max_capacity"`
	MinAttendees       int       `json:"min_attendees"`
	PricePerPerson     float64   `json:"price_per_person"`
	FreeForSubscribers bool      `json:"free_for_subscribers"`
	Status             string    `json:"status"`
	VideoRoomURL       *string   `json:"video_room_url"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type Participant struct {
	ID             int64     `json:"id"`
	SessionID      int64     `json:"session_id"`
	ConsumerID     int64     `json:"consumer_id"`
	JoinedAt       time.Time `json:"joined_at"`
	RefundEligible bool      `json:"refund_eligible"`
}

type GroupSessionDetail struct {
	GroupSession
	ParticipantCount int `json:"participant_count"`
}
