package models

import "time"

// AvailabilitySlot is one recurring weekly window in the mentor's local time.
// StartMinute/EndMinute are minutes from local midnight; Timezone is the IANA
// zone the wall-clock values are anchored to.
type AvailabilitySlot struct {
	ID          int64     `json:"id"`
	MentorID    int64     `json:"mentor_id"`
	DayOfWeek   int       `json:"day_of_week"` // 0 = Sunday
	StartMinute int       `json:"start_minute"`
	EndMinute   int       `json:"end_minute"`
	Timezone    string    `json:"timezone"`
	CreatedAt   time.Time `json:"created_at"`
}

type BlockedDate struct {
	ID        int64     `json:"id"`
	MentorID  int64     `json:"mentor_id"`
	Date      time.Time `json:"date"` // calendar date, time component ignored
	Reason    *string   `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
