package models

import "time"

const (
	ReminderSubjectCall         = "call"
	ReminderSubjectGroupSession = "group_session"

	ReminderKindDayBefore  = "day_before"
	ReminderKindHourBefore = "hour_before"
)

// ReminderJob fires at most once per (subject, kind); FiredAt is stamped only
// after the notification went out.
type ReminderJob struct {
	ID          int64      `json:"id"`
	SubjectType string     `json:"subject_type"`
	SubjectID   int64      `json:"subject_id"`
	Kind        string     `json:"kind"`
	FireAt      time.Time  `json:"fire_at"`
	FiredAt     *time.Time `json:"fired_at"`
	CreatedAt   time.Time  `json:"created_at"`
}
