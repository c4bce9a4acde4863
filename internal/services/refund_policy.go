package services

import "time"

// RefundEligible reports whether a cancellation at now is inside the refund
// window: true iff the appointment starts at least cutoff from now. Past
// appointments are never eligible. Mentor-initiated and quorum-failure
// group-session cancellations bypass this and refund unconditionally.
func RefundEligible(scheduledAt, now time.Time, cutoff time.Duration) bool {
	return scheduledAt.Sub(now) >= cutoff
}
