package services

import "time"

// Policy carries the scheduling constants. Values are tunable via config;
// the defaults mirror the product rules.
type Policy struct {
	SlotStepMinutes  int
	AllowedDurations []int

	BlockMinLeadDays int
	BlockHorizonDays int

	GroupLeadTime time.Duration
	QuorumWindow  time.Duration
	MinAttendeesFloor  int
	MaxCapacityCeiling int

	RefundCutoff time.Duration
	RequestTTL   time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		SlotStepMinutes:    15,
		AllowedDurations:   []int{30, 60},
		BlockMinLeadDays:   1,
		BlockHorizonDays:   14,
		GroupLeadTime:      24 * time.Hour,
		QuorumWindow:       24 * time.Hour,
		MinAttendeesFloor:  2,
		MaxCapacityCeiling: 50,
		RefundCutoff:       24 * time.Hour,
		RequestTTL:         30 * time.Minute,
	}
}

func (p Policy) durationAllowed(minutes int) bool {
	for _, d := range p.AllowedDurations {
		if d == minutes {
			return true
		}
	}
	return false
}
