package services

import (
	"context"
	"sort"
	"time"

	"github.com/nkamali/MentorAppBack/internal/models"
)

type availabilityReader interface {
	ListSlots(ctx context.Context, mentorID int64) ([]models.AvailabilitySlot, error)
	ListBlocks(ctx context.Context, mentorID int64, from time.Time, to time.Time) ([]models.BlockedDate, error)
}

type busyCallReader interface {
	ListBusyBetween(ctx context.Context, mentorID int64, from time.Time, to time.Time) ([]models.Call, error)
}

// SlotResolver turns recurring weekly availability into concrete bookable UTC
// start times. Results are recomputed from storage on every call; nothing is
// cached across availability or booking mutations.
type SlotResolver struct {
	availability availabilityReader
	calls        busyCallReader
	policy       Policy
}

func NewSlotResolver(availability availabilityReader, calls busyCallReader, policy Policy) *SlotResolver {
	return &SlotResolver{
		availability: availability,
		calls:        calls,
		policy:       policy,
	}
}

// ListAvailableStarts expands every recurring slot across [fromDate, toDate],
// discretizes the windows at the slot step, and drops candidates on blocked
// dates or overlapping a REQUESTED/CONFIRMED call. Returned instants are UTC,
// ascending, deduplicated.
func (r *SlotResolver) ListAvailableStarts(
	ctx context.Context,
	mentorID int64,
	fromDate time.Time,
	toDate time.Time,
	durationMinutes int,
) ([]time.Time, error) {
	if mentorID <= 0 || durationMinutes <= 0 {
		return nil, ErrInvalidInput
	}

	from := truncateToDay(fromDate)
	to := truncateToDay(toDate)
	if to.Before(from) {
		return nil, ErrInvalidInput
	}

	slots, err := r.availability.ListSlots(ctx, mentorID)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return []time.Time{}, nil
	}

	blocks, err := r.availability.ListBlocks(ctx, mentorID, from, to)
	if err != nil {
		return nil, err
	}
	blocked := make(map[string]bool, len(blocks))
	for _, block := range blocks {
		blocked[block.Date.UTC().Format("2006-01-02")] = true
	}

	// Widen the busy window by a day on each side so timezone offsets cannot
	// push an overlapping call outside the fetched range.
	busy, err := r.calls.ListBusyBetween(
		ctx,
		mentorID,
		from.Add(-24*time.Hour),
		to.Add(48*time.Hour),
	)
	if err != nil {
		return nil, err
	}

	duration := time.Duration(durationMinutes) * time.Minute
	step := r.policy.SlotStepMinutes
	locations := make(map[string]*time.Location)

	var candidates []time.Time
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		dayKey := day.Format("2006-01-02")
		weekday := int(day.Weekday())
		year, month, dayOfMonth := day.Date()

		for _, slot := range slots {
			if slot.DayOfWeek != weekday {
				continue
			}
			if blocked[dayKey] {
				continue
			}

			loc, ok := locations[slot.Timezone]
			if !ok {
				loc, err = time.LoadLocation(slot.Timezone)
				if err != nil {
					return nil, err
				}
				locations[slot.Timezone] = loc
			}

			// Window end uses the normalized instant even when the wall time
			// does not exist; candidates are held to exact wall times.
			windowEnd, _ := localMinuteToUTC(year, month, dayOfMonth, slot.EndMinute, loc)

			for minute := slot.StartMinute; minute < slot.EndMinute; minute += step {
				start, exact := localMinuteToUTC(year, month, dayOfMonth, minute, loc)
				if !exact {
					continue
				}
				end := start.Add(duration)
				if end.After(windowEnd) {
					continue
				}
				if overlapsAny(start, end, busy) {
					continue
				}
				candidates = append(candidates, start)
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Before(candidates[j]) })

	deduped := candidates[:0]
	for i, candidate := range candidates {
		if i == 0 || !candidate.Equal(candidates[i-1]) {
			deduped = append(deduped, candidate)
		}
	}
	if deduped == nil {
		deduped = []time.Time{}
	}
	return deduped, nil
}

// localMinuteToUTC maps a wall-clock minute-of-day on a calendar date in loc
// to a UTC instant. For wall times erased by a DST spring-forward, time.Date
// normalizes to a real instant and exact is false so callers can skip the
// candidate. For wall times that occur twice on a fall-back day, the runtime
// resolves to the earlier offset, which is the policy here.
func localMinuteToUTC(
	year int,
	month time.Month,
	day int,
	minuteOfDay int,
	loc *time.Location,
) (utc time.Time, exact bool) {
	t := time.Date(year, month, day, minuteOfDay/60, minuteOfDay%60, 0, 0, loc)
	local := t.In(loc)
	exact = local.Year() == year &&
		local.Month() == month &&
		local.Day() == day &&
		local.Hour() == minuteOfDay/60 &&
		local.Minute() == minuteOfDay%60
	return t.UTC(), exact
}

// overlapsAny applies the half-open interval test [start, end) against every
// busy call.
func overlapsAny(start, end time.Time, busy []models.Call) bool {
	for _, call := range busy {
		callEnd := call.ScheduledAt.Add(time.Duration(call.DurationMinutes) * time.Minute)
		if call.ScheduledAt.Before(end) && start.Before(callEnd) {
			return true
		}
	}
	return false
}
