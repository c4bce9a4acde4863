package jobs

import (
	"context"
	"log"
	"time"

	"github.com/nkamali/MentorAppBack/internal/services"
	"github.com/robfig/cron/v3"
)

// Scheduler runs the periodic sweeps: reminder dispatch, stale-request expiry,
// quorum-deadline cancellation and completion marking. Every sweep is
// idempotent, so overlapping or repeated runs are safe.
type Scheduler struct {
	cron *cron.Cron
}

func NewScheduler(
	booking *services.BookingService,
	sessions *services.GroupSessionService,
	reminders *services.ReminderService,
) (*Scheduler, error) {
	c := cron.New()

	sweeps := []struct {
		spec string
		name string
		run  func(ctx context.Context) (int, error)
	}{
		{"* * * * *", "reminder dispatch", reminders.Dispatch},
		{"* * * * *", "stale request expiry", booking.ExpireStaleRequests},
		{"* * * * *", "quorum deadline sweep", sessions.SweepQuorumDeadline},
		{"*/5 * * * *", "call completion", booking.MarkCompleted},
		{"*/5 * * * *", "session completion", sessions.MarkCompleted},
	}

	for _, sweep := range sweeps {
		name := sweep.name
		run := sweep.run
		if _, err := c.AddFunc(sweep.spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Second)
			defer cancel()
			if _, err := run(ctx); err != nil {
				log.Printf("jobs: %s failed: %v", name, err)
			}
		}); err != nil {
			return nil, err
		}
	}

	return &Scheduler{cron: c}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for in-flight sweeps to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
