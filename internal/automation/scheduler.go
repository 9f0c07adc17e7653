package automation

import (
	"context"
	"time"

	"cockpit-service/internal/clock"
	"cockpit-service/internal/logger"
)

type entry struct {
	controller *Controller
	due        time.Time
	last       time.Time
}

// Scheduler ticks every controller at the interval it last asked for and
// runs posted commands between ticks. Everything it calls runs on the
// goroutine executing Run.
type Scheduler struct {
	clock    clock.Clock
	logger   *logger.Logger
	entries  []*entry
	commands chan func()
}

func NewScheduler(c clock.Clock, l *logger.Logger) *Scheduler {
	return &Scheduler{
		clock:    c,
		logger:   l,
		commands: make(chan func(), 32),
	}
}

// Add registers a controller. Its first tick runs on the next pass.
func (s *Scheduler) Add(c *Controller) {
	s.entries = append(s.entries, &entry{controller: c})
}

// Controllers returns the registered controllers in tick order.
func (s *Scheduler) Controllers() []*Controller {
	out := make([]*Controller, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.controller
	}
	return out
}

// Post queues fn to run on the scheduler goroutine.
func (s *Scheduler) Post(ctx context.Context, fn func()) error {
	select {
	case s.commands <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunDue ticks every controller whose interval has elapsed at now and
// returns the delay until the earliest next tick.
func (s *Scheduler) RunDue(now time.Time) time.Duration {
	wait := time.Duration(-1)
	for _, e := range s.entries {
		if e.due.After(now) {
			if d := e.due.Sub(now); wait < 0 || d < wait {
				wait = d
			}
			continue
		}

		var elapsed time.Duration
		if !e.last.IsZero() {
			elapsed = now.Sub(e.last)
		}
		next := e.controller.Tick(now, elapsed)
		e.last = now
		e.due = now.Add(next)
		if wait < 0 || next < wait {
			wait = next
		}
	}
	if wait < 0 {
		wait = time.Second
	}
	return wait
}

// Drain runs every queued command without blocking.
func (s *Scheduler) Drain() {
	for {
		select {
		case fn := <-s.commands:
			fn()
		default:
			return
		}
	}
}

// Run ticks until ctx is cancelled, then halts every machine so no
// command is left active on the host.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Infof("Scheduler started with %d machines", len(s.entries))
	for {
		wait := s.RunDue(s.clock.Now())
		select {
		case <-ctx.Done():
			for _, e := range s.entries {
				e.controller.Machine().Halt("shutdown")
			}
			s.logger.Infof("Scheduler stopped")
			return nil
		case fn := <-s.commands:
			fn()
		case <-s.clock.After(wait):
		}
	}
}
