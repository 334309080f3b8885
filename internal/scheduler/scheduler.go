// Package scheduler provides per-session countdown timers that fire a
// callback at a deadline. Timers live only in process memory; the recovery
// sweep rebuilds them from persisted sessions after a restart.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kingsalliance/bidbot/internal/clock"
)

// callbackTimeout bounds how long a fired callback may run.
const callbackTimeout = 30 * time.Second

// Scheduler arms one callback per id. Scheduling an id that is already
// armed replaces the pending timer.
type Scheduler interface {
	// Schedule arms fn to run once at the given time. A deadline in the
	// past fires immediately.
	Schedule(id string, at time.Time, fn func(context.Context))
	// Cancel disarms the id's pending timer. It reports whether a timer
	// was pending.
	Cancel(id string) bool
	// Stop disarms all pending timers.
	Stop()
}

// Timers is the production Scheduler backed by time.AfterFunc.
type Timers struct {
	logger *slog.Logger
	clock  clock.Clock

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewTimers returns a Timers scheduler.
func NewTimers(logger *slog.Logger, clk clock.Clock) *Timers {
	return &Timers{
		logger: logger,
		clock:  clk,
		timers: make(map[string]*time.Timer),
	}
}

func (t *Timers) Schedule(id string, at time.Time, fn func(context.Context)) {
	delay := at.Sub(t.clock.Now())
	if delay < 0 {
		delay = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.timers[id]; ok {
		prev.Stop()
	}
	t.timers[id] = time.AfterFunc(delay, func() {
		t.mu.Lock()
		delete(t.timers, id)
		t.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
		defer cancel()
		fn(ctx)
	})

	t.logger.Debug("timer armed", "id", id, "fires_at", at, "delay", delay)
}

func (t *Timers) Cancel(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	timer, ok := t.timers[id]
	if !ok {
		return false
	}
	delete(t.timers, id)
	return timer.Stop()
}

func (t *Timers) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}
