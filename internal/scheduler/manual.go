package scheduler

import (
	"context"
	"sync"
	"time"
)

// Manual is a Scheduler for tests. Armed callbacks never fire on their own;
// the test fires them explicitly with Fire.
type Manual struct {
	mu      sync.Mutex
	pending map[string]manualEntry
}

type manualEntry struct {
	at time.Time
	fn func(context.Context)
}

// NewManual returns an empty Manual scheduler.
func NewManual() *Manual {
	return &Manual{pending: make(map[string]manualEntry)}
}

func (m *Manual) Schedule(id string, at time.Time, fn func(context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[id] = manualEntry{at: at, fn: fn}
}

func (m *Manual) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[id]
	delete(m.pending, id)
	return ok
}

func (m *Manual) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = make(map[string]manualEntry)
}

// Fire runs the id's pending callback synchronously and disarms it.
// It reports whether a callback was pending.
func (m *Manual) Fire(ctx context.Context, id string) bool {
	m.mu.Lock()
	entry, ok := m.pending[id]
	delete(m.pending, id)
	m.mu.Unlock()

	if !ok {
		return false
	}
	entry.fn(ctx)
	return true
}

// Pending reports whether the id has an armed callback.
func (m *Manual) Pending(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[id]
	return ok
}

// At returns the deadline the id is armed for.
func (m *Manual) At(id string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.pending[id]
	return entry.at, ok
}
