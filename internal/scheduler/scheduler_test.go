package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kingsalliance/bidbot/internal/clock"
)

func TestTimers_FiresAtDeadline(t *testing.T) {
	s := NewTimers(slog.Default(), clock.Real{})
	defer s.Stop()

	fired := make(chan struct{})
	s.Schedule("a", time.Now().Add(10*time.Millisecond), func(context.Context) {
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestTimers_PastDeadlineFiresImmediately(t *testing.T) {
	s := NewTimers(slog.Default(), clock.Real{})
	defer s.Stop()

	fired := make(chan struct{})
	s.Schedule("a", time.Now().Add(-time.Hour), func(context.Context) {
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestTimers_Cancel(t *testing.T) {
	s := NewTimers(slog.Default(), clock.Real{})
	defer s.Stop()

	var fired atomic.Bool
	s.Schedule("a", time.Now().Add(50*time.Millisecond), func(context.Context) {
		fired.Store(true)
	})

	if !s.Cancel("a") {
		t.Fatal("Cancel should report a pending timer")
	}
	if s.Cancel("a") {
		t.Fatal("second Cancel should report nothing pending")
	}

	time.Sleep(100 * time.Millisecond)
	if fired.Load() {
		t.Fatal("cancelled timer fired anyway")
	}
}

func TestTimers_RescheduleReplaces(t *testing.T) {
	s := NewTimers(slog.Default(), clock.Real{})
	defer s.Stop()

	var first atomic.Bool
	fired := make(chan struct{})

	s.Schedule("a", time.Now().Add(time.Hour), func(context.Context) {
		first.Store(true)
	})
	s.Schedule("a", time.Now().Add(10*time.Millisecond), func(context.Context) {
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement timer did not fire")
	}
	if first.Load() {
		t.Fatal("replaced callback fired")
	}
}

func TestTimers_Stop(t *testing.T) {
	s := NewTimers(slog.Default(), clock.Real{})

	var fired atomic.Bool
	s.Schedule("a", time.Now().Add(50*time.Millisecond), func(context.Context) {
		fired.Store(true)
	})
	s.Schedule("b", time.Now().Add(50*time.Millisecond), func(context.Context) {
		fired.Store(true)
	})
	s.Stop()

	time.Sleep(100 * time.Millisecond)
	if fired.Load() {
		t.Fatal("timer fired after Stop")
	}
}

func TestManual_FireAndCancel(t *testing.T) {
	m := NewManual()
	ctx := context.Background()

	var ran bool
	deadline := time.Now().Add(5 * time.Minute)
	m.Schedule("a", deadline, func(context.Context) { ran = true })

	if !m.Pending("a") {
		t.Fatal("expected a pending callback")
	}
	if at, _ := m.At("a"); !at.Equal(deadline) {
		t.Errorf("At = %v, want %v", at, deadline)
	}

	if !m.Fire(ctx, "a") {
		t.Fatal("Fire should report a pending callback")
	}
	if !ran {
		t.Fatal("callback did not run")
	}
	if m.Fire(ctx, "a") {
		t.Fatal("second Fire should report nothing pending")
	}

	m.Schedule("b", deadline, func(context.Context) { t.Fatal("cancelled callback ran") })
	if !m.Cancel("b") {
		t.Fatal("Cancel should report a pending callback")
	}
}
