package clock_test

import (
	"testing"
	"time"

	"github.com/kingsalliance/bidbot/internal/clock"
)

func TestReal_Now(t *testing.T) {
	before := time.Now()
	got := clock.Real{}.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("Real.Now() = %v, want between %v and %v", got, before, after)
	}
}

func TestMock_Now(t *testing.T) {
	fixed := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	m := clock.NewMock(fixed)

	if got := m.Now(); !got.Equal(fixed) {
		t.Errorf("Mock.Now() = %v, want %v", got, fixed)
	}
}

func TestMock_Advance(t *testing.T) {
	fixed := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	m := clock.NewMock(fixed)

	m.Advance(5 * time.Minute)

	want := fixed.Add(5 * time.Minute)
	if got := m.Now(); !got.Equal(want) {
		t.Errorf("Mock.Now() after Advance = %v, want %v", got, want)
	}
}

func TestMock_Set(t *testing.T) {
	m := clock.NewMock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
	later := time.Date(2025, 6, 16, 9, 30, 0, 0, time.UTC)

	m.Set(later)

	if got := m.Now(); !got.Equal(later) {
		t.Errorf("Mock.Now() after Set = %v, want %v", got, later)
	}
}
