package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func newTestManager(t *testing.T, inactivity time.Duration) *Manager {
	t.Helper()
	m, err := NewManager(inactivity, 8)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func TestManagerBeginLookupRetire(t *testing.T) {
	m := newTestManager(t, time.Minute)
	s, err := m.Begin("")
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}

	got, err := m.Lookup("")
	if err != nil || got != s {
		t.Fatalf("Lookup(\"\") = %p, %v, want current", got, err)
	}
	if _, err := m.Lookup("other"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Lookup(other) error = %v, want ErrNotFound", err)
	}

	m.Retire(s.ID)
	if m.Current() != nil {
		t.Fatalf("Current() should be nil after retire")
	}
	if _, err := m.Lookup(s.ID); !errors.Is(err, ErrRetired) {
		t.Fatalf("Lookup(retired) error = %v, want ErrRetired", err)
	}
	if err := m.Touch(s.ID, true); !errors.Is(err, ErrRetired) {
		t.Fatalf("Touch(retired) error = %v, want ErrRetired", err)
	}
	if _, err := m.Begin(s.ID); !errors.Is(err, ErrRetired) {
		t.Fatalf("Begin(retired) error = %v, want ErrRetired", err)
	}
}

func TestManagerBeginIsIdempotentForCurrent(t *testing.T) {
	m := newTestManager(t, time.Minute)
	a, _ := m.Begin("r1")
	b, err := m.Begin("r1")
	if err != nil || a != b {
		t.Fatalf("Begin(r1) twice = %p, %p (%v), want same session", a, b, err)
	}
}

func TestManagerBeginRetiresPrevious(t *testing.T) {
	m := newTestManager(t, time.Minute)
	first, _ := m.Begin("r1")
	if _, err := m.Begin("r2"); err != nil {
		t.Fatalf("Begin(r2) error = %v", err)
	}
	if !first.Retired || !m.IsRetired("r1") {
		t.Fatalf("previous session should be retired")
	}
	if m.RetiredCount() != 1 {
		t.Fatalf("RetiredCount() = %d, want 1", m.RetiredCount())
	}
}

func TestManagerTombstonesAreBounded(t *testing.T) {
	m := newTestManager(t, time.Minute)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		m.Retire(id)
	}
	if m.RetiredCount() != 8 {
		t.Fatalf("RetiredCount() = %d, want 8", m.RetiredCount())
	}
	if m.IsRetired("a") {
		t.Fatalf("oldest tombstone should have been evicted")
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := newTestManager(t, 30*time.Millisecond)
	s, _ := m.Begin("r1")

	var fired atomic.Int32
	m.SetExpireHook(func(id string) {
		if id == s.ID {
			fired.Add(1)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(120 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("expire hook fired %d times, want 1", got)
	}
	info, ok := m.Info()
	if !ok || info.IsStreaming {
		t.Fatalf("Info() = %+v, want not streaming", info)
	}
}

func TestPending(t *testing.T) {
	s := &ResponseSession{CleanedSnapshot: "Hello there. More", SentLength: 12}
	if got := s.Pending(); got != " More" {
		t.Fatalf("Pending() = %q, want %q", got, " More")
	}
	s.SentLength = 99
	if got := s.Pending(); got != "" {
		t.Fatalf("Pending() = %q, want empty", got)
	}
}
