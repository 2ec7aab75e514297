package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/ent0n29/speechrelay/internal/protocol"
)

func TestFailoverSwitchesAndStays(t *testing.T) {
	primaryDown := true
	primary := NewMockSink()
	primary.DeliverFunc = func(context.Context, protocol.Chunk) error {
		if primaryDown {
			return errors.New("connection refused")
		}
		return nil
	}
	fallback := NewMockSink()
	f := NewFailover(primary, fallback)

	if err := f.Deliver(context.Background(), protocol.Chunk{Text: "a"}); err != nil {
		t.Fatalf("Deliver(a) error = %v", err)
	}
	if !f.FallbackActive() {
		t.Fatalf("fallback should be active after primary failure")
	}

	primaryDown = false
	if err := f.Deliver(context.Background(), protocol.Chunk{Text: "b"}); err != nil {
		t.Fatalf("Deliver(b) error = %v", err)
	}
	if got := len(fallback.Delivered()); got != 2 {
		t.Fatalf("fallback delivered %d, want 2 (sticky)", got)
	}
	if got := len(primary.Delivered()); got != 0 {
		t.Fatalf("primary delivered %d, want 0", got)
	}
}

func TestFailoverDoesNotRetryPermanent(t *testing.T) {
	primary := NewMockSink()
	primary.DeliverFunc = func(context.Context, protocol.Chunk) error {
		return &StatusError{Code: 400}
	}
	fallback := NewMockSink()
	err := NewFailover(primary, fallback).Deliver(context.Background(), protocol.Chunk{Text: "a"})
	if !IsPermanent(err) {
		t.Fatalf("Deliver() error = %v, want permanent", err)
	}
	if len(fallback.Delivered()) != 0 {
		t.Fatalf("fallback should not see permanent failures")
	}
}

func TestFailoverBothDown(t *testing.T) {
	down := func(context.Context) error { return errors.New("down") }
	primary, fallback := NewMockSink(), NewMockSink()
	primary.ProbeFunc, fallback.ProbeFunc = down, down
	if err := NewFailover(primary, fallback).Probe(context.Background()); err == nil {
		t.Fatalf("Probe() error = nil, want failure")
	}
}
