package sink

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ent0n29/speechrelay/internal/protocol"
)

// Failover prefers the primary sink and switches to the fallback when the
// primary fails with a transient error. Once the fallback succeeds it stays
// active until it fails; then the primary is tried again.
type Failover struct {
	primary  Sink
	fallback Sink

	fallbackActive atomic.Bool
}

func NewFailover(primary, fallback Sink) *Failover {
	return &Failover{primary: primary, fallback: fallback}
}

func (f *Failover) Deliver(ctx context.Context, chunk protocol.Chunk) error {
	return f.call(ctx, func(s Sink) error { return s.Deliver(ctx, chunk) })
}

func (f *Failover) Probe(ctx context.Context) error {
	return f.call(ctx, func(s Sink) error { return s.Probe(ctx) })
}

func (f *Failover) ResetConversation(ctx context.Context) error {
	active := f.primary
	if f.fallbackActive.Load() {
		active = f.fallback
	}
	if r, ok := active.(Resetter); ok {
		return r.ResetConversation(ctx)
	}
	return nil
}

// FallbackActive reports whether calls currently go to the fallback sink.
func (f *Failover) FallbackActive() bool {
	return f.fallbackActive.Load()
}

func (f *Failover) call(ctx context.Context, fn func(Sink) error) error {
	onFallback := f.fallbackActive.Load()
	first, second := f.primary, f.fallback
	if onFallback {
		first, second = f.fallback, f.primary
	}

	err := fn(first)
	if err == nil || IsPermanent(err) || errors.Is(err, context.Canceled) {
		return err
	}
	if ctx.Err() != nil {
		return err
	}

	secondErr := fn(second)
	if secondErr != nil {
		return fmt.Errorf("sink failover: %w; other sink: %v", err, secondErr)
	}
	f.fallbackActive.Store(!onFallback)
	return nil
}
