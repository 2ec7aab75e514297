package sink

import (
	"context"
	"sync"

	"github.com/ent0n29/speechrelay/internal/protocol"
)

// MockSink records every delivered chunk. It is the sink used when no speech
// service is configured and in tests.
type MockSink struct {
	mu        sync.Mutex
	delivered []protocol.Chunk
	resets    int

	// DeliverFunc and ProbeFunc override the default success when set.
	DeliverFunc func(ctx context.Context, chunk protocol.Chunk) error
	ProbeFunc   func(ctx context.Context) error
	// OnDeliver observes successful deliveries.
	OnDeliver func(chunk protocol.Chunk)
}

func NewMockSink() *MockSink { return &MockSink{} }

func (s *MockSink) Deliver(ctx context.Context, chunk protocol.Chunk) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if s.DeliverFunc != nil {
		if err := s.DeliverFunc(ctx, chunk); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.delivered = append(s.delivered, chunk)
	s.mu.Unlock()
	if s.OnDeliver != nil {
		s.OnDeliver(chunk)
	}
	return nil
}

func (s *MockSink) Probe(ctx context.Context) error {
	if s.ProbeFunc != nil {
		return s.ProbeFunc(ctx)
	}
	return nil
}

func (s *MockSink) ResetConversation(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	return nil
}

// Delivered returns a copy of the chunks accepted so far.
func (s *MockSink) Delivered() []protocol.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Chunk(nil), s.delivered...)
}

func (s *MockSink) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}
