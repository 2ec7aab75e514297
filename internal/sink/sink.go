// Package sink delivers speakable chunks to a speech-synthesis service.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/ent0n29/speechrelay/internal/protocol"
	"github.com/ent0n29/speechrelay/internal/reliability"
)

var (
	// ErrPermanent marks a delivery failure that no retry can fix.
	ErrPermanent = errors.New("permanent sink failure")
	// ErrRejected is returned when the sink acknowledged a chunk with success=false.
	ErrRejected = errors.New("sink rejected chunk")
)

// Sink is the delivery contract of a speech service.
type Sink interface {
	Deliver(ctx context.Context, chunk protocol.Chunk) error
	Probe(ctx context.Context) error
}

// Resetter is implemented by sinks that keep per-response playback state.
type Resetter interface {
	ResetConversation(ctx context.Context) error
}

// StatusError is a non-2xx reply from an HTTP-shaped sink.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("sink http status %d", e.Code)
	}
	return fmt.Sprintf("sink http status %d: %s", e.Code, e.Body)
}

// IsPermanent reports whether err should drop the chunk instead of retrying.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return reliability.IsPermanentHTTPStatus(se.Code)
	}
	return false
}

func ackError(res protocol.DeliverResult) error {
	if res.Success {
		return nil
	}
	if res.Error == "" {
		return ErrRejected
	}
	return fmt.Errorf("%w: %s", ErrRejected, res.Error)
}
