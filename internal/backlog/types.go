// Package backlog stores chunks that exhausted their delivery attempts until
// the sink recovers. Every Store preserves enqueue order.
package backlog

import (
	"context"
	"errors"
	"time"

	"github.com/ent0n29/speechrelay/internal/protocol"
)

var (
	ErrEmpty    = errors.New("backlog empty")
	ErrNotFound = errors.New("backlog item not found")
)

// Item is a chunk waiting for replay.
type Item struct {
	ID         string         `json:"id"`
	Chunk      protocol.Chunk `json:"chunk"`
	Attempts   int            `json:"attempts"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// Store is a FIFO of undelivered chunks.
type Store interface {
	Push(ctx context.Context, item Item) error
	// Front returns the oldest item without removing it, or ErrEmpty.
	Front(ctx context.Context) (Item, error)
	Remove(ctx context.Context, id string) error
	// Bump increments the replay attempts of id and returns the new count.
	Bump(ctx context.Context, id string) (int, error)
	Len(ctx context.Context) (int, error)
	List(ctx context.Context, limit int) ([]Item, error)
	Close() error
}
