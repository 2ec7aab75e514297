// Package delivery ships chunks to a sink with bounded retries and keeps the
// ones that could not be delivered in a backlog until the sink recovers.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ent0n29/speechrelay/internal/backlog"
	"github.com/ent0n29/speechrelay/internal/observability"
	"github.com/ent0n29/speechrelay/internal/protocol"
	"github.com/ent0n29/speechrelay/internal/reliability"
	"github.com/ent0n29/speechrelay/internal/sink"
)

// Outcome is what happened to a chunk handed to Send.
type Outcome string

const (
	OutcomeDelivered  Outcome = "delivered"
	OutcomeBacklogged Outcome = "backlogged"
	OutcomeDeferred   Outcome = "deferred"
	OutcomeDropped    Outcome = "dropped"
)

var ErrBacklogged = errors.New("chunk backlogged after retries")

type Config struct {
	// MaxRetries is the total number of attempts per chunk.
	MaxRetries     int
	BackoffUnit    time.Duration
	AttemptTimeout time.Duration
	ProbeInterval  time.Duration
	DrainPause     time.Duration
	// MaxReplays bounds how often a backlogged chunk is replayed before it is
	// dropped.
	MaxReplays int
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		BackoffUnit:    500 * time.Millisecond,
		AttemptTimeout: 8 * time.Second,
		ProbeInterval:  5 * time.Second,
		DrainPause:     250 * time.Millisecond,
		MaxReplays:     5,
	}
}

// Queue owns the sink health flag and the failure backlog.
type Queue struct {
	cfg     Config
	sink    sink.Sink
	store   backlog.Store
	logger  *slog.Logger
	metrics *observability.Metrics
	sleep   func(ctx context.Context, d time.Duration) error

	healthy  atomic.Bool
	draining atomic.Bool

	mu     sync.Mutex
	runCtx context.Context
}

func New(cfg Config, s sink.Sink, store backlog.Store, logger *slog.Logger, metrics *observability.Metrics) *Queue {
	def := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BackoffUnit < 0 {
		cfg.BackoffUnit = 0
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = def.ProbeInterval
	}
	if cfg.MaxReplays <= 0 {
		cfg.MaxReplays = def.MaxReplays
	}
	if store == nil {
		store = backlog.NewInMemoryStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		cfg:     cfg,
		sink:    s,
		store:   store,
		logger:  logger,
		metrics: metrics,
		sleep:   sleepCtx,
	}
	q.healthy.Store(true)
	metrics.SetSinkHealthy(true)
	return q
}

// Send delivers chunk, retrying transient failures. While the sink is
// unhealthy, a drain is running or older chunks are still waiting, the chunk
// goes straight to the backlog so delivery order is preserved.
func (q *Queue) Send(ctx context.Context, chunk protocol.Chunk) (Outcome, error) {
	if !q.healthy.Load() || q.draining.Load() || q.backlogLen(ctx) > 0 {
		if err := q.push(ctx, chunk); err != nil {
			return OutcomeDropped, err
		}
		q.metrics.ObserveOutcome(string(OutcomeDeferred))
		if q.healthy.Load() {
			q.kickDrain()
		}
		return OutcomeDeferred, nil
	}

	var lastErr error
	for attempt := 0; attempt < q.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := q.sleep(ctx, reliability.LinearBackoff(attempt-1, q.cfg.BackoffUnit)); err != nil {
				lastErr = err
				break
			}
		}
		lastErr = q.attempt(ctx, chunk)
		if lastErr == nil {
			q.metrics.ObserveOutcome(string(OutcomeDelivered))
			return OutcomeDelivered, nil
		}
		if sink.IsPermanent(lastErr) {
			q.logger.Warn("chunk dropped on permanent sink error",
				"response_id", chunk.ResponseID, "sequence_id", chunk.SequenceID, "error", lastErr)
			q.metrics.ObserveOutcome(string(OutcomeDropped))
			return OutcomeDropped, lastErr
		}
		q.logger.Debug("sink attempt failed",
			"response_id", chunk.ResponseID, "sequence_id", chunk.SequenceID, "attempt", attempt+1, "error", lastErr)
	}

	q.setHealthy(false)
	if err := q.push(ctx, chunk); err != nil {
		return OutcomeDropped, errors.Join(lastErr, err)
	}
	q.logger.Warn("chunk backlogged after retries",
		"response_id", chunk.ResponseID, "sequence_id", chunk.SequenceID, "backlog", q.backlogLen(ctx), "error", lastErr)
	q.metrics.ObserveOutcome(string(OutcomeBacklogged))
	return OutcomeBacklogged, fmt.Errorf("%w: %v", ErrBacklogged, lastErr)
}

// RunProber probes the sink every ProbeInterval until ctx is done. A healthy
// probe with chunks waiting starts a drain.
func (q *Queue) RunProber(ctx context.Context) {
	q.mu.Lock()
	q.runCtx = ctx
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.runCtx = nil
		q.mu.Unlock()
	}()

	ticker := time.NewTicker(q.cfg.ProbeInterval)
	defer ticker.Stop()
	q.ProbeOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.ProbeOnce(ctx)
		}
	}
}

// ProbeOnce runs one health probe and, when healthy, drains the backlog.
func (q *Queue) ProbeOnce(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, q.cfg.AttemptTimeout)
	err := q.sink.Probe(pctx)
	cancel()
	if err != nil {
		if q.healthy.Load() {
			q.logger.Warn("sink unhealthy", "error", err)
		}
		q.setHealthy(false)
		return
	}
	if !q.healthy.Load() {
		q.logger.Info("sink recovered", "backlog", q.backlogLen(ctx))
	}
	q.setHealthy(true)
	if q.backlogLen(ctx) > 0 {
		q.drain(ctx)
	}
}

func (q *Queue) drain(ctx context.Context) {
	if !q.draining.CompareAndSwap(false, true) {
		return
	}
	defer q.draining.Store(false)

	for first := true; ; first = false {
		if !q.healthy.Load() || ctx.Err() != nil {
			return
		}
		if !first {
			if err := q.sleep(ctx, q.cfg.DrainPause); err != nil {
				return
			}
		}
		item, err := q.store.Front(ctx)
		if errors.Is(err, backlog.ErrEmpty) {
			return
		}
		if err != nil {
			q.logger.Error("read backlog", "error", err)
			return
		}

		err = q.attempt(ctx, item.Chunk)
		switch {
		case err == nil:
			q.remove(ctx, item.ID)
			q.metrics.ObserveOutcome(string(OutcomeDelivered))
			q.logger.Debug("backlog chunk delivered",
				"response_id", item.Chunk.ResponseID, "sequence_id", item.Chunk.SequenceID)
		case sink.IsPermanent(err):
			q.remove(ctx, item.ID)
			q.metrics.ObserveOutcome(string(OutcomeDropped))
			q.logger.Warn("backlog chunk dropped on permanent sink error",
				"response_id", item.Chunk.ResponseID, "sequence_id", item.Chunk.SequenceID, "error", err)
		default:
			replays, bumpErr := q.store.Bump(ctx, item.ID)
			if bumpErr != nil {
				q.logger.Error("bump backlog item", "error", bumpErr)
			}
			if replays >= q.cfg.MaxReplays {
				q.remove(ctx, item.ID)
				q.metrics.ObserveOutcome(string(OutcomeDropped))
				q.logger.Warn("backlog chunk dropped after replays",
					"response_id", item.Chunk.ResponseID, "sequence_id", item.Chunk.SequenceID, "replays", replays)
			}
			q.logger.Warn("drain stopped, sink failing", "error", err)
			q.setHealthy(false)
			return
		}
	}
}

func (q *Queue) kickDrain() {
	q.mu.Lock()
	ctx := q.runCtx
	q.mu.Unlock()
	if ctx == nil || q.draining.Load() {
		return
	}
	go q.drain(ctx)
}

func (q *Queue) attempt(ctx context.Context, chunk protocol.Chunk) error {
	actx, cancel := context.WithTimeout(ctx, q.cfg.AttemptTimeout)
	defer cancel()
	start := time.Now()
	err := q.sink.Deliver(actx, chunk)
	q.metrics.ObserveAttempt(time.Since(start), err)
	return err
}

func (q *Queue) push(ctx context.Context, chunk protocol.Chunk) error {
	// A cancelled caller must not lose the chunk.
	ctx = context.WithoutCancel(ctx)
	if err := q.store.Push(ctx, backlog.Item{Chunk: chunk}); err != nil {
		q.logger.Error("backlog push failed", "response_id", chunk.ResponseID, "error", err)
		return fmt.Errorf("backlog push: %w", err)
	}
	q.metrics.SetBacklog(q.backlogLen(ctx))
	return nil
}

func (q *Queue) remove(ctx context.Context, id string) {
	if err := q.store.Remove(ctx, id); err != nil {
		q.logger.Error("backlog remove failed", "id", id, "error", err)
	}
	q.metrics.SetBacklog(q.backlogLen(ctx))
}

func (q *Queue) setHealthy(v bool) {
	q.healthy.Store(v)
	q.metrics.SetSinkHealthy(v)
}

func (q *Queue) backlogLen(ctx context.Context) int {
	n, err := q.store.Len(ctx)
	if err != nil {
		q.logger.Error("backlog len failed", "error", err)
		return 0
	}
	return n
}

// BacklogLen is the number of chunks waiting for the sink.
func (q *Queue) BacklogLen(ctx context.Context) int {
	return q.backlogLen(ctx)
}

// Backlog lists up to limit waiting chunks, oldest first.
func (q *Queue) Backlog(ctx context.Context, limit int) ([]backlog.Item, error) {
	return q.store.List(ctx, limit)
}

func (q *Queue) Healthy() bool {
	return q.healthy.Load()
}

func (q *Queue) Draining() bool {
	return q.draining.Load()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
