package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ent0n29/speechrelay/internal/backlog"
	"github.com/ent0n29/speechrelay/internal/config"
	"github.com/ent0n29/speechrelay/internal/delivery"
	"github.com/ent0n29/speechrelay/internal/httpapi"
	"github.com/ent0n29/speechrelay/internal/observability"
	"github.com/ent0n29/speechrelay/internal/reliability"
	"github.com/ent0n29/speechrelay/internal/segment"
	"github.com/ent0n29/speechrelay/internal/session"
	"github.com/ent0n29/speechrelay/internal/sink"
	"github.com/ent0n29/speechrelay/internal/stream"
)

type SinkInfo struct {
	Mode   string
	Detail string
}

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Monitor  *stream.Monitor
	Queue    *delivery.Queue
	Sessions *session.Manager
	Metrics  *observability.Metrics
	Sink     SinkInfo

	// Cleanup should be called on shutdown to release external resources (DB, sink connections).
	Cleanup func() error
}

const backlogOpenAttempts = 5

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace, nil)

	store, err := openBacklog(ctx, cfg.BacklogDSN, logger)
	if err != nil {
		return nil, fmt.Errorf("backlog store init failed: %w", err)
	}

	setup, err := resolveSink(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	queue := delivery.New(DeliveryConfig(cfg), setup.sink, store, logger.With("component", "delivery"), metrics)

	sessions, err := session.NewManager(cfg.StreamInactivityTimeout, cfg.RetiredSessionCache)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	monitor := stream.NewMonitor(StreamConfig(cfg), sessions, queue, logger, metrics)
	if r, ok := setup.sink.(sink.Resetter); ok {
		monitor.SetResetter(r)
	}

	api := httpapi.New(cfg, monitor, queue, metrics, logger)

	cleanup := func() error {
		var errs []string
		monitor.Stop()
		if setup.cleanup != nil {
			if err := setup.cleanup(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if err := store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Monitor:  monitor,
		Queue:    queue,
		Sessions: sessions,
		Metrics:  metrics,
		Sink: SinkInfo{
			Mode:   setup.resolved,
			Detail: setup.detail,
		},
		Cleanup: cleanup,
	}, nil
}

// StreamConfig maps the env configuration onto the monitor settings.
func StreamConfig(cfg config.Config) stream.Config {
	return stream.Config{
		Debounce:             cfg.StreamDebounce,
		FirstContentDebounce: cfg.StreamFirstContentDebounce,
		InactivityTimeout:    cfg.StreamInactivityTimeout,
		Sanitize:             cfg.StreamSanitize,
		RedactPII:            cfg.StreamRedactPII,
		SimilarityThreshold:  cfg.DiffSimilarityThreshold,
		Policy: segment.Policy{
			ParagraphMin:   cfg.ChunkParagraphMin,
			SentenceMin:    cfg.ChunkSentenceMin,
			PunctTrigger:   cfg.ChunkPunctTrigger,
			PunctMin:       cfg.ChunkPunctMin,
			ForceTrigger:   cfg.ChunkForceTrigger,
			ForceWindowMin: cfg.ChunkForceWindowMin,
			ForceMax:       cfg.ChunkForceMax,
		},
	}
}

func DeliveryConfig(cfg config.Config) delivery.Config {
	return delivery.Config{
		MaxRetries:     cfg.DeliveryMaxRetries,
		BackoffUnit:    cfg.DeliveryBackoffUnit,
		AttemptTimeout: cfg.SinkRequestTimeout,
		ProbeInterval:  cfg.DeliveryProbeInterval,
		DrainPause:     cfg.DeliveryDrainPause,
		MaxReplays:     cfg.DeliveryMaxReplays,
	}
}

// openBacklog retries the store while a database that starts alongside the
// service is still coming up.
func openBacklog(ctx context.Context, dsn string, logger *slog.Logger) (backlog.Store, error) {
	var lastErr error
	for attempt := 0; attempt < backlogOpenAttempts; attempt++ {
		if attempt > 0 {
			wait := reliability.ExponentialBackoff(attempt-1, 250*time.Millisecond, 4*time.Second)
			logger.Warn("backlog store unavailable, retrying", "attempt", attempt, "wait", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		store, err := backlog.NewStore(ctx, dsn)
		if err == nil {
			return store, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
