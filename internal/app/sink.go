package app

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ent0n29/speechrelay/internal/config"
	"github.com/ent0n29/speechrelay/internal/sink"
)

type sinkSetup struct {
	sink     sink.Sink
	resolved string
	detail   string
	cleanup  func() error
}

func resolveSink(cfg config.Config, logger *slog.Logger) (sinkSetup, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mode := strings.ToLower(strings.TrimSpace(cfg.SinkMode))
	if mode == "" {
		mode = "auto"
	}

	tryHTTP := func() (sinkSetup, bool) {
		base := strings.TrimSpace(cfg.SinkHTTPURL)
		if base == "" {
			return sinkSetup{}, false
		}
		return sinkSetup{
			sink:     sink.NewHTTPSink(base, cfg.SinkRequestTimeout),
			resolved: "http",
			detail:   "http " + base,
		}, true
	}

	tryNATS := func() (sinkSetup, bool, error) {
		if strings.TrimSpace(cfg.SinkNATSURL) == "" {
			return sinkSetup{}, false, nil
		}
		s, err := sink.NewNATSSink(cfg.SinkNATSURL, cfg.SinkNATSSubject, logger)
		if err != nil {
			return sinkSetup{}, false, fmt.Errorf("nats sink init failed: %w", err)
		}
		return sinkSetup{
			sink:     s,
			resolved: "nats",
			detail:   "nats " + cfg.SinkNATSSubject,
			cleanup:  func() error { s.Close(); return nil },
		}, true, nil
	}

	tryWS := func() (sinkSetup, bool) {
		if strings.TrimSpace(cfg.SinkWSURL) == "" {
			return sinkSetup{}, false
		}
		s := sink.NewWSSink(cfg.SinkWSURL)
		return sinkSetup{
			sink:     s,
			resolved: "ws",
			detail:   "websocket " + cfg.SinkWSURL,
			cleanup:  s.Close,
		}, true
	}

	mock := sinkSetup{sink: sink.NewMockSink(), resolved: "mock", detail: "mock"}

	switch mode {
	case "http":
		if setup, ok := tryHTTP(); ok {
			return setup, nil
		}
		return sinkSetup{}, fmt.Errorf("SINK_MODE=http but SINK_HTTP_URL is empty")
	case "nats":
		setup, ok, err := tryNATS()
		if err != nil {
			return sinkSetup{}, err
		}
		if !ok {
			return sinkSetup{}, fmt.Errorf("SINK_MODE=nats but SINK_NATS_URL is empty")
		}
		return setup, nil
	case "ws":
		if setup, ok := tryWS(); ok {
			return setup, nil
		}
		return sinkSetup{}, fmt.Errorf("SINK_MODE=ws but SINK_WS_URL is empty")
	case "mock":
		return mock, nil
	case "auto":
		primary, hasHTTP := tryHTTP()
		fallback, hasFallback, err := tryNATS()
		if err != nil {
			logger.Warn("nats sink unavailable, continuing without it", "error", err)
		}
		if !hasFallback {
			fallback, hasFallback = tryWS()
		}

		switch {
		case hasHTTP && hasFallback:
			return sinkSetup{
				sink:     sink.NewFailover(primary.sink, fallback.sink),
				resolved: "http",
				detail:   fmt.Sprintf("%s (automatic %s fallback)", primary.detail, fallback.resolved),
				cleanup:  fallback.cleanup,
			}, nil
		case hasHTTP:
			return primary, nil
		case hasFallback:
			return fallback, nil
		}
		mock.detail = "mock (no sink configured)"
		return mock, nil
	default:
		return sinkSetup{}, fmt.Errorf("invalid SINK_MODE: %q (expected auto|http|nats|ws|mock)", cfg.SinkMode)
	}
}
