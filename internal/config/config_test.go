package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8090")
	}
	if cfg.SinkMode != "auto" || cfg.SinkHTTPURL != "http://127.0.0.1:5000" {
		t.Fatalf("sink = %q %q, want auto on the local speech server", cfg.SinkMode, cfg.SinkHTTPURL)
	}
	if cfg.SinkNATSURL != "" || cfg.BacklogDSN != "" {
		t.Fatalf("optional backends should default to empty: nats=%q backlog=%q", cfg.SinkNATSURL, cfg.BacklogDSN)
	}
	if cfg.StreamDebounce != 150*time.Millisecond || cfg.StreamFirstContentDebounce != 30*time.Millisecond {
		t.Fatalf("debounce = %v / %v", cfg.StreamDebounce, cfg.StreamFirstContentDebounce)
	}
	if cfg.DeliveryMaxRetries != 3 || cfg.DeliveryBackoffUnit != 500*time.Millisecond {
		t.Fatalf("delivery = %d retries / %v unit", cfg.DeliveryMaxRetries, cfg.DeliveryBackoffUnit)
	}
	if cfg.ChunkForceMax != 250 || cfg.DiffSimilarityThreshold != 0.7 || !cfg.StreamSanitize {
		t.Fatalf("unexpected pipeline defaults: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("SINK_MODE", "NATS")
	t.Setenv("SINK_NATS_URL", "nats://127.0.0.1:4222")
	t.Setenv("STREAM_DEBOUNCE", "200ms")
	t.Setenv("CHUNK_SENTENCE_MIN", "4")
	t.Setenv("DIFF_SIMILARITY_THRESHOLD", "0.85")
	t.Setenv("STREAM_SANITIZE", "off")
	t.Setenv("BACKLOG_DSN", " sqlite:///tmp/backlog.db ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SinkMode != "nats" {
		t.Fatalf("SinkMode = %q, want nats", cfg.SinkMode)
	}
	if cfg.StreamDebounce != 200*time.Millisecond {
		t.Fatalf("StreamDebounce = %v, want 200ms", cfg.StreamDebounce)
	}
	if cfg.ChunkSentenceMin != 4 || cfg.DiffSimilarityThreshold != 0.85 || cfg.StreamSanitize {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.BacklogDSN != "sqlite:///tmp/backlog.db" {
		t.Fatalf("BacklogDSN = %q, want trimmed value", cfg.BacklogDSN)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"bad duration", "STREAM_DEBOUNCE", "soon", "STREAM_DEBOUNCE"},
		{"bad int", "DELIVERY_MAX_RETRIES", "many", "DELIVERY_MAX_RETRIES"},
		{"zero retries", "DELIVERY_MAX_RETRIES", "0", "DELIVERY_MAX_RETRIES"},
		{"bad float", "DIFF_SIMILARITY_THRESHOLD", "high", "DIFF_SIMILARITY_THRESHOLD"},
		{"threshold out of range", "DIFF_SIMILARITY_THRESHOLD", "1.5", "DIFF_SIMILARITY_THRESHOLD"},
		{"bad bool", "STREAM_SANITIZE", "maybe", "STREAM_SANITIZE"},
		{"unknown sink", "SINK_MODE", "carrier-pigeon", "SINK_MODE"},
		{"nats without url", "SINK_MODE", "nats", "SINK_NATS_URL"},
		{"ws without url", "SINK_MODE", "ws", "SINK_WS_URL"},
		{"bad log format", "LOG_FORMAT", "xml", "LOG_FORMAT"},
		{"force window", "CHUNK_FORCE_MAX", "100", "CHUNK_FORCE_MAX"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			if err == nil {
				t.Fatalf("Load() error = nil, want error mentioning %s", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"SINK_MODE",
		"SINK_HTTP_URL",
		"SINK_NATS_URL",
		"SINK_NATS_SUBJECT",
		"SINK_WS_URL",
		"SINK_REQUEST_TIMEOUT",
		"STREAM_DEBOUNCE",
		"STREAM_FIRST_CONTENT_DEBOUNCE",
		"STREAM_INACTIVITY_TIMEOUT",
		"STREAM_SANITIZE",
		"STREAM_REDACT_PII",
		"CHUNK_PARAGRAPH_MIN",
		"CHUNK_SENTENCE_MIN",
		"CHUNK_PUNCT_TRIGGER",
		"CHUNK_PUNCT_MIN",
		"CHUNK_FORCE_TRIGGER",
		"CHUNK_FORCE_WINDOW_MIN",
		"CHUNK_FORCE_MAX",
		"DIFF_SIMILARITY_THRESHOLD",
		"DELIVERY_MAX_RETRIES",
		"DELIVERY_BACKOFF_UNIT",
		"DELIVERY_PROBE_INTERVAL",
		"DELIVERY_DRAIN_PAUSE",
		"DELIVERY_MAX_REPLAYS",
		"BACKLOG_DSN",
		"RETIRED_SESSION_CACHE",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
