package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the speech relay service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	LogLevel  string
	LogFormat string

	SinkMode           string
	SinkHTTPURL        string
	SinkNATSURL        string
	SinkNATSSubject    string
	SinkWSURL          string
	SinkRequestTimeout time.Duration

	StreamDebounce             time.Duration
	StreamFirstContentDebounce time.Duration
	StreamInactivityTimeout    time.Duration
	StreamSanitize             bool
	StreamRedactPII            bool

	ChunkParagraphMin   int
	ChunkSentenceMin    int
	ChunkPunctTrigger   int
	ChunkPunctMin       int
	ChunkForceTrigger   int
	ChunkForceWindowMin int
	ChunkForceMax       int

	DiffSimilarityThreshold float64

	DeliveryMaxRetries    int
	DeliveryBackoffUnit   time.Duration
	DeliveryProbeInterval time.Duration
	DeliveryDrainPause    time.Duration
	DeliveryMaxReplays    int

	BacklogDSN          string
	RetiredSessionCache int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8090"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "speechrelay"),
		LogLevel:         strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(envOrDefault("LOG_FORMAT", "text")),
		SinkMode:         strings.ToLower(envOrDefault("SINK_MODE", "auto")),
		SinkHTTPURL:      envOrDefault("SINK_HTTP_URL", "http://127.0.0.1:5000"),
		SinkNATSURL:      stringsTrimSpace("SINK_NATS_URL"),
		SinkNATSSubject:  envOrDefault("SINK_NATS_SUBJECT", "speech.chunks"),
		SinkWSURL:        stringsTrimSpace("SINK_WS_URL"),
		BacklogDSN:       stringsTrimSpace("BACKLOG_DSN"),

		ShutdownTimeout:            15 * time.Second,
		SinkRequestTimeout:         8 * time.Second,
		StreamDebounce:             150 * time.Millisecond,
		StreamFirstContentDebounce: 30 * time.Millisecond,
		StreamInactivityTimeout:    45 * time.Second,
		StreamSanitize:             true,

		ChunkParagraphMin:   20,
		ChunkSentenceMin:    10,
		ChunkPunctTrigger:   100,
		ChunkPunctMin:       60,
		ChunkForceTrigger:   300,
		ChunkForceWindowMin: 200,
		ChunkForceMax:       250,

		DiffSimilarityThreshold: 0.7,

		DeliveryMaxRetries:    3,
		DeliveryBackoffUnit:   500 * time.Millisecond,
		DeliveryProbeInterval: 5 * time.Second,
		DeliveryDrainPause:    250 * time.Millisecond,
		DeliveryMaxReplays:    5,

		RetiredSessionCache: 512,
	}

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"APP_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"SINK_REQUEST_TIMEOUT", &cfg.SinkRequestTimeout},
		{"STREAM_DEBOUNCE", &cfg.StreamDebounce},
		{"STREAM_FIRST_CONTENT_DEBOUNCE", &cfg.StreamFirstContentDebounce},
		{"STREAM_INACTIVITY_TIMEOUT", &cfg.StreamInactivityTimeout},
		{"DELIVERY_BACKOFF_UNIT", &cfg.DeliveryBackoffUnit},
		{"DELIVERY_PROBE_INTERVAL", &cfg.DeliveryProbeInterval},
		{"DELIVERY_DRAIN_PAUSE", &cfg.DeliveryDrainPause},
	}
	for _, d := range durations {
		if *d.dst, err = durationFromEnv(d.key, *d.dst); err != nil {
			return Config{}, err
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"CHUNK_PARAGRAPH_MIN", &cfg.ChunkParagraphMin},
		{"CHUNK_SENTENCE_MIN", &cfg.ChunkSentenceMin},
		{"CHUNK_PUNCT_TRIGGER", &cfg.ChunkPunctTrigger},
		{"CHUNK_PUNCT_MIN", &cfg.ChunkPunctMin},
		{"CHUNK_FORCE_TRIGGER", &cfg.ChunkForceTrigger},
		{"CHUNK_FORCE_WINDOW_MIN", &cfg.ChunkForceWindowMin},
		{"CHUNK_FORCE_MAX", &cfg.ChunkForceMax},
		{"DELIVERY_MAX_RETRIES", &cfg.DeliveryMaxRetries},
		{"DELIVERY_MAX_REPLAYS", &cfg.DeliveryMaxReplays},
		{"RETIRED_SESSION_CACHE", &cfg.RetiredSessionCache},
	}
	for _, n := range ints {
		if *n.dst, err = intFromEnv(n.key, *n.dst); err != nil {
			return Config{}, err
		}
	}

	cfg.DiffSimilarityThreshold, err = floatFromEnv("DIFF_SIMILARITY_THRESHOLD", cfg.DiffSimilarityThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.StreamSanitize, err = boolFromEnv("STREAM_SANITIZE", cfg.StreamSanitize)
	if err != nil {
		return Config{}, err
	}
	cfg.StreamRedactPII, err = boolFromEnv("STREAM_REDACT_PII", cfg.StreamRedactPII)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.SinkMode {
	case "auto", "http", "nats", "ws", "mock":
	default:
		return fmt.Errorf("SINK_MODE must be one of auto, http, nats, ws, mock")
	}
	if c.SinkMode == "nats" && c.SinkNATSURL == "" {
		return fmt.Errorf("SINK_NATS_URL is required when SINK_MODE=nats")
	}
	if c.SinkMode == "ws" && c.SinkWSURL == "" {
		return fmt.Errorf("SINK_WS_URL is required when SINK_MODE=ws")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json")
	}
	if c.SinkRequestTimeout <= 0 {
		return fmt.Errorf("SINK_REQUEST_TIMEOUT must be positive")
	}
	if c.StreamDebounce <= 0 || c.StreamFirstContentDebounce <= 0 {
		return fmt.Errorf("STREAM_DEBOUNCE and STREAM_FIRST_CONTENT_DEBOUNCE must be positive")
	}
	if c.StreamInactivityTimeout < time.Second {
		return fmt.Errorf("STREAM_INACTIVITY_TIMEOUT must be at least 1s")
	}
	if c.ChunkSentenceMin < 0 || c.ChunkParagraphMin < 0 || c.ChunkPunctMin < 0 {
		return fmt.Errorf("chunk minimums must be >= 0")
	}
	if c.ChunkForceWindowMin <= 0 || c.ChunkForceMax < c.ChunkForceWindowMin {
		return fmt.Errorf("CHUNK_FORCE_MAX must be >= CHUNK_FORCE_WINDOW_MIN > 0")
	}
	if c.ChunkForceTrigger < c.ChunkForceMax {
		return fmt.Errorf("CHUNK_FORCE_TRIGGER must be >= CHUNK_FORCE_MAX")
	}
	if c.DiffSimilarityThreshold <= 0 || c.DiffSimilarityThreshold > 1 {
		return fmt.Errorf("DIFF_SIMILARITY_THRESHOLD must be in (0, 1]")
	}
	if c.DeliveryMaxRetries <= 0 {
		return fmt.Errorf("DELIVERY_MAX_RETRIES must be positive")
	}
	if c.DeliveryBackoffUnit < 0 || c.DeliveryDrainPause < 0 {
		return fmt.Errorf("DELIVERY_BACKOFF_UNIT and DELIVERY_DRAIN_PAUSE must be >= 0")
	}
	if c.DeliveryProbeInterval <= 0 {
		return fmt.Errorf("DELIVERY_PROBE_INTERVAL must be positive")
	}
	if c.DeliveryMaxReplays <= 0 {
		return fmt.Errorf("DELIVERY_MAX_REPLAYS must be positive")
	}
	if c.RetiredSessionCache <= 0 {
		return fmt.Errorf("RETIRED_SESSION_CACHE must be positive")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
