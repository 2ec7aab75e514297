package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ChunksEmitted    *prometheus.CounterVec
	DeliveryOutcomes *prometheus.CounterVec
	DeliveryAttempts *prometheus.CounterVec
	DeliveryLatency  prometheus.Histogram
	BacklogSize      prometheus.Gauge
	SinkHealthy      prometheus.Gauge
	DiffEvents       *prometheus.CounterVec
	DedupSkips       prometheus.Counter
	ActiveResponses  prometheus.Gauge
	WSMessages       *prometheus.CounterVec

	stages *StageWindow
}

// NewMetrics registers the instruments on reg, or on the default registry
// when reg is nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		ChunksEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_emitted_total",
			Help:      "Speakable chunks handed to delivery, by finality.",
		}, []string{"final"}),
		DeliveryOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_outcomes_total",
			Help:      "Chunk delivery outcomes.",
		}, []string{"outcome"}),
		DeliveryAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_attempts_total",
			Help:      "Sink delivery attempts by result.",
		}, []string{"result"}),
		DeliveryLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_latency_ms",
			Help:      "Latency of a single sink delivery attempt in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 8000},
		}),
		BacklogSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backlog_size",
			Help:      "Chunks waiting for the sink to recover.",
		}),
		SinkHealthy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sink_healthy",
			Help:      "1 when the last sink health probe succeeded.",
		}),
		DiffEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diff_events_total",
			Help:      "Delta tracker classifications.",
		}, []string{"kind"}),
		DedupSkips: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_skips_total",
			Help:      "Chunks suppressed as already sent.",
		}),
		ActiveResponses: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_responses",
			Help:      "1 while a response is being monitored.",
		}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		stages: NewStageWindow(256),
	}
}

func (m *Metrics) ObserveChunk(final bool) {
	if m == nil {
		return
	}
	label := "false"
	if final {
		label = "true"
	}
	m.ChunksEmitted.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.DeliveryOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAttempt(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.DeliveryAttempts.WithLabelValues(result).Inc()
	m.DeliveryLatency.Observe(float64(d.Milliseconds()))
	m.stages.Observe("delivery_attempt", float64(d.Microseconds())/1000)
}

func (m *Metrics) SetBacklog(n int) {
	if m == nil {
		return
	}
	m.BacklogSize.Set(float64(n))
}

func (m *Metrics) SetSinkHealthy(healthy bool) {
	if m == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1
	}
	m.SinkHealthy.Set(v)
}

func (m *Metrics) ObserveDiff(kind string) {
	if m == nil {
		return
	}
	m.DiffEvents.WithLabelValues(kind).Inc()
	m.stages.ObserveIndicator("diff_" + kind)
}

func (m *Metrics) ObserveDedupSkip() {
	if m == nil {
		return
	}
	m.DedupSkips.Inc()
	m.stages.ObserveIndicator("dedup_skip")
}

func (m *Metrics) SetActiveResponse(active bool) {
	if m == nil {
		return
	}
	v := 0.0
	if active {
		v = 1
	}
	m.ActiveResponses.Set(v)
}

// ObserveStage records a pipeline stage duration.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.Observe(stage, float64(d.Microseconds())/1000)
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// Stages returns the rolling per-stage latency summary.
func (m *Metrics) Stages() StageSnapshot {
	if m == nil {
		return StageSnapshot{}
	}
	return m.stages.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// MetricsHandlerFor serves the given gatherer.
func MetricsHandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) ResetStages() {
	if m == nil {
		return
	}
	m.stages.Reset()
}
