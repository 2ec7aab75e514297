package stream

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/speechrelay/internal/delivery"
	"github.com/ent0n29/speechrelay/internal/observability"
	"github.com/ent0n29/speechrelay/internal/policy"
	"github.com/ent0n29/speechrelay/internal/protocol"
	"github.com/ent0n29/speechrelay/internal/segment"
	"github.com/ent0n29/speechrelay/internal/session"
	"github.com/ent0n29/speechrelay/internal/sink"
)

var ErrNotRunning = errors.New("monitor not running")

// Queue is the delivery side of the pipeline.
type Queue interface {
	Send(ctx context.Context, chunk protocol.Chunk) (delivery.Outcome, error)
	RunProber(ctx context.Context)
	Healthy() bool
	BacklogLen(ctx context.Context) int
}

type Config struct {
	Debounce             time.Duration
	FirstContentDebounce time.Duration
	InactivityTimeout    time.Duration
	Sanitize             bool
	// RedactPII replaces emails, card and phone numbers with spoken
	// placeholders.
	RedactPII            bool
	Policy               segment.Policy
	SimilarityThreshold  float64
}

func DefaultConfig() Config {
	return Config{
		Debounce:             150 * time.Millisecond,
		FirstContentDebounce: 30 * time.Millisecond,
		InactivityTimeout:    45 * time.Second,
		Sanitize:             true,
		Policy:               segment.DefaultPolicy(),
		SimilarityThreshold:  DefaultSimilarityThreshold,
	}
}

type observation struct {
	id      string
	raw     string
	growing bool
	seq     uint64
}

// Monitor runs the segmentation pipeline for one response at a time.
//
// Observation passes are debounced and never overlap: a pass that finds the
// processing lock busy is dropped, and the lock holder re-arms the debounce
// when newer text arrived meanwhile. Final flushes and rotations wait for the
// lock.
type Monitor struct {
	cfg      Config
	sessions *session.Manager
	tracker  *DeltaTracker
	dedup    *DedupCache
	queue    Queue
	logger   *slog.Logger
	metrics  *observability.Metrics
	resetter sink.Resetter
	onChunk  func(protocol.Chunk, delivery.Outcome)

	proc sync.Mutex

	mu        sync.Mutex
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	timer     *time.Timer
	latest    observation
	seq       uint64
	emitted   bool
	lastSent  int
	lastChunk int
}

func NewMonitor(cfg Config, sessions *session.Manager, queue Queue, logger *slog.Logger, metrics *observability.Metrics) *Monitor {
	def := DefaultConfig()
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.FirstContentDebounce <= 0 {
		cfg.FirstContentDebounce = def.FirstContentDebounce
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = def.InactivityTimeout
	}
	if cfg.Policy == (segment.Policy{}) {
		cfg.Policy = def.Policy
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:      cfg,
		sessions: sessions,
		tracker:  NewDeltaTracker(cfg.SimilarityThreshold),
		dedup:    NewDedupCache(),
		queue:    queue,
		logger:   logger.With("component", "monitor"),
		metrics:  metrics,
	}
}

// SetResetter registers a sink told to reset playback state on rotation.
func (m *Monitor) SetResetter(r sink.Resetter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetter = r
}

// SetChunkObserver registers a callback run after each chunk is handed to
// delivery.
func (m *Monitor) SetChunkObserver(fn func(protocol.Chunk, delivery.Outcome)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChunk = fn
}

func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true

	m.sessions.SetExpireHook(m.expire)
	m.sessions.StartJanitor(m.ctx, janitorInterval(m.cfg.InactivityTimeout))
	go m.queue.RunProber(m.ctx)
	m.logger.Info("monitor started")
	return nil
}

// Stop clears any pending pass, stops the prober and retires the current
// response without a final flush. Deliveries already in flight finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.cancel()
	m.mu.Unlock()

	if cur := m.sessions.Current(); cur != nil {
		m.sessions.Retire(cur.ID)
	}
	m.metrics.SetActiveResponse(false)
	m.logger.Info("monitor stopped")
}

func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// BeginResponse starts tracking a new response; an empty id gets a generated
// one. A live previous response is final-flushed first.
func (m *Monitor) BeginResponse(id string) (string, error) {
	ctx, ok := m.runContext()
	if !ok {
		return "", ErrNotRunning
	}

	m.proc.Lock()
	defer m.proc.Unlock()

	if cur := m.sessions.Current(); cur != nil {
		if cur.ID == id {
			return id, nil
		}
		m.finalFlushLocked(ctx, cur, m.latestRaw(cur))
	}

	sess, err := m.sessions.Begin(id)
	if err != nil {
		return "", err
	}
	m.dedup.Reset(sess.ID)

	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.latest = observation{id: sess.ID}
	m.emitted = false
	m.lastSent, m.lastChunk = 0, 0
	resetter := m.resetter
	m.mu.Unlock()

	if resetter != nil {
		rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := resetter.ResetConversation(rctx); err != nil {
			m.logger.Warn("sink conversation reset failed", "response_id", sess.ID, "error", err)
		}
		cancel()
	}
	m.metrics.SetActiveResponse(true)
	m.logger.Info("response started", "response_id", sess.ID)
	return sess.ID, nil
}

// OnTextObserved feeds the current full text of the current response.
func (m *Monitor) OnTextObserved(raw string, stillGrowing bool) error {
	return m.ObserveResponse("", raw, stillGrowing)
}

// OnStreamingEnded final-flushes the current response.
func (m *Monitor) OnStreamingEnded() error {
	return m.EndResponse("")
}

// ObserveResponse feeds the full text of response id (empty for the current
// one). An unknown id starts a new response; a retired id is refused with
// session.ErrRetired. stillGrowing=false ends the response.
func (m *Monitor) ObserveResponse(id, raw string, stillGrowing bool) error {
	if !m.Running() {
		return ErrNotRunning
	}

	sess, err := m.sessions.Lookup(id)
	if errors.Is(err, session.ErrNotFound) {
		newID, berr := m.BeginResponse(id)
		if berr != nil {
			return berr
		}
		sess, err = m.sessions.Lookup(newID)
	}
	if err != nil {
		return err
	}
	if err := m.sessions.Touch(sess.ID, stillGrowing); err != nil {
		return err
	}

	m.mu.Lock()
	m.seq++
	m.latest = observation{id: sess.ID, raw: raw, growing: stillGrowing, seq: m.seq}
	if stillGrowing {
		m.armLocked()
	}
	m.mu.Unlock()

	if !stillGrowing {
		return m.finish(sess.ID)
	}
	return nil
}

// EndResponse final-flushes response id (empty for the current one).
func (m *Monitor) EndResponse(id string) error {
	if !m.Running() {
		return ErrNotRunning
	}
	sess, err := m.sessions.Lookup(id)
	if err != nil {
		return err
	}
	return m.finish(sess.ID)
}

// Status reports the pipeline and sink state.
func (m *Monitor) Status(ctx context.Context) protocol.MonitorStatus {
	st := protocol.MonitorStatus{
		Type:        protocol.TypeMonitorStatus,
		Running:     m.Running(),
		SinkHealthy: m.queue.Healthy(),
		BacklogLen:  m.queue.BacklogLen(ctx),
	}
	if info, ok := m.sessions.Info(); ok {
		st.ResponseID = info.ID
		st.Streaming = info.IsStreaming
		st.Retired = info.Retired
	}
	m.mu.Lock()
	st.SentLength, st.ChunkSeq = m.lastSent, m.lastChunk
	m.mu.Unlock()
	return st
}

func (m *Monitor) runContext() (context.Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil, false
	}
	// Deliveries outlive Stop.
	return context.WithoutCancel(m.ctx), true
}

func (m *Monitor) armLocked() {
	if m.timer != nil || !m.running {
		return
	}
	delay := m.cfg.Debounce
	if !m.emitted {
		delay = m.cfg.FirstContentDebounce
	}
	m.timer = time.AfterFunc(delay, m.runPass)
}

func (m *Monitor) runPass() {
	m.mu.Lock()
	m.timer = nil
	obs := m.latest
	running := m.running
	m.mu.Unlock()
	if !running || !obs.growing {
		return
	}
	if !m.proc.TryLock() {
		return
	}

	ctx, ok := m.runContext()
	if ok {
		if sess, err := m.sessions.Lookup(obs.id); err == nil && !sess.FinalAttempted {
			m.process(ctx, sess, obs.raw, false)
		}
	}
	m.proc.Unlock()

	m.mu.Lock()
	if m.latest.seq != obs.seq && m.latest.growing {
		m.armLocked()
	}
	m.mu.Unlock()
}

func (m *Monitor) finish(id string) error {
	ctx, ok := m.runContext()
	if !ok {
		return ErrNotRunning
	}

	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()

	m.proc.Lock()
	defer m.proc.Unlock()
	sess, err := m.sessions.Lookup(id)
	if errors.Is(err, session.ErrRetired) {
		return nil
	}
	if err != nil {
		return err
	}
	m.finalFlushLocked(ctx, sess, m.latestRaw(sess))
	return nil
}

func (m *Monitor) expire(id string) {
	m.logger.Info("response inactive, finalizing", "response_id", id)
	if err := m.finish(id); err != nil && !errors.Is(err, ErrNotRunning) {
		m.logger.Warn("inactive response flush failed", "response_id", id, "error", err)
	}
}

// finalFlushLocked emits everything left in sess, marks the last chunk final
// and retires the session. Runs at most once per session.
func (m *Monitor) finalFlushLocked(ctx context.Context, sess *session.ResponseSession, raw string) {
	if sess.FinalAttempted {
		return
	}
	sess.FinalAttempted = true
	start := time.Now()
	m.process(ctx, sess, raw, true)
	m.sessions.Retire(sess.ID)
	m.dedup.Reset(sess.ID)
	m.metrics.SetActiveResponse(false)
	m.metrics.ObserveStage("final_flush", time.Since(start))
	m.logger.Info("response finalized", "response_id", sess.ID, "chunks", sess.ChunkSeq)
}

func (m *Monitor) latestRaw(sess *session.ResponseSession) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest.id == sess.ID && m.latest.seq > 0 {
		return m.latest.raw
	}
	return sess.RawSnapshot
}

// process runs one pipeline pass. The caller holds the processing lock.
func (m *Monitor) process(ctx context.Context, sess *session.ResponseSession, raw string, final bool) {
	start := time.Now()
	delta := m.tracker.Observe(sess, raw, final)
	switch delta.Kind {
	case ChangeReplaced:
		m.dedup.Reset(sess.ID)
		m.metrics.ObserveDiff(string(delta.Kind))
		m.logger.Info("response content replaced", "response_id", sess.ID, "similarity", delta.Similarity)
	case ChangeDiverged:
		m.metrics.ObserveDiff(string(delta.Kind))
		m.logger.Warn("response diverged without rotation", "response_id", sess.ID, "similarity", delta.Similarity)
	case ChangeShrink:
		m.metrics.ObserveDiff(string(delta.Kind))
		m.logger.Debug("response shrank, ignoring", "response_id", sess.ID)
	}

	var units []string
	pending := sess.Pending()
	for {
		u, ok := m.cfg.Policy.FindSpeakableUnit(pending)
		if !ok {
			break
		}
		units = append(units, u.Text)
		sess.SentLength += u.Consumed
		pending = pending[u.Consumed:]
	}
	if final {
		if tail := strings.TrimSpace(pending); tail != "" {
			units = append(units, tail)
		}
		sess.SentLength = len(sess.CleanedSnapshot)
	}

	texts := units[:0]
	for _, text := range units {
		if m.cfg.Sanitize {
			text = segment.SanitizeSpeech(text)
		}
		if m.cfg.RedactPII {
			var changed bool
			if text, changed = policy.RedactForSpeech(text); changed {
				m.logger.Debug("chunk redacted", "response_id", sess.ID)
			}
		}
		if text = strings.TrimSpace(text); text != "" {
			texts = append(texts, text)
		}
	}
	for i, text := range texts {
		m.emit(ctx, sess, text, final && i == len(texts)-1)
	}

	m.mu.Lock()
	m.lastSent, m.lastChunk = sess.SentLength, sess.ChunkSeq
	m.mu.Unlock()
	m.metrics.ObserveStage("pipeline_pass", time.Since(start))
}

func (m *Monitor) emit(ctx context.Context, sess *session.ResponseSession, text string, final bool) {
	if !m.dedup.ShouldSend(sess.ID, text, final) {
		m.metrics.ObserveDedupSkip()
		m.logger.Debug("chunk already sent", "response_id", sess.ID)
		return
	}

	chunk := protocol.Chunk{
		Text:       text,
		IsFinal:    final,
		ResponseID: sess.ID,
		SequenceID: sess.NextSeq(),
	}
	if chunk.SequenceID == 1 {
		m.metrics.ObserveStage("observe_to_first_chunk", time.Since(sess.CreatedAt))
	}
	m.mu.Lock()
	m.emitted = true
	onChunk := m.onChunk
	m.mu.Unlock()
	m.metrics.ObserveChunk(final)

	outcome, err := m.queue.Send(ctx, chunk)
	if err != nil {
		m.logger.Warn("chunk not delivered", "response_id", chunk.ResponseID,
			"sequence_id", chunk.SequenceID, "outcome", outcome, "error", err)
	} else {
		m.logger.Debug("chunk sent", "response_id", chunk.ResponseID,
			"sequence_id", chunk.SequenceID, "outcome", outcome, "final", final)
	}
	if onChunk != nil {
		onChunk(chunk, outcome)
	}
}

func janitorInterval(timeout time.Duration) time.Duration {
	d := timeout / 4
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
