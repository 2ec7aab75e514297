package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/speechrelay/internal/backlog"
	"github.com/ent0n29/speechrelay/internal/config"
	"github.com/ent0n29/speechrelay/internal/observability"
	"github.com/ent0n29/speechrelay/internal/protocol"
	"github.com/ent0n29/speechrelay/internal/session"
	"github.com/ent0n29/speechrelay/internal/stream"
)

// Monitor is the pipeline surface driven over HTTP.
type Monitor interface {
	Start(ctx context.Context) error
	Stop()
	Running() bool
	BeginResponse(id string) (string, error)
	ObserveResponse(id, raw string, stillGrowing bool) error
	EndResponse(id string) error
	Status(ctx context.Context) protocol.MonitorStatus
}

// BacklogViewer lists chunks waiting for the sink.
type BacklogViewer interface {
	Backlog(ctx context.Context, limit int) ([]backlog.Item, error)
}

type Server struct {
	cfg      config.Config
	monitor  Monitor
	backlog  BacklogViewer
	metrics  *observability.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, monitor Monitor, backlog BacklogViewer, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		monitor: monitor,
		backlog: backlog,
		metrics: metrics,
		logger:  logger.With("component", "httpapi"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browser pages from other origins must not drive the monitor.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Route("/v1/monitor", func(r chi.Router) {
		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)
		r.Post("/responses", s.handleBeginResponse)
		r.Post("/observe", s.handleObserve)
		r.Post("/end", s.handleEnd)
		r.Get("/status", s.handleStatus)
		r.Get("/backlog", s.handleBacklog)
		r.Get("/latency", s.handleLatency)
		r.Post("/latency/reset", s.handleLatencyReset)
		r.Get("/ws", s.handleMonitorWS)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	st := s.monitor.Status(r.Context())
	status, code := "ready", http.StatusOK
	if !st.Running {
		status, code = "not_running", http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]any{
		"status":       status,
		"sink_healthy": st.SinkHealthy,
		"backlog_len":  st.BacklogLen,
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	// The monitor outlives this request.
	if err := s.monitor.Start(context.WithoutCancel(r.Context())); err != nil {
		respondError(w, http.StatusInternalServerError, "start_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.monitor.Status(r.Context()))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.monitor.Stop()
	respondJSON(w, http.StatusOK, s.monitor.Status(r.Context()))
}

type beginRequest struct {
	ResponseID string `json:"response_id"`
}

func (s *Server) handleBeginResponse(w http.ResponseWriter, r *http.Request) {
	var req beginRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	id, err := s.monitor.BeginResponse(strings.TrimSpace(req.ResponseID))
	if err != nil {
		s.respondMonitorError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"response_id": id})
}

func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	var req protocol.TextObserved
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.monitor.ObserveResponse(strings.TrimSpace(req.ResponseID), req.Text, req.StillGrowing); err != nil {
		s.respondMonitorError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, s.monitor.Status(r.Context()))
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	var req protocol.StreamingEnded
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.monitor.EndResponse(strings.TrimSpace(req.ResponseID)); err != nil {
		s.respondMonitorError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.monitor.Status(r.Context()))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.monitor.Status(r.Context()))
}

func (s *Server) handleBacklog(w http.ResponseWriter, r *http.Request) {
	if s.backlog == nil {
		respondJSON(w, http.StatusOK, map[string]any{"items": []backlog.Item{}})
		return
	}
	limit := 50
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	items, err := s.backlog.Backlog(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "backlog_unavailable", err.Error())
		return
	}
	if items == nil {
		items = []backlog.Item{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) respondMonitorError(w http.ResponseWriter, err error) {
	code, _ := errorCode(err)
	switch code {
	case "monitor_not_running", "response_retired":
		respondError(w, http.StatusConflict, code, err.Error())
	case "response_not_found":
		respondError(w, http.StatusNotFound, code, err.Error())
	default:
		s.logger.Error("monitor request failed", "error", err)
		respondError(w, http.StatusInternalServerError, code, err.Error())
	}
}

// errorCode maps a monitor error to the code used in REST and websocket
// error payloads.
func errorCode(err error) (string, bool) {
	switch {
	case errors.Is(err, stream.ErrNotRunning):
		return "monitor_not_running", true
	case errors.Is(err, session.ErrRetired):
		return "response_retired", false
	case errors.Is(err, session.ErrNotFound):
		return "response_not_found", false
	default:
		return "internal", true
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
