// Package api exposes the HTTP trigger surface for the sync service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/labelwatch/cola-sync/internal/config"
	"github.com/labelwatch/cola-sync/internal/metrics"
	"github.com/labelwatch/cola-sync/internal/publisher"
	"github.com/labelwatch/cola-sync/internal/syncer"
)

// SyncRunner executes one sync pass. *app.App satisfies it.
type SyncRunner interface {
	Run(ctx context.Context, strategy string) (publisher.Event, error)
}

// Server wires HTTP handlers to the sync runner. Runs are single-flight: a
// trigger while one is in progress is rejected with 409.
type Server struct {
	router chi.Router
	runner SyncRunner
	cfg    config.Config
	logger *zap.Logger

	runTimeout time.Duration

	mu      sync.Mutex
	running bool
	lastRun *publisher.Event
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner SyncRunner, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if runner == nil {
		return nil, errors.New("sync runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner:     runner,
		cfg:        cfg,
		logger:     logger,
		runTimeout: 30 * time.Minute,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// GET triggers too, matching the original cron-hook contract.
		r.Get("/sync", s.triggerSync)
		r.Post("/sync", s.triggerSync)
		r.Get("/sync/status", s.syncStatus)
		r.Get("/healthz", s.healthz)
	})

	s.router = r
	return s, nil
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// The storage target is constructed at startup; if the process is up,
	// it is ready to accept a trigger.
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type syncRequest struct {
	Strategy string `json:"strategy"`
}

func (s *Server) triggerSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = s.cfg.Sync.Strategy
	}
	switch strategy {
	case syncer.StrategyIncremental, syncer.StrategyFull, syncer.StrategyReplace:
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown strategy %q", strategy))
		return
	}
	if strategy == syncer.StrategyReplace && !s.cfg.Sync.ConfirmReplace {
		s.writeError(w, http.StatusForbidden, "replace strategy requires sync.confirm_replace")
		return
	}

	if !s.tryStart() {
		s.writeError(w, http.StatusConflict, "a sync run is already in progress")
		return
	}
	go s.runSync(strategy)

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":   "accepted",
		"strategy": strategy,
	})
}

func (s *Server) syncStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	running := s.running
	last := s.lastRun
	s.mu.Unlock()

	payload := map[string]any{"running": running}
	if last != nil {
		payload["last_run"] = last
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) tryStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

// runSync is detached from the triggering request: the 202 has already been
// written and the run outlives the connection.
func (s *Server) runSync(strategy string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	event, err := s.runner.Run(ctx, strategy)
	if err != nil {
		if event.Strategy == "" {
			event.Strategy = strategy
		}
		if event.Error == "" {
			event.Error = err.Error()
		}
	}

	s.mu.Lock()
	s.running = false
	s.lastRun = &event
	s.mu.Unlock()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		duration := time.Since(start)
		// The matched pattern, not the raw path, keeps the route label
		// a fixed set.
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.status, duration)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", duration.Milliseconds()))
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
