// Package api exposes the operational HTTP surface of the pipeline: health
// probes, Prometheus metrics and read-only run history.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kaishamap/company-pipeline/internal/metrics"
	"github.com/kaishamap/company-pipeline/internal/progress"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
	readyTimeout     = 3 * time.Second
)

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires the operational endpoints onto a chi router.
type Server struct {
	router  chi.Router
	tracker *progress.Tracker
	pinger  Pinger
	logger  *zap.Logger
}

// NewServer constructs a Server. pinger may be nil when the process runs
// without a database, which turns /readyz into a plain liveness check.
func NewServer(tracker *progress.Tracker, pinger Pinger, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		tracker: tracker,
		pinger:  pinger,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(metrics.Middleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/runs", s.listRuns)
		r.Get("/runs/{run_id}", s.getRun)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.pinger == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.pinger.Ping(ctx); err != nil {
		s.logger.Warn("readiness ping failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		writeError(w, http.StatusServiceUnavailable, "run tracking unavailable")
		return
	}
	limit := defaultRunsLimit
	if limStr := r.URL.Query().Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if val > maxRunsLimit {
			val = maxRunsLimit
		}
		limit = val
	}
	runs := s.tracker.Recent(limit)
	writeJSON(w, http.StatusOK, map[string]any{"runs": toRunDTOs(runs)})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		writeError(w, http.StatusServiceUnavailable, "run tracking unavailable")
		return
	}
	id, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	run, ok := s.tracker.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toRunDTO(run)})
}

func parseRunID(r *http.Request) (uuid.UUID, error) {
	idStr := chi.URLParam(r, "run_id")
	if idStr == "" {
		return uuid.UUID{}, errors.New("run_id is required")
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid run_id")
	}
	return id, nil
}

type runDTO struct {
	ID         string     `json:"id"`
	Command    string     `json:"command"`
	Source     string     `json:"source"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	Created    int        `json:"created"`
	Updated    int        `json:"updated"`
	Skipped    int        `json:"skipped"`
	NotFound   int        `json:"not_found"`
	Failed     int        `json:"failed"`
}

func toRunDTOs(in []progress.Run) []runDTO {
	out := make([]runDTO, 0, len(in))
	for _, run := range in {
		out = append(out, toRunDTO(run))
	}
	return out
}

func toRunDTO(run progress.Run) runDTO {
	return runDTO{
		ID:         run.ID.String(),
		Command:    run.Command,
		Source:     run.Source,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Status:     string(run.Status),
		Error:      run.Error,
		Created:    run.Summary.Created,
		Updated:    run.Summary.Updated,
		Skipped:    run.Summary.Skipped,
		NotFound:   run.Summary.NotFound,
		Failed:     run.Summary.Failed,
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Debug("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
