// Package status exposes the minimal read-only status HTTP endpoint.
// No other HTTP API is exposed; presentation lives in an external
// collaborator that polls this surface.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/jmylchreest/tvget/internal/config"
	"github.com/jmylchreest/tvget/internal/models"
	"github.com/jmylchreest/tvget/internal/version"
)

// TaskLister supplies a snapshot of the current task list.
type TaskLister interface {
	Tasks() []*models.Task
}

// PoolStats supplies the scheduler's live pool and queue figures.
type PoolStats interface {
	WorkerCount() int
	QueueLength() int
}

// Server is the status HTTP server.
type Server struct {
	cfg        config.ServerConfig
	router     *chi.Mux
	httpServer *http.Server
	tasks      TaskLister
	stats      PoolStats
	logger     *slog.Logger
}

// NewServer wires the two status routes onto a chi router.
func NewServer(cfg config.ServerConfig, tasks TaskLister, stats PoolStats, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		tasks:  tasks,
		stats:  stats,
		logger: logger,
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Get("/healthz", s.handleHealthz)
	router.Get("/status", s.handleStatus)
	s.router = router

	return s
}

// Handler returns the server's root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving on the configured address and blocks until the
// server stops. http.ErrServerClosed (the normal Shutdown result) is
// not reported as an error.
func (s *Server) Start() error {
	addr := s.cfg.Address()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("status endpoint listening", "address", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

// Shutdown drains the server within the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

type healthzResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, healthzResponse{Status: "ok", Version: version.Short()})
}

type taskSummary struct {
	ID         int64             `json:"id"`
	URL        string            `json:"url"`
	Status     models.TaskStatus `json:"status"`
	Title      string            `json:"title,omitempty"`
	OutputPath string            `json:"output_path,omitempty"`
}

type statusResponse struct {
	Workers     int           `json:"workers"`
	QueueLength int           `json:"queue_length"`
	Tasks       []taskSummary `json:"tasks"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tasks := s.tasks.Tasks()
	summaries := make([]taskSummary, 0, len(tasks))
	for _, t := range tasks {
		summaries = append(summaries, taskSummary{
			ID:         t.ID,
			URL:        t.Origin,
			Status:     t.Status,
			Title:      t.Metadata.Title,
			OutputPath: t.Output,
		})
	}

	s.writeJSON(w, statusResponse{
		Workers:     s.stats.WorkerCount(),
		QueueLength: s.stats.QueueLength(),
		Tasks:       summaries,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode status response", "error", err)
	}
}
