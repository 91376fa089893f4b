// Package server assembles the HTTP surface: the RAG query endpoint, the
// progress stream endpoints, health, and runtime stats.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wujekbizon/wolfmed-progress/internal/config"
	"github.com/wujekbizon/wolfmed-progress/internal/metrics"
	"github.com/wujekbizon/wolfmed-progress/internal/progress"
	"github.com/wujekbizon/wolfmed-progress/internal/rag"
	"github.com/wujekbizon/wolfmed-progress/internal/stream"
)

// Server wraps the HTTP server with its dependencies and lifecycle.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds the server. The RAG services may be nil, in which case the
// query and ingest endpoints respond 503; the stream endpoints work
// regardless, so a stripped-down deployment can still relay progress
// produced elsewhere.
func New(cfg config.Config, tracker *progress.Tracker, ragService *rag.Service, ingestService *rag.IngestService, collector *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	opts := stream.Options{
		HeartbeatInterval: cfg.HeartbeatInterval,
		PollInterval:      cfg.PollInterval,
		JobWaitTimeout:    cfg.JobWaitTimeout,
		RetryMillis:       cfg.RetryMillis,
		CleanupOnTerminal: cfg.StreamCleanup,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /api/rag/progress", stream.NewHandler(tracker, opts, logger, collector))
	mux.Handle("GET /api/rag/progress/ws", stream.NewWSHandler(tracker, opts, logger, collector))
	mux.Handle("POST /api/rag/query", queryHandler(ragService, logger))
	mux.Handle("POST /api/rag/ingest", ingestHandler(ingestService, logger))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	mux.HandleFunc("GET /api/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(collector.Snapshot()); err != nil {
			logger.Warn("stats encode failed", "error", err)
		}
	})

	httpServer := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     RequestLogging(logger)(mux),
		ReadTimeout: 5 * time.Second,
		// No write timeout: progress streams stay open for the life of
		// their job. Idle connections are still bounded.
		IdleTimeout: 120 * time.Second,
	}

	return &Server{httpServer: httpServer, logger: logger}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}
