// Package main provides the entry point for the progress server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wujekbizon/wolfmed-progress/internal/config"
	"github.com/wujekbizon/wolfmed-progress/internal/db"
	"github.com/wujekbizon/wolfmed-progress/internal/metrics"
	"github.com/wujekbizon/wolfmed-progress/internal/progress"
	"github.com/wujekbizon/wolfmed-progress/internal/rag"
	"github.com/wujekbizon/wolfmed-progress/internal/server"
	"github.com/wujekbizon/wolfmed-progress/internal/store"
)

const version = "0.1.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()

	logger.Info("progress-server starting",
		"version", version,
		"port", cfg.ServerPort,
		"store", cfg.StoreBackend,
	)

	// Create context cancelled on shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	collector := metrics.NewCollector()

	// Build the event store
	var jobStore store.Store
	switch cfg.StoreBackend {
	case config.StoreRedis:
		rs, err := store.NewRedisStore(ctx, store.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			logger.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer rs.Close()
		jobStore = rs
	default:
		ms := store.NewMemoryStore(cfg.SweepInterval, logger)
		defer ms.Close()
		jobStore = ms
	}
	jobStore = store.Instrument(jobStore, collector)

	tracker := progress.NewTracker(jobStore, logger, progress.WithTTL(cfg.JobTTL))

	// Wire the RAG pipeline. The stream endpoints work without it, so a
	// missing knowledge base degrades the server instead of failing it.
	ragService, ingestService := buildRAGServices(ctx, cfg, tracker, collector, logger)

	srv := server.New(cfg, tracker, ragService, ingestService, collector, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// buildRAGServices connects to the knowledge base and the model providers.
// Returns nils when the database is unreachable; /api/rag/query and
// /api/rag/ingest then answer 503 while the progress stream stays available.
func buildRAGServices(ctx context.Context, cfg config.Config, tracker *progress.Tracker, collector *metrics.Collector, logger *slog.Logger) (*rag.Service, *rag.IngestService) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	dbClient, err := db.NewClient(connectCtx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		logger.Warn("knowledge base unavailable, query endpoint disabled", "error", err)
		return nil, nil
	}

	if err := dbClient.InitSchema(connectCtx); err != nil {
		logger.Warn("schema init failed, query endpoint disabled", "error", err)
		return nil, nil
	}

	embedder, err := rag.NewEmbedder(cfg)
	if err != nil {
		logger.Warn("embedder init failed, query endpoint disabled", "error", err)
		return nil, nil
	}

	model, err := rag.NewModel(cfg)
	if err != nil {
		logger.Warn("model init failed, query endpoint disabled", "error", err)
		return nil, nil
	}

	retriever := rag.NewDBRetriever(dbClient, embedder)
	queryService := rag.NewService(tracker, retriever, model, cfg.SearchLimit, logger, collector)
	ingestService := rag.NewIngestService(tracker, dbClient, embedder, logger, collector)
	return queryService, ingestService
}
