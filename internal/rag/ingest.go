package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wujekbizon/wolfmed-progress/internal/metrics"
	"github.com/wujekbizon/wolfmed-progress/internal/parser"
	"github.com/wujekbizon/wolfmed-progress/internal/progress"
)

const (
	msgIngestFailed = "The document could not be added to the knowledge base. Please try again."
	msgEmptyDoc     = "The document is empty."
)

// ChunkStore persists document chunks with their embeddings.
type ChunkStore interface {
	CreateChunk(ctx context.Context, content string, source, heading *string, position int, embedding []float32) error
	DeleteChunksBySource(ctx context.Context, source string) error
}

// TextEmbedder turns text into an embedding vector.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// IngestResult summarizes one ingestion job.
type IngestResult struct {
	Title         string `json:"title"`
	ChunksCreated int    `json:"chunksCreated"`
}

// IngestService chunks Markdown documents, embeds each chunk, and stores
// them in the knowledge base, narrating per-chunk progress through the
// tracker so a long document shows a moving bar instead of a stall.
type IngestService struct {
	tracker   *progress.Tracker
	chunks    ChunkStore
	embedder  TextEmbedder
	config    parser.ChunkConfig
	logger    *slog.Logger
	collector *metrics.Collector
}

// NewIngestService wires the ingestion pipeline.
func NewIngestService(tracker *progress.Tracker, chunks ChunkStore, embedder TextEmbedder, logger *slog.Logger, collector *metrics.Collector) *IngestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestService{
		tracker:   tracker,
		chunks:    chunks,
		embedder:  embedder,
		config:    parser.DefaultChunkConfig(),
		logger:    logger,
		collector: collector,
	}
}

// IngestMarkdown ingests one document under a caller-generated job id.
// Re-ingesting the same source replaces its previous chunks. Progress moves
// from 10 (parsed) through 20..90 (per chunk) to completion.
func (s *IngestService) IngestMarkdown(ctx context.Context, jobID, source, content string) (*IngestResult, error) {
	start := time.Now()
	if s.collector != nil {
		defer func() {
			s.collector.RecordTiming(metrics.OpIngest, time.Since(start))
		}()
	}

	if err := s.tracker.CreateJob(ctx, jobID); err != nil {
		return nil, fmt.Errorf("create job %s: %w", jobID, err)
	}

	s.tracker.EmitProgress(ctx, jobID, "parsing", 5, progress.WithMessage("Reading the document..."))

	if strings.TrimSpace(content) == "" {
		s.tracker.ErrorJob(ctx, jobID, msgEmptyDoc, "empty document body")
		return nil, fmt.Errorf("empty document")
	}

	doc := parser.Parse(content)
	pieces := parser.Split(doc, s.config)

	s.tracker.EmitLog(ctx, jobID, progress.LevelInfo,
		fmt.Sprintf("split %q into %d chunks", source, len(pieces)), progress.AudienceTechnical)
	s.tracker.EmitProgress(ctx, jobID, "chunking", 10,
		progress.WithMessage(fmt.Sprintf("Splitting into %d fragments...", len(pieces))))

	// Replace any previous ingest of this source
	if err := s.chunks.DeleteChunksBySource(ctx, source); err != nil {
		s.logger.Error("chunk cleanup failed", "job_id", jobID, "source", source, "error", err)
		s.tracker.ErrorJob(ctx, jobID, msgIngestFailed, fmt.Sprintf("delete old chunks: %v", err))
		return nil, fmt.Errorf("delete old chunks: %w", err)
	}

	for i, piece := range pieces {
		// 20..90 spread across the chunks
		pct := 20 + (70*i)/len(pieces)
		s.tracker.EmitProgress(ctx, jobID, "embedding", pct,
			progress.WithMessage(fmt.Sprintf("Embedding fragment %d of %d...", i+1, len(pieces))),
			progress.WithTool("embedder"))

		embedding, err := s.embedder.Embed(ctx, piece.Content)
		if err != nil {
			s.logger.Error("embedding failed", "job_id", jobID, "position", piece.Position, "error", err)
			s.tracker.ErrorJob(ctx, jobID, msgIngestFailed, fmt.Sprintf("embed chunk %d: %v", piece.Position, err))
			return nil, fmt.Errorf("embed chunk %d: %w", piece.Position, err)
		}

		var heading *string
		if piece.Heading != "" {
			heading = &piece.Heading
		}
		if err := s.chunks.CreateChunk(ctx, piece.Content, &source, heading, piece.Position, embedding); err != nil {
			s.logger.Error("chunk store failed", "job_id", jobID, "position", piece.Position, "error", err)
			s.tracker.ErrorJob(ctx, jobID, msgIngestFailed, fmt.Sprintf("store chunk %d: %v", piece.Position, err))
			return nil, fmt.Errorf("store chunk %d: %w", piece.Position, err)
		}
	}

	s.tracker.EmitProgress(ctx, jobID, "finalizing", 95)
	s.tracker.CompleteJob(ctx, jobID)

	s.logger.Info("document ingested", "job_id", jobID, "source", source,
		"chunks", len(pieces), "duration_ms", time.Since(start).Milliseconds())

	return &IngestResult{
		Title:         doc.Title,
		ChunksCreated: len(pieces),
	}, nil
}
