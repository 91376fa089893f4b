// Package rag runs retrieval-augmented-generation queries against the
// knowledge base, narrating progress through the job-progress tracker so a
// browser attached to the stream endpoint can follow along.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wujekbizon/wolfmed-progress/internal/db"
	"github.com/wujekbizon/wolfmed-progress/internal/metrics"
	"github.com/wujekbizon/wolfmed-progress/internal/progress"
)

// User-facing failure messages. Technical detail rides alongside in the
// error event's technical message.
const (
	msgEmptyQuestion  = "Please enter a question."
	msgQueryFailed    = "Something went wrong while answering your question. Please try again."
	msgNothingFound   = "No relevant material was found for this question."
	maxQuestionLength = 2000
)

// Retriever finds knowledge-base chunks relevant to a question.
type Retriever interface {
	Search(ctx context.Context, question string, limit int) ([]db.Chunk, error)
}

// Generator produces an answer from the question and retrieved context.
type Generator interface {
	Generate(ctx context.Context, question, context string) (string, error)
}

// Answer is the result of one query.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// Service is the producer side of the progress subsystem: it runs the
// pipeline and emits progress, log, and terminal events for the job id the
// browser supplied.
type Service struct {
	tracker     *progress.Tracker
	retriever   Retriever
	generator   Generator
	searchLimit int
	logger      *slog.Logger
	collector   *metrics.Collector
}

// NewService wires the pipeline.
func NewService(tracker *progress.Tracker, retriever Retriever, generator Generator, searchLimit int, logger *slog.Logger, collector *metrics.Collector) *Service {
	if searchLimit <= 0 {
		searchLimit = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tracker:     tracker,
		retriever:   retriever,
		generator:   generator,
		searchLimit: searchLimit,
		logger:      logger,
		collector:   collector,
	}
}

// Query runs the full pipeline for a caller-generated job id. It creates the
// job before any work, emits progress at each stage, and finishes with
// exactly one terminal event. The returned error mirrors the error event so
// the HTTP handler can also fail its own response.
func (s *Service) Query(ctx context.Context, jobID, question string) (*Answer, error) {
	start := time.Now()
	if s.collector != nil {
		defer func() {
			s.collector.RecordTiming(metrics.OpRAGQuery, time.Since(start))
		}()
	}

	if err := s.tracker.CreateJob(ctx, jobID); err != nil {
		// Without a job record there is nothing to narrate into; the
		// query itself still fails loudly to the caller.
		return nil, fmt.Errorf("create job %s: %w", jobID, err)
	}

	s.tracker.EmitProgress(ctx, jobID, "parsing", 10)
	question = strings.TrimSpace(question)
	if question == "" {
		s.tracker.ErrorJob(ctx, jobID, msgEmptyQuestion, "empty question after trim")
		return nil, fmt.Errorf("empty question")
	}
	if utf8.RuneCountInString(question) > maxQuestionLength {
		question = truncateRunes(question, maxQuestionLength)
		s.tracker.EmitLog(ctx, jobID, progress.LevelWarn,
			fmt.Sprintf("question truncated to %d runes", maxQuestionLength), progress.AudienceTechnical)
	}

	s.tracker.EmitProgress(ctx, jobID, "searching", 40)
	s.tracker.EmitLog(ctx, jobID, progress.LevelInfo,
		fmt.Sprintf("searching knowledge base (limit %d)", s.searchLimit), progress.AudienceTechnical)

	searchStart := time.Now()
	chunks, err := s.retriever.Search(ctx, question, s.searchLimit)
	if s.collector != nil {
		s.collector.RecordTiming(metrics.OpRetrieval, time.Since(searchStart))
	}
	if err != nil {
		s.logger.Error("retrieval failed", "job_id", jobID, "error", err)
		s.tracker.ErrorJob(ctx, jobID, msgQueryFailed, fmt.Sprintf("retrieval: %v", err))
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	if len(chunks) == 0 {
		s.tracker.EmitLog(ctx, jobID, progress.LevelWarn, msgNothingFound, progress.AudienceUser)
	}
	s.tracker.EmitLog(ctx, jobID, progress.LevelInfo,
		fmt.Sprintf("retrieved %d chunks", len(chunks)), progress.AudienceTechnical)

	s.tracker.EmitProgress(ctx, jobID, "generating", 75, progress.WithTool("llm"))

	genStart := time.Now()
	answer, err := s.generator.Generate(ctx, question, chunkContext(chunks))
	if s.collector != nil {
		s.collector.RecordTiming(metrics.OpGeneration, time.Since(genStart))
	}
	if err != nil {
		s.logger.Error("generation failed", "job_id", jobID, "error", err)
		s.tracker.ErrorJob(ctx, jobID, msgQueryFailed, fmt.Sprintf("generation: %v", err))
		return nil, fmt.Errorf("generation: %w", err)
	}

	s.tracker.EmitProgress(ctx, jobID, "finalizing", 95)
	s.tracker.CompleteJob(ctx, jobID)

	s.logger.Info("query answered", "job_id", jobID,
		"chunks", len(chunks), "duration_ms", time.Since(start).Milliseconds())

	return &Answer{
		Answer:  answer,
		Sources: chunkSources(chunks),
	}, nil
}

// truncateRunes cuts s to at most n runes, never splitting a UTF-8 sequence.
func truncateRunes(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[:i]
		}
		n--
	}
	return s
}

// chunkContext joins retrieved chunks into the prompt context block.
func chunkContext(chunks []db.Chunk) string {
	if len(chunks) == 0 {
		return "(no relevant material found)"
	}
	var b strings.Builder
	for i, ch := range chunks {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		if ch.Heading != nil && *ch.Heading != "" {
			fmt.Fprintf(&b, "## %s\n\n", *ch.Heading)
		}
		b.WriteString(ch.Content)
	}
	return b.String()
}

// chunkSources lists distinct source names in retrieval order.
func chunkSources(chunks []db.Chunk) []string {
	seen := make(map[string]bool, len(chunks))
	sources := []string{}
	for _, ch := range chunks {
		if ch.Source == nil || *ch.Source == "" || seen[*ch.Source] {
			continue
		}
		seen[*ch.Source] = true
		sources = append(sources, *ch.Source)
	}
	return sources
}
