package rag

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wujekbizon/wolfmed-progress/internal/db"
	"github.com/wujekbizon/wolfmed-progress/internal/progress"
	"github.com/wujekbizon/wolfmed-progress/internal/store"
)

type fakeRetriever struct {
	chunks []db.Chunk
	err    error
	gotQ   string
}

func (f *fakeRetriever) Search(_ context.Context, question string, _ int) ([]db.Chunk, error) {
	f.gotQ = question
	return f.chunks, f.err
}

type fakeGenerator struct {
	answer string
	err    error
	gotCtx string
}

func (f *fakeGenerator) Generate(_ context.Context, _, context string) (string, error) {
	f.gotCtx = context
	return f.answer, f.err
}

func strptr(s string) *string { return &s }

func testChunks() []db.Chunk {
	return []db.Chunk{
		{Content: "Hipoglikemia to stan obniżonego poziomu glukozy.", Source: strptr("diabetologia.md"), Position: 0},
		{Content: "Objawy: drżenie, potliwość, splątanie.", Source: strptr("diabetologia.md"), Heading: strptr("Objawy"), Position: 1},
	}
}

func newQueryService(t *testing.T, retriever Retriever, generator Generator) (*Service, *progress.Tracker) {
	t.Helper()
	s := store.NewMemoryStore(time.Hour, slog.New(slog.DiscardHandler))
	t.Cleanup(s.Close)
	tracker := progress.NewTracker(s, slog.New(slog.DiscardHandler))
	return NewService(tracker, retriever, generator, 5, slog.New(slog.DiscardHandler), nil), tracker
}

// eventTypes flattens a job's event log for sequence assertions.
func eventTypes(t *testing.T, tracker *progress.Tracker, jobID string) []progress.EventType {
	t.Helper()
	job := tracker.GetJob(context.Background(), jobID)
	require.NotNil(t, job)
	types := make([]progress.EventType, len(job.Events))
	for i, ev := range job.Events {
		types[i] = ev.Type
	}
	return types
}

// stages extracts the stage of every progress event in order.
func stages(t *testing.T, tracker *progress.Tracker, jobID string) []string {
	t.Helper()
	job := tracker.GetJob(context.Background(), jobID)
	require.NotNil(t, job)
	var out []string
	for _, ev := range job.Events {
		if ev.Type != progress.EventProgress {
			continue
		}
		pd, err := progress.DecodeProgress(ev)
		require.NoError(t, err)
		out = append(out, pd.Stage)
	}
	return out
}

func TestQuery_HappyPath(t *testing.T) {
	retriever := &fakeRetriever{chunks: testChunks()}
	generator := &fakeGenerator{answer: "Hipoglikemia wymaga szybkiego podania glukozy."}
	svc, tracker := newQueryService(t, retriever, generator)

	answer, err := svc.Query(context.Background(), "job-1", "  Czym jest hipoglikemia?  ")
	require.NoError(t, err)
	assert.Equal(t, "Hipoglikemia wymaga szybkiego podania glukozy.", answer.Answer)
	assert.Equal(t, []string{"diabetologia.md"}, answer.Sources, "duplicate sources collapse")

	assert.Equal(t, "Czym jest hipoglikemia?", retriever.gotQ, "question is trimmed before search")
	assert.Contains(t, generator.gotCtx, "drżenie", "retrieved chunks feed the generator")

	assert.Equal(t, []string{"parsing", "searching", "generating", "finalizing"}, stages(t, tracker, "job-1"))

	job := tracker.GetJob(context.Background(), "job-1")
	require.NotNil(t, job)
	assert.Equal(t, progress.StatusComplete, job.Status)
	assert.Equal(t, progress.EventComplete, job.Events[len(job.Events)-1].Type)
}

func TestQuery_EmptyQuestion(t *testing.T) {
	svc, tracker := newQueryService(t, &fakeRetriever{}, &fakeGenerator{})

	_, err := svc.Query(context.Background(), "job-1", "   ")
	require.Error(t, err)

	job := tracker.GetJob(context.Background(), "job-1")
	require.NotNil(t, job)
	assert.Equal(t, progress.StatusError, job.Status)

	last := job.Events[len(job.Events)-1]
	require.Equal(t, progress.EventError, last.Type)
	ed, err := progress.DecodeError(last)
	require.NoError(t, err)
	assert.Equal(t, msgEmptyQuestion, ed.Message)
}

func TestQuery_RetrievalFailure(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("connection refused")}
	svc, tracker := newQueryService(t, retriever, &fakeGenerator{})

	_, err := svc.Query(context.Background(), "job-1", "pytanie")
	require.Error(t, err)

	job := tracker.GetJob(context.Background(), "job-1")
	require.NotNil(t, job)
	assert.Equal(t, progress.StatusError, job.Status)

	last := job.Events[len(job.Events)-1]
	ed, derr := progress.DecodeError(last)
	require.NoError(t, derr)
	assert.Equal(t, msgQueryFailed, ed.Message, "users get the friendly message")
	assert.Contains(t, ed.TechnicalMessage, "connection refused", "operators get the cause")
}

func TestQuery_GenerationFailure(t *testing.T) {
	generator := &fakeGenerator{err: errors.New("model timeout")}
	svc, tracker := newQueryService(t, &fakeRetriever{chunks: testChunks()}, generator)

	_, err := svc.Query(context.Background(), "job-1", "pytanie")
	require.Error(t, err)

	job := tracker.GetJob(context.Background(), "job-1")
	require.NotNil(t, job)
	assert.Equal(t, progress.StatusError, job.Status)

	types := eventTypes(t, tracker, "job-1")
	var terminals int
	for _, typ := range types {
		if typ == progress.EventComplete || typ == progress.EventError {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals, "exactly one terminal event per job")
}

func TestQuery_NoResultsStillCompletes(t *testing.T) {
	svc, tracker := newQueryService(t, &fakeRetriever{}, &fakeGenerator{answer: "Brak materiałów na ten temat."})

	answer, err := svc.Query(context.Background(), "job-1", "pytanie bez pokrycia")
	require.NoError(t, err)
	assert.NotEmpty(t, answer.Answer)
	assert.Empty(t, answer.Sources)

	job := tracker.GetJob(context.Background(), "job-1")
	require.NotNil(t, job)
	assert.Equal(t, progress.StatusComplete, job.Status, "no hits is an answerable situation, not an error")
}

func TestQuery_OverlongQuestionTruncated(t *testing.T) {
	retriever := &fakeRetriever{chunks: testChunks()}
	svc, _ := newQueryService(t, retriever, &fakeGenerator{answer: "ok"})

	long := make([]byte, maxQuestionLength+500)
	for i := range long {
		long[i] = 'a'
	}

	_, err := svc.Query(context.Background(), "job-1", string(long))
	require.NoError(t, err)
	assert.Len(t, retriever.gotQ, maxQuestionLength)
}

func TestQuery_TruncationKeepsRunesIntact(t *testing.T) {
	retriever := &fakeRetriever{chunks: testChunks()}
	svc, _ := newQueryService(t, retriever, &fakeGenerator{answer: "ok"})

	// Two-byte runes land the byte cap mid-sequence; the cut must fall on a
	// rune boundary instead.
	long := "a" + strings.Repeat("ż", maxQuestionLength+200)

	_, err := svc.Query(context.Background(), "job-1", long)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(retriever.gotQ), "truncated question must stay valid UTF-8")
	assert.Equal(t, maxQuestionLength, utf8.RuneCountInString(retriever.gotQ))
}
