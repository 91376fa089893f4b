package stream

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wujekbizon/wolfmed-progress/internal/progress"
)

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestWS_MissingJobID(t *testing.T) {
	h := NewWSHandler(newTestTracker(t), fastOptions(), slog.New(slog.DiscardHandler), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rag/progress/ws", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWS_TerminalJobRefusesUpgrade(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()
	require.NoError(t, tracker.CreateJob(ctx, "done"))
	tracker.CompleteJob(ctx, "done")

	h := NewWSHandler(tracker, fastOptions(), slog.New(slog.DiscardHandler), nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "?jobId=done"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestWS_ReplayThenLiveUntilClose(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()
	require.NoError(t, tracker.CreateJob(ctx, "job-1"))
	tracker.EmitProgress(ctx, "job-1", "parsing", 10)
	tracker.EmitProgress(ctx, "job-1", "searching", 60)

	h := NewWSHandler(tracker, fastOptions(), slog.New(slog.DiscardHandler), nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		tracker.CompleteJob(ctx, "job-1")
	}()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?jobId=job-1"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var frames []Frame
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure),
				"server closes normally after the terminal event, got: %v", err)
			break
		}
		frames = append(frames, f)
	}

	// parsing, searching, closing log, complete
	require.Len(t, frames, 4)
	for i, f := range frames {
		assert.Equal(t, int64(i+1), f.ID)
	}
	assert.Equal(t, progress.EventComplete, frames[3].Type)
}

func TestWS_ResumeSkipsSeenEvents(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()
	require.NoError(t, tracker.CreateJob(ctx, "job-1"))
	tracker.EmitProgress(ctx, "job-1", "parsing", 10)
	tracker.EmitProgress(ctx, "job-1", "searching", 40)
	tracker.EmitProgress(ctx, "job-1", "generating", 75)

	h := NewWSHandler(tracker, fastOptions(), slog.New(slog.DiscardHandler), nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		tracker.CompleteJob(ctx, "job-1")
	}()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?jobId=job-1&lastEventId=2"), nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var first Frame
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, int64(3), first.ID, "replay starts after the resumption cursor")
}
