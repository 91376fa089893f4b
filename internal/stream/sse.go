// Package stream bridges the pull-based job store to push-expecting clients
// over long-lived HTTP responses. The primary transport is server-sent
// events; ws.go mirrors the same frames over a websocket.
package stream

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/wujekbizon/wolfmed-progress/internal/metrics"
	"github.com/wujekbizon/wolfmed-progress/internal/progress"
)

// Default timer settings for one stream connection.
const (
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultPollInterval      = time.Second
	DefaultJobWaitTimeout    = 30 * time.Second
	DefaultRetryMillis       = 3000
)

// Options tune the per-connection timers.
type Options struct {
	// HeartbeatInterval is how often a comment frame keeps intermediaries
	// from closing an idle connection.
	HeartbeatInterval time.Duration

	// PollInterval is how often the store is re-read for new events.
	PollInterval time.Duration

	// JobWaitTimeout bounds how long a connection waits for a job that
	// does not exist yet.
	JobWaitTimeout time.Duration

	// RetryMillis is the reconnect backoff hint sent to the client.
	RetryMillis int

	// CleanupOnTerminal deletes the job once this connection has forwarded
	// its terminal event, freeing the store entry before TTL.
	CleanupOnTerminal bool
}

func (o *Options) applyDefaults() {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.JobWaitTimeout <= 0 {
		o.JobWaitTimeout = DefaultJobWaitTimeout
	}
	if o.RetryMillis <= 0 {
		o.RetryMillis = DefaultRetryMillis
	}
}

// Handler streams a job's event log as server-sent events. One HTTP response
// replays missed events, then polls for new ones until the job reaches a
// terminal state, the job never shows up within the wait timeout, or the
// client disconnects.
type Handler struct {
	tracker   *progress.Tracker
	opts      Options
	logger    *slog.Logger
	collector *metrics.Collector
}

// NewHandler creates the SSE delivery endpoint.
func NewHandler(tracker *progress.Tracker, opts Options, logger *slog.Logger, collector *metrics.Collector) *Handler {
	opts.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		tracker:   tracker,
		opts:      opts,
		logger:    logger,
		collector: collector,
	}
}

// lastEventID reads the resumption cursor from the standard Last-Event-ID
// header, falling back to the lastEventId query parameter.
func lastEventID(r *http.Request) int64 {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("lastEventId")
	}
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		http.Error(w, "missing jobId", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	// A job that is already terminal has nothing to stream; the client
	// treats 204 as "finished, fetch final state elsewhere".
	if job := h.tracker.GetJob(ctx, jobID); job != nil && job.Status.Terminal() {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	// Tells nginx-style proxies not to buffer the response.
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "retry: %d\n\n", h.opts.RetryMillis)
	flusher.Flush()

	if h.collector != nil {
		h.collector.StreamOpened()
		defer h.collector.StreamClosed()
	}

	cursor := lastEventID(r)
	h.logger.Debug("stream opened", "job_id", jobID, "last_event_id", cursor)

	// Replay anything the client missed before entering steady state.
	cursor, err := h.forward(w, flusher, h.tracker.GetEvents(ctx, jobID, cursor), cursor)
	if err != nil {
		return
	}

	heartbeat := time.NewTicker(h.opts.HeartbeatInterval)
	defer heartbeat.Stop()
	poll := time.NewTicker(h.opts.PollInterval)
	defer poll.Stop()
	deadline := time.Now().Add(h.opts.JobWaitTimeout)

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("stream client disconnected", "job_id", jobID)
			return

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				// Transport already gone; the poll path or ctx will
				// not be reached again, so stop here.
				return
			}
			flusher.Flush()

		case <-poll.C:
			job := h.tracker.GetJob(ctx, jobID)
			if job == nil {
				if time.Now().After(deadline) {
					h.logger.Debug("job never appeared, closing stream", "job_id", jobID)
					return
				}
				continue
			}

			cursor, err = h.forward(w, flusher, job.EventsAfter(cursor), cursor)
			if err != nil {
				return
			}
			if job.Status.Terminal() {
				h.logger.Debug("stream finished", "job_id", jobID, "status", job.Status, "events", cursor)
				if h.opts.CleanupOnTerminal {
					h.tracker.DeleteJob(ctx, jobID)
				}
				return
			}
		}
	}
}

// forward writes events as SSE frames and advances the cursor. A write error
// means the client is gone and the connection should be torn down.
func (h *Handler) forward(w http.ResponseWriter, flusher http.Flusher, events []progress.Event, cursor int64) (int64, error) {
	for _, ev := range events {
		if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, ev.Data); err != nil {
			return cursor, err
		}
		cursor = ev.ID
	}
	if len(events) > 0 {
		flusher.Flush()
		if h.collector != nil {
			h.collector.EventsForwarded(len(events))
		}
	}
	return cursor, nil
}
