package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wujekbizon/wolfmed-progress/internal/metrics"
	"github.com/wujekbizon/wolfmed-progress/internal/progress"
)

// Frame is one delivered event on the websocket transport. The SSE transport
// carries the same three fields as native SSE frame parts.
type Frame struct {
	ID   int64              `json:"id"`
	Type progress.EventType `json:"type"`
	Data json.RawMessage    `json:"data"`
}

// WSHandler mirrors the SSE delivery endpoint over a websocket, for clients
// behind intermediaries that mishandle long-lived event-stream responses.
// Heartbeats become ping control frames; the close handshake replaces the
// 204 pre-check response.
type WSHandler struct {
	tracker   *progress.Tracker
	opts      Options
	logger    *slog.Logger
	collector *metrics.Collector
	upgrader  websocket.Upgrader
}

// NewWSHandler creates the websocket delivery endpoint.
func NewWSHandler(tracker *progress.Tracker, opts Options, logger *slog.Logger, collector *metrics.Collector) *WSHandler {
	opts.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		tracker:   tracker,
		opts:      opts,
		logger:    logger,
		collector: collector,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Stream carries no credentials and job ids are
				// unguessable, same posture as the SSE endpoint.
				return true
			},
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		http.Error(w, "missing jobId", http.StatusBadRequest)
		return
	}

	if job := h.tracker.GetJob(r.Context(), jobID); job != nil && job.Status.Terminal() {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "job_id", jobID, "error", err)
		return
	}
	defer conn.Close()

	if h.collector != nil {
		h.collector.StreamOpened()
		defer h.collector.StreamClosed()
	}

	// The read pump exists only to notice the client going away; consumers
	// never send application messages on this socket.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	cursor := lastEventID(r)
	h.logger.Debug("ws stream opened", "job_id", jobID, "last_event_id", cursor)

	cursor, err = h.forward(conn, h.tracker.GetEvents(ctx, jobID, cursor), cursor)
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
			h.logger.Debug("ws stream client disconnected", "job_id", jobID)
			return

		case <-heartbeat.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}

		case <-poll.C:
			job := h.tracker.GetJob(ctx, jobID)
			if job == nil {
				if time.Now().After(deadline) {
					h.closeNormally(conn)
					return
				}
				continue
			}

			cursor, err = h.forward(conn, job.EventsAfter(cursor), cursor)
			if err != nil {
				return
			}
			if job.Status.Terminal() {
				if h.opts.CleanupOnTerminal {
					h.tracker.DeleteJob(ctx, jobID)
				}
				h.closeNormally(conn)
				return
			}
		}
	}
}

func (h *WSHandler) forward(conn *websocket.Conn, events []progress.Event, cursor int64) (int64, error) {
	for _, ev := range events {
		frame := Frame{ID: ev.ID, Type: ev.Type, Data: ev.Data}
		if err := conn.WriteJSON(frame); err != nil {
			return cursor, err
		}
		cursor = ev.ID
	}
	if len(events) > 0 && h.collector != nil {
		h.collector.EventsForwarded(len(events))
	}
	return cursor, nil
}

func (h *WSHandler) closeNormally(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
