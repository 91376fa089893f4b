// Package client consumes a job's progress stream and exposes the
// reconstructed stage/progress/log state to a UI.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wujekbizon/wolfmed-progress/internal/progress"
)

// ConnState describes the listener's transport state.
type ConnState string

const (
	ConnIdle       ConnState = "idle"
	ConnConnecting ConnState = "connecting"
	ConnOpen       ConnState = "open"
	ConnClosed     ConnState = "closed"
	ConnError      ConnState = "error"
)

// LogEntry is one log line received from the stream.
type LogEntry struct {
	Level    string
	Message  string
	Audience string
	Time     time.Time
}

// State is an observable snapshot of one job's progress.
type State struct {
	Stage      string
	Message    string
	Progress   int // 0..100
	Total      int
	Tool       string
	Logs       []LogEntry
	Connection ConnState
	IsComplete bool
	Err        string
}

// Listener owns one streaming connection for one job id. It reconnects on
// transport drops, resuming from the last event id it processed, and only
// reports failure when the server explicitly sent an error event.
type Listener struct {
	endpoint   string
	jobID      string
	httpClient *http.Client
	retryDelay time.Duration

	mu          sync.Mutex
	state       State
	lastEventID int64
	cancel      context.CancelFunc
	done        chan struct{}
}

// ListenerOption customizes a Listener.
type ListenerOption func(*Listener)

// WithHTTPClient substitutes the transport, e.g. for tests.
func WithHTTPClient(c *http.Client) ListenerOption {
	return func(l *Listener) { l.httpClient = c }
}

// WithRetryDelay sets the initial reconnect delay. The server's retry hint
// overrides it once received.
func WithRetryDelay(d time.Duration) ListenerOption {
	return func(l *Listener) { l.retryDelay = d }
}

// NewListener creates a listener for the given stream endpoint and job id.
// The endpoint is the base URL of the SSE route, e.g.
// "http://localhost:8090/api/rag/progress".
func NewListener(endpoint, jobID string, opts ...ListenerOption) *Listener {
	l := &Listener{
		endpoint:   endpoint,
		jobID:      jobID,
		httpClient: &http.Client{}, // no overall timeout: the stream is long-lived
		retryDelay: 3 * time.Second,
		state:      State{Connection: ConnIdle, Total: 100},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// State returns a copy of the current state.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.state
	st.Logs = append([]LogEntry(nil), l.state.Logs...)
	return st
}

// StartListening resets all state and opens the stream. Calling it while a
// stream is already running restarts it.
func (l *Listener) StartListening() {
	l.StopListening()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	l.mu.Lock()
	l.state = State{Connection: ConnConnecting, Total: 100}
	l.lastEventID = 0
	l.cancel = cancel
	l.done = done
	l.mu.Unlock()

	go func() {
		defer close(done)
		l.run(ctx)
	}()
}

// StopListening tears down the connection. Safe to call at any time, any
// number of times.
func (l *Listener) StopListening() {
	l.mu.Lock()
	cancel := l.cancel
	done := l.done
	l.cancel = nil
	l.done = nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Reset is StopListening plus clearing the accumulated state.
func (l *Listener) Reset() {
	l.StopListening()
	l.mu.Lock()
	l.state = State{Connection: ConnIdle, Total: 100}
	l.lastEventID = 0
	l.mu.Unlock()
}

// Wait blocks until the current stream finishes or ctx expires. It returns
// the final state.
func (l *Listener) Wait(ctx context.Context) State {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	return l.State()
}

// run reconnects until a terminal frame arrives, the server reports the job
// is already finished, or the listener is stopped.
func (l *Listener) run(ctx context.Context) {
	for {
		terminal, err := l.connectOnce(ctx)
		if terminal || ctx.Err() != nil {
			return
		}
		if err != nil {
			// Transport drop: reconnect with resumption rather than
			// surfacing an error to the UI.
			l.setConnection(ConnConnecting)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.currentRetryDelay()):
		}
	}
}

// connectOnce opens one stream connection and processes frames until it ends.
// It returns terminal=true when no further connection should be attempted.
func (l *Listener) connectOnce(ctx context.Context) (terminal bool, err error) {
	url := fmt.Sprintf("%s?jobId=%s", l.endpoint, l.jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		l.fail(fmt.Sprintf("invalid stream request: %v", err))
		return true, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if last := l.lastSeen(); last > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatInt(last, 10))
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to frame processing
	case http.StatusNoContent:
		// The job finished before we attached.
		l.mu.Lock()
		l.state.IsComplete = true
		l.state.Connection = ConnClosed
		l.mu.Unlock()
		return true, nil
	default:
		l.fail(fmt.Sprintf("stream endpoint returned %s", resp.Status))
		return true, fmt.Errorf("stream endpoint: %s", resp.Status)
	}

	l.setConnection(ConnOpen)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var frameID int64
	var frameType, frameData string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if frameType != "" {
				if done := l.handleFrame(frameID, frameType, frameData); done {
					l.setConnection(ConnClosed)
					return true, nil
				}
			}
			frameID, frameType, frameData = 0, "", ""

		case strings.HasPrefix(line, ":"):
			// heartbeat comment

		case strings.HasPrefix(line, "retry:"):
			if ms, err := strconv.Atoi(strings.TrimSpace(line[len("retry:"):])); err == nil && ms > 0 {
				l.setRetryDelay(time.Duration(ms) * time.Millisecond)
			}

		case strings.HasPrefix(line, "id:"):
			frameID, _ = strconv.ParseInt(strings.TrimSpace(line[len("id:"):]), 10, 64)

		case strings.HasPrefix(line, "event:"):
			frameType = strings.TrimSpace(line[len("event:"):])

		case strings.HasPrefix(line, "data:"):
			frameData = strings.TrimSpace(line[len("data:"):])
		}
	}

	if ctx.Err() != nil {
		l.setConnection(ConnClosed)
		return true, nil
	}
	// Server closed the stream without a terminal frame: either the job wait
	// timed out server-side or the connection dropped mid-flight. The caller
	// decides whether to dial again.
	return false, scanner.Err()
}

// handleFrame folds one event into the state. It returns true for terminal
// frames, after which the connection must not be reopened.
func (l *Listener) handleFrame(id int64, typ, data string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if id > 0 {
		l.lastEventID = id
	}

	switch progress.EventType(typ) {
	case progress.EventProgress:
		var d progress.ProgressData
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return false
		}
		l.state.Stage = d.Stage
		l.state.Progress = d.Progress
		if d.Total > 0 {
			l.state.Total = d.Total
		}
		if d.Message != "" {
			l.state.Message = d.Message
		}
		if d.Tool != "" {
			l.state.Tool = d.Tool
		}

	case progress.EventLog:
		var d progress.LogData
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return false
		}
		l.state.Logs = append(l.state.Logs, LogEntry{
			Level:    d.Level,
			Message:  d.Message,
			Audience: d.Audience,
			Time:     d.Timestamp,
		})

	case progress.EventComplete:
		l.state.IsComplete = true
		l.state.Progress = l.state.Total
		return true

	case progress.EventError:
		var d progress.ErrorData
		if err := json.Unmarshal([]byte(data), &d); err == nil && d.Message != "" {
			l.state.Err = d.Message
		} else {
			l.state.Err = "request failed"
		}
		// IsComplete means "no more events", not success; Err carries
		// the failure.
		l.state.IsComplete = true
		l.state.Connection = ConnError
		return true
	}
	return false
}

func (l *Listener) lastSeen() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastEventID
}

func (l *Listener) setConnection(c ConnState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	// Terminal error state sticks; a late transport close must not mask it.
	if l.state.Connection == ConnError {
		return
	}
	l.state.Connection = c
}

func (l *Listener) fail(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.Err = msg
	l.state.IsComplete = true
	l.state.Connection = ConnError
}

func (l *Listener) setRetryDelay(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.retryDelay = d
}

func (l *Listener) currentRetryDelay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.retryDelay
}
