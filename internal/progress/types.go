// Package progress defines the job-progress event log: typed events with
// dense per-job ids, the job record stored between producer and consumer,
// and the Tracker that is the only way producers mutate a job.
package progress

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType discriminates the payload carried by an Event.
type EventType string

const (
	EventProgress EventType = "progress"
	EventLog      EventType = "log"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Status is the lifecycle state of a job. It starts Active and transitions
// exactly once to Complete or Error.
type Status string

const (
	StatusActive   Status = "active"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Terminal reports whether the job produces no further events.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Log levels for LogData.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Audience tags on log events let consumers filter verbosity.
const (
	AudienceUser      = "user"
	AudienceTechnical = "technical"
)

// Event is one immutable record in a job's log. IDs are dense and 1-based:
// events[i].ID == i+1 always holds, which is what makes "events after id N"
// a complete resumption query.
type Event struct {
	ID        int64           `json:"id"`
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// ProgressData is the payload of a progress event.
type ProgressData struct {
	Stage    string `json:"stage"`
	Progress int    `json:"progress"`
	Total    int    `json:"total"`
	Message  string `json:"message,omitempty"`
	Tool     string `json:"tool,omitempty"`
}

// LogData is the payload of a log event.
type LogData struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Audience  string    `json:"audience"`
	Timestamp time.Time `json:"timestamp"`
}

// CompleteData is the payload of the terminal complete event.
type CompleteData struct {
	Success bool `json:"success"`
}

// ErrorData is the payload of the terminal error event. Message is meant for
// end users; TechnicalMessage carries diagnostics for operators.
type ErrorData struct {
	Message          string `json:"message"`
	TechnicalMessage string `json:"technicalMessage,omitempty"`
}

// DecodeProgress unmarshals a progress event's payload.
func DecodeProgress(ev Event) (ProgressData, error) {
	var d ProgressData
	if ev.Type != EventProgress {
		return d, fmt.Errorf("decode progress: event %d has type %s", ev.ID, ev.Type)
	}
	if err := json.Unmarshal(ev.Data, &d); err != nil {
		return d, fmt.Errorf("decode progress event %d: %w", ev.ID, err)
	}
	return d, nil
}

// DecodeLog unmarshals a log event's payload.
func DecodeLog(ev Event) (LogData, error) {
	var d LogData
	if ev.Type != EventLog {
		return d, fmt.Errorf("decode log: event %d has type %s", ev.ID, ev.Type)
	}
	if err := json.Unmarshal(ev.Data, &d); err != nil {
		return d, fmt.Errorf("decode log event %d: %w", ev.ID, err)
	}
	return d, nil
}

// DecodeError unmarshals an error event's payload.
func DecodeError(ev Event) (ErrorData, error) {
	var d ErrorData
	if ev.Type != EventError {
		return d, fmt.Errorf("decode error: event %d has type %s", ev.ID, ev.Type)
	}
	if err := json.Unmarshal(ev.Data, &d); err != nil {
		return d, fmt.Errorf("decode error event %d: %w", ev.ID, err)
	}
	return d, nil
}

// Job is the shared record for one unit of long-running work. It is written
// by a single logical producer and read concurrently by stream consumers;
// the store is the only rendezvous between the two.
type Job struct {
	Events      []Event   `json:"events"`
	Status      Status    `json:"status"`
	LastEventID int64     `json:"lastEventId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewJob returns a fresh active job with no events.
func NewJob(now time.Time) *Job {
	return &Job{
		Events:    []Event{},
		Status:    StatusActive,
		CreatedAt: now,
	}
}

// Clone returns a deep copy. The in-process store hands out clones so callers
// never alias the stored record.
func (j *Job) Clone() *Job {
	cp := *j
	cp.Events = make([]Event, len(j.Events))
	copy(cp.Events, j.Events)
	return &cp
}

// EventsAfter returns the events with id > fromID, in id order. fromID = 0
// returns the full history.
func (j *Job) EventsAfter(fromID int64) []Event {
	// IDs are dense and 1-based, so the tail starts at index fromID.
	if fromID < 0 {
		fromID = 0
	}
	if fromID >= int64(len(j.Events)) {
		return nil
	}
	tail := j.Events[fromID:]
	out := make([]Event, len(tail))
	copy(out, tail)
	return out
}

// append assigns the next id and adds the event. Callers go through the
// Tracker, which enforces the terminal-state rules.
func (j *Job) append(typ EventType, payload any, now time.Time) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	j.LastEventID++
	j.Events = append(j.Events, Event{
		ID:        j.LastEventID,
		Type:      typ,
		Data:      data,
		Timestamp: now,
	})
	return nil
}
