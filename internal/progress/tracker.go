package progress

import (
	"context"
	"log/slog"
	"time"
)

// DefaultTTL is how long a job stays readable after its most recent write.
const DefaultTTL = 5 * time.Minute

// Storage is what the Tracker needs from a backend. It matches
// store.Store; declared here so the producer API has no dependency on any
// concrete backend.
type Storage interface {
	Get(ctx context.Context, jobID string) (*Job, error)
	Put(ctx context.Context, jobID string, job *Job, ttl time.Duration) error
	Delete(ctx context.Context, jobID string) error
}

// defaultStageMessages supplies a human-readable message when EmitProgress
// is called without one.
var defaultStageMessages = map[string]string{
	"parsing":    "Reading your question...",
	"searching":  "Searching the knowledge base...",
	"generating": "Writing the answer...",
	"finalizing": "Finishing up...",
}

// Tracker is the producer-facing progress log API. It encapsulates id
// assignment and append semantics so callers cannot break the dense-numbering
// or terminal-state invariants. Producers are single-threaded per job;
// concurrent writers to one job are not supported.
type Tracker struct {
	store  Storage
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// TrackerOption customizes a Tracker.
type TrackerOption func(*Tracker)

// WithTTL overrides the job expiry window.
func WithTTL(ttl time.Duration) TrackerOption {
	return func(t *Tracker) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithClock overrides the time source. Tests use this to pin timestamps.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a Tracker on top of the given store.
func NewTracker(store Storage, logger *slog.Logger, opts ...TrackerOption) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		store:  store,
		ttl:    DefaultTTL,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TTL returns the configured expiry window.
func (t *Tracker) TTL() time.Duration {
	return t.ttl
}

// CreateJob writes a fresh active job. Calling it twice resets the job; ids
// are caller-generated and expected to be unique per logical job.
func (t *Tracker) CreateJob(ctx context.Context, jobID string) error {
	job := NewJob(t.now())
	if err := t.store.Put(ctx, jobID, job, t.ttl); err != nil {
		return err
	}
	t.logger.Debug("job created", "job_id", jobID)
	return nil
}

// ProgressOption customizes a progress event.
type ProgressOption func(*ProgressData)

// WithMessage sets an explicit message instead of the stage default.
func WithMessage(msg string) ProgressOption {
	return func(d *ProgressData) { d.Message = msg }
}

// WithTool names the tool currently running.
func WithTool(tool string) ProgressOption {
	return func(d *ProgressData) { d.Tool = tool }
}

// WithTotal overrides the progress scale (default 100).
func WithTotal(total int) ProgressOption {
	return func(d *ProgressData) { d.Total = total }
}

// EmitProgress appends a progress event for the given stage.
func (t *Tracker) EmitProgress(ctx context.Context, jobID, stage string, pct int, opts ...ProgressOption) {
	data := ProgressData{
		Stage:    stage,
		Progress: pct,
		Total:    100,
		Message:  defaultStageMessages[stage],
	}
	for _, opt := range opts {
		opt(&data)
	}
	t.emit(ctx, jobID, EventProgress, data)
}

// EmitLog appends a log event tagged with its audience.
func (t *Tracker) EmitLog(ctx context.Context, jobID, level, message, audience string) {
	t.emit(ctx, jobID, EventLog, LogData{
		Level:     level,
		Message:   message,
		Audience:  audience,
		Timestamp: t.now(),
	})
}

// CompleteJob marks the job complete. It appends a final informational log
// followed by the complete event; this must be the producer's last call.
func (t *Tracker) CompleteJob(ctx context.Context, jobID string) {
	t.finish(ctx, jobID, StatusComplete, func(job *Job, now time.Time) error {
		if err := job.append(EventLog, LogData{
			Level:     LevelInfo,
			Message:   "Done.",
			Audience:  AudienceUser,
			Timestamp: now,
		}, now); err != nil {
			return err
		}
		return job.append(EventComplete, CompleteData{Success: true}, now)
	})
}

// ErrorJob marks the job failed. It appends a user-facing log, a technical
// log when the technical message is non-empty, then the error event carrying
// both messages.
func (t *Tracker) ErrorJob(ctx context.Context, jobID, userMessage, technicalMessage string) {
	t.finish(ctx, jobID, StatusError, func(job *Job, now time.Time) error {
		if err := job.append(EventLog, LogData{
			Level:     LevelError,
			Message:   userMessage,
			Audience:  AudienceUser,
			Timestamp: now,
		}, now); err != nil {
			return err
		}
		if technicalMessage != "" {
			if err := job.append(EventLog, LogData{
				Level:     LevelError,
				Message:   technicalMessage,
				Audience:  AudienceTechnical,
				Timestamp: now,
			}, now); err != nil {
				return err
			}
		}
		return job.append(EventError, ErrorData{
			Message:          userMessage,
			TechnicalMessage: technicalMessage,
		}, now)
	})
}

// GetJob returns the job, or nil if absent. Store failures degrade to nil:
// the consumer treats them as "not found yet" and keeps polling.
func (t *Tracker) GetJob(ctx context.Context, jobID string) *Job {
	job, err := t.store.Get(ctx, jobID)
	if err != nil {
		t.logger.Warn("job read failed", "job_id", jobID, "error", err)
		return nil
	}
	return job
}

// GetEvents returns the events with id > fromID, in order. fromID = 0 yields
// the full history.
func (t *Tracker) GetEvents(ctx context.Context, jobID string, fromID int64) []Event {
	job := t.GetJob(ctx, jobID)
	if job == nil {
		return nil
	}
	return job.EventsAfter(fromID)
}

// DeleteJob removes the job before its TTL. The stream endpoint calls this
// once a consumer has observed the terminal state.
func (t *Tracker) DeleteJob(ctx context.Context, jobID string) {
	if err := t.store.Delete(ctx, jobID); err != nil {
		t.logger.Warn("job delete failed", "job_id", jobID, "error", err)
	}
}

// emit appends a single typed event via read-modify-write. Absent jobs are a
// no-op: the producer may not have created the job yet, or it already
// expired. Terminal jobs ignore late emits.
func (t *Tracker) emit(ctx context.Context, jobID string, typ EventType, payload any) {
	job, err := t.store.Get(ctx, jobID)
	if err != nil {
		t.logger.Warn("emit read failed", "job_id", jobID, "type", typ, "error", err)
		return
	}
	if job == nil {
		t.logger.Debug("emit on missing job", "job_id", jobID, "type", typ)
		return
	}
	if job.Status.Terminal() {
		t.logger.Debug("emit after terminal state ignored", "job_id", jobID, "type", typ)
		return
	}

	if err := job.append(typ, payload, t.now()); err != nil {
		t.logger.Warn("emit append failed", "job_id", jobID, "type", typ, "error", err)
		return
	}
	if err := t.store.Put(ctx, jobID, job, t.ttl); err != nil {
		t.logger.Warn("emit write failed", "job_id", jobID, "type", typ, "error", err)
	}
}

// finish transitions a job to a terminal status, appending its closing
// events in the same write.
func (t *Tracker) finish(ctx context.Context, jobID string, status Status, appendFinal func(*Job, time.Time) error) {
	job, err := t.store.Get(ctx, jobID)
	if err != nil {
		t.logger.Warn("finish read failed", "job_id", jobID, "status", status, "error", err)
		return
	}
	if job == nil {
		t.logger.Debug("finish on missing job", "job_id", jobID, "status", status)
		return
	}
	if job.Status.Terminal() {
		t.logger.Debug("job already terminal", "job_id", jobID, "status", job.Status)
		return
	}

	now := t.now()
	if err := appendFinal(job, now); err != nil {
		t.logger.Warn("finish append failed", "job_id", jobID, "status", status, "error", err)
		return
	}
	job.Status = status
	if err := t.store.Put(ctx, jobID, job, t.ttl); err != nil {
		t.logger.Warn("finish write failed", "job_id", jobID, "status", status, "error", err)
		return
	}
	t.logger.Info("job finished", "job_id", jobID, "status", status, "events", job.LastEventID)
}
