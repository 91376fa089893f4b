package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wujekbizon/wolfmed-progress/internal/progress"
)

// DefaultSweepInterval is how often the in-memory store scans for expired jobs.
const DefaultSweepInterval = time.Minute

type memoryEntry struct {
	job       *progress.Job
	expiresAt time.Time
}

// MemoryStore keeps jobs in a mutex-guarded map with a periodic sweep that
// deletes expired entries. It is only correct when producer and consumer share
// a process. The sweeper is owned by the instance: it starts on construction
// and stops on Close, so tests can run isolated stores side by side.
type MemoryStore struct {
	mu      sync.RWMutex
	jobs    map[string]memoryEntry
	logger  *slog.Logger
	stop    chan struct{}
	stopped sync.Once
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store sweeping at the given interval. A zero or
// negative interval falls back to DefaultSweepInterval.
func NewMemoryStore(sweepInterval time.Duration, logger *slog.Logger) *MemoryStore {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &MemoryStore{
		jobs:   make(map[string]memoryEntry),
		logger: logger,
		stop:   make(chan struct{}),
	}
	go s.sweep(sweepInterval)
	return s
}

// Get returns a deep copy so callers never alias the stored record.
func (s *MemoryStore) Get(_ context.Context, jobID string) (*progress.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.jobs[jobID]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, nil
	}
	return entry.job.Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, jobID string, job *progress.Job, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[jobID] = memoryEntry{
		job:       job.Clone(),
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.jobs, jobID)
	return nil
}

// Len reports the number of live entries. Used by tests and the stats endpoint.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Close stops the sweeper. Safe to call more than once.
func (s *MemoryStore) Close() {
	s.stopped.Do(func() {
		close(s.stop)
	})
}

func (s *MemoryStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.removeExpired(time.Now())
		}
	}
}

func (s *MemoryStore) removeExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.jobs {
		if now.After(entry.expiresAt) {
			delete(s.jobs, id)
			s.logger.Debug("swept expired job", "job_id", id)
		}
	}
}
