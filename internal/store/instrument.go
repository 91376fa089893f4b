package store

import (
	"context"
	"time"

	"github.com/wujekbizon/wolfmed-progress/internal/metrics"
	"github.com/wujekbizon/wolfmed-progress/internal/progress"
)

// instrumented wraps a Store and records per-operation timings.
type instrumented struct {
	inner     Store
	collector *metrics.Collector
}

// Instrument decorates a store with timing metrics. A nil collector returns
// the store unchanged.
func Instrument(s Store, c *metrics.Collector) Store {
	if c == nil {
		return s
	}
	return &instrumented{inner: s, collector: c}
}

func (s *instrumented) Get(ctx context.Context, jobID string) (*progress.Job, error) {
	start := time.Now()
	job, err := s.inner.Get(ctx, jobID)
	s.collector.RecordTiming(metrics.OpStoreGet, time.Since(start))
	return job, err
}

func (s *instrumented) Put(ctx context.Context, jobID string, job *progress.Job, ttl time.Duration) error {
	start := time.Now()
	err := s.inner.Put(ctx, jobID, job, ttl)
	s.collector.RecordTiming(metrics.OpStorePut, time.Since(start))
	return err
}

func (s *instrumented) Delete(ctx context.Context, jobID string) error {
	start := time.Now()
	err := s.inner.Delete(ctx, jobID)
	s.collector.RecordTiming(metrics.OpStoreDelete, time.Since(start))
	return err
}
