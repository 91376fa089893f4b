// Package store provides expiring storage for job progress records. Two
// interchangeable backends exist: Redis for multi-instance deployments where
// producer and consumer requests may land on different processes, and an
// in-process map for single-instance or local use.
package store

import (
	"context"
	"time"

	"github.com/wujekbizon/wolfmed-progress/internal/progress"
)

// Store is keyed by caller-supplied job id. Get returns (nil, nil) when the
// job is absent; a non-nil error means the backend itself failed, which
// readers are expected to treat as "not found yet".
type Store interface {
	// Get fetches the job, or (nil, nil) if it does not exist.
	Get(ctx context.Context, jobID string) (*progress.Job, error)

	// Put overwrites the job and re-arms its expiry to ttl.
	Put(ctx context.Context, jobID string, job *progress.Job, ttl time.Duration) error

	// Delete removes the job. Deleting a missing job is not an error.
	Delete(ctx context.Context, jobID string) error
}
