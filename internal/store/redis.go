package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/wujekbizon/wolfmed-progress/internal/progress"
)

// keyPrefix namespaces job records inside a shared Redis instance.
const keyPrefix = "progress:job:"

// RedisConfig holds connection settings for the shared backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore persists jobs as JSON values with per-key expiry. This is the
// backend to use whenever producer and consumer requests can land on
// different processes.
type RedisStore struct {
	rdb *goredis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects and pings the server so a misconfigured address
// fails at startup rather than on first write.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Get(ctx context.Context, jobID string) (*progress.Job, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+jobID).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var job progress.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", jobID, err)
	}
	return &job, nil
}

func (s *RedisStore) Put(ctx context.Context, jobID string, job *progress.Job, ttl time.Duration) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", jobID, err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+jobID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, jobID string) error {
	if err := s.rdb.Del(ctx, keyPrefix+jobID).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
