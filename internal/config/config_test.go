package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8090", cfg.ServerPort)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, 5*time.Minute, cfg.JobTTL)
	assert.Equal(t, 15*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.JobWaitTimeout)
	assert.Equal(t, 3000, cfg.RetryMillis)
	assert.False(t, cfg.StreamCleanup)
	assert.Equal(t, ProviderOllama, cfg.LLMProvider)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoad_FileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "progress.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_port: "9999"
store_backend: redis
job_ttl: 10m
heartbeat_interval: 5s
retry_millis: 500
stream_cleanup: true
search_limit: 8
`), 0o644))
	t.Setenv("PROGRESS_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.ServerPort)
	assert.Equal(t, StoreRedis, cfg.StoreBackend)
	assert.Equal(t, 10*time.Minute, cfg.JobTTL)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 500, cfg.RetryMillis)
	assert.True(t, cfg.StreamCleanup)
	assert.Equal(t, 8, cfg.SearchLimit)

	// Untouched keys keep their defaults
	assert.Equal(t, time.Second, cfg.PollInterval)
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "progress.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_port: \"9999\"\njob_ttl: 10m\n"), 0o644))
	t.Setenv("PROGRESS_CONFIG", path)
	t.Setenv("PROGRESS_SERVER_PORT", "7777")
	t.Setenv("PROGRESS_JOB_TTL", "90s")
	t.Setenv("PROGRESS_STORE", "redis")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7777", cfg.ServerPort)
	assert.Equal(t, 90*time.Second, cfg.JobTTL)
	assert.Equal(t, StoreRedis, cfg.StoreBackend)
	assert.Equal(t, "redis.internal:6380", cfg.RedisAddr)
}

func TestLoad_BadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "progress.yaml")
	require.NoError(t, os.WriteFile(path, []byte("job_ttl: not-a-duration\n"), 0o644))
	t.Setenv("PROGRESS_CONFIG", path)

	_, err := Load()
	assert.Error(t, err, "an unparsable config file is a startup error, not a silent default")
}

func TestLoad_MissingFileIsError(t *testing.T) {
	t.Setenv("PROGRESS_CONFIG", "/does/not/exist.yaml")

	_, err := Load()
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLogLevel(tt.in), "parseLogLevel(%q)", tt.in)
	}
}
