//go:build integration

package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/wujekbizon/wolfmed-progress/internal/progress"
)

var testRedis *RedisStore

// TestMain starts one Redis container shared by all tests in the package.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := container.MappedPort(ctx, "6379")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testRedis, err = NewRedisStore(ctx, RedisConfig{
		Addr: fmt.Sprintf("%s:%s", host, mappedPort.Port()),
	})
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	code := m.Run()

	_ = testRedis.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	ctx := context.Background()

	job := progress.NewJob(time.Now().UTC())
	require.NoError(t, testRedis.Put(ctx, "rt-1", job, time.Minute))

	got, err := testRedis.Get(ctx, "rt-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, progress.StatusActive, got.Status)
	assert.Empty(t, got.Events)
}

func TestRedisStore_GetAbsent(t *testing.T) {
	got, err := testRedis.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got, "absent keys are (nil, nil), not an error")
}

func TestRedisStore_EventsSurviveSerialization(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()
	tracker := progress.NewTracker(testRedis, logger)

	require.NoError(t, tracker.CreateJob(ctx, "ser-1"))
	tracker.EmitProgress(ctx, "ser-1", "searching", 40, progress.WithTool("db"))
	tracker.EmitLog(ctx, "ser-1", progress.LevelInfo, "retrieved 3 chunks", progress.AudienceTechnical)
	tracker.CompleteJob(ctx, "ser-1")

	job := tracker.GetJob(ctx, "ser-1")
	require.NotNil(t, job)
	assert.Equal(t, progress.StatusComplete, job.Status)
	require.Len(t, job.Events, 4)
	for i, ev := range job.Events {
		assert.Equal(t, int64(i+1), ev.ID)
	}

	pd, err := progress.DecodeProgress(job.Events[0])
	require.NoError(t, err)
	assert.Equal(t, "db", pd.Tool)
}

func TestRedisStore_TTLExpires(t *testing.T) {
	ctx := context.Background()

	job := progress.NewJob(time.Now().UTC())
	require.NoError(t, testRedis.Put(ctx, "ttl-1", job, 500*time.Millisecond))

	got, err := testRedis.Get(ctx, "ttl-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	time.Sleep(700 * time.Millisecond)

	got, err = testRedis.Get(ctx, "ttl-1")
	require.NoError(t, err)
	assert.Nil(t, got, "expired keys read as absent")
}

func TestRedisStore_Delete(t *testing.T) {
	ctx := context.Background()

	job := progress.NewJob(time.Now().UTC())
	require.NoError(t, testRedis.Put(ctx, "del-1", job, time.Minute))
	require.NoError(t, testRedis.Delete(ctx, "del-1"))

	got, err := testRedis.Get(ctx, "del-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
