package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLoggerWithWriters_DualOutput(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Info("stream opened", "job_id", "abc-123")

	assert.Contains(t, stderr.String(), "stream opened", "stderr gets the text handler")
	assert.Contains(t, stderr.String(), "abc-123")

	// The file side is structured JSON
	line := strings.TrimSpace(file.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "stream opened", entry["msg"])
	assert.Equal(t, "abc-123", entry["job_id"])
}

func TestSetupLoggerWithWriters_LevelFilter(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelWarn)

	logger.Debug("noise")
	logger.Info("also noise")
	logger.Warn("kept")

	assert.NotContains(t, stderr.String(), "noise")
	assert.Contains(t, stderr.String(), "kept")
	assert.NotContains(t, file.String(), "noise")
}
