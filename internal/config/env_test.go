package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setLocalEnv(t *testing.T) {
	t.Setenv("VECTOR_BACKEND", BackendMemory)
	t.Setenv("QUEUE_BACKEND", BackendMemory)
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("ENVIRONMENT", "development")
}

func TestFromEnv_Defaults(t *testing.T) {
	setLocalEnv(t)

	cfg, err := FromEnv()

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 512, cfg.Chunking.MaxTokens)
	assert.Equal(t, 50, cfg.Chunking.OverlapTokens)
	assert.Equal(t, "documents", cfg.Vector.Collection)
	assert.Equal(t, 5*time.Minute, cfg.Queue.JobTimeout)
}

func TestFromEnv_DurationFormats(t *testing.T) {
	setLocalEnv(t)
	t.Setenv("JOB_TIMEOUT", "90")
	t.Setenv("SWEEP_INTERVAL", "30s")

	cfg, err := FromEnv()

	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Queue.JobTimeout)
	assert.Equal(t, 30*time.Second, cfg.Queue.SweepInterval)
}

func TestFromEnv_RequiresDatabaseForPgvector(t *testing.T) {
	setLocalEnv(t)
	t.Setenv("VECTOR_BACKEND", BackendPgvector)
	t.Setenv("DATABASE_URL", "")

	_, err := FromEnv()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL environment variable is required")
}

func TestFromEnv_RejectsOverlapLargerThanWindow(t *testing.T) {
	setLocalEnv(t)
	t.Setenv("CHUNK_MAX_TOKENS", "50")
	t.Setenv("CHUNK_OVERLAP_TOKENS", "50")

	_, err := FromEnv()

	assert.Error(t, err)
}

func TestFromEnv_ProductionRequiresWebhookSecret(t *testing.T) {
	setLocalEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("WEBHOOK_SECRET", "")

	_, err := FromEnv()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "WEBHOOK_SECRET")
}
