package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", cfg.Bus.URL)
	assert.Equal(t, "LEADS", cfg.Bus.Stream)
	assert.Equal(t, "lead.>", cfg.Bus.Subject)
	assert.Equal(t, "lead-enrichment", cfg.Bus.Subscription)
	assert.Equal(t, 30*time.Second, cfg.Bus.AckWait())
	assert.Equal(t, 5, cfg.Bus.MaxDeliver)

	assert.Equal(t, 10, cfg.Listener.MaxConcurrency)
	assert.Equal(t, 300, cfg.Listener.LockRenewCeilingSecs)
	assert.False(t, cfg.Listener.ParallelStages)

	assert.Equal(t, "postgres", cfg.Archive.Driver)
	assert.Equal(t, "lead_events", cfg.Archive.Table)
	assert.Equal(t, 50, cfg.Archive.BatchSize)
	assert.Equal(t, 10*time.Second, cfg.Archive.FlushInterval())

	assert.Equal(t, "https://events.eu1.segmentapis.com/v1/track", cfg.Segment.Endpoint)
	assert.Empty(t, cfg.Segment.WriteKey)

	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 3000, cfg.Retry.RateLimitBaseMs)
	assert.Equal(t, 2.0, cfg.Retry.RateLimitMultiplier)
	assert.Equal(t, 0.2, cfg.Retry.JitterFraction)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LEADENRICH_BUS_URL", "nats://broker:4222")
	t.Setenv("LEADENRICH_LISTENER_MAX_CONCURRENCY", "25")
	t.Setenv("LEADENRICH_ARCHIVE_DRIVER", "sqlite")
	t.Setenv("LEADENRICH_SEGMENT_WRITE_KEY", "wk-env")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "nats://broker:4222", cfg.Bus.URL)
	assert.Equal(t, 25, cfg.Listener.MaxConcurrency)
	assert.Equal(t, "sqlite", cfg.Archive.Driver)
	assert.Equal(t, "wk-env", cfg.Segment.WriteKey)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "not-a-level"}))
}
