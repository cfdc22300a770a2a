package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	// Empty ints fail to parse and fall back to their defaults.
	for _, key := range []string{"MAX_POLL_DURATION_SEC", "S3_BUCKET", "CLIENT_SEND_BUFFER", "WS_MAX_CONNECTS_PER_MINUTE"} {
		t.Setenv(key, "")
	}
	t.Setenv("APP_PORT", "8080")
	t.Setenv("STORE_BACKEND", "postgres")

	cfg := LoadConfig()

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, StoreBackendPostgres, cfg.StoreBackend)
	assert.Equal(t, time.Hour, cfg.MaxPollDuration)
	assert.Equal(t, 256, cfg.ClientSendBuffer)
	assert.Equal(t, 60, cfg.MaxConnectsPerMinute)
	assert.False(t, cfg.ArchiveEnabled())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9000")
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("MAX_POLL_DURATION_SEC", "120")
	t.Setenv("S3_BUCKET", "results")
	t.Setenv("S3_REGION", "eu-west-1")

	cfg := LoadConfig()

	assert.Equal(t, "9000", cfg.AppPort)
	assert.Equal(t, StoreBackendRedis, cfg.StoreBackend)
	assert.Equal(t, 2*time.Minute, cfg.MaxPollDuration)
	assert.True(t, cfg.ArchiveEnabled())
}
