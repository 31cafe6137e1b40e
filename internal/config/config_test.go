package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "content_versions", cfg.Store.Collection)
	assert.Equal(t, 50, cfg.Versions.MaxPerField)
	assert.Equal(t, 10, cfg.Versions.OverflowBuffer)
	assert.Equal(t, "shallow", cfg.Versions.DiffMode)
	assert.Equal(t, time.Hour, cfg.Store.Postgres.MaxConnLifetime)
	assert.True(t, cfg.Outbox.Enabled)
	assert.False(t, cfg.Kafka.Enabled())
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 1.0, cfg.Telemetry.SamplingRate)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONTENTVER_STORE_BACKEND", "postgres")
	t.Setenv("CONTENTVER_STORE_POSTGRES_DSN", "postgres://cv@localhost/cv")
	t.Setenv("CONTENTVER_VERSIONS_MAX_PER_FIELD", "20")
	t.Setenv("CONTENTVER_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CONTENTVER_REDIS_ADDR", "localhost:6379")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, "postgres://cv@localhost/cv", cfg.Store.Postgres.DSN)
	assert.Equal(t, 20, cfg.Versions.MaxPerField)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	assert.True(t, cfg.Redis.Enabled())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contentver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  backend: memory
versions:
  diff_mode: deep
  async_retention: true
outbox:
  enabled: false
`), 0o644))
	t.Setenv("CONTENTVER_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, "deep", cfg.Versions.DiffMode)
	assert.True(t, cfg.Versions.AsyncRetention)
	assert.False(t, cfg.Outbox.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "mongo" }, "store.backend"},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = BackendPostgres }, "store.postgres.dsn"},
		{"firestore without project", func(c *Config) { c.Store.Backend = BackendFirestore }, "project_id"},
		{"zero max", func(c *Config) { c.Versions.MaxPerField = 0 }, "max_per_field"},
		{"negative overflow", func(c *Config) { c.Versions.OverflowBuffer = -1 }, "overflow_buffer"},
		{"bad diff mode", func(c *Config) { c.Versions.DiffMode = "fuzzy" }, "diff_mode"},
		{"bad schedule", func(c *Config) { c.Outbox.ReplaySchedule = "every so often" }, "replay_schedule"},
		{"sampling rate", func(c *Config) { c.Telemetry.SamplingRate = 2 }, "sampling_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("disabled outbox skips schedule", func(t *testing.T) {
		cfg := *base
		cfg.Outbox.Enabled = false
		cfg.Outbox.ReplaySchedule = "nonsense"
		assert.NoError(t, cfg.Validate())
	})
}
