package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithoutConfigFileOrEnv(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "file::memory:?cache=shared", cfg.DBDSN)
	assert.Equal(t, 4, cfg.RunLimit)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "", cfg.RedisAddr)
	assert.False(t, cfg.OTelEnabled)
}

func TestLoadEnvVarsOverrideDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "postgres://localhost/tasks")
	t.Setenv("RUN_LIMIT", "9")
	t.Setenv("WORKER_POOL_SIZE", "16")
	t.Setenv("IDLE_INTERVAL", "10ms")
	t.Setenv("OTEL_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "postgres://localhost/tasks", cfg.DBDSN)
	assert.Equal(t, 9, cfg.RunLimit)
	assert.Equal(t, 16, cfg.WorkerPoolSize)
	assert.Equal(t, 10*time.Millisecond, cfg.IdleInterval)
	assert.True(t, cfg.OTelEnabled)
}

func TestLoadPreservesExplicitRunLimitZero(t *testing.T) {
	t.Setenv("RUN_LIMIT", "0")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.RunLimit, "an explicit RUN_LIMIT=0 must survive, not collapse to the registry default")
}

func TestRegistryConfigAndWorkerConfigDeriveFromConfig(t *testing.T) {
	cfg := Config{RunLimit: 7, RunRescheduleDelay: 2 * time.Second, IdleInterval: 5 * time.Millisecond}

	reg := cfg.RegistryConfig()
	assert.Equal(t, 7, reg.RunLimit)
	assert.Equal(t, 2*time.Second, reg.RunRescheduleDelay)

	w := cfg.WorkerConfig([]string{"a", "b"})
	assert.Equal(t, []string{"a", "b"}, w.AllowedNames)
	assert.Equal(t, 5*time.Millisecond, w.IdleInterval)
}
