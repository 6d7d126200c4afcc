package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, "tasks", cfg.Queue.Name)
	assert.Equal(t, "tasks-dead-letter", cfg.Queue.DeadLetterName)
	assert.True(t, cfg.Worker.Enabled)
	assert.Equal(t, 3, cfg.Worker.MaxRetries)
	assert.Equal(t, 5000, cfg.Worker.BackoffMs)
	assert.Equal(t, 500, cfg.Worker.PollIntervalMs)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 60000, cfg.Scheduler.IntervalMs)
	assert.Equal(t, 1, cfg.Scheduler.BatchSize)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("CREWPLANE_SERVER_PORT", "9090")
	t.Setenv("CREWPLANE_SERVER_LOG_LEVEL", "debug")
	t.Setenv("CREWPLANE_DATABASE_DRIVER", "sqlite")
	t.Setenv("CREWPLANE_DATABASE_URL", "file:crewplane.db")
	t.Setenv("CREWPLANE_WORKER_MAX_RETRIES", "5")
	t.Setenv("CREWPLANE_SCHEDULER_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file:crewplane.db", cfg.Database.URL)
	assert.Equal(t, 5, cfg.Worker.MaxRetries)
	assert.True(t, cfg.Scheduler.Enabled)
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown driver", key: "CREWPLANE_DATABASE_DRIVER", value: "oracle"},
		{name: "bad log level", key: "CREWPLANE_SERVER_LOG_LEVEL", value: "verbose"},
		{name: "port out of range", key: "CREWPLANE_SERVER_PORT", value: "70000"},
		{name: "zero max retries", key: "CREWPLANE_WORKER_MAX_RETRIES", value: "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}

func TestLoad_NonMemoryDriverRequiresURL(t *testing.T) {
	t.Setenv("CREWPLANE_DATABASE_DRIVER", "postgres")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
