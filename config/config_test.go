package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/travel-ledger/config"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.LoadWithEnv(nil, envOf(nil))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "travel.db", cfg.DBPath)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.True(t, cfg.ReplayEnabled)
	assert.Equal(t, 10*time.Minute, cfg.ReplayInterval)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoad_EnvironmentFallbacks(t *testing.T) {
	cfg, err := config.LoadWithEnv(nil, envOf(map[string]string{
		"PORT":            "3000",
		"DB_PATH":         ":memory:",
		"LOG_LEVEL":       "debug",
		"REPLAY_ENABLED":  "false",
		"REPLAY_INTERVAL": "30s",
		"CORS_ORIGINS":    "http://localhost:5173, https://backoffice.example",
	}))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, ":memory:", cfg.DBPath)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.False(t, cfg.ReplayEnabled)
	assert.Equal(t, 30*time.Second, cfg.ReplayInterval)
	assert.Equal(t, []string{"http://localhost:5173", "https://backoffice.example"}, cfg.CORSOrigins)
}

func TestLoad_FlagsOverrideEnvironment(t *testing.T) {
	cfg, err := config.LoadWithEnv(
		[]string{"-port", "9090", "-log-level", "warn", "-replay-interval", "1m"},
		envOf(map[string]string{"PORT": "3000", "LOG_LEVEL": "debug"}),
	)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
	assert.Equal(t, time.Minute, cfg.ReplayInterval)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"port", []string{"-port", "abc"}},
		{"port range", []string{"-port", "70000"}},
		{"level", []string{"-log-level", "loud"}},
		{"replay", []string{"-replay", "maybe"}},
		{"interval", []string{"-replay-interval", "soon"}},
		{"zero interval", []string{"-replay-interval", "0s"}},
		{"db", []string{"-db", " "}},
		{"unknown flag", []string{"-nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadWithEnv(tt.args, envOf(nil))
			assert.Error(t, err)
		})
	}
}
