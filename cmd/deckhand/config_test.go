package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Docker.Host)
	assert.Equal(t, "./data/deckhand.db", cfg.Database.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 60*time.Second, cfg.Engine.StartTimeout)
	assert.Equal(t, 10*time.Second, cfg.Engine.StopTimeout)
	assert.Equal(t, 0, cfg.Engine.MaxRestartAttempts)
	assert.Equal(t, 4, cfg.Engine.LayerConcurrency)
	assert.Equal(t, "127.0.0.1", cfg.API.Host)
	assert.Equal(t, 8520, cfg.API.Port)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
docker:
  host: "tcp://10.0.0.5:2376"

database:
  dsn: "/tmp/deckhand-test.db"

log:
  level: "debug"
  format: "text"

engine:
  start_timeout: 90s
  max_restart_attempts: 5

api:
  host: "0.0.0.0"
  port: 9000
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "tcp://10.0.0.5:2376", cfg.Docker.Host)
	assert.Equal(t, "/tmp/deckhand-test.db", cfg.Database.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 90*time.Second, cfg.Engine.StartTimeout)
	assert.Equal(t, 5, cfg.Engine.MaxRestartAttempts)
	assert.Equal(t, "0.0.0.0", cfg.API.Host)
	assert.Equal(t, 9000, cfg.API.Port)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("DECKHAND_DOCKER_HOST", "unix:///run/user/1000/docker.sock")
	t.Setenv("DECKHAND_DATABASE_DSN", "/custom/state.db")
	t.Setenv("DECKHAND_LOG_LEVEL", "warn")
	t.Setenv("DECKHAND_ENGINE_MAX_RESTART_ATTEMPTS", "3")
	t.Setenv("DECKHAND_API_PORT", "8600")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "unix:///run/user/1000/docker.sock", cfg.Docker.Host)
	assert.Equal(t, "/custom/state.db", cfg.Database.DSN)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Engine.MaxRestartAttempts)
	assert.Equal(t, 8600, cfg.API.Port)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_InvalidFileRejected(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("log: [broken"), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

func TestAPIConfigAddress(t *testing.T) {
	cfg := APIConfig{Host: "127.0.0.1", Port: 8520}
	assert.Equal(t, "127.0.0.1:8520", cfg.Address())
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestDeriveProject(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"plain directory", "/home/dev/Shop-App/deckhand.yaml", "shop-app"},
		{"underscores kept", "/srv/my_site/deckhand.yaml", "my_site"},
		{"special chars stripped", "/srv/a b!c/deckhand.yaml", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deriveProject(tt.path))
		})
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"DECKHAND_DOCKER_HOST",
		"DECKHAND_DATABASE_DSN",
		"DECKHAND_LOG_LEVEL",
		"DECKHAND_LOG_FORMAT",
		"DECKHAND_ENGINE_MAX_RESTART_ATTEMPTS",
		"DECKHAND_API_HOST",
		"DECKHAND_API_PORT",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}
