package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wachat/internal/constants"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"database": {"path": "/tmp/wachat-test.db"}}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/wachat-test.db", cfg.Database.Path)
	assert.Equal(t, constants.DefaultSendTimeoutSec, cfg.Provider.SendTimeoutSec)
	assert.Equal(t, constants.DefaultUploadTimeoutSec, cfg.Provider.UploadTimeoutSec)
	assert.Equal(t, constants.DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, constants.DefaultRetryBackoffMs, cfg.Retry.InitialBackoffMs)
	assert.Equal(t, constants.DefaultMaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, constants.DefaultRetentionDays, cfg.RetentionDays)
	assert.Equal(t, "wachat", cfg.Tracing.ServiceName)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRate)
}

func TestLoadConfigExplicitValuesWin(t *testing.T) {
	path := writeConfig(t, `{
		"database": {"path": "/tmp/wachat-test.db"},
		"provider": {"sendTimeoutSec": 5, "uploadTimeoutSec": 60},
		"server": {"port": 9000},
		"retry": {"maxAttempts": 2},
		"retentionDays": 7,
		"log_level": "debug"
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Provider.SendTimeoutSec)
	assert.Equal(t, 60, cfg.Provider.UploadTimeoutSec)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Retry.MaxAttempts)
	assert.Equal(t, 7, cfg.RetentionDays)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigMissingDBPath(t *testing.T) {
	path := writeConfig(t, `{"server": {"port": 9000}}`)

	_, err := LoadConfig(path)
	assert.ErrorIs(t, err, ErrMissingDBPath)
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	path := writeConfig(t, `{not json`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadConfigRejectsTraversalPath(t *testing.T) {
	_, err := LoadConfig("../../etc/passwd")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config path")
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `{"database": {"path": "/tmp/wachat-test.db"}}`)

	t.Setenv("WACHAT_DB_PATH", "/tmp/override.db")
	t.Setenv("WACHAT_PORT", "9100")
	t.Setenv("WACHAT_LOG_LEVEL", "warn")
	t.Setenv("WACHAT_OTLP_ENDPOINT", "collector:4318")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "collector:4318", cfg.Tracing.OTLPEndpoint)
	assert.True(t, cfg.Tracing.Enabled)
}

func TestEnvironmentOverrideIgnoresBadPort(t *testing.T) {
	path := writeConfig(t, `{"database": {"path": "/tmp/wachat-test.db"}}`)

	t.Setenv("WACHAT_PORT", "not-a-port")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, constants.DefaultServerPort, cfg.Server.Port)
}
