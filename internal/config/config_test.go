package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libralend/internal/logger"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.Equal(t, logger.Development, cfg.Log.Environment())
	assert.Zero(t, cfg.Membership.RegistrationsPerMinute)
	assert.Empty(t, cfg.Telemetry.OTLPEndpoint)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("LIBRALEND_HTTP_PORT", "9090")
	t.Setenv("LIBRALEND_LOG_MODE", "production")
	t.Setenv("LIBRALEND_REGISTRATIONS_PER_MINUTE", "12")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, logger.Production, cfg.Log.Environment())
	assert.Equal(t, 12.0, cfg.Membership.RegistrationsPerMinute)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "libralend.yaml")
	body := "http:\n  port: 7070\nlog:\n  level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.HTTP.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_RejectsBadPort(t *testing.T) {
	t.Setenv("LIBRALEND_HTTP_PORT", "70000")
	_, err := Load("")
	assert.Error(t, err)
}
