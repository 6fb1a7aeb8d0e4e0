package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "http:\n  port: 9090\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 600, cfg.Cache.TTLSeconds)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 10, cfg.Retry.DelaySeconds)
	assert.Equal(t, "eastmoney", cfg.Upstream.Primary)
	assert.Equal(t, "info", cfg.Log.Level)

	assert.Equal(t, 600*time.Second, cfg.CacheTTL())
	assert.Equal(t, 10*time.Second, cfg.RetryDelay())
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
http:
  port: 8081
  timeout_seconds: 15
  allowed_origins: ["https://example.com"]
cache:
  ttl_seconds: 300
retry:
  max_attempts: 5
  delay_seconds: 2
upstream:
  primary: sina
  timeout_seconds: 5
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 300*time.Second, cfg.CacheTTL())
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, "sina", cfg.Upstream.Primary)
	assert.Equal(t, 5*time.Second, cfg.UpstreamTimeout())
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	path := writeConfig(t, "http:\n  port: -1\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
