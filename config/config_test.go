package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadAppliesDefaults(t *testing.T) {
	p := writeConfig(t, `
env: test
database:
  host: db
  user: scraper
  name: leads
`)

	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, "db", cfg.DbSettings.Host)
	assert.Equal(t, "3306", cfg.DbSettings.Port)
	assert.Equal(t, 8*time.Second, cfg.BrowserSetting.LoginTimeout)
	assert.Equal(t, 5, cfg.BrowserSetting.ScrollCap)
	assert.Equal(t, time.Hour, cfg.CacheSettings.RequestWindow)
	assert.Equal(t, 100, cfg.WorkerSettings.QueueSize)
	assert.NotEmpty(t, cfg.BrowserSetting.BinaryPaths)
}

func TestLoadOverridesDefaults(t *testing.T) {
	p := writeConfig(t, `
log_type: json
browser:
  login_timeout: 3s
  scroll_cap: 2
  binary_paths:
    - /opt/chrome/chrome
worker:
  queue_size: 4
`)

	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.LogType)
	assert.Equal(t, 3*time.Second, cfg.BrowserSetting.LoginTimeout)
	assert.Equal(t, 2, cfg.BrowserSetting.ScrollCap)
	assert.Equal(t, []string{"/opt/chrome/chrome"}, cfg.BrowserSetting.BinaryPaths)
	assert.Equal(t, 4, cfg.WorkerSettings.QueueSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
