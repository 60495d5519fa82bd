package config

import (
	"os"
	"path/filepath"
	"testing"

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
	path := writeConfig(t, `
binance:
  enabled: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9991", cfg.Server.Addr)
	assert.Equal(t, "data/klines", cfg.Data.Root)
	assert.Equal(t, "data/tasks.db", cfg.Data.TasksDB)
	assert.Equal(t, "/api", cfg.Upstream.Prefix)
	assert.Equal(t, 30, cfg.Upstream.TimeoutSeconds)
	assert.Equal(t, "https://fapi.binance.com", cfg.Binance.RESTBaseURL)
	assert.Equal(t, 15, cfg.Binance.TimeoutSeconds)
	assert.Equal(t, "binance", cfg.Fetch.DefaultExchange)
	assert.Equal(t, 480, cfg.Fetch.RateLimitPerMin)
	assert.Equal(t, 1000, cfg.Fetch.MaxBatch)
	assert.Equal(t, 2, cfg.Fetch.MaxConcurrent)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
app:
  env: prod
  log_level: debug
server:
  addr: ":8080"
binance:
  enabled: true
upstream:
  enabled: true
  base_url: http://peer:9991
  timeout_seconds: 5
fetch:
  rate_limit_per_min: 120
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "http://peer:9991", cfg.Upstream.BaseURL)
	assert.Equal(t, 5, cfg.Upstream.TimeoutSeconds)
	assert.Equal(t, 120, cfg.Fetch.RateLimitPerMin)
}

func TestLoadValidation(t *testing.T) {
	// upstream 开启但缺 base_url
	path := writeConfig(t, `
upstream:
  enabled: true
`)
	_, err := Load(path)
	assert.Error(t, err)

	// 两个数据源都没开
	path = writeConfig(t, `
app:
  log_level: info
`)
	_, err = Load(path)
	assert.Error(t, err)

	// 非法日志级别
	path = writeConfig(t, `
app:
  log_level: verbose
binance:
  enabled: true
`)
	_, err = Load(path)
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
