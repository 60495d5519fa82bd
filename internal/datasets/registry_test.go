package datasets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "datasets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewRegistryLoadsManifest(t *testing.T) {
	path := writeManifest(t, `
datasets:
  btcusdt_1m_2025:
    symbol: btcusdt
    timeframe: 1M
    files:
      - data/import/binance_btcusdt_1m_20250101_to_20250131.csv
    description: demo
  ethusdt_1h:
    symbol: ETHUSDT
    timeframe: 1h
    files:
      - data/import/eth.csv
`)
	r, err := NewRegistry(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"btcusdt_1m_2025", "ethusdt_1h"}, r.IDs())

	ds, ok := r.Dataset("btcusdt_1m_2025")
	require.True(t, ok)
	// symbol/timeframe 统一大小写
	assert.Equal(t, "BTCUSDT", ds.Symbol)
	assert.Equal(t, "1m", ds.Timeframe)
	assert.Len(t, ds.Files, 1)

	_, ok = r.Dataset("missing")
	assert.False(t, ok)

	snap := r.Snapshot()
	assert.Equal(t, int64(1), snap.Version)
	assert.Len(t, snap.Datasets, 2)
}

func TestNewRegistryRejectsSchemaViolations(t *testing.T) {
	// files 为空数组不过 schema
	path := writeManifest(t, `
datasets:
  broken:
    symbol: BTCUSDT
    timeframe: 1m
    files: []
`)
	_, err := NewRegistry(path)
	assert.Error(t, err)

	// 缺 symbol
	path = writeManifest(t, `
datasets:
  broken:
    timeframe: 1m
    files: [a.csv]
`)
	_, err = NewRegistry(path)
	assert.Error(t, err)
}

func TestNewRegistryMissingFile(t *testing.T) {
	_, err := NewRegistry(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	_, err = NewRegistry("  ")
	assert.Error(t, err)
}
