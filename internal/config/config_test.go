package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chtemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found.
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "curator.db", cfg.Store.DatabaseURL)
	assert.InDelta(t, 25.0, cfg.Budget.TotalUSD, 0.001)
	assert.InDelta(t, 0.10, cfg.Budget.ReserveRatio, 0.001)
	assert.Equal(t, 3, cfg.Thresholds.Confidence)
	assert.InDelta(t, 0.10, cfg.Thresholds.FailureRate, 0.001)
	assert.InDelta(t, 0.02, cfg.Thresholds.DriftRate, 0.001)
	assert.Contains(t, cfg.Fields.Volatile, "collection_strength")
	assert.Contains(t, cfg.Fields.Volatile, "visit_duration")
	assert.Equal(t, []string{"art_movement", "featured_artists"}, cfg.Fields.ArtOnly)
	assert.Equal(t, 50, cfg.Pipeline.TopN)
	assert.InDelta(t, 0.5, cfg.Pipeline.PrereqCoverage, 0.001)
	assert.Equal(t, 168, cfg.Pipeline.CacheTTLHours)
	assert.False(t, cfg.Pipeline.DryRun)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Judge.Model)
	assert.Equal(t, int64(512), cfg.Judge.MaxTokens)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.InDelta(t, 0.80, cfg.Pricing.Anthropic["claude-haiku-4-5-20251001"].Input, 0.001)
	assert.InDelta(t, 0.001, cfg.Pricing.Encyclopedia.PerQuery, 0.0001)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	chtemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/curator
budget:
  total_usd: 100.0
  reserve_ratio: 0.2
thresholds:
  confidence: 4
pipeline:
  top_n: 10
  dry_run: true
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(".", "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/curator", cfg.Store.DatabaseURL)
	assert.InDelta(t, 100.0, cfg.Budget.TotalUSD, 0.001)
	assert.InDelta(t, 0.2, cfg.Budget.ReserveRatio, 0.001)
	assert.Equal(t, 4, cfg.Thresholds.Confidence)
	assert.Equal(t, 10, cfg.Pipeline.TopN)
	assert.True(t, cfg.Pipeline.DryRun)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values.
	assert.InDelta(t, 0.10, cfg.Thresholds.FailureRate, 0.001)
	assert.Equal(t, 168, cfg.Pipeline.CacheTTLHours)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chtemp(t)

	yaml := `
budget:
  total_usd: 100.0
`
	require.NoError(t, os.WriteFile("config.yaml", []byte(yaml), 0o644))
	t.Setenv("CURATOR_BUDGET_TOTAL_USD", "7.5")
	t.Setenv("CURATOR_STORE_DRIVER", "postgres")

	cfg, err := Load()
	require.NoError(t, err)
	assert.InDelta(t, 7.5, cfg.Budget.TotalUSD, 0.001)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	chtemp(t)

	require.NoError(t, os.WriteFile("config.yaml", []byte("store: [not: valid"), 0o644))
	_, err := Load()
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))

	err := InitLogger(LogConfig{Level: "not-a-level", Format: "json"})
	assert.Error(t, err)
}
