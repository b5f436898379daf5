package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 20, cfg.Analysis.ADVWindow)
	assert.Equal(t, 252, cfg.Analysis.ZScoreWindow)
	assert.Equal(t, 756, cfg.Analysis.PercentileWindow)
	assert.Equal(t, []int{1, 3, 5, 10}, cfg.Analysis.Horizons)
	assert.Equal(t, 5, cfg.Analysis.BucketCount)
	assert.Equal(t, 5, cfg.Analysis.GrangerLag)
	assert.Equal(t, 0.05, cfg.Analysis.SignificanceLevel)
	assert.Equal(t, 30, cfg.Analysis.MinSampleSize)
	assert.Equal(t, time.Hour, cfg.Fetch.SnapshotMaxAge)
	assert.True(t, cfg.Server.RateLimit.Enabled)
	assert.Equal(t, 50.0, cfg.Server.RateLimit.RPS)
	assert.Equal(t, 100, cfg.Server.RateLimit.Burst)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")

	content := `
server:
  port: 9090
analysis:
  bucket_count: 3
  granger_lag: 10
sectors:
  - name: steel
    tickers: [HPG, HSG]
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))

	cfg, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Analysis.BucketCount)
	assert.Equal(t, 10, cfg.Analysis.GrangerLag)
	// untouched values keep defaults
	assert.Equal(t, 252, cfg.Analysis.ZScoreWindow)

	sector, ok := cfg.Sector("steel")
	require.True(t, ok)
	assert.Equal(t, []string{"HPG", "HSG"}, sector.Tickers)

	_, ok = cfg.Sector("banking")
	assert.False(t, ok, "yaml sector list replaces the default list")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("VNFLOW_ANALYSIS_BUCKET_COUNT", "10")
	t.Setenv("VNFLOW_SERVER_PORT", "7070")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Analysis.BucketCount)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestValidateRejectsBadParameters(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bucket count not in 3/5/10", func(c *Config) { c.Analysis.BucketCount = 1 }},
		{"zero horizon", func(c *Config) { c.Analysis.Horizons = []int{0} }},
		{"empty horizons", func(c *Config) { c.Analysis.Horizons = nil }},
		{"granger lag zero", func(c *Config) { c.Analysis.GrangerLag = 0 }},
		{"significance out of range", func(c *Config) { c.Analysis.SignificanceLevel = 1.5 }},
		{"window too small", func(c *Config) { c.Analysis.ZScoreWindow = 1 }},
		{"min sample too small", func(c *Config) { c.Analysis.MinSampleSize = 0 }},
		{"sector without tickers", func(c *Config) { c.Sectors = []SectorConfig{{Name: "empty"}} }},
		{"bad port", func(c *Config) { c.Server.Port = -1 }},
		{"rate limit enabled without rps", func(c *Config) { c.Server.RateLimit = RateLimitConfig{Enabled: true, Burst: 10} }},
		{"rate limit enabled without burst", func(c *Config) { c.Server.RateLimit = RateLimitConfig{Enabled: true, RPS: 5} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSourceColumnMap(t *testing.T) {
	assert.Equal(t, FieldNetBuyValue, SourceColumnMap["GTGDRong"])
	assert.Equal(t, FieldNetBuyVolume, SourceColumnMap["KLGDRong"])
	assert.Equal(t, FieldDate, SourceColumnMap["Ngay"])

	_, ok := SourceColumnMap["UnknownLabel"]
	assert.False(t, ok)
}
