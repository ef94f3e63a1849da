package utils

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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "scraper:\n  browser:\n    headless: true\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, SourceBrowser, cfg.Scraper.Source)
	assert.Equal(t, 2, cfg.Scraper.Workers)
	assert.Equal(t, 30*time.Second, cfg.Scraper.TimeoutDuration())
	assert.Equal(t, 4*time.Second, cfg.Scraper.SettleDuration())
	assert.Equal(t, ":BVMF", cfg.Scraper.Suffix)
	assert.Equal(t, "lines", cfg.Scraper.Rule.Kind)
	assert.Equal(t, 34, cfg.Scraper.Rule.PriceLine)
	assert.Equal(t, 35, cfg.Scraper.Rule.VariationLine)
	assert.Equal(t, 36, cfg.Scraper.Rule.VariationPctLine)
	assert.Equal(t, []string{"Today", "Hoje"}, cfg.Scraper.Rule.Strip)
	assert.Equal(t, "data/ativos.csv", cfg.Tickers.File)
	assert.Equal(t, "data/lista-negra.csv", cfg.Blacklist.File)
	assert.Equal(t, "output", cfg.Output.Dir)
	assert.Equal(t, "csv", cfg.Output.Format)
	assert.True(t, cfg.Scraper.Browser.Headless)
}

func TestLoadConfig_ChartDefaults(t *testing.T) {
	path := writeConfig(t, "scraper:\n  source: chart\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ".SA", cfg.Scraper.Suffix)
	assert.Equal(t, "https://query1.finance.yahoo.com", cfg.Scraper.URL)
	assert.Equal(t, 0, cfg.Scraper.Settle)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("QUOTES_WORKERS", "4")
	t.Setenv("QUOTES_SOURCE", "html")
	t.Setenv("REDIS_ADDR", "localhost:6380")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.example/x")
	t.Setenv("QUOTES_OUTPUT_DIR", "/tmp/quotes")

	path := writeConfig(t, "scraper:\n  workers: 3\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Scraper.Workers)
	assert.Equal(t, SourceHTML, cfg.Scraper.Source)
	assert.Equal(t, "localhost:6380", cfg.Blacklist.RedisAddr)
	assert.Equal(t, "https://hooks.example/x", cfg.Notify.SlackWebhook)
	assert.Equal(t, "/tmp/quotes", cfg.Output.Dir)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown source", "scraper:\n  source: ftp\n"},
		{"too many workers", "scraper:\n  workers: 64\n"},
		{"negative timeout", "scraper:\n  timeout: -1\n"},
		{"settle above timeout", "scraper:\n  timeout: 5\n  settle: 10\n"},
		{"negative retries", "scraper:\n  retries: -2\n"},
		{"bad rule", "scraper:\n  rule:\n    kind: regex\n"},
		{"incomplete selectors", "scraper:\n  rule:\n    kind: selectors\n    priceSelector: div.price\n"},
		{"bad format", "output:\n  format: xml\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnsureWritableDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureWritableDir(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "probe file must be removed")
}
