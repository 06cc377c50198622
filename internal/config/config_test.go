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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("BACKEND_BASE_URL", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Job.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Quotes.Interval)
	assert.Equal(t, DefaultQuoteSymbols, cfg.Quotes.Symbols)
	assert.Equal(t, "backend", cfg.Quotes.Source)
	assert.Equal(t, 1024, cfg.Chart.Width)
	assert.Equal(t, 400, cfg.Chart.Height)
	assert.Equal(t, "Asia/Taipei", cfg.Chart.Timezone)
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout)

	assert.ErrorContains(t, cfg.Validate(), "backend.base_url")
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	path := writeConfig(t, `
backend:
  base_url: http://localhost:8000
  check_rate: 2
quotes:
  source: yahoo
  symbols: ["^TWII"]
  interval: 10s
job:
  poll_interval: 3s
  scan_cron: "0 30 13 * * 1-5"
chart:
  width: 800
`)
	t.Setenv("QUOTE_SYMBOLS", "NQ=F, 2330.TW,,")
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("BACKEND_API_KEY", "k")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://localhost:8000", cfg.Backend.BaseURL)
	assert.Equal(t, "k", cfg.Backend.APIKey)
	assert.Equal(t, 2.0, cfg.Backend.CheckRate)
	assert.Equal(t, "yahoo", cfg.Quotes.Source)
	assert.Equal(t, []string{"NQ=F", "2330.TW"}, cfg.Quotes.Symbols)
	assert.Equal(t, 10*time.Second, cfg.Quotes.Interval)
	assert.Equal(t, 3*time.Second, cfg.Job.PollInterval)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 800, cfg.Chart.Width)
	assert.False(t, cfg.TelegramEnabled())
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BACKEND_BASE_URL=http://from-dotenv:8000\n"), 0644))
	t.Setenv("BACKEND_BASE_URL", "")
	os.Unsetenv("BACKEND_BASE_URL")

	cfg, err := Load(filepath.Join(dir, "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://from-dotenv:8000", cfg.Backend.BaseURL)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		cfg.Backend.BaseURL = "http://x"
		cfg.applyDefaults()
		return cfg
	}
	require.NoError(t, base().Validate())

	cases := map[string]func(*Config){
		"quotes.source":  func(c *Config) { c.Quotes.Source = "ws" },
		"chart.timezone": func(c *Config) { c.Chart.Timezone = "Mars/Olympus" },
		"telegram":       func(c *Config) { c.Telegram.BotToken = "t" },
		"job.scan_cron":  func(c *Config) { c.Job.ScanCron = "every day" },
		"check_rate":     func(c *Config) { c.Backend.CheckRate = -1 },
		"chart.width":    func(c *Config) { c.Chart.Width = -5 },
		"poll_interval":  func(c *Config) { c.Job.PollInterval = -time.Second },
	}
	for want, mutate := range cases {
		cfg := base()
		mutate(cfg)
		assert.ErrorContains(t, cfg.Validate(), want)
	}
}

func TestSplitSymbols(t *testing.T) {
	assert.Equal(t, []string{"^TWII", "NQ=F"}, SplitSymbols(" ^TWII ,NQ=F,"))
	assert.Nil(t, SplitSymbols(" , "))
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
