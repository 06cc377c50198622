package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// DefaultQuoteSymbols is the quote board shown before the operator picks one.
var DefaultQuoteSymbols = []string{"^TWII", "NQ=F", "2330.TW"}

// Config holds all application configuration.
type Config struct {
	Backend struct {
		BaseURL   string        `yaml:"base_url"`
		APIKey    string        `yaml:"api_key"`
		Timeout   time.Duration `yaml:"timeout"`
		CheckRate float64       `yaml:"check_rate"`
	} `yaml:"backend"`
	Quotes struct {
		Source   string        `yaml:"source"` // "backend" or "yahoo"
		Symbols  []string      `yaml:"symbols"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"quotes"`
	Job struct {
		PollInterval time.Duration `yaml:"poll_interval"`
		ScanCron     string        `yaml:"scan_cron"`
		Force        bool          `yaml:"force"`
	} `yaml:"job"`
	Chart struct {
		Width    int    `yaml:"width"`
		Height   int    `yaml:"height"`
		Timezone string `yaml:"timezone"`
	} `yaml:"chart"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Prefs struct {
		StateFile string `yaml:"state_file"`
	} `yaml:"prefs"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies .env and environment
// variable overrides, then defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env never overrides variables already set in the environment
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	// Environment variable overrides
	if v := os.Getenv("BACKEND_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("BACKEND_API_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("QUOTE_SYMBOLS"); v != "" {
		cfg.Quotes.Symbols = SplitSymbols(v)
	}
	if v := os.Getenv("SCAN_CRON"); v != "" {
		cfg.Job.ScanCron = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("CHART_TIMEZONE"); v != "" {
		cfg.Chart.Timezone = v
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 30 * time.Second
	}
	if c.Quotes.Source == "" {
		c.Quotes.Source = "backend"
	}
	if len(c.Quotes.Symbols) == 0 {
		c.Quotes.Symbols = append([]string(nil), DefaultQuoteSymbols...)
	}
	if c.Quotes.Interval == 0 {
		c.Quotes.Interval = 5 * time.Second
	}
	if c.Job.PollInterval == 0 {
		c.Job.PollInterval = 2 * time.Second
	}
	if c.Chart.Width == 0 {
		c.Chart.Width = 1024
	}
	if c.Chart.Height == 0 {
		c.Chart.Height = 400
	}
	if c.Chart.Timezone == "" {
		c.Chart.Timezone = "Asia/Taipei"
	}
	if c.Prefs.StateFile == "" {
		c.Prefs.StateFile = "data/prefs.json"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Backend.CheckRate < 0 {
		return fmt.Errorf("backend.check_rate must not be negative")
	}
	switch c.Quotes.Source {
	case "backend", "yahoo":
	default:
		return fmt.Errorf("quotes.source must be backend or yahoo, got %q", c.Quotes.Source)
	}
	if c.Quotes.Interval <= 0 || c.Job.PollInterval <= 0 {
		return fmt.Errorf("quotes.interval and job.poll_interval must be positive")
	}
	if c.Chart.Width <= 0 || c.Chart.Height <= 0 {
		return fmt.Errorf("chart.width and chart.height must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	if c.Job.ScanCron != "" {
		if _, err := cronParser.Parse(c.Job.ScanCron); err != nil {
			return fmt.Errorf("job.scan_cron: %w", err)
		}
	}
	return nil
}

// cronParser matches the scheduler's seconds-enabled cron.
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Location resolves chart.timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Chart.Timezone)
	if err != nil {
		return nil, fmt.Errorf("chart.timezone: %w", err)
	}
	return loc, nil
}

// TelegramEnabled reports whether the bot is configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// SplitSymbols parses a comma separated symbol list, dropping blanks.
func SplitSymbols(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
