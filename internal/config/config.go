// Package config loads the monitor configuration from a YAML file with
// environment variable overrides, so a container deployment can override
// secrets without touching the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full monitor configuration. Durations are plain integers
// in the named unit; YAML carries no duration type and second precision is
// all the poll loop needs.
type Config struct {
	Broker    BrokerConfig    `yaml:"broker"`
	Database  DatabaseConfig  `yaml:"database"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Detection DetectionConfig `yaml:"detection"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Web       WebConfig       `yaml:"web"`
}

// BrokerConfig points at the MQTT broker the heating gateway publishes to.
type BrokerConfig struct {
	URL         string `yaml:"url"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// DatabaseConfig locates the forensic SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MonitorConfig tunes the poll loop.
type MonitorConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	MaxStalenessMinutes int `yaml:"max_staleness_minutes"`
	RetentionDays       int `yaml:"retention_days"`
}

// DetectionConfig tunes the classification rules.
type DetectionConfig struct {
	HighSuspectTemp           float64 `yaml:"high_suspect_temp"`
	LowSuspectTemp            float64 `yaml:"low_suspect_temp"`
	TempTolerance             float64 `yaml:"temp_tolerance"`
	ThresholdWarning          float64 `yaml:"threshold_warning"`
	LeadWindowMinMinutes      int     `yaml:"lead_window_min_minutes"`
	LeadWindowMaxMinutes      int     `yaml:"lead_window_max_minutes"`
	OptimumStartWindowMinutes int     `yaml:"optimum_start_window_minutes"`
}

// TelegramConfig configures the alert channel. An empty token disables it.
type TelegramConfig struct {
	Token             string `yaml:"token"`
	ChatID            string `yaml:"chat_id"`
	CooldownSeconds   int    `yaml:"cooldown_seconds"`
	QuietHoursEnabled bool   `yaml:"quiet_hours_enabled"`
	QuietStart        int    `yaml:"quiet_start"`
	QuietEnd          int    `yaml:"quiet_end"`
}

// WebConfig configures the dashboard API listener.
type WebConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			URL:         "tcp://localhost:1883",
			TopicPrefix: "hearthwatch",
		},
		Database: DatabaseConfig{
			Path: "data/hearthwatch.db",
		},
		Monitor: MonitorConfig{
			PollIntervalSeconds: 300,
			MaxStalenessMinutes: 15,
			RetentionDays:       90,
		},
		Detection: DetectionConfig{
			HighSuspectTemp:           35.0,
			LowSuspectTemp:            5.0,
			TempTolerance:             0.2,
			ThresholdWarning:          0.5,
			LeadWindowMinMinutes:      8,
			LeadWindowMaxMinutes:      15,
			OptimumStartWindowMinutes: 180,
		},
		Telegram: TelegramConfig{
			CooldownSeconds: 1800,
			QuietStart:      23,
			QuietEnd:        7,
		},
		Web: WebConfig{
			ListenAddr: ":8080",
		},
	}
}

// Load reads the configuration file at path, falling back to defaults when
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields commonly injected at deploy time.
func (c *Config) applyEnv() {
	if v := os.Getenv("HEARTHWATCH_BROKER_URL"); v != "" {
		c.Broker.URL = v
	}
	if v := os.Getenv("HEARTHWATCH_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("HEARTHWATCH_TELEGRAM_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("HEARTHWATCH_TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("HEARTHWATCH_LISTEN_ADDR"); v != "" {
		c.Web.ListenAddr = v
	}
	if v := os.Getenv("HEARTHWATCH_POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Monitor.PollIntervalSeconds = n
		}
	}
}

// Validate rejects configurations the monitor cannot run with.
func (c *Config) Validate() error {
	if c.Broker.URL == "" {
		return fmt.Errorf("broker.url is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Monitor.PollIntervalSeconds <= 0 {
		return fmt.Errorf("monitor.poll_interval_seconds must be positive")
	}
	if c.Monitor.MaxStalenessMinutes <= 0 {
		return fmt.Errorf("monitor.max_staleness_minutes must be positive")
	}
	if c.Monitor.RetentionDays <= 0 {
		return fmt.Errorf("monitor.retention_days must be positive")
	}
	if s, e := c.Telegram.QuietStart, c.Telegram.QuietEnd; s < 0 || s > 23 || e < 0 || e > 23 {
		return fmt.Errorf("telegram quiet hours must be hours of day")
	}
	return nil
}

// PollInterval returns the poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Monitor.PollIntervalSeconds) * time.Second
}

// MaxStaleness returns the staleness limit as a duration.
func (c *Config) MaxStaleness() time.Duration {
	return time.Duration(c.Monitor.MaxStalenessMinutes) * time.Minute
}

// TelegramCooldown returns the alert cooldown as a duration.
func (c *Config) TelegramCooldown() time.Duration {
	return time.Duration(c.Telegram.CooldownSeconds) * time.Second
}
