package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the CoPilot core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Account   AccountConfig   `yaml:"account"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Storage   StorageConfig   `yaml:"storage"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logbook   LogbookConfig   `yaml:"logbook"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AccountConfig identifies the single game account this process acts for.
type AccountConfig struct {
	// ID is the upstream account (user) identifier.
	ID string `yaml:"id"`

	// SessionCookie authenticates upstream calls. Usually injected via
	// COPILOT_ACCOUNT_SESSION_COOKIE rather than stored in the file.
	SessionCookie string `yaml:"session_cookie"`
}

// UpstreamConfig contains the game API connection settings.
type UpstreamConfig struct {
	BaseURL string `yaml:"base_url"`

	// Timeout is the per-request timeout in seconds. Every upstream call
	// is bounded; a timeout surfaces as a transient error, never fatal.
	Timeout int `yaml:"timeout"`

	// RetryCount is the number of automatic retries for transient
	// transport failures within one call.
	RetryCount int `yaml:"retry_count"`
}

// APIConfig contains the local HTTP server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket push settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
	SendBufferSize int    `yaml:"send_buffer_size"`
}

// StorageConfig contains durable state settings.
// Each subsystem writes one plain JSON file per account under DataDir,
// always via temp-file-then-rename.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// SchedulerConfig contains trigger timing settings.
type SchedulerConfig struct {
	// TickInterval is the scheduler's internal polling resolution in seconds.
	TickInterval int `yaml:"tick_interval"`

	// SlotMargin is how many minutes after a :00/:30 UTC price boundary
	// slot-aligned tasks fire. Firing exactly at the boundary risks reading
	// the outgoing slot's row.
	SlotMargin int `yaml:"slot_margin"`
}

// LogbookConfig contains logbook persistence settings.
type LogbookConfig struct {
	// FlushInterval is how often dirty accounts are flushed to disk, in seconds.
	FlushInterval int `yaml:"flush_interval"`

	// MaxEntries caps the in-memory (and persisted) history per account.
	// Oldest entries are dropped beyond the cap. 0 means unlimited.
	MaxEntries int `yaml:"max_entries"`
}

// InfluxDBConfig contains optional telemetry settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: COPILOT_SECTION_KEY
// For example: COPILOT_UPSTREAM_BASE_URL, COPILOT_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			BaseURL:    "https://www.shippingmanager.app",
			Timeout:    30,
			RetryCount: 2,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 12345,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
			SendBufferSize: 256,
		},
		Storage: StorageConfig{
			DataDir: "./userdata",
		},
		Scheduler: SchedulerConfig{
			TickInterval: 30,
			SlotMargin:   2,
		},
		Logbook: LogbookConfig{
			FlushInterval: 60,
			MaxEntries:    2000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: COPILOT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Account
	if v := os.Getenv("COPILOT_ACCOUNT_ID"); v != "" {
		cfg.Account.ID = v
	}
	if v := os.Getenv("COPILOT_ACCOUNT_SESSION_COOKIE"); v != "" {
		cfg.Account.SessionCookie = v
	}

	// Upstream
	if v := os.Getenv("COPILOT_UPSTREAM_BASE_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}

	// API
	if v := os.Getenv("COPILOT_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("COPILOT_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Storage
	if v := os.Getenv("COPILOT_STORAGE_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	// InfluxDB
	if v := os.Getenv("COPILOT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Account.ID == "" {
		errs = append(errs, "account.id is required (set COPILOT_ACCOUNT_ID)")
	}

	if c.Upstream.BaseURL == "" {
		errs = append(errs, "upstream.base_url is required")
	}
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, "upstream.timeout must be positive")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Storage.DataDir == "" {
		errs = append(errs, "storage.data_dir is required")
	}

	if c.Scheduler.SlotMargin < 1 || c.Scheduler.SlotMargin >= 30 {
		errs = append(errs, "scheduler.slot_margin must be between 1 and 29 minutes")
	}

	if c.Logbook.FlushInterval <= 0 {
		errs = append(errs, "logbook.flush_interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// UpstreamTimeout returns the upstream request timeout as a Duration.
func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.Timeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// SlotMarginDuration returns the post-boundary firing margin as a Duration.
func (c *Config) SlotMarginDuration() time.Duration {
	return time.Duration(c.Scheduler.SlotMargin) * time.Minute
}

// LogbookFlushInterval returns the logbook flush interval as a Duration.
func (c *Config) LogbookFlushInterval() time.Duration {
	return time.Duration(c.Logbook.FlushInterval) * time.Second
}
