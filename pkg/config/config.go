// Package config loads and validates engine configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete engine configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Poller   PollerConfig   `yaml:"poller"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Agent    AgentConfig    `yaml:"agent"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig holds the job store connection configuration.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // sqlite or postgres
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// PollerConfig holds poll-cycle configuration.
type PollerConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
	LeaseTTL  time.Duration `yaml:"lease_ttl"`
}

// BreakerConfig holds circuit-breaker configuration.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
}

// AgentConfig holds bounded-agent-run configuration.
type AgentConfig struct {
	MaxToolCalls int `yaml:"max_tool_calls"`
	MaxTokens    int `yaml:"max_tokens"`
}

// WebhookConfig holds outbound HTTP configuration.
type WebhookConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Validation errors.
var (
	ErrUnknownDriver  = errors.New("config: database driver must be sqlite or postgres")
	ErrMissingDSN     = errors.New("config: database dsn is required")
	ErrBadInterval    = errors.New("config: poller interval must be positive")
	ErrBadBatchSize   = errors.New("config: poller batch size must be positive")
	ErrBadLeaseTTL    = errors.New("config: poller lease ttl must be positive")
	ErrBadThreshold   = errors.New("config: breaker failure threshold must be positive")
	ErrBadAgentBudget = errors.New("config: agent budgets must be positive")
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "schedcore.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		Poller: PollerConfig{
			Interval:  5 * time.Minute,
			BatchSize: 5,
			LeaseTTL:  10 * time.Minute,
		},
		Breaker: BreakerConfig{FailureThreshold: 5},
		Agent: AgentConfig{
			MaxToolCalls: 25,
			MaxTokens:    100_000,
		},
		Webhook: WebhookConfig{Timeout: 30 * time.Second},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads configuration from a YAML file layered over defaults, then
// applies environment overrides. A missing path loads defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers environment variables over the file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SCHEDCORE_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("SCHEDCORE_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("SCHEDCORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SCHEDCORE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SCHEDCORE_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Poller.Interval = d
		}
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return ErrUnknownDriver
	}
	if c.Database.DSN == "" {
		return ErrMissingDSN
	}
	if c.Poller.Interval <= 0 {
		return ErrBadInterval
	}
	if c.Poller.BatchSize <= 0 {
		return ErrBadBatchSize
	}
	if c.Poller.LeaseTTL <= 0 {
		return ErrBadLeaseTTL
	}
	if c.Breaker.FailureThreshold <= 0 {
		return ErrBadThreshold
	}
	if c.Agent.MaxToolCalls <= 0 || c.Agent.MaxTokens <= 0 {
		return ErrBadAgentBudget
	}
	return nil
}
