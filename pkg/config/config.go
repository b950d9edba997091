package config

import (
	"fmt"
	"time"

	"github.com/saasguard/o365-monitor/internal/database"
	"github.com/saasguard/o365-monitor/pkg/events"
	"github.com/saasguard/o365-monitor/pkg/monitor"
)

// EnvPrefix is prepended to every environment override, e.g.
// O365MON_SERVER_PORT or O365MON_DB_HOST.
const EnvPrefix = "O365MON"

// Config is the full service configuration
type Config struct {
	Server     ServerConfig          `yaml:"server"`
	Database   database.Config       `yaml:"database"`
	Kafka      events.ProducerConfig `yaml:"kafka"`
	Monitor    MonitorConfig         `yaml:"monitor"`
	Logging    LoggingConfig         `yaml:"logging"`
	Encryption EncryptionConfig      `yaml:"encryption"`
}

// ServerConfig configures the HTTP admin/health listener
type ServerConfig struct {
	Host            string        `yaml:"host" env:"SERVER_HOST"`
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// MonitorConfig configures the periodic delta sweeps
type MonitorConfig struct {
	// PollSchedule is a cron expression controlling how often every
	// registered workspace is swept for drive changes.
	PollSchedule string              `yaml:"poll_schedule" env:"MONITOR_POLL_SCHEDULE"`
	Sweep        monitor.SweepConfig `yaml:"sweep"`
}

// LoggingConfig configures the structured logger
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// EncryptionConfig holds the key protecting stored workspace tokens
type EncryptionConfig struct {
	// Key is the raw 32-byte AES-256 key. Required; no encoding is applied.
	Key string `yaml:"key" env:"ENCRYPTION_KEY"`
}

// DefaultConfig returns a configuration with sane defaults applied
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: database.Config{
			Host:            "localhost",
			Port:            5432,
			Username:        "postgres",
			Database:        "o365monitor",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 30 * time.Minute,
			LogLevel:        "warn",
			SlowThreshold:   200 * time.Millisecond,
		},
		Kafka: events.DefaultProducerConfig(),
		Monitor: MonitorConfig{
			PollSchedule: "@every 1m",
			Sweep:        monitor.DefaultSweepConfig(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML file at path (if non-empty), applies O365MON_*
// environment overrides on top, and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	loader := NewLoader(EnvPrefix)
	if err := loader.Load(path, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the service cannot run without
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Kafka.BootstrapServers == "" {
		return fmt.Errorf("kafka bootstrap servers are required")
	}
	if c.Monitor.PollSchedule == "" {
		return fmt.Errorf("monitor poll schedule is required")
	}
	if c.Monitor.Sweep.MaxConcurrentUsers <= 0 {
		return fmt.Errorf("sweep max concurrent users must be positive, got %d", c.Monitor.Sweep.MaxConcurrentUsers)
	}
	if len(c.Encryption.Key) != 32 {
		return fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(c.Encryption.Key))
	}
	return nil
}
