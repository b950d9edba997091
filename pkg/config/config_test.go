package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("O365MON_ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
}

func TestLoad_Defaults(t *testing.T) {
	validEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "localhost:9092", cfg.Kafka.BootstrapServers)
	assert.Equal(t, "@every 1m", cfg.Monitor.PollSchedule)
	assert.Equal(t, 4, cfg.Monitor.Sweep.MaxConcurrentUsers)
}

func TestLoad_FileThenEnvOverride(t *testing.T) {
	validEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
database:
  host: db.internal
  database: monitor
monitor:
  poll_schedule: "@every 5m"
  sweep:
    max_concurrent_users: 8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("O365MON_DB_HOST", "db.override")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.override", cfg.Database.Host, "environment wins over file")
	assert.Equal(t, "monitor", cfg.Database.Database)
	assert.Equal(t, "@every 5m", cfg.Monitor.PollSchedule)
	assert.Equal(t, 8, cfg.Monitor.Sweep.MaxConcurrentUsers)
}

func TestLoad_DurationFromEnv(t *testing.T) {
	validEnv(t)
	t.Setenv("O365MON_SERVER_SHUTDOWN_TIMEOUT", "45s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Server.ShutdownTimeout)
}

func TestLoad_MissingEncryptionKey(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encryption key")
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"empty db host", func(c *Config) { c.Database.Host = "" }},
		{"empty brokers", func(c *Config) { c.Kafka.BootstrapServers = "" }},
		{"empty schedule", func(c *Config) { c.Monitor.PollSchedule = "" }},
		{"short key", func(c *Config) { c.Encryption.Key = "short" }},
		{"hex-encoded key", func(c *Config) {
			// 64 hex chars encode 32 bytes but the key is taken raw.
			c.Encryption.Key = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Encryption.Key = "0123456789abcdef0123456789abcdef"
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
