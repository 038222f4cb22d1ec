package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.Listen)
	assert.Equal(t, "fleetwatch.db", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "simulated", cfg.Sampler.Mode)
	assert.Equal(t, int64(100), cfg.Sampler.MinDiskMB)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL.Duration)
	assert.Equal(t, time.Hour, cfg.Alerting.SuppressionWindow.Duration)
	assert.Equal(t, 24*time.Hour, cfg.Alerting.StaleCutoff.Duration)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
listen: ":9000"
db_path: /var/lib/fleetwatch/fleet.db
log_level: debug
log_format: json
sampler:
  mode: host
  min_disk_mb: 500
cache:
  backend: redis
  ttl: 5m
  redis:
    addr: localhost:6379
    db: 2
alerting:
  suppression_window: 30m
  stale_cutoff: 48h
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "/var/lib/fleetwatch/fleet.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "host", cfg.Sampler.Mode)
	assert.Equal(t, int64(500), cfg.Sampler.MinDiskMB)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL.Duration)
	assert.Equal(t, "localhost:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, 2, cfg.Cache.Redis.DB)
	assert.Equal(t, 30*time.Minute, cfg.Alerting.SuppressionWindow.Duration)
	assert.Equal(t, 48*time.Hour, cfg.Alerting.StaleCutoff.Duration)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.ErrorIs(t, err, ErrConfigFileNotFound)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: ":7070"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, "fleetwatch.db", cfg.DBPath)
	assert.Equal(t, "memory", cfg.Cache.Backend)
}

func TestEnvVarExpansion(t *testing.T) {
	t.Setenv("FLEET_TEST_DB", "/tmp/expanded.db")
	path := writeConfig(t, `
db_path: ${FLEET_TEST_DB}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/expanded.db", cfg.DBPath)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FLEETWATCH_LISTEN", ":6000")
	t.Setenv("FLEETWATCH_SAMPLER_MODE", "host")
	t.Setenv("FLEETWATCH_REDIS_ADDR", "redis:6379")
	t.Setenv("FLEETWATCH_REDIS_DB", "3")
	t.Setenv("FLEETWATCH_SUPPRESSION_WINDOW", "15m")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":6000", cfg.Listen)
	assert.Equal(t, "host", cfg.Sampler.Mode)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "redis:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, 3, cfg.Cache.Redis.DB)
	assert.Equal(t, 15*time.Minute, cfg.Alerting.SuppressionWindow.Duration)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "empty listen",
			mutate:  func(c *Config) { c.Listen = "" },
			wantErr: "listen address",
		},
		{
			name:    "empty db path",
			mutate:  func(c *Config) { c.DBPath = "" },
			wantErr: "db_path",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: "log_level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.LogFormat = "xml" },
			wantErr: "log_format",
		},
		{
			name:    "bad sampler mode",
			mutate:  func(c *Config) { c.Sampler.Mode = "remote" },
			wantErr: "sampler.mode",
		},
		{
			name:    "bad cache backend",
			mutate:  func(c *Config) { c.Cache.Backend = "memcached" },
			wantErr: "cache.backend",
		},
		{
			name: "redis backend without addr",
			mutate: func(c *Config) {
				c.Cache.Backend = "redis"
				c.Cache.Redis.Addr = ""
			},
			wantErr: "cache.redis.addr",
		},
		{
			name:    "zero ttl",
			mutate:  func(c *Config) { c.Cache.TTL = Duration{0} },
			wantErr: "cache.ttl",
		},
		{
			name:    "zero suppression window",
			mutate:  func(c *Config) { c.Alerting.SuppressionWindow = Duration{0} },
			wantErr: "suppression_window",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDurationUnmarshalInvalid(t *testing.T) {
	path := writeConfig(t, `
cache:
  ttl: soon
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}
