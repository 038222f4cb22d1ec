// Package config handles loading and validating Fleetwatch configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} placeholders in config values.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ErrConfigFileNotFound is returned by Load when the specified config file does not exist.
var ErrConfigFileNotFound = errors.New("config file not found")

// Config is the top-level Fleetwatch configuration.
type Config struct {
	Listen    string         `yaml:"listen"`
	DBPath    string         `yaml:"db_path"`
	LogLevel  string         `yaml:"log_level"`
	LogFormat string         `yaml:"log_format"`
	Sampler   SamplerConfig  `yaml:"sampler"`
	Cache     CacheConfig    `yaml:"cache"`
	Alerting  AlertingConfig `yaml:"alerting"`
}

// SamplerConfig selects where metric snapshots come from.
type SamplerConfig struct {
	// Mode is "simulated" (every server gets pseudo-random data) or "host"
	// (the record flagged as host gets real readings from this machine).
	Mode string `yaml:"mode"`
	// MinDiskMB excludes volumes smaller than this from disk sampling, so
	// tiny virtual mounts don't pollute the aggregate.
	MinDiskMB int64 `yaml:"min_disk_mb"`
}

// CacheConfig selects the latest-snapshot cache backend.
type CacheConfig struct {
	Backend string      `yaml:"backend"` // "memory" or "redis"
	TTL     Duration    `yaml:"ttl"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig describes the Redis connection for the redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AlertingConfig holds the alert lifecycle tunables.
type AlertingConfig struct {
	// SuppressionWindow is the minimum time between two alerts with the
	// same server and title.
	SuppressionWindow Duration `yaml:"suppression_window"`
	// StaleCutoff is the age after which still-active informational alerts
	// are auto-resolved by the cleanup job.
	StaleCutoff Duration `yaml:"stale_cutoff"`
}

// Duration wraps time.Duration with YAML string parsing support.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Load reads configuration from a YAML file. If no path is given, defaults
// plus environment overrides are used. If a path is given and the file does
// not exist, ErrConfigFileNotFound is returned.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
		}
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(expandEnvVars(data), cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("log_format must be one of: text, json")
	}

	switch c.Sampler.Mode {
	case "simulated", "host":
	default:
		return fmt.Errorf("sampler.mode must be one of: simulated, host")
	}
	if c.Sampler.MinDiskMB < 0 {
		return fmt.Errorf("sampler.min_disk_mb must be >= 0")
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend must be one of: memory, redis")
	}
	if c.Cache.TTL.Duration <= 0 {
		return fmt.Errorf("cache.ttl must be > 0")
	}

	if c.Alerting.SuppressionWindow.Duration <= 0 {
		return fmt.Errorf("alerting.suppression_window must be > 0")
	}
	if c.Alerting.StaleCutoff.Duration <= 0 {
		return fmt.Errorf("alerting.stale_cutoff must be > 0")
	}

	return nil
}

func defaults() *Config {
	return &Config{
		Listen:    ":8090",
		DBPath:    "fleetwatch.db",
		LogLevel:  "info",
		LogFormat: "text",
		Sampler: SamplerConfig{
			Mode:      "simulated",
			MinDiskMB: 100,
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     Duration{10 * time.Minute},
		},
		Alerting: AlertingConfig{
			SuppressionWindow: Duration{1 * time.Hour},
			StaleCutoff:       Duration{24 * time.Hour},
		},
	}
}

// expandEnvVars replaces ${VAR_NAME} placeholders in raw YAML with the
// corresponding environment variable values. Unset variables are replaced
// with an empty string, which will then fail validation with a clear error.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		key := string(match[2 : len(match)-1]) // strip ${ and }
		return []byte(os.Getenv(key))
	})
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FLEETWATCH_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("FLEETWATCH_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FLEETWATCH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLEETWATCH_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("FLEETWATCH_SAMPLER_MODE"); v != "" {
		cfg.Sampler.Mode = v
	}

	// A Redis address from the environment switches the backend over, the
	// same way a single instance is configured without a YAML file.
	if v := os.Getenv("FLEETWATCH_REDIS_ADDR"); v != "" {
		cfg.Cache.Backend = "redis"
		cfg.Cache.Redis.Addr = v
		cfg.Cache.Redis.Password = os.Getenv("FLEETWATCH_REDIS_PASSWORD")
		if db := os.Getenv("FLEETWATCH_REDIS_DB"); db != "" {
			if n, err := strconv.Atoi(db); err == nil {
				cfg.Cache.Redis.DB = n
			}
		}
	}

	if v := os.Getenv("FLEETWATCH_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = Duration{d}
		}
	}
	if v := os.Getenv("FLEETWATCH_SUPPRESSION_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Alerting.SuppressionWindow = Duration{d}
		}
	}
}
