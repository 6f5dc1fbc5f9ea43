package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Sync     SyncConfig     `yaml:"sync"`
	Worker   WorkerConfig   `yaml:"worker"`
	Log      LogConfig      `yaml:"log"`
	Auth     AuthConfig     `yaml:"auth"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig contains cache service settings. When Enabled is false the
// service runs with an in-process cache; sync correctness never depends on
// Redis being reachable.
type RedisConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Addr       string   `yaml:"addr"`
	DefaultTTL Duration `yaml:"default_ttl"`
	OpTimeout  Duration `yaml:"op_timeout"`
}

// SyncConfig contains sync engine settings.
type SyncConfig struct {
	MaxPushChanges int      `yaml:"max_push_changes"`
	IdempotencyTTL Duration `yaml:"idempotency_ttl"`
	PullCacheTTL   Duration `yaml:"pull_cache_ttl"`
}

// WorkerConfig contains background worker settings.
type WorkerConfig struct {
	VerifyInterval     Duration `yaml:"verify_interval"`
	RetentionInterval  Duration `yaml:"retention_interval"`
	TombstoneRetention Duration `yaml:"tombstone_retention"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults, then YAML file, then env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("NUTRISYNC_CONFIG_PATH", "config/nutrisync.yaml")

	// Load YAML file if it exists (missing file is not an error)
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/nutrisync.db",
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DefaultTTL: Duration(time.Hour),
			OpTimeout:  Duration(time.Second),
		},
		Sync: SyncConfig{
			MaxPushChanges: 1000,
			IdempotencyTTL: Duration(24 * time.Hour),
			PullCacheTTL:   Duration(5 * time.Minute),
		},
		Worker: WorkerConfig{
			VerifyInterval:     Duration(24 * time.Hour),
			RetentionInterval:  Duration(time.Hour),
			TombstoneRetention: Duration(30 * 24 * time.Hour),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("NUTRISYNC_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("NUTRISYNC_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = Duration(d)
		}
	}
	if v := os.Getenv("NUTRISYNC_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = Duration(d)
		}
	}
	if v := os.Getenv("NUTRISYNC_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}

	// Database
	if v := os.Getenv("NUTRISYNC_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Redis
	if v := os.Getenv("NUTRISYNC_REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("NUTRISYNC_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("NUTRISYNC_CACHE_DEFAULT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Redis.DefaultTTL = Duration(d)
		}
	}
	if v := os.Getenv("NUTRISYNC_CACHE_OP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Redis.OpTimeout = Duration(d)
		}
	}

	// Sync
	if v := os.Getenv("NUTRISYNC_MAX_PUSH_CHANGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.MaxPushChanges = n
		}
	}
	if v := os.Getenv("NUTRISYNC_IDEMPOTENCY_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.IdempotencyTTL = Duration(d)
		}
	}
	if v := os.Getenv("NUTRISYNC_PULL_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.PullCacheTTL = Duration(d)
		}
	}

	// Worker
	if v := os.Getenv("NUTRISYNC_VERIFY_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.VerifyInterval = Duration(d)
		}
	}
	if v := os.Getenv("NUTRISYNC_RETENTION_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.RetentionInterval = Duration(d)
		}
	}
	if v := os.Getenv("NUTRISYNC_TOMBSTONE_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.TombstoneRetention = Duration(d)
		}
	}

	// Log
	if v := os.Getenv("NUTRISYNC_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("NUTRISYNC_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	// Auth
	if v := os.Getenv("NUTRISYNC_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
}

// validate checks that required configuration values are set.
// In dev mode (NUTRISYNC_DEV_MODE=true), API key validation is skipped.
func (c *Config) validate() error {
	if c.Sync.MaxPushChanges < 1 {
		return errors.New("sync.max_push_changes must be >= 1")
	}
	if time.Duration(c.Worker.TombstoneRetention) < time.Duration(c.Sync.IdempotencyTTL) {
		return errors.New("worker.tombstone_retention must not be shorter than sync.idempotency_ttl")
	}

	// Dev mode bypasses API key validation
	if os.Getenv("NUTRISYNC_DEV_MODE") == "true" {
		return nil
	}

	if c.Auth.APIKey == "" {
		return errors.New("NUTRISYNC_API_KEY is required")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
