package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/axmq/launchgate/pkg/logger"
)

// Store backends
const (
	BackendMemory = "memory"
	BackendPebble = "pebble"
	BackendRedis  = "redis"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the launchgate configuration. Values come from defaults, then
// the YAML file, then LAUNCHGATE_* environment variables.
type Config struct {
	DataDir      string        `yaml:"data_dir" env:"LAUNCHGATE_DATA_DIR"`
	LogLevel     string        `yaml:"log_level" env:"LAUNCHGATE_LOG_LEVEL"`
	NoColor      bool          `yaml:"no_color" env:"LAUNCHGATE_NO_COLOR"`
	ReadyTimeout time.Duration `yaml:"ready_timeout" env:"LAUNCHGATE_READY_TIMEOUT"` // 0 waits forever

	Store   StoreConfig   `yaml:"store" envPrefix:"LAUNCHGATE_STORE_"`
	Push    PushConfig    `yaml:"push" envPrefix:"LAUNCHGATE_PUSH_"`
	Sync    SyncConfig    `yaml:"sync" envPrefix:"LAUNCHGATE_SYNC_"`
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"LAUNCHGATE_METRICS_"`
}

// StoreConfig selects where credentials and account data live
type StoreConfig struct {
	Backend       string `yaml:"backend" env:"BACKEND"`
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB"`
	RedisPrefix   string `yaml:"redis_prefix" env:"REDIS_PREFIX"`
}

// PushConfig configures the http pusher registered for every session
type PushConfig struct {
	Enabled           bool   `yaml:"enabled" env:"ENABLED"`
	AppID             string `yaml:"app_id" env:"APP_ID"`
	AppDisplayName    string `yaml:"app_display_name" env:"APP_DISPLAY_NAME"`
	DeviceDisplayName string `yaml:"device_display_name" env:"DEVICE_DISPLAY_NAME"`
	GatewayURL        string `yaml:"gateway_url" env:"GATEWAY_URL"`
	PushKey           string `yaml:"pushkey" env:"PUSHKEY"`
	Lang              string `yaml:"lang" env:"LANG"`
}

// SyncConfig configures the initial sync
type SyncConfig struct {
	Filter           string        `yaml:"filter" env:"FILTER"`
	RetryInterval    time.Duration `yaml:"retry_interval" env:"RETRY_INTERVAL"`
	MaxRetryInterval time.Duration `yaml:"max_retry_interval" env:"MAX_RETRY_INTERVAL"`
	MaxRetries       int           `yaml:"max_retries" env:"MAX_RETRIES"` // 0 retries until the ready timeout
	Concurrency      int           `yaml:"concurrency" env:"CONCURRENCY"`
}

// MetricsConfig enables the prometheus endpoint when Addr is set
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		DataDir:  defaultDataDir(),
		LogLevel: "info",
		Store: StoreConfig{
			Backend:     BackendPebble,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "launchgate:",
		},
		Push: PushConfig{
			AppID:             "im.vector.app.launchgate",
			AppDisplayName:    "launchgate",
			DeviceDisplayName: hostname(),
			Lang:              "en",
		},
		Sync: SyncConfig{
			RetryInterval:    5 * time.Second,
			MaxRetryInterval: time.Minute,
			Concurrency:      4,
		},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "launchgate")
	}
	return ".launchgate"
}

func hostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "launchgate"
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. An empty path or a missing file leaves the defaults in place.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.ReadyTimeout < 0 {
		return fmt.Errorf("%w: ready_timeout must not be negative", ErrInvalidConfig)
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendPebble:
		if c.DataDir == "" {
			return fmt.Errorf("%w: data_dir is required for the pebble backend", ErrInvalidConfig)
		}
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("%w: store.redis_addr is required for the redis backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.Store.Backend)
	}

	if c.Push.Enabled {
		if c.Push.AppID == "" {
			return fmt.Errorf("%w: push.app_id is required", ErrInvalidConfig)
		}
		if c.Push.PushKey == "" {
			return fmt.Errorf("%w: push.pushkey is required", ErrInvalidConfig)
		}
		u, err := url.Parse(c.Push.GatewayURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: push.gateway_url must be an absolute url", ErrInvalidConfig)
		}
	}

	if c.Sync.RetryInterval <= 0 {
		return fmt.Errorf("%w: sync.retry_interval must be positive", ErrInvalidConfig)
	}
	if c.Sync.MaxRetryInterval < c.Sync.RetryInterval {
		return fmt.Errorf("%w: sync.max_retry_interval must not be below sync.retry_interval", ErrInvalidConfig)
	}
	if c.Sync.MaxRetries < 0 {
		return fmt.Errorf("%w: sync.max_retries must not be negative", ErrInvalidConfig)
	}
	if c.Sync.Concurrency <= 0 {
		return fmt.Errorf("%w: sync.concurrency must be positive", ErrInvalidConfig)
	}
	return nil
}

// PebblePath is the directory of the pebble database
func (c *Config) PebblePath() string {
	return filepath.Join(c.DataDir, "db")
}
