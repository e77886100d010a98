// Package config provides unified configuration loading for missionflow
// workers: defaults, a YAML file overlay and environment-variable
// overrides, in that precedence order.
//
// Usage:
//
//	cfg, err := config.Load("config.yaml")
//
// Environment overrides use the MISSIONFLOW_ prefix, e.g.
// MISSIONFLOW_REDIS_ADDR, MISSIONFLOW_QUEUE_WORKERS, MISSIONFLOW_LOG_LEVEL.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// envPrefix is prepended to every environment override key.
const envPrefix = "MISSIONFLOW_"

// Config is the complete worker configuration.
type Config struct {
	// Queue configures the job queue backend and worker pool.
	Queue QueueConfig `yaml:"queue"`

	// Redis configures the Redis backend when selected.
	Redis RedisConfig `yaml:"redis"`

	// Log configures the zap logger.
	Log LogConfig `yaml:"log"`
}

// QueueConfig configures the queue backend and the worker pool consuming
// it.
type QueueConfig struct {
	// Backend selects the queue implementation: "memory" or "redis".
	Backend string `yaml:"backend"`

	// Queues lists the queue names to consume, in priority order.
	Queues []string `yaml:"queues"`

	// Workers is the number of concurrent consumers.
	Workers int `yaml:"workers"`

	// MaxRetries bounds re-dispatch of failed jobs.
	MaxRetries int `yaml:"max_retries"`

	// InitialBackoff is the first retry delay.
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// BackoffMultiplier is the exponential backoff factor.
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
}

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

// LogConfig configures the logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "json" or "console".
	Format string `yaml:"format"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Queue: QueueConfig{
			Backend:           "memory",
			Queues:            []string{"statused"},
			Workers:           4,
			MaxRetries:        3,
			InitialBackoff:    1 * time.Second,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			DB:        0,
			PoolSize:  10,
			KeyPrefix: "missionflow:",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment overrides, in that precedence order. An empty path skips
// the file overlay.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays MISSIONFLOW_* environment variables onto the config.
func (c *Config) applyEnv() error {
	envString(&c.Queue.Backend, "QUEUE_BACKEND")
	if v, ok := lookup("QUEUE_QUEUES"); ok {
		c.Queue.Queues = splitList(v)
	}
	if err := envInt(&c.Queue.Workers, "QUEUE_WORKERS"); err != nil {
		return err
	}
	if err := envInt(&c.Queue.MaxRetries, "QUEUE_MAX_RETRIES"); err != nil {
		return err
	}
	envString(&c.Redis.Addr, "REDIS_ADDR")
	envString(&c.Redis.Password, "REDIS_PASSWORD")
	if err := envInt(&c.Redis.DB, "REDIS_DB"); err != nil {
		return err
	}
	envString(&c.Redis.KeyPrefix, "REDIS_KEY_PREFIX")
	envString(&c.Log.Level, "LOG_LEVEL")
	envString(&c.Log.Format, "LOG_FORMAT")
	return nil
}

func lookup(key string) (string, bool) {
	return os.LookupEnv(envPrefix + key)
}

func envString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func envInt(dst *int, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s%s: %w", envPrefix, key, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NewLogger builds a zap logger from the log configuration.
func (c LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", c.Level, err)
	}

	zcfg := zap.NewProductionConfig()
	if c.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
