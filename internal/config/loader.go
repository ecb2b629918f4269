package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "FEEDRANK_"
	envConfigPath = "FEEDRANK_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if FEEDRANK_CONFIG is set
//  3. env (prefix FEEDRANK_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envConfigPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// FEEDRANK_QUEUE_SIZE -> queue_size; keys are flat so underscores survive.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and backend requirements.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.EventQueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	case c.MaxFeedLimit <= 0:
		return fmt.Errorf("%w: max_feed_limit must be positive", ErrInvalidConfig)
	case c.RescoreIntervalMS < 0:
		return fmt.Errorf("%w: rescore_interval_ms must not be negative", ErrInvalidConfig)
	}

	switch c.StorageBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn is required for the postgres backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage_backend %q", ErrInvalidConfig, c.StorageBackend)
	}

	switch c.CountersBackend() {
	case BackendMemory:
	case BackendPostgres:
		// counters are columns of the videos table
		if c.StorageBackend != BackendPostgres {
			return fmt.Errorf("%w: postgres counters need the postgres storage_backend", ErrInvalidConfig)
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%w: redis_url is required for the redis counter backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown counter_backend %q", ErrInvalidConfig, c.CounterBackend)
	}

	if c.RelevanceURL != "" && c.RelevanceTimeoutMS <= 0 {
		return fmt.Errorf("%w: relevance_timeout_ms must be positive", ErrInvalidConfig)
	}
	return nil
}
