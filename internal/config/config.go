// Package config defines service configuration and its loader.
package config

import (
	"runtime"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// EventQueueSize bounds the in-memory engagement event queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of event workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the event deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxFeedLimit caps the limit query parameter on feed endpoints.
	MaxFeedLimit int `koanf:"max_feed_limit"`

	// RescoreIntervalMS is the period of the full feed rescore pass. Zero disables it.
	RescoreIntervalMS int `koanf:"rescore_interval_ms"`

	// StorageBackend selects catalog and history storage: memory or postgres.
	StorageBackend string `koanf:"storage_backend"`
	PostgresDSN    string `koanf:"postgres_dsn"`

	// CounterBackend overrides where engagement counters live. Empty follows StorageBackend.
	CounterBackend string `koanf:"counter_backend"`
	RedisURL       string `koanf:"redis_url"`

	// RelevanceURL enables the external relevance scorer when set.
	RelevanceURL       string `koanf:"relevance_url"`
	RelevanceTimeoutMS int    `koanf:"relevance_timeout_ms"`

	// Engagement weights.
	ViewWeight    float64 `koanf:"view_weight"`
	LikeWeight    float64 `koanf:"like_weight"`
	DislikeWeight float64 `koanf:"dislike_weight"`
	BoostWeek     float64 `koanf:"boost_week"`
	BoostMonth    float64 `koanf:"boost_month"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		EventQueueSize:     100_000,
		WorkerCount:        runtime.NumCPU() * 4,
		DedupeSize:         500_000,
		MaxFeedLimit:       50,
		RescoreIntervalMS:  60_000,
		StorageBackend:     BackendMemory,
		RelevanceTimeoutMS: 800,
		ViewWeight:         1,
		LikeWeight:         5,
		DislikeWeight:      3,
		BoostWeek:          100,
		BoostMonth:         50,
	}
}

// CountersBackend resolves the effective counter backend.
func (c *Config) CountersBackend() string {
	if c.CounterBackend == "" {
		return c.StorageBackend
	}
	return c.CounterBackend
}
