// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Nested sections map to dotted koanf keys, e.g. judge.model.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"context"
	"time"
)

// Backends selectable for the datastore, the task queue and the limiter store.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// WorkDir holds one rendering folder per submission.
	WorkDir string `koanf:"work_dir"`

	// ShutdownTimeout bounds graceful shutdown of the HTTP server and worker pools.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// DedupeSize bounds the number of pending rank coalescing keys.
	DedupeSize int `koanf:"dedupe_size"`

	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Queue    QueueConfig    `koanf:"queue"`
	Workers  WorkersConfig  `koanf:"workers"`
	Retry    RetryConfig    `koanf:"retry"`
	Limiter  LimiterConfig  `koanf:"limiter"`
	Judge    JudgeConfig    `koanf:"judge"`
	Render   RenderConfig   `koanf:"render"`
	Storage  StorageConfig  `koanf:"storage"`

	// Domains are upserted at startup. Empty means DefaultDomains.
	Domains []DomainConfig `koanf:"domains"`
}

// DatabaseConfig selects the datastore.
type DatabaseConfig struct {
	// Driver is memory or postgres.
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
	// AutoMigrate creates missing tables when the service starts.
	AutoMigrate bool `koanf:"auto_migrate"`
}

// RedisConfig is shared by the redis queue and the redis limiter store.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// QueueConfig selects the task queue.
type QueueConfig struct {
	// Backend is memory or redis.
	Backend string `koanf:"backend"`
	// Capacity bounds each in-memory stage queue.
	Capacity int `koanf:"capacity"`
	// PollInterval is how often the redis queue looks for due tasks.
	PollInterval time.Duration `koanf:"poll_interval"`
	// Lease is how long a claimed redis task stays invisible before redelivery.
	Lease time.Duration `koanf:"lease"`
}

// WorkersConfig sets the pool size per stage. Zero picks a CPU-based default.
type WorkersConfig struct {
	Ingest   int `koanf:"ingest"`
	Evaluate int `koanf:"evaluate"`
	Score    int `koanf:"score"`
	Rank     int `koanf:"rank"`
}

// PolicyConfig is one stage's retry budget.
type PolicyConfig struct {
	MaxRetries int           `koanf:"max_retries"`
	BaseDelay  time.Duration `koanf:"base_delay"`
}

// RetryConfig holds the retry budget of every stage.
type RetryConfig struct {
	Ingest   PolicyConfig `koanf:"ingest"`
	Evaluate PolicyConfig `koanf:"evaluate"`
	Score    PolicyConfig `koanf:"score"`
	Rank     PolicyConfig `koanf:"rank"`
}

// LimiterConfig configures admission to the judge.
type LimiterConfig struct {
	// Backend is memory or redis.
	Backend string        `koanf:"backend"`
	Key     string        `koanf:"key"`
	Limit   int           `koanf:"limit"`
	Window  time.Duration `koanf:"window"`
	// Tiered adds hour and day windows on top of the minute window.
	Tiered bool `koanf:"tiered"`
}

// JudgeConfig configures the Gemini client.
type JudgeConfig struct {
	Endpoint        string        `koanf:"endpoint"`
	APIKey          string        `koanf:"api_key"`
	Model           string        `koanf:"model"`
	Timeout         time.Duration `koanf:"timeout"`
	Temperature     float64       `koanf:"temperature"`
	MaxOutputTokens int           `koanf:"max_output_tokens"`
}

// RenderConfig configures pdftoppm.
type RenderConfig struct {
	Binary   string `koanf:"binary"`
	DPI      int    `koanf:"dpi"`
	MaxWidth int    `koanf:"max_width"`
}

// StorageConfig points at the S3-compatible store for s3:// documents.
// An empty endpoint disables it.
type StorageConfig struct {
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Region    string `koanf:"region"`
	UseSSL    bool   `koanf:"use_ssl"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:        "info",
		Addr:            ":9080",
		WorkDir:         "data/slides",
		ShutdownTimeout: 30 * time.Second,
		DedupeSize:      100_000,
		Database: DatabaseConfig{
			Driver:      BackendMemory,
			AutoMigrate: true,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Queue: QueueConfig{
			Backend:      BackendMemory,
			Capacity:     10_000,
			PollInterval: 500 * time.Millisecond,
			Lease:        15 * time.Minute,
		},
		Workers: WorkersConfig{
			Ingest:   2,
			Evaluate: 4,
			Score:    2,
			Rank:     1,
		},
		Retry: RetryConfig{
			Ingest:   PolicyConfig{MaxRetries: 3, BaseDelay: 60 * time.Second},
			Evaluate: PolicyConfig{MaxRetries: 5, BaseDelay: 120 * time.Second},
			Score:    PolicyConfig{MaxRetries: 3, BaseDelay: 30 * time.Second},
			Rank:     PolicyConfig{MaxRetries: 3, BaseDelay: 60 * time.Second},
		},
		Limiter: LimiterConfig{
			Backend: BackendMemory,
			Key:     "gemini_api",
			Limit:   10,
			Window:  time.Minute,
		},
		Judge: JudgeConfig{
			Endpoint:        "https://generativelanguage.googleapis.com/v1beta",
			Model:           "gemini-2.5-flash",
			Timeout:         5 * time.Minute,
			Temperature:     0.2,
			MaxOutputTokens: 8192,
		},
		Render: RenderConfig{
			Binary:   "pdftoppm",
			DPI:      300,
			MaxWidth: 1920,
		},
	}
}
