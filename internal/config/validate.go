package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for values the service cannot run with.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	wrap := func(kind error, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{kind}, args...)...))
	}
	add := func(format string, args ...any) { wrap(ErrInvalidConfig, format, args...) }

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log_level %q", c.LogLevel)
	}
	if c.Addr == "" {
		add("addr must not be empty")
	}
	if c.WorkDir == "" {
		add("work_dir must not be empty")
	}
	if c.ShutdownTimeout <= 0 {
		add("shutdown_timeout must be positive")
	}

	switch c.Database.Driver {
	case BackendMemory:
	case BackendPostgres:
		if c.Database.DSN == "" {
			add("database.dsn is required for postgres")
		}
	default:
		wrap(ErrUnknownBackend, "database.driver %q", c.Database.Driver)
	}

	needRedis := false
	switch c.Queue.Backend {
	case BackendMemory:
		if c.Queue.Capacity <= 0 {
			add("queue.capacity must be positive")
		}
	case BackendRedis:
		needRedis = true
		if c.Queue.PollInterval <= 0 || c.Queue.Lease <= 0 {
			add("queue.poll_interval and queue.lease must be positive")
		}
	default:
		wrap(ErrUnknownBackend, "queue.backend %q", c.Queue.Backend)
	}
	switch c.Limiter.Backend {
	case BackendMemory:
	case BackendRedis:
		needRedis = true
	default:
		wrap(ErrUnknownBackend, "limiter.backend %q", c.Limiter.Backend)
	}
	if needRedis && c.Redis.Addr == "" {
		add("redis.addr is required for the redis backend")
	}

	for name, n := range map[string]int{
		"ingest": c.Workers.Ingest, "evaluate": c.Workers.Evaluate,
		"score": c.Workers.Score, "rank": c.Workers.Rank,
	} {
		if n < 0 {
			add("workers.%s must not be negative", name)
		}
	}
	for name, p := range map[string]PolicyConfig{
		"ingest": c.Retry.Ingest, "evaluate": c.Retry.Evaluate,
		"score": c.Retry.Score, "rank": c.Retry.Rank,
	} {
		if p.MaxRetries < 0 || p.BaseDelay <= 0 {
			add("retry.%s needs max_retries >= 0 and a positive base_delay", name)
		}
	}

	if c.Limiter.Key == "" || c.Limiter.Limit <= 0 || c.Limiter.Window <= 0 {
		add("limiter needs a key and a positive limit and window")
	}
	if c.Judge.Timeout <= 0 {
		add("judge.timeout must be positive")
	}
	if c.Render.DPI <= 0 || c.Render.MaxWidth <= 0 {
		add("render.dpi and render.max_width must be positive")
	}

	seen := make(map[string]bool, len(c.Domains))
	for _, d := range c.Domains {
		if d.ID == "" || d.Name == "" {
			wrap(ErrInvalidDomain, "needs an id and a name")
			continue
		}
		if seen[d.ID] {
			wrap(ErrInvalidDomain, "duplicate id %q", d.ID)
		}
		seen[d.ID] = true
		if err := d.Model().ValidateWeights(); err != nil {
			errs = append(errs, fmt.Errorf("%w %s: %w", ErrInvalidDomain, d.ID, err))
		}
	}

	return errors.Join(errs...)
}
