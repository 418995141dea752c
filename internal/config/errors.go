package config

import (
	"errors"
	"fmt"
)

var (
	// ErrLoadConfig wraps failures reading a config source (YAML, .env, env).
	ErrLoadConfig = errors.New("load config failed")
	// ErrInvalidConfig marks every validation failure.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrInvalidDomain is a domain entry that cannot be judged: missing
	// id or name, a duplicate id, or weights that do not cover the criteria.
	ErrInvalidDomain = fmt.Errorf("%w: domain", ErrInvalidConfig)
	// ErrUnknownBackend is a driver or backend name this build cannot open.
	ErrUnknownBackend = fmt.Errorf("%w: unknown backend", ErrInvalidConfig)
)
