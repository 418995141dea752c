package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix = "PITCHJUDGE_"
	// EnvConfigFile names the variable holding the optional YAML config path.
	EnvConfigFile = envPrefix + "CONFIG"
	// envDotenv names the optional .env file; defaults to ".env".
	envDotenv = envPrefix + "DOTENV"
	// envGoogleKey is honoured when judge.api_key is not set.
	envGoogleKey = "GOOGLE_AI_API_KEY"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if PITCHJUDGE_CONFIG is set
//  3. .env file, when present, merged into the process environment
//  4. env (prefix PITCHJUDGE_, "__" separates sections)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	dotenv := os.Getenv(envDotenv)
	if dotenv == "" {
		dotenv = ".env"
	}
	// Existing environment variables win over the file.
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, dotenv, err)
	}

	// PITCHJUDGE_JUDGE__API_KEY -> judge.api_key, PITCHJUDGE_ADDR -> addr.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if cfg.Judge.APIKey == "" {
		cfg.Judge.APIKey = os.Getenv(envGoogleKey)
	}
	if len(cfg.Domains) == 0 {
		cfg.Domains = DefaultDomains()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
