// Package config reads service settings from the environment.
package config

import (
	"errors"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrParsingConfig is returned when environment variables cannot be parsed
// into Config.
var ErrParsingConfig = errors.New("failed to parse environment variables into config")

// Config holds settings shared by the server and the CLI.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	Port        int    `env:"PORT" envDefault:"8080"`

	// RedisURL enables the shared ruleset cache when set.
	RedisURL string `env:"REDIS_URL"`

	// RulesetCacheTTL of zero keeps cached ruleset lists until a mutation.
	RulesetCacheTTL time.Duration `env:"RULESET_CACHE_TTL" envDefault:"0s"`

	// RegexTimeout of zero disables the regex match timeout.
	RegexTimeout time.Duration `env:"REGEX_TIMEOUT" envDefault:"0s"`

	DefaultPolicy string `env:"DEFAULT_POLICY" envDefault:"errors == 0"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"INFO"`
}

var defaultEnvLoaded sync.Once

// Load parses the environment into a Config. A .env file in the working
// directory is read first if present; variables already set take
// precedence over it.
func Load() (Config, error) {
	defaultEnvLoaded.Do(func() {
		// the .env file is optional
		_ = godotenv.Load()
	})

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

// LoadEnv reads the named .env files into the process environment. Later
// files override earlier ones.
func LoadEnv(paths ...string) error {
	return godotenv.Overload(paths...)
}

// Validate reports settings that are required for the server.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("PORT must be between 1 and 65535")
	}
	if c.RulesetCacheTTL < 0 || c.RegexTimeout < 0 {
		return errors.New("durations cannot be negative")
	}
	return nil
}
