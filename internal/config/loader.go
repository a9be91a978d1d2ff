package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variable names that steer loading itself.
const (
	envPrefix  = "FORMRELAY_"
	envFileVar = "FORMRELAY_CONFIG"
	dotEnvFile = ".env"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if FORMRELAY_CONFIG is set
//  3. env (prefix FORMRELAY_), including values from a local .env file
func Load(_ context.Context) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load(dotEnvFile)

	base := New()
	k := koanf.New(".")

	if path := os.Getenv(envFileVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: file %s: %v", ErrLoadConfig, path, err)
		}
	}

	// FORMRELAY_SMTP_USERNAME -> smtp_username (flat keys, underscores preserved).
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize fills values that depend on other values.
func (c *Config) normalize() {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	c.RateLimitStore = strings.ToLower(strings.TrimSpace(c.RateLimitStore))
	if c.RateLimitMax == 0 {
		if c.IsProduction() {
			c.RateLimitMax = ProductionRateLimit
		} else {
			c.RateLimitMax = DevelopmentRateLimit
		}
	}
	if strings.TrimSpace(c.AdminEmail) == "" {
		c.AdminEmail = c.SMTPUsername
	}
	origins := make([]string, 0, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = append(origins, DefaultAllowedOrigins...)
	}
	c.AllowedOrigins = origins
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Environment != EnvDevelopment && c.Environment != EnvProduction:
		return fmt.Errorf("%w: environment must be %q or %q, got %q", ErrInvalidConfig, EnvDevelopment, EnvProduction, c.Environment)
	case c.RateLimitWindow <= 0:
		return fmt.Errorf("%w: rate_limit_window must be positive", ErrInvalidConfig)
	case c.RateLimitMax < 1:
		return fmt.Errorf("%w: rate_limit_max must be at least 1", ErrInvalidConfig)
	case c.RateLimitStore != StoreMemory && c.RateLimitStore != StoreMongo:
		return fmt.Errorf("%w: unknown rate_limit_store %q", ErrInvalidConfig, c.RateLimitStore)
	case c.RateLimitStore == StoreMongo && c.MongoURI == "":
		return fmt.Errorf("%w: mongo_uri is required when rate_limit_store is mongo", ErrInvalidConfig)
	case c.BackgroundConcurrency < 0:
		return fmt.Errorf("%w: background_concurrency must not be negative", ErrInvalidConfig)
	}
	return nil
}
