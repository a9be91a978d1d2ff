// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - The Config is assembled once at start-up and treated as read-only afterwards.
// - Components receive the values they need through their own options, never the Config itself.
// - External errors must be wrapped with this package's sentinel kinds.
package config

import (
	"time"
)

// Environments recognized by the service.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Rate-limit store backends.
const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
)

// Default ceilings per fixed window.
const (
	ProductionRateLimit  = 5
	DevelopmentRateLimit = 50
)

// DefaultAllowedOrigins lists the local dev hosts and the production domain variants.
var DefaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
	"https://skybrain.in",
	"https://www.skybrain.in",
	"https://skybrain.vercel.app",
	"https://skybrain-*.vercel.app",
}

// Config contains process configuration.
type Config struct {
	// Environment is development or production.
	Environment string `koanf:"environment"`

	// Addr configures the HTTP listen address, e.g. ":3001".
	Addr string `koanf:"addr"`

	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	SMTPHost     string        `koanf:"smtp_host"`
	SMTPPort     int           `koanf:"smtp_port"`
	SMTPUsername string        `koanf:"smtp_username"`
	SMTPPassword string        `koanf:"smtp_password"`
	SMTPFromName string        `koanf:"smtp_from_name"`
	SMTPTimeout  time.Duration `koanf:"smtp_timeout"`

	// AdminEmail receives admin notifications. Falls back to SMTPUsername.
	AdminEmail string `koanf:"admin_email"`

	// SheetsWebhookURL is the Apps Script endpoint; empty disables sheet logging.
	SheetsWebhookURL string        `koanf:"sheets_webhook_url"`
	WebhookTimeout   time.Duration `koanf:"webhook_timeout"`

	// FrontendURL is appended to AllowedOrigins when set.
	FrontendURL    string   `koanf:"frontend_url"`
	AllowedOrigins []string `koanf:"allowed_origins"`

	RateLimitWindow        time.Duration `koanf:"rate_limit_window"`
	RateLimitMax           int           `koanf:"rate_limit_max"`
	RateLimitSweepInterval time.Duration `koanf:"rate_limit_sweep_interval"`
	RateLimitStore         string        `koanf:"rate_limit_store"`

	MongoURI        string `koanf:"mongo_uri"`
	MongoDatabase   string `koanf:"mongo_database"`
	MongoCollection string `koanf:"mongo_collection"`

	// BackgroundConcurrency caps concurrently running fan-outs; 0 is unbounded.
	BackgroundConcurrency int `koanf:"background_concurrency"`

	// ShutdownTimeout bounds how long shutdown waits for in-flight fan-outs.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// New creates a Config populated with defaults. RateLimitMax and AllowedOrigins
// are left empty so Load can fill them once the environment is known.
func New() *Config {
	return &Config{
		Environment:            EnvDevelopment,
		Addr:                   ":3001",
		LogLevel:               "info",
		SMTPHost:               "smtp.gmail.com",
		SMTPPort:               465,
		SMTPFromName:           "SkyBrain",
		SMTPTimeout:            15 * time.Second,
		WebhookTimeout:         30 * time.Second,
		RateLimitWindow:        15 * time.Minute,
		RateLimitSweepInterval: 5 * time.Minute,
		RateLimitStore:         StoreMemory,
		MongoDatabase:          "formrelay",
		MongoCollection:        "rate_limits",
		ShutdownTimeout:        30 * time.Second,
	}
}

// IsProduction reports whether the production flag is set.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// Origins returns the effective CORS allow-list.
func (c *Config) Origins() []string {
	out := append([]string(nil), c.AllowedOrigins...)
	if c.FrontendURL != "" {
		out = append(out, c.FrontendURL)
	}
	return out
}
