// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/fraudguard/fraudguard/internal/webhook"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL    string `env:"DATABASE_URL,required"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"true"`

	// Cache (Redis). Optional: the rate limiter runs in memory without it.
	RedisURL string `env:"REDIS_URL"`

	// Identity provider
	ClerkJWKSURL       string `env:"CLERK_JWKS_URL,required"`
	ClerkJWTIssuer     string `env:"CLERK_JWT_ISSUER,required"`
	ClerkWebhookSecret string `env:"CLERK_WEBHOOK_SECRET,required"`

	// Token verification
	JWKSFetchTimeout       time.Duration `env:"JWKS_FETCH_TIMEOUT" envDefault:"5s"`
	JWKSCacheTTL           time.Duration `env:"JWKS_CACHE_TTL" envDefault:"10m"`
	JWKSMinRefreshInterval time.Duration `env:"JWKS_MIN_REFRESH_INTERVAL" envDefault:"30s"`
	AuthClockSkew          time.Duration `env:"AUTH_CLOCK_SKEW" envDefault:"5s"`

	// Webhook idempotency ledger retention. Zero disables pruning.
	WebhookLedgerRetention     time.Duration `env:"WEBHOOK_LEDGER_RETENTION" envDefault:"720h"`
	WebhookLedgerPruneInterval time.Duration `env:"WEBHOOK_LEDGER_PRUNE_INTERVAL" envDefault:"24h"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting (per authenticated subject)
	RateLimitEnabled bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitPoints  int           `env:"RATE_LIMIT_POINTS" envDefault:"60"`
	RateLimitWindow  time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`
	RedisTimeout     time.Duration `env:"REDIS_TIMEOUT" envDefault:"250ms"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:5173"`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// HasRedis reports whether a shared Redis backend is configured.
func (c *Config) HasRedis() bool {
	return strings.TrimSpace(c.RedisURL) != ""
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Validate checks semantic constraints env tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	for name, value := range map[string]string{
		"DATABASE_URL":         c.DatabaseURL,
		"CLERK_JWKS_URL":       c.ClerkJWKSURL,
		"CLERK_JWT_ISSUER":     c.ClerkJWTIssuer,
		"CLERK_WEBHOOK_SECRET": c.ClerkWebhookSecret,
	} {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s must not be blank", name))
		}
	}

	if strings.TrimSpace(c.ClerkWebhookSecret) != "" {
		if err := webhook.ValidateSecret(c.ClerkWebhookSecret); err != nil {
			errs = append(errs, fmt.Errorf("CLERK_WEBHOOK_SECRET: %w", err))
		}
	}

	if c.RateLimitPoints <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_POINTS must be positive"))
	}
	if c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be positive"))
	}
	if c.WebhookLedgerRetention < 0 {
		errs = append(errs, errors.New("WEBHOOK_LEDGER_RETENTION must not be negative"))
	}

	return errors.Join(errs...)
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
