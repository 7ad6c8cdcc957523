package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	ServerPort string `env:"PORT" envDefault:"8080"`

	// Database selection: sqlite (default), postgres or mysql
	DatabaseType string `env:"DB_TYPE" envDefault:"sqlite"`
	DatabasePath string `env:"DB_PATH" envDefault:"./habitheroes.db"`
	DatabaseURL  string `env:"DATABASE_URL"`

	SessionDuration      time.Duration `env:"SESSION_DURATION" envDefault:"720h"`
	ChildSessionDuration time.Duration `env:"CHILD_SESSION_DURATION" envDefault:"24h"`
	SessionSecret        string        `env:"SESSION_SECRET" envDefault:"dev-session-secret-change-me"`
	CSRFSecret           string        `env:"CSRF_SECRET" envDefault:"dev-csrf-secret-change-me"`
	CSRFEnabled          bool          `env:"CSRF_ENABLED" envDefault:"true"`
	SecureCookies        bool          `env:"SECURE_COOKIES" envDefault:"false"`

	// Sign-in attempts allowed per client IP per window
	LoginRateLimit  int           `env:"LOGIN_RATE_LIMIT" envDefault:"10"`
	LoginRateWindow time.Duration `env:"LOGIN_RATE_WINDOW" envDefault:"1m"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`

	// Google sign-in for parents
	GoogleClientID       string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret   string `env:"GOOGLE_CLIENT_SECRET"`
	OAuthRedirectBaseURL string `env:"OAUTH_REDIRECT_BASE_URL"`
	FrontendURL          string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`

	// Amazon SES notifications, disabled when SESFromEmail is empty
	AWSRegion    string `env:"AWS_REGION" envDefault:"us-east-1"`
	SESFromEmail string `env:"SES_FROM_EMAIL"`
	SESFromName  string `env:"SES_FROM_NAME" envDefault:"Habit Heroes"`
	AppBaseURL   string `env:"APP_BASE_URL" envDefault:"http://localhost:5173"`
	EmailDebug   bool   `env:"EMAIL_DEBUG" envDefault:"false"`

	// Background jobs
	RecurringRewardInterval time.Duration `env:"RECURRING_REWARD_INTERVAL" envDefault:"1h"`
	AutoApprovalInterval    time.Duration `env:"AUTO_APPROVAL_INTERVAL" envDefault:"5m"`
	SessionCleanupInterval  time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`
	SyncEventRetention      time.Duration `env:"SYNC_EVENT_RETENTION" envDefault:"720h"`

	// Wall-clock zone for bedtime windows
	Timezone string `env:"FAMILY_TIMEZONE" envDefault:"UTC"`

	// Tracing is off unless an OTLP/HTTP endpoint is set
	OTelEndpoint    string `env:"HABITHEROES_OTEL_ENDPOINT"`
	OTelServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"habitheroes"`
}

// Load reads configuration from a .env file (when present) and environment
// variables with sensible defaults
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

// Location resolves Timezone, falling back to UTC when it is unknown
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
