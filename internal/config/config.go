// Package config defines the global configuration for the CVForge service.
// Configuration is loaded once at process start and is immutable
// thereafter, following 12-Factor principles: values come from the OS
// environment, with a local .env file as a development convenience.
// Any missing required value or invalid format fails startup immediately.
package config

import (
	"time"

	"cvforge/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret
// type used throughout configuration to prevent accidental logging of
// sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. It is populated once
// during process initialization and never modified. Sub-components
// receive only the specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"cvforge-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Payment  PaymentConfig
	AI       AIConfig
	Renderer RendererConfig
	Email    EmailConfig
	Auth     AuthConfig
	Security SecurityConfig
	Storage  StorageConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URLs for payment redirects (no trailing slash).
	APIExternalURL string `envconfig:"API_EXTERNAL_URL" default:"http://localhost:8080" validate:"url"`
	AppURL         string `envconfig:"APP_URL" default:"http://localhost:3000" validate:"url"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	RunMigrations   bool          `envconfig:"DB_RUN_MIGRATIONS" default:"true"`
}

// RedisConfig holds the rate-limit store connection settings.
type RedisConfig struct {
	Addr     string       `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password SecretString `envconfig:"REDIS_PASSWORD"`
	DB       int          `envconfig:"REDIS_DB" default:"0"`
}

// PaymentConfig holds payment gateway credentials.
type PaymentConfig struct {
	SecretKey     SecretString `envconfig:"PAYMENT_SECRET_KEY" validate:"required"`
	WebhookSecret SecretString `envconfig:"PAYMENT_WEBHOOK_SECRET" validate:"required"`
	Currency      string       `envconfig:"PAYMENT_CURRENCY" default:"usd"`
	// Base URL override for tests; empty means the provider default.
	BaseURL string `envconfig:"PAYMENT_BASE_URL"`
}

// AIConfig holds the AI text service credentials and tuning.
type AIConfig struct {
	APIKey  SecretString  `envconfig:"AI_API_KEY" validate:"required"`
	BaseURL string        `envconfig:"AI_BASE_URL" default:"https://api.openai.com"`
	Model   string        `envconfig:"AI_MODEL" default:"gpt-4o-mini"`
	Timeout time.Duration `envconfig:"AI_TIMEOUT" default:"60s"`
}

// RendererConfig holds the PDF render service endpoint.
type RendererConfig struct {
	BaseURL string        `envconfig:"RENDERER_URL" default:"http://localhost:9090"`
	Timeout time.Duration `envconfig:"RENDERER_TIMEOUT" default:"30s"`
}

// EmailConfig holds SMTP settings for receipts and confirmations.
type EmailConfig struct {
	Enabled     bool         `envconfig:"EMAIL_ENABLED" default:"false"`
	SMTPHost    string       `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort    int          `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser    string       `envconfig:"SMTP_USER"`
	SMTPPass    SecretString `envconfig:"SMTP_PASSWORD"`
	FromAddress string       `envconfig:"EMAIL_FROM_ADDRESS" default:"billing@cvforge.app"`
	FromName    string       `envconfig:"EMAIL_FROM_NAME" default:"CVForge Billing"`
}

// AuthConfig holds session management settings.
type AuthConfig struct {
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"720h"`
}

// SecurityConfig holds the admin override key and rate limiting knobs.
type SecurityConfig struct {
	AdminAPIKey        SecretString  `envconfig:"ADMIN_API_KEY" validate:"required,min=32"`
	RateLimitPerMin    int           `envconfig:"RATE_LIMIT_PER_MIN" default:"120"`
	RateLimitWindow    time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitEnabled   bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	CORSAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// StorageConfig holds the generated-document store location.
type StorageConfig struct {
	DocumentDir string `envconfig:"DOCUMENT_DIR" default:"./data/documents"`
}
