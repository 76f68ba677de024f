// Package config defines the global configuration for the noticebox service.
// Configuration is loaded once at process start and immutable thereafter.
// Values come from the OS environment, optionally seeded by a .env file.
// Any missing required value or invalid format causes startup to fail fast.
package config

import (
	"time"

	"noticebox/internal/types"
)

// SecretString aliases the redacted secret type used in configuration to
// prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	Email    EmailConfig
	Notify   NotifyConfig
	Auth     AuthConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// EmailConfig holds mail transport configuration. Backend selects which mail
// backend the email handler opens ("ses", "sendgrid", "memory").
type EmailConfig struct {
	Backend      string       `envconfig:"MAIL_BACKEND" default:"memory" validate:"oneof=ses sendgrid memory"`
	FromAddress  string       `envconfig:"MAIL_FROM_ADDRESS" default:"notices@localhost" validate:"email"`
	FromName     string       `envconfig:"MAIL_FROM_NAME" default:"Noticebox"`
	FailSilently bool         `envconfig:"MAIL_FAIL_SILENTLY" default:"false"`
	SendGridKey  SecretString `envconfig:"SENDGRID_API_KEY"`
	SESConfigSet string       `envconfig:"SES_CONFIG_SET"`
	AWSRegion    string       `envconfig:"AWS_REGION" default:"us-east-1"`

	// BatchConcurrency bounds the parallel sends inside one batch for
	// backends without a native batch call.
	BatchConcurrency int `envconfig:"MAIL_BATCH_CONCURRENCY" default:"4" validate:"min=1,max=32"`
}

// NotifyConfig holds dispatch defaults.
type NotifyConfig struct {
	DefaultPreset string `envconfig:"NOTICE_DEFAULT_PRESET" default:"default"`

	// TemplateDir optionally points at an on-disk template tree that
	// overrides the embedded defaults.
	TemplateDir string `envconfig:"NOTICE_TEMPLATE_DIR"`
}

// AuthConfig holds the bearer-token table for the bundled authenticator.
// Entries map token -> "userID:email". Production deployments are expected
// to plug in their own Authenticator instead.
type AuthConfig struct {
	Tokens map[string]string `envconfig:"API_TOKENS"`
}

// MetricsConfig controls the dispatch metrics sink.
type MetricsConfig struct {
	Enabled   bool   `envconfig:"METRICS_ENABLED" default:"false"`
	Namespace string `envconfig:"METRIC_NAMESPACE" default:"Noticebox"`
}
