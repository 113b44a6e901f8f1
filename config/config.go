// Package config loads process settings for cmd/libauthd from environment
// variables and maps them onto the component configurations.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/redis/go-redis/v9"

	"github.com/ansyfirmansyah/libauth"
	"github.com/ansyfirmansyah/libauth/mail"
	"github.com/ansyfirmansyah/libauth/sweeper"
)

const devSecret = "development-only-secret-change-me-now"

// Config holds every setting read from the environment.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	// Tokens
	JWTSecret       string        `env:"LIBAUTH_JWT_SECRET" envDefault:"development-only-secret-change-me-now"`
	JWTIssuer       string        `env:"LIBAUTH_JWT_ISSUER" envDefault:"libauth"`
	AccessTTL       time.Duration `env:"LIBAUTH_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL      time.Duration `env:"LIBAUTH_REFRESH_TTL" envDefault:"168h"`
	VerificationTTL time.Duration `env:"LIBAUTH_VERIFICATION_TTL" envDefault:"24h"`
	ResetTTL        time.Duration `env:"LIBAUTH_RESET_TTL" envDefault:"1h"`

	// Rate limits
	LoginMaxFailures    int           `env:"LIBAUTH_LOGIN_MAX_FAILURES" envDefault:"5"`
	LoginFailureWindow  time.Duration `env:"LIBAUTH_LOGIN_FAILURE_WINDOW" envDefault:"15m"`
	RegisterMaxPerIP    int           `env:"LIBAUTH_REGISTER_MAX_PER_IP" envDefault:"10"`
	CheckEmailDomain    bool          `env:"LIBAUTH_CHECK_EMAIL_DOMAIN" envDefault:"true"`
	RateLimitFailClosed bool          `env:"LIBAUTH_RATE_LIMIT_FAIL_CLOSED" envDefault:"false"`

	// PostgreSQL. Empty selects the in-memory store.
	DatabaseURL string `env:"DATABASE_URL"`

	// Redis
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// SMTP. Empty host logs mail instead of sending it.
	SMTPHost        string `env:"SMTP_HOST"`
	SMTPPort        int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername    string `env:"SMTP_USERNAME"`
	SMTPPassword    string `env:"SMTP_PASSWORD"`
	MailFrom        string `env:"MAIL_FROM" envDefault:"no-reply@library.local"`
	VerificationURL string `env:"MAIL_VERIFICATION_URL" envDefault:"http://localhost:8080/auth/verify"`
	ResetURL        string `env:"MAIL_RESET_URL" envDefault:"http://localhost:8080/auth/reset-password"`

	// Sweeper
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
	SweepTimeout  time.Duration `env:"SWEEP_TIMEOUT" envDefault:"1m"`

	// Audit fan-out. No brokers means no Kafka sink.
	KafkaBrokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaAuditTopic string   `env:"KAFKA_AUDIT_TOPIC" envDefault:"auth.audit"`
	AuditStdout     bool     `env:"AUDIT_STDOUT" envDefault:"false"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Environment != "development" {
		if cfg.JWTSecret == devSecret {
			return nil, fmt.Errorf("LIBAUTH_JWT_SECRET must be explicitly set via environment variable in %q mode", cfg.Environment)
		}
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required in %q mode", cfg.Environment)
		}
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("LIBAUTH_JWT_SECRET must be at least 32 characters long, got %d", len(cfg.JWTSecret))
	}
	if cfg.SMTPHost != "" && (cfg.SMTPPort < 1 || cfg.SMTPPort > 65535) {
		return nil, fmt.Errorf("invalid SMTP port: %d", cfg.SMTPPort)
	}

	return cfg, nil
}

// Engine maps the settings onto libauth.DefaultConfig.
func (c *Config) Engine() libauth.Config {
	out := libauth.DefaultConfig()
	out.JWT.Secret = []byte(c.JWTSecret)
	out.JWT.Issuer = c.JWTIssuer
	out.JWT.AccessTTL = c.AccessTTL
	out.Tokens.RefreshTTL = c.RefreshTTL
	out.Tokens.VerificationTTL = c.VerificationTTL
	out.Tokens.PasswordResetTTL = c.ResetTTL
	out.RateLimit.MaxLoginFailures = c.LoginMaxFailures
	out.RateLimit.LoginFailureWindow = c.LoginFailureWindow
	out.RateLimit.FailClosed = c.RateLimitFailClosed
	out.Register.MaxPerIPPerHour = c.RegisterMaxPerIP
	out.Register.CheckEmailDomain = c.CheckEmailDomain
	out.Audit.Enabled = c.AuditStdout || len(c.KafkaBrokers) > 0
	return out
}

// Redis returns client options for REDIS_*.
func (c *Config) Redis() *redis.Options {
	return &redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// Links returns the mail link settings.
func (c *Config) Links() mail.Links {
	return mail.Links{
		From:            c.MailFrom,
		VerificationURL: c.VerificationURL,
		ResetURL:        c.ResetURL,
	}
}

// SMTP returns the relay settings. It is only meaningful when SMTPHost is set.
func (c *Config) SMTP() mail.SMTPConfig {
	return mail.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUsername,
		Password: c.SMTPPassword,
		Links:    c.Links(),
	}
}

// Sweeper returns the sweep schedule.
func (c *Config) Sweeper() sweeper.Config {
	return sweeper.Config{
		Interval: c.SweepInterval,
		Timeout:  c.SweepTimeout,
	}
}

// Kafka returns the audit sink settings.
func (c *Config) Kafka() libauth.KafkaSinkConfig {
	return libauth.KafkaSinkConfig{
		Brokers: c.KafkaBrokers,
		Topic:   c.KafkaAuditTopic,
	}
}
