package libauth

import (
	"errors"
	"time"
)

// Config holds every Engine tuning knob. Obtain a populated value from
// DefaultConfig and override fields; Build validates the result.
type Config struct {
	JWT       JWTConfig
	Session   SessionConfig
	Password  PasswordConfig
	RateLimit RateLimitConfig
	Register  RegisterConfig
	Tokens    TokensConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the access token codec. Secret must be at least 32
// bytes; it is copied at Build and never read from Config again.
type JWTConfig struct {
	Secret    []byte
	Issuer    string
	AccessTTL time.Duration
	Leeway    time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session liveness checks.
type SessionConfig struct {
	// LookupTimeout bounds the Redis round trip made by Authenticate.
	LookupTimeout time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id cost parameters.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig controls the login and forgot-password limits.
type RateLimitConfig struct {
	MaxLoginFailures     int
	LoginFailureWindow   time.Duration
	ForgotPasswordWindow time.Duration
	ForgotPasswordMax    int
	// FailClosed rejects requests with KindInfrastructure when Redis is
	// unreachable. By default the limiter fails open.
	FailClosed bool
}

/*
====================================
REGISTER CONFIG
====================================
*/

// RegisterConfig controls account creation.
type RegisterConfig struct {
	MaxPerIPPerHour int
	// CheckEmailDomain enables the MX / A lookup on the email domain.
	CheckEmailDomain bool
}

/*
====================================
TOKENS CONFIG
====================================
*/

// TokensConfig sets the lifetimes of the opaque single-use tokens.
type TokensConfig struct {
	VerificationTTL  time.Duration
	PasswordResetTTL time.Duration
	RefreshTTL       time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls audit persistence and the async fan-out.
type AuditConfig struct {
	// WriteTimeout bounds each audit row insert.
	WriteTimeout time.Duration
	// Enabled turns on the async dispatcher feeding the AuditSink.
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig enables the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults. JWT.Secret is left empty
// and must be set.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL: 15 * time.Minute,
		},
		Session: SessionConfig{
			LookupTimeout: 500 * time.Millisecond,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		RateLimit: RateLimitConfig{
			MaxLoginFailures:     5,
			LoginFailureWindow:   15 * time.Minute,
			ForgotPasswordWindow: time.Minute,
			ForgotPasswordMax:    5,
		},
		Register: RegisterConfig{
			MaxPerIPPerHour:  10,
			CheckEmailDomain: true,
		},
		Tokens: TokensConfig{
			VerificationTTL:  24 * time.Hour,
			PasswordResetTTL: time.Hour,
			RefreshTTL:       7 * 24 * time.Hour,
		},
		Audit: AuditConfig{
			WriteTimeout: 3 * time.Second,
			Enabled:      false,
			BufferSize:   1024,
			DropIfFull:   true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT Secret must be at least 32 bytes")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Session
	if c.Session.LookupTimeout <= 0 {
		return errors.New("Session LookupTimeout must be > 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Rate limits
	if c.RateLimit.MaxLoginFailures <= 0 {
		return errors.New("RateLimit MaxLoginFailures must be > 0")
	}
	if c.RateLimit.LoginFailureWindow <= 0 {
		return errors.New("RateLimit LoginFailureWindow must be > 0")
	}
	if c.RateLimit.ForgotPasswordWindow <= 0 || c.RateLimit.ForgotPasswordMax <= 0 {
		return errors.New("RateLimit ForgotPassword window and max must be > 0")
	}

	// Register
	if c.Register.MaxPerIPPerHour <= 0 {
		return errors.New("Register MaxPerIPPerHour must be > 0")
	}

	// Tokens
	if c.Tokens.VerificationTTL <= 0 {
		return errors.New("Tokens VerificationTTL must be > 0")
	}
	if c.Tokens.PasswordResetTTL <= 0 {
		return errors.New("Tokens PasswordResetTTL must be > 0")
	}
	if c.Tokens.RefreshTTL <= 0 {
		return errors.New("Tokens RefreshTTL must be > 0")
	}
	if c.Tokens.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("Tokens RefreshTTL must be >= JWT AccessTTL")
	}

	// Audit
	if c.Audit.WriteTimeout <= 0 {
		return errors.New("Audit WriteTimeout must be > 0")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
