package libauth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ansyfirmansyah/libauth/domain"
	internalaudit "github.com/ansyfirmansyah/libauth/internal/audit"
	"github.com/ansyfirmansyah/libauth/internal/rate"
	"github.com/ansyfirmansyah/libauth/jwt"
	"github.com/ansyfirmansyah/libauth/password"
	"github.com/ansyfirmansyah/libauth/session"
	"github.com/ansyfirmansyah/libauth/validation"
)

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  domain.Store

	mailer    Mailer
	validator Validator
	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New starts a Builder populated with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The JWT secret is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing sessions and rate limits.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets the relational store (store/postgres or store/memory).
func (b *Builder) WithStore(s domain.Store) *Builder {
	b.store = s
	return b
}

// WithMailer sets the mail collaborator.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithValidator replaces the default validation.Validator, for example to
// stub DNS in tests.
func (b *Builder) WithValidator(v Validator) *Builder {
	b.validator = v
	return b
}

// WithAuditSink sets the secondary sink fed by the async dispatcher. It only
// takes effect when Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger. Nil means slog.Default().
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides time.Now for every expiry computed by the Engine.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}
	v := b.validator
	if v == nil {
		v = validation.New()
	}

	// -------- TOKEN CODEC --------
	codec, err := jwt.NewCodec(jwt.Config{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
		Leeway: cfg.JWT.Leeway,
		Now:    now,
	})
	if err != nil {
		return nil, err
	}
	// The codec holds its own copy.
	cfg.JWT.Secret = nil

	// -------- PASSWORD HASHER --------
	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics(cfg.Metrics)

	// -------- AUDIT FAN-OUT --------
	dispatcher := internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop: func(internalaudit.Event) {
			metrics.Inc(MetricAuditDropped)
		},
	}, b.auditSink)

	b.built = true

	return &Engine{
		config:    cfg,
		store:     b.store,
		sessions:  session.NewStore(b.redis, now),
		limiter:   rate.New(b.redis, rate.Config{MaxFailures: cfg.RateLimit.MaxLoginFailures, Window: cfg.RateLimit.LoginFailureWindow}),
		codec:     codec,
		hasher:    hasher,
		validator: v,
		mailer:    b.mailer,
		audit:     dispatcher,
		metrics:   metrics,
		logger:    logger,
		now:       now,
	}, nil
}
