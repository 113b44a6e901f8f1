// Package sweeper periodically deletes expired and consumed tokens.
//
// Every delete is idempotent, so running a sweeper in each instance is safe.
// An optional Redis lock keeps concurrent instances from doing the same work.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ansyfirmansyah/libauth/domain"
)

const (
	DefaultInterval = time.Hour
	DefaultTimeout  = time.Minute
	DefaultLockKey  = "LOCK:TOKEN_SWEEPER"
)

// ErrRedisUnavailable wraps lock acquisition failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Config controls the sweep schedule. Zero values take the defaults;
// LockTTL defaults to Timeout.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
	LockKey  string
	LockTTL  time.Duration
}

// Result counts the rows removed by one run.
type Result struct {
	PasswordResetTokens int64
	VerificationTokens  int64
	RefreshTokens       int64
	// Skipped is set when another instance held the lock.
	Skipped bool
}

// Total is the number of rows removed.
func (r Result) Total() int64 {
	return r.PasswordResetTokens + r.VerificationTokens + r.RefreshTokens
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLock serializes runs across instances through a Redis key.
func WithLock(client redis.UniversalClient) Option {
	return func(s *Sweeper) { s.redis = client }
}

// WithClock overrides time.Now for the expiry cutoff.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// Sweeper runs RunOnce on a ticker between Start and Stop.
type Sweeper struct {
	purger domain.Purger
	cfg    Config
	logger *slog.Logger
	redis  redis.UniversalClient
	now    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Sweeper. A nil logger means slog.Default().
func New(purger domain.Purger, cfg Config, logger *slog.Logger, opts ...Option) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.LockKey == "" {
		cfg.LockKey = DefaultLockKey
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sweeper{
		purger: purger,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs a sweep immediately and then every Interval until Stop is
// called or ctx ends. Calling Start on a running Sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)
}

// Stop cancels the loop and waits for an in-flight sweep to return.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.runLogged(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) runLogged(ctx context.Context) {
	res, err := s.RunOnce(ctx)
	switch {
	case err != nil:
		s.logger.ErrorContext(ctx, "token sweep failed", slog.Any("error", err))
	case res.Skipped:
		s.logger.DebugContext(ctx, "token sweep skipped, lock held elsewhere")
	case res.Total() > 0:
		s.logger.InfoContext(ctx, "expired tokens purged",
			slog.Int64("password_reset_tokens", res.PasswordResetTokens),
			slog.Int64("verification_tokens", res.VerificationTokens),
			slog.Int64("refresh_tokens", res.RefreshTokens),
		)
	}
}

// RunOnce deletes password reset and verification tokens that are expired
// or used, and refresh tokens that are expired or revoked. A failing purge
// does not stop the others; their errors are joined.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if s.redis != nil {
		owner, ok, err := s.acquire(ctx)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{Skipped: true}, nil
		}
		defer s.release(owner)
	}

	now := s.now()
	var (
		res  Result
		errs []error
		err  error
	)
	if res.PasswordResetTokens, err = s.purger.PurgePasswordResetTokens(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("purge password reset tokens: %w", err))
	}
	if res.VerificationTokens, err = s.purger.PurgeVerificationTokens(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("purge verification tokens: %w", err))
	}
	if res.RefreshTokens, err = s.purger.PurgeRefreshTokens(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("purge refresh tokens: %w", err))
	}
	return res, errors.Join(errs...)
}

func (s *Sweeper) acquire(ctx context.Context) (string, bool, error) {
	owner := uuid.NewString()
	ok, err := s.redis.SetNX(ctx, s.cfg.LockKey, owner, s.cfg.LockTTL).Result()
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return owner, ok, nil
}

// release deletes the lock only if this run still owns it.
func (s *Sweeper) release(owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, s.redis, []string{s.cfg.LockKey}, owner).Err(); err != nil {
		s.logger.Warn("sweeper lock release failed", slog.Any("error", err))
	}
}
