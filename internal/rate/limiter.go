package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultMaxFailures is the number of failures that blocks a key.
	DefaultMaxFailures = 5
	// DefaultWindow is how long a failure counter lives after its first hit.
	DefaultWindow = 15 * time.Minute
)

// Config holds limiter tuning parameters.
type Config struct {
	MaxFailures int
	Window      time.Duration
}

const incrementScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`

const acquireScript = `
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
if count >= tonumber(ARGV[2]) then
  return 0
end
count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return 1
`

var (
	incrementLua = redis.NewScript(incrementScript)
	acquireLua   = redis.NewScript(acquireScript)
)

// Limiter counts events per key in Redis.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter. Zero config fields take the defaults.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// LoginFailKey is the failure counter key for an email and client address.
func LoginFailKey(email, ip string) string {
	return "RATE_LIMIT:LOGIN_FAIL:" + strings.ToLower(strings.TrimSpace(email)) + ":" + ip
}

// ForgotPasswordKey is the request counter key for reset mails to email.
func ForgotPasswordKey(email string) string {
	return "RATE_LIMIT:FORGOT_PASSWORD:" + strings.ToLower(strings.TrimSpace(email))
}

// IsBlocked reports whether key has reached MaxFailures in its window.
// It never increments.
func (l *Limiter) IsBlocked(ctx context.Context, key string) (bool, error) {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count >= int64(l.config.MaxFailures), nil
}

// RecordFailure increments key and starts the window on the first hit.
func (l *Limiter) RecordFailure(ctx context.Context, key string) (int64, error) {
	count, err := incrementLua.Run(ctx, l.redis, []string{key}, l.config.Window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}

// Acquire consumes one unit of key's budget of max events per window. It
// returns false without consuming when the budget is spent.
func (l *Limiter) Acquire(ctx context.Context, key string, window time.Duration, max int) (bool, error) {
	if max <= 0 {
		return false, nil
	}
	ok, err := acquireLua.Run(ctx, l.redis, []string{key}, window.Milliseconds(), max).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ok == 1, nil
}

// Clear drops the counter for key.
func (l *Limiter) Clear(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the current counter for key. Missing keys count as zero.
func (l *Limiter) Attempts(ctx context.Context, key string) (int, error) {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}
