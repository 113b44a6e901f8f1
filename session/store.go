package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every backend failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrExpiredSession is returned by Store.Store for an expiry at or before now.
var ErrExpiredSession = errors.New("session expiry is in the past")

const (
	keyPrefix   = "SESSION:"
	activeValue = "active"
	scanBatch   = 500
)

// Store persists session markers in Redis. It is safe for concurrent use.
type Store struct {
	redis redis.UniversalClient
	now   func() time.Time
}

// NewStore returns a Store on the given client. now may be nil.
func NewStore(redisClient redis.UniversalClient, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{redis: redisClient, now: now}
}

// Key returns the Redis key for one session.
func Key(userID, sessionID string) string {
	return keyPrefix + userID + ":" + sessionID
}

func userPattern(userID string) string {
	return keyPrefix + escapeGlob(userID) + ":*"
}

// Store marks the session active until expiresAt.
func (s *Store) Store(ctx context.Context, userID, sessionID string, expiresAt time.Time) error {
	if userID == "" || sessionID == "" {
		return errors.New("session: user id and session id are required")
	}
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return ErrExpiredSession
	}
	// Sub-millisecond remainders would round PX down to zero.
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	if err := s.redis.Set(ctx, Key(userID, sessionID), activeValue, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Exists reports whether the session is still active.
func (s *Store) Exists(ctx context.Context, userID, sessionID string) (bool, error) {
	if userID == "" || sessionID == "" {
		return false, nil
	}
	n, err := s.redis.Exists(ctx, Key(userID, sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// Invalidate removes one session. Removing an absent session is not an error.
func (s *Store) Invalidate(ctx context.Context, userID, sessionID string) error {
	if err := s.redis.Del(ctx, Key(userID, sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// InvalidateAll removes every session of userID and returns how many were
// deleted. Sessions created concurrently with the scan may survive.
func (s *Store) InvalidateAll(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, nil
	}

	deleted := 0
	err := s.scan(ctx, userID, func(keys []string) error {
		n, err := s.redis.Del(ctx, keys...).Result()
		if err != nil {
			return err
		}
		deleted += int(n)
		return nil
	})
	if err != nil {
		return deleted, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return deleted, nil
}

// Count returns the number of active sessions of userID.
func (s *Store) Count(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, nil
	}

	total := 0
	err := s.scan(ctx, userID, func(keys []string) error {
		total += len(keys)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return total, nil
}

// Ping measures a round trip to Redis.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) scan(ctx context.Context, userID string, fn func(keys []string) error) error {
	var cursor uint64
	pattern := userPattern(userID)
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
