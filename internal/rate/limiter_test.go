package rate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiterTest(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return New(rdb, Config{}), mr
}

func TestBlocksAfterFiveFailures(t *testing.T) {
	l, _ := newLimiterTest(t)
	ctx := context.Background()
	key := LoginFailKey("A@X.com", "10.0.0.1")

	for i := 1; i <= 5; i++ {
		blocked, err := l.IsBlocked(ctx, key)
		if err != nil || blocked {
			t.Fatalf("attempt %d: blocked=%v err=%v", i, blocked, err)
		}
		if _, err := l.RecordFailure(ctx, key); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}

	blocked, err := l.IsBlocked(ctx, key)
	if err != nil || !blocked {
		t.Fatalf("expected key to be blocked, blocked=%v err=%v", blocked, err)
	}
}

func TestWindowStartsAtFirstFailure(t *testing.T) {
	l, mr := newLimiterTest(t)
	ctx := context.Background()
	key := LoginFailKey("a@x.com", "10.0.0.1")

	if _, err := l.RecordFailure(ctx, key); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	mr.FastForward(10 * time.Minute)
	if _, err := l.RecordFailure(ctx, key); err != nil {
		t.Fatalf("record failure: %v", err)
	}

	// The second hit must not extend the window.
	if ttl := mr.TTL(key); ttl > 5*time.Minute {
		t.Fatalf("window was extended, ttl=%v", ttl)
	}

	mr.FastForward(6 * time.Minute)
	if n, _ := l.Attempts(ctx, key); n != 0 {
		t.Fatalf("expected counter to expire, got %d", n)
	}
}

func TestClearResetsCounter(t *testing.T) {
	l, _ := newLimiterTest(t)
	ctx := context.Background()
	key := LoginFailKey("a@x.com", "10.0.0.1")

	for i := 0; i < 5; i++ {
		if _, err := l.RecordFailure(ctx, key); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}
	if err := l.Clear(ctx, key); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if blocked, _ := l.IsBlocked(ctx, key); blocked {
		t.Fatal("expected key to be unblocked after clear")
	}
}

func TestKeysAreCaseInsensitiveOnEmail(t *testing.T) {
	if LoginFailKey(" A@X.com", "ip") != LoginFailKey("a@x.COM", "ip") {
		t.Fatal("login key should normalize email")
	}
	if ForgotPasswordKey("A@X.com") != "RATE_LIMIT:FORGOT_PASSWORD:a@x.com" {
		t.Fatalf("unexpected forgot password key %q", ForgotPasswordKey("A@X.com"))
	}
}

func TestAcquireStopsAtBudget(t *testing.T) {
	l, mr := newLimiterTest(t)
	ctx := context.Background()
	key := ForgotPasswordKey("a@x.com")

	for i := 1; i <= 5; i++ {
		ok, err := l.Acquire(ctx, key, time.Minute, 5)
		if err != nil || !ok {
			t.Fatalf("acquire %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := l.Acquire(ctx, key, time.Minute, 5)
	if err != nil || ok {
		t.Fatalf("expected 6th acquire to be denied, ok=%v err=%v", ok, err)
	}
	if n, _ := l.Attempts(ctx, key); n != 5 {
		t.Fatalf("denied acquire must not increment, counter=%d", n)
	}

	mr.FastForward(61 * time.Second)
	ok, err = l.Acquire(ctx, key, time.Minute, 5)
	if err != nil || !ok {
		t.Fatalf("expected acquire after window, ok=%v err=%v", ok, err)
	}
}

func TestAcquireConcurrentNeverExceedsBudget(t *testing.T) {
	l, _ := newLimiterTest(t)
	ctx := context.Background()
	key := ForgotPasswordKey("race@x.com")

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := l.Acquire(ctx, key, time.Minute, 5); err == nil && ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	if granted.Load() != 5 {
		t.Fatalf("expected exactly 5 grants, got %d", granted.Load())
	}
}

func TestBackendFailureWrapsErrRedisUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	l := New(rdb, Config{})
	mr.Close()

	if _, err := l.IsBlocked(context.Background(), "k"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if _, err := l.RecordFailure(context.Background(), "k"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
