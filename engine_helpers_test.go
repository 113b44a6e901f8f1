package libauth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ansyfirmansyah/libauth/domain"
	"github.com/ansyfirmansyah/libauth/store/memory"
	"github.com/ansyfirmansyah/libauth/validation"
)

const testPassword = "Password1"

type fakeMailer struct {
	mu           sync.Mutex
	verification map[string][]string
	reset        map[string][]string
	err          error
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{
		verification: map[string][]string{},
		reset:        map[string][]string{},
	}
}

func (m *fakeMailer) SendVerificationEmail(_ context.Context, to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.verification[to] = append(m.verification[to], token)
	return nil
}

func (m *fakeMailer) SendPasswordResetEmail(_ context.Context, to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.reset[to] = append(m.reset[to], token)
	return nil
}

func (m *fakeMailer) lastVerification(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	tokens := m.verification[to]
	if len(tokens) == 0 {
		return ""
	}
	return tokens[len(tokens)-1]
}

func (m *fakeMailer) lastReset(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	tokens := m.reset[to]
	if len(tokens) == 0 {
		return ""
	}
	return tokens[len(tokens)-1]
}

func (m *fakeMailer) resetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, tokens := range m.reset {
		n += len(tokens)
	}
	return n
}

// mxResolver answers every domain except "nowhere.invalid" with one MX.
type mxResolver struct{}

func (mxResolver) LookupMX(_ context.Context, name string) ([]*net.MX, error) {
	if name == "nowhere.invalid" {
		return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
	}
	return []*net.MX{{Host: "mx." + name + ".", Pref: 10}}, nil
}

func (mxResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEngine struct {
	*Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	store  *memory.Store
	mailer *fakeMailer
	clock  *testClock
}

func cheapTestConfig() Config {
	cfg := validTestConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newTestEngine(t *testing.T, mutate ...func(*Config)) *testEngine {
	t.Helper()
	return newWrappedTestEngine(t, nil, mutate...)
}

// newWrappedTestEngine hands the engine wrap(te.store) when wrap is set.
func newWrappedTestEngine(t *testing.T, wrap func(*memory.Store) domain.Store, mutate ...func(*Config)) *testEngine {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := cheapTestConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	clock := &testClock{now: time.Now().UTC().Truncate(time.Second)}
	te := &testEngine{
		mr:     mr,
		rdb:    rdb,
		store:  memory.New(),
		mailer: newFakeMailer(),
		clock:  clock,
	}

	var store domain.Store = te.store
	if wrap != nil {
		store = wrap(te.store)
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithStore(store).
		WithMailer(te.mailer).
		WithValidator(validation.New(validation.WithResolver(mxResolver{}))).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	te.Engine = engine
	return te
}

func testCtx(ip string) context.Context {
	return WithUserAgent(WithClientIP(context.Background(), ip), "go-test")
}

// registerVerified registers email and consumes its verification link.
func (te *testEngine) registerVerified(t *testing.T, email string) {
	t.Helper()
	ctx := testCtx("10.0.0.1")
	if _, err := te.Register(ctx, email, testPassword); err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	ok, err := te.VerifyEmail(ctx, te.mailer.lastVerification(email))
	if err != nil || !ok {
		t.Fatalf("VerifyEmail(%s) = %v, %v", email, ok, err)
	}
}

func requireKind(t *testing.T, err error, kind Kind, key string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s/%s, got nil", kind, key)
	}
	var typed *Error
	if !errors.As(err, &typed) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if typed.Kind != kind || typed.Key != key {
		t.Fatalf("expected %s/%s, got %s/%s (%v)", kind, key, typed.Kind, typed.Key, err)
	}
}
