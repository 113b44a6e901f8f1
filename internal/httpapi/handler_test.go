package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ansyfirmansyah/libauth"
	"github.com/ansyfirmansyah/libauth/domain"
	"github.com/ansyfirmansyah/libauth/store/memory"
)

const testPassword = "Password1"

type captureMailer struct {
	mu     sync.Mutex
	verify map[string]string
	reset  map[string]string
}

func (m *captureMailer) SendVerificationEmail(_ context.Context, to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verify[to] = token
	return nil
}

func (m *captureMailer) SendPasswordResetEmail(_ context.Context, to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset[to] = token
	return nil
}

func (m *captureMailer) verification(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verify[to]
}

func (m *captureMailer) resetToken(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reset[to]
}

type pingFunc func(ctx context.Context) (time.Duration, error)

func (f pingFunc) Ping(ctx context.Context) (time.Duration, error) { return f(ctx) }

type testServer struct {
	engine *libauth.Engine
	mailer *captureMailer
	router http.Handler
}

func newTestServer(t *testing.T, ready ...Pinger) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := libauth.DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Register.CheckEmailDomain = false

	mailer := &captureMailer{verify: map[string]string{}, reset: map[string]string{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	engine, err := libauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithStore(memory.New()).
		WithMailer(mailer).
		WithLogger(logger).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	if len(ready) == 0 {
		ready = []Pinger{engine}
	}
	return &testServer{
		engine: engine,
		mailer: mailer,
		router: NewRouter(Deps{Engine: engine, Ready: ready, Logger: logger}),
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, bearer string) (*httptest.ResponseRecorder, response) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.9:41000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func (s *testServer) login(t *testing.T, email, password string) libauth.TokenPair {
	t.Helper()
	rec, resp := s.do(t, http.MethodPost, "/auth/login", LoginRequest{Email: email, Password: password}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeData[libauth.TokenPair](t, resp)
}

func decodeData[T any](t *testing.T, resp response) T {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestAuthFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	email := "reader@library.test"

	rec, resp := s.do(t, http.MethodPost, "/auth/register", RegisterRequest{Email: email, Password: testPassword}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, resp.Success)
	assert.Equal(t, email, decodeData[userResponse](t, resp).Email)

	rec, resp = s.do(t, http.MethodPost, "/auth/login", LoginRequest{Email: email, Password: testPassword}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, libauth.KeyLoginInvalidCredentials, resp.Error.Code)

	rec, _ = s.do(t, http.MethodGet, "/auth/verify?token="+s.mailer.verification(email), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec, resp = s.do(t, http.MethodGet, "/auth/verify?token="+s.mailer.verification(email), nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, libauth.KeyVerifyEmailInvalid, resp.Error.Code)

	pair := s.login(t, email, testPassword)

	rec, resp = s.do(t, http.MethodGet, "/auth/me", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(domain.RoleUser), decodeData[meResponse](t, resp).Role)

	rec, resp = s.do(t, http.MethodPost, "/auth/refresh", RefreshRequest{RefreshToken: pair.RefreshToken}, pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rotated := decodeData[libauth.TokenPair](t, resp)

	rec, _ = s.do(t, http.MethodGet, "/auth/me", nil, pair.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "replaced session must be closed")

	rec, _ = s.do(t, http.MethodPost, "/auth/logout", nil, rotated.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/auth/me", nil, rotated.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, libauth.Message(libauth.KeyInvalidSession, ""), strings.TrimSpace(rec.Body.String()))
}

func TestPasswordResetOverHTTP(t *testing.T) {
	s := newTestServer(t)
	ctx := libauth.WithClientIP(context.Background(), "198.51.100.1")
	email := "member@library.test"
	_, _, err := s.engine.SeedAccount(ctx, email, testPassword, domain.RoleUser)
	require.NoError(t, err)
	pair := s.login(t, email, testPassword)

	rec, resp := s.do(t, http.MethodPost, "/auth/forgot-password", ForgotPasswordRequest{Email: "nobody@library.test"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, libauth.Message(libauth.KeyForgotPasswordSent, ""), resp.Message)

	rec, _ = s.do(t, http.MethodPost, "/auth/forgot-password", ForgotPasswordRequest{Email: email}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	token := s.mailer.resetToken(email)
	require.NotEmpty(t, token)

	rec, resp = s.do(t, http.MethodPost, "/auth/reset-password", ResetPasswordRequest{Token: token, NewPassword: "weak"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, libauth.KeyResetPasswordInvalidPassword, resp.Error.Code)

	rec, _ = s.do(t, http.MethodPost, "/auth/reset-password", ResetPasswordRequest{Token: token, NewPassword: "Newpassword2"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/auth/me", nil, pair.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	s.login(t, email, "Newpassword2")
}

func TestAdminRouteRequiresAdminRole(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, _, err := s.engine.SeedAccount(ctx, "dummyadmin@gmail.com", testPassword, domain.RoleAdmin)
	require.NoError(t, err)
	_, _, err = s.engine.SeedAccount(ctx, "dummyuser@gmail.com", testPassword, domain.RoleUser)
	require.NoError(t, err)

	rec, _ := s.do(t, http.MethodGet, "/admin/metrics/snapshot", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	user := s.login(t, "dummyuser@gmail.com", testPassword)
	rec, _ = s.do(t, http.MethodGet, "/admin/metrics/snapshot", nil, user.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := s.login(t, "dummyadmin@gmail.com", testPassword)
	rec, resp := s.do(t, http.MethodGet, "/admin/metrics/snapshot", nil, admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	counters := decodeData[map[string]uint64](t, resp)
	assert.EqualValues(t, 2, counters["libauth_login_success_total"])
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@b.c"}`))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec, resp := s.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@b.c"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Fields, "Password")

	req = httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{not json`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = s.do(t, http.MethodPost, "/auth/register", RegisterRequest{Email: "not-an-email", Password: testPassword}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, libauth.KeyRegistrationInvalidEmail, resp.Error.Code)
}

func TestLocalizedErrorMessage(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer nope")
	req.Header.Set("Accept-Language", "id-ID,id;q=0.9")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, libauth.Message(libauth.KeyInvalidToken, "id"), strings.TrimSpace(rec.Body.String()))
}

func TestReadiness(t *testing.T) {
	s := newTestServer(t)
	rec, _ := s.do(t, http.MethodGet, "/health/ready", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	down := newTestServer(t, pingFunc(func(context.Context) (time.Duration, error) {
		return 0, errors.New("connection refused")
	}))
	rec, resp := down.do(t, http.MethodGet, "/health/ready", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, libauth.KeyUnavailable, resp.Error.Code)

	rec, _ = down.do(t, http.MethodGet, "/health/live", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
