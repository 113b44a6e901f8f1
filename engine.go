package libauth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ansyfirmansyah/libauth/domain"
	"github.com/ansyfirmansyah/libauth/internal"
	internalaudit "github.com/ansyfirmansyah/libauth/internal/audit"
	"github.com/ansyfirmansyah/libauth/internal/rate"
	"github.com/ansyfirmansyah/libauth/jwt"
	"github.com/ansyfirmansyah/libauth/password"
	"github.com/ansyfirmansyah/libauth/session"
)

// Engine runs the account flows: registration, email verification, login,
// refresh rotation, logout, password reset and request authentication.
//
// An Engine is immutable after Build and safe for concurrent use.
type Engine struct {
	config    Config
	store     domain.Store
	sessions  *session.Store
	limiter   *rate.Limiter
	codec     *jwt.Codec
	hasher    *password.Hasher
	validator Validator
	mailer    Mailer
	audit     *internalaudit.Dispatcher
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// Close stops the audit dispatcher after draining queued events. The
// Redis client and store are owned by the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many events the async dispatcher discarded.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping checks the Redis round trip.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	return e.sessions.Ping(ctx)
}

// Authenticate resolves a bearer access token to a Principal. The token
// must verify and its session must still exist in Redis, so a logged-out or
// reset session is rejected before its access token expires.
func (e *Engine) Authenticate(ctx context.Context, bearer string) (*Principal, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
	}()

	claims, err := e.codec.Verify(bearerToken(bearer))
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		return nil, newError(KindUnauthorized, KeyInvalidToken, err)
	}
	userID, err := uuid.Parse(claims.UID)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		return nil, newError(KindUnauthorized, KeyInvalidToken, jwt.ErrMalformed)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.config.Session.LookupTimeout)
	defer cancel()

	ok, err := e.sessions.Exists(lookupCtx, claims.UID, claims.SID)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		return nil, infraError(err)
	}
	if !ok {
		e.metricInc(MetricAuthenticateFailure)
		return nil, newError(KindUnauthorized, KeyInvalidSession, session.ErrExpiredSession)
	}

	e.metricInc(MetricAuthenticateSuccess)
	return &Principal{
		UserID:    userID,
		Role:      claims.Role,
		SessionID: claims.SID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// bearerToken strips an optional "Bearer " scheme.
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

func (e *Engine) metricInc(id MetricID) {
	if e.metrics != nil {
		e.metrics.Inc(id)
	}
}

// limiterUnavailable applies the rate-limit failure policy. A nil return
// means the caller proceeds as if the limit was not reached.
func (e *Engine) limiterUnavailable(ctx context.Context, op string, err error) error {
	e.metricInc(MetricRateLimiterUnavailable)
	if e.config.RateLimit.FailClosed {
		e.logger.ErrorContext(ctx, "rate limiter unavailable",
			slog.String("op", op),
			slog.Any("error", err),
		)
		return infraError(err)
	}
	e.logger.WarnContext(ctx, "rate limiter unavailable, allowing request",
		slog.String("op", op),
		slog.Any("error", err),
	)
	return nil
}

// issueSession mints an access token, registers its session in Redis and
// stores a fresh refresh token through repos. Callers pass a transaction
// handle when the refresh row must commit together with other writes.
func (e *Engine) issueSession(ctx context.Context, repos domain.Repositories, user *domain.User) (*TokenPair, string, error) {
	now := e.now()
	sessionID := uuid.NewString()
	expiresAt := now.Add(e.config.JWT.AccessTTL)

	access, err := e.codec.Issue(user.ID.String(), string(user.Role), sessionID, now, expiresAt)
	if err != nil {
		return nil, "", newError(KindUnknown, KeyInternal, err)
	}
	if err := e.sessions.Store(ctx, user.ID.String(), sessionID, expiresAt); err != nil {
		return nil, "", infraError(err)
	}

	refresh, digest, err := internal.NewOpaqueToken()
	if err != nil {
		return nil, "", newError(KindUnknown, KeyInternal, err)
	}
	if err := repos.RefreshTokens().Create(ctx, &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: digest,
		ExpiresAt: now.Add(e.config.Tokens.RefreshTTL),
		CreatedAt: now,
	}); err != nil {
		e.dropSession(ctx, user, sessionID)
		return nil, "", infraError(err)
	}

	e.metricInc(MetricSessionCreated)
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}, sessionID, nil
}

// storeError maps repository errors that no flow expects.
func storeError(err error) error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return infraError(err)
}
