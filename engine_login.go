package libauth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ansyfirmansyah/libauth/domain"
	"github.com/ansyfirmansyah/libauth/internal/rate"
)

// Login verifies credentials and opens a session.
//
// A blocked (email, IP) pair is rejected before any password comparison.
// Unknown emails, wrong passwords and unverified accounts all fail with the
// same key and each records a failure against the limiter.
func (e *Engine) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	email = domain.NormalizeEmail(email)
	scope := e.beginAudit(ctx, domain.ActivityLogin, email)
	defer scope.end()

	limitKey := rate.LoginFailKey(email, scope.rec.IPAddress)
	blocked, err := e.limiter.IsBlocked(ctx, limitKey)
	if err != nil {
		if lerr := e.limiterUnavailable(ctx, "login", err); lerr != nil {
			scope.fail("limiter_unavailable")
			return nil, lerr
		}
	}
	if blocked {
		e.metricInc(MetricLoginRateLimited)
		scope.fail("rate_limited")
		return nil, newError(KindRateLimited, KeyLoginRateLimit, rate.ErrRateLimited)
	}

	user, err := e.store.Users().GetByEmail(ctx, email)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		e.metricInc(MetricPasswordVerify)
		e.hasher.VerifyDummy(password)
		return nil, e.loginFailed(ctx, scope, limitKey, ErrInvalidCredentials)
	case err != nil:
		scope.fail("store_unavailable")
		return nil, infraError(err)
	}
	scope.setUser(user.ID)

	e.metricInc(MetricPasswordVerify)
	ok, err := e.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		e.logger.WarnContext(ctx, "password verification error",
			slog.String("user_id", user.ID.String()),
			slog.Any("error", err),
		)
	}
	if !ok {
		return nil, e.loginFailed(ctx, scope, limitKey, ErrInvalidCredentials)
	}
	if !user.EmailVerified {
		return nil, e.loginFailed(ctx, scope, limitKey, ErrEmailUnverified)
	}

	if err := e.limiter.Clear(ctx, limitKey); err != nil {
		e.logger.WarnContext(ctx, "login limiter reset failed", slog.Any("error", err))
	}

	pair, _, err := e.issueSession(ctx, e.store, user)
	if err != nil {
		scope.fail("session_unavailable")
		return nil, err
	}

	if e.config.Password.UpgradeOnLogin && e.hasher.NeedsUpgrade(user.PasswordHash) {
		e.rehash(ctx, user, password)
	}

	scope.succeed()
	e.metricInc(MetricLoginSuccess)
	return pair, nil
}

func (e *Engine) loginFailed(ctx context.Context, scope *auditScope, limitKey string, cause error) error {
	if _, err := e.limiter.RecordFailure(ctx, limitKey); err != nil {
		// The rejection stands either way; only the policy log and metric apply.
		_ = e.limiterUnavailable(ctx, "login", err)
	}
	e.metricInc(MetricLoginFailure)
	if errors.Is(cause, ErrEmailUnverified) {
		scope.fail("email_unverified")
	} else {
		scope.fail("invalid_credentials")
	}
	return newError(KindUnauthorized, KeyLoginInvalidCredentials, cause)
}

// rehash moves a legacy or under-cost hash to the current argon2id
// parameters. Failure leaves the old hash in place.
func (e *Engine) rehash(ctx context.Context, user *domain.User, password string) {
	hash, err := e.hasher.Hash(password)
	if err == nil {
		err = e.store.Users().UpdatePasswordHash(ctx, user.ID, hash, e.now())
	}
	if err != nil {
		e.logger.WarnContext(ctx, "password rehash failed",
			slog.String("user_id", user.ID.String()),
			slog.Any("error", err),
		)
		return
	}
	e.metricInc(MetricPasswordRehashed)
}
