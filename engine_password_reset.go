package libauth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ansyfirmansyah/libauth/domain"
	"github.com/ansyfirmansyah/libauth/internal"
	"github.com/ansyfirmansyah/libauth/internal/rate"
)

// ForgotPassword mails a password reset link when email belongs to an
// account. Rate-limited requests and unknown emails return nil so the
// response never reveals whether an account exists. Only infrastructure
// failures are returned.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	email = domain.NormalizeEmail(email)
	scope := e.beginAudit(ctx, domain.ActivityForgotPassword, email)
	defer scope.end()

	allowed, err := e.limiter.Acquire(ctx, rate.ForgotPasswordKey(email),
		e.config.RateLimit.ForgotPasswordWindow, e.config.RateLimit.ForgotPasswordMax)
	if err != nil {
		if lerr := e.limiterUnavailable(ctx, "forgot_password", err); lerr != nil {
			scope.fail("limiter_unavailable")
			return lerr
		}
		allowed = true
	}
	if !allowed {
		e.metricInc(MetricPasswordResetSuppressed)
		scope.fail("rate_limited")
		return nil
	}

	user, err := e.store.Users().GetByEmail(ctx, email)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		e.metricInc(MetricPasswordResetSuppressed)
		scope.fail("unknown_email")
		return nil
	case err != nil:
		scope.fail("store_unavailable")
		return infraError(err)
	}
	scope.setUser(user.ID)

	token, digest, err := internal.NewOpaqueToken()
	if err != nil {
		return newError(KindUnknown, KeyInternal, err)
	}
	now := e.now()
	if err := e.store.PasswordResetTokens().Create(ctx, &domain.PasswordResetToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: digest,
		ExpiresAt: now.Add(e.config.Tokens.PasswordResetTTL),
		CreatedAt: now,
	}); err != nil {
		scope.fail("store_unavailable")
		return infraError(err)
	}

	scope.succeed()
	e.metricInc(MetricPasswordResetRequest)

	if err := e.mailer.SendPasswordResetEmail(ctx, user.Email, token); err != nil {
		e.mailFailed(ctx, "password_reset", user.ID, err)
	}
	return nil
}

// ResetPassword sets a new password using a reset token, then closes every
// session and revokes every refresh token of the account.
//
// The password change and the token consumption commit together. If the
// session purge fails afterwards the password stays changed and an
// infrastructure error is returned so the caller can alert.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	scope := e.beginAudit(ctx, domain.ActivityResetPassword, "")
	defer scope.end()

	if !e.validator.Password(newPassword) {
		e.metricInc(MetricPasswordResetConfirmFailure)
		scope.fail("invalid_password")
		return newError(KindInvalidArgument, KeyResetPasswordInvalidPassword, nil)
	}
	if !internal.WellFormedToken(token) {
		e.metricInc(MetricPasswordResetConfirmFailure)
		scope.fail("unknown_token")
		return newError(KindInvalidArgument, KeyResetPasswordNotFound, internal.ErrMalformedToken)
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		scope.fail("invalid_password")
		return newError(KindInvalidArgument, KeyResetPasswordInvalidPassword, err)
	}

	now := e.now()
	var user *domain.User
	err = e.store.WithTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		tok, err := tx.PasswordResetTokens().Consume(ctx, internal.HashToken(token), now)
		if err != nil {
			return err
		}
		if user, err = tx.Users().GetByID(ctx, tok.UserID); err != nil {
			return err
		}
		return tx.Users().UpdatePasswordHash(ctx, user.ID, hash, now)
	})
	switch {
	case errors.Is(err, domain.ErrNotFound):
		e.metricInc(MetricPasswordResetConfirmFailure)
		scope.fail("unknown_token")
		return newError(KindInvalidArgument, KeyResetPasswordNotFound, err)
	case errors.Is(err, domain.ErrTokenConsumed):
		e.metricInc(MetricPasswordResetConfirmFailure)
		scope.fail("used_or_expired_token")
		return newError(KindInvalidArgument, KeyResetPasswordInvalid, err)
	case err != nil:
		scope.fail("store_unavailable")
		return infraError(err)
	}

	scope.setUser(user.ID)
	scope.setEmail(user.Email)
	scope.succeed()
	e.metricInc(MetricPasswordResetConfirmSuccess)

	return e.revokeEverything(ctx, user.ID)
}

// revokeEverything closes all sessions and revokes all refresh tokens of
// userID. Both steps are attempted even if one fails.
func (e *Engine) revokeEverything(ctx context.Context, userID uuid.UUID) error {
	closed, sessErr := e.sessions.InvalidateAll(ctx, userID.String())
	for i := 0; i < closed; i++ {
		e.metricInc(MetricSessionInvalidated)
	}
	revoked, tokErr := e.store.RefreshTokens().RevokeAllForUser(ctx, userID)

	if err := errors.Join(sessErr, tokErr); err != nil {
		e.logger.ErrorContext(ctx, "credential revocation incomplete after password reset",
			slog.String("user_id", userID.String()),
			slog.Any("error", err),
		)
		return infraError(err)
	}
	e.logger.InfoContext(ctx, "credentials revoked after password reset",
		slog.String("user_id", userID.String()),
		slog.Int("sessions", closed),
		slog.Int64("refresh_tokens", revoked),
	)
	return nil
}
