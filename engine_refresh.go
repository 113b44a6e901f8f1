package libauth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ansyfirmansyah/libauth/domain"
	"github.com/ansyfirmansyah/libauth/internal"
)

// Refresh rotates a refresh token into a new token pair.
//
// The old token is revoked with a conditional update inside the same
// transaction that stores its replacement, so two concurrent calls with one
// token produce exactly one winner. When currentAccessToken carries a valid
// signature for the same user, the session behind it is closed.
func (e *Engine) Refresh(ctx context.Context, refreshToken, currentAccessToken string) (*TokenPair, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	scope := e.beginAudit(ctx, domain.ActivityRefresh, "")
	defer scope.end()

	if !internal.WellFormedToken(refreshToken) {
		e.metricInc(MetricRefreshFailure)
		scope.fail("malformed_token")
		return nil, newError(KindUnauthorized, KeyRefreshInvalid, internal.ErrMalformedToken)
	}

	now := e.now()
	var (
		user      *domain.User
		pair      *TokenPair
		sessionID string
	)
	err := e.store.WithTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		old, err := tx.RefreshTokens().Revoke(ctx, internal.HashToken(refreshToken), now)
		if err != nil {
			return err
		}
		if user, err = tx.Users().GetByID(ctx, old.UserID); err != nil {
			return err
		}
		pair, sessionID, err = e.issueSession(ctx, tx, user)
		return err
	})
	if err != nil && sessionID != "" {
		// The marker was written before the commit failed.
		e.dropSession(ctx, user, sessionID)
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		e.metricInc(MetricRefreshFailure)
		scope.fail("unknown_token")
		return nil, newError(KindUnauthorized, KeyRefreshInvalid, err)
	case errors.Is(err, domain.ErrTokenConsumed):
		e.metricInc(MetricRefreshFailure)
		scope.fail("revoked_or_expired")
		return nil, newError(KindUnauthorized, KeyRefreshExpired, err)
	case err != nil:
		scope.fail("store_unavailable")
		return nil, storeError(err)
	}

	scope.setUser(user.ID)
	scope.setEmail(user.Email)

	if currentAccessToken != "" {
		e.closeReplacedSession(ctx, user, currentAccessToken)
	}

	scope.succeed()
	e.metricInc(MetricRefreshSuccess)
	return pair, nil
}

func (e *Engine) dropSession(ctx context.Context, user *domain.User, sessionID string) {
	if err := e.sessions.Invalidate(context.WithoutCancel(ctx), user.ID.String(), sessionID); err != nil {
		e.logger.WarnContext(ctx, "orphan session left behind",
			slog.String("user_id", user.ID.String()),
			slog.Any("error", err),
		)
	}
}

// closeReplacedSession invalidates the session named by an access token
// being replaced. Expired tokens are accepted here; tokens for another user
// are ignored.
func (e *Engine) closeReplacedSession(ctx context.Context, user *domain.User, accessToken string) {
	claims, err := e.codec.VerifySignature(bearerToken(accessToken))
	if err != nil || claims.UID != user.ID.String() {
		return
	}
	if err := e.sessions.Invalidate(ctx, claims.UID, claims.SID); err != nil {
		e.logger.WarnContext(ctx, "old session invalidation failed",
			slog.String("user_id", claims.UID),
			slog.Any("error", err),
		)
		return
	}
	e.metricInc(MetricSessionInvalidated)
}
