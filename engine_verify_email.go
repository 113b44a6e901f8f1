package libauth

import (
	"context"
	"errors"

	"github.com/ansyfirmansyah/libauth/domain"
	"github.com/ansyfirmansyah/libauth/internal"
)

// VerifyEmail consumes a verification token and marks its owner verified.
// A missing, used or expired token yields false without an error; only
// storage failures are returned. A second call with the same token is false.
func (e *Engine) VerifyEmail(ctx context.Context, token string) (bool, error) {
	if e == nil || e.store == nil {
		return false, ErrEngineNotReady
	}

	scope := e.beginAudit(ctx, domain.ActivityVerifyEmail, "")
	defer scope.end()

	if !internal.WellFormedToken(token) {
		e.metricInc(MetricVerifyEmailFailure)
		scope.fail("malformed_token")
		return false, nil
	}

	now := e.now()
	var user *domain.User
	err := e.store.WithTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		tok, err := tx.VerificationTokens().Consume(ctx, internal.HashToken(token), now)
		if err != nil {
			return err
		}
		if user, err = tx.Users().GetByID(ctx, tok.UserID); err != nil {
			return err
		}
		return tx.Users().MarkEmailVerified(ctx, user.ID, now)
	})
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrTokenConsumed):
		e.metricInc(MetricVerifyEmailFailure)
		scope.fail("invalid_token")
		return false, nil
	case err != nil:
		scope.fail("store_unavailable")
		return false, infraError(err)
	}

	scope.setUser(user.ID)
	scope.setEmail(user.Email)
	scope.succeed()
	e.metricInc(MetricVerifyEmailSuccess)
	return true, nil
}
