package libauth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ansyfirmansyah/libauth/domain"
	"github.com/ansyfirmansyah/libauth/internal"
)

// Register creates an unverified account and mails its verification link.
//
// Checks run in order: per-IP registration budget, email syntax, email
// domain, password policy, duplicate email. The user and its verification
// token commit in one transaction; the mail is sent afterwards and a mail
// failure does not fail the registration.
func (e *Engine) Register(ctx context.Context, email, password string) (*domain.User, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	email = domain.NormalizeEmail(email)
	scope := e.beginAudit(ctx, domain.ActivityRegister, email)
	defer scope.end()

	now := e.now()
	attempts, err := e.store.Audit().CountByIPSince(ctx, scope.rec.IPAddress, domain.ActivityRegister, now.Add(-time.Hour))
	if err != nil {
		scope.fail("store_unavailable")
		return nil, infraError(err)
	}
	if attempts > int64(e.config.Register.MaxPerIPPerHour) {
		e.metricInc(MetricRegisterRateLimited)
		scope.fail("rate_limited")
		return nil, newError(KindRateLimited, KeyRegistrationRateLimit, nil)
	}

	if !e.validator.Email(email) {
		return nil, e.registerRejected(scope, KeyRegistrationInvalidEmail)
	}
	if e.config.Register.CheckEmailDomain {
		ok, err := e.validator.EmailDomain(ctx, email)
		if err != nil {
			scope.fail("dns_unavailable")
			return nil, infraError(err)
		}
		if !ok {
			return nil, e.registerRejected(scope, KeyRegistrationInvalidDomain)
		}
	}
	if !e.validator.Password(password) {
		return nil, e.registerRejected(scope, KeyRegistrationInvalidPassword)
	}

	switch _, err := e.store.Users().GetByEmail(ctx, email); {
	case err == nil:
		return nil, e.registerDuplicate(scope)
	case !errors.Is(err, domain.ErrNotFound):
		scope.fail("store_unavailable")
		return nil, infraError(err)
	}

	hash, err := e.hasher.Hash(password)
	if err != nil {
		return nil, e.registerRejected(scope, KeyRegistrationInvalidPassword)
	}
	token, digest, err := internal.NewOpaqueToken()
	if err != nil {
		return nil, newError(KindUnknown, KeyInternal, err)
	}

	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = e.store.WithTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			return err
		}
		return tx.VerificationTokens().Create(ctx, &domain.VerificationToken{
			ID:        uuid.New(),
			UserID:    user.ID,
			TokenHash: digest,
			ExpiresAt: now.Add(e.config.Tokens.VerificationTTL),
			CreatedAt: now,
		})
	})
	if errors.Is(err, domain.ErrDuplicate) {
		return nil, e.registerDuplicate(scope)
	}
	if err != nil {
		scope.fail("store_unavailable")
		return nil, infraError(err)
	}

	scope.setUser(user.ID)
	scope.succeed()
	e.metricInc(MetricRegisterSuccess)

	if err := e.mailer.SendVerificationEmail(ctx, user.Email, token); err != nil {
		e.mailFailed(ctx, "verification", user.ID, err)
	}

	user.PasswordHash = ""
	return user, nil
}

func (e *Engine) registerRejected(scope *auditScope, key string) error {
	e.metricInc(MetricRegisterRejected)
	scope.fail(key)
	return newError(KindInvalidArgument, key, nil)
}

func (e *Engine) registerDuplicate(scope *auditScope) error {
	e.metricInc(MetricRegisterDuplicate)
	scope.fail("duplicate_email")
	return newError(KindConflict, KeyRegistrationDuplicateEmail, domain.ErrDuplicate)
}

func (e *Engine) mailFailed(ctx context.Context, kind string, userID uuid.UUID, err error) {
	e.metricInc(MetricMailFailure)
	e.logger.ErrorContext(ctx, "mail delivery failed",
		slog.String("mail", kind),
		slog.String("user_id", userID.String()),
		slog.Any("error", err),
	)
}
