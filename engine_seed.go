package libauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ansyfirmansyah/libauth/domain"
)

// SeedAccount creates a verified account with role when no account uses
// email yet. It reports whether a row was inserted. Registration checks and
// auditing do not apply; it is meant for bootstrapping operators.
func (e *Engine) SeedAccount(ctx context.Context, email, password string, role domain.Role) (*domain.User, bool, error) {
	if e == nil || e.store == nil {
		return nil, false, ErrEngineNotReady
	}
	if !role.Valid() {
		return nil, false, newError(KindInvalidArgument, KeyInvalidRequest, fmt.Errorf("unknown role %q", role))
	}

	email = domain.NormalizeEmail(email)
	if !e.validator.Email(email) {
		return nil, false, newError(KindInvalidArgument, KeyRegistrationInvalidEmail, nil)
	}

	existing, err := e.store.Users().GetByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, infraError(err)
	}

	hash, err := e.hasher.Hash(password)
	if err != nil {
		return nil, false, newError(KindInvalidArgument, KeyRegistrationInvalidPassword, err)
	}

	now := e.now()
	user := &domain.User{
		ID:            uuid.New(),
		Email:         email,
		PasswordHash:  hash,
		Role:          role,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			existing, gerr := e.store.Users().GetByEmail(ctx, email)
			if gerr != nil {
				return nil, false, infraError(gerr)
			}
			return existing, false, nil
		}
		return nil, false, infraError(err)
	}
	return user, true, nil
}
