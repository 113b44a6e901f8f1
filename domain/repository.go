package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserRepository persists accounts.
type UserRepository interface {
	// Create inserts u. Returns ErrDuplicate when the email is taken.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string, at time.Time) error
	MarkEmailVerified(ctx context.Context, id uuid.UUID, at time.Time) error
}

// OneTimeTokenRepository persists single-use tokens (verification or reset).
type OneTimeTokenRepository interface {
	Create(ctx context.Context, t *OneTimeToken) error
	GetByHash(ctx context.Context, tokenHash string) (*OneTimeToken, error)
	// Consume flips Used to true when the token is unused and unexpired at
	// now. Returns ErrNotFound for unknown hashes and ErrTokenConsumed when
	// the token exists but is used or expired.
	Consume(ctx context.Context, tokenHash string, now time.Time) (*OneTimeToken, error)
	DeleteExpiredOrUsed(ctx context.Context, now time.Time) (int64, error)
}

// RefreshTokenRepository persists refresh tokens.
type RefreshTokenRepository interface {
	Create(ctx context.Context, t *RefreshToken) error
	GetByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	// Revoke is a compare-and-swap from active to revoked. Returns
	// ErrNotFound for unknown hashes and ErrTokenConsumed when the token is
	// already revoked or expired.
	Revoke(ctx context.Context, tokenHash string, now time.Time) (*RefreshToken, error)
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteExpiredOrRevoked(ctx context.Context, now time.Time) (int64, error)
}

// AuditRepository appends activity records.
type AuditRepository interface {
	Append(ctx context.Context, r *AuditRecord) error
	CountByIPSince(ctx context.Context, ip string, activity ActivityType, since time.Time) (int64, error)
}

// Repositories groups the repositories that share one connection or transaction.
type Repositories interface {
	Users() UserRepository
	VerificationTokens() OneTimeTokenRepository
	PasswordResetTokens() OneTimeTokenRepository
	RefreshTokens() RefreshTokenRepository
	Audit() AuditRepository
}

// Store is the persistence entry point. WithTx runs fn inside a single
// transaction and commits only when fn returns nil.
type Store interface {
	Repositories
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error
}

// Purger is the storage-reclamation contract used by the expiry sweeper.
type Purger interface {
	PurgePasswordResetTokens(ctx context.Context, now time.Time) (int64, error)
	PurgeVerificationTokens(ctx context.Context, now time.Time) (int64, error)
	PurgeRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

// NewPurger adapts a Store to the Purger contract.
func NewPurger(s Store) Purger {
	return storePurger{s: s}
}

type storePurger struct {
	s Store
}

func (p storePurger) PurgePasswordResetTokens(ctx context.Context, now time.Time) (int64, error) {
	return p.s.PasswordResetTokens().DeleteExpiredOrUsed(ctx, now)
}

func (p storePurger) PurgeVerificationTokens(ctx context.Context, now time.Time) (int64, error) {
	return p.s.VerificationTokens().DeleteExpiredOrUsed(ctx, now)
}

func (p storePurger) PurgeRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	return p.s.RefreshTokens().DeleteExpiredOrRevoked(ctx, now)
}
