package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ansyfirmansyah/libauth/domain"
)

const refreshTokenColumns = `id, user_id, token_hash, expires_at, revoked, created_at`

// RefreshTokenRepository implements domain.RefreshTokenRepository.
type RefreshTokenRepository struct {
	db DBTX
}

// NewRefreshTokenRepository creates a RefreshTokenRepository.
func NewRefreshTokenRepository(db DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create inserts t.
func (r *RefreshTokenRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO refresh_tokens (`+refreshTokenColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.Revoked, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// GetByHash looks a refresh token up by digest.
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	return r.scan(r.db.QueryRow(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token_hash = $1`,
		tokenHash,
	))
}

// Revoke flips an active token to revoked. Exactly one of several concurrent
// callers gets the row back.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenHash string, now time.Time) (*domain.RefreshToken, error) {
	query := `
		UPDATE refresh_tokens SET revoked = true
		WHERE token_hash = $1 AND revoked = false AND expires_at > $2
		RETURNING ` + refreshTokenColumns

	t, err := r.scan(r.db.QueryRow(ctx, query, tokenHash, now))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE token_hash = $1)`,
		tokenHash,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check refresh token: %w", err)
	}
	if exists {
		return nil, domain.ErrTokenConsumed
	}
	return nil, domain.ErrNotFound
}

// RevokeAllForUser revokes every active refresh token of the user.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	ct, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = true WHERE user_id = $1 AND revoked = false`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return ct.RowsAffected(), nil
}

// DeleteExpiredOrRevoked removes refresh tokens that can never be rotated again.
func (r *RefreshTokenRepository) DeleteExpiredOrRevoked(ctx context.Context, now time.Time) (int64, error) {
	ct, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1 OR revoked = true`, now)
	if err != nil {
		return 0, fmt.Errorf("purge refresh tokens: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (r *RefreshTokenRepository) scan(row pgx.Row) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Revoked, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	return &t, nil
}
