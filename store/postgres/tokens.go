package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ansyfirmansyah/libauth/domain"
)

// Tables holding single-use tokens. Both share one layout.
const (
	TableVerificationTokens  = "verification_tokens"
	TablePasswordResetTokens = "password_reset_tokens"
)

const oneTimeTokenColumns = `id, user_id, token_hash, expires_at, used, created_at`

// OneTimeTokenRepository implements domain.OneTimeTokenRepository for one table.
type OneTimeTokenRepository struct {
	db    DBTX
	table string
}

// NewOneTimeTokenRepository creates a repository bound to table, which must
// be one of the Table constants.
func NewOneTimeTokenRepository(db DBTX, table string) *OneTimeTokenRepository {
	return &OneTimeTokenRepository{db: db, table: table}
}

// Create inserts t.
func (r *OneTimeTokenRepository) Create(ctx context.Context, t *domain.OneTimeToken) error {
	query := `INSERT INTO ` + r.table + ` (` + oneTimeTokenColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query, t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.Used, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert %s: %w", r.table, err)
	}
	return nil
}

// GetByHash looks a token up by digest.
func (r *OneTimeTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.OneTimeToken, error) {
	query := `SELECT ` + oneTimeTokenColumns + ` FROM ` + r.table + ` WHERE token_hash = $1`
	return r.scan(r.db.QueryRow(ctx, query, tokenHash))
}

// Consume marks the token used in a single conditional UPDATE, so two
// concurrent consumers cannot both succeed.
func (r *OneTimeTokenRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (*domain.OneTimeToken, error) {
	query := `
		UPDATE ` + r.table + ` SET used = true
		WHERE token_hash = $1 AND used = false AND expires_at > $2
		RETURNING ` + oneTimeTokenColumns

	t, err := r.scan(r.db.QueryRow(ctx, query, tokenHash, now))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+r.table+` WHERE token_hash = $1)`,
		tokenHash,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check %s: %w", r.table, err)
	}
	if exists {
		return nil, domain.ErrTokenConsumed
	}
	return nil, domain.ErrNotFound
}

// DeleteExpiredOrUsed removes tokens that can no longer be consumed.
func (r *OneTimeTokenRepository) DeleteExpiredOrUsed(ctx context.Context, now time.Time) (int64, error) {
	ct, err := r.db.Exec(ctx, `DELETE FROM `+r.table+` WHERE expires_at < $1 OR used = true`, now)
	if err != nil {
		return 0, fmt.Errorf("purge %s: %w", r.table, err)
	}
	return ct.RowsAffected(), nil
}

func (r *OneTimeTokenRepository) scan(row pgx.Row) (*domain.OneTimeToken, error) {
	var t domain.OneTimeToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Used, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan %s: %w", r.table, err)
	}
	return &t, nil
}
