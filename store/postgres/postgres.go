// Package postgres implements domain.Store on PostgreSQL with pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ansyfirmansyah/libauth/domain"
)

// DBTX is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so the
// repositories run unchanged inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner is a DBTX that can open transactions.
type TxBeginner interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements domain.Store.
type Store struct {
	db TxBeginner
	repositories
}

// New creates a Store on top of a pool (or a pgxmock pool in tests).
func New(db TxBeginner) *Store {
	return &Store{db: db, repositories: newRepositories(db)}
}

// WithTx runs fn in a transaction. Rollback is deferred and becomes a no-op
// after a successful commit.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx domain.Repositories) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, newRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type repositories struct {
	users    *UserRepository
	verify   *OneTimeTokenRepository
	reset    *OneTimeTokenRepository
	refresh  *RefreshTokenRepository
	auditLog *AuditRepository
}

func newRepositories(db DBTX) repositories {
	return repositories{
		users:    NewUserRepository(db),
		verify:   NewOneTimeTokenRepository(db, TableVerificationTokens),
		reset:    NewOneTimeTokenRepository(db, TablePasswordResetTokens),
		refresh:  NewRefreshTokenRepository(db),
		auditLog: NewAuditRepository(db),
	}
}

func (r repositories) Users() domain.UserRepository                      { return r.users }
func (r repositories) VerificationTokens() domain.OneTimeTokenRepository { return r.verify }
func (r repositories) PasswordResetTokens() domain.OneTimeTokenRepository {
	return r.reset
}
func (r repositories) RefreshTokens() domain.RefreshTokenRepository { return r.refresh }
func (r repositories) Audit() domain.AuditRepository                { return r.auditLog }

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	RetryAttempts   int
	RetryBaseWait   time.Duration
}

// NewPool opens a pgx pool and pings it, retrying with exponential backoff.
func NewPool(ctx context.Context, cfg PoolConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	wait := cfg.RetryBaseWait
	if wait <= 0 {
		wait = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := wait << (attempt - 1)
			logger.WarnContext(ctx, "retrying postgres connection",
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			lastErr = fmt.Errorf("create postgres pool: %w", err)
			continue
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			lastErr = fmt.Errorf("ping postgres: %w", err)
			continue
		}
		return pool, nil
	}
	return nil, lastErr
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
