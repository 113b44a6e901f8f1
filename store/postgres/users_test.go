package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ansyfirmansyah/libauth/domain"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return New(mock), mock
}

func sampleUser() *domain.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.User{
		ID:           uuid.New(),
		Email:        "Alice@Example.com",
		PasswordHash: "$argon2id$hash",
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func userRow(u *domain.User) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "email", "password_hash", "role", "email_verified", "created_at", "updated_at",
	}).AddRow(u.ID, u.Email, u.PasswordHash, string(u.Role), u.EmailVerified, u.CreatedAt, u.UpdatedAt)
}

func TestUserRepository_Create_NormalizesEmail(t *testing.T) {
	store, mock := newMockStore(t)
	defer mock.Close()

	u := sampleUser()
	mock.ExpectExec("INSERT INTO users").
		WithArgs(u.ID, "alice@example.com", u.PasswordHash, "USER", false, u.CreatedAt, u.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Users().Create(context.Background(), u))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Create_Duplicate(t *testing.T) {
	store, mock := newMockStore(t)
	defer mock.Close()

	u := sampleUser()
	mock.ExpectExec("INSERT INTO users").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := store.Users().Create(context.Background(), u)
	assert.ErrorIs(t, err, domain.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByEmail_CaseInsensitive(t *testing.T) {
	store, mock := newMockStore(t)
	defer mock.Close()

	u := sampleUser()
	u.Email = "alice@example.com"
	mock.ExpectQuery(`WHERE lower\(email\) =`).
		WithArgs("alice@example.com").
		WillReturnRows(userRow(u))

	got, err := store.Users().GetByEmail(context.Background(), "  ALICE@example.COM ")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, domain.RoleUser, got.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("FROM users WHERE id =").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.Users().GetByID(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_UpdatePasswordHash_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	defer mock.Close()

	id := uuid.New()
	at := time.Now().UTC()
	mock.ExpectExec("UPDATE users SET password_hash").
		WithArgs("new-hash", at, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.Users().UpdatePasswordHash(context.Background(), id, "new-hash", at)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_MarkEmailVerified(t *testing.T) {
	store, mock := newMockStore(t)
	defer mock.Close()

	id := uuid.New()
	at := time.Now().UTC()
	mock.ExpectExec("UPDATE users SET email_verified = true").
		WithArgs(at, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.Users().MarkEmailVerified(context.Background(), id, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTx_CommitsOnSuccess(t *testing.T) {
	store, mock := newMockStore(t)
	defer mock.Close()

	id := uuid.New()
	at := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET email_verified = true").
		WithArgs(at, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(ctx context.Context, tx domain.Repositories) error {
		return tx.Users().MarkEmailVerified(ctx, id, at)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)
	defer mock.Close()

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(context.Context, domain.Repositories) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
