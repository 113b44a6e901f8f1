package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ansyfirmansyah/libauth/domain"
)

func TestUsersEmailIsCaseInsensitiveAndUnique(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Users().Create(ctx, &domain.User{ID: uuid.New(), Email: "A@X.com"}))
	err := s.Users().Create(ctx, &domain.User{ID: uuid.New(), Email: "a@x.COM"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	u, err := s.Users().GetByEmail(ctx, "a@X.com")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", u.Email)
}

func TestWithTxRestoresOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		if err := tx.Users().Create(ctx, &domain.User{ID: uuid.New(), Email: "a@x.com"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Users().GetByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWithTxRollbackKeepsConcurrentWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	user := uuid.New()
	boom := errors.New("boom")

	require.NoError(t, s.RefreshTokens().Create(ctx, &domain.RefreshToken{
		ID: uuid.New(), UserID: user, TokenHash: "rotated", ExpiresAt: now.Add(time.Hour),
	}))

	inTx := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
			if _, err := tx.RefreshTokens().Revoke(ctx, "rotated", now); err != nil {
				return err
			}
			close(inTx)
			<-release
			return boom
		})
	}()

	<-inTx
	require.NoError(t, s.RefreshTokens().Create(ctx, &domain.RefreshToken{
		ID: uuid.New(), UserID: user, TokenHash: "login", ExpiresAt: now.Add(time.Hour),
	}))
	close(release)
	require.ErrorIs(t, <-done, boom)

	tok, err := s.RefreshTokens().GetByHash(ctx, "login")
	require.NoError(t, err)
	assert.False(t, tok.Revoked)

	rotated, err := s.RefreshTokens().GetByHash(ctx, "rotated")
	require.NoError(t, err)
	assert.False(t, rotated.Revoked, "revoke inside the failed transaction must be undone")
}

func TestWithTxRollbackSkipsKeysWrittenLater(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := uuid.New()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		if err := tx.Users().Create(ctx, &domain.User{ID: id, Email: "a@x.com"}); err != nil {
			return err
		}
		// A write outside the transaction replaces the row before the rollback.
		if err := s.Users().MarkEmailVerified(ctx, id, time.Now()); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	u, err := s.Users().GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, u.EmailVerified)
}

func TestWithTxDoesNotSerializeTransactions(t *testing.T) {
	s := New()
	ctx := context.Background()

	inFirst := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
			close(inFirst)
			<-release
			return nil
		})
	}()

	<-inFirst
	err := s.WithTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		return tx.Users().Create(ctx, &domain.User{ID: uuid.New(), Email: "b@x.com"})
	})
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-done)
}

func TestConsumeIsSingleUse(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.PasswordResetTokens().Create(ctx, &domain.OneTimeToken{
		ID: uuid.New(), UserID: uuid.New(), TokenHash: "h", ExpiresAt: now.Add(time.Hour),
	}))

	_, err := s.PasswordResetTokens().Consume(ctx, "h", now)
	require.NoError(t, err)
	_, err = s.PasswordResetTokens().Consume(ctx, "h", now)
	assert.ErrorIs(t, err, domain.ErrTokenConsumed)
	_, err = s.PasswordResetTokens().Consume(ctx, "missing", now)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRevokeHasSingleWinner(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.RefreshTokens().Create(ctx, &domain.RefreshToken{
		ID: uuid.New(), UserID: uuid.New(), TokenHash: "r", ExpiresAt: now.Add(time.Hour),
	}))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.RefreshTokens().Revoke(ctx, "r", now); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestPurgeRemovesOnlyDeadTokens(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	user := uuid.New()

	for hash, tok := range map[string]domain.OneTimeToken{
		"live":    {ExpiresAt: now.Add(time.Hour)},
		"used":    {ExpiresAt: now.Add(time.Hour), Used: true},
		"expired": {ExpiresAt: now.Add(-time.Minute)},
	} {
		tok.ID, tok.UserID, tok.TokenHash = uuid.New(), user, hash
		require.NoError(t, s.PasswordResetTokens().Create(ctx, &tok))
	}

	n, err := domain.NewPurger(s).PurgePasswordResetTokens(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, 1, s.PasswordResetTokenCount())
}
