// Package memory is a process-local domain.Store used by tests and the demo
// server. It honors the same single-use and rotation guarantees as the
// Postgres store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ansyfirmansyah/libauth/domain"
)

// Store keeps every entity in maps guarded by one mutex. The mutex is held
// only for the duration of a single repository call. A failed transaction
// reverts just the keys it wrote, and only where no later write replaced
// them. The audit log is append-only and is never rolled back.
type Store struct {
	mu sync.Mutex

	users   map[uuid.UUID]domain.User
	verify  map[string]domain.OneTimeToken
	reset   map[string]domain.OneTimeToken
	refresh map[string]domain.RefreshToken
	audit   []domain.AuditRecord
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		users:   make(map[uuid.UUID]domain.User),
		verify:  make(map[string]domain.OneTimeToken),
		reset:   make(map[string]domain.OneTimeToken),
		refresh: make(map[string]domain.RefreshToken),
	}
}

func (s *Store) Users() domain.UserRepository { return repos{s: s}.Users() }
func (s *Store) VerificationTokens() domain.OneTimeTokenRepository {
	return repos{s: s}.VerificationTokens()
}
func (s *Store) PasswordResetTokens() domain.OneTimeTokenRepository {
	return repos{s: s}.PasswordResetTokens()
}
func (s *Store) RefreshTokens() domain.RefreshTokenRepository { return repos{s: s}.RefreshTokens() }
func (s *Store) Audit() domain.AuditRepository                { return repos{s: s}.Audit() }

// WithTx runs fn against repositories that journal their writes. When fn
// fails the journal is replayed backwards.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx domain.Repositories) error) error {
	log := &undoLog{}
	if err := fn(ctx, repos{s: s, undo: log}); err != nil {
		s.mu.Lock()
		log.revert()
		s.mu.Unlock()
		return err
	}
	return nil
}

// repos is the Repositories view handed out by Store and WithTx. undo is
// nil outside a transaction.
type repos struct {
	s    *Store
	undo *undoLog
}

func (r repos) Users() domain.UserRepository { return users{r} }
func (r repos) VerificationTokens() domain.OneTimeTokenRepository {
	return oneTime{repos: r, verify: true}
}
func (r repos) PasswordResetTokens() domain.OneTimeTokenRepository {
	return oneTime{repos: r}
}
func (r repos) RefreshTokens() domain.RefreshTokenRepository { return refreshTokens{r} }
func (r repos) Audit() domain.AuditRepository                { return auditLog{r} }

// undoLog records how to revert each write of one transaction. Entries are
// appended and replayed with Store.mu held.
type undoLog struct {
	steps []func()
}

func (l *undoLog) revert() {
	for i := len(l.steps) - 1; i >= 0; i-- {
		l.steps[i]()
	}
	l.steps = nil
}

// put stores v under k and, inside a transaction, journals the previous
// state. The revert is skipped when k no longer holds v.
func put[K comparable, V comparable](l *undoLog, m map[K]V, k K, v V) {
	prev, had := m[k]
	m[k] = v
	if l == nil {
		return
	}
	l.steps = append(l.steps, func() {
		if cur, ok := m[k]; !ok || cur != v {
			return
		}
		if had {
			m[k] = prev
		} else {
			delete(m, k)
		}
	})
}

// remove deletes k and, inside a transaction, journals the removed value.
// The revert is skipped when k was written again since.
func remove[K comparable, V any](l *undoLog, m map[K]V, k K) {
	prev, had := m[k]
	if !had {
		return
	}
	delete(m, k)
	if l == nil {
		return
	}
	l.steps = append(l.steps, func() {
		if _, ok := m[k]; !ok {
			m[k] = prev
		}
	})
}

// AuditRecords returns a copy of the audit log.
func (s *Store) AuditRecords() []domain.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditRecord, len(s.audit))
	copy(out, s.audit)
	return out
}

// VerificationTokensFor returns the verification tokens owned by userID.
func (s *Store) VerificationTokensFor(userID uuid.UUID) []domain.OneTimeToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tokensFor(s.verify, userID)
}

// PasswordResetTokensFor returns the reset tokens owned by userID.
func (s *Store) PasswordResetTokensFor(userID uuid.UUID) []domain.OneTimeToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tokensFor(s.reset, userID)
}

// PasswordResetTokenCount returns the number of stored reset tokens.
func (s *Store) PasswordResetTokenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reset)
}

func tokensFor(m map[string]domain.OneTimeToken, userID uuid.UUID) []domain.OneTimeToken {
	var out []domain.OneTimeToken
	for _, t := range m {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

type users struct{ repos }

func (r users) Create(_ context.Context, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	email := domain.NormalizeEmail(u.Email)
	for _, existing := range r.s.users {
		if existing.Email == email {
			return domain.ErrDuplicate
		}
	}
	stored := *u
	stored.Email = email
	put(r.undo, r.s.users, u.ID, stored)
	return nil
}

func (r users) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (r users) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	email = domain.NormalizeEmail(email)
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r users) UpdatePasswordHash(_ context.Context, id uuid.UUID, hash string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = at
	put(r.undo, r.s.users, id, u)
	return nil
}

func (r users) MarkEmailVerified(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.EmailVerified = true
	u.UpdatedAt = at
	put(r.undo, r.s.users, id, u)
	return nil
}

type oneTime struct {
	repos
	verify bool
}

func (r oneTime) table() map[string]domain.OneTimeToken {
	if r.verify {
		return r.s.verify
	}
	return r.s.reset
}

func (r oneTime) Create(_ context.Context, t *domain.OneTimeToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	put(r.undo, r.table(), t.TokenHash, *t)
	return nil
}

func (r oneTime) GetByHash(_ context.Context, tokenHash string) (*domain.OneTimeToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.table()[tokenHash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (r oneTime) Consume(_ context.Context, tokenHash string, now time.Time) (*domain.OneTimeToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.table()[tokenHash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !t.Usable(now) {
		return nil, domain.ErrTokenConsumed
	}
	t.Used = true
	put(r.undo, r.table(), tokenHash, t)
	return &t, nil
}

func (r oneTime) DeleteExpiredOrUsed(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	table := r.table()
	for k, t := range table {
		if t.Used || t.ExpiresAt.Before(now) {
			remove(r.undo, table, k)
			n++
		}
	}
	return n, nil
}

type refreshTokens struct{ repos }

func (r refreshTokens) Create(_ context.Context, t *domain.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	put(r.undo, r.s.refresh, t.TokenHash, *t)
	return nil
}

func (r refreshTokens) GetByHash(_ context.Context, tokenHash string) (*domain.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.refresh[tokenHash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (r refreshTokens) Revoke(_ context.Context, tokenHash string, now time.Time) (*domain.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.refresh[tokenHash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !t.Active(now) {
		return nil, domain.ErrTokenConsumed
	}
	t.Revoked = true
	put(r.undo, r.s.refresh, tokenHash, t)
	return &t, nil
}

func (r refreshTokens) RevokeAllForUser(_ context.Context, userID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for k, t := range r.s.refresh {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			put(r.undo, r.s.refresh, k, t)
			n++
		}
	}
	return n, nil
}

func (r refreshTokens) DeleteExpiredOrRevoked(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for k, t := range r.s.refresh {
		if t.Revoked || t.ExpiresAt.Before(now) {
			remove(r.undo, r.s.refresh, k)
			n++
		}
	}
	return n, nil
}

type auditLog struct{ repos }

func (r auditLog) Append(_ context.Context, rec *domain.AuditRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audit = append(r.s.audit, *rec)
	return nil
}

func (r auditLog) CountByIPSince(_ context.Context, ip string, activity domain.ActivityType, since time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, rec := range r.s.audit {
		if rec.IPAddress == ip && rec.ActivityType == activity && rec.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}
