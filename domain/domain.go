// Package domain holds the persistent entities of the authentication core and
// the repository contracts that storage backends implement.
//
// Entities reference each other by id only. Relationship traversal is always
// an explicit repository call.
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by repositories when no row matches.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique constraint (user email) is violated.
	ErrDuplicate = errors.New("duplicate")
	// ErrTokenConsumed is returned when a single-use token was already used,
	// revoked or is past its expiry.
	ErrTokenConsumed = errors.New("token already consumed or expired")
)

// Role is the authorization role carried in access tokens.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ParseRole maps a claim value back to a Role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	return r, r.Valid()
}

// User is a registered account.
type User struct {
	ID            uuid.UUID
	Email         string
	PasswordHash  string
	Role          Role
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NormalizeEmail is the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// OneTimeToken is the shared shape of verification and password-reset tokens.
// Only the SHA-256 digest of the token value is stored.
type OneTimeToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// Usable reports whether the token can still be consumed at now.
func (t *OneTimeToken) Usable(now time.Time) bool {
	return t != nil && !t.Used && now.Before(t.ExpiresAt)
}

// VerificationToken confirms ownership of an email address.
type VerificationToken = OneTimeToken

// PasswordResetToken authorizes a single password change.
type PasswordResetToken = OneTimeToken

// RefreshToken allows a client to obtain a new access token.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// Active reports whether the refresh token may be rotated at now.
func (t *RefreshToken) Active(now time.Time) bool {
	return t != nil && !t.Revoked && now.Before(t.ExpiresAt)
}

// ActivityType classifies audit records.
type ActivityType string

const (
	ActivityRegister       ActivityType = "REGISTER"
	ActivityVerifyEmail    ActivityType = "VERIFY EMAIL"
	ActivityLogin          ActivityType = "LOGIN"
	ActivityRefresh        ActivityType = "REFRESH"
	ActivityLogout         ActivityType = "LOGOUT"
	ActivityForgotPassword ActivityType = "FORGOT PASSWORD"
	ActivityResetPassword  ActivityType = "RESET PASSWORD"
)

// AuditRecord is an append-only account activity entry.
type AuditRecord struct {
	ID           uuid.UUID
	UserID       *uuid.UUID
	Email        *string
	ActivityType ActivityType
	Success      bool
	IPAddress    string
	UserAgent    string
	CreatedAt    time.Time
}
