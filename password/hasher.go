package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordTooShort is returned by Hash for passwords under 8 bytes.
var ErrPasswordTooShort = errors.New("password must be at least 8 bytes")

// ErrPasswordTooLong is returned when the input exceeds MaxPasswordBytes.
var ErrPasswordTooLong = errors.New("password exceeds maximum length")

// ErrUnsupportedHash is returned for stored hashes in an unknown format.
var ErrUnsupportedHash = errors.New("unsupported password hash format")

// Hasher hashes with argon2id and verifies argon2id or bcrypt hashes.
type Hasher struct {
	argon *Argon2
	dummy string
}

// NewHasher builds a Hasher. It precomputes a throwaway hash used by
// VerifyDummy so that lookups of unknown accounts cost the same as real ones.
func NewHasher(cfg Config) (*Hasher, error) {
	argon, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	dummy, err := argon.Hash("dummy-password-never-matches")
	if err != nil {
		return nil, err
	}
	return &Hasher{argon: argon, dummy: dummy}, nil
}

// Hash produces an argon2id PHC string.
func (h *Hasher) Hash(password string) (string, error) {
	return h.argon.Hash(password)
}

// Verify reports whether password matches encodedHash.
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	switch {
	case isBcrypt(encodedHash):
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, err
	case strings.HasPrefix(encodedHash, "$"+algorithmID+"$"):
		return h.argon.Verify(password, encodedHash)
	default:
		return false, ErrUnsupportedHash
	}
}

// VerifyDummy burns one verification against a fixed hash.
func (h *Hasher) VerifyDummy(password string) {
	_, _ = h.argon.Verify(password, h.dummy)
}

// NeedsUpgrade reports whether encodedHash should be replaced by a fresh
// argon2id hash with the current parameters.
func (h *Hasher) NeedsUpgrade(encodedHash string) bool {
	if isBcrypt(encodedHash) {
		return true
	}
	upgrade, err := h.argon.NeedsUpgrade(encodedHash)
	return err == nil && upgrade
}

// HashBcrypt produces a bcrypt hash. It exists for seeding fixtures that must
// be readable by other bcrypt-based services.
func HashBcrypt(password string, cost int) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func isBcrypt(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2a$") ||
		strings.HasPrefix(encodedHash, "$2b$") ||
		strings.HasPrefix(encodedHash, "$2y$")
}
