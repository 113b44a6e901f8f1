package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

const opaqueTokenSize = 32

// NewOpaqueToken returns a base64url token carrying 32 random bytes and the
// digest under which it is persisted.
func NewOpaqueToken() (token, digest string, err error) {
	var raw [opaqueTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(raw[:])
	return token, HashToken(token), nil
}

// HashToken is the lowercase hex SHA-256 of the token text. Lookups of
// verification, reset and refresh tokens always go through this digest.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// WellFormedToken reports whether token decodes to exactly 32 bytes.
// Rejecting malformed input early avoids a database round trip.
func WellFormedToken(token string) bool {
	if len(token) != base64.RawURLEncoding.EncodedLen(opaqueTokenSize) {
		return false
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil && len(raw) == opaqueTokenSize
}

// ErrMalformedToken is returned for tokens that fail WellFormedToken.
var ErrMalformedToken = errors.New("malformed token")
