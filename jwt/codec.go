package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const minSecretBytes = 32

var (
	// ErrInvalidToken is the parent of every verification failure.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidSignature is returned when the MAC does not match or the
	// token uses an unexpected algorithm.
	ErrInvalidSignature = fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
	// ErrExpired is returned when exp is in the past.
	ErrExpired = fmt.Errorf("%w: expired", ErrInvalidToken)
	// ErrMalformed is returned for structurally broken tokens or missing claims.
	ErrMalformed = fmt.Errorf("%w: malformed", ErrInvalidToken)
)

// Config configures a Codec. Secret is copied at construction.
type Config struct {
	Secret []byte
	Issuer string
	Leeway time.Duration
	// Now overrides the clock used for issuance checks and verification.
	Now func() time.Time
}

// Codec issues and verifies HS256 access tokens. It is immutable after
// construction and safe for concurrent use.
type Codec struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// Claims are the identity claims carried by an access token.
type Claims struct {
	UID  string `json:"uid"`
	Role string `json:"role"`
	SID  string `json:"sid"`
	jwt.RegisteredClaims
}

// NewCodec validates cfg and returns a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minSecretBytes)
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &Codec{
		secret: secret,
		issuer: strings.TrimSpace(cfg.Issuer),
		leeway: cfg.Leeway,
		now:    now,
	}, nil
}

// Issue signs a token for the subject. expiresAt must be after issuedAt.
func (c *Codec) Issue(subjectID, role, sessionID string, issuedAt, expiresAt time.Time) (string, error) {
	if subjectID == "" || sessionID == "" {
		return "", errors.New("subject and session id are required")
	}
	if !expiresAt.After(issuedAt) {
		return "", errors.New("expiry must be after issued-at")
	}

	claims := Claims{
		UID:  subjectID,
		Role: role,
		SID:  sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify checks signature, structure and expiry.
func (c *Codec) Verify(token string) (*Claims, error) {
	return c.parse(token, true)
}

// VerifySignature checks the signature and structure but accepts expired
// tokens. Use it only to identify the session behind a token that is being
// replaced, never to authorize a request.
func (c *Codec) VerifySignature(token string) (*Claims, error) {
	return c.parse(token, false)
}

func (c *Codec) parse(token string, validateClaims bool) (*Claims, error) {
	if token == "" {
		return nil, ErrMalformed
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	}
	if validateClaims {
		options = append(options, jwt.WithExpirationRequired())
		if c.leeway > 0 {
			options = append(options, jwt.WithLeeway(c.leeway))
		}
		if c.issuer != "" {
			options = append(options, jwt.WithIssuer(c.issuer))
		}
	} else {
		options = append(options, jwt.WithoutClaimsValidation())
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}
	if claims.UID == "" || claims.SID == "" || claims.ExpiresAt == nil {
		return nil, ErrMalformed
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
