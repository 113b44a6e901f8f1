package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmID  = "argon2id"
	minPassBytes = 8
)

// Cost floors accepted by NewArgon2 and by decoded hashes.
const (
	MinMemoryKB    uint32 = 8 * 1024
	MinTime        uint32 = 1
	MinParallelism uint8  = 1
	MinSaltLength  uint32 = 16
	MinKeyLength   uint32 = 16
)

// DefaultMaxPasswordBytes bounds the work an oversized password can force.
const DefaultMaxPasswordBytes = 1024

var errMalformedHash = errors.New("malformed argon2id hash")

// Config holds argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// MaxPasswordBytes caps input length; zero means DefaultMaxPasswordBytes.
	MaxPasswordBytes int
}

func (c Config) validate() error {
	switch {
	case c.Memory < MinMemoryKB:
		return fmt.Errorf("password memory must be >= %d KiB", MinMemoryKB)
	case c.Time < MinTime:
		return fmt.Errorf("password time must be >= %d", MinTime)
	case c.Parallelism < MinParallelism:
		return fmt.Errorf("password parallelism must be >= %d", MinParallelism)
	case c.SaltLength < MinSaltLength:
		return fmt.Errorf("password salt length must be >= %d", MinSaltLength)
	case c.KeyLength < MinKeyLength:
		return fmt.Errorf("password key length must be >= %d", MinKeyLength)
	}
	return nil
}

// phc is a decoded $argon2id$v=19$m=..,t=..,p=..$salt$key string.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p phc) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		p.memory, p.time, p.parallelism,
		base64.StdEncoding.EncodeToString(p.salt),
		base64.StdEncoding.EncodeToString(p.key),
	)
}

func (p phc) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, keyLen)
}

func decodePHC(encoded string) (phc, error) {
	var p phc

	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != algorithmID {
		return p, errMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return p, errMalformedHash
	}
	if version != argon2.Version {
		return p, fmt.Errorf("unsupported argon2 version %d", version)
	}

	if n, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.parallelism); err != nil || n != 3 {
		return p, errMalformedHash
	}
	if p.memory < MinMemoryKB || p.time < MinTime || p.parallelism < MinParallelism {
		return p, errMalformedHash
	}

	var err error
	if p.salt, err = base64.StdEncoding.DecodeString(fields[4]); err != nil || len(p.salt) < int(MinSaltLength) {
		return p, errMalformedHash
	}
	if p.key, err = base64.StdEncoding.DecodeString(fields[5]); err != nil || len(p.key) == 0 {
		return p, errMalformedHash
	}
	return p, nil
}

// Argon2 hashes passwords into PHC strings. The raw password bytes are used
// as given, with no Unicode normalization.
type Argon2 struct {
	config Config
}

// NewArgon2 validates cfg against the cost floors.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes <= 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{config: cfg}, nil
}

// Hash derives a new salted hash.
func (a *Argon2) Hash(password string) (string, error) {
	switch {
	case len(password) < minPassBytes:
		return "", ErrPasswordTooShort
	case len(password) > a.config.MaxPasswordBytes:
		return "", ErrPasswordTooLong
	}

	p := phc{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        make([]byte, a.config.SaltLength),
	}
	if _, err := rand.Read(p.salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	p.key = p.derive(password, a.config.KeyLength)
	return p.String(), nil
}

// Verify compares in constant time using the parameters embedded in encodedHash.
func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	if len(password) > a.config.MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}
	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(p.derive(password, uint32(len(p.key))), p.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash was produced with weaker
// parameters than the current configuration.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	p, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return p.memory < a.config.Memory ||
		p.time < a.config.Time ||
		p.parallelism < a.config.Parallelism ||
		uint32(len(p.key)) != a.config.KeyLength, nil
}
