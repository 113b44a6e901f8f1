package libauth

import (
	"errors"
	"net/http"
)

// Kind classifies an Engine failure for callers and transports.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindRateLimited
	KindUnauthorized
	KindInvalidArgument
	KindConflict
	KindInfrastructure
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindConflict:
		return "conflict"
	case KindInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

var (
	// ErrRateLimited matches every KindRateLimited error.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnauthorized matches every KindUnauthorized error.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidArgument matches every KindInvalidArgument error.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict matches every KindConflict error.
	ErrConflict = errors.New("conflict")
	// ErrInfrastructure matches every KindInfrastructure error.
	ErrInfrastructure = errors.New("infrastructure failure")

	// ErrInvalidCredentials is the internal cause of a failed login with an
	// unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailUnverified is the internal cause of a login by an account that
	// has not verified its email. Callers see the same key as
	// ErrInvalidCredentials.
	ErrEmailUnverified = errors.New("email not verified")
	// ErrEngineNotReady is returned by methods on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not ready")
)

// Error is the error type returned by Engine operations. Key is a stable
// message key resolvable with Message.
type Error struct {
	Kind Kind
	Key  string
	Err  error
}

func newError(kind Kind, key string, cause error) *Error {
	return &Error{Kind: kind, Key: key, Err: cause}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String() + ": " + e.Key
	}
	return e.Kind.String() + ": " + e.Key + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's Kind, so callers can write
// errors.Is(err, libauth.ErrUnauthorized).
func (e *Error) Is(target error) bool {
	return target != nil && target == kindSentinel(e.Kind)
}

func kindSentinel(k Kind) error {
	switch k {
	case KindRateLimited:
		return ErrRateLimited
	case KindUnauthorized:
		return ErrUnauthorized
	case KindInvalidArgument:
		return ErrInvalidArgument
	case KindConflict:
		return ErrConflict
	case KindInfrastructure:
		return ErrInfrastructure
	default:
		return nil
	}
}

// KindOf returns the Kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// KeyOf returns the message key of err, or KeyInternal for foreign errors.
func KeyOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Key != "" {
		return e.Key
	}
	return KeyInternal
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func infraError(cause error) *Error {
	return newError(KindInfrastructure, KeyUnavailable, cause)
}
