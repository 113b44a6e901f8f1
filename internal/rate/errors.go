package rate

import "errors"

var (
	// ErrRateLimited is returned when a key is over its budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps every backend failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
