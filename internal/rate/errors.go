package rate

import "errors"

var (
	// ErrRateLimited is returned when key exhausted its budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis failures in the shared limiter.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
