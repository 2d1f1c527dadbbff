// Package rate throttles unauthenticated requests per client key (normally the
// client IP).
//
// [Local] keeps a golang.org/x/time/rate token bucket per key in process memory and
// evicts idle buckets. [Redis] is a fixed-window counter (INCR plus EXPIRE on the
// first hit) shared by every instance pointing at the same Redis.
//
// Throttling is a transport concern. Account lockout is enforced by the engine and
// the account store, not here.
package rate
