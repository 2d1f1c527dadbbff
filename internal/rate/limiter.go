package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	xrate "golang.org/x/time/rate"
)

// Limiter admits or rejects one request for key.
type Limiter interface {
	Allow(ctx context.Context, key string) error
}

// Config sizes a limiter. Local refills at PerSecond with Burst capacity; Redis
// allows Burst requests per Window.
type Config struct {
	PerSecond float64
	Burst     int
	Window    time.Duration
	// IdleTTL is how long an untouched Local bucket is kept.
	IdleTTL time.Duration
}

// DefaultConfig allows short bursts of ten with a steady one request per second.
func DefaultConfig() Config {
	return Config{
		PerSecond: 1,
		Burst:     10,
		Window:    time.Minute,
		IdleTTL:   10 * time.Minute,
	}
}

/*
====================================
IN-PROCESS TOKEN BUCKETS
====================================
*/

type bucket struct {
	limiter  *xrate.Limiter
	lastSeen time.Time
}

// Local is an in-process per-key token bucket limiter.
type Local struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	config  Config
	now     func() time.Time
	sweepAt time.Time
}

var _ Limiter = (*Local)(nil)

// NewLocal creates an in-process limiter.
func NewLocal(cfg Config) *Local {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultConfig().IdleTTL
	}
	return &Local{
		buckets: make(map[string]*bucket),
		config:  cfg,
		now:     time.Now,
	}
}

// Allow consumes one token for key.
func (l *Local) Allow(_ context.Context, key string) error {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.sweepAt) {
		l.sweep(now)
		l.sweepAt = now.Add(l.config.IdleTTL)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: xrate.NewLimiter(xrate.Limit(l.config.PerSecond), l.config.Burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	if !b.limiter.AllowN(now, 1) {
		return ErrRateLimited
	}
	return nil
}

// Len returns the number of tracked keys.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Local) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.config.IdleTTL {
			delete(l.buckets, key)
		}
	}
}

/*
====================================
SHARED FIXED WINDOW
====================================
*/

// Redis is a fixed-window counter shared through Redis.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
	config Config
}

var _ Limiter = (*Redis)(nil)

// NewRedis creates a shared limiter. Keys are stored as <prefix>:<key>.
func NewRedis(redisClient redis.UniversalClient, prefix string, cfg Config) *Redis {
	if prefix == "" {
		prefix = "gogate:rl"
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	return &Redis{redis: redisClient, prefix: prefix, config: cfg}
}

// Allow counts one request in the current window for key.
func (l *Redis) Allow(ctx context.Context, key string) error {
	count, err := l.incrementWithTTL(ctx, l.prefix+":"+key, l.config.Window)
	if err != nil {
		return err
	}
	if count > int64(l.config.Burst) {
		return ErrRateLimited
	}
	return nil
}

func (l *Redis) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// TTL is set on the first hit only.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
