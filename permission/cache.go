package permission

import (
	"context"
	"errors"
	"sync"
	"time"
)

const defaultCacheTTL = 30 * time.Second

type cacheEntry struct {
	role      *Role
	expiresAt time.Time
}

// CachedRegistry is a read-through TTL cache in front of another [Registry].
//
// Only successful lookups are cached. A role edit becomes visible after at most one TTL,
// or immediately when the writer calls [CachedRegistry.Invalidate].
type CachedRegistry struct {
	next Registry
	ttl  time.Duration
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewCachedRegistry wraps next. A non-positive ttl selects 30 seconds.
func NewCachedRegistry(next Registry, ttl time.Duration) *CachedRegistry {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedRegistry{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// WithClock overrides the time source. Intended for tests.
func (c *CachedRegistry) WithClock(now func() time.Time) *CachedRegistry {
	if now != nil {
		c.now = now
	}
	return c
}

// FindRoleByName implements [Registry].
func (c *CachedRegistry) FindRoleByName(ctx context.Context, name string) (*Role, error) {
	if c == nil || c.next == nil {
		return nil, errors.New("nil registry")
	}

	now := c.now()
	c.mu.RLock()
	entry, ok := c.entries[name]
	c.mu.RUnlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.role.Clone(), nil
	}

	role, err := c.next.FindRoleByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			c.Invalidate(name)
		}
		return nil, err
	}

	c.mu.Lock()
	c.entries[name] = cacheEntry{role: role.Clone(), expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()

	return role, nil
}

// Invalidate drops the cached entry for name.
func (c *CachedRegistry) Invalidate(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
}

// InvalidateAll drops every cached entry.
func (c *CachedRegistry) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
