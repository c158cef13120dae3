package idp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"horizon-web/internal/auth"

	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	identity  auth.Identity
	expiresAt time.Time
}

// CachedProvider answers QueryCurrentPrincipal from an in-memory TTL cache
// keyed by session token and falls through to the wrapped provider on a miss.
// Concurrent misses for one token share a single provider call.
type CachedProvider struct {
	next   Provider
	ttl    time.Duration
	flight singleflight.Group

	mu      sync.RWMutex
	entries map[string]*cacheEntry
	// revocations counts RevokeAllSessions calls; a lookup that started
	// before a revocation must not repopulate the cache.
	revocations uint64
	now         func() time.Time
}

// NewCachedProvider wraps next with a cache whose entries live for ttl.
func NewCachedProvider(next Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		next:    next,
		ttl:     ttl,
		entries: make(map[string]*cacheEntry),
		now:     time.Now,
	}
}

// QueryCurrentPrincipal consults the cache unless bypassCache is set. Both
// paths refresh the entry on success; a failure evicts it.
func (c *CachedProvider) QueryCurrentPrincipal(ctx context.Context, token string, bypassCache bool) (*auth.Identity, error) {
	if !bypassCache {
		if id, ok := c.get(token); ok {
			return id, nil
		}
	}

	c.mu.RLock()
	gen := c.revocations
	c.mu.RUnlock()

	ch := c.flight.DoChan(token, func() (any, error) {
		// detached so one caller going away does not fail the others
		id, err := c.lookup(context.WithoutCancel(ctx), token, bypassCache)
		if err != nil {
			c.evictToken(token)
			return nil, err
		}
		c.setIfNotRevoked(token, id, gen)
		return id, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", auth.ErrIdentityUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		id := res.Val.(auth.Identity)
		return &id, nil
	}
}

// lookup calls the wrapped provider. It runs on the singleflight goroutine,
// so a panic or an unusable principal must become an error here.
func (c *CachedProvider) lookup(ctx context.Context, token string, bypassCache bool) (id auth.Identity, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: panic: %v", auth.ErrIdentityUnavailable, p)
		}
	}()

	principal, err := c.next.QueryCurrentPrincipal(ctx, token, bypassCache)
	if err != nil {
		return auth.Identity{}, err
	}
	if principal == nil || principal.ID == "" {
		return auth.Identity{}, fmt.Errorf("%w: empty principal", auth.ErrIdentityUnavailable)
	}
	return *principal, nil
}

// RevokeAllSessions evicts every cached token of the principal before
// delegating, so a failed revoke never leaves a cached principal behind.
func (c *CachedProvider) RevokeAllSessions(ctx context.Context, token string) error {
	c.mu.Lock()
	c.revocations++
	c.flight.Forget(token)
	if entry, ok := c.entries[token]; ok {
		owner := entry.identity.ID
		for key, e := range c.entries {
			if e.identity.ID == owner {
				delete(c.entries, key)
			}
		}
	}
	delete(c.entries, token)
	c.mu.Unlock()

	return c.next.RevokeAllSessions(ctx, token)
}

// Cleanup removes expired entries.
func (c *CachedProvider) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for token, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, token)
		}
	}
}

// Run calls Cleanup every interval until ctx is done.
func (c *CachedProvider) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}

func (c *CachedProvider) get(token string) (*auth.Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, found := c.entries[token]
	if !found || c.now().After(entry.expiresAt) {
		return nil, false
	}
	id := entry.identity
	return &id, true
}

func (c *CachedProvider) setIfNotRevoked(token string, id auth.Identity, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.revocations != gen {
		return
	}
	c.entries[token] = &cacheEntry{
		identity:  id,
		expiresAt: c.now().Add(c.ttl),
	}
}

func (c *CachedProvider) evictToken(token string) {
	c.mu.Lock()
	delete(c.entries, token)
	c.mu.Unlock()
}
