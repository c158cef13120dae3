package idp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"horizon-web/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider implements Provider for testing.
type fakeProvider struct {
	identities map[string]auth.Identity
	queries    int
	bypassed   []bool
	revokeErr  error
	revoked    []string
}

func (f *fakeProvider) QueryCurrentPrincipal(_ context.Context, token string, bypassCache bool) (*auth.Identity, error) {
	f.queries++
	f.bypassed = append(f.bypassed, bypassCache)
	id, ok := f.identities[token]
	if !ok {
		return nil, fmt.Errorf("%w: unknown token", auth.ErrIdentityUnavailable)
	}
	return &id, nil
}

func (f *fakeProvider) RevokeAllSessions(_ context.Context, token string) error {
	f.revoked = append(f.revoked, token)
	return f.revokeErr
}

func TestCachedProvider_CacheHit(t *testing.T) {
	next := &fakeProvider{identities: map[string]auth.Identity{
		"tok-1": {ID: "u1", Email: "a@example.com"},
	}}
	c := NewCachedProvider(next, time.Minute)

	first, err := c.QueryCurrentPrincipal(context.Background(), "tok-1", false)
	require.NoError(t, err)
	second, err := c.QueryCurrentPrincipal(context.Background(), "tok-1", false)
	require.NoError(t, err)

	assert.Equal(t, "u1", first.ID)
	assert.Equal(t, "u1", second.ID)
	assert.Equal(t, 1, next.queries)
}

func TestCachedProvider_BypassCache(t *testing.T) {
	next := &fakeProvider{identities: map[string]auth.Identity{
		"tok-1": {ID: "u1"},
	}}
	c := NewCachedProvider(next, time.Minute)

	_, err := c.QueryCurrentPrincipal(context.Background(), "tok-1", false)
	require.NoError(t, err)
	_, err = c.QueryCurrentPrincipal(context.Background(), "tok-1", true)
	require.NoError(t, err)

	assert.Equal(t, 2, next.queries)
	assert.Equal(t, []bool{false, true}, next.bypassed)
}

func TestCachedProvider_Expiration(t *testing.T) {
	next := &fakeProvider{identities: map[string]auth.Identity{
		"tok-1": {ID: "u1"},
	}}
	c := NewCachedProvider(next, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	_, err := c.QueryCurrentPrincipal(context.Background(), "tok-1", false)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = c.QueryCurrentPrincipal(context.Background(), "tok-1", false)
	require.NoError(t, err)

	assert.Equal(t, 2, next.queries)
}

func TestCachedProvider_ErrorIsNotCached(t *testing.T) {
	next := &fakeProvider{identities: map[string]auth.Identity{}}
	c := NewCachedProvider(next, time.Minute)

	id, err := c.QueryCurrentPrincipal(context.Background(), "missing", false)
	assert.Nil(t, id)
	assert.True(t, errors.Is(err, auth.ErrIdentityUnavailable))

	_, _ = c.QueryCurrentPrincipal(context.Background(), "missing", false)
	assert.Equal(t, 2, next.queries)
}

func TestCachedProvider_RevokeEvictsAllTokensOfPrincipal(t *testing.T) {
	next := &fakeProvider{
		identities: map[string]auth.Identity{
			"tok-a": {ID: "u1"},
			"tok-b": {ID: "u1"},
			"tok-c": {ID: "u2"},
		},
		revokeErr: auth.ErrRevocationFailed,
	}
	c := NewCachedProvider(next, time.Minute)
	for _, tok := range []string{"tok-a", "tok-b", "tok-c"} {
		_, err := c.QueryCurrentPrincipal(context.Background(), tok, false)
		require.NoError(t, err)
	}

	err := c.RevokeAllSessions(context.Background(), "tok-a")
	assert.True(t, errors.Is(err, auth.ErrRevocationFailed))
	assert.Equal(t, []string{"tok-a"}, next.revoked)

	_, ok := c.get("tok-a")
	assert.False(t, ok)
	_, ok = c.get("tok-b")
	assert.False(t, ok)
	_, ok = c.get("tok-c")
	assert.True(t, ok)
}

func TestCachedProvider_Cleanup(t *testing.T) {
	next := &fakeProvider{identities: map[string]auth.Identity{"tok-1": {ID: "u1"}}}
	c := NewCachedProvider(next, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	_, err := c.QueryCurrentPrincipal(context.Background(), "tok-1", false)
	require.NoError(t, err)

	now = now.Add(time.Hour)
	c.Cleanup()

	c.mu.RLock()
	defer c.mu.RUnlock()
	assert.Empty(t, c.entries)
}

// blockingProvider holds every lookup until release is closed.
type blockingProvider struct {
	mu      sync.Mutex
	queries int
	started chan struct{}
	release chan struct{}
}

func newBlockingProvider() *blockingProvider {
	return &blockingProvider{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (b *blockingProvider) QueryCurrentPrincipal(_ context.Context, token string, _ bool) (*auth.Identity, error) {
	b.mu.Lock()
	b.queries++
	b.mu.Unlock()
	b.started <- struct{}{}
	<-b.release
	return &auth.Identity{ID: "u-" + token}, nil
}

func (b *blockingProvider) RevokeAllSessions(context.Context, string) error { return nil }

func (b *blockingProvider) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queries
}

func TestCachedProvider_ConcurrentMissesShareOneLookup(t *testing.T) {
	next := newBlockingProvider()
	c := NewCachedProvider(next, time.Minute)

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := c.QueryCurrentPrincipal(context.Background(), "tok-1", false)
			if err == nil {
				results[i] = id.ID
			}
		}(i)
	}

	<-next.started
	// give the other callers time to join the flight
	time.Sleep(20 * time.Millisecond)
	close(next.release)
	wg.Wait()

	assert.Equal(t, 1, next.count())
	for _, r := range results {
		assert.Equal(t, "u-tok-1", r)
	}
}

func TestCachedProvider_CallerCancelDoesNotFailOthers(t *testing.T) {
	next := newBlockingProvider()
	c := NewCachedProvider(next, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.QueryCurrentPrincipal(ctx, "tok-1", false)
		errCh <- err
	}()
	<-next.started
	cancel()
	assert.ErrorIs(t, <-errCh, auth.ErrIdentityUnavailable)

	close(next.release)
	id, err := c.QueryCurrentPrincipal(context.Background(), "tok-1", false)
	require.NoError(t, err)
	assert.Equal(t, "u-tok-1", id.ID)
}

func TestCachedProvider_RevokeDuringLookupIsNotCached(t *testing.T) {
	next := newBlockingProvider()
	c := NewCachedProvider(next, time.Minute)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.QueryCurrentPrincipal(context.Background(), "tok-1", false)
	}()
	<-next.started

	require.NoError(t, c.RevokeAllSessions(context.Background(), "tok-1"))
	close(next.release)
	<-done

	_, cached := c.get("tok-1")
	assert.False(t, cached)
}

// brokenProvider returns a nil principal without an error, or panics.
type brokenProvider struct {
	principal *auth.Identity
	panics    bool
}

func (b brokenProvider) QueryCurrentPrincipal(context.Context, string, bool) (*auth.Identity, error) {
	if b.panics {
		panic("provider exploded")
	}
	return b.principal, nil
}

func (brokenProvider) RevokeAllSessions(context.Context, string) error { return nil }

func TestCachedProvider_UnusablePrincipal(t *testing.T) {
	tests := []struct {
		name string
		next brokenProvider
	}{
		{"nil principal", brokenProvider{}},
		{"empty id", brokenProvider{principal: &auth.Identity{Email: "a@example.com"}}},
		{"panic", brokenProvider{panics: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCachedProvider(tt.next, time.Minute)

			id, err := c.QueryCurrentPrincipal(context.Background(), "tok-1", false)

			assert.Nil(t, id)
			assert.ErrorIs(t, err, auth.ErrIdentityUnavailable)
			_, cached := c.get("tok-1")
			assert.False(t, cached)
		})
	}
}
