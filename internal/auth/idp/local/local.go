// Package local implements idp.Provider over the sessions the application
// issues itself after an OAuth or password sign-in.
package local

import (
	"context"
	"errors"
	"fmt"
	"time"

	"horizon-web/internal/auth"
	"horizon-web/internal/session"
)

// Provider resolves session ids against a session.Store.
type Provider struct {
	store session.Store
	now   func() time.Time
}

// New creates a provider backed by store.
func New(store session.Store) *Provider {
	return &Provider{store: store, now: time.Now}
}

// QueryCurrentPrincipal loads the session. The store is the source of truth,
// so bypassCache has nothing to bypass.
func (p *Provider) QueryCurrentPrincipal(ctx context.Context, token string, _ bool) (*auth.Identity, error) {
	sess, err := p.load(ctx, token)
	if err != nil {
		return nil, err
	}

	return &auth.Identity{
		ID:        sess.UserID,
		Email:     sess.Email,
		Name:      sess.Name,
		CreatedAt: sess.CreatedAt,
	}, nil
}

// RevokeAllSessions deletes every session of the user owning token.
func (p *Provider) RevokeAllSessions(ctx context.Context, token string) error {
	sess, err := p.load(ctx, token)
	if err != nil {
		return fmt.Errorf("%w: %w", auth.ErrRevocationFailed, err)
	}

	if err := p.store.DeleteAllForUser(ctx, sess.UserID); err != nil {
		return fmt.Errorf("%w: %w", auth.ErrRevocationFailed, err)
	}
	return nil
}

func (p *Provider) load(ctx context.Context, token string) (*session.Session, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty session token", auth.ErrIdentityUnavailable)
	}

	sess, err := p.store.Get(ctx, token)
	if errors.Is(err, session.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", auth.ErrIdentityUnavailable, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: session store: %w", auth.ErrIdentityUnavailable, err)
	}

	// the store's TTL removes the record
	if sess.Expired(p.now()) {
		return nil, fmt.Errorf("%w: session expired", auth.ErrIdentityUnavailable)
	}

	return sess, nil
}
