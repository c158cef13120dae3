// Package idp is the boundary with the hosted identity provider. The rest of
// the application asks it who owns a session token and asks it to revoke
// sessions; it never verifies credentials itself.
package idp

import (
	"context"

	"horizon-web/internal/auth"
)

// Provider is the identity provider as seen by the session gate.
type Provider interface {
	// QueryCurrentPrincipal returns the principal that owns token.
	// Implementations may answer from a cache unless bypassCache is set.
	// Every failure wraps auth.ErrIdentityUnavailable.
	QueryCurrentPrincipal(ctx context.Context, token string, bypassCache bool) (*auth.Identity, error)

	// RevokeAllSessions invalidates every session of the principal that owns
	// token, not only token itself. Failures wrap auth.ErrRevocationFailed.
	RevokeAllSessions(ctx context.Context, token string) error
}
