package auth

import (
	"errors"
	"time"
)

// Identity is the principal the identity provider reports for a session.
// Ownership stays with the provider; callers only hold a snapshot.
type Identity struct {
	ID        string    // stable unique identifier
	Email     string    // contact attribute
	Name      string    // optional display name
	CreatedAt time.Time // zero when the provider does not report it
}

// ExternalIdentity represents a normalized external authentication identity
// returned by an OAuth provider. It contains facts only, no decisions.
type ExternalIdentity struct {
	Provider       string // e.g. "google", "keycloak"
	ProviderUserID string // provider-scoped unique user identifier (sub)
	Email          string // verified email returned by provider
	EmailVerified  bool   // whether provider asserts email ownership
	Name           string
}

var (
	// ErrIdentityUnavailable covers every reason a principal could not be
	// produced: no session, expiry, transport failure, malformed response.
	ErrIdentityUnavailable = errors.New("identity unavailable")

	// ErrRevocationFailed is returned when the provider could not revoke
	// the sessions of a principal.
	ErrRevocationFailed = errors.New("session revocation failed")
)
