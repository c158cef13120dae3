// Package gate decides what a page may show while the identity of the
// visitor is being resolved. Every protected page goes through one
// Controller instead of repeating the session check itself.
package gate

import "horizon-web/internal/auth"

// Status is the resolution status of a view's session.
type Status int

const (
	StatusPending Status = iota
	StatusAuthenticated
	StatusAnonymous
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAuthenticated:
		return "authenticated"
	case StatusAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// State is the session state of a single view. The zero value is Pending.
// An identity is present if and only if the status is Authenticated.
type State struct {
	status   Status
	identity *auth.Identity
}

// Pending is the state of a freshly mounted view.
func Pending() State {
	return State{status: StatusPending}
}

// Anonymous is the state of a view without a valid principal.
func Anonymous() State {
	return State{status: StatusAnonymous}
}

// Authenticated holds a snapshot of id.
func Authenticated(id auth.Identity) State {
	return State{status: StatusAuthenticated, identity: &id}
}

func (s State) Status() Status {
	return s.status
}

// Identity returns a copy of the principal when the state is Authenticated.
func (s State) Identity() (auth.Identity, bool) {
	if s.status != StatusAuthenticated || s.identity == nil {
		return auth.Identity{}, false
	}
	return *s.identity, true
}
