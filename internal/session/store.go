package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no live session exists for the id.
var ErrNotFound = errors.New("session: not found")

// Session represents a session created by the application's own sign-in
// flows. It stores only identity pointers, not auth state.
type Session struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"` // absolute expiry time
}

// Expired reports whether the session is past its absolute expiry.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store defines how sessions are stored and retrieved.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Update(ctx context.Context, s Session) error
	Delete(ctx context.Context, sessionID string) error
	// DeleteAllForUser removes every session of userID.
	DeleteAllForUser(ctx context.Context, userID string) error
}
