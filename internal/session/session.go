// Package session keeps per-conversation state between requests.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/spherical-ai/spherical/libs/grounding-engine/internal/conversation"
)

var (
	// ErrNotFound is returned for unknown or expired sessions.
	ErrNotFound = errors.New("session not found")
	// ErrLocked is returned when another request holds the session lock.
	ErrLocked = errors.New("session is locked")
)

// Session is one conversation.
type Session struct {
	ID           string              `json:"id"`
	CreatedAt    time.Time           `json:"created_at"`
	LastActivity time.Time           `json:"last_activity"`
	State        *conversation.State `json:"state"`
}

// Unlock releases a session lock.
type Unlock func(ctx context.Context) error

// Lease is a session lock held by one request.
type Lease interface {
	// Refresh moves the expiry to ttl from now. It returns ErrLocked once
	// the lease has expired and been taken by someone else.
	Refresh(ctx context.Context, ttl time.Duration) error
	// Release frees the lock if this lease still holds it.
	Release(ctx context.Context) error
}

// Store persists sessions. Implementations expire a session timeout after
// its LastActivity.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	// Save creates or replaces s and restarts its expiry.
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Session, error)
	// TryLock takes the session lock without waiting. It returns ErrLocked
	// when the lock is held.
	TryLock(ctx context.Context, id string, ttl time.Duration) (Lease, error)
	Close() error
}
