package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrInvalidCredentials = errors.New("invalid login credentials")
)

// Session is the administrator context acquired at sign-in. Admin
// operations take it explicitly.
type Session struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the session can still authorize a mutation at now.
func (s Session) Valid(now time.Time) bool {
	return s.Token != "" && now.Before(s.ExpiresAt)
}

// SessionStore persists sessions until they expire or are revoked.
type SessionStore interface {
	Save(ctx context.Context, s Session) error
	Get(ctx context.Context, token string) (Session, error)
	Delete(ctx context.Context, token string) error
}
