package proposta

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuthState is the orchestrator's per-instance login state
type AuthState string

const (
	// StateUnknown is the initial state, before the first session fetch
	StateUnknown AuthState = "unknown"
	// StateAnonymous means no active session
	StateAnonymous AuthState = "anonymous"
	// StateAuthenticating means a sign-in or sign-up call is in flight
	StateAuthenticating AuthState = "authenticating"
	// StatePendingApproval means a valid session whose profile awaits approval
	StatePendingApproval AuthState = "pending_approval"
	// StateApproved means a valid session with an approved profile
	StateApproved AuthState = "approved"
)

// Session is a read-only cached copy of the provider session: an opaque
// token plus the derived current user. It is replaced, never merged.
type Session struct {
	Token     string         `json:"token,omitempty"`
	UserID    uuid.UUID      `json:"user_id,omitempty"`
	Email     string         `json:"email,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	IssuedAt  time.Time      `json:"issued_at,omitempty"`
	ExpiresAt time.Time      `json:"expires_at,omitempty"`
}

// GetUserID returns the session user id as string
func (s *Session) GetUserID() string {
	if s == nil {
		return ""
	}
	return s.UserID.String()
}

// GetEmail returns the session email
func (s *Session) GetEmail() string {
	if s == nil {
		return ""
	}
	return s.Email
}

// Expired reports whether the session token is past its expiry
func (s *Session) Expired() bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return nowFunc().After(s.ExpiresAt)
}

// Account returns the derived current-user view
func (s *Session) Account() *AuthAccount {
	if s == nil {
		return nil
	}
	return &AuthAccount{
		ID:       s.UserID,
		Email:    s.Email,
		Metadata: s.Metadata,
	}
}

func (s Session) String() string {
	return fmt.Sprintf("user=%s email=%s exp=%s", s.UserID, s.Email, s.ExpiresAt.Format(time.RFC1123))
}
