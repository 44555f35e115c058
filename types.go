package proposta

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// AuthAccount is the provider-owned view of an authenticated account.
// Profiles are keyed by the same id.
type AuthAccount struct {
	ID       uuid.UUID      `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Unsubscribe detaches a previously registered listener
type Unsubscribe func()

// SessionListener receives session replacements; nil means signed out
type SessionListener func(session *Session)

// IdentityProvider wraps the remote authentication service. Session change
// callbacks fire at least on initial load, sign-in, sign-up and sign-out.
type IdentityProvider interface {
	GetSession(ctx context.Context) (*Session, error)
	OnSessionChange(fn SessionListener) Unsubscribe
	SignInWithPassword(ctx context.Context, identifier, password string) (*Session, error)
	SignUp(ctx context.Context, identifier, password string, metadata map[string]any) (*Session, error)
	SignOut(ctx context.Context) error
	ResetPasswordForEmail(ctx context.Context, identifier string) error
	FinalizePasswordReset(ctx context.Context, token, newPassword string) error
	GetCurrentUser(ctx context.Context) (*AuthAccount, error)
}

// Mailer delivers notification mail. Delivery mechanics are out of scope,
// the default implementation logs the message.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// DefaultLogger returns the built-in printf logger
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] PROPOSTA "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] PROPOSTA "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] PROPOSTA "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] PROPOSTA "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

// nowFunc makes expiry checks testable
var nowFunc = time.Now
