package proposta_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agencykit/proposta"
	"github.com/google/uuid"
)

// stubProvider implements proposta.IdentityProvider with overridable
// function fields. Zero value behaves like a signed-out provider.
type stubProvider struct {
	getSessionFn func(ctx context.Context) (*proposta.Session, error)
	signInFn     func(ctx context.Context, identifier, password string) (*proposta.Session, error)
	signUpFn     func(ctx context.Context, identifier, password string, metadata map[string]any) (*proposta.Session, error)
	resetErr     error
	finalizeErr  error

	mu           sync.Mutex
	signOutCalls int
	resetCalls   []string
	listener     proposta.SessionListener
}

func (p *stubProvider) GetSession(ctx context.Context) (*proposta.Session, error) {
	if p.getSessionFn != nil {
		return p.getSessionFn(ctx)
	}
	return nil, nil
}

func (p *stubProvider) OnSessionChange(fn proposta.SessionListener) proposta.Unsubscribe {
	p.mu.Lock()
	p.listener = fn
	p.mu.Unlock()
	return func() {}
}

func (p *stubProvider) SignInWithPassword(ctx context.Context, identifier, password string) (*proposta.Session, error) {
	if p.signInFn != nil {
		return p.signInFn(ctx, identifier, password)
	}
	return nil, proposta.ErrInvalidCredentials
}

func (p *stubProvider) SignUp(ctx context.Context, identifier, password string, metadata map[string]any) (*proposta.Session, error) {
	if p.signUpFn != nil {
		return p.signUpFn(ctx, identifier, password, metadata)
	}
	return newTestSession(uuid.New(), identifier), nil
}

func (p *stubProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.signOutCalls++
	p.mu.Unlock()
	return nil
}

func (p *stubProvider) ResetPasswordForEmail(ctx context.Context, identifier string) error {
	p.mu.Lock()
	p.resetCalls = append(p.resetCalls, identifier)
	p.mu.Unlock()
	return p.resetErr
}

func (p *stubProvider) FinalizePasswordReset(ctx context.Context, token, newPassword string) error {
	return p.finalizeErr
}

func (p *stubProvider) GetCurrentUser(ctx context.Context) (*proposta.AuthAccount, error) {
	session, err := p.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, proposta.ErrNoActiveSession
	}
	return session.Account(), nil
}

func (p *stubProvider) SignOutCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signOutCalls
}

func newTestSession(id uuid.UUID, email string) *proposta.Session {
	return &proposta.Session{
		Token:     "test-token",
		UserID:    id,
		Email:     email,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

// captureLogger renders entries through fmt like the default logger does
// and keeps them for assertions
type captureLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *captureLogger) log(format string, args ...any) {
	l.mu.Lock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *captureLogger) Debug(format string, args ...any) { l.log(format, args...) }
func (l *captureLogger) Info(format string, args ...any)  { l.log(format, args...) }
func (l *captureLogger) Warn(format string, args ...any)  { l.log(format, args...) }
func (l *captureLogger) Error(format string, args ...any) { l.log(format, args...) }

func (l *captureLogger) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

// recordingSink captures activity events for assertions
type recordingSink struct {
	mu     sync.Mutex
	events []proposta.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event proposta.ActivityEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) EventTypes() []proposta.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]proposta.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}
