package proposta

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// StateListener observes orchestrator state replacements
type StateListener func(state AuthState, session *Session)

// Orchestrator is the single source of truth for who is logged in and
// whether they are allowed in. It is the only component that talks to both
// the identity provider and the profile repository, and it owns exactly one
// Session|nil field, replaced (never merged) on every update.
type Orchestrator struct {
	provider IdentityProvider
	repo     RepositoryManager
	logger   Logger
	activity ActivitySink

	mu          sync.RWMutex
	session     *Session
	state       AuthState
	isAdmin     bool
	subscribers map[int]StateListener
	nextSubID   int
	unsub       Unsubscribe
}

// SignInResult carries the resolved role after a successful sign-in
type SignInResult struct {
	Role    UserRole `json:"role"`
	Profile *Profile `json:"profile,omitempty"`
	Session *Session `json:"session,omitempty"`
}

// SignUpResult reports how a signup completed: the bootstrap admin stays
// signed in, everyone else is signed out and waits for approval.
type SignUpResult struct {
	IsAdmin         bool     `json:"is_admin"`
	PendingApproval bool     `json:"pending_approval"`
	Profile         *Profile `json:"profile,omitempty"`
}

// NewOrchestrator builds an orchestrator in the Unknown state and attaches
// it to the provider's session events.
func NewOrchestrator(provider IdentityProvider, repo RepositoryManager) *Orchestrator {
	o := &Orchestrator{
		provider:    provider,
		repo:        repo,
		logger:      defLogger{},
		activity:    noopActivitySink{},
		state:       StateUnknown,
		subscribers: map[int]StateListener{},
	}

	o.unsub = provider.OnSessionChange(o.handleSessionChange)

	return o
}

func (o *Orchestrator) WithLogger(logger Logger) *Orchestrator {
	if logger != nil {
		o.logger = logger
	}
	return o
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (o *Orchestrator) WithActivitySink(sink ActivitySink) *Orchestrator {
	o.activity = normalizeActivitySink(sink)
	return o
}

// Close detaches the orchestrator from provider session events
func (o *Orchestrator) Close() {
	if o.unsub != nil {
		o.unsub()
		o.unsub = nil
	}
}

// Session returns the cached session, nil when anonymous
func (o *Orchestrator) Session() *Session {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.session
}

// State returns the current auth state
func (o *Orchestrator) State() AuthState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// IsAdmin reports whether the cached session resolved to an admin profile
func (o *Orchestrator) IsAdmin() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.isAdmin
}

// Subscribe registers a state listener and returns its unsubscribe func
func (o *Orchestrator) Subscribe(fn StateListener) Unsubscribe {
	o.mu.Lock()
	id := o.nextSubID
	o.nextSubID++
	o.subscribers[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.subscribers, id)
		o.mu.Unlock()
	}
}

// RestoreSession resolves the startup state: fetch the provider session and,
// if present, the profile. A failed profile fetch degrades to isAdmin=false
// but keeps the session valid; route-level gating still applies.
func (o *Orchestrator) RestoreSession(ctx context.Context) error {
	session, err := o.provider.GetSession(ctx)
	if err != nil {
		o.logger.Error("restore session provider error: %v", err)
		o.set(StateAnonymous, nil, false)
		return wrapProvider(err, "failed to fetch current session")
	}

	if session == nil || session.Expired() {
		o.set(StateAnonymous, nil, false)
		return nil
	}

	check := o.CheckRole(ctx, session.UserID)
	o.set(AccessState(check), session, check.IsAdmin && check.IsApproved)

	o.emit(ctx, ActivityEventSessionRestore, session.GetUserID(), map[string]any{
		"is_admin": check.IsAdmin,
	})

	return nil
}

// SignIn succeeds only when the provider accepts the credentials AND the
// profile row is approved. An authenticated-but-unapproved session is signed
// back out at the provider before the error is returned, it never survives a
// reload.
func (o *Orchestrator) SignIn(ctx context.Context, identifier, password string) (*SignInResult, error) {
	o.setState(StateAuthenticating)

	session, err := o.provider.SignInWithPassword(ctx, identifier, password)
	if err != nil {
		o.set(StateAnonymous, nil, false)
		o.emit(ctx, ActivityEventLoginFailure, "", map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		if IsInvalidCredentials(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, wrapProvider(err, "sign in failed")
	}

	profile, err := o.repo.Profiles().GetByID(ctx, session.GetUserID())
	if err != nil {
		o.signOutProvider(ctx)
		o.set(StateAnonymous, nil, false)
		o.emit(ctx, ActivityEventLoginFailure, session.GetUserID(), map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return nil, wrapProvider(err, "failed to resolve profile for session")
	}

	if !profile.IsApproved {
		o.signOutProvider(ctx)
		o.set(StateAnonymous, nil, false)
		o.emit(ctx, ActivityEventLoginFailure, session.GetUserID(), map[string]any{
			"identifier": identifier,
			"reason":     TextCodePendingApproval,
		})
		return nil, ErrAccountPendingApproval
	}

	o.set(StateApproved, session, profile.IsAdmin())
	o.emit(ctx, ActivityEventLoginSuccess, session.GetUserID(), map[string]any{
		"identifier": identifier,
	})

	return &SignInResult{
		Role:    profile.Role,
		Profile: profile,
		Session: session,
	}, nil
}

// SignUp runs the registration sequence: provider record, count-based role
// bootstrap, profile upsert, and the approval gate. The first profile ever
// created becomes an auto-approved admin and stays signed in; every other
// signup is signed out before returning.
//
// The count-then-insert bootstrap decision is racy across concurrent first
// signups; that matches the observed behavior of the system this replaces
// and is left to the storage layer to harden.
func (o *Orchestrator) SignUp(ctx context.Context, email, password, name string) (*SignUpResult, error) {
	if existing, err := o.repo.Profiles().GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, ErrEmailAlreadyRegistered
	} else if err != nil && !repository.IsRecordNotFound(err) {
		return nil, wrapProvider(err, "profile lookup failed during sign up")
	}

	o.setState(StateAuthenticating)

	session, err := o.provider.SignUp(ctx, email, password, map[string]any{"name": name})
	if err != nil {
		o.set(StateAnonymous, nil, false)
		if IsEmailTaken(err) {
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, wrapProvider(err, "provider sign up failed")
	}

	count, err := o.repo.Profiles().Count(ctx)
	if err != nil {
		o.signOutProvider(ctx)
		o.set(StateAnonymous, nil, false)
		return nil, wrapProvider(err, "failed to count profiles for role bootstrap")
	}

	first := count == 0

	profile := &Profile{
		ID:         session.UserID,
		Email:      session.Email,
		Name:       name,
		Role:       RoleUser,
		IsApproved: false,
	}
	if first {
		profile.Role = RoleAdmin
		profile.IsApproved = true
	}

	// Single-statement upsert with conflict target id: a provider-side
	// trigger may have inserted a same-id row already, the conflict branch
	// reconciles it with the values we would have inserted.
	profile, err = o.repo.Profiles().Upsert(ctx, profile)
	if err != nil {
		o.signOutProvider(ctx)
		o.set(StateAnonymous, nil, false)
		if IsDuplicateKey(err) {
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, wrapProvider(err, "failed to persist profile")
	}

	if first {
		o.set(StateApproved, session, true)
		o.emit(ctx, ActivityEventSignupAdmin, session.GetUserID(), map[string]any{
			"email": email,
		})
		return &SignUpResult{IsAdmin: true, Profile: profile}, nil
	}

	o.signOutProvider(ctx)
	o.set(StateAnonymous, nil, false)
	o.emit(ctx, ActivityEventSignupPending, profile.ID.String(), map[string]any{
		"email": email,
	})

	return &SignUpResult{PendingApproval: true, Profile: profile}, nil
}

// SignOut always succeeds from the caller's perspective: provider errors are
// logged and the local session is cleared regardless.
func (o *Orchestrator) SignOut(ctx context.Context) error {
	userID := o.Session().GetUserID()

	o.signOutProvider(ctx)
	o.set(StateAnonymous, nil, false)

	if userID != "" {
		o.emit(ctx, ActivityEventSignOut, userID, nil)
	}

	return nil
}

// ResetPassword delegates to the provider and reports boolean success. It
// never reveals whether the identifier exists.
func (o *Orchestrator) ResetPassword(ctx context.Context, identifier string) bool {
	if err := o.provider.ResetPasswordForEmail(ctx, identifier); err != nil {
		o.logger.Error("password reset request failed: %v", err)
		return false
	}

	o.emit(ctx, ActivityEventPasswordReset, "", map[string]any{
		"identifier": identifier,
	})

	return true
}

// CheckRole is a pure read: fetch the profile row by id and resolve role and
// approval. Every failure, including a missing row, fails closed to
// non-admin without an error.
func (o *Orchestrator) CheckRole(ctx context.Context, id uuid.UUID) RoleCheck {
	profile, err := o.repo.Profiles().GetByID(ctx, id.String())
	if err != nil {
		if !repository.IsRecordNotFound(err) {
			o.logger.Warn("profile fetch failed during role check: %v id=%s", err, id.String())
		}
		return RoleCheck{}
	}

	return RoleCheck{
		IsAdmin:    profile.Role == RoleAdmin,
		IsApproved: profile.IsApproved,
	}
}

func (o *Orchestrator) signOutProvider(ctx context.Context) {
	if err := o.provider.SignOut(ctx); err != nil {
		o.logger.Error("provider sign out failed: %v", err)
	}
}

// handleSessionChange keeps the cached session in sync with provider push
// events (initial load, sign-in, sign-out, token refresh).
func (o *Orchestrator) handleSessionChange(session *Session) {
	if session == nil {
		o.set(StateAnonymous, nil, false)
		return
	}

	check := o.CheckRole(context.Background(), session.UserID)
	o.set(AccessState(check), session, check.IsAdmin && check.IsApproved)
}

func (o *Orchestrator) setState(state AuthState) {
	o.mu.Lock()
	o.state = state
	session := o.session
	listeners := o.listeners()
	o.mu.Unlock()

	o.notify(listeners, state, session)
}

func (o *Orchestrator) set(state AuthState, session *Session, isAdmin bool) {
	o.mu.Lock()
	o.state = state
	o.session = session
	o.isAdmin = isAdmin
	listeners := o.listeners()
	o.mu.Unlock()

	o.notify(listeners, state, session)
}

// listeners must be called with the lock held
func (o *Orchestrator) listeners() []StateListener {
	out := make([]StateListener, 0, len(o.subscribers))
	for _, fn := range o.subscribers {
		out = append(out, fn)
	}
	return out
}

func (o *Orchestrator) notify(listeners []StateListener, state AuthState, session *Session) {
	for _, fn := range listeners {
		if fn != nil {
			fn(state, session)
		}
	}
}

func (o *Orchestrator) emit(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := normalizeActivitySink(o.activity).Record(ctx, event); err != nil {
		o.logger.Warn("activity sink record error: %v", err)
	}
}
