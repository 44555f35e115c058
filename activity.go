package proposta

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess   ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure   ActivityEventType = "auth.login.failure"
	ActivityEventSignupAdmin    ActivityEventType = "auth.signup.bootstrap_admin"
	ActivityEventSignupPending  ActivityEventType = "auth.signup.pending"
	ActivityEventSignOut        ActivityEventType = "auth.signout"
	ActivityEventUserApproved   ActivityEventType = "admin.user.approved"
	ActivityEventUserDeleted    ActivityEventType = "admin.user.deleted"
	ActivityEventPasswordReset  ActivityEventType = "auth.password.reset"
	ActivityEventSessionRestore ActivityEventType = "auth.session.restored"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
