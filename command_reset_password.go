package proposta

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// InitiatePasswordResetMessage starts a reset on behalf of a possibly
// unauthenticated caller. The handler talks to the provider with its own
// privileged handle; the caller never learns whether the email exists.
type InitiatePasswordResetMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *InitiatePasswordResetResponse)
}

func (e InitiatePasswordResetMessage) Type() string { return "auth.password_reset.initiate" }

type InitiatePasswordResetResponse struct {
	Accepted bool
}

type InitiatePasswordResetHandler struct {
	provider IdentityProvider
	activity ActivitySink
	logger   Logger
}

func NewInitiatePasswordResetHandler(provider IdentityProvider) *InitiatePasswordResetHandler {
	return &InitiatePasswordResetHandler{
		provider: provider,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *InitiatePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitiatePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *InitiatePasswordResetHandler) WithLogger(logger Logger) *InitiatePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitiatePasswordResetHandler) Execute(ctx context.Context, event InitiatePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitiatePasswordResetHandler) execute(ctx context.Context, event InitiatePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Email == "" {
		return goerrors.New("email is required for a password reset", goerrors.CategoryBadInput)
	}

	// Unknown emails are swallowed by the provider so the response is
	// identical either way.
	if err := h.provider.ResetPasswordForEmail(ctx, event.Email); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initiate password reset")
	}

	evt := ActivityEvent{
		EventType: ActivityEventPasswordReset,
		Metadata: map[string]any{
			"email": event.Email,
			"stage": "requested",
		},
		OccurredAt: time.Now(),
	}
	if err := normalizeActivitySink(h.activity).Record(ctx, evt); err != nil {
		h.logger.Warn("activity sink error during reset initiation: %v", err)
	}

	if event.OnResponse != nil {
		event.OnResponse(&InitiatePasswordResetResponse{Accepted: true})
	}

	return nil
}

// FinalizePasswordResetMessage exchanges a mailed token for a new password.
type FinalizePasswordResetMessage struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (e FinalizePasswordResetMessage) Type() string { return "auth.password_reset.finalize" }

type FinalizePasswordResetHandler struct {
	provider IdentityProvider
	activity ActivitySink
	logger   Logger
}

func NewFinalizePasswordResetHandler(provider IdentityProvider) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		provider: provider,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Token == "" || event.Password == "" {
		return goerrors.New("token and new password are required", goerrors.CategoryBadInput)
	}

	if err := h.provider.FinalizePasswordReset(ctx, event.Token, event.Password); err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	evt := ActivityEvent{
		EventType: ActivityEventPasswordReset,
		Metadata: map[string]any{
			"stage": "finalized",
		},
		OccurredAt: time.Now(),
	}
	if err := normalizeActivitySink(h.activity).Record(ctx, evt); err != nil {
		h.logger.Warn("activity sink error during reset finalization: %v", err)
	}

	return nil
}
