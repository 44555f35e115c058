package proposta

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ApproveUserMessage asks for a pending profile to be let into the system.
// Only an approved admin actor may execute it; approval is observed by the
// affected session on its next profile refetch, there is no live push.
type ApproveUserMessage struct {
	UserID  uuid.UUID `json:"user_id"`
	ActorID uuid.UUID `json:"actor_id"`
}

func (e ApproveUserMessage) Type() string { return "admin.user.approve" }

type ApproveUserHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
}

// NewApproveUserHandler creates a handler with sane defaults.
func NewApproveUserHandler(repo RepositoryManager) *ApproveUserHandler {
	return &ApproveUserHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit approval events.
func (h *ApproveUserHandler) WithActivitySink(sink ActivitySink) *ApproveUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ApproveUserHandler) WithLogger(logger Logger) *ApproveUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ApproveUserHandler) Execute(ctx context.Context, event ApproveUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user approval",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ApproveUserHandler) execute(ctx context.Context, event ApproveUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var approved *Profile

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := requireAdminActorTx(ctx, tx, h.repo, event.ActorID); err != nil {
			return err
		}

		record, err := h.repo.Profiles().ApproveTx(ctx, tx, event.UserID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return goerrors.New("user to approve was not found", goerrors.CategoryNotFound).
					WithMetadata(map[string]any{"user_id": event.UserID.String()})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to approve user")
		}

		approved = record
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user approval transaction failed")
	}

	h.recordActivity(ctx, event, approved)

	return nil
}

func (h *ApproveUserHandler) recordActivity(ctx context.Context, event ApproveUserMessage, approved *Profile) {
	if approved == nil {
		return
	}

	evt := ActivityEvent{
		EventType: ActivityEventUserApproved,
		UserID:    approved.ID.String(),
		Metadata: map[string]any{
			"actor_id": event.ActorID.String(),
			"email":    approved.Email,
		},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, evt); err != nil {
		h.logger.Warn("activity sink error during approval: %v", err)
	}
}

// requireAdminActorTx fetches the acting profile and rejects anything short
// of an approved admin.
func requireAdminActorTx(ctx context.Context, tx bun.IDB, repo RepositoryManager, actorID uuid.UUID) error {
	actor := &Profile{}
	err := tx.NewSelect().
		Model(actor).
		Where("?TableAlias.id = ?", actorID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return goerrors.New("acting profile not found", goerrors.CategoryAuth).
				WithCode(goerrors.CodeUnauthorized)
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve acting profile")
	}

	if !actor.IsAdmin() {
		return goerrors.New("administrator access required", goerrors.CategoryAuth).
			WithCode(goerrors.CodeForbidden).
			WithMetadata(map[string]any{"actor_id": actorID.String()})
	}

	return nil
}
