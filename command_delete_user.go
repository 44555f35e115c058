package proposta

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DeleteUserMessage removes a profile from the roster. Admins cannot delete
// themselves; that would strand the instance without an administrator.
type DeleteUserMessage struct {
	UserID  uuid.UUID `json:"user_id"`
	ActorID uuid.UUID `json:"actor_id"`
}

func (e DeleteUserMessage) Type() string { return "admin.user.delete" }

type DeleteUserHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
}

func NewDeleteUserHandler(repo RepositoryManager) *DeleteUserHandler {
	return &DeleteUserHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *DeleteUserHandler) WithActivitySink(sink ActivitySink) *DeleteUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *DeleteUserHandler) WithLogger(logger Logger) *DeleteUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *DeleteUserHandler) Execute(ctx context.Context, event DeleteUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user deletion",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *DeleteUserHandler) execute(ctx context.Context, event DeleteUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.UserID == event.ActorID {
		return goerrors.New("administrators cannot delete their own account", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"user_id": event.UserID.String()})
	}

	var removed *Profile

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := requireAdminActorTx(ctx, tx, h.repo, event.ActorID); err != nil {
			return err
		}

		record := &Profile{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.id = ?", event.UserID).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return goerrors.New("user to delete was not found", goerrors.CategoryNotFound).
					WithMetadata(map[string]any{"user_id": event.UserID.String()})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user for deletion")
		}

		if err := h.repo.Profiles().DeleteByIDTx(ctx, tx, event.UserID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete user")
		}

		removed = record
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user deletion transaction failed")
	}

	h.recordActivity(ctx, event, removed)

	return nil
}

func (h *DeleteUserHandler) recordActivity(ctx context.Context, event DeleteUserMessage, removed *Profile) {
	if removed == nil {
		return
	}

	evt := ActivityEvent{
		EventType: ActivityEventUserDeleted,
		UserID:    removed.ID.String(),
		Metadata: map[string]any{
			"actor_id": event.ActorID.String(),
			"email":    removed.Email,
		},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, evt); err != nil {
		h.logger.Warn("activity sink error during deletion: %v", err)
	}
}
