package proposta

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
)

// SeedAdminMessage provisions a known administrator account at deploy time,
// regardless of whether the users table is empty. It replaces any notion of a
// hardcoded master login: the account is a normal provider credential plus an
// approved admin profile, created once and reconciled on every run.
type SeedAdminMessage struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (e SeedAdminMessage) Type() string { return "provision.seed_admin" }

type SeedAdminHandler struct {
	repo     RepositoryManager
	provider IdentityProvider
	logger   Logger
}

func NewSeedAdminHandler(repo RepositoryManager, provider IdentityProvider) *SeedAdminHandler {
	return &SeedAdminHandler{
		repo:     repo,
		provider: provider,
		logger:   defLogger{},
	}
}

func (h *SeedAdminHandler) WithLogger(logger Logger) *SeedAdminHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// Execute is idempotent: an existing profile for the email short-circuits, an
// existing provider credential is tolerated, and the profile row is upserted
// with a deterministic id derived from the email so reruns converge on the
// same record.
func (h *SeedAdminHandler) Execute(ctx context.Context, event SeedAdminMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during admin seeding",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SeedAdminHandler) execute(ctx context.Context, event SeedAdminMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*15)
	defer cancel()

	if event.Email == "" || event.Password == "" {
		return goerrors.New("seed admin requires email and password", goerrors.CategoryBadInput)
	}

	if existing, err := h.repo.Profiles().GetByEmail(ctx, event.Email); err == nil && existing != nil {
		if existing.IsAdmin() {
			h.logger.Debug("seed admin already provisioned: %s", event.Email)
			return nil
		}
		return goerrors.New("seed email belongs to a non-admin profile", goerrors.CategoryConflict).
			WithMetadata(map[string]any{"email": event.Email})
	} else if err != nil && !repository.IsRecordNotFound(err) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up seed admin profile")
	}

	id, err := hashid.NewUUID(event.Email)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive seed admin id")
	}

	session, err := h.provider.SignUp(ctx, event.Email, event.Password, map[string]any{
		"name":   event.Name,
		"seeded": true,
	})
	if err != nil && !IsEmailTaken(err) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create seed admin credential")
	}

	if session != nil {
		// The provider minted a fresh credential; keep its id so the
		// profile row and credential agree.
		id = session.UserID
		defer func() {
			if err := h.provider.SignOut(ctx); err != nil {
				h.logger.Warn("seed admin sign out failed: %v", err)
			}
		}()
	}

	profile := &Profile{
		ID:         id,
		Email:      event.Email,
		Name:       event.Name,
		Role:       RoleAdmin,
		IsApproved: true,
	}

	if _, err := h.repo.Profiles().Upsert(ctx, profile); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist seed admin profile")
	}

	h.logger.Info("seed admin provisioned: %s", event.Email)

	return nil
}
