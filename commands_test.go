package proposta_test

import (
	"context"
	"testing"

	"github.com/agencykit/proposta"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApproveUserRequiresAdminActor(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	actor := seedProfile(t, repo, &proposta.Profile{
		ID:    uuid.New(),
		Email: "actor@example.com",
	})
	target := seedProfile(t, repo, &proposta.Profile{
		ID:    uuid.New(),
		Email: "target@example.com",
	})

	handler := proposta.NewApproveUserHandler(repo)

	// unapproved actor
	err := handler.Execute(ctx, proposta.ApproveUserMessage{UserID: target.ID, ActorID: actor.ID})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryAuth, richErr.Category)

	// unknown actor
	err = handler.Execute(ctx, proposta.ApproveUserMessage{UserID: target.ID, ActorID: uuid.New()})
	require.Error(t, err)
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryAuth, richErr.Category)

	stored, err := repo.Profiles().GetByID(ctx, target.ID.String())
	require.NoError(t, err)
	assert.False(t, stored.IsApproved)
}

func TestApproveUserByAdmin(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	sink := &recordingSink{}

	admin := seedProfile(t, repo, &proposta.Profile{
		ID:         uuid.New(),
		Email:      "admin@example.com",
		Role:       proposta.RoleAdmin,
		IsApproved: true,
	})
	target := seedProfile(t, repo, &proposta.Profile{
		ID:    uuid.New(),
		Email: "target@example.com",
	})

	handler := proposta.NewApproveUserHandler(repo).WithActivitySink(sink)

	require.NoError(t, handler.Execute(ctx, proposta.ApproveUserMessage{
		UserID:  target.ID,
		ActorID: admin.ID,
	}))

	stored, err := repo.Profiles().GetByID(ctx, target.ID.String())
	require.NoError(t, err)
	assert.True(t, stored.IsApproved)

	assert.Contains(t, sink.EventTypes(), proposta.ActivityEventUserApproved)
}

func TestApproveUserMissingTarget(t *testing.T) {
	repo := setupTestRepo(t)

	admin := seedProfile(t, repo, &proposta.Profile{
		ID:         uuid.New(),
		Email:      "admin@example.com",
		Role:       proposta.RoleAdmin,
		IsApproved: true,
	})

	err := proposta.NewApproveUserHandler(repo).Execute(context.Background(), proposta.ApproveUserMessage{
		UserID:  uuid.New(),
		ActorID: admin.ID,
	})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryNotFound, richErr.Category)
}

func TestDeleteUserRejectsSelfDeletion(t *testing.T) {
	repo := setupTestRepo(t)

	admin := seedProfile(t, repo, &proposta.Profile{
		ID:         uuid.New(),
		Email:      "admin@example.com",
		Role:       proposta.RoleAdmin,
		IsApproved: true,
	})

	err := proposta.NewDeleteUserHandler(repo).Execute(context.Background(), proposta.DeleteUserMessage{
		UserID:  admin.ID,
		ActorID: admin.ID,
	})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryBadInput, richErr.Category)

	// row is untouched
	_, err = repo.Profiles().GetByID(context.Background(), admin.ID.String())
	require.NoError(t, err)
}

func TestDeleteUserByAdmin(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	sink := &recordingSink{}

	admin := seedProfile(t, repo, &proposta.Profile{
		ID:         uuid.New(),
		Email:      "admin@example.com",
		Role:       proposta.RoleAdmin,
		IsApproved: true,
	})
	target := seedProfile(t, repo, &proposta.Profile{
		ID:    uuid.New(),
		Email: "target@example.com",
	})

	handler := proposta.NewDeleteUserHandler(repo).WithActivitySink(sink)

	require.NoError(t, handler.Execute(ctx, proposta.DeleteUserMessage{
		UserID:  target.ID,
		ActorID: admin.ID,
	}))

	_, err := repo.Profiles().GetByID(ctx, target.ID.String())
	require.Error(t, err)
	assert.True(t, repository.IsRecordNotFound(err))

	assert.Contains(t, sink.EventTypes(), proposta.ActivityEventUserDeleted)
}

func TestSeedAdminProvisionsProfile(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	provider := &stubProvider{}

	handler := proposta.NewSeedAdminHandler(repo, provider)

	require.NoError(t, handler.Execute(ctx, proposta.SeedAdminMessage{
		Email:    "root@example.com",
		Password: "seed-password",
		Name:     "Root",
	}))

	profile, err := repo.Profiles().GetByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, proposta.RoleAdmin, profile.Role)
	assert.True(t, profile.IsApproved)

	// the seeding credential never stays signed in
	assert.Equal(t, 1, provider.SignOutCount())
}

func TestSeedAdminIsIdempotent(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	provider := &stubProvider{}

	handler := proposta.NewSeedAdminHandler(repo, provider)
	event := proposta.SeedAdminMessage{
		Email:    "root@example.com",
		Password: "seed-password",
		Name:     "Root",
	}

	require.NoError(t, handler.Execute(ctx, event))
	require.NoError(t, handler.Execute(ctx, event))

	count, err := repo.Profiles().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSeedAdminRejectsNonAdminEmail(t *testing.T) {
	repo := setupTestRepo(t)
	provider := &stubProvider{}

	seedProfile(t, repo, &proposta.Profile{
		ID:    uuid.New(),
		Email: "root@example.com",
	})

	err := proposta.NewSeedAdminHandler(repo, provider).Execute(context.Background(), proposta.SeedAdminMessage{
		Email:    "root@example.com",
		Password: "seed-password",
	})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryConflict, richErr.Category)
}

func TestSeedAdminRequiresCredentials(t *testing.T) {
	repo := setupTestRepo(t)
	provider := &stubProvider{}

	err := proposta.NewSeedAdminHandler(repo, provider).Execute(context.Background(), proposta.SeedAdminMessage{})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryBadInput, richErr.Category)
}

func TestInitiatePasswordResetAcceptsAnyEmail(t *testing.T) {
	provider := &stubProvider{}
	sink := &recordingSink{}

	handler := proposta.NewInitiatePasswordResetHandler(provider).WithActivitySink(sink)

	var resp *proposta.InitiatePasswordResetResponse
	err := handler.Execute(context.Background(), proposta.InitiatePasswordResetMessage{
		Email: "whoever@example.com",
		OnResponse: func(r *proposta.InitiatePasswordResetResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Accepted)

	assert.Contains(t, sink.EventTypes(), proposta.ActivityEventPasswordReset)
}

func TestInitiatePasswordResetRequiresEmail(t *testing.T) {
	provider := &stubProvider{}

	err := proposta.NewInitiatePasswordResetHandler(provider).Execute(context.Background(), proposta.InitiatePasswordResetMessage{})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryBadInput, richErr.Category)
}

func TestFinalizePasswordResetPassesProviderErrorThrough(t *testing.T) {
	providerErr := goerrors.New("token already used", goerrors.CategoryConflict).
		WithTextCode("TOKEN_ALREADY_USED")
	provider := &stubProvider{finalizeErr: providerErr}

	err := proposta.NewFinalizePasswordResetHandler(provider).Execute(context.Background(), proposta.FinalizePasswordResetMessage{
		Token:    uuid.NewString(),
		Password: "brand-new-password",
	})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, "TOKEN_ALREADY_USED", richErr.TextCode)
}

func TestFinalizePasswordResetRequiresTokenAndPassword(t *testing.T) {
	provider := &stubProvider{}

	handler := proposta.NewFinalizePasswordResetHandler(provider)

	err := handler.Execute(context.Background(), proposta.FinalizePasswordResetMessage{Token: "t"})
	require.Error(t, err)

	err = handler.Execute(context.Background(), proposta.FinalizePasswordResetMessage{Password: "p"})
	require.Error(t, err)
}
