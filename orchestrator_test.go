package proposta_test

import (
	"context"
	"testing"

	"github.com/agencykit/proposta"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedProfile(t *testing.T, repo proposta.RepositoryManager, p *proposta.Profile) *proposta.Profile {
	t.Helper()
	record, err := repo.Profiles().Upsert(context.Background(), p)
	require.NoError(t, err)
	return record
}

func TestSignUpFirstUserBecomesAdmin(t *testing.T) {
	repo := setupTestRepo(t)
	provider := &stubProvider{}
	sink := &recordingSink{}

	o := proposta.NewOrchestrator(provider, repo).WithActivitySink(sink)
	defer o.Close()

	result, err := o.SignUp(context.Background(), "founder@example.com", "secret-password", "Founder")
	require.NoError(t, err)

	assert.True(t, result.IsAdmin)
	assert.False(t, result.PendingApproval)
	require.NotNil(t, result.Profile)
	assert.Equal(t, proposta.RoleAdmin, result.Profile.Role)
	assert.True(t, result.Profile.IsApproved)

	// bootstrap admin keeps its session
	assert.Equal(t, proposta.StateApproved, o.State())
	assert.True(t, o.IsAdmin())
	assert.Equal(t, 0, provider.SignOutCount())

	assert.Contains(t, sink.EventTypes(), proposta.ActivityEventSignupAdmin)
}

func TestSignUpSecondUserAwaitsApproval(t *testing.T) {
	repo := setupTestRepo(t)
	provider := &stubProvider{}
	sink := &recordingSink{}

	seedProfile(t, repo, &proposta.Profile{
		ID:         uuid.New(),
		Email:      "founder@example.com",
		Role:       proposta.RoleAdmin,
		IsApproved: true,
	})

	o := proposta.NewOrchestrator(provider, repo).WithActivitySink(sink)
	defer o.Close()

	result, err := o.SignUp(context.Background(), "second@example.com", "secret-password", "Second")
	require.NoError(t, err)

	assert.False(t, result.IsAdmin)
	assert.True(t, result.PendingApproval)
	require.NotNil(t, result.Profile)
	assert.Equal(t, proposta.RoleUser, result.Profile.Role)
	assert.False(t, result.Profile.IsApproved)

	// pending signups never keep a session
	assert.Equal(t, proposta.StateAnonymous, o.State())
	assert.False(t, o.IsAdmin())
	assert.Equal(t, 1, provider.SignOutCount())

	assert.Contains(t, sink.EventTypes(), proposta.ActivityEventSignupPending)
}

func TestSignUpRejectsKnownEmail(t *testing.T) {
	repo := setupTestRepo(t)
	provider := &stubProvider{}

	seedProfile(t, repo, &proposta.Profile{
		ID:    uuid.New(),
		Email: "taken@example.com",
	})

	o := proposta.NewOrchestrator(provider, repo)
	defer o.Close()

	_, err := o.SignUp(context.Background(), "taken@example.com", "secret-password", "Any")
	require.Error(t, err)
	assert.True(t, proposta.IsEmailTaken(err))
}

func TestSignUpReconcilesProviderCreatedRow(t *testing.T) {
	repo := setupTestRepo(t)

	id := uuid.New()

	// a same-id row already exists, as if written by a provider-side hook
	seedProfile(t, repo, &proposta.Profile{
		ID:    id,
		Email: "hook@example.com",
		Name:  "placeholder",
	})

	provider := &stubProvider{
		signUpFn: func(_ context.Context, identifier, _ string, _ map[string]any) (*proposta.Session, error) {
			return newTestSession(id, identifier), nil
		},
	}

	o := proposta.NewOrchestrator(provider, repo)
	defer o.Close()

	result, err := o.SignUp(context.Background(), "real@example.com", "secret-password", "Real Name")
	require.NoError(t, err)

	stored, err := repo.Profiles().GetByID(context.Background(), id.String())
	require.NoError(t, err)
	assert.Equal(t, "real@example.com", stored.Email)
	assert.Equal(t, "Real Name", stored.Name)
	assert.True(t, result.PendingApproval)
}

func TestSignInInvalidCredentials(t *testing.T) {
	repo := setupTestRepo(t)
	provider := &stubProvider{}

	o := proposta.NewOrchestrator(provider, repo)
	defer o.Close()

	_, err := o.SignIn(context.Background(), "nobody@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, proposta.IsInvalidCredentials(err))
	assert.Equal(t, proposta.StateAnonymous, o.State())
}

func TestSignInUnapprovedIsSignedBackOut(t *testing.T) {
	repo := setupTestRepo(t)
	sink := &recordingSink{}

	pending := seedProfile(t, repo, &proposta.Profile{
		ID:    uuid.New(),
		Email: "pending@example.com",
	})

	provider := &stubProvider{
		signInFn: func(_ context.Context, identifier, _ string) (*proposta.Session, error) {
			return newTestSession(pending.ID, identifier), nil
		},
	}

	o := proposta.NewOrchestrator(provider, repo).WithActivitySink(sink)
	defer o.Close()

	_, err := o.SignIn(context.Background(), "pending@example.com", "secret-password")
	require.Error(t, err)
	assert.True(t, proposta.IsPendingApproval(err))

	// an authenticated-but-unapproved session never survives
	assert.Equal(t, 1, provider.SignOutCount())
	assert.Equal(t, proposta.StateAnonymous, o.State())
	assert.Nil(t, o.Session())
}

func TestSignInApprovedAdmin(t *testing.T) {
	repo := setupTestRepo(t)
	sink := &recordingSink{}

	admin := seedProfile(t, repo, &proposta.Profile{
		ID:         uuid.New(),
		Email:      "admin@example.com",
		Role:       proposta.RoleAdmin,
		IsApproved: true,
	})

	provider := &stubProvider{
		signInFn: func(_ context.Context, identifier, _ string) (*proposta.Session, error) {
			return newTestSession(admin.ID, identifier), nil
		},
	}

	o := proposta.NewOrchestrator(provider, repo).WithActivitySink(sink)
	defer o.Close()

	result, err := o.SignIn(context.Background(), "admin@example.com", "secret-password")
	require.NoError(t, err)

	assert.Equal(t, proposta.RoleAdmin, result.Role)
	assert.Equal(t, proposta.StateApproved, o.State())
	assert.True(t, o.IsAdmin())
	assert.Contains(t, sink.EventTypes(), proposta.ActivityEventLoginSuccess)
}

func TestCheckRoleFailsClosed(t *testing.T) {
	repo := setupTestRepo(t)
	provider := &stubProvider{}

	o := proposta.NewOrchestrator(provider, repo)
	defer o.Close()

	check := o.CheckRole(context.Background(), uuid.New())
	assert.False(t, check.IsAdmin)
	assert.False(t, check.IsApproved)
}

func TestCheckRoleUnapprovedAdminRow(t *testing.T) {
	repo := setupTestRepo(t)
	provider := &stubProvider{}

	demoted := seedProfile(t, repo, &proposta.Profile{
		ID:    uuid.New(),
		Email: "demoted@example.com",
		Role:  proposta.RoleAdmin,
	})

	o := proposta.NewOrchestrator(provider, repo)
	defer o.Close()

	check := o.CheckRole(context.Background(), demoted.ID)
	assert.True(t, check.IsAdmin)
	assert.False(t, check.IsApproved)
	assert.Equal(t, proposta.StatePendingApproval, proposta.AccessState(check))
}

func TestRestoreSessionAnonymousWhenNoSession(t *testing.T) {
	repo := setupTestRepo(t)
	provider := &stubProvider{}

	o := proposta.NewOrchestrator(provider, repo)
	defer o.Close()

	require.NoError(t, o.RestoreSession(context.Background()))
	assert.Equal(t, proposta.StateAnonymous, o.State())
	assert.Nil(t, o.Session())
}

func TestRestoreSessionLogsProviderError(t *testing.T) {
	repo := setupTestRepo(t)
	logger := &captureLogger{}
	provider := &stubProvider{
		getSessionFn: func(context.Context) (*proposta.Session, error) {
			return nil, assert.AnError
		},
	}

	o := proposta.NewOrchestrator(provider, repo).WithLogger(logger)
	defer o.Close()

	require.Error(t, o.RestoreSession(context.Background()))
	assert.Equal(t, proposta.StateAnonymous, o.State())

	entries := logger.Entries()
	require.NotEmpty(t, entries)
	assert.Contains(t, entries[0], assert.AnError.Error())
	assert.NotContains(t, entries[0], "%!")
}

func TestRestoreSessionDegradesWithoutProfile(t *testing.T) {
	repo := setupTestRepo(t)

	session := newTestSession(uuid.New(), "ghost@example.com")
	provider := &stubProvider{
		getSessionFn: func(context.Context) (*proposta.Session, error) {
			return session, nil
		},
	}

	o := proposta.NewOrchestrator(provider, repo)
	defer o.Close()

	// the profile row is gone; session stays but admin degrades to false
	require.NoError(t, o.RestoreSession(context.Background()))
	assert.Equal(t, proposta.StatePendingApproval, o.State())
	assert.False(t, o.IsAdmin())
	assert.NotNil(t, o.Session())
}

func TestRestoreSessionApprovedProfile(t *testing.T) {
	repo := setupTestRepo(t)

	admin := seedProfile(t, repo, &proposta.Profile{
		ID:         uuid.New(),
		Email:      "admin@example.com",
		Role:       proposta.RoleAdmin,
		IsApproved: true,
	})

	provider := &stubProvider{
		getSessionFn: func(context.Context) (*proposta.Session, error) {
			return newTestSession(admin.ID, admin.Email), nil
		},
	}

	o := proposta.NewOrchestrator(provider, repo)
	defer o.Close()

	require.NoError(t, o.RestoreSession(context.Background()))
	assert.Equal(t, proposta.StateApproved, o.State())
	assert.True(t, o.IsAdmin())
}

func TestSignOutAlwaysClearsState(t *testing.T) {
	repo := setupTestRepo(t)

	admin := seedProfile(t, repo, &proposta.Profile{
		ID:         uuid.New(),
		Email:      "admin@example.com",
		Role:       proposta.RoleAdmin,
		IsApproved: true,
	})

	provider := &stubProvider{
		signInFn: func(_ context.Context, identifier, _ string) (*proposta.Session, error) {
			return newTestSession(admin.ID, identifier), nil
		},
	}

	o := proposta.NewOrchestrator(provider, repo)
	defer o.Close()

	_, err := o.SignIn(context.Background(), admin.Email, "secret-password")
	require.NoError(t, err)

	require.NoError(t, o.SignOut(context.Background()))
	assert.Equal(t, proposta.StateAnonymous, o.State())
	assert.Nil(t, o.Session())
	assert.False(t, o.IsAdmin())
}

func TestResetPasswordReportsBooleanSuccess(t *testing.T) {
	repo := setupTestRepo(t)
	provider := &stubProvider{}

	o := proposta.NewOrchestrator(provider, repo)
	defer o.Close()

	assert.True(t, o.ResetPassword(context.Background(), "anyone@example.com"))

	provider.resetErr = assert.AnError
	assert.False(t, o.ResetPassword(context.Background(), "anyone@example.com"))
}

func TestSubscribeReceivesStateChanges(t *testing.T) {
	repo := setupTestRepo(t)
	provider := &stubProvider{}

	o := proposta.NewOrchestrator(provider, repo)
	defer o.Close()

	var states []proposta.AuthState
	unsub := o.Subscribe(func(state proposta.AuthState, _ *proposta.Session) {
		states = append(states, state)
	})
	defer unsub()

	require.NoError(t, o.RestoreSession(context.Background()))
	require.NotEmpty(t, states)
	assert.Equal(t, proposta.StateAnonymous, states[len(states)-1])
}
