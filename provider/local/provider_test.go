package local_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/agencykit/proposta"
	"github.com/agencykit/proposta/provider/local"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	require.NoError(t, proposta.RunMigrations(context.Background(), bunDB, nil))

	t.Cleanup(func() {
		_ = bunDB.Close()
		_ = db.Close()
	})

	return bunDB
}

func newTestProvider(t *testing.T) *local.Provider {
	t.Helper()
	tokens := local.NewTokenService([]byte("test-signing-key"), 1, "proposta-test", nil, nil)
	return local.New(setupTestDB(t), tokens)
}

// captureMailer records outgoing mail so tests can extract reset tokens
type captureMailer struct {
	to      []string
	bodies  []string
	lastURL string
}

func (m *captureMailer) Send(_ context.Context, to, _, body string) error {
	m.to = append(m.to, to)
	m.bodies = append(m.bodies, body)
	if idx := strings.LastIndex(body, " "); idx >= 0 {
		m.lastURL = body[idx+1:]
	}
	return nil
}

func (m *captureMailer) lastToken(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, m.lastURL, "no reset mail captured")
	parts := strings.Split(m.lastURL, "/")
	return parts[len(parts)-1]
}

func TestSignUpThenSignIn(t *testing.T) {
	provider := newTestProvider(t)
	ctx := context.Background()

	session, err := provider.SignUp(ctx, "user@example.com", "secret-password", map[string]any{"name": "User"})
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "user@example.com", session.Email)
	assert.NotEmpty(t, session.Token)
	assert.False(t, session.Expired())

	require.NoError(t, provider.SignOut(ctx))

	again, err := provider.SignInWithPassword(ctx, "user@example.com", "secret-password")
	require.NoError(t, err)
	assert.Equal(t, session.UserID, again.UserID)
}

func TestSignInWrongPassword(t *testing.T) {
	provider := newTestProvider(t)
	ctx := context.Background()

	_, err := provider.SignUp(ctx, "user@example.com", "secret-password", nil)
	require.NoError(t, err)

	_, err = provider.SignInWithPassword(ctx, "user@example.com", "not-the-password")
	require.Error(t, err)
	assert.True(t, proposta.IsInvalidCredentials(err))
}

func TestSignInUnknownEmail(t *testing.T) {
	provider := newTestProvider(t)

	// indistinguishable from a wrong password
	_, err := provider.SignInWithPassword(context.Background(), "nobody@example.com", "whatever")
	require.Error(t, err)
	assert.True(t, proposta.IsInvalidCredentials(err))
}

func TestSignUpDuplicateEmail(t *testing.T) {
	provider := newTestProvider(t)
	ctx := context.Background()

	_, err := provider.SignUp(ctx, "user@example.com", "secret-password", nil)
	require.NoError(t, err)

	_, err = provider.SignUp(ctx, "user@example.com", "other-password", nil)
	require.Error(t, err)
	assert.True(t, proposta.IsEmailTaken(err))

	// email comparison is case insensitive
	_, err = provider.SignUp(ctx, "USER@example.com", "other-password", nil)
	require.Error(t, err)
	assert.True(t, proposta.IsEmailTaken(err))
}

func TestGetSessionLifecycle(t *testing.T) {
	provider := newTestProvider(t)
	ctx := context.Background()

	session, err := provider.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)

	_, err = provider.SignUp(ctx, "user@example.com", "secret-password", nil)
	require.NoError(t, err)

	session, err = provider.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)

	require.NoError(t, provider.SignOut(ctx))

	session, err = provider.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestOnSessionChangeFiresImmediatelyAndOnUpdates(t *testing.T) {
	provider := newTestProvider(t)
	ctx := context.Background()

	var calls []*proposta.Session
	unsub := provider.OnSessionChange(func(s *proposta.Session) {
		calls = append(calls, s)
	})
	defer unsub()

	// initial fire with the (nil) current session
	require.Len(t, calls, 1)
	assert.Nil(t, calls[0])

	_, err := provider.SignUp(ctx, "user@example.com", "secret-password", nil)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.NotNil(t, calls[1])

	require.NoError(t, provider.SignOut(ctx))
	require.Len(t, calls, 3)
	assert.Nil(t, calls[2])
}

func TestGetCurrentUser(t *testing.T) {
	provider := newTestProvider(t)
	ctx := context.Background()

	_, err := provider.GetCurrentUser(ctx)
	require.Error(t, err)

	session, err := provider.SignUp(ctx, "user@example.com", "secret-password", map[string]any{"name": "User"})
	require.NoError(t, err)

	account, err := provider.GetCurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.UserID, account.ID)
	assert.Equal(t, "user@example.com", account.Email)
}

func TestPasswordResetFlow(t *testing.T) {
	mailer := &captureMailer{}
	provider := newTestProvider(t).WithMailer(mailer)
	ctx := context.Background()

	_, err := provider.SignUp(ctx, "user@example.com", "old-password", nil)
	require.NoError(t, err)

	require.NoError(t, provider.ResetPasswordForEmail(ctx, "user@example.com"))
	require.Len(t, mailer.to, 1)
	assert.Equal(t, "user@example.com", mailer.to[0])

	token := mailer.lastToken(t)

	require.NoError(t, provider.FinalizePasswordReset(ctx, token, "new-password"))

	// finalizing revoked the live session for the account
	session, err := provider.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)

	_, err = provider.SignInWithPassword(ctx, "user@example.com", "old-password")
	require.Error(t, err)
	assert.True(t, proposta.IsInvalidCredentials(err))

	_, err = provider.SignInWithPassword(ctx, "user@example.com", "new-password")
	require.NoError(t, err)
}

func TestPasswordResetTokenIsSingleUse(t *testing.T) {
	mailer := &captureMailer{}
	provider := newTestProvider(t).WithMailer(mailer)
	ctx := context.Background()

	_, err := provider.SignUp(ctx, "user@example.com", "old-password", nil)
	require.NoError(t, err)

	require.NoError(t, provider.ResetPasswordForEmail(ctx, "user@example.com"))
	token := mailer.lastToken(t)

	require.NoError(t, provider.FinalizePasswordReset(ctx, token, "new-password"))

	err = provider.FinalizePasswordReset(ctx, token, "another-password")
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, "TOKEN_ALREADY_USED", richErr.TextCode)
}

func TestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	mailer := &captureMailer{}
	provider := newTestProvider(t).WithMailer(mailer)

	require.NoError(t, provider.ResetPasswordForEmail(context.Background(), "ghost@example.com"))
	assert.Empty(t, mailer.to)
}

func TestFinalizePasswordResetRejectsBadToken(t *testing.T) {
	provider := newTestProvider(t)
	ctx := context.Background()

	err := provider.FinalizePasswordReset(ctx, "not-a-uuid", "new-password")
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryNotFound, richErr.Category)

	// well-formed but unknown token
	err = provider.FinalizePasswordReset(ctx, "7c9a2d1e-0000-4000-8000-000000000000", "new-password")
	require.Error(t, err)
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryNotFound, richErr.Category)
}

func TestValidateTokenRoundtrip(t *testing.T) {
	provider := newTestProvider(t)
	ctx := context.Background()

	session, err := provider.SignUp(ctx, "user@example.com", "secret-password", nil)
	require.NoError(t, err)

	parsed, err := provider.ValidateToken(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.UserID, parsed.UserID)
	assert.Equal(t, "user@example.com", parsed.Email)
	assert.False(t, parsed.Expired())
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	provider := newTestProvider(t)

	_, err := provider.ValidateToken("not.a.token")
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryAuth, richErr.Category)
}
