package proposta_test

import (
	"testing"
	"time"

	"github.com/agencykit/proposta"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionExpired(t *testing.T) {
	var nilSession *proposta.Session
	assert.True(t, nilSession.Expired())

	live := &proposta.Session{ExpiresAt: time.Now().Add(time.Hour)}
	assert.False(t, live.Expired())

	stale := &proposta.Session{ExpiresAt: time.Now().Add(-time.Minute)}
	assert.True(t, stale.Expired())

	// no expiry recorded means the token does not expire locally
	open := &proposta.Session{}
	assert.False(t, open.Expired())
}

func TestSessionAccessors(t *testing.T) {
	id := uuid.New()
	session := &proposta.Session{UserID: id, Email: "user@example.com"}

	assert.Equal(t, id.String(), session.GetUserID())
	assert.Equal(t, "user@example.com", session.GetEmail())

	var nilSession *proposta.Session
	assert.Equal(t, "", nilSession.GetUserID())
	assert.Equal(t, "", nilSession.GetEmail())
	assert.Nil(t, nilSession.Account())
}

func TestSessionAccount(t *testing.T) {
	id := uuid.New()
	session := &proposta.Session{
		UserID:   id,
		Email:    "user@example.com",
		Metadata: map[string]any{"name": "User"},
	}

	account := session.Account()
	require.NotNil(t, account)
	assert.Equal(t, id, account.ID)
	assert.Equal(t, "user@example.com", account.Email)
	assert.Equal(t, "User", account.Metadata["name"])
}
