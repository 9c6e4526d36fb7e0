package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypeshelf/hypeshelf/internal/auth"
)

func newTestSessionService(t *testing.T) *SessionService {
	t.Helper()
	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	require.NoError(t, err)
	return NewSessionService(ts, testLogger())
}

func TestLoginGitHub(t *testing.T) {
	svc := newTestSessionService(t)

	session, err := svc.LoginGitHub(&auth.GitHubUser{ID: 42, Login: "octocat", Name: "Octo Cat"})
	require.NoError(t, err)
	assert.Equal(t, "github:42", session.Caller.Subject)
	assert.Equal(t, "Octo Cat", session.Caller.Name)
	assert.NotEmpty(t, session.Token)

	caller, err := svc.Authenticate(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.Caller, caller)
}

func TestLoginGitHub_NilUser(t *testing.T) {
	svc := newTestSessionService(t)

	_, err := svc.LoginGitHub(nil)
	assert.Error(t, err)
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	svc := newTestSessionService(t)

	_, err := svc.Authenticate("garbage")
	assert.Error(t, err)
}
