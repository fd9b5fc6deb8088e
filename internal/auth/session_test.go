// internal/auth/session_test.go
package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	Init()

	userID := uuid.New()
	token, err := CreateJWT(userID.String())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	sub, err := AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), sub)
}

func TestAuthorityIssueVerify(t *testing.T) {
	Init()

	userID := uuid.New()
	ta := TokenAuthority{}

	token, err := ta.Issue(userID)
	require.NoError(t, err)

	got, err := ta.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	Init()

	_, err := AuthenticateJWT("not-a-token")
	assert.Error(t, err)

	// token signed by a discarded key pair must not verify
	staleToken, err := CreateJWT(uuid.New().String())
	require.NoError(t, err)
	Init()
	_, err = AuthenticateJWT(staleToken)
	assert.Error(t, err)
}
