package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticator_IssueAndVerify(t *testing.T) {
	auth := NewAuthenticator("super-secret", time.Hour)

	token, expiry, err := auth.Issue("user-1", []string{"admin"})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiry, 2*time.Second)

	authUser, err := auth.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", authUser.UserID)
	assert.Equal(t, []string{"admin"}, authUser.Roles)
}

func TestAuthenticator_Verify_ExpiredToken(t *testing.T) {
	auth := NewAuthenticator("super-secret", -time.Minute)
	token, _, err := auth.Issue("user-1", []string{"user"})
	require.NoError(t, err)

	_, err = auth.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticator_Verify_WrongSecret(t *testing.T) {
	issuer := NewAuthenticator("secret-a", time.Hour)
	verifier := NewAuthenticator("secret-b", time.Hour)

	token, _, err := issuer.Issue("user-1", []string{"user"})
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticator_Verify_Garbage(t *testing.T) {
	auth := NewAuthenticator("super-secret", time.Hour)
	_, err := auth.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
