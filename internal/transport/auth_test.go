package transport

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret, subject string, admin bool, expired bool) string {
	t.Helper()
	exp := time.Now().Add(time.Hour)
	if expired {
		exp = time.Now().Add(-time.Hour)
	}
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Admin: admin,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAuthenticate_ValidToken(t *testing.T) {
	a := newAuthenticator("top-secret")
	token := signToken(t, "top-secret", "alice", false, false)

	userID, isAdmin, err := a.authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)
	assert.False(t, isAdmin)
}

func TestAuthenticate_AdminClaim(t *testing.T) {
	a := newAuthenticator("top-secret")
	token := signToken(t, "top-secret", "root-admin", true, false)

	_, isAdmin, err := a.authenticate(token)
	require.NoError(t, err)
	assert.True(t, isAdmin)
}

func TestAuthenticate_WrongSecretRejected(t *testing.T) {
	a := newAuthenticator("top-secret")
	token := signToken(t, "a-different-secret", "alice", false, false)

	_, _, err := a.authenticate(token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthenticate_ExpiredTokenRejected(t *testing.T) {
	a := newAuthenticator("top-secret")
	token := signToken(t, "top-secret", "alice", false, true)

	_, _, err := a.authenticate(token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthenticate_EmptyTokenRejected(t *testing.T) {
	a := newAuthenticator("top-secret")
	_, _, err := a.authenticate("")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
