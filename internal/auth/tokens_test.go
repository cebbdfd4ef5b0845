package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenManager(t *testing.T) *TokenManager {
	t.Helper()

	tokens, err := NewTokenManager("access-secret", "refresh-secret")
	require.NoError(t, err)
	return tokens
}

func TestNewTokenManager_EmptySecret(t *testing.T) {
	t.Parallel()

	_, err := NewTokenManager("", "refresh-secret")
	require.Error(t, err)

	_, err = NewTokenManager("access-secret", "")
	require.Error(t, err)
}

func TestAccessToken_RoundTrip(t *testing.T) {
	t.Parallel()

	tokens := newTestTokenManager(t)

	token, err := tokens.IssueAccess("user-123")
	require.NoError(t, err)

	subject, err := tokens.VerifyAccess(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", subject)
}

func TestRefreshToken_RoundTrip(t *testing.T) {
	t.Parallel()

	tokens := newTestTokenManager(t)

	token, err := tokens.IssueRefresh("user-123")
	require.NoError(t, err)

	subject, err := tokens.VerifyRefresh(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", subject)
}

func TestVerify_TokenTypeConfusion(t *testing.T) {
	t.Parallel()

	tokens := newTestTokenManager(t)

	access, err := tokens.IssueAccess("user-123")
	require.NoError(t, err)
	refresh, err := tokens.IssueRefresh("user-123")
	require.NoError(t, err)

	// A refresh token must never pass as an access token or vice versa,
	// even ignoring the secret split.
	_, err = tokens.VerifyAccess(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = tokens.VerifyRefresh(access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyAccess_Expired(t *testing.T) {
	t.Parallel()

	tokens := newTestTokenManager(t)
	expired := signedToken(t, "access-secret", jwt.MapClaims{
		"sub": "user-123",
		"iat": time.Now().Add(-time.Hour).Unix(),
		"exp": time.Now().Add(-time.Minute).Unix(),
		"typ": "access",
	})

	_, err := tokens.VerifyAccess(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyAccess_WrongSecret(t *testing.T) {
	t.Parallel()

	tokens := newTestTokenManager(t)
	forged := signedToken(t, "some-other-secret", jwt.MapClaims{
		"sub": "user-123",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
		"typ": "access",
	})

	_, err := tokens.VerifyAccess(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyAccess_MissingSubject(t *testing.T) {
	t.Parallel()

	tokens := newTestTokenManager(t)
	anonymous := signedToken(t, "access-secret", jwt.MapClaims{
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
		"typ": "access",
	})

	_, err := tokens.VerifyAccess(anonymous)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyAccess_Malformed(t *testing.T) {
	t.Parallel()

	tokens := newTestTokenManager(t)

	for _, tokenStr := range []string{"", "not.a.jwt", "garbage"} {
		_, err := tokens.VerifyAccess(tokenStr)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
}

func TestIssueAccess_Unique(t *testing.T) {
	t.Parallel()

	tokens := newTestTokenManager(t)

	first, err := tokens.IssueAccess("user-123")
	require.NoError(t, err)
	second, err := tokens.IssueAccess("user-123")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func signedToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}
