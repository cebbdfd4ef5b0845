package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_ValidToken(t *testing.T) {
	t.Parallel()

	tokens := newTestTokenManager(t)
	token, err := tokens.IssueAccess("user-123")
	require.NoError(t, err)

	var gotSubject string
	handler := Middleware(tokens, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject, _ = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "user-123", gotSubject)
}

func TestMiddleware_Rejections(t *testing.T) {
	t.Parallel()

	tokens := newTestTokenManager(t)
	refresh, err := tokens.IssueRefresh("user-123")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not bearer", "Basic abc"},
		{"bearer without token", "Bearer "},
		{"malformed token", "Bearer not.a.jwt"},
		{"refresh token in auth header", "Bearer " + refresh},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := Middleware(tokens, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("downstream handler must not run")
			}))

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, req)

			assert.Equal(t, http.StatusUnauthorized, recorder.Code)
		})
	}
}

func TestMiddleware_PreflightBypass(t *testing.T) {
	t.Parallel()

	tokens := newTestTokenManager(t)

	called := false
	handler := Middleware(tokens, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	// Preflight requests carry no Authorization header and must pass
	// through without a credential check.
	req := httptest.NewRequest(http.MethodOptions, "/protected", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, recorder.Code)
}
