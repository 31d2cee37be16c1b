package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestMiddleware(t *testing.T) {
	var seen Identity
	var seenToken string
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts, ok := FromContext(r.Context())
		require.True(t, ok)
		tok, err := ts.Token(r.Context())
		require.NoError(t, err)
		seenToken = tok
		seen = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Please sign in")
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Basic abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("jwt bearer", func(t *testing.T) {
		token := signedToken(t, jwt.MapClaims{
			"oid":                "0000-1111",
			"name":               "Pat Shaw",
			"preferred_username": "pshaw@example.com",
		})
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, token, seenToken)
		assert.Equal(t, Identity{Subject: "0000-1111", Name: "Pat Shaw", Username: "pshaw@example.com"}, seen)
	})

	t.Run("opaque bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer opaque-token")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "opaque-token", seenToken)
		assert.Equal(t, Identity{}, seen)
	})
}

func TestParseIdentityFallsBackToSubject(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "abc", "name": "Lee"})
	assert.Equal(t, Identity{Subject: "abc", Name: "Lee"}, ParseIdentity(token))
}

func TestStaticTokenEmpty(t *testing.T) {
	_, err := StaticToken("").Token(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestConfigHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	ConfigHandler(ClientConfig{
		ClientID:  "app-id",
		Authority: "https://login.microsoftonline.com/tenant",
	}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/config", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got ClientConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "app-id", got.ClientID)
	assert.Equal(t, "https://login.microsoftonline.com/tenant", got.Authority)
	assert.Equal(t, []string{"Sites.ReadWrite.All", "User.Read"}, got.Scopes)
}
