// Package auth carries the caller's delegated access token from the HTTP
// request to the record store. Tokens are issued by the external identity
// provider and verified by the record store; this package only reads them.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned when no usable token is available.
var ErrUnauthenticated = errors.New("unable to get access token, please sign in")

// TokenSource yields an access token for the record store.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a delegated token taken from the incoming request.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrUnauthenticated
	}
	return string(t), nil
}

// Identity is what the service learns about the caller from the token.
type Identity struct {
	Subject  string `json:"oid"`
	Name     string `json:"name"`
	Username string `json:"preferred_username"`
}

type identityClaims struct {
	Identity
	jwt.RegisteredClaims
}

type ctxKey struct{}

type principal struct {
	tokens   TokenSource
	identity Identity
}

// WithToken returns a context that carries a delegated token.
func WithToken(ctx context.Context, token string, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, principal{tokens: StaticToken(token), identity: id})
}

// FromContext returns the token source stored by Middleware.
func FromContext(ctx context.Context) (TokenSource, bool) {
	p, ok := ctx.Value(ctxKey{}).(principal)
	if !ok {
		return nil, false
	}
	return p.tokens, true
}

// IdentityFromContext returns the caller identity stored by Middleware.
func IdentityFromContext(ctx context.Context) Identity {
	p, _ := ctx.Value(ctxKey{}).(principal)
	return p.identity
}

// ParseIdentity reads caller claims without verifying the signature. An
// opaque (non-JWT) token yields an empty identity.
func ParseIdentity(token string) Identity {
	claims := &identityClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Identity{}
	}
	id := claims.Identity
	if id.Subject == "" {
		id.Subject = claims.RegisteredClaims.Subject
	}
	return id
}

// Middleware requires a bearer token and stores it in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if header == "" || token == header || strings.TrimSpace(token) == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Please sign in to save your report"})
			return
		}
		ctx := WithToken(r.Context(), token, ParseIdentity(token))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Scopes are the delegated permissions the UI must request.
var Scopes = []string{"Sites.ReadWrite.All", "User.Read"}

// ClientConfig is what the UI needs to acquire a token from the identity
// provider.
type ClientConfig struct {
	ClientID    string   `json:"clientId"`
	Authority   string   `json:"authority"`
	RedirectURI string   `json:"redirectUri,omitempty"`
	Scopes      []string `json:"scopes"`
}

// ConfigHandler serves cfg as JSON.
func ConfigHandler(cfg ClientConfig) http.HandlerFunc {
	if cfg.Scopes == nil {
		cfg.Scopes = Scopes
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(cfg)
	}
}
