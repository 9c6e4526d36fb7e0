package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/hypeshelf/hypeshelf/internal/identity"
)

// CookieName holds the session token set at sign-in.
const CookieName = "token"

var errSignInDisabled = errors.New("auth: sign-in is disabled")

// RequireAuth rejects requests without a valid session token with 401 and
// stores the caller in the request context otherwise.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := extractCaller(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"authentication_error","message":"not authenticated: please sign in"}`))
				return
			}

			next.ServeHTTP(w, r.WithContext(identity.WithCaller(r.Context(), caller)))
		})
	}
}

// OptionalAuth stores the caller when a valid token is present and lets
// anonymous requests through unchanged.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if caller, err := extractCaller(r, tokens); err == nil {
				r = r.WithContext(identity.WithCaller(r.Context(), caller))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractCaller prefers an "Authorization: Bearer" header over the cookie.
// A nil tokens means sign-in is disabled and nobody is authenticated.
func extractCaller(r *http.Request, tokens *TokenService) (identity.Caller, error) {
	if tokens == nil {
		return identity.Caller{}, errSignInDisabled
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if raw, ok := strings.CutPrefix(h, "Bearer "); ok {
			return tokens.Validate(strings.TrimSpace(raw))
		}
	}

	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return identity.Caller{}, err
	}
	return tokens.Validate(cookie.Value)
}
