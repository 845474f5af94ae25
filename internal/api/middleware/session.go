package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/example/tree-shop/internal/auth"
	"github.com/example/tree-shop/internal/session"
)

// SessionCookie carries the session token for browser clients
const SessionCookie = "shop_session"

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// ExtractToken extracts the session token from cookie or Authorization header
func ExtractToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// SessionLookup resolves a session id to an open session
type SessionLookup interface {
	Get(id string) (*session.Session, error)
}

type contextKey string

const SessionContextKey contextKey = "shop_session"

// SessionMiddleware validates the session token, resolves the open session
// and adds it to the request context.
func SessionMiddleware(tokens *auth.SessionTokens, sessions SessionLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := ExtractToken(r)
			if tokenString == "" {
				respondError(w, "missing session token", http.StatusUnauthorized)
				return
			}

			claims, err := tokens.Validate(tokenString)
			if err != nil {
				respondError(w, err.Error(), http.StatusUnauthorized)
				return
			}

			s, err := sessions.Get(claims.SessionID)
			if err != nil {
				respondError(w, err.Error(), http.StatusNotFound)
				return
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext retrieves the shop session from the request context
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(SessionContextKey).(*session.Session)
	return s, ok
}
