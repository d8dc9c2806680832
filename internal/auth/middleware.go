package auth

import (
	"context"
	"net/http"

	"github.com/sakif/planet-hub/internal/model"
)

// contextKey is a private type for context keys.
//
// Using a custom type prevents collisions with other packages that might also
// store values under the key "session". A string key like "session" would
// collide; contextKey("session") never collides with string("session").
type contextKey string

const sessionKey contextKey = "session"

// SessionReader extracts the session from a request. *Gateway implements it;
// handler tests pass a stub.
type SessionReader interface {
	CurrentSession(r *http.Request) (model.Session, bool)
}

// RequireAuth rejects requests without a valid session with 401.
//
// Usage in router:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(auth.RequireAuth(gateway))
//	    r.Post("/api/issues", issueHandler.Create)
//	})
func RequireAuth(sessions SessionReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := sessions.CurrentSession(r)
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}

// OptionalAuth attaches the session when there is one and never blocks.
// Pages use it to render a signed-in or signed-out header.
func OptionalAuth(sessions SessionReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s, ok := sessions.CurrentSession(r); ok {
				r = r.WithContext(WithSession(r.Context(), s))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithSession(ctx context.Context, s model.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns (session, true) when the request is signed in.
// Handlers read it once and pass it explicitly into services.
func SessionFromContext(ctx context.Context) (model.Session, bool) {
	s, ok := ctx.Value(sessionKey).(model.Session)
	return s, ok && s.Valid()
}
