package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/roktodanbd/roktodan/internal/auth"
)

// SessionCookie carries the session token for browser clients. API clients
// may send the same token as a bearer token instead.
const SessionCookie = "roktodan_session"

// Authenticator resolves a session token. A nil result with a nil error
// means the token is unknown or expired.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.AuthContext, error)
}

// SessionToken returns the token from the session cookie or the
// Authorization header.
func SessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// RequireAuth resolves the session and stores its AuthContext on the request.
// Requests without a live session get 401.
func RequireAuth(a Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			ac, err := a.Authenticate(r.Context(), token)
			if err != nil {
				logger.Error("authenticate session", "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if ac == nil {
				writeError(w, http.StatusUnauthorized, "session expired")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), *ac)))
		})
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			writeError(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireDonor admits accounts with a donor profile.
func RequireDonor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.DonorID(r.Context()); !ok {
			writeError(w, http.StatusForbidden, "donor profile required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRecipient admits accounts with a recipient profile.
func RequireRecipient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.RecipientID(r.Context()); !ok {
			writeError(w, http.StatusForbidden, "recipient profile required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
