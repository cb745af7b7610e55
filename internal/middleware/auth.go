package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
)

// Verifier checks a bearer session token and returns the verified subject id.
// The real implementation is the identity provider client; tests inject fakes.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

type contextKey string

const userIDKey contextKey = "userId"

// UserID returns the verified user id attached by RequireAuth, or "".
func UserID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

// WithUserID returns a request carrying the given verified user id. Tests use
// it to call handlers without running the middleware.
func WithUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userIDKey, userID))
}

// Auth wraps protected routes with bearer-token verification.
type Auth struct {
	Verifier Verifier
}

func NewAuth(v Verifier) *Auth {
	return &Auth{Verifier: v}
}

// RequireAuth rejects requests without a verifiable bearer credential before
// any handler logic runs.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			unauthorized(w, "Authentication required")
			return
		}

		userID, err := a.Verifier.VerifyToken(r.Context(), token)
		if err != nil || userID == "" {
			log.Printf("[Auth] token verification failed path=%s err=%v", r.URL.Path, err)
			unauthorized(w, "Authentication required")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": msg})
}
