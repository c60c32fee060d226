package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hrpulse/hr-notify/internal/domain"
)

// Identity is the acting user as asserted by the fronting auth/session layer.
// Authentication itself is an external collaborator: this service trusts the
// X-User-ID / X-User-Role headers injected after session validation and does
// not re-validate credentials.
type Identity struct {
	UserID string
	Role   domain.Role
}

const identityKey contextKey = "identity"

// RequireUser rejects requests that carry no identity headers and stores the
// identity on the request context for handlers.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Identity{
			UserID: r.Header.Get("X-User-ID"),
			Role:   domain.Role(r.Header.Get("X-User-Role")),
		}
		if id.UserID == "" || !id.Role.IsValid() {
			unauthorized(w, "missing or invalid identity")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin allows only ADMIN identities through. Must be nested inside
// RequireUser.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetIdentity(r.Context())
		if !ok {
			unauthorized(w, "missing identity")
			return
		}
		if id.Role != domain.RoleAdmin {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "admin role required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetIdentity retrieves the identity stored by RequireUser.
func GetIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
