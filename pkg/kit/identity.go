package kit

import (
	"context"
	"net/http"
	"strings"
)

// Identity headers are set by the gateway after the JWT has been verified.
// Upstream services trust them and never see the token itself.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"

	RoleUser  = "user"
	RoleAdmin = "admin"
)

type ctxKey string

const identityKey ctxKey = "identity"

type Identity struct {
	UserID string
	Role   string
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserID != ""
}

func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if uid == "" {
			WriteError(w, r, http.StatusUnauthorized, "no user", nil)
			return
		}

		role := strings.TrimSpace(r.Header.Get(HeaderUserRole))
		if role == "" {
			role = RoleUser
		}

		ctx := WithIdentity(r.Context(), Identity{UserID: uid, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin must run after RequireUser.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			WriteError(w, r, http.StatusUnauthorized, "no user", nil)
			return
		}
		if !id.IsAdmin() {
			WriteError(w, r, http.StatusForbidden, "forbidden", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
