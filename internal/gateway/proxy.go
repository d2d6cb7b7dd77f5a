package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"go.uber.org/zap"

	"Storefront/internal/auth"
	"Storefront/pkg/kit"
)

// AuthJWT verifies the bearer token and stores the caller's identity in the
// request context. Requests without a valid token are rejected with 401.
func AuthJWT(jwt *auth.TokenMaker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, ok := kit.BearerToken(r)
			if !ok {
				kit.WriteError(w, r, http.StatusUnauthorized, "missing token", nil)
				return
			}
			claims, err := jwt.Parse(tok)
			if err != nil {
				kit.WriteError(w, r, http.StatusUnauthorized, "invalid token", nil)
				return
			}

			role := claims.Role
			if role == "" {
				role = kit.RoleUser
			}
			ctx := kit.WithIdentity(r.Context(), kit.Identity{UserID: claims.UserID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewReverseProxy forwards to target. Identity headers sent by the client
// are always dropped; they are set only from a verified token.
func NewReverseProxy(target string, log *zap.Logger) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse upstream %q: %w", target, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream %q must be an absolute url", target)
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.SetXForwarded()

			pr.Out.Header.Del(kit.HeaderUserID)
			pr.Out.Header.Del(kit.HeaderUserRole)
			if id, ok := kit.IdentityFromContext(pr.In.Context()); ok {
				pr.Out.Header.Set(kit.HeaderUserID, id.UserID)
				pr.Out.Header.Set(kit.HeaderUserRole, id.Role)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Warn("upstream error", zap.String("upstream", u.Host), zap.String("path", r.URL.Path), zap.Error(err))
			kit.WriteError(w, r, http.StatusBadGateway, "upstream unavailable", nil)
		},
	}, nil
}
