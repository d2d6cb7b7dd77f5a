package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"Storefront/internal/auth"
	"Storefront/pkg/kit"
)

type Deps struct {
	AuthURL    string
	CatalogURL string
	CartURL    string
	OrderURL   string
	JWTSecret  string
}

const (
	readyTimeout      = 2 * time.Second
	readyProbeTimeout = 700 * time.Millisecond
)

var readyClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
	},
}

type upstream struct {
	name string
	url  string
}

func (d Deps) upstreams() []upstream {
	return []upstream{
		{"auth", d.AuthURL},
		{"catalog", d.CatalogURL},
		{"cart", d.CartURL},
		{"order", d.OrderURL},
	}
}

func NewHandler(deps Deps, httpDeps kit.HTTPDeps) (http.Handler, error) {
	proxies := map[string]http.Handler{}
	for _, u := range deps.upstreams() {
		p, err := NewReverseProxy(u.url, httpDeps.Log)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", u.name, err)
		}
		proxies[u.name] = p
	}
	authProxy, catalogProxy := proxies["auth"], proxies["catalog"]
	cartProxy, orderProxy := proxies["cart"], proxies["order"]

	jwt := auth.NewTokenMaker(deps.JWTSecret)

	r := kit.NewRouter(httpDeps)
	r.Get("/healthz", kit.Healthz)
	r.Get("/readyz", readyz(deps, httpDeps.Log))

	r.Handle("/auth", authProxy)
	r.Handle("/auth/*", authProxy)

	r.Get("/products", catalogProxy.ServeHTTP)
	r.Get("/products/*", catalogProxy.ServeHTTP)
	r.Get("/categories", catalogProxy.ServeHTTP)
	r.Get("/images/*", catalogProxy.ServeHTTP)

	r.Group(func(pr chi.Router) {
		pr.Use(AuthJWT(jwt))
		pr.Handle("/cart", cartProxy)
		pr.Handle("/cart/*", cartProxy)
		pr.Handle("/orders", orderProxy)
		pr.Handle("/orders/*", orderProxy)
	})

	r.Group(func(ar chi.Router) {
		ar.Use(AuthJWT(jwt), kit.RequireAdmin)
		ar.Handle("/admin/orders", orderProxy)
		ar.Handle("/admin/orders/*", orderProxy)
		ar.Handle("/admin/*", catalogProxy)
	})

	return r, nil
}

func readyz(deps Deps, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		for _, u := range deps.upstreams() {
			if err := checkReady(ctx, u.url+"/readyz"); err != nil {
				if log != nil {
					log.Warn("readyz failed", zap.String("upstream", u.name), zap.Error(err))
				}
				kit.WriteError(w, r, http.StatusServiceUnavailable, u.name+" not ready", nil)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}

func checkReady(ctx context.Context, url string) error {
	cctx, cancel := context.WithTimeout(ctx, readyProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := readyClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status=%d", resp.StatusCode)
	}
	return nil
}
