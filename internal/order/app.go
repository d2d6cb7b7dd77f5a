package order

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"Storefront/pkg/kit"
)

const (
	placeLimit  = 10
	placeWindow = time.Minute
)

func NewHandler(s *Server, deps kit.HTTPDeps) http.Handler {
	if s.Log == nil {
		s.Log = deps.Log
	}
	if deps.Registry != nil && s.metrics == nil {
		s.metrics = newMetrics(deps.Registry)
	}

	r := kit.NewRouter(deps)
	r.Get("/healthz", kit.Healthz)
	r.Get("/readyz", s.readyz)

	placeRL := kit.NewRateLimiter(placeLimit, placeWindow, kit.UserOrIP)

	r.Route("/orders", func(pr chi.Router) {
		pr.Use(kit.RequireUser)
		pr.With(placeRL.Middleware).Post("/", s.place)
		pr.Get("/", s.listMine)
		pr.Get("/{id}", s.get)
		pr.Post("/{id}/cancel", s.cancel)
	})

	r.Route("/admin/orders", func(ar chi.Router) {
		ar.Use(kit.RequireUser, kit.RequireAdmin)
		ar.Get("/", s.adminList)
		ar.Patch("/{id}/status", s.adminSetStatus)
	})

	return r
}
