package cart

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"Storefront/pkg/kit"
)

func NewHandler(s *Server, deps kit.HTTPDeps) http.Handler {
	if s.Log == nil {
		s.Log = deps.Log
	}
	if deps.Registry != nil && s.mutations == nil {
		s.mutations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cart_mutations_total",
			Help: "Cart mutations by operation.",
		}, []string{"op"})
		deps.Registry.MustRegister(s.mutations)
	}

	r := kit.NewRouter(deps)
	r.Get("/healthz", kit.Healthz)
	r.Get("/readyz", s.readyz)

	r.Route("/cart", func(cr chi.Router) {
		cr.Use(kit.RequireUser)
		cr.Get("/", s.getCart)
		cr.Delete("/", s.clearCart)
		cr.Post("/items", s.addItem)
		cr.Patch("/items/{product_id}", s.updateItem)
		cr.Delete("/items/{product_id}", s.removeItem)
	})

	return r
}
