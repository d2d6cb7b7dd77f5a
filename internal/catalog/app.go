package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"Storefront/pkg/kit"
)

// ImageServer is implemented by image stores that can serve their own files.
type ImageServer interface {
	Handler() http.Handler
}

func NewHandler(s *Server, deps kit.HTTPDeps) http.Handler {
	if s.Log == nil {
		s.Log = deps.Log
	}

	r := kit.NewRouter(deps)
	r.Get("/healthz", kit.Healthz)
	r.Get("/readyz", s.readyz)

	r.Get("/products", s.list)
	r.Get("/products/{id}", s.get)
	r.Get("/categories", s.listCategories)

	if is, ok := s.Images.(ImageServer); ok {
		r.Handle("/images/*", is.Handler())
	}

	r.Route("/admin", func(ar chi.Router) {
		ar.Use(kit.RequireUser, kit.RequireAdmin)
		ar.Post("/products", s.createProduct)
		ar.Put("/products/{id}", s.updateProduct)
		ar.Delete("/products/{id}", s.deleteProduct)
		ar.Put("/products/{id}/image", s.uploadImage)
		ar.Post("/categories", s.createCategory)
	})

	return r
}
