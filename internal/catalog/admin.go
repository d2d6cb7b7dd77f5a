package catalog

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"Storefront/pkg/kit"
)

type createProductReq struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"price_cents"`
	Category    string    `json:"category"`
	ImageURL    string    `json:"image_url"`
	Stock       int       `json:"stock"`
	Featured    bool      `json:"featured"`
	Variants    []Variant `json:"variants"`
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}

	now := time.Now().UTC()
	p := Product{
		ID:          "p_" + uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Category:    strings.TrimSpace(req.Category),
		ImageURL:    req.ImageURL,
		Stock:       req.Stock,
		Featured:    req.Featured,
		Variants:    req.Variants,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.Validate(); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := s.Store.Create(r.Context(), p); err != nil {
		s.log().Error("create product failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}

	s.log().Info("product created", zap.String("product_id", p.ID))
	kit.WriteJSON(w, http.StatusCreated, p)
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var patch ProductPatch
	if err := kit.DecodeJSON(w, r, &patch); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}
	if patch.Empty() {
		kit.WriteError(w, r, http.StatusBadRequest, "empty update", nil)
		return
	}
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		patch.Name = &trimmed
	}

	p, err := s.Store.Update(r.Context(), id, patch)
	if err != nil {
		s.writeStoreError(w, r, err, id)
		return
	}
	kit.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := s.Store.Delete(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err, id)
		return
	}

	if p.ImageURL != "" && s.Images != nil {
		if err := s.Images.Delete(r.Context(), p.ImageURL); err != nil {
			s.log().Info("product image not deleted", zap.String("product_id", id), zap.Error(err))
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) uploadImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.Images == nil {
		kit.WriteError(w, r, http.StatusServiceUnavailable, "image storage disabled", nil)
		return
	}

	cur, ok, err := s.Store.Get(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err, id)
		return
	}
	if !ok {
		kit.WriteError(w, r, http.StatusNotFound, "not found", map[string]any{"id": id})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+(1<<16))
	file, header, err := r.FormFile("image")
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "image file required", map[string]any{"cause": err.Error()})
		return
	}
	defer file.Close()

	url, err := s.Images.Put(r.Context(), header.Filename, file)
	if err != nil {
		if errors.Is(err, ErrNotAnImage) {
			kit.WriteError(w, r, http.StatusBadRequest, "not an image", nil)
			return
		}
		s.log().Error("store image failed", zap.Error(err), zap.String("product_id", id))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}

	p, err := s.Store.Update(r.Context(), id, ProductPatch{ImageURL: &url})
	if err != nil {
		_ = s.Images.Delete(r.Context(), url)
		s.writeStoreError(w, r, err, id)
		return
	}

	if cur.ImageURL != "" && cur.ImageURL != url {
		if err := s.Images.Delete(r.Context(), cur.ImageURL); err != nil {
			s.log().Info("old product image not deleted", zap.String("product_id", id), zap.Error(err))
		}
	}

	kit.WriteJSON(w, http.StatusOK, p)
}

type createCategoryReq struct {
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ImageURL string `json:"image_url"`
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}

	c := Category{
		ID:       "c_" + uuid.NewString(),
		Name:     strings.TrimSpace(req.Name),
		Slug:     Slugify(req.Slug),
		ImageURL: req.ImageURL,
	}
	if c.Slug == "" {
		c.Slug = Slugify(c.Name)
	}
	if c.Name == "" || c.Slug == "" {
		kit.WriteError(w, r, http.StatusBadRequest, "name required", nil)
		return
	}

	if err := s.Store.CreateCategory(r.Context(), c); err != nil {
		if errors.Is(err, ErrSlugExists) {
			kit.WriteError(w, r, http.StatusConflict, err.Error(), map[string]any{"slug": c.Slug})
			return
		}
		s.log().Error("create category failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}
	kit.WriteJSON(w, http.StatusCreated, c)
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error, id string) {
	switch {
	case errors.Is(err, ErrNotFound):
		kit.WriteError(w, r, http.StatusNotFound, "not found", map[string]any{"id": id})
	case errors.Is(err, ErrInvalidProduct):
		kit.WriteError(w, r, http.StatusBadRequest, err.Error(), nil)
	default:
		s.log().Error("catalog store failed", zap.Error(err), zap.String("id", id))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
	}
}
