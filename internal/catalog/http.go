package catalog

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"Storefront/pkg/kit"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Server struct {
	Store  Store
	Images ImageStore
	Log    *zap.Logger
}

type Page struct {
	Items      []Product `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

func (s *Server) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
	defer cancel()

	if err := s.Store.Ping(ctx); err != nil {
		s.log().Warn("readyz failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}

	limit := q.Limit
	q.Limit = limit + 1

	products, err := s.Store.List(r.Context(), q)
	if err != nil {
		s.log().Error("list products failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}

	page := Page{Items: products}
	if len(products) > limit {
		page.Items = products[:limit]
		page.NextCursor = CursorOf(page.Items[limit-1]).Encode()
	}
	kit.WriteJSON(w, http.StatusOK, page)
}

func parseListQuery(r *http.Request) (ListQuery, error) {
	v := r.URL.Query()
	q := ListQuery{
		Category: strings.TrimSpace(v.Get("category")),
		Limit:    defaultPageSize,
	}

	if raw := v.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return ListQuery{}, errors.New("bad limit")
		}
		q.Limit = min(n, maxPageSize)
	}

	if raw := v.Get("featured"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return ListQuery{}, errors.New("bad featured")
		}
		q.FeaturedOnly = b
	}

	if raw := v.Get("after"); raw != "" {
		c, err := DecodeCursor(raw)
		if err != nil {
			return ListQuery{}, err
		}
		q.After = &c
	}
	return q, nil
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, ok, err := s.Store.Get(r.Context(), id)
	if err != nil {
		s.log().Error("get product failed", zap.Error(err), zap.String("id", id))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}
	if !ok {
		kit.WriteError(w, r, http.StatusNotFound, "not found", map[string]any{"id": id})
		return
	}
	kit.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	cs, err := s.Store.ListCategories(r.Context())
	if err != nil {
		s.log().Error("list categories failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}
	kit.WriteJSON(w, http.StatusOK, cs)
}
