package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"Storefront/internal/catalog"
	"Storefront/pkg/kit"
)

// ProductSource is the read side of the catalog the cart needs.
type ProductSource interface {
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
}

type Server struct {
	Store   SnapshotStore
	Catalog ProductSource
	Log     *zap.Logger

	mutations *prometheus.CounterVec
}

func (s *Server) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Server) countMutation(op string) {
	if s.mutations != nil {
		s.mutations.WithLabelValues(op).Inc()
	}
}

// stockError carries the details of a rejected add or update.
type stockError struct {
	ProductID string
	Available int
}

func (e *stockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s", e.ProductID)
}

var errNotInCart = errors.New("product not in cart")

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

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	id, _ := kit.IdentityFromContext(r.Context())

	c, err := Get(r.Context(), s.Store, s.log(), id.UserID)
	if err != nil {
		s.log().Error("load cart failed", zap.Error(err), zap.String("user_id", id.UserID))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}
	kit.WriteJSON(w, http.StatusOK, c.View())
}

type addItemReq struct {
	ProductID string            `json:"product_id"`
	Quantity  int               `json:"quantity"`
	Variants  map[string]string `json:"variants"`
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	id, _ := kit.IdentityFromContext(r.Context())

	var req addItemReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}
	if req.ProductID == "" {
		kit.WriteError(w, r, http.StatusBadRequest, "product_id required", nil)
		return
	}
	if req.Quantity <= 0 || req.Quantity > MaxLineQuantity {
		kit.WriteError(w, r, http.StatusBadRequest, ErrBadQuantity.Error(), nil)
		return
	}

	p, ok := s.lookup(w, r, req.ProductID)
	if !ok {
		return
	}
	if err := p.ValidateSelection(req.Variants); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, err.Error(), map[string]any{"product_id": p.ID})
		return
	}

	c, err := s.Store.Update(r.Context(), id.UserID, func(c *Cart) error {
		if c.Quantity(p.ID)+req.Quantity > p.Stock {
			return &stockError{ProductID: p.ID, Available: p.Stock}
		}
		return c.Add(Item{
			ProductID:  p.ID,
			Name:       p.Name,
			PriceCents: p.PriceCents,
			ImageURL:   p.ImageURL,
		}, req.Quantity, req.Variants)
	})
	if err != nil {
		s.writeUpdateError(w, r, err, id.UserID)
		return
	}

	s.countMutation("add")
	kit.WriteJSON(w, http.StatusOK, c.View())
}

type updateItemReq struct {
	Quantity int `json:"quantity"`
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	id, _ := kit.IdentityFromContext(r.Context())
	productID := chi.URLParam(r, "product_id")

	var req updateItemReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}
	if req.Quantity > MaxLineQuantity {
		kit.WriteError(w, r, http.StatusBadRequest, ErrBadQuantity.Error(), nil)
		return
	}

	stock := -1
	if req.Quantity > 0 {
		p, ok := s.lookup(w, r, productID)
		if !ok {
			return
		}
		stock = p.Stock
	}

	c, err := s.Store.Update(r.Context(), id.UserID, func(c *Cart) error {
		lines := c.LineCount(productID)
		if lines == 0 {
			return errNotInCart
		}
		if stock >= 0 && req.Quantity*lines > stock {
			return &stockError{ProductID: productID, Available: stock}
		}
		_, err := c.UpdateQuantity(productID, req.Quantity)
		return err
	})
	if err != nil {
		s.writeUpdateError(w, r, err, id.UserID)
		return
	}

	s.countMutation("update")
	kit.WriteJSON(w, http.StatusOK, c.View())
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request) {
	id, _ := kit.IdentityFromContext(r.Context())
	productID := chi.URLParam(r, "product_id")

	c, err := s.Store.Update(r.Context(), id.UserID, func(c *Cart) error {
		c.Remove(productID)
		return nil
	})
	if err != nil {
		s.writeUpdateError(w, r, err, id.UserID)
		return
	}

	s.countMutation("remove")
	kit.WriteJSON(w, http.StatusOK, c.View())
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	id, _ := kit.IdentityFromContext(r.Context())

	if err := s.Store.Delete(r.Context(), id.UserID); err != nil {
		s.log().Error("clear cart failed", zap.Error(err), zap.String("user_id", id.UserID))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}

	s.countMutation("clear")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request, productID string) (catalog.Product, bool) {
	p, err := s.Catalog.GetProduct(r.Context(), productID)
	switch {
	case err == nil:
		return p, true
	case errors.Is(err, catalog.ErrClientNotFound):
		kit.WriteError(w, r, http.StatusBadRequest, "invalid product_id", map[string]any{"product_id": productID})
	case errors.Is(err, catalog.ErrClientUnavailable):
		s.log().Warn("catalog unavailable", zap.Error(err))
		kit.WriteError(w, r, http.StatusServiceUnavailable, "catalog unavailable", nil)
	default:
		s.log().Error("catalog lookup failed", zap.Error(err), zap.String("product_id", productID))
		kit.WriteError(w, r, http.StatusBadGateway, "catalog error", nil)
	}
	return catalog.Product{}, false
}

func (s *Server) writeUpdateError(w http.ResponseWriter, r *http.Request, err error, userID string) {
	var se *stockError
	switch {
	case errors.As(err, &se):
		kit.WriteError(w, r, http.StatusConflict, "insufficient stock",
			map[string]any{"product_id": se.ProductID, "available": se.Available})
	case errors.Is(err, errNotInCart):
		kit.WriteError(w, r, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, ErrBadQuantity), errors.Is(err, ErrTotalOverflow):
		kit.WriteError(w, r, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, ErrConflict):
		kit.WriteError(w, r, http.StatusConflict, "concurrent cart update, retry", nil)
	default:
		s.log().Error("cart update failed", zap.Error(err), zap.String("user_id", userID))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
	}
}
