package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"Storefront/internal/cart"
	"Storefront/internal/catalog"
	"Storefront/internal/events"
	"Storefront/pkg/kit"
)

const (
	defaultPaymentMethod  = "unspecified"
	defaultPublishTimeout = 2 * time.Second
)

// ProductSource is the read side of the catalog used for pricing.
type ProductSource interface {
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
}

type Server struct {
	Store       Store
	Catalog     ProductSource
	Idempotency IdempotencyStore
	Events      events.Publisher
	Log         *zap.Logger
	// PublishTimeout bounds how long a committed request waits on the
	// event publisher. Zero means defaultPublishTimeout.
	PublishTimeout time.Duration

	now     func() time.Time
	metrics *metrics
}

type metrics struct {
	placed   prometheus.Counter
	rejected *prometheus.CounterVec
	status   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		placed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_placed_total",
			Help: "Orders committed.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_rejected_total",
			Help: "Order placements rejected, by reason.",
		}, []string{"reason"}),
		status: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_status_changes_total",
			Help: "Order status transitions, by target status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.placed, m.rejected, m.status)
	return m
}

func (s *Server) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Server) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func (s *Server) reject(reason string) {
	if s.metrics != nil {
		s.metrics.rejected.WithLabelValues(reason).Inc()
	}
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

type lineReq struct {
	ProductID string            `json:"product_id"`
	Quantity  int               `json:"quantity"`
	Variants  map[string]string `json:"variants"`
}

type placeReq struct {
	Items           []lineReq `json:"items"`
	ShippingAddress Address   `json:"shipping_address"`
	PaymentMethod   string    `json:"payment_method"`
	TotalCents      *int64    `json:"total_cents"`
}

var (
	errNoItems          = errors.New("items required")
	errBadItem          = errors.New("bad item")
	errQuantityTooLarge = fmt.Errorf("quantity exceeds %d per line", cart.MaxLineQuantity)
	errDuplicateItem    = errors.New("duplicate item")
	errTotalOverflow    = errors.New("total overflow")
	errTotalMismatch    = errors.New("total mismatch")
	errCatalogDown      = errors.New("catalog unavailable")
	errCatalogFailure   = errors.New("catalog error")
)

func (s *Server) place(w http.ResponseWriter, r *http.Request) {
	id, _ := kit.IdentityFromContext(r.Context())

	var req placeReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		s.reject("bad_request")
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return
	}
	if err := validateLines(req.Items); err != nil {
		s.reject("bad_request")
		kit.WriteError(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}
	addr := req.ShippingAddress.Normalize()
	if missing := addr.Missing(); len(missing) > 0 {
		s.reject("bad_request")
		kit.WriteError(w, r, http.StatusBadRequest, ErrInvalidAddress.Error(), map[string]any{"missing": missing})
		return
	}
	payment := strings.TrimSpace(req.PaymentMethod)
	if payment == "" {
		payment = defaultPaymentMethod
	}

	if key := strings.TrimSpace(r.Header.Get(IdempotencyHeader)); key != "" && s.Idempotency != nil {
		if len(key) > maxIdempotencyKey {
			kit.WriteError(w, r, http.StatusBadRequest, "idempotency key too long", nil)
			return
		}
		scoped := idempotencyKey(id.UserID, key)
		ok, err := s.Idempotency.Claim(r.Context(), scoped)
		if err != nil {
			s.log().Error("idempotency claim failed", zap.Error(err))
			kit.WriteError(w, r, http.StatusServiceUnavailable, "idempotency store unavailable", nil)
			return
		}
		if !ok {
			s.reject("duplicate")
			kit.WriteError(w, r, http.StatusConflict, ErrDuplicateRequest.Error(), nil)
			return
		}
		committed := false
		defer func() {
			if committed {
				return
			}
			if err := s.Idempotency.Release(context.WithoutCancel(r.Context()), scoped); err != nil {
				s.log().Warn("idempotency release failed", zap.Error(err))
			}
		}()
		w = &commitWriter{ResponseWriter: w, onCommit: func() { committed = true }}
	}

	items, total, err := s.price(r.Context(), req.Items)
	if err != nil {
		s.writePlaceError(w, r, err)
		return
	}
	if req.TotalCents != nil && *req.TotalCents != total {
		s.reject("total_mismatch")
		kit.WriteError(w, r, http.StatusConflict, errTotalMismatch.Error(),
			map[string]any{"expected_total_cents": total, "client_total_cents": *req.TotalCents})
		return
	}

	now := s.clock()
	o := Order{
		ID:              "o_" + uuid.NewString(),
		UserID:          id.UserID,
		Items:           items,
		TotalCents:      total,
		Status:          StatusPending,
		ShippingAddress: addr,
		PaymentMethod:   payment,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.Store.Place(r.Context(), o); err != nil {
		s.writePlaceError(w, r, err)
		return
	}

	if s.metrics != nil {
		s.metrics.placed.Inc()
	}
	s.log().Info("order placed",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.Int64("total_cents", o.TotalCents),
	)
	s.publish(r.Context(), events.OrderEvent{
		Type:       events.OrderPlaced,
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     string(o.Status),
		TotalCents: o.TotalCents,
		Items:      len(o.Items),
		At:         now,
	})

	kit.WriteJSON(w, http.StatusCreated, o)
}

func validateLines(lines []lineReq) error {
	if len(lines) == 0 {
		return errNoItems
	}
	seen := make(map[cart.Key]struct{}, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l.ProductID) == "" || l.Quantity <= 0 {
			return errBadItem
		}
		if l.Quantity > cart.MaxLineQuantity {
			return errQuantityTooLarge
		}
		k := cart.KeyOf(l.ProductID, l.Variants)
		if _, dup := seen[k]; dup {
			return errDuplicateItem
		}
		seen[k] = struct{}{}
	}
	return nil
}

// price resolves names and prices from the catalog and computes the total.
func (s *Server) price(ctx context.Context, lines []lineReq) ([]Item, int64, error) {
	products := map[string]catalog.Product{}
	items := make([]Item, 0, len(lines))
	var total int64

	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			var err error
			p, err = s.Catalog.GetProduct(ctx, l.ProductID)
			switch {
			case err == nil:
			case errors.Is(err, catalog.ErrClientNotFound):
				return nil, 0, &StockError{ProductID: l.ProductID, Err: ErrProductNotFound}
			case errors.Is(err, catalog.ErrClientUnavailable):
				return nil, 0, errCatalogDown
			default:
				s.log().Warn("catalog error", zap.Error(err), zap.String("product_id", l.ProductID))
				return nil, 0, errCatalogFailure
			}
			products[l.ProductID] = p
		}
		if err := p.ValidateSelection(l.Variants); err != nil {
			return nil, 0, err
		}

		if p.PriceCents < 0 || (p.PriceCents > 0 && int64(l.Quantity) > math.MaxInt64/p.PriceCents) {
			return nil, 0, errTotalOverflow
		}
		sub := p.PriceCents * int64(l.Quantity)
		if total > math.MaxInt64-sub {
			return nil, 0, errTotalOverflow
		}
		total += sub

		items = append(items, Item{
			ProductID:  p.ID,
			Name:       p.Name,
			PriceCents: p.PriceCents,
			Quantity:   l.Quantity,
			Variants:   l.Variants,

			catalogStock: &p.Stock,
		})
	}
	return items, total, nil
}

func (s *Server) writePlaceError(w http.ResponseWriter, r *http.Request, err error) {
	var se *StockError
	switch {
	case errors.As(err, &se) && errors.Is(err, ErrProductNotFound):
		s.reject("invalid_product")
		kit.WriteError(w, r, http.StatusBadRequest, ErrProductNotFound.Error(), map[string]any{"product_id": se.ProductID})
	case errors.As(err, &se) && errors.Is(err, ErrInsufficientStock):
		s.reject("insufficient_stock")
		kit.WriteError(w, r, http.StatusConflict, ErrInsufficientStock.Error(),
			map[string]any{"product_id": se.ProductID, "name": se.Name})
	case errors.Is(err, catalog.ErrInvalidSelection):
		s.reject("bad_request")
		kit.WriteError(w, r, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, errTotalOverflow), errors.Is(err, ErrBadQuantity):
		s.reject("bad_request")
		kit.WriteError(w, r, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, errCatalogDown):
		s.reject("catalog")
		kit.WriteError(w, r, http.StatusServiceUnavailable, err.Error(), nil)
	case errors.Is(err, errCatalogFailure):
		s.reject("catalog")
		kit.WriteError(w, r, http.StatusBadGateway, err.Error(), nil)
	case isTimeoutErr(err):
		s.reject("timeout")
		kit.WriteError(w, r, http.StatusGatewayTimeout, "timeout", nil)
	default:
		s.reject("internal")
		s.log().Error("place order failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
	}
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	id, _ := kit.IdentityFromContext(r.Context())
	orderID := chi.URLParam(r, "id")

	o, found, err := s.Store.Get(r.Context(), orderID)
	if err != nil {
		s.log().Error("store get order failed", zap.Error(err), zap.String("order_id", orderID))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}
	if !found {
		kit.WriteError(w, r, http.StatusNotFound, "not found", map[string]any{"id": orderID})
		return
	}
	if o.UserID != id.UserID && !id.IsAdmin() {
		kit.WriteError(w, r, http.StatusForbidden, "forbidden", nil)
		return
	}
	kit.WriteJSON(w, http.StatusOK, o)
}

type listResp struct {
	Items []Order `json:"items"`
}

func (s *Server) listMine(w http.ResponseWriter, r *http.Request) {
	id, _ := kit.IdentityFromContext(r.Context())

	limit, err := parseLimit(r)
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}

	orders, err := s.Store.List(r.Context(), ListQuery{UserID: id.UserID, Limit: limit})
	if err != nil {
		s.log().Error("list orders failed", zap.Error(err), zap.String("user_id", id.UserID))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
		return
	}
	kit.WriteJSON(w, http.StatusOK, listResp{Items: orders})
}

var errNotCancellable = errors.New("only pending orders can be cancelled")

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	id, _ := kit.IdentityFromContext(r.Context())
	orderID := chi.URLParam(r, "id")

	o, prev, err := s.Store.Transition(r.Context(), orderID, StatusCancelled, s.clock(), func(cur Order) error {
		if cur.UserID != id.UserID {
			return errForbidden
		}
		if cur.Status != StatusPending {
			return errNotCancellable
		}
		return nil
	})
	if err != nil {
		s.writeTransitionError(w, r, err, orderID)
		return
	}

	s.statusChanged(r.Context(), o, prev)
	kit.WriteJSON(w, http.StatusOK, o)
}

var errForbidden = errors.New("forbidden")

func (s *Server) writeTransitionError(w http.ResponseWriter, r *http.Request, err error, orderID string) {
	switch {
	case errors.Is(err, ErrNotFound):
		kit.WriteError(w, r, http.StatusNotFound, "not found", map[string]any{"id": orderID})
	case errors.Is(err, errForbidden):
		kit.WriteError(w, r, http.StatusForbidden, "forbidden", nil)
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, errNotCancellable):
		kit.WriteError(w, r, http.StatusConflict, err.Error(), map[string]any{"id": orderID})
	case isTimeoutErr(err):
		kit.WriteError(w, r, http.StatusGatewayTimeout, "timeout", nil)
	default:
		s.log().Error("order transition failed", zap.Error(err), zap.String("order_id", orderID))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
	}
}

func (s *Server) statusChanged(ctx context.Context, o Order, prev Status) {
	if s.metrics != nil {
		s.metrics.status.WithLabelValues(string(o.Status)).Inc()
	}
	s.log().Info("order status changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(prev)),
		zap.String("to", string(o.Status)),
	)
	s.publish(ctx, events.OrderEvent{
		Type:       events.OrderStatusChanged,
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     string(o.Status),
		PrevStatus: string(prev),
		TotalCents: o.TotalCents,
		Items:      len(o.Items),
		At:         o.UpdatedAt,
	})
}

// publish runs after commit; a failure is logged and never undoes the order.
func (s *Server) publish(ctx context.Context, e events.OrderEvent) {
	if s.Events == nil {
		return
	}
	timeout := s.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := s.Events.Publish(pctx, e); err != nil {
		s.log().Warn("publish order event failed",
			zap.Error(err),
			zap.String("event_type", string(e.Type)),
			zap.String("order_id", e.OrderID),
		)
	}
}

func parseLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return DefaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, MaxListLimit), nil
}

// commitWriter marks the request committed once a 2xx status is written.
type commitWriter struct {
	http.ResponseWriter
	onCommit func()
}

func (w *commitWriter) WriteHeader(code int) {
	if code >= 200 && code < 300 {
		w.onCommit()
	}
	w.ResponseWriter.WriteHeader(code)
}

func isTimeoutErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
