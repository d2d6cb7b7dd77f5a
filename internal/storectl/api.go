package storectl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"Storefront/internal/catalog"
	"Storefront/internal/order"
	"Storefront/pkg/kit"
)

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	Status  int
	Message string
	Details any
}

func (e *APIError) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

var ErrNotLoggedIn = errors.New("not logged in: run storectl login")

// API talks to the storefront gateway.
type API struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewAPI(baseURL, token string) *API {
	return &API{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

type LoginResult struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	User        struct {
		ID          string `json:"id"`
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
		IsAdmin     bool   `json:"is_admin"`
	} `json:"user"`
}

func (a *API) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var out LoginResult
	err := a.do(ctx, http.MethodPost, "/auth/login", nil,
		map[string]string{"email": email, "password": password}, &out)
	return out, err
}

func (a *API) ListProducts(ctx context.Context, category string, featured bool, limit int, after string) (catalog.Page, error) {
	q := url.Values{}
	if category != "" {
		q.Set("category", category)
	}
	if featured {
		q.Set("featured", "true")
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if after != "" {
		q.Set("after", after)
	}
	var page catalog.Page
	err := a.do(ctx, http.MethodGet, "/products?"+q.Encode(), nil, nil, &page)
	return page, err
}

// GetProduct reads through the gateway's public product route with the
// same client the services use.
func (a *API) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	c := catalog.NewClient(a.BaseURL)
	c.HTTP = a.HTTP
	return c.GetProduct(ctx, id)
}

type PlaceLine struct {
	ProductID string            `json:"product_id"`
	Quantity  int               `json:"quantity"`
	Variants  map[string]string `json:"variants,omitempty"`
}

type PlaceRequest struct {
	Items           []PlaceLine   `json:"items"`
	ShippingAddress order.Address `json:"shipping_address"`
	PaymentMethod   string        `json:"payment_method,omitempty"`
	TotalCents      *int64        `json:"total_cents,omitempty"`
}

func (a *API) PlaceOrder(ctx context.Context, req PlaceRequest, idempotencyKey string) (order.Order, error) {
	h := http.Header{}
	if idempotencyKey != "" {
		h.Set(order.IdempotencyHeader, idempotencyKey)
	}
	var o order.Order
	err := a.do(ctx, http.MethodPost, "/orders", h, req, &o)
	return o, err
}

func (a *API) ListOrders(ctx context.Context, limit int) ([]order.Order, error) {
	path := "/orders"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Items []order.Order `json:"items"`
	}
	err := a.do(ctx, http.MethodGet, path, nil, nil, &out)
	return out.Items, err
}

func (a *API) GetOrder(ctx context.Context, id string) (order.Order, error) {
	var o order.Order
	err := a.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), nil, nil, &o)
	return o, err
}

func (a *API) do(ctx context.Context, method, path string, h http.Header, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, rd)
	if err != nil {
		return err
	}
	for k, vs := range h {
		req.Header[k] = vs
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}

	resp, err := a.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var er kit.ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, kit.DefaultMaxBody)).Decode(&er)
		if er.Error == "" {
			er.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: er.Error, Details: er.Details}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
