package cart_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"Storefront/internal/cart"
	"Storefront/internal/catalog"
	"Storefront/pkg/kit"
)

type seedCatalog map[string]catalog.Product

func (c seedCatalog) GetProduct(_ context.Context, id string) (catalog.Product, error) {
	p, ok := c[id]
	if !ok {
		return catalog.Product{}, catalog.ErrClientNotFound
	}
	return p, nil
}

func newCartTS(t *testing.T) *httptest.Server {
	t.Helper()

	products := seedCatalog{}
	for _, p := range catalog.SeedProducts(time.Now()) {
		products[p.ID] = p
	}
	low := products["p2"]
	low.Stock = 3
	products["p2"] = low

	s := &cart.Server{Store: cart.NewMemStore(zap.NewNop()), Catalog: products}
	ts := httptest.NewServer(cart.NewHandler(s, kit.HTTPDeps{Log: zap.NewNop(), Service: "cart"}))
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, method, url, user string, body any) (int, cart.View) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if user != "" {
		req.Header.Set(kit.HeaderUserID, user)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	var v cart.View
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode, v
}

func TestCart_RequiresUser(t *testing.T) {
	ts := newCartTS(t)

	if code, _ := call(t, http.MethodGet, ts.URL+"/cart", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestCart_AddMergeUpdateRemove(t *testing.T) {
	ts := newCartTS(t)
	u := "u_1"

	code, v := call(t, http.MethodPost, ts.URL+"/cart/items", u,
		map[string]any{"product_id": "p3", "quantity": 1, "variants": map[string]string{"size": "M"}})
	if code != http.StatusOK {
		t.Fatalf("add: %d", code)
	}
	code, v = call(t, http.MethodPost, ts.URL+"/cart/items", u,
		map[string]any{"product_id": "p3", "quantity": 2, "variants": map[string]string{"size": "M"}})
	if code != http.StatusOK {
		t.Fatalf("add again: %d", code)
	}
	if len(v.Items) != 1 || v.Items[0].Quantity != 3 {
		t.Fatalf("expected merged line with qty 3, got %+v", v.Items)
	}

	code, v = call(t, http.MethodPost, ts.URL+"/cart/items", u,
		map[string]any{"product_id": "p1", "quantity": 1})
	if code != http.StatusOK {
		t.Fatalf("add p1: %d", code)
	}
	if v.TotalItems != 4 || v.TotalPriceCents != 3*1500+4990 {
		t.Fatalf("unexpected totals: %+v", v)
	}

	code, v = call(t, http.MethodPatch, ts.URL+"/cart/items/p3", u, map[string]any{"quantity": 5})
	if code != http.StatusOK || v.TotalItems != 6 {
		t.Fatalf("update: %d %+v", code, v)
	}

	code, v = call(t, http.MethodDelete, ts.URL+"/cart/items/p3", u, nil)
	if code != http.StatusOK || len(v.Items) != 1 || v.Items[0].ProductID != "p1" {
		t.Fatalf("remove: %d %+v", code, v)
	}

	code, v = call(t, http.MethodGet, ts.URL+"/cart", "u_2", nil)
	if code != http.StatusOK || len(v.Items) != 0 {
		t.Fatalf("other user's cart should be empty: %d %+v", code, v)
	}

	if code, _ := call(t, http.MethodDelete, ts.URL+"/cart", u, nil); code != http.StatusNoContent {
		t.Fatalf("clear: %d", code)
	}
	code, v = call(t, http.MethodGet, ts.URL+"/cart", u, nil)
	if code != http.StatusOK || v.TotalItems != 0 {
		t.Fatalf("after clear: %d %+v", code, v)
	}
}

func TestCart_AddValidation(t *testing.T) {
	ts := newCartTS(t)

	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{"unknown product", map[string]any{"product_id": "nope", "quantity": 1}, http.StatusBadRequest},
		{"zero quantity", map[string]any{"product_id": "p1", "quantity": 0}, http.StatusBadRequest},
		{"unknown variant", map[string]any{"product_id": "p3", "quantity": 1, "variants": map[string]string{"fit": "slim"}}, http.StatusBadRequest},
		{"unknown option", map[string]any{"product_id": "p3", "quantity": 1, "variants": map[string]string{"size": "XXL"}}, http.StatusBadRequest},
		{"over stock", map[string]any{"product_id": "p2", "quantity": 4}, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if code, _ := call(t, http.MethodPost, ts.URL+"/cart/items", "u_v", tc.body); code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, code)
			}
		})
	}
}

func TestCart_StockCountsExistingLines(t *testing.T) {
	ts := newCartTS(t)
	u := "u_s"

	if code, _ := call(t, http.MethodPost, ts.URL+"/cart/items", u, map[string]any{"product_id": "p2", "quantity": 2}); code != http.StatusOK {
		t.Fatalf("add: %d", code)
	}
	if code, _ := call(t, http.MethodPost, ts.URL+"/cart/items", u, map[string]any{"product_id": "p2", "quantity": 2}); code != http.StatusConflict {
		t.Fatalf("expected 409 past stock, got %d", code)
	}
	if code, _ := call(t, http.MethodPatch, ts.URL+"/cart/items/p2", u, map[string]any{"quantity": 4}); code != http.StatusConflict {
		t.Fatalf("expected 409 on update past stock, got %d", code)
	}
	if code, _ := call(t, http.MethodPatch, ts.URL+"/cart/items/p1", u, map[string]any{"quantity": 1}); code != http.StatusNotFound {
		t.Fatalf("expected 404 for product not in cart, got %d", code)
	}

	code, v := call(t, http.MethodPatch, ts.URL+"/cart/items/p2", u, map[string]any{"quantity": 0})
	if code != http.StatusOK || v.TotalItems != 0 {
		t.Fatalf("quantity 0 should remove: %d %+v", code, v)
	}
}
