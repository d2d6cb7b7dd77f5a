package catalog_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"Storefront/internal/catalog"
	"Storefront/pkg/kit"
)

func newCatalogTS(t *testing.T, images catalog.ImageStore) (*httptest.Server, *catalog.MemStore) {
	t.Helper()

	store := catalog.NewMemStore()
	s := &catalog.Server{Store: store, Images: images}
	h := catalog.NewHandler(s, kit.HTTPDeps{Log: zap.NewNop(), Service: "catalog"})

	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts, store
}

func do(t *testing.T, method, url string, body any, admin bool) (*http.Response, []byte) {
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
	if admin {
		req.Header.Set(kit.HeaderUserID, "u_admin")
		req.Header.Set(kit.HeaderUserRole, kit.RoleAdmin)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

func TestCatalog_ListPagesNewestFirst(t *testing.T) {
	ts, _ := newCatalogTS(t, nil)

	var seen []string
	next := ""
	for i := 0; i < 5; i++ {
		url := ts.URL + "/products?limit=2"
		if next != "" {
			url += "&after=" + next
		}
		resp, raw := do(t, http.MethodGet, url, nil, false)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status=%d body=%s", resp.StatusCode, raw)
		}

		var page catalog.Page
		if err := json.Unmarshal(raw, &page); err != nil {
			t.Fatalf("decode: %v", err)
		}
		for _, p := range page.Items {
			seen = append(seen, p.ID)
		}
		if page.NextCursor == "" {
			break
		}
		next = page.NextCursor
	}

	want := []string{"p3", "p2", "p1"}
	if len(seen) != len(want) {
		t.Fatalf("seen=%v want=%v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen=%v want=%v", seen, want)
		}
	}
}

func TestCatalog_FiltersByCategoryAndFeatured(t *testing.T) {
	ts, _ := newCatalogTS(t, nil)

	var page catalog.Page
	_, raw := do(t, http.MethodGet, ts.URL+"/products?category=peripherals&featured=true", nil, false)
	if err := json.Unmarshal(raw, &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "p1" {
		t.Fatalf("items=%+v", page.Items)
	}
}

func TestCatalog_BadQuery(t *testing.T) {
	ts, _ := newCatalogTS(t, nil)

	for _, q := range []string{"limit=0", "limit=x", "featured=maybe", "after=zzz"} {
		resp, _ := do(t, http.MethodGet, ts.URL+"/products?"+q, nil, false)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status=%d", q, resp.StatusCode)
		}
	}
}

func TestCatalog_GetNotFound(t *testing.T) {
	ts, _ := newCatalogTS(t, nil)

	resp, _ := do(t, http.MethodGet, ts.URL+"/products/nope", nil, false)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestCatalog_AdminRequiresRole(t *testing.T) {
	ts, _ := newCatalogTS(t, nil)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/admin/products", bytes.NewReader([]byte(`{"name":"x"}`)))
	req.Header.Set(kit.HeaderUserID, "u_1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestCatalog_AdminProductLifecycle(t *testing.T) {
	ts, store := newCatalogTS(t, nil)

	resp, raw := do(t, http.MethodPost, ts.URL+"/admin/products", map[string]any{
		"name":        "Headset",
		"price_cents": 7900,
		"stock":       3,
		"category":    "peripherals",
		"variants":    []map[string]any{{"id": "color", "name": "Color", "options": []string{"red"}}},
	}, true)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", resp.StatusCode, raw)
	}
	var created catalog.Product
	if err := json.Unmarshal(raw, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	resp, raw = do(t, http.MethodPut, ts.URL+"/admin/products/"+created.ID, map[string]any{"price_cents": 6900}, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status=%d body=%s", resp.StatusCode, raw)
	}
	got, ok, _ := store.Get(context.Background(), created.ID)
	if !ok || got.PriceCents != 6900 || got.Stock != 3 {
		t.Fatalf("after update: %+v", got)
	}

	resp, _ = do(t, http.MethodPut, ts.URL+"/admin/products/"+created.ID, map[string]any{"price_cents": -1}, true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative price status=%d", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodDelete, ts.URL+"/admin/products/"+created.ID, nil, true)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status=%d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodDelete, ts.URL+"/admin/products/"+created.ID, nil, true)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status=%d", resp.StatusCode)
	}
}

func TestCatalog_CreateRejectsInvalid(t *testing.T) {
	ts, _ := newCatalogTS(t, nil)

	resp, _ := do(t, http.MethodPost, ts.URL+"/admin/products", map[string]any{"name": " ", "price_cents": 1}, true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestCatalog_CategoryConflict(t *testing.T) {
	ts, _ := newCatalogTS(t, nil)

	resp, raw := do(t, http.MethodPost, ts.URL+"/admin/categories", map[string]any{"name": "Home Office"}, true)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status=%d body=%s", resp.StatusCode, raw)
	}
	var c catalog.Category
	_ = json.Unmarshal(raw, &c)
	if c.Slug != "home-office" {
		t.Fatalf("slug=%q", c.Slug)
	}

	resp, _ = do(t, http.MethodPost, ts.URL+"/admin/categories", map[string]any{"name": "home office!"}, true)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n0000000000000000")

func TestCatalog_UploadReplacesImage(t *testing.T) {
	images, err := catalog.NewDiskImages(t.TempDir(), "/images")
	if err != nil {
		t.Fatalf("images: %v", err)
	}
	ts, store := newCatalogTS(t, images)

	upload := func(name string, content []byte) (*http.Response, []byte) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, _ := mw.CreateFormFile("image", name)
		_, _ = fw.Write(content)
		_ = mw.Close()

		req, _ := http.NewRequest(http.MethodPut, ts.URL+"/admin/products/p1/image", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set(kit.HeaderUserID, "u_admin")
		req.Header.Set(kit.HeaderUserRole, kit.RoleAdmin)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		return resp, raw
	}

	resp, raw := upload("kb.png", pngHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, raw)
	}
	first, _, _ := store.Get(context.Background(), "p1")

	resp, _ = do(t, http.MethodGet, ts.URL+first.ImageURL, nil, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("serve image status=%d", resp.StatusCode)
	}

	resp, raw = upload("kb2.png", pngHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, raw)
	}
	second, _, _ := store.Get(context.Background(), "p1")
	if second.ImageURL == first.ImageURL {
		t.Fatalf("image url not replaced")
	}
	if err := images.Delete(context.Background(), first.ImageURL); !errors.Is(err, catalog.ErrImageNotFound) {
		t.Fatalf("old image still present: %v", err)
	}

	resp, _ = upload("notes.txt", []byte("hello world"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("text upload status=%d", resp.StatusCode)
	}
}
