package storectl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"Storefront/internal/auth"
	"Storefront/internal/cart"
	"Storefront/internal/catalog"
	"Storefront/internal/gateway"
	"Storefront/internal/order"
	"Storefront/pkg/kit"
)

const (
	testSecret   = "storectl-test-secret"
	testEmail    = "buyer@example.com"
	testPassword = "password123"
)

func deps(service string) kit.HTTPDeps {
	return kit.HTTPDeps{Log: zap.NewNop(), Service: service}
}

// newGateway serves the whole storefront from memory stores.
func newGateway(t *testing.T) *httptest.Server {
	t.Helper()

	start := func(h http.Handler) string {
		ts := httptest.NewServer(h)
		t.Cleanup(ts.Close)
		return ts.URL
	}

	authURL := start(auth.NewHandler(&auth.Server{
		Store: auth.NewMemStore(),
		JWT:   auth.NewTokenMaker(testSecret),
	}, deps("auth")))
	catalogURL := start(catalog.NewHandler(&catalog.Server{Store: catalog.NewMemStore()}, deps("catalog")))
	cartURL := start(cart.NewHandler(&cart.Server{
		Store:   cart.NewMemStore(zap.NewNop()),
		Catalog: catalog.NewClient(catalogURL),
	}, deps("cart")))
	orderURL := start(order.NewHandler(&order.Server{
		Store:       order.NewSeededMemStore(),
		Catalog:     catalog.NewClient(catalogURL),
		Idempotency: order.NewMemIdempotency(),
	}, deps("order")))

	h, err := gateway.NewHandler(gateway.Deps{
		JWTSecret:  testSecret,
		AuthURL:    authURL,
		CatalogURL: catalogURL,
		CartURL:    cartURL,
		OrderURL:   orderURL,
	}, deps("gateway"))
	require.NoError(t, err)

	gw := httptest.NewServer(h)
	t.Cleanup(gw.Close)

	body, _ := json.Marshal(map[string]string{"email": testEmail, "password": testPassword})
	resp, err := http.Post(gw.URL+"/auth/register", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return gw
}

type harness struct {
	t        *testing.T
	apiURL   string
	dataFile string
	config   string
}

func newHarness(t *testing.T, apiURL string) *harness {
	dir := t.TempDir()
	return &harness{
		t:        t,
		apiURL:   apiURL,
		dataFile: filepath.Join(dir, "storectl.db"),
		config:   filepath.Join(dir, "missing.yaml"),
	}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	base := []string{"--config", h.config, "--api-url", h.apiURL, "--data-file", h.dataFile}
	err := Execute(context.Background(), &out, append(base, args...))
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "storectl %s\n%s", strings.Join(args, " "), out)
	return out
}

func (h *harness) localCart() *cart.Cart {
	h.t.Helper()
	store, err := cart.OpenSQLite(context.Background(), h.dataFile, zap.NewNop())
	require.NoError(h.t, err)
	defer store.Close()
	c, err := cart.Get(context.Background(), store, zap.NewNop(), defaultCartName)
	require.NoError(h.t, err)
	return c
}

var checkoutArgs = []string{
	"checkout", "--name", "Ada Buyer", "--street", "1 Main St", "--city", "Springfield",
	"--postal-code", "12345", "--payment", "card",
}

func TestCheckoutFlow(t *testing.T) {
	gw := newGateway(t)
	h := newHarness(t, gw.URL)

	out := h.mustRun("login", "--email", testEmail, "--password", testPassword)
	require.Contains(t, out, "logged in as "+testEmail)

	h.mustRun("cart", "add", "p1", "2")
	h.mustRun("cart", "add", "p3", "--variant", "size=M", "--variant", "color=black")
	h.mustRun("cart", "add", "p3", "--variant", "color=black", "--variant", "size=M")
	out = h.mustRun("cart", "add", "p3", "--variant", "size=L")

	require.Contains(t, out, "items: 5")
	c := h.localCart()
	require.Equal(t, 3, c.Len())
	require.Equal(t, int64(2*4990+3*1500), c.TotalPriceCents())

	out = h.mustRun(checkoutArgs...)
	require.Contains(t, out, "order o_")
	require.Contains(t, out, "pending")
	require.Zero(t, h.localCart().Len())

	out = h.mustRun("orders", "list")
	require.Contains(t, out, "pending")
	require.Contains(t, out, formatCents(2*4990+3*1500))

	rows := strings.Split(out, "\n")
	id := strings.Fields(rows[1])[0]
	out = h.mustRun("orders", "get", id)
	require.Contains(t, out, "Ada Buyer")
	require.Contains(t, out, "color=black,size=M")
}

func TestCheckoutKeepsCartOnRejection(t *testing.T) {
	gw := newGateway(t)
	h := newHarness(t, gw.URL)
	h.mustRun("login", "--email", testEmail, "--password", testPassword)

	// A line captured at a stale price makes the server total differ.
	store, err := cart.OpenSQLite(context.Background(), h.dataFile, zap.NewNop())
	require.NoError(t, err)
	_, err = store.Update(context.Background(), defaultCartName, func(c *cart.Cart) error {
		return c.Add(cart.Item{ProductID: "p2", Name: "Mouse", PriceCents: 999}, 1, nil)
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = h.run(checkoutArgs...)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusConflict, apiErr.Status)
	require.Equal(t, 1, h.localCart().Len())
}

func TestCheckoutRequiresLoginAndAddress(t *testing.T) {
	gw := newGateway(t)
	h := newHarness(t, gw.URL)

	_, err := h.run(checkoutArgs...)
	require.ErrorIs(t, err, ErrNotLoggedIn)

	h.mustRun("login", "--email", testEmail, "--password", testPassword)
	_, err = h.run(checkoutArgs...)
	require.ErrorIs(t, err, errEmptyCart)

	h.mustRun("cart", "add", "p1")
	_, err = h.run("checkout", "--name", "Ada")
	require.ErrorContains(t, err, "shipping address incomplete")
	require.Equal(t, 1, h.localCart().Len())
}

func TestCartCommands(t *testing.T) {
	gw := newGateway(t)
	h := newHarness(t, gw.URL)

	h.mustRun("cart", "add", "p1", "1")
	h.mustRun("cart", "add", "p3", "--variant", "size=S")
	h.mustRun("cart", "add", "p3", "--variant", "size=M")

	h.mustRun("cart", "update", "p3", "4")
	c := h.localCart()
	require.Equal(t, 4, c.Quantity("p3")/c.LineCount("p3"))
	require.Equal(t, 9, c.TotalItems())

	h.mustRun("cart", "remove", "p3", "--variant", "size=S")
	require.Equal(t, 1, h.localCart().LineCount("p3"))

	_, err := h.run("cart", "update", "p2", "3")
	require.ErrorIs(t, err, errNotInCart)
	_, err = h.run("cart", "remove", "p3", "--variant", "size=L")
	require.ErrorIs(t, err, errNotInCart)

	_, err = h.run("cart", "add", "p3", "--variant", "size=XXL")
	require.ErrorIs(t, err, catalog.ErrInvalidSelection)
	_, err = h.run("cart", "add", "nope")
	require.ErrorContains(t, err, "no such product")
	_, err = h.run("cart", "add", "p1", "0")
	require.ErrorContains(t, err, "positive integer")

	var se *StockError
	_, err = h.run("cart", "add", "p1", "100")
	require.ErrorAs(t, err, &se)
	require.Equal(t, 100, se.Available)

	h.mustRun("cart", "update", "p1", "0")
	require.Zero(t, h.localCart().Quantity("p1"))

	out := h.mustRun("cart", "clear")
	require.Contains(t, out, "cart cleared")
	require.Contains(t, h.mustRun("cart", "show"), "cart is empty")
}

func TestProductsCommands(t *testing.T) {
	gw := newGateway(t)
	h := newHarness(t, gw.URL)

	out := h.mustRun("products", "list", "--limit", "2")
	require.Contains(t, out, "p3")
	require.Contains(t, out, "next page: --after ")

	out = h.mustRun("products", "list", "--category", "apparel")
	require.Contains(t, out, "T-Shirt")
	require.NotContains(t, out, "Keyboard")

	out = h.mustRun("products", "get", "p3")
	require.Contains(t, out, "size (Size): S, M, L")
	require.Contains(t, out, "15.00")
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, defaultAPIURL, cfg.APIURL)
	require.Equal(t, defaultCartName, cfg.Cart)

	path := filepath.Join(dir, "storectl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_url: http://shop.test\nemail: me@example.com\ndata_file: /tmp/x.db\n"), 0o600))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "http://shop.test", cfg.APIURL)
	require.Equal(t, "me@example.com", cfg.Email)
	require.Equal(t, "/tmp/x.db", cfg.DataFile)
	require.Equal(t, defaultCartName, cfg.Cart)

	require.NoError(t, os.WriteFile(path, []byte("api_url: [unclosed"), 0o600))
	_, err = LoadConfig(path)
	require.Error(t, err)
}

func TestSessionsExpire(t *testing.T) {
	store, err := cart.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "s.db"), zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	s, err := NewSessions(ctx, store.DB())
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	_, err = s.Current(ctx, "http://a")
	require.ErrorIs(t, err, ErrNotLoggedIn)

	require.NoError(t, s.Save(ctx, "http://a", Session{Email: "a@x", Token: "t1", ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, s.Save(ctx, "http://a", Session{Email: "a@x", Token: "t2", ExpiresAt: now.Add(time.Minute)}))
	got, err := s.Current(ctx, "http://a")
	require.NoError(t, err)
	require.Equal(t, "t2", got.Token)

	_, err = s.Current(ctx, "http://b")
	require.True(t, errors.Is(err, ErrNotLoggedIn))

	now = now.Add(2 * time.Minute)
	_, err = s.Current(ctx, "http://a")
	require.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestFormatCents(t *testing.T) {
	require.Equal(t, "0.05", formatCents(5))
	require.Equal(t, "49.90", formatCents(4990))
	require.Equal(t, "-1.50", formatCents(-150))
}

func TestMigrateNeedsDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	h := newHarness(t, "http://unused")
	_, err := h.run("migrate", "status")
	require.ErrorContains(t, err, "no database")
}
