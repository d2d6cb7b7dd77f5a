package kit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestRateLimiter_BlocksAfterLimit(t *testing.T) {
	l := NewRateLimiter(2, time.Minute, ClientIP)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	require.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	now := time.Unix(1000, 0)
	l := NewRateLimiter(1, time.Minute, ClientIP)
	l.now = func() time.Time { return now }

	require.False(t, l.limited("a"))
	require.True(t, l.limited("a"))
	require.False(t, l.limited("b"))

	now = now.Add(61 * time.Second)
	require.False(t, l.limited("a"))
}

func TestClientIP_PrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.2")
	require.Equal(t, "203.0.113.7", ClientIP(req))

	req.Header.Del("X-Forwarded-For")
	require.Equal(t, "10.0.0.1", ClientIP(req))
}

func TestRequireUserAndAdmin(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, found := IdentityFromContext(r.Context())
		if !found {
			t.Fatalf("identity missing")
		}
		_, _ = w.Write([]byte(id.UserID + "/" + id.Role))
	})
	h := RequireUser(RequireAdmin(ok))

	cases := []struct {
		name   string
		uid    string
		role   string
		status int
	}{
		{"anonymous", "", "", http.StatusUnauthorized},
		{"user", "u_1", "", http.StatusForbidden},
		{"admin", "u_2", RoleAdmin, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/x", nil)
			if tc.uid != "" {
				req.Header.Set(HeaderUserID, tc.uid)
			}
			if tc.role != "" {
				req.Header.Set(HeaderUserRole, tc.role)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestMetricsAuth(t *testing.T) {
	h := MetricsAuth("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLoadConfigFrom_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "order.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9999"
database_url: postgres://file
kafka_brokers: [k1:9092]
upstreams:
  catalog: http://catalog:8082
`), 0o600))

	env := map[string]string{
		"CONFIG_FILE":   path,
		"DATABASE_URL":  "postgres://env",
		"ADMIN_EMAILS":  "a@x.io, b@x.io",
		"AUTO_MIGRATE":  "true",
		"KAFKA_BROKERS": "",
	}
	cfg, err := LoadConfigFrom("order", func(k string) string { return env[k] })
	require.NoError(t, err)

	require.Equal(t, "9999", cfg.Port)
	require.Equal(t, "postgres://env", cfg.DatabaseURL)
	require.Equal(t, []string{"k1:9092"}, cfg.KafkaBrokers)
	require.Equal(t, []string{"a@x.io", "b@x.io"}, cfg.AdminEmails)
	require.Equal(t, "http://catalog:8082", cfg.Upstreams.Catalog)
	require.Equal(t, "http://localhost:8081", cfg.Upstreams.Auth)
	require.True(t, cfg.AutoMigrate)
}

func TestLoadConfigFrom_UnknownServiceNeedsPort(t *testing.T) {
	_, err := LoadConfigFrom("nope", func(string) string { return "" })
	require.Error(t, err)
}

func TestRunHTTPServer_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunHTTPServer(ctx, "127.0.0.1:0", http.NotFoundHandler(), zap.NewNop())
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
