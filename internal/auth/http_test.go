package auth_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"Storefront/internal/auth"
	"Storefront/pkg/kit"
)

const testSecret = "test-secret"

func newAuthTS(t *testing.T) *httptest.Server {
	t.Helper()

	s := &auth.Server{
		Store:       auth.NewMemStore(),
		JWT:         auth.NewTokenMaker(testSecret),
		AdminEmails: []string{"Boss@Example.com"},
	}
	ts := httptest.NewServer(auth.NewHandler(s, kit.HTTPDeps{Log: zap.NewNop(), Service: "auth"}))
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any, hdr map[string]string) (*http.Response, []byte) {
	t.Helper()

	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
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

type loginResp struct {
	AccessToken string `json:"access_token"`
	User        struct {
		ID          string `json:"id"`
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
		IsAdmin     bool   `json:"is_admin"`
	} `json:"user"`
}

func TestRegisterLoginWhoAmI(t *testing.T) {
	ts := newAuthTS(t)

	resp, body := postJSON(t, ts.URL+"/auth/register",
		map[string]string{"email": "  Ada@Example.com ", "password": "correct-horse", "display_name": "Ada"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: %d %s", resp.StatusCode, body)
	}

	resp, body = postJSON(t, ts.URL+"/auth/login",
		map[string]string{"email": "ada@example.com", "password": "correct-horse"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: %d %s", resp.StatusCode, body)
	}
	var lr loginResp
	if err := json.Unmarshal(body, &lr); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if lr.AccessToken == "" || lr.User.Email != "ada@example.com" || lr.User.DisplayName != "Ada" || lr.User.IsAdmin {
		t.Fatalf("unexpected login response: %+v", lr)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/auth/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+lr.AccessToken)
	wr, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	defer wr.Body.Close()
	if wr.StatusCode != http.StatusOK {
		t.Fatalf("whoami: %d", wr.StatusCode)
	}

	claims, err := auth.NewTokenMaker(testSecret).Parse(lr.AccessToken)
	if err != nil || claims.UserID != lr.User.ID || claims.Role != kit.RoleUser {
		t.Fatalf("token claims: %+v %v", claims, err)
	}
}

func TestRegister_AdminEmailGetsAdminRole(t *testing.T) {
	ts := newAuthTS(t)

	resp, body := postJSON(t, ts.URL+"/auth/register",
		map[string]string{"email": "boss@example.com", "password": "12345678"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: %d %s", resp.StatusCode, body)
	}

	_, body = postJSON(t, ts.URL+"/auth/login", map[string]string{"email": "boss@example.com", "password": "12345678"}, nil)
	var lr loginResp
	if err := json.Unmarshal(body, &lr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !lr.User.IsAdmin || lr.User.DisplayName != "boss" {
		t.Fatalf("expected admin with default display name, got %+v", lr.User)
	}
}

func TestRegister_Validation(t *testing.T) {
	ts := newAuthTS(t)

	cases := []struct {
		name string
		body map[string]string
		want int
		ip   string
	}{
		{"short password", map[string]string{"email": "a@b.c", "password": "short"}, http.StatusBadRequest, "10.0.0.1"},
		{"missing email", map[string]string{"password": "12345678"}, http.StatusBadRequest, "10.0.0.2"},
		{"not an email", map[string]string{"email": "nobody", "password": "12345678"}, http.StatusBadRequest, "10.0.0.3"},
		{"ok", map[string]string{"email": "dup@b.c", "password": "12345678"}, http.StatusCreated, "10.0.0.4"},
		{"duplicate", map[string]string{"email": "DUP@b.c", "password": "12345678"}, http.StatusConflict, "10.0.0.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := postJSON(t, ts.URL+"/auth/register", tc.body, map[string]string{"X-Forwarded-For": tc.ip})
			if resp.StatusCode != tc.want {
				t.Fatalf("expected %d, got %d %s", tc.want, resp.StatusCode, body)
			}
		})
	}
}

func TestLogin_BadCredentialsAndRateLimit(t *testing.T) {
	ts := newAuthTS(t)
	hdr := map[string]string{"X-Forwarded-For": "192.0.2.7"}

	postJSON(t, ts.URL+"/auth/register", map[string]string{"email": "x@y.z", "password": "12345678"}, hdr)

	for i := 0; i < 5; i++ {
		resp, _ := postJSON(t, ts.URL+"/auth/login", map[string]string{"email": "x@y.z", "password": "wrong-pass"}, hdr)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, resp.StatusCode)
		}
	}
	resp, _ := postJSON(t, ts.URL+"/auth/login", map[string]string{"email": "x@y.z", "password": "12345678"}, hdr)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}

	resp, _ = postJSON(t, ts.URL+"/auth/login", map[string]string{"email": "nobody@y.z", "password": "12345678"},
		map[string]string{"X-Forwarded-For": "192.0.2.8"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unknown user: expected 401, got %d", resp.StatusCode)
	}
}

func TestWhoAmI_RejectsBadToken(t *testing.T) {
	ts := newAuthTS(t)

	for _, h := range []string{"", "Bearer ", "Bearer nope", "Basic abc"} {
		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/auth/whoami", nil)
		if h != "" {
			req.Header.Set("Authorization", h)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%q: expected 401, got %d", h, resp.StatusCode)
		}
	}
}
