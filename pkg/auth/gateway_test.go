package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
)

func sign(key, email string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(email))
	return hex.EncodeToString(mac.Sum(nil))
}

func testCfg() SecConfig {
	return SecConfig{
		AllowedOrigins: []string{"https://chat.example.com"},
		RPS:            100,
		Burst:          100,
		Whitelist:      NormalizeWhitelist([]string{"Alice@Example.com", "bob@example.com"}),
		SigningKeys:    map[string]struct{}{"secret": {}},
		AdminKeys:      map[string]struct{}{"admin-key": {}},
	}
}

// echo handler recording what the gateway resolved
type probe struct {
	called bool
	email  string
	role   string
}

func (p *probe) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.called = true
		p.email = EmailFromContext(r.Context())
		p.role = r.Header.Get("X-Role-Name")
		w.WriteHeader(http.StatusOK)
	})
}

func doReq(t *testing.T, cfg SecConfig, mutate func(*http.Request)) (*httptest.ResponseRecorder, *probe) {
	t.Helper()
	p := &probe{}
	h := AuthenticateRequestMiddleware(cfg)(p.handler())
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", nil)
	if mutate != nil {
		mutate(req)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr, p
}

func TestGatewayMissingEmail(t *testing.T) {
	rr, p := doReq(t, testCfg(), nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if p.called {
		t.Fatal("handler ran for unauthenticated request")
	}
}

func TestGatewayValidSignature(t *testing.T) {
	rr, p := doReq(t, testCfg(), func(r *http.Request) {
		r.Header.Set("X-Auth-Email", "Alice@Example.com")
		r.Header.Set("X-Auth-Signature", sign("secret", "Alice@Example.com"))
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	if p.email != "alice@example.com" {
		t.Fatalf("context email = %q, want lowercased", p.email)
	}
	if p.role != "user" {
		t.Fatalf("role = %q, want user", p.role)
	}
}

func TestGatewayBadSignature(t *testing.T) {
	rr, _ := doReq(t, testCfg(), func(r *http.Request) {
		r.Header.Set("X-Auth-Email", "alice@example.com")
		r.Header.Set("X-Auth-Signature", sign("wrong-key", "alice@example.com"))
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestGatewayMissingSignature(t *testing.T) {
	rr, _ := doReq(t, testCfg(), func(r *http.Request) {
		r.Header.Set("X-Auth-Email", "alice@example.com")
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestGatewayNotWhitelisted(t *testing.T) {
	rr, _ := doReq(t, testCfg(), func(r *http.Request) {
		r.Header.Set("X-Auth-Email", "mallory@example.com")
		r.Header.Set("X-Auth-Signature", sign("secret", "mallory@example.com"))
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
}

func TestGatewayAllowUnsigned(t *testing.T) {
	cfg := testCfg()
	cfg.AllowUnsigned = true
	cfg.SigningKeys = nil
	rr, p := doReq(t, cfg, func(r *http.Request) {
		r.Header.Set("X-Auth-Email", "bob@example.com")
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if p.email != "bob@example.com" {
		t.Fatalf("context email = %q", p.email)
	}
}

func TestGatewayAdminKey(t *testing.T) {
	rr, p := doReq(t, testCfg(), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer admin-key")
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if p.role != "admin" {
		t.Fatalf("role = %q, want admin", p.role)
	}

	rr, p = doReq(t, testCfg(), func(r *http.Request) {
		r.Header.Set("X-API-Key", "admin-key")
	})
	if rr.Code != http.StatusOK || p.role != "admin" {
		t.Fatalf("x-api-key path: status %d role %q", rr.Code, p.role)
	}
}

func TestGatewayUnknownAdminKeyFallsThrough(t *testing.T) {
	rr, _ := doReq(t, testCfg(), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer not-a-key")
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 (no email either)", rr.Code)
	}
}

func TestGatewayCORSPreflight(t *testing.T) {
	p := &probe{}
	h := AuthenticateRequestMiddleware(testCfg())(p.handler())
	req := httptest.NewRequest(http.MethodOptions, "/v1/chat", nil)
	req.Header.Set("Origin", "https://chat.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://chat.example.com" {
		t.Fatalf("allow-origin = %q", got)
	}
	if p.called {
		t.Fatal("handler ran on preflight")
	}
}

func TestGatewayCORSUnknownOrigin(t *testing.T) {
	p := &probe{}
	h := AuthenticateRequestMiddleware(testCfg())(p.handler())
	req := httptest.NewRequest(http.MethodGet, "/v1/threads", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin %q for unlisted origin", got)
	}
}

func TestGatewayHealthBypass(t *testing.T) {
	for _, path := range []string{"/healthz", "/readyz"} {
		p := &probe{}
		h := AuthenticateRequestMiddleware(testCfg())(p.handler())
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK || !p.called {
			t.Fatalf("%s: status %d called %v", path, rr.Code, p.called)
		}
	}
}

func TestGatewayIPWhitelist(t *testing.T) {
	cfg := testCfg()
	cfg.IPWhitelist = []string{"10.0.0.1"}
	rr, _ := doReq(t, cfg, func(r *http.Request) {
		r.Header.Set("X-Auth-Email", "alice@example.com")
		r.Header.Set("X-Auth-Signature", sign("secret", "alice@example.com"))
	})
	// httptest requests come from 192.0.2.1
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}

	cfg.IPWhitelist = []string{"192.0.2.1"}
	rr, _ = doReq(t, cfg, func(r *http.Request) {
		r.Header.Set("X-Auth-Email", "alice@example.com")
		r.Header.Set("X-Auth-Signature", sign("secret", "alice@example.com"))
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestGatewayRateLimit(t *testing.T) {
	cfg := testCfg()
	cfg.RPS = 1
	cfg.Burst = 1
	p := &probe{}
	h := AuthenticateRequestMiddleware(cfg)(p.handler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat", nil)
		req.Header.Set("X-Auth-Email", "alice@example.com")
		req.Header.Set("X-Auth-Signature", sign("secret", "alice@example.com"))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK {
		t.Fatalf("first request blocked: %v", codes)
	}
	limited := false
	for _, c := range codes[1:] {
		if c == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Fatalf("burst of 1 never rate limited: %v", codes)
	}
}

func TestNormalizeWhitelist(t *testing.T) {
	got := NormalizeWhitelist([]string{" Alice@Example.COM ", "", "bob@example.com"})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if _, ok := got["alice@example.com"]; !ok {
		t.Fatal("alice not normalized")
	}
}
