package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kirohq/gateway/pkg/config"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	t.Setenv("ENCRYPTION_KEY", "server-test-key")

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Database.Path = filepath.Join(t.TempDir(), "gw.db")
	if mutate != nil {
		mutate(cfg)
	}
	config.SetConfig(cfg)

	s, err := New(Options{Config: cfg, Version: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.store.Close() })
	return s
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	return rec
}

func TestHandlerRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	t.Run("health", func(t *testing.T) {
		rec := get(t, h, "/health")
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
			t.Errorf("body = %s", rec.Body.String())
		}
	})

	t.Run("root is liveness", func(t *testing.T) {
		if rec := get(t, h, "/"); rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("unknown path", func(t *testing.T) {
		if rec := get(t, h, "/nope"); rec.Code != http.StatusNotFound {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("metrics mounted", func(t *testing.T) {
		if rec := get(t, h, "/metrics"); rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("models list", func(t *testing.T) {
		rec := get(t, h, "/v1/models")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), `"object":"list"`) {
			t.Errorf("body = %s", rec.Body.String())
		}
	})

	t.Run("request id header set", func(t *testing.T) {
		rec := get(t, h, "/health")
		if rec.Header().Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID")
		}
	})
}

func TestHandlerChatNoAccounts(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	req := httptest.NewRequest("POST", "/v1/chat/completions",
		strings.NewReader(`{"model":"claude-sonnet-4.5","messages":[{"role":"user","content":"hi"}]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestHandlerStaticKeyAuth(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.ProxyAPIKey = "static-secret"
	})
	h := s.Handler()

	req := httptest.NewRequest("POST", "/v1/chat/completions",
		strings.NewReader(`{"model":"claude-sonnet-4.5","messages":[{"role":"user","content":"hi"}]}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", rec.Code)
	}

	req = httptest.NewRequest("POST", "/v1/chat/completions",
		strings.NewReader(`{"model":"claude-sonnet-4.5","messages":[{"role":"user","content":"hi"}]}`))
	req.Header.Set("Authorization", "Bearer static-secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("authenticated status = %d, want 503 with no accounts", rec.Code)
	}
}

func TestAdminMount(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Admin.JWTSecret = "server-test-secret"
	})
	h := s.Handler()

	t.Run("login is public", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/admin/api/login", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("stats requires session", func(t *testing.T) {
		if rec := get(t, h, "/admin/api/stats"); rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d", rec.Code)
		}
	})
}

func TestAdminDisabled(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		off := false
		cfg.Admin.Enabled = &off
	})
	h := s.Handler()

	if rec := get(t, h, "/admin/api/stats"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when admin is disabled", rec.Code)
	}
}

func TestShutdownIdempotent(t *testing.T) {
	s := newTestServer(t, nil)
	s.cfg.Server.ShutdownTimeout = time.Second

	if err := s.Shutdown(t.Context()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := s.Shutdown(t.Context()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
