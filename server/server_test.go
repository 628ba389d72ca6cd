package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/giygas/cleaning-validation-api/catalog"
	"github.com/giygas/cleaning-validation-api/config"
	"github.com/giygas/cleaning-validation-api/data"
	"github.com/giygas/cleaning-validation-api/handlers"
	"github.com/giygas/cleaning-validation-api/health"
	"github.com/giygas/cleaning-validation-api/logging"
	"github.com/giygas/cleaning-validation-api/store"
	"github.com/giygas/cleaning-validation-api/validation"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:            "0",
		Address:         "127.0.0.1",
		Env:             "test",
		LogLevel:        "error",
		MaxRequestBody:  1024,
		MaxHeaderSize:   8 * 1024,
		RefreshInterval: time.Minute,
		AllowedOrigins:  []string{"http://localhost:*"},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logging.InitLogger("")

	s, err := store.Open(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	repo := catalog.NewRepository(s)
	dc := data.NewDataContainer()
	dc.SetServerStartTime(time.Now())
	refresher := data.NewRefresher(dc, repo)
	if err := refresher.Refresh(context.Background()); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}

	h := handlers.NewHTTPHandler(dc, validation.NewDataValidator(), health.NewHealthChecker(dc, time.Minute), refresher, repo)
	srv := NewServer(testConfig(), h)
	t.Cleanup(srv.cancel)
	return srv
}

func TestRoutes(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		method   string
		path     string
		body     string
		expected int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/v1/products", "", http.StatusOK},
		{http.MethodGet, "/v1/machines", "", http.StatusOK},
		{http.MethodGet, "/v1/trains", "", http.StatusOK},
		{http.MethodGet, "/v1/trains/1", "", http.StatusNotFound},
		{http.MethodGet, "/v1/trains/abc/maco", "", http.StatusBadRequest},
		{http.MethodGet, "/v1/studies", "", http.StatusOK},
		{http.MethodGet, "/v1/data-quality", "", http.StatusOK},
		{http.MethodGet, "/v1/settings", "", http.StatusOK},
		{http.MethodGet, "/v1/scoring-criteria", "", http.StatusOK},
		{http.MethodGet, "/v1/safety-factors", "", http.StatusOK},
		{http.MethodGet, "/v1/detergents", "", http.StatusOK},
		{http.MethodGet, "/v1/history/settings", "", http.StatusOK},
		{http.MethodGet, "/v1/history/unknown", "", http.StatusNotFound},
		{http.MethodPost, "/v1/machines", `{"name": "Blender", "machineNumber": "BL-01", "stage": "Blending", "area": 4000, "line": "Solids"}`, http.StatusCreated},
		{http.MethodDelete, "/v1/machines/99", "", http.StatusNotFound},
		{http.MethodGet, "/v1/unknown", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			rr := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rr, req)

			if rr.Code != tt.expected {
				t.Errorf("expected %d, got %d: %s", tt.expected, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestBodyLimitAppliesToHandlers(t *testing.T) {
	srv := newTestServer(t)

	body := `{"name": "` + strings.Repeat("x", 2048) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/machines", strings.NewReader(body))
	req.ContentLength = -1
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"http://localhost:5173", true},
		{"https://evil.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/v1/products", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rr := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rr, req)

			got := rr.Header().Get("Access-Control-Allow-Origin")
			if tt.allowed && got != tt.origin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.origin)
			}
			if !tt.allowed && got != "" {
				t.Errorf("origin should be rejected, got %q", got)
			}
		})
	}
}

func TestRateLimitHeaders(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/trains", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Header().Get("X-RateLimit-Limit") != "1000" {
		t.Errorf("X-RateLimit-Limit = %q", rr.Header().Get("X-RateLimit-Limit"))
	}
	if rr.Header().Get("X-RateLimit-Remaining") == "" {
		t.Error("missing X-RateLimit-Remaining")
	}
}

func TestStartAndShutdown(t *testing.T) {
	srv := newTestServer(t)

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v after graceful shutdown", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after shutdown")
	}
}

func TestJSONResponsesAreCompressed(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/settings", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Header().Get("Content-Encoding") != "gzip" {
		t.Errorf("Content-Encoding = %q, want gzip", rr.Header().Get("Content-Encoding"))
	}
}
