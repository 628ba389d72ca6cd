package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRealIPMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		expected   string
	}{
		{"single forwarded ip", "192.168.1.1:12345", "203.0.113.1", "203.0.113.1"},
		{"forwarded chain keeps first", "192.168.1.1:12345", "203.0.113.1, 10.0.0.1", "203.0.113.1"},
		{"no header strips port", "192.168.1.1:12345", "", "192.168.1.1"},
		{"ipv6 strips port", "[::1]:12345", "", "::1"},
		{"no port left untouched", "192.168.1.1", "", "192.168.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}

			var got string
			handler := RealIPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.expected {
				t.Errorf("RemoteAddr = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	const maxBody, maxHeader = 64, 256

	handler := RequestSizeMiddleware(maxBody, maxHeader)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name     string
		body     string
		chunked  bool
		header   string
		expected int
	}{
		{"small body", `{"a":1}`, false, "", http.StatusOK},
		{"declared body too large", strings.Repeat("x", maxBody+1), false, "", http.StatusRequestEntityTooLarge},
		{"undeclared body capped while reading", strings.Repeat("x", maxBody+1), true, "", http.StatusRequestEntityTooLarge},
		{"headers too large", "", false, strings.Repeat("h", maxHeader), http.StatusRequestHeaderFieldsTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/products", strings.NewReader(tt.body))
			if tt.chunked {
				req.ContentLength = -1
			}
			if tt.header != "" {
				req.Header.Set("X-Padding", tt.header)
			}

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, rr.Code)
			}
		})
	}
}

func TestTokenCost(t *testing.T) {
	tests := []struct {
		method   string
		path     string
		expected int64
	}{
		{http.MethodOptions, "/v1/products", 0},
		{http.MethodGet, "/health", 5},
		{http.MethodGet, "/metrics", 5},
		{http.MethodGet, "/v1/trains", 10},
		{http.MethodGet, "/v1/trains/3/maco", 10},
		{http.MethodGet, "/v1/history/settings", 20},
		{http.MethodPost, "/v1/products", 50},
		{http.MethodPut, "/v1/settings", 50},
		{http.MethodDelete, "/v1/machines/2", 50},
		{http.MethodPost, "/v1/machines/import", 200},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if got := tokenCost(req); got != tt.expected {
				t.Errorf("tokenCost = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestRateLimiterRejectsWhenExhausted(t *testing.T) {
	rl := NewRateLimiter(0.001, 25)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	request := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/trains", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	for i := 0; i < 2; i++ {
		if rr := request("203.0.113.1"); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rr.Code)
		}
	}

	rr := request("203.0.113.1")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if rr.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("remaining = %s, want 0", rr.Header().Get("X-RateLimit-Remaining"))
	}

	if rr := request("203.0.113.2"); rr.Code != http.StatusOK {
		t.Errorf("other client should have its own bucket, got %d", rr.Code)
	}
}

func TestRateLimiterSweep(t *testing.T) {
	rl := NewRateLimiter(1, 100)

	rl.getBucket("203.0.113.1")
	rl.getBucket("203.0.113.2").TakeAvailable(50)

	if remaining := rl.Sweep(); remaining != 1 {
		t.Fatalf("expected 1 bucket left, got %d", remaining)
	}

	rl.mu.RLock()
	_, kept := rl.clients["203.0.113.2"]
	rl.mu.RUnlock()
	if !kept {
		t.Error("bucket with spent tokens should be kept")
	}
}
