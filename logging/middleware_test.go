package logging

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestRequestLogger(t *testing.T) {
	var out strings.Builder
	logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/missing":
			http.Error(w, "missing", http.StatusNotFound)
		case "/v1/boom":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.Write([]byte("ok"))
		}
	}))

	tests := []struct {
		name     string
		path     string
		wantLog  bool
		contains []string
	}{
		{"health is quiet", "/health", false, nil},
		{"metrics is quiet", "/metrics", false, nil},
		{"success logged at info", "/v1/trains?line=Solids", true, []string{"level=INFO", "request_id=req-1", "path=/v1/trains", `query="line=Solids"`, "status_code=200", "bytes_written=2"}},
		{"client error logged at warn", "/v1/missing", true, []string{"level=WARN", "status_code=404"}},
		{"server error logged at error", "/v1/boom", true, []string{"level=ERROR", "status_code=500"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "req-1"))
			handler.ServeHTTP(httptest.NewRecorder(), req)

			logs := out.String()
			if !tt.wantLog {
				if logs != "" {
					t.Errorf("expected no log, got %s", logs)
				}
				return
			}
			for _, s := range tt.contains {
				if !strings.Contains(logs, s) {
					t.Errorf("log %q missing %q", logs, s)
				}
			}
		})
	}
}

func TestRequestLoggerUnknownRequestID(t *testing.T) {
	var out strings.Builder
	logger := slog.New(slog.NewTextHandler(&out, nil))
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/studies", nil))

	if !strings.Contains(out.String(), "request_id=unknown") {
		t.Errorf("expected unknown request id, got %s", out.String())
	}
}
