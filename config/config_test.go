package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setValidEnv(t *testing.T) {
	t.Helper()
	for _, name := range GetEnvVars() {
		t.Setenv(name, "")
	}
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "test.db"))
}

func TestLoadWithDefaults(t *testing.T) {
	setValidEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Port != "8000" {
		t.Errorf("Expected default port 8000, got %s", cfg.Port)
	}
	if cfg.Address != "127.0.0.1" {
		t.Errorf("Expected default address 127.0.0.1, got %s", cfg.Address)
	}
	if cfg.Env != "dev" || cfg.IsProduction() {
		t.Errorf("Expected default env dev, got %s", cfg.Env)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.LogDir != "logs" {
		t.Errorf("Expected default log dir logs, got %s", cfg.LogDir)
	}
	if cfg.RefreshInterval != 15*time.Minute {
		t.Errorf("Expected default refresh interval 15m, got %v", cfg.RefreshInterval)
	}
	if cfg.SeedFile != "" {
		t.Errorf("Expected no seed file, got %s", cfg.SeedFile)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("Expected 2 default origins, got %v", cfg.AllowedOrigins)
	}
}

func TestLoadValidConfig(t *testing.T) {
	setValidEnv(t)
	seed := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(seed, []byte("machines: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PORT", "8002")
	t.Setenv("ENV", "PROD")
	t.Setenv("LOG_LEVEL", "Debug")
	t.Setenv("SEED_FILE", seed)
	t.Setenv("REFRESH_INTERVAL_MINUTES", "60")
	t.Setenv("ALLOWED_ORIGINS", "https://ui.example.com, ,https://qa.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Port != "8002" {
		t.Errorf("Expected port 8002, got %s", cfg.Port)
	}
	if !cfg.IsProduction() {
		t.Errorf("Expected prod env, got %s", cfg.Env)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.LogLevel)
	}
	if cfg.RefreshInterval != time.Hour {
		t.Errorf("Expected refresh interval 1h, got %v", cfg.RefreshInterval)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://qa.example.com" {
		t.Errorf("Unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestLoadInvalid(t *testing.T) {
	testCases := []struct {
		name     string
		key      string
		value    string
		expected string
	}{
		{"port not a number", "PORT", "abc", "invalid PORT"},
		{"privileged port", "PORT", "80", "invalid PORT"},
		{"port too high", "PORT", "65536", "invalid PORT"},
		{"public address", "ADDRESS", "8.8.8.8", "invalid ADDRESS"},
		{"bad address", "ADDRESS", "not-an-ip", "invalid ADDRESS"},
		{"unknown env", "ENV", "qa", "invalid ENV"},
		{"unknown log level", "LOG_LEVEL", "trace", "invalid LOG_LEVEL"},
		{"negative body", "MAX_REQUEST_BODY", "-1", "invalid MAX_REQUEST_BODY"},
		{"huge header", "MAX_HEADER_SIZE", "209715200", "invalid MAX_HEADER_SIZE"},
		{"retention", "LOG_RETENTION_WEEKS", "53", "invalid LOG_RETENTION_WEEKS"},
		{"small log file", "MAX_LOG_FILE_SIZE", "1000", "invalid MAX_LOG_FILE_SIZE"},
		{"missing db dir", "DB_PATH", "/nonexistent/dir/app.db", "invalid DB_PATH"},
		{"seed not yaml", "SEED_FILE", "seed.json", "invalid SEED_FILE"},
		{"missing seed", "SEED_FILE", "missing.yaml", "invalid SEED_FILE"},
		{"refresh zero", "REFRESH_INTERVAL_MINUTES", "0", "invalid REFRESH_INTERVAL_MINUTES"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setValidEnv(t)
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			if err == nil {
				t.Fatalf("Expected error for %s=%s", tc.key, tc.value)
			}
			if !strings.Contains(err.Error(), tc.expected) {
				t.Errorf("Expected error containing %q, got %v", tc.expected, err)
			}
		})
	}
}

func TestValidateAddress(t *testing.T) {
	for _, addr := range []string{"localhost", "127.0.0.1", "::1", "0.0.0.0", "10.0.0.5", "192.168.1.20"} {
		if err := validateAddress(addr); err != nil {
			t.Errorf("validateAddress(%s) unexpected error: %v", addr, err)
		}
	}
}

func TestGetIntEnvWithDefault_IgnoresGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "twelve")
	if got := getIntEnvWithDefault("SOME_INT", 12); got != 12 {
		t.Errorf("Expected default 12, got %d", got)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, b ,,c ")
	if strings.Join(got, "|") != "a|b|c" {
		t.Errorf("Unexpected split result %v", got)
	}
	if splitList("") != nil {
		t.Error("Expected nil for empty input")
	}
}
