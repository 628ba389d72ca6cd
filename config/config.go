// Package config loads the service configuration from environment variables.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port              string
	Address           string
	Env               string
	LogLevel          string
	LogDir            string
	LogRetentionWeeks int   // Number of weeks to keep log files
	MaxLogFileSize    int64 // Maximum log file size in bytes
	MaxRequestBody    int64 // Maximum request body size in bytes
	MaxHeaderSize     int64 // Maximum header size in bytes

	DBPath          string
	SeedFile        string // optional YAML seed applied at startup
	RefreshInterval time.Duration
	AllowedOrigins  []string // CORS origins of the browser UI
}

var (
	validEnvs      = []string{"dev", "staging", "prod", "test"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
)

// Load loads and validates configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnvWithDefault("PORT", "8000"),
		Address:           getEnvWithDefault("ADDRESS", "127.0.0.1"),
		Env:               strings.ToLower(getEnvWithDefault("ENV", "dev")),
		LogLevel:          strings.ToLower(getEnvWithDefault("LOG_LEVEL", "info")),
		LogDir:            getEnvWithDefault("LOG_DIR", "logs"),
		LogRetentionWeeks: getIntEnvWithDefault("LOG_RETENTION_WEEKS", 4),
		MaxLogFileSize:    getInt64EnvWithDefault("MAX_LOG_FILE_SIZE", 100*1024*1024),
		MaxRequestBody:    getInt64EnvWithDefault("MAX_REQUEST_BODY", 1024*1024),
		MaxHeaderSize:     getInt64EnvWithDefault("MAX_HEADER_SIZE", 1024*1024),
		DBPath:            getEnvWithDefault("DB_PATH", "./cleaning-validation.db"),
		SeedFile:          os.Getenv("SEED_FILE"),
		RefreshInterval:   time.Duration(getIntEnvWithDefault("REFRESH_INTERVAL_MINUTES", 15)) * time.Minute,
		AllowedOrigins:    splitList(getEnvWithDefault("ALLOWED_ORIGINS", "http://localhost:*,http://127.0.0.1:*")),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// IsProduction reports whether the service runs in the prod environment.
func (c *Config) IsProduction() bool {
	return c.Env == "prod"
}

// validateConfig validates all configuration values, reporting the first failure
func validateConfig(cfg *Config) error {
	checks := []struct {
		name string
		err  error
	}{
		{"PORT", validatePort(cfg.Port)},
		{"ADDRESS", validateAddress(cfg.Address)},
		{"ENV", validateOneOf(cfg.Env, validEnvs)},
		{"LOG_LEVEL", validateOneOf(cfg.LogLevel, validLogLevels)},
		{"LOG_DIR", validateNotEmpty(cfg.LogDir)},
		{"MAX_REQUEST_BODY", validateSizeLimit(cfg.MaxRequestBody)},
		{"MAX_HEADER_SIZE", validateSizeLimit(cfg.MaxHeaderSize)},
		{"LOG_RETENTION_WEEKS", validateLogRetentionWeeks(cfg.LogRetentionWeeks)},
		{"MAX_LOG_FILE_SIZE", validateMaxLogFileSize(cfg.MaxLogFileSize)},
		{"DB_PATH", validateDBPath(cfg.DBPath)},
		{"SEED_FILE", validateSeedFile(cfg.SeedFile)},
		{"REFRESH_INTERVAL_MINUTES", validateRefreshInterval(cfg.RefreshInterval)},
	}

	for _, c := range checks {
		if c.err != nil {
			return fmt.Errorf("invalid %s: %w", c.name, c.err)
		}
	}
	return nil
}

// validatePort validates the PORT environment variable
func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("must be a valid number: %w", err)
	}

	if portNum < 1024 || portNum > 65535 {
		return fmt.Errorf("must be between 1024 and 65535, got: %d", portNum)
	}

	return nil
}

// validateAddress accepts loopback names and private network IPs
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("cannot be empty")
	}

	if address == "localhost" {
		return nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("must be a valid IP address or 'localhost', got: %s", address)
	}

	if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified() {
		return fmt.Errorf("%s is a public IP, use a private network address", address)
	}

	return nil
}

func validateOneOf(value string, allowed []string) error {
	if value == "" {
		return fmt.Errorf("cannot be empty")
	}
	if !slices.Contains(allowed, value) {
		return fmt.Errorf("must be one of: %v, got: %s", allowed, value)
	}
	return nil
}

func validateNotEmpty(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("cannot be empty")
	}
	return nil
}

// validateSizeLimit validates request size limits
func validateSizeLimit(size int64) error {
	if size <= 0 {
		return fmt.Errorf("must be positive, got: %d", size)
	}

	if size > 100*1024*1024 { // 100MB
		return fmt.Errorf("too large (max 100MB), got: %d bytes", size)
	}

	return nil
}

// validateLogRetentionWeeks validates the LOG_RETENTION_WEEKS environment variable
func validateLogRetentionWeeks(weeks int) error {
	if weeks <= 0 || weeks > 52 {
		return fmt.Errorf("must be between 1 and 52 weeks, got: %d", weeks)
	}
	return nil
}

// validateMaxLogFileSize validates the MAX_LOG_FILE_SIZE environment variable
func validateMaxLogFileSize(size int64) error {
	// Minimum 1MB, maximum 1GB
	if size < 1024*1024 {
		return fmt.Errorf("too small (min 1MB), got: %d bytes", size)
	}

	if size > 1024*1024*1024 {
		return fmt.Errorf("too large (max 1GB), got: %d bytes", size)
	}

	return nil
}

// validateDBPath requires a file path whose directory exists
func validateDBPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("cannot be empty")
	}
	if path == ":memory:" {
		return nil
	}

	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("directory %s is not accessible: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

// validateSeedFile checks the seed file exists when one is configured
func validateSeedFile(path string) error {
	if path == "" {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("must be a .yaml or .yml file, got: %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("seed file is not accessible: %w", err)
	}
	return nil
}

func validateRefreshInterval(d time.Duration) error {
	if d < time.Minute || d > 24*time.Hour {
		return fmt.Errorf("must be between 1 and 1440 minutes, got: %v", d)
	}
	return nil
}

// getEnvWithDefault gets an environment variable with a default value
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnvWithDefault gets an environment variable as int with a default value
func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64EnvWithDefault gets an environment variable as int64 with a default value
func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetEnvVars returns a list of all expected environment variables
func GetEnvVars() []string {
	return []string{
		"PORT",
		"ADDRESS",
		"ENV",
		"LOG_LEVEL",
		"LOG_DIR",
		"LOG_RETENTION_WEEKS",
		"MAX_LOG_FILE_SIZE",
		"MAX_REQUEST_BODY",
		"MAX_HEADER_SIZE",
		"DB_PATH",
		"SEED_FILE",
		"REFRESH_INTERVAL_MINUTES",
		"ALLOWED_ORIGINS",
	}
}
