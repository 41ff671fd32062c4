package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	AppEnv          string
	ServerPort      string
	BaseURL         string
	FrontendURL     string
	DatabaseURL     string
	BranchID        string
	EnableHSTS      bool
	ServerDebugMode bool
	OTELEnabled     bool
	OTELEndpoint    string
	Supabase        SupabaseConfig
	RateLimit       RateLimitConfig
}

// SupabaseConfig holds object storage settings
type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// RateLimitConfig holds the upload admission policy and the optional durable store
type RateLimitConfig struct {
	MaxRequests    int
	Window         time.Duration
	SweepInterval  time.Duration
	RedisURL       string
	RedisToken     string
	DurableDriver  string
	DurableTimeout time.Duration
}

// DurableConfigured reports whether both durable store parameters are set
func (c RateLimitConfig) DurableConfigured() bool {
	return c.RedisURL != "" && c.RedisToken != ""
}

// DurablePartial reports whether exactly one durable store parameter is set
func (c RateLimitConfig) DurablePartial() bool {
	return (c.RedisURL != "") != (c.RedisToken != "")
}

// IsDevelopment reports whether verbose development logging is wanted
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Load loads configuration from environment variables.
// .env.local and .env are read first when present; real environment variables win.
func Load() (*Config, error) {
	for _, file := range []string{".env.local", ".env"} {
		if _, err := os.Stat(file); err == nil {
			if err := godotenv.Load(file); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", file, err)
			}
		}
	}

	window, err := getEnvDuration("RATELIMIT_WINDOW", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	sweepInterval, err := getEnvDuration("RATELIMIT_SWEEP_INTERVAL", 30*time.Minute)
	if err != nil {
		return nil, err
	}
	durableTimeout, err := getEnvDuration("RATELIMIT_DURABLE_TIMEOUT", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	maxRequests, err := getEnvInt("RATELIMIT_MAX_REQUESTS", 5)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", "production"),
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		BaseURL:         getEnv("BASE_URL", "http://localhost:8080"),
		FrontendURL:     getEnv("FRONTEND_URL", "http://localhost:3000"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		BranchID:        getEnv("BRANCH_ID", "rawamangun"),
		EnableHSTS:      getEnvBool("ENABLE_HSTS", false),
		ServerDebugMode: getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		Supabase: SupabaseConfig{
			URL:            getEnv("SUPABASE_URL", ""),
			ServiceRoleKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
			Bucket:         getEnv("SUPABASE_BUCKET", "pas-foto-uploads"),
		},
		RateLimit: RateLimitConfig{
			MaxRequests:    maxRequests,
			Window:         window,
			SweepInterval:  sweepInterval,
			RedisURL:       getEnv("RATELIMIT_REDIS_URL", ""),
			RedisToken:     getEnv("RATELIMIT_REDIS_TOKEN", ""),
			DurableDriver:  getEnv("RATELIMIT_DURABLE_DRIVER", "script"),
			DurableTimeout: durableTimeout,
		},
	}

	if cfg.RateLimit.MaxRequests <= 0 {
		return nil, fmt.Errorf("RATELIMIT_MAX_REQUESTS must be positive, got %d", cfg.RateLimit.MaxRequests)
	}
	if cfg.RateLimit.Window <= 0 {
		return nil, fmt.Errorf("RATELIMIT_WINDOW must be positive, got %s", cfg.RateLimit.Window)
	}
	if cfg.RateLimit.SweepInterval <= 0 {
		return nil, fmt.Errorf("RATELIMIT_SWEEP_INTERVAL must be positive, got %s", cfg.RateLimit.SweepInterval)
	}

	return cfg, nil
}

// Validate checks the settings the HTTP server cannot run without
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Supabase.URL == "" || c.Supabase.ServiceRoleKey == "" {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required for photo uploads")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
