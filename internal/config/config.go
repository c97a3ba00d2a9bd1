package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Backend       BackendConfig
	Auth0         Auth0Config
	Cookie        CookieConfig
	SessionCache  SessionCacheConfig
	Observability ObservabilityConfig
	RateLimit     RateLimitConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         string
	BaseURL      string // public origin of this gateway, used for callback URLs
	Environment  string // development, production
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// BackendConfig holds configuration for the business backend API
type BackendConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	MaxAttempts    int
	MaxBackoff     time.Duration
}

// Auth0Config holds identity provider configuration
type Auth0Config struct {
	Domain       string
	ClientID     string
	ClientSecret string
	CallbackPath string
	Scopes       string
	StateTTL     time.Duration
}

// CookieConfig holds session cookie configuration
type CookieConfig struct {
	Domain   string
	Path     string
	Secure   bool
	SameSite string
	MaxAge   int
}

// SessionCacheConfig holds session cache configuration
type SessionCacheConfig struct {
	TTL time.Duration
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	env := getEnv("APP_ENV", "development")

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			BaseURL:      getEnv("BASE_URL", "http://localhost:8080"),
			Environment:  env,
			ReadTimeout:  parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout: parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:  parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
		},
		Backend: BackendConfig{
			BaseURL:        strings.TrimRight(getEnv("BACKEND_API_URL", ""), "/"),
			RequestTimeout: parseDuration("BACKEND_REQUEST_TIMEOUT", "30s"),
			MaxAttempts:    parseInt("BACKEND_MAX_ATTEMPTS", 3),
			MaxBackoff:     parseDuration("BACKEND_MAX_BACKOFF", "10s"),
		},
		Auth0: Auth0Config{
			Domain:       getEnv("AUTH0_DOMAIN", ""),
			ClientID:     getEnv("AUTH0_CLIENT_ID", ""),
			ClientSecret: getEnv("AUTH0_CLIENT_SECRET", ""),
			CallbackPath: getEnv("AUTH0_CALLBACK_PATH", "/api/auth/exchange"),
			Scopes:       getEnv("AUTH0_SCOPES", "openid profile email"),
			StateTTL:     parseDuration("AUTH0_STATE_TTL", "10m"),
		},
		Cookie: CookieConfig{
			Domain:   getEnv("COOKIE_DOMAIN", ""),
			Path:     getEnv("COOKIE_PATH", "/"),
			Secure:   parseBool("COOKIE_SECURE", env == "production"),
			SameSite: getEnv("COOKIE_SAME_SITE", "Lax"),
			MaxAge:   parseInt("COOKIE_MAX_AGE", 86400),
		},
		SessionCache: SessionCacheConfig{
			TTL: parseDuration("SESSION_CACHE_TTL", "5m"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "auth-gateway"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: float64(parseInt("RATELIMIT_RPS", 10)),
			Burst:             parseInt("RATELIMIT_BURST", 20),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("BACKEND_API_URL is required")
	}
	if c.Auth0.Domain == "" {
		return fmt.Errorf("AUTH0_DOMAIN is required")
	}
	if c.Auth0.ClientID == "" {
		return fmt.Errorf("AUTH0_CLIENT_ID is required")
	}
	if c.Server.Environment == "production" && !c.Cookie.Secure {
		return fmt.Errorf("COOKIE_SECURE must not be disabled in production")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		// Fallback to default
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}
