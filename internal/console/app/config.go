package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	SigningSecret    string   // Required: HMAC secret for minted tokens
	ServiceSubject   string   // Subject claim for service-to-service bearers (default: svc-console)
	BackendURL       string   // Required: base URL of the identity backend
	PublicURL        string   // Externally visible base URL, used to build the OAuth callback (default: http://localhost:8080)
	TrustedRedirects []string // Prefixes hand-off destinations must match

	GoogleClientID     string // Required: OAuth client id
	GoogleClientSecret string // Required: OAuth client secret

	RedisAddr     string // Optional: enables the Redis code store when set
	RedisPassword string // Optional
	RedisDB       int    // Optional (default: 0)

	CodeTTL    time.Duration // Authorization code redemption window (default: 5m)
	AccessTTL  time.Duration // Minted access token lifetime (default: 15m)
	RefreshTTL time.Duration // Minted refresh token lifetime (default: 168h)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 10m)
}

func LoadConfig() Config {
	cfg := Config{
		SigningSecret:  os.Getenv("AUTHGATE_SIGNING_SECRET"),
		ServiceSubject: getEnvOrDefault("AUTHGATE_SERVICE_SUBJECT", "svc-console"),
		BackendURL:     os.Getenv("AUTHGATE_BACKEND_URL"),
		PublicURL:      getEnvOrDefault("AUTHGATE_PUBLIC_URL", "http://localhost:8080"),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),

		RedisAddr:     os.Getenv("AUTHGATE_REDIS_ADDR"),
		RedisPassword: os.Getenv("AUTHGATE_REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("AUTHGATE_REDIS_DB", 0),

		CodeTTL:    getEnvDurationOrDefault("AUTHGATE_CODE_TTL", 5*time.Minute),
		AccessTTL:  getEnvDurationOrDefault("AUTHGATE_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTTL: getEnvDurationOrDefault("AUTHGATE_REFRESH_TOKEN_TTL", 7*24*time.Hour),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 10*time.Minute),
	}

	// Comma-separated prefixes, e.g. "https://app.example.com/,https://admin.example.com/"
	for _, prefix := range strings.Split(os.Getenv("AUTHGATE_TRUSTED_REDIRECTS"), ",") {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			cfg.TrustedRedirects = append(cfg.TrustedRedirects, prefix)
		}
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Integer values are read as minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
