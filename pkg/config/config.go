// Package config provides configuration loading from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// StorageBackend represents the storage implementation type.
type StorageBackend string

const (
	// StorageMemory uses in-memory storage (for development/testing).
	StorageMemory StorageBackend = "memory"
	// StoragePostgres uses PostgreSQL storage (for production).
	StoragePostgres StorageBackend = "postgres"
)

// Base contains common configuration shared by all binaries.
type Base struct {
	// Service identification
	ServiceName string
	Environment string // development, staging, production
	Version     string

	// Server
	HTTPPort int

	// Storage backend
	StorageBackend StorageBackend

	// Database (used when StorageBackend is "postgres")
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheEnabled  bool
	CacheTTL      time.Duration

	// Experiment engine
	MaxConcurrency    int           // max in-flight generation calls per dispatch, 0 = unbounded
	RunTimeout        time.Duration // per-run generation timeout
	StaleRunThreshold time.Duration // runs stuck running longer than this get reconciled
	ReconcileInterval time.Duration

	// Submission rate limit (requests per window per client, 0 disables)
	SubmitRateLimit  int
	SubmitRateWindow time.Duration

	// Providers
	OpenAIAPIKey  string
	OllamaBaseURL string

	// Observability
	OTLPEndpoint string
	LogLevel     string
	LogFormat    string // json, text

	// Tracing
	TracingEnabled  bool
	TracingSampling float64
}

// Load loads base configuration from environment variables.
func Load(serviceName string) (*Base, error) {
	cfg := &Base{
		ServiceName: serviceName,
		Environment: getEnv("LUMEN_ENV", "development"),
		Version:     getEnv("LUMEN_VERSION", "dev"),

		HTTPPort: getEnvInt("LUMEN_HTTP_PORT", 8083),

		StorageBackend: parseStorageBackend(getEnv("LUMEN_STORAGE_BACKEND", "memory")),

		DBHost:     getEnv("LUMEN_DB_HOST", "localhost"),
		DBPort:     getEnvInt("LUMEN_DB_PORT", 5432),
		DBUser:     getEnv("LUMEN_DB_USER", "lumen"),
		DBPassword: getEnv("LUMEN_DB_PASSWORD", ""),
		DBName:     getEnv("LUMEN_DB_NAME", "lumen"),
		DBSSLMode:  getEnv("LUMEN_DB_SSLMODE", "disable"),

		RedisAddr:     getEnv("LUMEN_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("LUMEN_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("LUMEN_REDIS_DB", 0),
		CacheEnabled:  getEnvBool("LUMEN_CACHE_ENABLED", false),
		CacheTTL:      getEnvDuration("LUMEN_CACHE_TTL", 30*time.Second),

		MaxConcurrency:    getEnvInt("LUMEN_MAX_CONCURRENCY", 4),
		RunTimeout:        getEnvDuration("LUMEN_RUN_TIMEOUT", 60*time.Second),
		StaleRunThreshold: getEnvDuration("LUMEN_STALE_RUN_THRESHOLD", 10*time.Minute),
		ReconcileInterval: getEnvDuration("LUMEN_RECONCILE_INTERVAL", time.Minute),

		SubmitRateLimit:  getEnvInt("LUMEN_SUBMIT_RATE_LIMIT", 0),
		SubmitRateWindow: getEnvDuration("LUMEN_SUBMIT_RATE_WINDOW", time.Minute),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OllamaBaseURL: getEnv("LUMEN_OLLAMA_BASE_URL", "http://localhost:11434"),

		OTLPEndpoint: getEnv("LUMEN_OTLP_ENDPOINT", "localhost:4317"),
		LogLevel:     getEnv("LUMEN_LOG_LEVEL", "info"),
		LogFormat:    getEnv("LUMEN_LOG_FORMAT", "json"),

		TracingEnabled:  getEnvBool("LUMEN_TRACING_ENABLED", false),
		TracingSampling: getEnvFloat("LUMEN_TRACING_SAMPLING", 1.0),
	}

	return cfg, nil
}

// DatabaseDSN returns the PostgreSQL connection string.
func (c *Base) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

// IsDevelopment returns true if running in development mode.
func (c *Base) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Base) IsProduction() bool {
	return c.Environment == "production"
}

// UseMemoryStorage returns true if using in-memory storage.
func (c *Base) UseMemoryStorage() bool {
	return c.StorageBackend == StorageMemory
}

// UsePostgresStorage returns true if using PostgreSQL storage.
func (c *Base) UsePostgresStorage() bool {
	return c.StorageBackend == StoragePostgres
}

// Helper functions

func parseStorageBackend(s string) StorageBackend {
	switch s {
	case "postgres", "postgresql", "pg":
		return StoragePostgres
	default:
		return StorageMemory
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
