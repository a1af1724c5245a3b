// Package config loads sparkfeed settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is everything the server and CLI read from the environment
type Config struct {
	Environment string
	Port        string
	LogLevel    string
	LogFile     string

	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Auth     AuthConfig
	Tracing  TracingConfig

	// APIBaseURL is where the CLI client sends requests
	APIBaseURL string
	// CORSOrigins is a comma separated allow list; "*" allows all
	CORSOrigins []string
}

// DatabaseConfig selects and addresses the SQL store
type DatabaseConfig struct {
	Driver string // postgres or sqlite
	URL    string
	// LogQueries turns on GORM's SQL logging
	LogQueries bool
}

// RedisConfig addresses the optional Redis used for Pub/Sub and the author
// cache tier. An empty Host disables Redis.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Prefix   string
}

// Enabled reports whether Redis is configured
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

// StorageConfig selects the blob store
type StorageConfig struct {
	Driver     string // s3 or memory
	Region     string
	Bucket     string
	CDNBaseURL string
	Endpoint   string
}

// AuthConfig holds token settings
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// TracingConfig configures OpenTelemetry export
type TracingConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
	SamplingRate float64
}

// Load reads .env if present, then the environment
func Load() (*Config, error) {
	// A missing .env is normal outside development
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only
func FromEnv() (*Config, error) {
	env := getEnvOrDefault("ENVIRONMENT", "development")
	cfg := &Config{
		Environment: env,
		Port:        getEnvOrDefault("PORT", "8787"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:     os.Getenv("LOG_FILE"),
		Database: DatabaseConfig{
			Driver:     getEnvOrDefault("DB_DRIVER", "postgres"),
			URL:        databaseURL(),
			LogQueries: getEnvBool("DB_LOG_QUERIES", env == "development"),
		},
		Redis: RedisConfig{
			Host:     os.Getenv("REDIS_HOST"),
			Port:     getEnvOrDefault("REDIS_PORT", "6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
			Prefix:   getEnvOrDefault("REDIS_PREFIX", "sparkfeed:"),
		},
		Storage: StorageConfig{
			Driver:     getEnvOrDefault("STORAGE_DRIVER", "s3"),
			Region:     getEnvOrDefault("AWS_REGION", "us-east-1"),
			Bucket:     os.Getenv("AWS_BUCKET"),
			CDNBaseURL: os.Getenv("CDN_BASE_URL"),
			Endpoint:   os.Getenv("S3_ENDPOINT"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			TokenTTL:  getEnvDuration("TOKEN_TTL", 24*time.Hour),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvBool("OTEL_ENABLED", false),
			OTLPEndpoint: getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName:  getEnvOrDefault("OTEL_SERVICE_NAME", "sparkfeed"),
			SamplingRate: getEnvFloat("OTEL_SAMPLING_RATE", 1.0),
		},
		APIBaseURL:  getEnvOrDefault("SPARKFEED_API_URL", "http://localhost:8787"),
		CORSOrigins: splitList(getEnvOrDefault("CORS_ORIGINS", "*")),
	}
	return cfg, nil
}

// ValidateServer checks the settings the HTTP server cannot run without
func (c *Config) ValidateServer() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	switch c.Storage.Driver {
	case "memory":
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("AWS_BUCKET is required when STORAGE_DRIVER=s3")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver)
	}
	return nil
}

// databaseURL prefers DATABASE_URL, then assembles one from components
func databaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	if os.Getenv("DB_DRIVER") == "sqlite" {
		return getEnvOrDefault("SQLITE_PATH", "sparkfeed.db")
	}
	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "postgres")
	password := getEnvOrDefault("DB_PASSWORD", "")
	dbname := getEnvOrDefault("DB_NAME", "sparkfeed")
	sslmode := getEnvOrDefault("DB_SSLMODE", "disable")

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)
}

// getEnvOrDefault returns environment variable or default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
