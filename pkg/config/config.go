package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	OAuth    OAuthConfig
	Audit    AuditConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Ops server (health and metrics) on a separate port.
	OpsPort string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
	Timeout     time.Duration
}

// RedisConfig holds cache backend configuration. An empty Addr selects
// the in-memory LRU cache instead of Redis.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
	CacheTTL   time.Duration
	MaxEntries int // in-memory backend only
}

// OAuthConfig holds the Google OIDC client configuration.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	IssuerURL    string

	// SkipVerification keeps the historical behavior of trusting the
	// exchanged ID-token payload without a JWKS signature check.
	SkipVerification bool

	ProxyEnabled bool
	ProxyHost    string
	ProxyPort    int
	Timeout      time.Duration
}

// AuditConfig holds login-log retention settings.
type AuditConfig struct {
	RetentionDays int
	PurgeSchedule string // cron expression
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level      string
	JSONFormat bool
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("AMORAUTH_HOST", "0.0.0.0"),
			Port:            getEnv("AMORAUTH_PORT", "8080"),
			ReadTimeout:     getEnvDuration("AMORAUTH_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("AMORAUTH_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("AMORAUTH_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("AMORAUTH_SHUTDOWN_TIMEOUT", 30*time.Second),
			OpsPort:         getEnv("AMORAUTH_OPS_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:         getEnv("AMORAUTH_POSTGRES_URL", "postgres://localhost/amorauth?sslmode=disable"),
			MaxConns:    getEnvInt("AMORAUTH_POSTGRES_MAX_CONNS", 25),
			MinConns:    getEnvInt("AMORAUTH_POSTGRES_MIN_CONNS", 5),
			MaxLifetime: getEnvDuration("AMORAUTH_POSTGRES_MAX_LIFETIME", 30*time.Minute),
			MaxIdleTime: getEnvDuration("AMORAUTH_POSTGRES_MAX_IDLE_TIME", 5*time.Minute),
			Timeout:     getEnvDuration("AMORAUTH_POSTGRES_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Addr:       getEnv("AMORAUTH_REDIS_ADDR", ""),
			Password:   getEnv("AMORAUTH_REDIS_PASSWORD", ""),
			DB:         getEnvInt("AMORAUTH_REDIS_DB", 0),
			MaxRetries: getEnvInt("AMORAUTH_REDIS_MAX_RETRIES", 3),
			PoolSize:   getEnvInt("AMORAUTH_REDIS_POOL_SIZE", 10),
			CacheTTL:   getEnvDuration("AMORAUTH_USER_CACHE_TTL", time.Hour),
			MaxEntries: getEnvInt("AMORAUTH_MEMORY_CACHE_ENTRIES", 10000),
		},
		OAuth: OAuthConfig{
			ClientID:         getEnv("AMORAUTH_GOOGLE_CLIENT_ID", ""),
			ClientSecret:     getEnv("AMORAUTH_GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:      getEnv("AMORAUTH_GOOGLE_REDIRECT_URL", ""),
			IssuerURL:        getEnv("AMORAUTH_OIDC_ISSUER_URL", "https://accounts.google.com"),
			SkipVerification: getEnvBool("AMORAUTH_OIDC_SKIP_VERIFY", true),
			ProxyEnabled:     getEnvBool("AMORAUTH_OAUTH_PROXY_ENABLED", false),
			ProxyHost:        getEnv("AMORAUTH_OAUTH_PROXY_HOST", "127.0.0.1"),
			ProxyPort:        getEnvInt("AMORAUTH_OAUTH_PROXY_PORT", 10808),
			Timeout:          getEnvDuration("AMORAUTH_OAUTH_TIMEOUT", 60*time.Second),
		},
		Audit: AuditConfig{
			RetentionDays: getEnvInt("AMORAUTH_AUDIT_RETENTION_DAYS", 90),
			PurgeSchedule: getEnv("AMORAUTH_AUDIT_PURGE_SCHEDULE", "30 0 * * *"),
		},
		Logging: LoggingConfig{
			Level:      getEnv("AMORAUTH_LOG_LEVEL", "info"),
			JSONFormat: getEnvBool("AMORAUTH_LOG_JSON", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("AMORAUTH_POSTGRES_URL is required")
	}
	if c.OAuth.ClientID == "" {
		return fmt.Errorf("AMORAUTH_GOOGLE_CLIENT_ID is required")
	}
	if c.OAuth.ClientSecret == "" {
		return fmt.Errorf("AMORAUTH_GOOGLE_CLIENT_SECRET is required")
	}
	if c.OAuth.RedirectURL == "" {
		return fmt.Errorf("AMORAUTH_GOOGLE_REDIRECT_URL is required")
	}
	if c.Redis.CacheTTL <= 0 {
		return fmt.Errorf("AMORAUTH_USER_CACHE_TTL must be positive")
	}
	if c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("AMORAUTH_AUDIT_RETENTION_DAYS must be positive")
	}
	return nil
}

// getEnv gets an environment variable with a fallback default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
