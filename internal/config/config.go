// Package config provides configuration management for the importer.
//
// Two sources are combined:
//
//   - Runtime settings (pool sizes, timeouts, server and logging options) are
//     loaded from environment variables with defaults, see [Load].
//   - Database credentials live in a structured file (TOML or YAML) with
//     database.<key>.{host,port,name} and users.admin.{username,password}
//     sections, see [LoadFile].
package config

import (
	"strconv"
	"time"
)

// Config holds all runtime settings.
// All settings can be configured via environment variables.
type Config struct {
	Database DatabaseConfig
	Import   ImportConfig
	Server   ServerConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// ConfigPath is the credentials file (default: config/credentials.toml)
	ConfigPath string `env:"PHANTOM_CONFIG" default:"config/credentials.toml"`

	// Key selects the database.<key> section of the credentials file (default: default)
	Key string `env:"PHANTOM_DB_KEY" default:"default"`

	// URL overrides the credentials file when set.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// ConnectTimeout bounds the initial connection attempt (default: 10s)
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" default:"10s"`

	// MaxConns is the maximum number of pooled connections used by serve (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of pooled connections kept open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a pooled connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time of a pooled connection (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds import processing settings.
type ImportConfig struct {
	// Timeout bounds a single import; 0 disables the limit (default: 0s)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"0s"`

	// MaxFileSize is the maximum accepted CSV size in bytes (default: 100MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of parallel imports served over HTTP (default: 2)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"2"`

	// MaxWaitTime is how long an HTTP import waits for a free slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the sustained rate per IP (default: 60)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"60"`

	// Burst is the number of requests allowed above the sustained rate (default: 10)
	Burst int `env:"RATE_LIMIT_BURST" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// AllowedOrigins is a comma-separated list of CORS origins
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"`

	// RequireAPIKey enables X-API-Key checks on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Real-IP / X-Forwarded-For headers are honored
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
