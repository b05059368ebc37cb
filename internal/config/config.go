// Package config loads csvsed settings from environment variables, applies
// defaults and validates them on startup so misconfiguration fails fast.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
//
// Sections and fields tagged scope:"server" are used only by the HTTP
// service; the csvsed command neither loads nor validates them.
type Config struct {
	Server   ServerConfig `scope:"server"`
	Sed      SedConfig
	Database DatabaseConfig
	Rate     RateLimitConfig `scope:"server"`
	Security SecurityConfig  `scope:"server"`
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout bounds reading the request head (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is 0 by default so long streamed responses are not cut off
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds the graceful drain on SIGINT/SIGTERM (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// TrustedProxies lists proxy CIDRs whose X-Real-IP / X-Forwarded-For are honored
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// SedConfig holds filter job settings.
type SedConfig struct {
	// MaxBodySize caps the CSV request body in bytes (default: 100MB)
	MaxBodySize int64 `env:"SED_MAX_BODY_SIZE" default:"104857600" scope:"server"`

	// MaxConcurrent is the number of filter jobs that may run at once (default: 5)
	MaxConcurrent int `env:"SED_MAX_CONCURRENT" default:"5" scope:"server"`

	// MaxWaitTime is how long a request waits for a job slot (default: 30s)
	MaxWaitTime time.Duration `env:"SED_MAX_WAIT_TIME" default:"30s" scope:"server"`

	// JobTimeout bounds a single filter job (default: 10m)
	JobTimeout time.Duration `env:"SED_JOB_TIMEOUT" default:"10m" scope:"server"`

	// Shell runs external "e" modifier commands (default: /bin/sh)
	Shell string `env:"SED_SHELL" default:"/bin/sh"`

	// CloseGrace is how long a continuous subprocess gets to exit after its
	// input is closed before it is killed (default: 2s)
	CloseGrace time.Duration `env:"SED_CLOSE_GRACE" default:"2s"`

	// FlushRows is how many output rows are buffered between flushes (default: 500)
	FlushRows int `env:"SED_FLUSH_ROWS" default:"500"`

	// AllowExternal permits "e" modifiers in HTTP jobs (default: false).
	// The CLI always allows them.
	AllowExternal bool `env:"SED_ALLOW_EXTERNAL" default:"false" scope:"server"`
}

// DatabaseConfig holds settings for query sources. The URL is optional;
// without it query sources are unavailable.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string
	// Supports both DATABASE_URL and DB_URL env vars
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 0)
	MinConns int `env:"DB_MIN_CONNS" default:"0"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// RateLimitConfig holds per-IP request throttling for the HTTP service.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the limit per client IP (default: 60)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"60"`
}

// SecurityConfig holds API authentication settings.
type SecurityConfig struct {
	// RequireAPIKey rejects /api requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
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
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
