package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Outbound HTTP timeout for job-service and auth-broker calls
const RemoteCallTimeout = 30 * time.Second

// Cooldown entries older than this are dropped by the prune janitor
const CooldownRetention = 5 * time.Minute

// Per-action cooldown applied to user-triggered operations
const ActionCooldown = time.Second

// Default rate limiting on the HTTP surface
const DefaultRateLimitPerMin = 60

// Largest request body the API accepts; every payload here is a small
// JSON object
const MaxRequestBodyBytes = 64 << 10
