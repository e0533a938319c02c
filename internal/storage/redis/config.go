package redis

import "time"

// Config holds Redis connection and behavior settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// Profile namespaces the identity keys so several clients can share one Redis
	Profile string

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// IdentityTTL expires the stored identity; zero keeps it until cleared
	IdentityTTL time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:          "redis://localhost:6379",
		Profile:      "default",
		PoolSize:     2,
		MinIdleConns: 1,
		IdentityTTL:  0,
	}
}
