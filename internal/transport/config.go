package transport

import (
	"net/http"
	"time"
)

// Config holds connection and reconnection settings
type Config struct {
	// URL is the authority's websocket endpoint (e.g., ws://localhost:3001/ws)
	URL string
	// Header is sent with every handshake request
	Header http.Header

	// MaxAttempts is the number of dials per outage before giving up
	MaxAttempts int
	// RetryDelay is the minimum time between two dials
	RetryDelay time.Duration
	// DialTimeout bounds a single dial
	DialTimeout time.Duration

	// Keepalive settings
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration

	// MaxMessageSize is the largest inbound frame accepted
	MaxMessageSize int64
}

// DefaultConfig returns the reconnection policy of the reference web client:
// five attempts, one second apart.
func DefaultConfig() Config {
	return Config{
		URL:            "ws://localhost:3001/ws",
		MaxAttempts:    5,
		RetryDelay:     time.Second,
		DialTimeout:    10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

// withDefaults fills zero fields from DefaultConfig
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.URL == "" {
		c.URL = d.URL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	return c
}
