package alerts

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/anubis-client/internal/dependencies/clock"
	"github.com/mcoot/anubis-client/internal/model"
	"github.com/mcoot/anubis-client/internal/transport"
)

// Kind classifies an alert by where it came from
type Kind string

const (
	KindTable      Kind = "table"
	KindGame       Kind = "game"
	KindConnection Kind = "connection"
)

// Alert is a transient, user-facing message. None of them are fatal.
type Alert struct {
	Kind    Kind
	Message string
	At      time.Time
}

// Subscriber is the part of the connection manager alerts listen on
type Subscriber interface {
	On(event model.EventType, h transport.Handler) func()
}

// Center collects rejections and connection trouble for display
type Center struct {
	clock  clock.Clock
	logger *slog.Logger

	mu             sync.RWMutex
	latest         *Alert
	reconnecting   bool
	connectionLost bool
	listeners      []func(Alert)

	unsubscribe []func()
}

// New creates a Center and subscribes it to conn
func New(conn Subscriber, clk clock.Clock, logger *slog.Logger) *Center {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	c := &Center{
		clock:  clk,
		logger: logger.With(slog.String("component", "alerts")),
	}

	l := c.logger
	c.unsubscribe = []func(){
		conn.On(model.EventTableError, transport.Typed(l, func(p model.ErrorPayload, _ transport.Message) {
			c.raise(KindTable, p.Error)
		})),
		conn.On(model.EventGameError, transport.Typed(l, func(p model.ErrorPayload, _ transport.Message) {
			c.raise(KindGame, p.Error)
		})),
		conn.On(model.EventConnectError, c.onConnectError),
		conn.On(model.EventConnectFailed, c.onConnectFailed),
		conn.On(model.EventStateChanged, c.onState),
	}
	return c
}

// Close removes the center's subscriptions
func (c *Center) Close() {
	for _, unsub := range c.unsubscribe {
		unsub()
	}
}

func (c *Center) onConnectError(msg transport.Message) {
	c.mu.Lock()
	c.reconnecting = true
	c.mu.Unlock()
	if msg.Err != nil {
		c.logger.Debug("connect attempt failed", slog.String("error", msg.Err.Error()))
	}
}

func (c *Center) onConnectFailed(msg transport.Message) {
	c.mu.Lock()
	c.reconnecting = false
	c.connectionLost = true
	c.mu.Unlock()

	text := "Connection failed"
	if msg.Err != nil {
		text = msg.Err.Error()
	}
	c.raise(KindConnection, text)
}

func (c *Center) onState(msg transport.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.State {
	case model.StateReady:
		c.reconnecting = false
		c.connectionLost = false
	case model.StateConnecting:
		c.reconnecting = true
	}
}

func (c *Center) raise(kind Kind, message string) {
	a := Alert{Kind: kind, Message: message, At: c.clock.Now()}

	c.mu.Lock()
	c.latest = &a
	listeners := append([]func(Alert){}, c.listeners...)
	c.mu.Unlock()

	c.logger.Warn("alert", slog.String("kind", string(kind)), slog.String("message", message))
	for _, fn := range listeners {
		fn(a)
	}
}

// Latest returns the most recent alert, if any
func (c *Center) Latest() (Alert, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil {
		return Alert{}, false
	}
	return *c.latest, true
}

// Clear dismisses the current alert
func (c *Center) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest = nil
}

// Reconnecting reports whether a connection attempt is in progress after a failure or drop
func (c *Center) Reconnecting() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reconnecting
}

// ConnectionLost reports whether retries were exhausted. It stays set until the
// next successful handshake.
func (c *Center) ConnectionLost() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connectionLost
}

// OnAlert registers fn to be called for every new alert
func (c *Center) OnAlert(fn func(Alert)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}
