package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/mcoot/anubis-client/internal/model"
)

// Manager owns the single logical connection to the authority.
//
// Inbound frames and lifecycle events share one FIFO and are delivered by a
// single goroutine, so handlers never run concurrently with each other. Handlers
// must not call Disconnect.
type Manager struct {
	cfg    Config
	logger *slog.Logger
	dialer *websocket.Dialer

	subMu    sync.RWMutex
	handlers map[model.EventType][]subscription
	nextSub  uint64

	mu      sync.Mutex
	state   model.ConnectionState
	conn    *websocket.Conn
	connID  string
	running bool
	cancel  context.CancelFunc
	queue   *eventQueue
	done    chan struct{}

	writeMu sync.Mutex
}

type subscription struct {
	id uint64
	fn Handler
}

// New creates a disconnected Manager
func New(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "transport")),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.DialTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		handlers: make(map[model.EventType][]subscription),
		state:    model.StateDisconnected,
	}
}

// On registers a handler for an event and returns a function that removes it.
// Handlers for one event run in registration order.
func (m *Manager) On(event model.EventType, h Handler) func() {
	m.subMu.Lock()
	m.nextSub++
	id := m.nextSub
	m.handlers[event] = append(m.handlers[event], subscription{id: id, fn: h})
	m.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			defer m.subMu.Unlock()
			subs := m.handlers[event]
			for i, s := range subs {
				if s.id == id {
					m.handlers[event] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		})
	}
}

// State returns the current connection state
func (m *Manager) State() model.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConnID returns the id of the open physical connection, or ""
func (m *Manager) ConnID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connID
}

// Connect starts connecting in the background. It returns immediately; progress
// is reported through state, connect, connect_error and connect_failed events.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	q := newEventQueue()
	done := make(chan struct{})
	m.running = true
	m.cancel = cancel
	m.queue = q
	m.done = done
	m.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.supervise(runCtx, q)
		q.close()
	}()
	go func() {
		defer wg.Done()
		m.dispatch(q)
	}()
	go func() {
		wg.Wait()
		cancel()
		m.mu.Lock()
		if m.done == done {
			m.running = false
			m.cancel = nil
		}
		m.mu.Unlock()
		close(done)
	}()

	return nil
}

// Disconnect closes the connection, cancels pending retries and waits until every
// queued event has been delivered. The Manager may be connected again afterwards.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done
	m.logger.Info("disconnected")
	return nil
}

// Send writes one message to the authority. There is no acknowledgement; any
// reply arrives as a separate inbound event.
func (m *Manager) Send(event model.EventType, payload any) error {
	m.mu.Lock()
	conn := m.conn
	connID := m.connID
	m.mu.Unlock()

	if conn == nil {
		return model.ErrNotConnected
	}

	data, err := encode(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	m.logger.Debug("sent", slog.String("event", string(event)), slog.String("conn_id", connID))
	return nil
}

// MarkReady promotes a connected Manager to ready once the handshake for connID
// has completed. It is a no-op for a connection that is no longer current.
func (m *Manager) MarkReady(connID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if connID == "" || connID != m.connID || m.state != model.StateConnected {
		return false
	}
	m.setStateLocked(model.StateReady)
	return true
}

func (m *Manager) setState(state model.ConnectionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStateLocked(state)
}

func (m *Manager) setStateLocked(state model.ConnectionState) {
	if m.state == state {
		return
	}
	m.logger.Info("connection state changed",
		slog.String("from", string(m.state)),
		slog.String("state", string(state)))
	m.state = state
	if m.queue != nil {
		m.queue.push(Message{Event: model.EventStateChanged, State: state, ConnID: m.connID})
	}
}

// supervise dials, serves and redials until the context ends or an outage
// exhausts its attempts
func (m *Manager) supervise(ctx context.Context, q *eventQueue) {
	defer m.setState(model.StateDisconnected)

	for {
		conn, err := m.dial(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.setState(model.StateDisconnected)
			m.logger.Error("giving up on connection",
				slog.Int("attempts", m.cfg.MaxAttempts),
				slog.String("error", err.Error()))
			q.push(Message{Event: model.EventConnectFailed, Err: fmt.Errorf("%w: %v", model.ErrConnectionFailed, err)})
			return
		}

		connID := uuid.NewString()
		m.mu.Lock()
		m.conn = conn
		m.connID = connID
		m.setStateLocked(model.StateConnected)
		m.mu.Unlock()
		q.push(Message{Event: model.EventConnect, ConnID: connID})
		m.logger.Info("connected", slog.String("conn_id", connID))

		reason := m.serve(ctx, conn, connID, q)

		m.mu.Lock()
		m.conn = nil
		m.connID = ""
		m.setStateLocked(model.StateDisconnected)
		m.mu.Unlock()
		q.push(Message{Event: model.EventDisconnect, ConnID: connID, Err: reason})

		if ctx.Err() != nil {
			return
		}
		m.logger.Warn("connection lost", slog.String("conn_id", connID), slog.Any("reason", reason))

		if !m.sleep(ctx, m.cfg.RetryDelay) {
			return
		}
	}
}

// dial makes up to MaxAttempts attempts, RetryDelay apart
func (m *Manager) dial(ctx context.Context, q *eventQueue) (*websocket.Conn, error) {
	attempt := 0
	op := func() (*websocket.Conn, error) {
		attempt++
		m.setState(model.StateConnecting)

		dialCtx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
		defer cancel()

		conn, _, err := m.dialer.DialContext(dialCtx, m.cfg.URL, m.cfg.Header)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			q.push(Message{Event: model.EventConnectError, Err: err})
			return nil, err
		}
		return conn, nil
	}
	notify := func(err error, next time.Duration) {
		m.logger.Warn("connect attempt failed",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", next),
			slog.String("error", err.Error()))
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(m.cfg.RetryDelay), uint64(m.cfg.MaxAttempts-1)),
		ctx,
	)
	return backoff.RetryNotifyWithData(op, policy, notify)
}

// serve runs the read and keepalive pumps for one connection and returns why it ended
func (m *Manager) serve(ctx context.Context, conn *websocket.Conn, connID string, q *eventQueue) error {
	conn.SetReadLimit(m.cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.readPump(conn, connID, q)
	})
	g.Go(func() error {
		return m.pingPump(gctx, conn)
	})
	g.Go(func() error {
		<-gctx.Done()
		m.closeConn(conn)
		return nil
	})
	return g.Wait()
}

func (m *Manager) readPump(conn *websocket.Conn, connID string, q *eventQueue) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.logger.Debug("read error", slog.String("conn_id", connID), slog.String("error", err.Error()))
			}
			return err
		}

		var env Envelope
		if err := decodeEnvelope(data, &env); err != nil {
			m.logger.Warn("dropping malformed frame", slog.String("conn_id", connID))
			continue
		}
		if env.Event.Lifecycle() || env.Event == AnyEvent {
			m.logger.Warn("dropping reserved event from server", slog.String("event", string(env.Event)))
			continue
		}
		q.push(Message{Event: env.Event, Data: env.Data, ConnID: connID})
	}
}

func (m *Manager) pingPump(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(m.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(m.cfg.WriteWait)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

func (m *Manager) closeConn(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(m.cfg.WriteWait))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		m.logger.Debug("close frame not sent", slog.String("error", err.Error()))
	}
	_ = conn.Close()
}

// sleep waits for d unless the context ends first
func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (m *Manager) dispatch(q *eventQueue) {
	for {
		msg, ok := q.pop()
		if !ok {
			return
		}
		m.deliver(msg)
	}
}

func (m *Manager) deliver(msg Message) {
	m.subMu.RLock()
	subs := make([]subscription, 0, len(m.handlers[msg.Event])+len(m.handlers[AnyEvent]))
	subs = append(subs, m.handlers[msg.Event]...)
	subs = append(subs, m.handlers[AnyEvent]...)
	m.subMu.RUnlock()

	for _, s := range subs {
		m.invoke(s.fn, msg)
	}
}

// invoke runs one handler, containing panics so one faulty subscriber cannot
// stop delivery to the rest
func (m *Manager) invoke(fn Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("handler panicked",
				slog.String("event", string(msg.Event)),
				slog.Any("panic", r))
		}
	}()
	fn(msg)
}
