package mocks

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mcoot/anubis-client/internal/model"
	"github.com/mcoot/anubis-client/internal/transport"
)

// Sent is one message recorded by MockConn
type Sent struct {
	Event   model.EventType
	Payload any
}

// MockConn is an in-memory stand-in for transport.Manager.
// Emit delivers synchronously on the calling goroutine, so tests drive
// handlers step by step.
type MockConn struct {
	mu       sync.Mutex
	handlers map[model.EventType][]*mockSub
	sent     []Sent
	state    model.ConnectionState
	connID   string
	connSeq  int

	// SendErr, when set, is returned by every Send
	SendErr error
}

type mockSub struct {
	fn     transport.Handler
	active bool
}

// NewMockConn creates a disconnected MockConn
func NewMockConn() *MockConn {
	return &MockConn{
		handlers: make(map[model.EventType][]*mockSub),
		state:    model.StateDisconnected,
	}
}

// On registers a handler
func (c *MockConn) On(event model.EventType, h transport.Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := &mockSub{fn: h, active: true}
	c.handlers[event] = append(c.handlers[event], sub)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		sub.active = false
	}
}

// Send records the message. It fails like the real manager when offline.
func (c *MockConn) Send(event model.EventType, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}
	if !c.state.Online() {
		return model.ErrNotConnected
	}
	c.sent = append(c.sent, Sent{Event: event, Payload: payload})
	return nil
}

// State returns the simulated connection state
func (c *MockConn) State() model.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnID returns the id of the simulated physical connection
func (c *MockConn) ConnID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

// MarkReady promotes connected to ready for the current connection id
func (c *MockConn) MarkReady(connID string) bool {
	c.mu.Lock()
	if connID == "" || connID != c.connID || c.state != model.StateConnected {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()
	c.SetState(model.StateReady)
	return true
}

// SetState changes the state and emits a state event if it changed
func (c *MockConn) SetState(state model.ConnectionState) {
	c.mu.Lock()
	if c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	connID := c.connID
	c.mu.Unlock()
	c.deliver(transport.Message{Event: model.EventStateChanged, State: state, ConnID: connID})
}

// Open simulates a successful dial: connecting, connected, then connect
func (c *MockConn) Open() string {
	c.SetState(model.StateConnecting)
	c.mu.Lock()
	c.connSeq++
	c.connID = fmt.Sprintf("conn-%d", c.connSeq)
	connID := c.connID
	c.mu.Unlock()
	c.SetState(model.StateConnected)
	c.deliver(transport.Message{Event: model.EventConnect, ConnID: connID})
	return connID
}

// Drop simulates a lost connection
func (c *MockConn) Drop(reason error) {
	c.mu.Lock()
	connID := c.connID
	c.connID = ""
	c.mu.Unlock()
	c.SetState(model.StateDisconnected)
	c.deliver(transport.Message{Event: model.EventDisconnect, ConnID: connID, Err: reason})
}

// Emit delivers a server event with the payload marshalled to JSON
func (c *MockConn) Emit(event model.EventType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("mock emit %s: %v", event, err))
	}
	c.deliver(transport.Message{Event: event, Data: data, ConnID: c.ConnID()})
}

// EmitRaw delivers a server event with a literal JSON payload
func (c *MockConn) EmitRaw(event model.EventType, data string) {
	c.deliver(transport.Message{Event: event, Data: json.RawMessage(data), ConnID: c.ConnID()})
}

// EmitMessage delivers msg as is
func (c *MockConn) EmitMessage(msg transport.Message) {
	c.deliver(msg)
}

func (c *MockConn) deliver(msg transport.Message) {
	c.mu.Lock()
	var subs []*mockSub
	subs = append(subs, c.handlers[msg.Event]...)
	subs = append(subs, c.handlers[transport.AnyEvent]...)
	c.mu.Unlock()

	for _, s := range subs {
		c.mu.Lock()
		active := s.active
		c.mu.Unlock()
		if active {
			s.fn(msg)
		}
	}
}

// Sent returns every recorded message
func (c *MockConn) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// SentEvents returns the recorded messages of one event type
func (c *MockConn) SentEvents(event model.EventType) []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Sent
	for _, s := range c.sent {
		if s.Event == event {
			out = append(out, s)
		}
	}
	return out
}

// ClearSent forgets recorded messages
func (c *MockConn) ClearSent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}
