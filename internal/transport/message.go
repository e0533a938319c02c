package transport

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/mcoot/anubis-client/internal/model"
)

// AnyEvent subscribes a handler to every event, lifecycle events included
const AnyEvent model.EventType = "*"

// Envelope is the frame exchanged with the authority: one JSON text frame per message
type Envelope struct {
	Event model.EventType `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Message is an inbound event as delivered to handlers
type Message struct {
	Event model.EventType
	Data  json.RawMessage

	// ConnID identifies the physical connection the event belongs to
	ConnID string
	// State is set on EventStateChanged
	State model.ConnectionState
	// Err carries the cause for connect_error, connect_failed and disconnect
	Err error
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Handler receives events on the dispatch goroutine
type Handler func(Message)

// Typed adapts a payload-typed function to a Handler. Payloads that fail to
// decode are logged and dropped.
func Typed[T any](logger *slog.Logger, fn func(T, Message)) Handler {
	return func(msg Message) {
		var payload T
		if err := msg.Decode(&payload); err != nil {
			logger.Warn("dropping undecodable payload",
				slog.String("event", string(msg.Event)),
				slog.String("error", err.Error()))
			return
		}
		fn(payload, msg)
	}
}

func encode(event model.EventType, payload any) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

func decodeEnvelope(data []byte, env *Envelope) error {
	if err := json.Unmarshal(data, env); err != nil {
		return err
	}
	if env.Event == "" {
		return errors.New("missing event name")
	}
	return nil
}
