package realtime

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// Reserved envelope types
const (
	TypePing      = "ping"
	TypePong      = "pong"
	TypeSubscribe = "subscribe"
)

var errNotObject = errors.New("envelope must be a JSON object")

// Envelope is the {type, ...payload} unit exchanged over the socket. Fields
// holds every key except "type".
type Envelope struct {
	Type   string
	Fields map[string]any
}

// NewEnvelope builds an envelope with the given payload fields
func NewEnvelope(msgType string, fields map[string]any) Envelope {
	return Envelope{Type: msgType, Fields: fields}
}

// Ping returns a keep-alive envelope
func Ping() Envelope {
	return Envelope{Type: TypePing}
}

// Subscribe returns a subscription envelope for events
func Subscribe(events []string) Envelope {
	return Envelope{Type: TypeSubscribe, Fields: map[string]any{"events": events}}
}

// Get returns a payload field
func (e Envelope) Get(key string) (any, bool) {
	v, ok := e.Fields[key]
	return v, ok
}

// Text returns a string payload field or ""
func (e Envelope) Text(key string) string {
	s, _ := e.Fields[key].(string)
	return s
}

// Decode copies the payload (type included) into v
func (e Envelope) Decode(v any) error {
	data, err := e.MarshalJSON()
	if err != nil {
		return err
	}
	return sonic.Unmarshal(data, v)
}

// MarshalJSON flattens the payload next to "type"
func (e Envelope) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		m[k] = v
	}
	m["type"] = e.Type
	return sonic.Marshal(m)
}

// UnmarshalJSON splits "type" from the remaining keys
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := sonic.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if m == nil {
		return errNotObject
	}
	t, _ := m["type"].(string)
	delete(m, "type")
	e.Type = t
	e.Fields = m
	return nil
}
