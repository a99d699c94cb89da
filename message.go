package phxclient

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Payload is the dynamically shaped body of a message. Values are whatever
// encoding/json produces: string, float64, bool, nil, []interface{} and
// map[string]interface{}. Use the typed readers instead of bare assertions.
type Payload map[string]interface{}

// String returns the string stored under key.
func (p Payload) String(key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok
}

// Float returns the number stored under key.
func (p Payload) Float(key string) (float64, bool) {
	f, ok := p[key].(float64)
	return f, ok
}

// Bool returns the bool stored under key.
func (p Payload) Bool(key string) (bool, bool) {
	b, ok := p[key].(bool)
	return b, ok
}

// Slice returns the array stored under key.
func (p Payload) Slice(key string) ([]interface{}, bool) {
	s, ok := p[key].([]interface{})
	return s, ok
}

// Map returns the object stored under key.
func (p Payload) Map(key string) (Payload, bool) {
	return asPayload(p[key])
}

func asPayload(v interface{}) (Payload, bool) {
	switch m := v.(type) {
	case Payload:
		return m, true
	case map[string]interface{}:
		return Payload(m), true
	default:
		return nil, false
	}
}

// Message is one envelope on the wire. Ref is empty for messages the server
// sends unprompted.
type Message struct {
	Ref     string  `json:"ref"`
	Topic   string  `json:"topic"`
	Event   string  `json:"event"`
	Payload Payload `json:"payload"`
}

// Serializer converts messages to and from JSON text frames.
type Serializer struct{}

// NewSerializer creates a new serializer instance
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Encode encodes a message for transmission
func (s *Serializer) Encode(msg *Message) ([]byte, error) {
	payload := msg.Payload
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(&Message{
		Ref:     msg.Ref,
		Topic:   msg.Topic,
		Event:   msg.Event,
		Payload: payload,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s on %s", msg.Event, msg.Topic)
	}
	return data, nil
}

// Decode decodes a received message. topic, event and payload are required;
// a missing or non-string ref decodes as "".
func (s *Serializer) Decode(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(ErrMalformedMessage, "empty message")
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(ErrMalformedMessage, "invalid JSON: %v", err)
	}

	msg := &Message{}

	if ref, ok := raw["ref"].(string); ok {
		msg.Ref = ref
	}

	topic, ok := raw["topic"].(string)
	if !ok {
		return nil, errors.Wrap(ErrMalformedMessage, "missing or invalid topic")
	}
	msg.Topic = topic

	event, ok := raw["event"].(string)
	if !ok {
		return nil, errors.Wrap(ErrMalformedMessage, "missing or invalid event")
	}
	msg.Event = event

	payload, ok := asPayload(raw["payload"])
	if !ok {
		return nil, errors.Wrap(ErrMalformedMessage, "missing or invalid payload")
	}
	msg.Payload = payload

	return msg, nil
}
