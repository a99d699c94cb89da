package phxclient

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializerRoundTrip(t *testing.T) {
	s := NewSerializer()
	msg := &Message{
		Ref:   "ref-1",
		Topic: "room:1",
		Event: "new:msg",
		Payload: Payload{
			"body":  "hello",
			"count": float64(3),
			"ok":    true,
			"tags":  []interface{}{"a", "b"},
			"user":  map[string]interface{}{"name": "gopher"},
			"none":  nil,
		},
	}

	data, err := s.Encode(msg)
	require.NoError(t, err)

	decoded, err := s.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestSerializerEncodeNilPayload(t *testing.T) {
	s := NewSerializer()
	data, err := s.Encode(&Message{Topic: "phoenix", Event: EventHeartbeat, Ref: "hb-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"topic":"phoenix","event":"heartbeat","payload":{},"ref":"hb-1"}`, string(data))
}

func TestSerializerEncodeUnsupportedValue(t *testing.T) {
	s := NewSerializer()

	_, err := s.Encode(&Message{Topic: "t", Event: "e", Payload: Payload{"f": math.Inf(1)}})
	assert.Error(t, err)

	_, err = s.Encode(&Message{Topic: "t", Event: "e", Payload: Payload{"c": make(chan int)}})
	assert.Error(t, err)
}

func TestSerializerDecodeMissingRef(t *testing.T) {
	s := NewSerializer()

	msg, err := s.Decode([]byte(`{"topic":"room:1","event":"new:msg","payload":{"body":"x"}}`))
	require.NoError(t, err)
	assert.Equal(t, "", msg.Ref)

	msg, err = s.Decode([]byte(`{"topic":"room:1","event":"new:msg","payload":{},"ref":null}`))
	require.NoError(t, err)
	assert.Equal(t, "", msg.Ref)
}

func TestSerializerDecodeErrors(t *testing.T) {
	s := NewSerializer()

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ``},
		{"not json", `{"topic":`},
		{"array root", `["1","1","room","event",{}]`},
		{"missing topic", `{"event":"e","payload":{}}`},
		{"missing event", `{"topic":"t","payload":{}}`},
		{"missing payload", `{"topic":"t","event":"e"}`},
		{"topic not string", `{"topic":1,"event":"e","payload":{}}`},
		{"payload not object", `{"topic":"t","event":"e","payload":"x"}`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			msg, err := s.Decode([]byte(test.input))
			assert.Nil(t, msg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedMessage), "got %v", err)
		})
	}
}

func TestPayloadAccessors(t *testing.T) {
	p := Payload{
		"s":      "str",
		"n":      float64(2),
		"b":      true,
		"list":   []interface{}{1},
		"raw":    map[string]interface{}{"k": "v"},
		"nested": Payload{"k": "w"},
	}

	s, ok := p.String("s")
	assert.True(t, ok)
	assert.Equal(t, "str", s)

	_, ok = p.String("n")
	assert.False(t, ok)

	n, ok := p.Float("n")
	assert.True(t, ok)
	assert.Equal(t, float64(2), n)

	b, ok := p.Bool("b")
	assert.True(t, ok)
	assert.True(t, b)

	list, ok := p.Slice("list")
	assert.True(t, ok)
	assert.Len(t, list, 1)

	raw, ok := p.Map("raw")
	require.True(t, ok)
	v, _ := raw.String("k")
	assert.Equal(t, "v", v)

	nested, ok := p.Map("nested")
	require.True(t, ok)
	w, _ := nested.String("k")
	assert.Equal(t, "w", w)

	_, ok = p.Map("missing")
	assert.False(t, ok)
}
