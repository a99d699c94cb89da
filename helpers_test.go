package phxclient

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTransport records writes and lets tests drive the handler directly.
type fakeTransport struct {
	mu              sync.Mutex
	connected       bool
	handler         TransportHandler
	writes          [][]byte
	writeErr        error
	connectCalls    int
	disconnectCalls int
}

func (f *fakeTransport) Connect(h TransportHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	f.handler = h
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnectCalls++
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Write(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	if !f.connected {
		return ErrNotConnected
	}
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) open() {
	f.mu.Lock()
	f.connected = true
	h := f.handler
	f.mu.Unlock()
	h.HandleOpen()
}

func (f *fakeTransport) close(err error) {
	f.mu.Lock()
	f.connected = false
	h := f.handler
	f.mu.Unlock()
	h.HandleClose(err)
}

func (f *fakeTransport) deliver(text string) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h.HandleText(text)
}

func (f *fakeTransport) sent(t *testing.T) []*Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	s := NewSerializer()
	out := make([]*Message, 0, len(f.writes))
	for _, data := range f.writes {
		msg, err := s.Decode(data)
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

func (f *fakeTransport) lastSent(t *testing.T) *Message {
	t.Helper()
	sent := f.sent(t)
	require.NotEmpty(t, sent)
	return sent[len(sent)-1]
}

// newTestSocket returns a connected socket over a fake transport.
func newTestSocket(t *testing.T) (*Socket, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	socket := NewSocket("ws://example.test/socket/websocket", &SocketOptions{
		Transport:         ft,
		HeartbeatInterval: time.Hour,
	})
	require.NoError(t, socket.Connect())
	ft.open()
	return socket, ft
}

func encodeFrame(t *testing.T, topic, event, ref string, payload map[string]interface{}) string {
	t.Helper()
	data, err := json.Marshal(map[string]interface{}{
		"topic":   topic,
		"event":   event,
		"ref":     ref,
		"payload": payload,
	})
	require.NoError(t, err)
	return string(data)
}

func replyFrame(t *testing.T, topic, ref, status string) string {
	t.Helper()
	return encodeFrame(t, topic, EventReply, ref, map[string]interface{}{
		"status":   status,
		"response": map[string]interface{}{},
	})
}

// recordingSender captures pushes instead of writing them.
type recordingSender struct {
	mu     sync.Mutex
	pushes []*Push
}

func (r *recordingSender) Send(p *Push) *Push {
	r.mu.Lock()
	r.pushes = append(r.pushes, p)
	r.mu.Unlock()
	return p
}

func (r *recordingSender) last() *Push {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pushes) == 0 {
		return nil
	}
	return r.pushes[len(r.pushes)-1]
}
