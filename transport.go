package phxclient

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// TransportHandler receives connection events from a Transport. Calls for a
// single connection are delivered one at a time.
type TransportHandler interface {
	HandleOpen()
	HandleClose(err error)
	HandleText(text string)
}

// Transport is a bidirectional text-frame connection. Connect and Disconnect
// return immediately; the outcome is reported through the handler.
type Transport interface {
	Connect(h TransportHandler) error
	Disconnect() error
	IsConnected() bool
	Write(data []byte) error
}

const (
	defaultWriteTimeout   = 5 * time.Second
	defaultHandshakeLimit = 10 * time.Second
	defaultReadLimit      = 16 << 20
)

// WebSocketTransport is a Transport backed by gorilla/websocket.
type WebSocketTransport struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	logger zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	dialing bool
	closing bool

	wmu       sync.Mutex
	connected atomic.Bool
}

// NewWebSocketTransport creates a transport for url. header is sent with the
// handshake and may be nil.
func NewWebSocketTransport(url string, header http.Header, insecureSkipVerify bool, logger zerolog.Logger) *WebSocketTransport {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: defaultHandshakeLimit,
	}
	if insecureSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &WebSocketTransport{
		url:    url,
		header: header,
		dialer: dialer,
		logger: logger,
	}
}

// URL returns the endpoint the transport dials.
func (t *WebSocketTransport) URL() string {
	return t.url
}

// Connect starts dialing in the background. It returns ErrClosing while a
// previous connection is still shutting down.
func (t *WebSocketTransport) Connect(h TransportHandler) error {
	t.mu.Lock()
	if (t.conn != nil && !t.connected.Load()) || (t.dialing && t.closing) {
		t.mu.Unlock()
		return ErrClosing
	}
	if t.conn != nil || t.dialing {
		t.mu.Unlock()
		return nil
	}
	t.dialing = true
	t.closing = false
	t.mu.Unlock()

	go t.dial(h)
	return nil
}

func (t *WebSocketTransport) dial(h TransportHandler) {
	conn, _, err := t.dialer.DialContext(context.Background(), t.url, t.header)

	t.mu.Lock()
	t.dialing = false
	if err != nil {
		t.mu.Unlock()
		h.HandleClose(errors.Wrapf(err, "dial %s", t.url))
		return
	}
	if t.closing {
		// Disconnect was requested while the handshake was in flight.
		t.mu.Unlock()
		_ = conn.Close()
		h.HandleClose(nil)
		return
	}
	conn.SetReadLimit(defaultReadLimit)
	t.conn = conn
	t.connected.Store(true)
	t.mu.Unlock()

	h.HandleOpen()
	t.readLoop(conn, h)
}

func (t *WebSocketTransport) readLoop(conn *websocket.Conn, h TransportHandler) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			closing := t.closing
			t.connected.Store(false)
			t.mu.Unlock()
			_ = conn.Close()

			// conn stays set until the handler returns so Connect reports
			// ErrClosing instead of overlapping two connections.
			if closing || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				h.HandleClose(nil)
			} else {
				h.HandleClose(errors.Wrap(err, "read"))
			}

			t.mu.Lock()
			if t.conn == conn {
				t.conn = nil
			}
			t.mu.Unlock()
			return
		}

		if messageType != websocket.TextMessage {
			t.logger.Debug().Int("bytes", len(data)).Msg("ignoring binary frame")
			continue
		}
		h.HandleText(string(data))
	}
}

// Disconnect sends a close frame and closes the connection. The read loop
// reports the close to the handler.
func (t *WebSocketTransport) Disconnect() error {
	t.mu.Lock()
	t.closing = true
	conn := t.conn
	t.connected.Store(false)
	t.mu.Unlock()

	if conn == nil {
		return nil
	}

	t.wmu.Lock()
	err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
		time.Now().Add(500*time.Millisecond))
	t.wmu.Unlock()
	if err != nil {
		t.logger.Debug().Err(err).Msg("close frame not sent")
	}
	return errors.Wrap(conn.Close(), "close connection")
}

// IsConnected reports whether a connection is open.
func (t *WebSocketTransport) IsConnected() bool {
	return t.connected.Load()
}

// Write sends one text frame.
func (t *WebSocketTransport) Write(data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	t.wmu.Lock()
	defer t.wmu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(err, "write")
	}
	return nil
}
