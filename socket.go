package phxclient

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// DefaultHeartbeatInterval is how often a connected socket sends a heartbeat.
const DefaultHeartbeatInterval = 30 * time.Second

// SocketOptions configures the socket behavior
type SocketOptions struct {
	// HeartbeatInterval for sending heartbeats (default: 30 seconds)
	HeartbeatInterval time.Duration

	// Params are appended to the endpoint as query parameters
	Params map[string]string

	// Header is sent with the WebSocket handshake
	Header http.Header

	// InsecureSkipVerify accepts self-signed server certificates
	InsecureSkipVerify bool

	// Logger for debug output. Defaults to a no-op logger unless PHX_DEBUG is set.
	Logger *zerolog.Logger

	// Metrics receives socket activity. Nil disables metrics.
	Metrics *Metrics

	// Transport overrides the default gorilla/websocket transport
	Transport Transport
}

// DefaultSocketOptions returns options with every default applied.
func DefaultSocketOptions() *SocketOptions {
	options := &SocketOptions{}
	setDefaultOptions(options)
	return options
}

// setDefaultOptions sets default values for unspecified options
func setDefaultOptions(options *SocketOptions) {
	if options.HeartbeatInterval <= 0 {
		options.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if options.Params == nil {
		options.Params = make(map[string]string)
	}
	if options.Logger == nil {
		logger := debugLogger()
		options.Logger = &logger
	}
}

// debugLogger logs to stderr at debug level when PHX_DEBUG is set.
func debugLogger() zerolog.Logger {
	if os.Getenv("PHX_DEBUG") == "" {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(zerolog.DebugLevel).
		With().Timestamp().Str("component", "phx").Logger()
}

// buildURL normalises http(s) schemes to ws(s) and appends params.
func buildURL(endpoint string, params map[string]string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint, errors.Wrapf(err, "parse endpoint %q", endpoint)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Socket multiplexes channels over one transport connection.
type Socket struct {
	endpoint   string
	options    *SocketOptions
	transport  Transport
	serializer *Serializer
	logger     zerolog.Logger
	metrics    *Metrics

	mu                sync.Mutex
	channels          map[string]*Channel
	awaitingResponses map[string]*Push
	onConnect         func()
	onDisconnect      func(error)
	heartbeatCancel   context.CancelFunc
}

// NewSocket creates a socket for endpoint. Nothing is dialed until Connect.
func NewSocket(endpoint string, options *SocketOptions) *Socket {
	if options == nil {
		options = &SocketOptions{}
	}
	setDefaultOptions(options)
	logger := *options.Logger

	full, err := buildURL(endpoint, options.Params)
	if err != nil {
		logger.Error().Err(err).Msg("using endpoint as given")
	}

	transport := options.Transport
	if transport == nil {
		transport = NewWebSocketTransport(full, options.Header, options.InsecureSkipVerify, logger)
	}

	return &Socket{
		endpoint:          full,
		options:           options,
		transport:         transport,
		serializer:        NewSerializer(),
		logger:            logger,
		metrics:           options.Metrics,
		channels:          make(map[string]*Channel),
		awaitingResponses: make(map[string]*Push),
	}
}

// Endpoint returns the URL the socket connects to.
func (s *Socket) Endpoint() string {
	return s.endpoint
}

// OnConnect sets the hook run when the transport opens, before the first
// heartbeat is scheduled.
func (s *Socket) OnConnect(callback func()) {
	s.mu.Lock()
	s.onConnect = callback
	s.mu.Unlock()
}

// OnDisconnect sets the hook run when the transport closes. err is nil for
// a clean close.
func (s *Socket) OnDisconnect(callback func(err error)) {
	s.mu.Lock()
	s.onDisconnect = callback
	s.mu.Unlock()
}

// Connect asks the transport to connect. It is a no-op when already connected.
// Right after Disconnect it fails with ErrClosing until the old connection
// has reported its close.
func (s *Socket) Connect() error {
	if s.transport.IsConnected() {
		return nil
	}
	s.logger.Debug().Str("url", s.endpoint).Msg("connecting")
	return errors.Wrap(s.transport.Connect(socketHandler{s: s}), "connect")
}

// Disconnect asks the transport to disconnect. It is a no-op when not connected.
func (s *Socket) Disconnect() error {
	if !s.transport.IsConnected() {
		return nil
	}
	s.logger.Debug().Str("url", s.endpoint).Msg("disconnecting")
	return errors.Wrap(s.transport.Disconnect(), "disconnect")
}

// IsConnected returns true if the transport is connected
func (s *Socket) IsConnected() bool {
	return s.transport.IsConnected()
}

// Channel creates a channel for topic, replacing any channel already
// registered for it. It does not join.
func (s *Socket) Channel(topic string, params Payload) *Channel {
	ch := newChannel(topic, params, s)

	s.mu.Lock()
	s.channels[topic] = ch
	s.reportTablesLocked()
	s.mu.Unlock()

	return ch
}

// Remove leaves ch and drops it from the socket once the leave is
// acknowledged. Without an "ok" reply the channel stays registered.
func (s *Socket) Remove(ch *Channel) *Push {
	return ch.leave(func(Payload) {
		s.mu.Lock()
		if s.channels[ch.topic] == ch {
			delete(s.channels, ch.topic)
		}
		s.reportTablesLocked()
		s.mu.Unlock()
		s.logger.Debug().Str("topic", ch.topic).Msg("channel removed")
	})
}

// Channels returns a snapshot of the registered channels by topic.
func (s *Socket) Channels() map[string]*Channel {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]*Channel, len(s.channels))
	for topic, ch := range s.channels {
		out[topic] = ch
	}
	return out
}

// PendingCount returns the number of pushes awaiting a reply.
func (s *Socket) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.awaitingResponses)
}

// Send encodes p and writes it. The push is registered under its ref before
// the write so a fast reply cannot be missed. An encoding failure is reported
// to p as an "error" reply; a write failure drops p silently.
func (s *Socket) Send(p *Push) *Push {
	data, err := s.serializer.Encode(p.message())
	if err != nil {
		s.logger.Warn().Err(err).Str("topic", p.topic).Str("event", p.event).Msg("failed to encode push")
		s.metrics.encodeFailed()
		p.handleParseError()
		return p
	}

	s.mu.Lock()
	s.awaitingResponses[p.ref] = p
	s.reportTablesLocked()
	s.mu.Unlock()

	s.logger.Debug().
		Str("topic", p.topic).
		Str("event", p.event).
		Str("ref", p.ref).
		Msg("sending")

	if err := s.transport.Write(data); err != nil {
		s.logger.Warn().Err(err).Str("topic", p.topic).Str("event", p.event).Str("ref", p.ref).Msg("failed to send push")
		s.metrics.writeFailed()

		s.mu.Lock()
		if s.awaitingResponses[p.ref] == p {
			delete(s.awaitingResponses, p.ref)
		}
		s.reportTablesLocked()
		s.mu.Unlock()
		return p
	}

	s.metrics.pushSent(p.event)
	return p
}

// reportTablesLocked must be called with s.mu held
func (s *Socket) reportTablesLocked() {
	s.metrics.setTables(len(s.awaitingResponses), len(s.channels))
}

// Heartbeat

func (s *Socket) startHeartbeat() {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.heartbeatCancel != nil {
		s.heartbeatCancel()
	}
	s.heartbeatCancel = cancel
	s.mu.Unlock()

	go s.heartbeatLoop(ctx, s.options.HeartbeatInterval)
}

func (s *Socket) stopHeartbeat() {
	s.mu.Lock()
	cancel := s.heartbeatCancel
	s.heartbeatCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (s *Socket) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.sendHeartbeat() {
				return
			}
		}
	}
}

// sendHeartbeat returns false once the transport is gone.
func (s *Socket) sendHeartbeat() bool {
	if !s.transport.IsConnected() {
		return false
	}
	ref := HeartbeatRefPrefix + uuid.NewString()
	s.Send(newPushWithRef(EventHeartbeat, SystemTopic, Payload{}, ref))
	return true
}

// Transport events

func (s *Socket) handleOpen() {
	s.logger.Debug().Str("url", s.endpoint).Msg("connected")
	s.metrics.connected()

	s.mu.Lock()
	cb := s.onConnect
	s.mu.Unlock()
	if cb != nil {
		cb()
	}

	s.startHeartbeat()
}

func (s *Socket) handleClose(err error) {
	if err != nil {
		s.logger.Warn().Err(err).Str("url", s.endpoint).Msg("disconnected")
	} else {
		s.logger.Debug().Str("url", s.endpoint).Msg("disconnected")
	}
	s.metrics.disconnected(err)
	s.stopHeartbeat()

	s.mu.Lock()
	cb := s.onDisconnect
	s.mu.Unlock()
	if cb != nil {
		cb(err)
	}

	s.mu.Lock()
	s.awaitingResponses = make(map[string]*Push)
	s.channels = make(map[string]*Channel)
	s.reportTablesLocked()
	s.mu.Unlock()
}

func (s *Socket) handleText(text string) {
	msg, err := s.serializer.Decode([]byte(text))
	if err != nil {
		s.logger.Warn().Err(err).Msg("dropping inbound message")
		s.metrics.decodeFailed()
		return
	}

	s.logger.Debug().
		Str("topic", msg.Topic).
		Str("event", msg.Event).
		Str("ref", msg.Ref).
		Msg("received")

	var push *Push
	if msg.Ref != "" {
		s.mu.Lock()
		push = s.awaitingResponses[msg.Ref]
		delete(s.awaitingResponses, msg.Ref)
		s.reportTablesLocked()
		s.mu.Unlock()
	}

	if push != nil {
		push.handleResponse(msg)
		if status, ok := push.Status(); ok {
			s.metrics.replyReceived(status)
		}
	}

	s.mu.Lock()
	ch := s.channels[msg.Topic]
	s.mu.Unlock()

	if ch != nil {
		ch.received(msg)
	}
}

// socketHandler adapts a Socket to TransportHandler without exporting the
// callbacks on Socket itself.
type socketHandler struct {
	s *Socket
}

func (h socketHandler) HandleOpen()            { h.s.handleOpen() }
func (h socketHandler) HandleClose(err error)  { h.s.handleClose(err) }
func (h socketHandler) HandleText(text string) { h.s.handleText(text) }
