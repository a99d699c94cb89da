package phxclient

import (
	"sync"

	"github.com/google/uuid"
)

// invalidPayloadReason is the reason delivered when a push could not be encoded.
const invalidPayloadReason = "Invalid payload request."

// ReplyCallback receives the payload of a reply.
type ReplyCallback func(resp Payload)

// receiveHook is a status callback waiting for a reply.
type receiveHook struct {
	status   string
	callback ReplyCallback
}

// Push is one outbound message awaiting zero or one reply. A Push fires its
// callbacks at most once; later replies carrying the same ref are ignored.
type Push struct {
	mu      sync.Mutex
	topic   string
	event   string
	payload Payload
	ref     string

	received     bool
	status       string
	receivedResp Payload

	recHooks    []receiveHook
	alwaysHooks []func()
}

// NewPush creates a push with a fresh UUID ref.
func NewPush(event, topic string, payload Payload) *Push {
	return newPushWithRef(event, topic, payload, uuid.NewString())
}

func newPushWithRef(event, topic string, payload Payload, ref string) *Push {
	if payload == nil {
		payload = Payload{}
	}
	return &Push{
		topic:   topic,
		event:   event,
		payload: payload,
		ref:     ref,
	}
}

// Topic returns the topic the push is addressed to.
func (p *Push) Topic() string { return p.topic }

// Event returns the push event name.
func (p *Push) Event() string { return p.event }

// Payload returns the outbound payload.
func (p *Push) Payload() Payload { return p.payload }

// Ref returns the correlation ref.
func (p *Push) Ref() string { return p.ref }

// Status returns the status of the recorded reply, if any.
func (p *Push) Status() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.received
}

// Response returns the recorded reply payload, nil before a reply arrives.
func (p *Push) Response() Payload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.receivedResp
}

// HasReceived returns true if a response with the given status was received
func (p *Push) HasReceived(status string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasReceived(status)
}

// hasReceived must be called with the lock held
func (p *Push) hasReceived(status string) bool {
	return p.received && p.status == status
}

func (p *Push) message() *Message {
	return &Message{
		Ref:     p.ref,
		Topic:   p.topic,
		Event:   p.event,
		Payload: p.payload,
	}
}

// Receive registers callback for replies with status. If that status has
// already been recorded, callback runs immediately with the stored payload.
func (p *Push) Receive(status string, callback ReplyCallback) *Push {
	p.mu.Lock()
	if p.hasReceived(status) {
		resp := p.receivedResp
		p.mu.Unlock()
		callback(resp)
		return p
	}
	p.recHooks = append(p.recHooks, receiveHook{
		status:   status,
		callback: callback,
	})
	p.mu.Unlock()
	return p
}

// Always registers a callback that runs once for any reply, after the
// status callbacks.
func (p *Push) Always(callback func()) *Push {
	p.mu.Lock()
	p.alwaysHooks = append(p.alwaysHooks, callback)
	p.mu.Unlock()
	return p
}

// handleResponse records the reply and fires the matching callbacks.
func (p *Push) handleResponse(msg *Message) {
	status, ok := msg.Payload.String("status")
	if !ok {
		status = StatusError
	}
	p.trigger(status, msg.Payload)
}

// handleParseError reports a local encoding failure as an "error" reply.
func (p *Push) handleParseError() {
	p.trigger(StatusError, Payload{"reason": invalidPayloadReason})
}

func (p *Push) trigger(status string, resp Payload) {
	p.mu.Lock()
	p.received = true
	p.status = status
	p.receivedResp = resp

	hooks := p.recHooks
	always := p.alwaysHooks
	p.recHooks = nil
	p.alwaysHooks = nil
	p.mu.Unlock()

	for _, hook := range hooks {
		if hook.status == status {
			hook.callback(resp)
		}
	}
	for _, cb := range always {
		cb()
	}
}
