package phxclient

import (
	"sync"
)

// ChannelState represents the channel state
type ChannelState int

const (
	ChannelClosed ChannelState = iota
	ChannelErrored
	ChannelJoined
	ChannelJoining
	ChannelLeaving
)

// String returns the string representation of the channel state
func (cs ChannelState) String() string {
	switch cs {
	case ChannelClosed:
		return "closed"
	case ChannelErrored:
		return "errored"
	case ChannelJoined:
		return "joined"
	case ChannelJoining:
		return "joining"
	case ChannelLeaving:
		return "leaving"
	default:
		return "unknown"
	}
}

// EventCallback handles one inbound event on a channel.
type EventCallback func(msg *Message)

// sender is the capability a channel uses to put pushes on the wire. The
// socket implements it; channels never hold the socket itself.
type sender interface {
	Send(p *Push) *Push
}

// Channel is one topic on the socket.
type Channel struct {
	mu     sync.RWMutex
	topic  string
	params Payload
	sender sender
	state  ChannelState

	callbacks        map[string]EventCallback
	presence         *Presence
	presenceCallback func(*Presence)
}

// newChannel creates a new channel instance
func newChannel(topic string, params Payload, s sender) *Channel {
	if params == nil {
		params = Payload{}
	}

	ch := &Channel{
		topic:     topic,
		params:    params,
		sender:    s,
		state:     ChannelClosed,
		callbacks: make(map[string]EventCallback),
		presence:  NewPresence(),
	}

	ch.On(EventPresenceState, ch.syncPresence)
	ch.On(EventPresenceDiff, ch.syncPresence)

	return ch
}

func (ch *Channel) syncPresence(msg *Message) {
	ch.presence.Sync(msg)

	ch.mu.RLock()
	cb := ch.presenceCallback
	ch.mu.RUnlock()
	if cb != nil {
		cb(ch.presence)
	}
}

// Join sends phx_join with the channel params and moves to joining. An "ok"
// reply moves the channel to joined; any other reply leaves the state alone.
func (ch *Channel) Join() *Push {
	ch.setState(ChannelJoining)

	p := NewPush(EventJoin, ch.topic, ch.params).Receive(StatusOK, func(Payload) {
		ch.setState(ChannelJoined)
	})
	return ch.sender.Send(p)
}

// Leave sends phx_leave and moves to leaving. An "ok" reply closes the channel.
func (ch *Channel) Leave() *Push {
	return ch.leave(nil)
}

// leave attaches onOK after the state hook and before the push is sent, so
// both run ahead of any channel callback for the reply.
func (ch *Channel) leave(onOK ReplyCallback) *Push {
	ch.setState(ChannelLeaving)

	p := NewPush(EventLeave, ch.topic, Payload{}).Receive(StatusOK, func(Payload) {
		ch.setState(ChannelClosed)
	})
	if onOK != nil {
		p.Receive(StatusOK, onOK)
	}
	return ch.sender.Send(p)
}

// Push sends an event on this channel's topic regardless of its state.
func (ch *Channel) Push(event string, payload Payload) *Push {
	return ch.sender.Send(NewPush(event, ch.topic, payload))
}

// On registers the handler for event, replacing any previous one. Replacing
// presence_state or presence_diff disables the built-in presence tracking
// for that event.
func (ch *Channel) On(event string, callback EventCallback) *Channel {
	ch.mu.Lock()
	ch.callbacks[event] = callback
	ch.mu.Unlock()
	return ch
}

// Off removes the handler for event.
func (ch *Channel) Off(event string) *Channel {
	ch.mu.Lock()
	delete(ch.callbacks, event)
	ch.mu.Unlock()
	return ch
}

// OnPresenceUpdate registers a callback run after every presence sync.
func (ch *Channel) OnPresenceUpdate(callback func(*Presence)) *Channel {
	ch.mu.Lock()
	ch.presenceCallback = callback
	ch.mu.Unlock()
	return ch
}

// received dispatches msg to the handler for its event. Unknown events are dropped.
func (ch *Channel) received(msg *Message) {
	ch.mu.RLock()
	cb, ok := ch.callbacks[msg.Event]
	ch.mu.RUnlock()

	if ok && cb != nil {
		cb(msg)
	}
}

func (ch *Channel) setState(state ChannelState) {
	ch.mu.Lock()
	ch.state = state
	ch.mu.Unlock()
}

// State query methods

// State returns the current channel state
func (ch *Channel) State() ChannelState {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.state
}

// IsClosed returns true if the channel is closed
func (ch *Channel) IsClosed() bool { return ch.State() == ChannelClosed }

// IsErrored returns true if the channel is in error state
func (ch *Channel) IsErrored() bool { return ch.State() == ChannelErrored }

// IsJoined returns true if the channel is joined
func (ch *Channel) IsJoined() bool { return ch.State() == ChannelJoined }

// IsJoining returns true if the channel is joining
func (ch *Channel) IsJoining() bool { return ch.State() == ChannelJoining }

// IsLeaving returns true if the channel is leaving
func (ch *Channel) IsLeaving() bool { return ch.State() == ChannelLeaving }

// Topic returns the channel topic
func (ch *Channel) Topic() string {
	return ch.topic
}

// Params returns the join params.
func (ch *Channel) Params() Payload {
	return ch.params
}

// Presence returns the channel's presence tracker.
func (ch *Channel) Presence() *Presence {
	return ch.presence
}
