// Package phxclient provides a Go client for Phoenix-style Channels: many
// topic-scoped conversations multiplexed over a single WebSocket connection.
//
// A Socket owns the connection, the heartbeat and the table of outstanding
// pushes keyed by ref. Channels are created from the socket, joined, and then
// exchange events with the server. Replies are correlated back to the Push
// that caused them and delivered through status callbacks. Each channel also
// tracks presence for the other peers connected to its topic.
//
// Basic usage:
//
//	socket := phxclient.NewSocket("ws://localhost:4000/socket/websocket", nil)
//	socket.OnConnect(func() {
//		channel := socket.Channel("room:lobby", phxclient.Payload{"user": "gopher"})
//		channel.On("new:msg", func(msg *phxclient.Message) {
//			body, _ := msg.Payload.String("body")
//			fmt.Println(body)
//		})
//		channel.Join().Receive(phxclient.StatusOK, func(resp phxclient.Payload) {
//			fmt.Println("joined")
//		})
//	})
//	if err := socket.Connect(); err != nil {
//		log.Fatal(err)
//	}
//	defer socket.Disconnect()
//
// All results are delivered through callbacks. There are no blocking waits,
// no push timeouts and no automatic reconnection; a transport disconnect
// silently drops every in-flight push and channel registration.
package phxclient

// Version of the library
const Version = "0.3.0"

// Protocol events
const (
	EventJoin          = "phx_join"
	EventReply         = "phx_reply"
	EventLeave         = "phx_leave"
	EventClose         = "phx_close"
	EventError         = "phx_error"
	EventHeartbeat     = "heartbeat"
	EventPresenceState = "presence_state"
	EventPresenceDiff  = "presence_diff"
)

// Reply statuses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// SystemTopic is the reserved topic heartbeats are sent on.
const SystemTopic = "phoenix"

// HeartbeatRefPrefix marks heartbeat refs so they stand out in traffic logs.
const HeartbeatRefPrefix = "hb-"
