package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	phx "github.com/go-phx-channels/phxclient"
)

const messageEvent = "new:msg"

// room is one joined topic rendered to a terminal.
type room struct {
	socket  *phx.Socket
	channel *phx.Channel
	topic   string
	user    string

	mu  sync.Mutex
	out io.Writer
}

func newRoom(socket *phx.Socket, topic, user string, out io.Writer) *room {
	r := &room{
		socket: socket,
		topic:  topic,
		user:   user,
		out:    out,
	}
	r.channel = socket.Channel(topic, phx.Payload{"user": user})
	r.channel.On(messageEvent, r.onMessage)

	presence := r.channel.Presence()
	presence.OnJoin(func(id string, _ phx.Meta) {
		r.printf("* %s joined\n", id)
	})
	presence.OnLeave(func(id string, _ phx.Meta) {
		r.printf("* %s left\n", id)
	})
	return r
}

func (r *room) printf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func (r *room) join() *phx.Push {
	return r.channel.Join().
		Receive(phx.StatusOK, func(phx.Payload) {
			r.printf("joined %s as %s. /who lists members, /leave leaves, /quit exits\n", r.topic, r.user)
		}).
		Receive(phx.StatusError, func(resp phx.Payload) {
			r.printf("join rejected: %v\n", resp["response"])
		})
}

func (r *room) onMessage(msg *phx.Message) {
	user, ok := msg.Payload.String("user")
	if !ok {
		user = "?"
	}
	body, _ := msg.Payload.String("body")
	r.printf("[%s] %s: %s\n", time.Now().Format("15:04:05"), user, body)
}

// handleLine acts on one line of input and reports whether to quit.
func (r *room) handleLine(line string) bool {
	text := strings.TrimSpace(line)
	switch text {
	case "":
		return false
	case "/quit", "/exit":
		return true
	case "/who":
		ids := r.channel.Presence().IDs()
		if len(ids) == 0 {
			r.printf("nobody online\n")
		} else {
			r.printf("online: %s\n", strings.Join(ids, ", "))
		}
		return false
	case "/leave":
		r.socket.Remove(r.channel).Receive(phx.StatusOK, func(phx.Payload) {
			r.printf("left %s\n", r.topic)
		})
		return false
	}

	r.channel.Push(messageEvent, phx.Payload{"body": text, "user": r.user}).
		Receive(phx.StatusError, func(resp phx.Payload) {
			r.printf("send failed: %v\n", resp)
		})
	return false
}
