// Package transport carries named events between the client and the chat
// server over a websocket, with request/acknowledgement and reconnects.
package transport

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrNotConnected = errors.New("transport: not connected")
	ErrDisconnected = errors.New("transport: connection lost before reply")
	ErrClosed       = errors.New("transport: closed")
	ErrNoResponder  = errors.New("transport: no responder for request")
)

// Handler receives the raw payload of an inbound event.
type Handler func(data json.RawMessage)

// Duplex is the abstract event channel consumed by the sync core.
type Duplex interface {
	// Emit sends a fire-and-forget event.
	Emit(event string, payload interface{}) error
	// Request sends an event and waits for the server acknowledgement.
	Request(ctx context.Context, event string, payload interface{}) (json.RawMessage, error)
	// On registers a handler for an inbound event; calling off detaches it.
	On(event string, h Handler) (off func())
}

// State is the connectivity of a Client.
type State int

const (
	StateDisconnected State = iota
	StateConnected
)

func (s State) String() string {
	if s == StateConnected {
		return "connected"
	}
	return "disconnected"
}

// registry keeps handlers per event name. Handlers are keyed by a sequence
// number so that off removes exactly the registration it was returned for.
type registry struct {
	next     uint64
	handlers map[string]map[uint64]Handler
}

func newRegistry() registry {
	return registry{handlers: make(map[string]map[uint64]Handler)}
}

func (r *registry) add(event string, h Handler) uint64 {
	r.next++
	set, ok := r.handlers[event]
	if !ok {
		set = make(map[uint64]Handler)
		r.handlers[event] = set
	}
	set[r.next] = h
	return r.next
}

func (r *registry) remove(event string, id uint64) {
	if set, ok := r.handlers[event]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.handlers, event)
		}
	}
}

func (r *registry) snapshot(event string) []Handler {
	set := r.handlers[event]
	out := make([]Handler, 0, len(set))
	for _, h := range set {
		out = append(out, h)
	}
	return out
}

func (r *registry) count() int {
	n := 0
	for _, set := range r.handlers {
		n += len(set)
	}
	return n
}
