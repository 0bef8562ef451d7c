package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Emitted is one event sent through a Pipe.
type Emitted struct {
	Event string
	Data  json.RawMessage
}

// Responder answers a request sent through a Pipe.
type Responder func(data json.RawMessage) (interface{}, error)

// Pipe is an in-memory Duplex. Outbound events are recorded, inbound events
// are injected with Deliver, and requests are answered by responders.
type Pipe struct {
	mu         sync.Mutex
	reg        registry
	emitted    []Emitted
	responders map[string]Responder
}

var _ Duplex = (*Pipe)(nil)

func NewPipe() *Pipe {
	return &Pipe{reg: newRegistry(), responders: make(map[string]Responder)}
}

// Emit implements Duplex.
func (p *Pipe) Emit(event string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	p.mu.Lock()
	p.emitted = append(p.emitted, Emitted{Event: event, Data: raw})
	p.mu.Unlock()
	return nil
}

// Request implements Duplex.
func (p *Pipe) Request(ctx context.Context, event string, payload interface{}) (json.RawMessage, error) {
	if err := p.Emit(event, payload); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	fn, ok := p.responders[event]
	emitted := p.emitted[len(p.emitted)-1]
	p.mu.Unlock()
	if !ok {
		return nil, ErrNoResponder
	}
	reply, err := fn(emitted.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(reply)
}

// On implements Duplex.
func (p *Pipe) On(event string, h Handler) func() {
	p.mu.Lock()
	id := p.reg.add(event, h)
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.reg.remove(event, id)
		p.mu.Unlock()
	}
}

// Respond installs the responder for requests named event.
func (p *Pipe) Respond(event string, fn Responder) {
	p.mu.Lock()
	p.responders[event] = fn
	p.mu.Unlock()
}

// Deliver runs every handler registered for event with payload.
func (p *Pipe) Deliver(event string, payload interface{}) error {
	raw, ok := payload.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("marshal %s: %w", event, err)
		}
	}
	p.mu.Lock()
	handlers := p.reg.snapshot(event)
	p.mu.Unlock()
	for _, h := range handlers {
		h(raw)
	}
	return nil
}

// Emitted returns the events sent so far, optionally filtered by name.
func (p *Pipe) Emitted(events ...string) []Emitted {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(events) == 0 {
		return append([]Emitted(nil), p.emitted...)
	}
	var out []Emitted
	for _, e := range p.emitted {
		for _, name := range events {
			if e.Event == name {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Reset forgets recorded events.
func (p *Pipe) Reset() {
	p.mu.Lock()
	p.emitted = nil
	p.mu.Unlock()
}

// Listeners reports how many handlers are registered.
func (p *Pipe) Listeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reg.count()
}
