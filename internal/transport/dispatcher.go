package transport

import (
	"context"
	"sync"

	"pkt.systems/mdsurface/schema"
	"pkt.systems/pslog"
)

type registration struct {
	id      uint64
	handler Handler
}

// Dispatcher fans a message out to every registered handler in registration
// order. A panicking handler is logged and skipped.
type Dispatcher struct {
	mu       sync.Mutex
	next     uint64
	handlers []registration
	log      pslog.Logger
}

// NewDispatcher constructs an empty dispatcher.
func NewDispatcher(logger pslog.Logger) *Dispatcher {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Dispatcher{log: logger}
}

// OnMessage registers handler and returns a func that removes it.
func (d *Dispatcher) OnMessage(handler Handler) func() {
	if d == nil || handler == nil {
		return func() {}
	}
	d.mu.Lock()
	d.next++
	id := d.next
	d.handlers = append(d.handlers, registration{id: id, handler: handler})
	count := len(d.handlers)
	d.mu.Unlock()
	d.log.Trace("transport handler added", "handlers", count)
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			for i, reg := range d.handlers {
				if reg.id == id {
					d.handlers = append(d.handlers[:i:i], d.handlers[i+1:]...)
					break
				}
			}
			d.mu.Unlock()
		})
	}
}

// Len returns the number of registered handlers.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers)
}

// Dispatch delivers msg to every handler and returns how many ran to completion.
func (d *Dispatcher) Dispatch(msg schema.Message) int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	handlers := make([]Handler, 0, len(d.handlers))
	for _, reg := range d.handlers {
		handlers = append(handlers, reg.handler)
	}
	d.mu.Unlock()
	delivered := 0
	for _, handler := range handlers {
		if d.call(handler, msg) {
			delivered++
		}
	}
	return delivered
}

func (d *Dispatcher) call(handler Handler, msg schema.Message) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("transport handler panicked", "kind", msg.Kind, "panic", r)
			ok = false
		}
	}()
	handler(msg)
	return true
}
