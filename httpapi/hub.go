package httpapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pkt.systems/mdsurface/internal/transport"
	"pkt.systems/mdsurface/schema"
	"pkt.systems/pslog"
)

// StreamEvent is one host message with its stream position.
type StreamEvent struct {
	Seq       uint64
	Message   schema.Message
	Timestamp time.Time
}

// Hub is the host side of the HTTP transport. Host messages are numbered,
// kept for replay and broadcast to every connected surface; surface messages
// arriving over POST or WebSocket are dispatched to the host's handlers.
type Hub struct {
	mu          sync.Mutex
	seq         uint64
	history     []StreamEvent
	subs        map[chan StreamEvent]struct{}
	historySize int
	dispatch    *transport.Dispatcher
	log         pslog.Logger
}

// NewHub constructs a hub with the given history size.
func NewHub(historySize int, logger pslog.Logger) *Hub {
	if historySize <= 0 {
		historySize = 256
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Hub{
		subs:        make(map[chan StreamEvent]struct{}),
		historySize: historySize,
		dispatch:    transport.NewDispatcher(logger),
		log:         logger,
	}
}

// Send implements transport.Transport for the host.
func (h *Hub) Send(msg schema.Message) error {
	if !transport.HostToSurface.Allows(msg.Kind) {
		return fmt.Errorf("%w: %q is not a host message", schema.ErrMalformedMessage, msg.Kind)
	}
	h.publish(msg)
	return nil
}

// OnMessage implements transport.Transport for the host.
func (h *Hub) OnMessage(handler transport.Handler) func() {
	return h.dispatch.OnMessage(handler)
}

// Deliver hands a decoded surface message to the host.
func (h *Hub) Deliver(msg schema.Message) {
	h.log.Trace("hub surface message", "kind", msg.Kind)
	h.dispatch.Dispatch(msg)
}

// Subscribe registers a subscriber and returns its channel, a cancel func and
// the current sequence number.
func (h *Hub) Subscribe() (<-chan StreamEvent, func(), uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan StreamEvent, 256)
	h.subs[ch] = struct{}{}
	seq := h.seq
	h.log.Info("hub subscribe", "subs", len(h.subs), "seq", seq)
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			remaining := len(h.subs)
			h.mu.Unlock()
			h.log.Info("hub unsubscribe", "subs", remaining)
		})
	}
	return ch, unsub, seq
}

// Subscribers returns the number of connected surfaces.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Replay returns events after the provided seq.
func (h *Hub) Replay(after uint64) []StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	events := make([]StreamEvent, 0, len(h.history))
	for _, event := range h.history {
		if event.Seq > after {
			events = append(events, event)
		}
	}
	h.log.Debug("hub replay", "after", after, "count", len(events))
	return events
}

func (h *Hub) publish(msg schema.Message) {
	h.mu.Lock()
	h.seq++
	event := StreamEvent{Seq: h.seq, Message: msg, Timestamp: time.Now()}
	h.history = append(h.history, event)
	if len(h.history) > h.historySize {
		h.history = h.history[len(h.history)-h.historySize:]
	}
	subs := make([]chan StreamEvent, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	dropped := 0
	for _, sub := range subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	h.mu.Unlock()

	h.log.Trace("hub host message", "kind", msg.Kind, "seq", event.Seq, "subs", len(subs))
	if dropped > 0 {
		h.log.Warn("hub event dropped", "kind", msg.Kind, "dropped", dropped)
	}
}
