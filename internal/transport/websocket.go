package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pkt.systems/mdsurface/schema"
	"pkt.systems/pslog"
)

// WebSocket tuning.
const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	sendQueueDepth  = 256
	DefaultMaxFrame = 16 << 20
)

// WebSocket adapts a gorilla websocket connection. One goroutine reads, one
// writes; text frames carry one JSON message each.
type WebSocket struct {
	conn     *websocket.Conn
	outbound Direction
	dispatch *Dispatcher
	log      pslog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	runOnce   sync.Once
	maxFrame  int64
}

// NewWebSocket wraps conn. outbound is the direction of messages this side
// sends; inbound frames are decoded in the reverse direction.
func NewWebSocket(conn *websocket.Conn, outbound Direction, logger pslog.Logger) *WebSocket {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &WebSocket{
		conn:     conn,
		outbound: outbound,
		dispatch: NewDispatcher(logger),
		log:      logger,
		send:     make(chan []byte, sendQueueDepth),
		done:     make(chan struct{}),
		maxFrame: DefaultMaxFrame,
	}
}

// Upgrader keeps gorilla's default same-origin check.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Accept upgrades an HTTP request into a host-side transport.
func Accept(w http.ResponseWriter, r *http.Request, logger pslog.Logger) (*WebSocket, error) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocket(conn, HostToSurface, logger), nil
}

// Dial connects a surface-side transport to a host endpoint.
func Dial(ctx context.Context, url string, logger pslog.Logger) (*WebSocket, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return NewWebSocket(conn, SurfaceToHost, logger), nil
}

// SetMaxFrame bounds inbound frame size. Call before Run.
func (w *WebSocket) SetMaxFrame(n int64) {
	if n > 0 {
		w.maxFrame = n
	}
}

// OnMessage registers a handler for inbound messages. Handlers run on the read
// goroutine in frame order.
func (w *WebSocket) OnMessage(handler Handler) func() {
	return w.dispatch.OnMessage(handler)
}

// Send queues msg for the write pump.
func (w *WebSocket) Send(msg schema.Message) error {
	if err := checkOutbound(w.outbound, msg); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", schema.ErrMalformedMessage, err)
	}
	select {
	case <-w.done:
		return fmt.Errorf("%w: websocket closed", schema.ErrSessionClosed)
	default:
	}
	select {
	case w.send <- data:
		return nil
	case <-w.done:
		return fmt.Errorf("%w: websocket closed", schema.ErrSessionClosed)
	}
}

// Run pumps frames until the peer disconnects, ctx ends or Close is called.
func (w *WebSocket) Run(ctx context.Context) error {
	var err error
	w.runOnce.Do(func() {
		stop := context.AfterFunc(ctx, func() { _ = w.Close() })
		defer stop()
		go w.writePump()
		err = w.readPump()
		_ = w.Close()
	})
	return err
}

// Done is closed once the connection is closed.
func (w *WebSocket) Done() <-chan struct{} {
	return w.done
}

// Close shuts the connection down. Safe to call more than once.
func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = w.conn.Close()
	})
	return err
}

func (w *WebSocket) readPump() error {
	w.conn.SetReadLimit(w.maxFrame)
	_ = w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	inbound := w.outbound.Reverse()
	for {
		kind, data, err := w.conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if kind != websocket.TextMessage {
			w.log.Debug("transport dropped frame", "reason", "binary frame", "bytes", len(data))
			continue
		}
		msg, err := inbound.Decode(data)
		if err != nil {
			w.log.Debug("transport dropped frame", "err", err, "bytes", len(data))
			continue
		}
		w.dispatch.Dispatch(msg)
	}
}

func (w *WebSocket) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data := <-w.send:
			_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					w.log.Debug("transport write failed", "err", err)
				}
				_ = w.Close()
				return
			}
		case <-ticker.C:
			_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = w.Close()
				return
			}
		case <-w.done:
			return
		}
	}
}
