package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"pkt.systems/mdsurface/internal/eventloop"
	"pkt.systems/mdsurface/schema"
	"pkt.systems/pslog"
)

// PipeEnd is one side of an in-memory transport. Frames are serialized exactly
// as they would be on the wire and delivered in order by one worker per
// receiving side.
type PipeEnd struct {
	outbound Direction
	peer     *PipeEnd
	dispatch *Dispatcher
	loop     *eventloop.Loop
	closed   atomic.Bool
	log      pslog.Logger
}

// Pipe returns a connected host and surface pair. Both ends stop when ctx ends.
func Pipe(ctx context.Context, logger pslog.Logger) (host *PipeEnd, surface *PipeEnd) {
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	host = newPipeEnd(ctx, HostToSurface, logger.With("end", "host"))
	surface = newPipeEnd(ctx, SurfaceToHost, logger.With("end", "surface"))
	host.peer = surface
	surface.peer = host
	return host, surface
}

func newPipeEnd(ctx context.Context, outbound Direction, logger pslog.Logger) *PipeEnd {
	end := &PipeEnd{
		outbound: outbound,
		dispatch: NewDispatcher(logger),
		loop:     eventloop.New(logger),
		log:      logger,
	}
	end.loop.Start(ctx)
	return end
}

// Send serializes msg and queues it for the peer.
func (p *PipeEnd) Send(msg schema.Message) error {
	if p.closed.Load() || p.peer.closed.Load() {
		return fmt.Errorf("%w: pipe closed", schema.ErrSessionClosed)
	}
	if err := checkOutbound(p.outbound, msg); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", schema.ErrMalformedMessage, err)
	}
	return p.peer.SendRaw(data)
}

// SendRaw queues an encoded frame on this end's inbox as if it arrived from the
// peer. Undecodable frames are dropped by the receiver.
func (p *PipeEnd) SendRaw(data []byte) error {
	inbound := p.outbound.Reverse()
	err := p.loop.Post(func() {
		msg, err := inbound.Decode(data)
		if err != nil {
			p.log.Debug("transport dropped frame", "err", err, "bytes", len(data))
			return
		}
		p.dispatch.Dispatch(msg)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", schema.ErrSessionClosed, err)
	}
	return nil
}

// OnMessage registers a handler for frames arriving at this end.
func (p *PipeEnd) OnMessage(handler Handler) func() {
	return p.dispatch.OnMessage(handler)
}

// Close stops this end. Sends in either direction fail afterwards.
func (p *PipeEnd) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.loop.Stop()
	return nil
}

// Flush waits until every frame queued on this end before the call was handled.
func (p *PipeEnd) Flush(ctx context.Context) error {
	return p.loop.Do(ctx, func() {})
}
