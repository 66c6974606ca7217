// Package transport carries protocol messages between the host and the surface.
// Transports preserve per-direction order; there is no ack, retry or
// backpressure at this layer.
package transport

import (
	"fmt"

	"pkt.systems/mdsurface/schema"
)

// Handler receives one decoded message.
type Handler func(msg schema.Message)

// Transport is a bidirectional message channel seen from one side.
type Transport interface {
	Send(msg schema.Message) error
	OnMessage(handler Handler) (unsubscribe func())
}

// Direction names which way a message travels.
type Direction int

const (
	// HostToSurface carries init, update, theme and upload-result.
	HostToSurface Direction = iota
	// SurfaceToHost carries ready, edit, save, open-link and upload.
	SurfaceToHost
)

func (d Direction) String() string {
	if d == SurfaceToHost {
		return "surface->host"
	}
	return "host->surface"
}

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	if d == SurfaceToHost {
		return HostToSurface
	}
	return SurfaceToHost
}

// Allows reports whether kind may travel in direction d.
func (d Direction) Allows(kind schema.Kind) bool {
	if d == SurfaceToHost {
		return schema.IsSurfaceKind(kind)
	}
	return schema.IsHostKind(kind)
}

// Decode parses and validates a frame travelling in direction d.
func (d Direction) Decode(data []byte) (schema.Message, error) {
	if d == SurfaceToHost {
		return schema.DecodeSurfaceMessage(data)
	}
	return schema.DecodeHostMessage(data)
}

func checkOutbound(d Direction, msg schema.Message) error {
	if !d.Allows(msg.Kind) {
		return fmt.Errorf("%w: %q cannot travel %s", schema.ErrMalformedMessage, msg.Kind, d)
	}
	return nil
}
