package logx

import (
	"context"

	"pkt.systems/mdsurface/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	documentKey contextKey = iota
	sideKey
)

// Side names which end of the protocol is logging.
type Side string

const (
	// SideHost is the document-owning process.
	SideHost Side = "host"
	// SideSurface is the editing surface.
	SideSurface Side = "surface"
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithSide annotates the logger with the protocol side unless the context
// already carries it.
func WithSide(ctx context.Context, side Side) pslog.Logger {
	log := pslog.Ctx(ctx)
	if side != "" {
		if current, ok := ctx.Value(sideKey).(Side); ok && current == side {
			return log
		}
		log = log.With("side", side)
	}
	return log
}

// WithDocument annotates the logger with the document path.
func WithDocument(ctx context.Context, meta schema.DocumentMeta) pslog.Logger {
	log := pslog.Ctx(ctx)
	path := meta.RelativePath
	if path == "" {
		path = meta.FileName
	}
	if path == "" {
		return log
	}
	if current, ok := ctx.Value(documentKey).(string); ok && current == path {
		return log
	}
	return log.With("doc", path)
}

// WithSession annotates the logger with a session id when available.
func WithSession(log pslog.Logger, sessionID string) pslog.Logger {
	if sessionID != "" {
		log = log.With("session", sessionID)
	}
	return log
}

// WithRequest annotates the logger with an upload request id when available.
func WithRequest(log pslog.Logger, id schema.RequestID) pslog.Logger {
	if id != "" {
		log = log.With("request_id", id)
	}
	return log
}

// ContextWithDocument stores the document marker on the context for log de-duplication.
func ContextWithDocument(ctx context.Context, meta schema.DocumentMeta) context.Context {
	path := meta.RelativePath
	if path == "" {
		path = meta.FileName
	}
	if ctx == nil || path == "" {
		return ctx
	}
	return context.WithValue(ctx, documentKey, path)
}

// ContextWithSide stores the side marker on the context for log de-duplication.
func ContextWithSide(ctx context.Context, side Side) context.Context {
	if ctx == nil || side == "" {
		return ctx
	}
	return context.WithValue(ctx, sideKey, side)
}
