// Package syncengine decides which surface changes travel to the host and
// applies host snapshots without echoing them back.
//
// An Engine is not safe for concurrent use; it is owned by the surface event loop.
package syncengine

import (
	"context"
	"fmt"

	"pkt.systems/mdsurface/internal/content"
	"pkt.systems/mdsurface/schema"
	"pkt.systems/pslog"
)

// SetOptions controls how an editor replaces its content.
type SetOptions struct {
	// PreserveIdentity keeps the editor's document object (and anything anchored
	// to it, such as undo history) instead of creating a new one.
	PreserveIdentity bool
}

// Editor is the markdown projection of the rich-text engine.
type Editor interface {
	Markdown() string
	SetMarkdown(value string, opts SetOptions) error
}

// Sender delivers intents to the host.
type Sender interface {
	Send(msg schema.Message) error
}

// Refresher is notified after the surface content was replaced.
type Refresher interface {
	RequestRefresh()
}

// Stats counts what the engine did, for tests and debug logs.
type Stats struct {
	RemoteApplied    int
	RemoteUnchanged  int
	EditsSent        int
	SavesSent        int
	EchoesSuppressed int
	Unprompted       int
}

// Engine holds the echo-suppression state.
type Engine struct {
	editor    Editor
	sender    Sender
	refresher Refresher
	log       pslog.Logger

	lastSynced      string
	applyingRemote  bool
	userInteraction bool
	primed          bool
	stats           Stats
}

// New constructs an engine. refresher may be nil.
func New(editor Editor, sender Sender, refresher Refresher, logger pslog.Logger) *Engine {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Engine{
		editor:    editor,
		sender:    sender,
		refresher: refresher,
		log:       logger,
	}
}

// Prime applies the init snapshot. Local change notifications are ignored until
// the engine is primed.
func (e *Engine) Prime(snapshot schema.Snapshot) (bool, error) {
	changed, err := e.ApplyRemote(snapshot)
	if err != nil {
		return false, err
	}
	e.primed = true
	return changed, nil
}

// Primed reports whether an init snapshot was applied.
func (e *Engine) Primed() bool {
	return e.primed
}

// ApplyRemote replaces the surface content with snapshot unless it already
// matches. It reports whether the surface was mutated.
func (e *Engine) ApplyRemote(snapshot schema.Snapshot) (bool, error) {
	next := content.ToCanonical(snapshot.Content)
	if next == e.current() {
		e.lastSynced = next
		e.stats.RemoteUnchanged++
		e.log.Trace("sync remote unchanged", "bytes", len(next))
		return false, nil
	}
	if err := e.replace(next); err != nil {
		e.log.Warn("sync remote apply failed", "err", err)
		return false, fmt.Errorf("apply remote content: %w", err)
	}
	e.lastSynced = next
	e.userInteraction = false
	e.stats.RemoteApplied++
	e.log.Debug("sync remote applied", "bytes", len(next))
	if e.refresher != nil {
		e.refresher.RequestRefresh()
	}
	return true, nil
}

func (e *Engine) replace(next string) error {
	e.applyingRemote = true
	defer func() { e.applyingRemote = false }()
	return e.editor.SetMarkdown(next, SetOptions{PreserveIdentity: true})
}

// OnLocalChange handles the editor's change notification. It emits an edit only
// for changes that follow real user interaction and differ from the last synced value.
func (e *Engine) OnLocalChange() {
	if e.applyingRemote {
		e.stats.EchoesSuppressed++
		return
	}
	if !e.primed || !e.userInteraction {
		e.stats.Unprompted++
		return
	}
	current := e.current()
	if current == e.lastSynced {
		return
	}
	e.lastSynced = current
	if err := e.sender.Send(schema.EditMessage(current)); err != nil {
		e.log.Warn("sync edit send failed", "err", err)
		return
	}
	e.stats.EditsSent++
	e.log.Trace("sync edit sent", "bytes", len(current))
}

// MarkUserInteraction records that the user acted inside the editing region.
func (e *Engine) MarkUserInteraction() {
	e.userInteraction = true
}

// HasUserInteraction reports the latched interaction flag.
func (e *Engine) HasUserInteraction() bool {
	return e.userInteraction
}

// Save sends the current content for persistence. It is never suppressed by
// the echo guard, but is refused until the first snapshot has been applied.
func (e *Engine) Save() error {
	if !e.primed {
		e.log.Debug("sync save refused before init")
		return schema.ErrNotInitialized
	}
	current := e.current()
	e.lastSynced = current
	if err := e.sender.Send(schema.SaveMessage(current)); err != nil {
		e.log.Warn("sync save send failed", "err", err)
		return err
	}
	e.stats.SavesSent++
	e.log.Debug("sync save sent", "bytes", len(current))
	return nil
}

// LastSynced returns the canonical value most recently reconciled in either direction.
func (e *Engine) LastSynced() string {
	return e.lastSynced
}

// ApplyingRemote reports whether a remote replace is in progress.
func (e *Engine) ApplyingRemote() bool {
	return e.applyingRemote
}

// Stats returns counters since construction.
func (e *Engine) Stats() Stats {
	return e.stats
}

func (e *Engine) current() string {
	return content.ToCanonical(e.editor.Markdown())
}
