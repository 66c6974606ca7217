package outline

import (
	"context"
	"fmt"
	"math"

	"pkt.systems/pslog"
)

// Frame is a snapshot of rendered structure taken for one pass.
type Frame struct {
	Title    string
	Elements []Element
	// Selection is the index of the element holding the selection anchor, -1 for none.
	Selection      int
	ViewportHeight float64
}

// Renderer produces the current frame.
type Renderer interface {
	Render() (Frame, error)
}

// RendererFunc adapts a func to Renderer.
type RendererFunc func() (Frame, error)

// Render implements Renderer.
func (f RendererFunc) Render() (Frame, error) { return f() }

// Listener receives outline and active-entry changes.
type Listener interface {
	OutlineChanged(entries []Entry)
	ActiveChanged(id string)
}

// Tracker keeps the outline and active entry in step with the rendered document.
// Every scan runs through one of its two throttles. Not safe for concurrent use
// beyond what the frame source guarantees; it is owned by the surface event loop.
type Tracker struct {
	renderer Renderer
	listener Listener
	log      pslog.Logger

	extract *Throttle
	active  *Throttle

	entries  []Entry
	activeID string
	passes   int
	failures int
}

// NewTracker constructs a tracker. listener may be nil.
func NewTracker(renderer Renderer, frames FrameSource, listener Listener, logger pslog.Logger) *Tracker {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Tracker{
		renderer: renderer,
		listener: listener,
		log:      logger,
		extract:  NewThrottle(frames),
		active:   NewThrottle(frames),
	}
}

// RequestRefresh schedules an outline extraction.
func (t *Tracker) RequestRefresh() {
	t.extract.Schedule(t.refresh)
}

// RequestActive schedules an active-entry recomputation (scroll, selection).
func (t *Tracker) RequestActive() {
	t.active.Schedule(t.recomputeActive)
}

// Entries returns the current outline.
func (t *Tracker) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// ActiveID returns the active entry id, empty when there is none.
func (t *Tracker) ActiveID() string {
	return t.activeID
}

// Passes returns how many extraction passes ran (including failed ones).
func (t *Tracker) Passes() int {
	return t.passes
}

// Stop cancels scheduled passes.
func (t *Tracker) Stop() {
	t.extract.Stop()
	t.active.Stop()
}

func (t *Tracker) refresh() {
	t.passes++
	frame, err := t.render()
	if err != nil {
		t.failures++
		t.log.Debug("outline refresh failed", "err", err, "failures", t.failures)
		return
	}
	entries := Extract(frame.Elements, frame.Title)
	if !IsSame(t.entries, entries) {
		t.entries = entries
		t.log.Trace("outline changed", "entries", len(entries))
		if t.listener != nil {
			t.listener.OutlineChanged(t.Entries())
		}
	}
	t.RequestActive()
}

func (t *Tracker) recomputeActive() {
	frame, err := t.render()
	if err != nil {
		t.log.Debug("outline active failed", "err", err)
		return
	}
	id, _ := ActiveFor(frame)
	if id == t.activeID {
		return
	}
	t.activeID = id
	if t.listener != nil {
		t.listener.ActiveChanged(id)
	}
}

// ActiveFor computes the active entry of a frame directly.
func ActiveFor(frame Frame) (string, bool) {
	entries, sources := extract(frame.Elements, frame.Title)
	if len(entries) == 0 {
		return "", false
	}
	positions := make([]Position, len(entries))
	selectionID := ""
	for i, entry := range entries {
		top := math.Inf(-1)
		if idx := sources[i]; idx >= 0 {
			top = frame.Elements[idx].Top
			if idx == frame.Selection {
				selectionID = entry.ID
			}
		}
		positions[i] = Position{ID: entry.ID, Top: top}
	}
	return ComputeActive(positions, selectionID, frame.ViewportHeight)
}

func (t *Tracker) render() (frame Frame, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render panicked: %v", r)
		}
	}()
	if t.renderer == nil {
		return Frame{}, fmt.Errorf("no renderer")
	}
	return t.renderer.Render()
}
