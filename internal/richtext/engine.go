// Package richtext is an in-memory markdown editing engine. It stands in for a
// browser rich-text editor: it keeps one document object whose identity
// survives content replacement when asked to, notifies change subscribers
// synchronously and lays the document out for the outline tracker.
package richtext

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"pkt.systems/mdsurface/internal/markdown"
	"pkt.systems/mdsurface/internal/outline"
	"pkt.systems/mdsurface/internal/syncengine"
)

// Layout defaults.
const (
	DefaultLineHeight     = 24.0
	DefaultViewportHeight = 720.0
	maxHistory            = 100
)

// ErrInvalidContent is returned for markdown that is not valid UTF-8.
var ErrInvalidContent = errors.New("content is not valid utf-8")

// ErrUnknownCommand is returned by Dispatch for unsupported commands.
var ErrUnknownCommand = errors.New("unknown command")

// Command names.
const (
	CommandInsertText = "insert-text"
	CommandReplaceAll = "replace-all"
	CommandUndo       = "undo"
)

// Command is one editing operation.
type Command struct {
	Name string
	Text string
	// Offset is the byte offset for insert-text; negative appends. Offsets inside
	// a rune move back to its start.
	Offset int
}

// Engine holds the document. It is safe for concurrent use, but change
// callbacks run on the goroutine that caused the change.
type Engine struct {
	mu             sync.Mutex
	markdown       string
	identity       uint64
	revision       uint64
	history        []string
	title          string
	lineHeight     float64
	viewportHeight float64
	scroll         float64
	selection      int

	subMu  sync.Mutex
	nextID int
	subs   map[int]func()
}

// New constructs an empty engine.
func New() *Engine {
	return &Engine{
		identity:       1,
		lineHeight:     DefaultLineHeight,
		viewportHeight: DefaultViewportHeight,
		selection:      -1,
		subs:           make(map[int]func()),
	}
}

// Markdown returns the canonical markdown.
func (e *Engine) Markdown() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.markdown
}

// SetMarkdown replaces the whole document. With PreserveIdentity the document
// object and its undo history survive.
func (e *Engine) SetMarkdown(value string, opts syncengine.SetOptions) error {
	if !utf8.ValidString(value) {
		return ErrInvalidContent
	}
	e.mu.Lock()
	if opts.PreserveIdentity {
		e.pushHistoryLocked()
	} else {
		e.identity++
		e.history = nil
	}
	e.markdown = value
	e.revision++
	e.mu.Unlock()
	e.notify()
	return nil
}

// Identity returns the id of the current document object.
func (e *Engine) Identity() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.identity
}

// Revision counts content mutations.
func (e *Engine) Revision() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.revision
}

// UndoDepth returns how many undo steps are available.
func (e *Engine) UndoDepth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.history)
}

// OnChange registers fn to run after every content change.
func (e *Engine) OnChange(fn func()) func() {
	e.subMu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.subMu.Unlock()
	return func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
	}
}

// Dispatch applies an editing command as if the user typed it.
func (e *Engine) Dispatch(cmd Command) error {
	e.mu.Lock()
	switch cmd.Name {
	case CommandInsertText:
		if !utf8.ValidString(cmd.Text) {
			e.mu.Unlock()
			return ErrInvalidContent
		}
		offset := cmd.Offset
		if offset < 0 || offset > len(e.markdown) {
			offset = len(e.markdown)
		}
		for offset > 0 && offset < len(e.markdown) && !utf8.RuneStart(e.markdown[offset]) {
			offset--
		}
		e.pushHistoryLocked()
		e.markdown = e.markdown[:offset] + cmd.Text + e.markdown[offset:]
	case CommandReplaceAll:
		if !utf8.ValidString(cmd.Text) {
			e.mu.Unlock()
			return ErrInvalidContent
		}
		e.pushHistoryLocked()
		e.markdown = cmd.Text
	case CommandUndo:
		if len(e.history) == 0 {
			e.mu.Unlock()
			return nil
		}
		last := len(e.history) - 1
		e.markdown = e.history[last]
		e.history = e.history[:last]
	default:
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
	}
	e.revision++
	e.mu.Unlock()
	e.notify()
	return nil
}

// SetTitle sets the rendered document title.
func (e *Engine) SetTitle(title string) {
	e.mu.Lock()
	e.title = title
	e.mu.Unlock()
}

// SetViewport sets the visible height.
func (e *Engine) SetViewport(height float64) {
	e.mu.Lock()
	if height > 0 {
		e.viewportHeight = height
	}
	e.mu.Unlock()
}

// ScrollTo sets the scroll offset in pixels.
func (e *Engine) ScrollTo(top float64) {
	e.mu.Lock()
	if top < 0 {
		top = 0
	}
	e.scroll = top
	e.mu.Unlock()
}

// ScrollToLine scrolls so that line (0-based) is at the viewport top.
func (e *Engine) ScrollToLine(line int) {
	e.ScrollTo(float64(line) * e.lineHeightValue())
}

// Select places the selection anchor on line (0-based); negative clears it.
func (e *Engine) Select(line int) {
	e.mu.Lock()
	if line < 0 {
		line = -1
	}
	e.selection = line
	e.mu.Unlock()
}

func (e *Engine) lineHeightValue() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lineHeight
}

func (e *Engine) pushHistoryLocked() {
	e.history = append(e.history, e.markdown)
	if len(e.history) > maxHistory {
		e.history = e.history[len(e.history)-maxHistory:]
	}
}

func (e *Engine) notify() {
	e.subMu.Lock()
	fns := make([]func(), 0, len(e.subs))
	for id := 0; id < e.nextID; id++ {
		if fn, ok := e.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	e.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// LinksOnLine returns the link targets rendered on line, in order.
func (e *Engine) LinksOnLine(line int) []string {
	e.mu.Lock()
	text := e.markdown
	e.mu.Unlock()
	lines := strings.Split(text, "\n")
	if line < 0 || line >= len(lines) {
		return nil
	}
	return markdown.Links(lines[line])
}

// Render lays the document out and returns the frame the outline tracker scans.
func (e *Engine) Render() (outline.Frame, error) {
	e.mu.Lock()
	src := e.markdown
	frame := outline.Frame{
		Title:          e.title,
		Selection:      -1,
		ViewportHeight: e.viewportHeight,
	}
	lineHeight := e.lineHeight
	scroll := e.scroll
	selection := e.selection
	e.mu.Unlock()

	for _, blk := range parseBlocks(src) {
		el := outline.Element{
			Kind:   outline.ElementBlock,
			Text:   blk.text,
			Top:    float64(blk.start)*lineHeight - scroll,
			Height: float64(blk.end-blk.start+1) * lineHeight,
		}
		if blk.level > 0 {
			el.Kind = outline.ElementHeading
			el.Level = blk.level
			el.Text = markdown.PlainText(blk.text)
		}
		if selection >= blk.start && selection <= blk.end {
			frame.Selection = len(frame.Elements)
		}
		frame.Elements = append(frame.Elements, el)
	}
	return frame, nil
}

type block struct {
	level int
	text  string
	start int
	end   int
}

// parseBlocks splits markdown into ATX headings and paragraph-like runs. Fenced
// code is one block and never yields headings.
func parseBlocks(src string) []block {
	lines := strings.Split(src, "\n")
	var blocks []block
	var current *block
	fence := ""
	flush := func() {
		if current != nil {
			blocks = append(blocks, *current)
			current = nil
		}
	}
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if fence != "" {
			current.end = i
			current.text += "\n" + line
			if strings.HasPrefix(trimmed, fence) {
				fence = ""
				flush()
			}
			continue
		}
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			flush()
			fence = trimmed[:3]
			current = &block{text: line, start: i, end: i}
			continue
		}
		if trimmed == "" {
			flush()
			continue
		}
		if level, text, ok := atxHeading(line); ok {
			flush()
			blocks = append(blocks, block{level: level, text: text, start: i, end: i})
			continue
		}
		if current == nil {
			current = &block{text: trimmed, start: i, end: i}
			continue
		}
		current.end = i
		current.text += " " + trimmed
	}
	flush()
	return blocks
}

func atxHeading(line string) (int, string, bool) {
	indent := len(line) - len(strings.TrimLeft(line, " "))
	if indent > 3 {
		return 0, "", false
	}
	rest := line[indent:]
	level := 0
	for level < len(rest) && rest[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0, "", false
	}
	rest = rest[level:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return 0, "", false
	}
	text := strings.TrimSpace(rest)
	closing := strings.TrimRight(text, "#")
	if closing == "" || strings.HasSuffix(closing, " ") || strings.HasSuffix(closing, "\t") {
		text = strings.TrimSpace(closing)
	}
	return level, text, true
}
