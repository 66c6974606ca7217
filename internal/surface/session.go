// Package surface is the editing side of the protocol: it hosts the rich-text
// engine, keeps it in step with the host through the sync engine, correlates
// uploads and maintains the outline.
package surface

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pkt.systems/mdsurface/internal/content"
	"pkt.systems/mdsurface/internal/correlate"
	"pkt.systems/mdsurface/internal/eventloop"
	"pkt.systems/mdsurface/internal/logx"
	"pkt.systems/mdsurface/internal/outline"
	"pkt.systems/mdsurface/internal/richtext"
	"pkt.systems/mdsurface/internal/syncengine"
	"pkt.systems/mdsurface/internal/transport"
	"pkt.systems/mdsurface/schema"
	"pkt.systems/pslog"
)

// Config controls a surface session.
type Config struct {
	UploadMaxBytes int64
	UploadTimeout  time.Duration
	// FrameInterval paces outline passes; zero uses outline.FrameInterval.
	FrameInterval time.Duration
	// Frames overrides the outline frame source.
	Frames outline.FrameSource
	// OnOutline and OnActive observe outline changes on the session loop.
	OnOutline func([]outline.Entry)
	OnActive  func(string)
	// OnTheme observes applied theme changes on the session loop.
	OnTheme func(schema.ThemeName)
}

// Session is one surface instance.
type Session struct {
	id        string
	cfg       Config
	transport transport.Transport
	editor    *richtext.Engine
	engine    *syncengine.Engine
	uploads   *correlate.Table[string]
	tracker   *outline.Tracker
	loop      *eventloop.Loop
	log       pslog.Logger

	mu           sync.Mutex
	theme        schema.ThemeName
	themeChanges int
	options      schema.EditorOptions
	meta         schema.DocumentMeta
	entries      []outline.Entry
	active       string

	initialized  chan struct{}
	initOnce     sync.Once
	startOnce    sync.Once
	closeOnce    sync.Once
	unsubscribes []func()
}

// New constructs a session over t. Call Start to announce readiness.
func New(t transport.Transport, cfg Config, logger pslog.Logger) *Session {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	if cfg.UploadMaxBytes <= 0 {
		cfg.UploadMaxBytes = schema.DefaultUploadMaxBytes
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = correlate.DefaultTimeout
	}
	id := string(correlate.NewID())
	log := logx.WithSession(logger.With("side", logx.SideSurface), id)
	s := &Session{
		id:          id,
		cfg:         cfg,
		transport:   t,
		editor:      richtext.New(),
		uploads:     correlate.New[string](cfg.UploadTimeout),
		loop:        eventloop.New(log),
		log:         log,
		options:     schema.DefaultEditorOptions(),
		initialized: make(chan struct{}),
	}
	frames := cfg.Frames
	if frames == nil {
		frames = outline.TimerFrames{Interval: cfg.FrameInterval, Post: s.loop.Post}
	}
	s.tracker = outline.NewTracker(s.editor, frames, s, log)
	s.engine = syncengine.New(s.editor, t, s.tracker, log)
	return s
}

// ID returns the session id used in logs.
func (s *Session) ID() string {
	return s.id
}

// Start runs the session loop, subscribes to the transport and sends ready.
func (s *Session) Start(ctx context.Context) error {
	var err error
	s.startOnce.Do(func() {
		s.loop.Start(ctx)
		s.unsubscribes = append(s.unsubscribes,
			s.transport.OnMessage(s.receive),
			s.editor.OnChange(s.onEditorChange),
		)
		var sendErr error
		if err = s.loop.Do(ctx, func() { sendErr = s.transport.Send(schema.ReadyMessage()) }); err == nil {
			err = sendErr
		}
		if err == nil {
			s.log.Debug("surface ready sent")
		}
	})
	return err
}

// WaitInitialized blocks until the first init snapshot was applied.
func (s *Session) WaitInitialized(ctx context.Context) error {
	select {
	case <-s.initialized:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) receive(msg schema.Message) {
	if err := s.loop.Post(func() { s.handle(msg) }); err != nil {
		s.log.Debug("surface dropped message", "kind", msg.Kind, "err", err)
	}
}

func (s *Session) handle(msg schema.Message) {
	switch msg.Kind {
	case schema.KindInit:
		s.setDocument(msg)
		if _, err := s.engine.Prime(msg.Snapshot()); err != nil {
			s.log.Warn("surface init failed", "err", err)
			return
		}
		s.applyTheme(msg.Theme)
		s.initOnce.Do(func() { close(s.initialized) })
		s.log.Info("surface initialized", "doc", msg.Meta.FileName, "bytes", len(msg.Content))
	case schema.KindUpdate:
		s.setDocument(msg)
		if _, err := s.engine.ApplyRemote(msg.Snapshot()); err != nil {
			s.log.Warn("surface update failed", "err", err)
		}
		s.applyTheme(msg.Theme)
	case schema.KindTheme:
		s.applyTheme(msg.Theme)
	case schema.KindUploadResult:
		s.settleUpload(msg)
	default:
		s.log.Debug("surface ignored message", "kind", msg.Kind)
	}
}

func (s *Session) setDocument(msg schema.Message) {
	s.mu.Lock()
	s.meta = msg.Meta
	s.options = msg.Options
	s.mu.Unlock()
	s.editor.SetTitle(msg.Meta.FileName)
}

func (s *Session) applyTheme(theme schema.ThemeName) {
	if theme == "" {
		return
	}
	s.mu.Lock()
	if s.theme == theme {
		s.mu.Unlock()
		return
	}
	s.theme = theme
	s.themeChanges++
	s.mu.Unlock()
	s.log.Debug("surface theme applied", "theme", theme)
	if s.cfg.OnTheme != nil {
		s.cfg.OnTheme(theme)
	}
}

func (s *Session) settleUpload(msg schema.Message) {
	log := logx.WithRequest(s.log, msg.RequestID)
	var settled bool
	if msg.OK {
		settled = s.uploads.Resolve(msg.RequestID, msg.URL)
	} else {
		reason := msg.Error
		if reason == "" {
			reason = "upload failed"
		}
		settled = s.uploads.Reject(msg.RequestID, fmt.Errorf("%w: %s", schema.ErrUploadRejected, reason))
	}
	if !settled {
		log.Debug("surface upload result unmatched", "ok", msg.OK)
	}
}

func (s *Session) onEditorChange() {
	s.engine.OnLocalChange()
	if !s.engine.ApplyingRemote() {
		s.tracker.RequestRefresh()
	}
}

// OutlineChanged implements outline.Listener.
func (s *Session) OutlineChanged(entries []outline.Entry) {
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	if s.cfg.OnOutline != nil {
		s.cfg.OnOutline(entries)
	}
}

// ActiveChanged implements outline.Listener.
func (s *Session) ActiveChanged(id string) {
	s.mu.Lock()
	s.active = id
	s.mu.Unlock()
	if s.cfg.OnActive != nil {
		s.cfg.OnActive(id)
	}
}

// Interact records a user input event. Only events inside the editing region
// that can change content latch the interaction flag.
func (s *Session) Interact(ctx context.Context, kind syncengine.InteractionKind, inEditingRegion bool) error {
	return s.loop.Do(ctx, func() {
		if syncengine.IsInteraction(kind, inEditingRegion) {
			s.engine.MarkUserInteraction()
		}
	})
}

// Edit applies cmd to the editor without recording interaction, as a
// programmatic change would.
func (s *Session) Edit(ctx context.Context, cmd richtext.Command) error {
	var err error
	if doErr := s.loop.Do(ctx, func() { err = s.editor.Dispatch(cmd) }); doErr != nil {
		return doErr
	}
	return err
}

// Type simulates the user typing text at the end of the document.
func (s *Session) Type(ctx context.Context, text string) error {
	if err := s.Interact(ctx, syncengine.InteractionKeyDown, true); err != nil {
		return err
	}
	return s.Edit(ctx, richtext.Command{Name: richtext.CommandInsertText, Text: text, Offset: -1})
}

// Save sends the current content for persistence.
func (s *Session) Save(ctx context.Context) error {
	var err error
	if doErr := s.loop.Do(ctx, func() { err = s.engine.Save() }); doErr != nil {
		return doErr
	}
	return err
}

// OpenLink asks the host to open href.
func (s *Session) OpenLink(ctx context.Context, href string) error {
	return s.send(ctx, schema.OpenLinkMessage(href))
}

// FollowLink activates the index-th link rendered on line.
func (s *Session) FollowLink(ctx context.Context, line, index int) error {
	links := s.editor.LinksOnLine(line)
	if index < 0 || index >= len(links) {
		return fmt.Errorf("no link %d on line %d", index, line)
	}
	return s.OpenLink(ctx, links[index])
}

// Scroll moves the viewport so line is at the top and recomputes the active entry.
func (s *Session) Scroll(ctx context.Context, line int) error {
	return s.loop.Do(ctx, func() {
		s.editor.ScrollToLine(line)
		s.tracker.RequestActive()
	})
}

// Select moves the selection anchor to line; negative clears it.
func (s *Session) Select(ctx context.Context, line int) error {
	return s.loop.Do(ctx, func() {
		s.editor.Select(line)
		s.tracker.RequestActive()
	})
}

// Upload sends raw bytes to the host and waits for the resulting relative URL.
func (s *Session) Upload(ctx context.Context, fileName, mimeType string, data []byte) (string, error) {
	if err := content.ValidateSize(data, s.cfg.UploadMaxBytes); err != nil {
		return "", err
	}
	id := correlate.NewID()
	pending, err := s.uploads.Register(id)
	if err != nil {
		return "", err
	}
	log := logx.WithRequest(s.log, id)
	msg := schema.UploadMessage(id, fileName, mimeType, content.EncodeBinary(data))
	if err := s.send(ctx, msg); err != nil {
		s.uploads.Reject(id, err)
		return "", err
	}
	log.Debug("surface upload sent", "bytes", len(data), "mime", mimeType)
	url, err := pending.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			s.uploads.Reject(id, ctx.Err())
		}
		log.Debug("surface upload failed", "err", err)
		return "", err
	}
	return url, nil
}

// UploadEncoded decodes base64 (optionally a data URI) and uploads it.
func (s *Session) UploadEncoded(ctx context.Context, fileName, mimeType, encoded string) (string, error) {
	data, err := content.DecodeBinary(encoded)
	if err != nil {
		return "", err
	}
	if mimeType == "" {
		mimeType = content.DataURIMimeType(encoded)
	}
	return s.Upload(ctx, fileName, mimeType, data)
}

func (s *Session) send(ctx context.Context, msg schema.Message) error {
	var err error
	if doErr := s.loop.Do(ctx, func() { err = s.transport.Send(msg) }); doErr != nil {
		return doErr
	}
	return err
}

// Sync waits until every message and task queued before the call was handled.
func (s *Session) Sync(ctx context.Context) error {
	return s.loop.Do(ctx, func() {})
}

// Content returns the canonical editor content.
func (s *Session) Content() string {
	return s.editor.Markdown()
}

// Editor exposes the rich-text engine.
func (s *Session) Editor() *richtext.Engine {
	return s.editor
}

// Outline returns the current outline entries.
func (s *Session) Outline() []outline.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outline.Entry(nil), s.entries...)
}

// ActiveEntry returns the active outline entry id.
func (s *Session) ActiveEntry() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Theme returns the applied theme and how many times it changed.
func (s *Session) Theme() (schema.ThemeName, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theme, s.themeChanges
}

// Options returns the editor options from the last snapshot.
func (s *Session) Options() schema.EditorOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options
}

// Meta returns the document metadata from the last snapshot.
func (s *Session) Meta() schema.DocumentMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// Stats returns sync engine counters.
func (s *Session) Stats(ctx context.Context) (syncengine.Stats, error) {
	var stats syncengine.Stats
	err := s.loop.Do(ctx, func() { stats = s.engine.Stats() })
	return stats, err
}

// PendingUploads returns the number of uploads awaiting a result.
func (s *Session) PendingUploads() int {
	return s.uploads.Len()
}

// Close rejects pending uploads, cancels outline passes and stops the loop.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		for _, unsubscribe := range s.unsubscribes {
			unsubscribe()
		}
		s.uploads.CancelAll("surface closed")
		s.tracker.Stop()
		s.loop.Stop()
		s.log.Debug("surface closed")
	})
	return nil
}
