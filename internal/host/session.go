// Package host is the document-owning side of the protocol. It answers ready
// with the document, folds edits into memory, persists saves, opens links,
// materializes uploads and pushes external file changes to the surface.
package host

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pkt.systems/mdsurface/internal/assets"
	"pkt.systems/mdsurface/internal/content"
	"pkt.systems/mdsurface/internal/docstore"
	"pkt.systems/mdsurface/internal/eventloop"
	"pkt.systems/mdsurface/internal/logx"
	"pkt.systems/mdsurface/internal/transport"
	"pkt.systems/mdsurface/schema"
	"pkt.systems/pslog"
)

// Config controls a host session.
type Config struct {
	Options schema.EditorOptions
	Theme   schema.ThemeName
	// Watch enables file watching for external changes.
	Watch bool
	// WatchDebounce coalesces bursts of file events.
	WatchDebounce time.Duration
	Now           func() time.Time
}

// Session serves one document to one surface.
type Session struct {
	cfg       Config
	doc       *docstore.Document
	assets    *assets.Store
	opener    Opener
	transport transport.Transport
	loop      *eventloop.Loop
	log       pslog.Logger

	mu      sync.Mutex
	theme   schema.ThemeName
	options schema.EditorOptions
	inits   int
	uploads int

	watcher   *watcher
	startOnce sync.Once
	closeOnce sync.Once
	unsub     func()
}

// New constructs a host session. opener may be nil, in which case links are
// only logged.
func New(doc *docstore.Document, store *assets.Store, opener Opener, t transport.Transport, cfg Config, logger pslog.Logger) *Session {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	theme, ok := schema.NormalizeThemeName(string(cfg.Theme))
	if !ok {
		theme = schema.DefaultTheme
	}
	log := logger.With("side", logx.SideHost, "doc", doc.Meta().RelativePath)
	if store == nil {
		store = assets.NewStore(nil, "", 0, log)
	}
	return &Session{
		cfg:       cfg,
		doc:       doc,
		assets:    store,
		opener:    opener,
		transport: t,
		loop:      eventloop.New(log),
		log:       log,
		theme:     theme,
		options:   schema.NormalizeEditorOptions(cfg.Options),
	}
}

// Document returns the served document.
func (s *Session) Document() *docstore.Document {
	return s.doc
}

// Start runs the session loop, subscribes to the transport and, when
// configured, starts watching the document file.
func (s *Session) Start(ctx context.Context) error {
	var err error
	s.startOnce.Do(func() {
		s.loop.Start(ctx)
		s.unsub = s.transport.OnMessage(func(msg schema.Message) {
			if postErr := s.loop.Post(func() { s.handle(ctx, msg) }); postErr != nil {
				s.log.Debug("host dropped message", "kind", msg.Kind, "err", postErr)
			}
		})
		if s.cfg.Watch {
			s.watcher, err = newWatcher(s.doc.Path(), s.cfg.WatchDebounce, func() {
				_ = s.loop.Post(s.externalChange)
			}, s.log)
			if err != nil {
				s.log.Warn("host watch failed", "err", err)
			}
		}
		s.log.Info("host session started", "watch", s.watcher != nil)
	})
	return err
}

func (s *Session) handle(ctx context.Context, msg schema.Message) {
	switch msg.Kind {
	case schema.KindReady:
		s.sendInit()
	case schema.KindEdit:
		if s.doc.Update(msg.Content) {
			s.log.Trace("host edit applied", "bytes", len(msg.Content))
		}
	case schema.KindSave:
		s.doc.Update(msg.Content)
		if err := s.doc.Save(); err != nil {
			s.log.Error("host save failed", "err", err)
			return
		}
		s.log.Info("host document saved", "bytes", len(msg.Content))
	case schema.KindOpenLink:
		s.openLink(ctx, msg.Href)
	case schema.KindUpload:
		s.handleUpload(msg)
	default:
		s.log.Debug("host ignored message", "kind", msg.Kind)
	}
}

func (s *Session) sendInit() {
	s.mu.Lock()
	opts, theme := s.options, s.theme
	s.inits++
	s.mu.Unlock()
	if err := s.transport.Send(schema.InitMessage(s.doc.Snapshot(), opts, theme)); err != nil {
		s.log.Warn("host init send failed", "err", err)
		return
	}
	s.log.Debug("host init sent")
}

func (s *Session) handleUpload(msg schema.Message) {
	log := logx.WithRequest(s.log, msg.RequestID)
	s.mu.Lock()
	s.uploads++
	s.mu.Unlock()
	mimeType := msg.MimeType
	if mimeType == "" {
		mimeType = content.DataURIMimeType(msg.DataBase64)
	}
	data, err := content.DecodeBinary(msg.DataBase64)
	var rel string
	if err == nil {
		rel, err = s.assets.Save(s.doc.Dir(), msg.FileName, mimeType, data, s.cfg.Now())
	}
	reply := schema.UploadResultOK(msg.RequestID, rel)
	if err != nil {
		log.Warn("host upload failed", "err", err)
		reply = schema.UploadResultError(msg.RequestID, UploadErrorMessage(err))
	} else {
		log.Info("host upload saved", "path", rel, "bytes", len(data))
	}
	if err := s.transport.Send(reply); err != nil {
		log.Warn("host upload result send failed", "err", err)
	}
}

// UploadErrorMessage renders an upload failure for the user.
func UploadErrorMessage(err error) string {
	switch {
	case errors.Is(err, schema.ErrPayloadTooLarge):
		msg := strings.TrimPrefix(err.Error(), schema.ErrPayloadTooLarge.Error()+": ")
		return upperFirst(msg)
	case errors.Is(err, schema.ErrEmptyPayload):
		return "Image is empty"
	case errors.Is(err, schema.ErrInvalidEncoding):
		return "Image data is not valid base64"
	case errors.Is(err, schema.ErrNameGenerationExhausted):
		return "Could not choose a file name for the image"
	default:
		return "Failed to save image: " + err.Error()
	}
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (s *Session) openLink(ctx context.Context, href string) {
	target, external, ok := ResolveLink(s.doc.Dir(), href)
	if !ok {
		s.log.Debug("host link ignored", "href", href)
		return
	}
	if s.opener == nil {
		s.log.Info("host link requested", "target", target)
		return
	}
	var err error
	if external {
		err = s.opener.OpenExternal(ctx, target)
	} else {
		err = s.opener.OpenFile(ctx, target)
	}
	if err != nil {
		s.log.Warn("host link open failed", "target", target, "err", err)
	}
}

// ResolveLink classifies href. http and https links are external; relative
// paths resolve against docDir. Fragments, other schemes and empty paths are
// not opened.
func ResolveLink(docDir, href string) (target string, external bool, ok bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false, false
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false, false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return href, true, true
	case "":
		if u.Host != "" || u.Path == "" {
			return "", false, false
		}
		p := filepath.FromSlash(u.Path)
		if filepath.IsAbs(p) {
			return filepath.Clean(p), false, true
		}
		return filepath.Join(docDir, p), false, true
	default:
		return "", false, false
	}
}

// SetTheme changes the theme and pushes it to the surface.
func (s *Session) SetTheme(ctx context.Context, theme schema.ThemeName) error {
	normalized, ok := schema.NormalizeThemeName(string(theme))
	if !ok {
		return fmt.Errorf("%w: %q", schema.ErrUnknownTheme, theme)
	}
	var err error
	if doErr := s.loop.Do(ctx, func() {
		s.mu.Lock()
		s.theme = normalized
		s.mu.Unlock()
		err = s.transport.Send(schema.ThemeMessage(normalized))
	}); doErr != nil {
		return doErr
	}
	return err
}

// Theme returns the current theme.
func (s *Session) Theme() schema.ThemeName {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theme
}

// ExternalChange re-reads the document and pushes an update when the file
// differs from the in-memory content.
func (s *Session) ExternalChange(ctx context.Context) error {
	return s.loop.Do(ctx, s.externalChange)
}

func (s *Session) externalChange() {
	changed, err := s.doc.Reload()
	if err != nil {
		s.log.Warn("host reload failed", "err", err)
		return
	}
	if !changed {
		return
	}
	s.mu.Lock()
	opts, theme := s.options, s.theme
	s.mu.Unlock()
	if err := s.transport.Send(schema.UpdateMessage(s.doc.Snapshot(), opts, theme)); err != nil {
		s.log.Warn("host update send failed", "err", err)
		return
	}
	s.log.Info("host external change pushed")
}

// Sync waits until every message queued before the call was handled.
func (s *Session) Sync(ctx context.Context) error {
	return s.loop.Do(ctx, func() {})
}

// Counters returns how many inits were sent and uploads handled.
func (s *Session) Counters() (inits, uploads int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inits, s.uploads
}

// Close stops watching, unsubscribes and stops the loop.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.unsub != nil {
			s.unsub()
		}
		if s.watcher != nil {
			err = s.watcher.Close()
		}
		s.loop.Stop()
		s.log.Debug("host session closed")
	})
	return err
}
