// Package mdsurface serves one markdown document to a browser surface over
// HTTP, keeping the file and the editor in sync.
package mdsurface

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spf13/afero"

	"pkt.systems/mdsurface/httpapi"
	"pkt.systems/mdsurface/internal/appconfig"
	"pkt.systems/mdsurface/internal/assets"
	"pkt.systems/mdsurface/internal/docstore"
	"pkt.systems/mdsurface/internal/host"
	"pkt.systems/mdsurface/internal/logx"
	"pkt.systems/pslog"
)

// Server composes the document host and the HTTP surface transport.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
	// Addr reports the bound HTTP address once started.
	Addr() string
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Document      string
	WorkspaceRoot string
	HTTP          httpapi.Config
	Host          host.Config
	UploadMax     int64
	AssetsDir     string
}

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	// Fs backs the document directory for uploads and /doc/ serving.
	// Defaults to the OS filesystem.
	Fs afero.Fs
	// Opener opens links; nil disables link opening.
	Opener host.Opener
	Logger pslog.Logger
}

// ConfigFromApp builds a ServerConfig for document from the application config.
func ConfigFromApp(cfg appconfig.Config, document string) ServerConfig {
	return ServerConfig{
		Document:      document,
		WorkspaceRoot: cfg.WorkspaceRoot,
		HTTP: httpapi.Config{
			Addr:            cfg.HTTP.Addr,
			BasePath:        cfg.HTTP.BasePath,
			History:         cfg.HTTP.History,
			MaxMessageBytes: httpapi.MaxMessageBytesFor(cfg.Upload.MaxBytes),
		},
		Host: host.Config{
			Options:       cfg.EditorOptions(),
			Theme:         cfg.Theme(),
			Watch:         cfg.Watch.Enabled,
			WatchDebounce: time.Duration(cfg.Watch.DebounceMS) * time.Millisecond,
		},
		UploadMax: cfg.Upload.MaxBytes,
		AssetsDir: cfg.Upload.AssetsDir,
	}
}

// New constructs a server for one document.
func New(cfg ServerConfig, deps ServerDeps) (Server, error) {
	if cfg.Document == "" {
		return nil, errors.New("document path is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	fsys := deps.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	doc, err := docstore.Open(cfg.Document, cfg.WorkspaceRoot, logger)
	if err != nil {
		return nil, err
	}
	store := assets.NewStore(fsys, cfg.AssetsDir, cfg.UploadMax, logger)
	hub := httpapi.NewHub(cfg.HTTP.History, logger)
	session := host.New(doc, store, deps.Opener, hub, cfg.Host, logger)
	httpSrv := httpapi.NewServer(cfg.HTTP, hub, afero.NewBasePathFs(fsys, doc.Dir()))

	return &compositeServer{
		cfg:     cfg,
		hub:     hub,
		session: session,
		httpSrv: httpSrv,
	}, nil
}

type compositeServer struct {
	cfg     ServerConfig
	hub     *httpapi.Hub
	session *host.Session
	httpSrv *httpapi.Server
	logger  pslog.Logger

	mu      sync.Mutex
	addr    string
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 2)
	s.started = true
	s.logger = logx.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	ln, err := httpapi.Listen(s.ctx, s.cfg.HTTP.Addr)
	if err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		s.cancel()
		log.Error("http listen failed", "addr", s.cfg.HTTP.Addr, "err", err)
		return err
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	meta := s.session.Document().Meta()
	log.Info(
		"server start",
		"doc", meta.RelativePath,
		"http_addr", ln.Addr().String(),
		"http_base_path", s.cfg.HTTP.BasePath,
		"watch", s.cfg.Host.Watch,
	)
	docCtx := pslog.ContextWithLogger(s.ctx, logx.WithDocument(s.ctx, meta))
	docCtx = logx.ContextWithDocument(docCtx, meta)
	if err := s.session.Start(docCtx); err != nil {
		log.Warn("host session degraded", "err", err)
	}
	s.httpSrv.SetBaseContext(s.ctx)
	go func() {
		if err := httpapi.Serve(s.ctx, ln, s.httpSrv.Handler()); err != nil {
			log.Error("http server failed", "err", err)
			s.errCh <- err
		}
	}()
	return nil
}

func (s *compositeServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	if s.session != nil {
		if err := s.session.Close(); err != nil {
			log.Warn("host session close failed", "err", err)
		}
	}
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-s.ctx.Done():
		log.Info("server stopped")
		return nil
	}
}
