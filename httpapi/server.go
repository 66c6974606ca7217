package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"pkt.systems/mdsurface/internal/logx"
	"pkt.systems/mdsurface/internal/transport"
	"pkt.systems/mdsurface/schema"
)

// Server serves the surface UI and the HTTP transport for one document.
type Server struct {
	cfg      Config
	hub      *Hub
	docs     http.FileSystem
	basePath string
	baseHref string
	baseCtx  context.Context
}

// NewServer constructs an HTTP server. docs is the document directory served
// read-only under /doc/ so uploaded assets resolve.
func NewServer(cfg Config, hub *Hub, docs afero.Fs) *Server {
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = MaxMessageBytesFor(schema.DefaultUploadMaxBytes)
	}
	var docFS http.FileSystem
	if docs != nil {
		docFS = afero.NewHttpFs(afero.NewReadOnlyFs(docs))
	}
	return &Server{
		cfg:      cfg,
		hub:      hub,
		docs:     docFS,
		basePath: normalizeBasePath(cfg.BasePath),
		baseHref: buildBaseHref(cfg.BaseURL, cfg.BasePath),
		baseCtx:  context.Background(),
	}
}

// MaxMessageBytesFor sizes the message limit for uploads of maxUpload bytes.
// The limit admits payloads up to twice maxUpload so oversized uploads still
// reach the host and get a negative upload-result.
func MaxMessageBytesFor(maxUpload int64) int64 {
	if maxUpload <= 0 {
		maxUpload = schema.DefaultUploadMaxBytes
	}
	return (2*maxUpload+2)/3*4 + 64<<10
}

// SetBaseContext sets the parent context for long-lived connections.
func (s *Server) SetBaseContext(ctx context.Context) {
	if s == nil || ctx == nil {
		return
	}
	s.baseCtx = ctx
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/stream", s.handleStream)
	mux.HandleFunc("/api/message", s.handleMessage)
	mux.HandleFunc("/api/ws", s.handleWebSocket)
	if s.docs != nil {
		mux.Handle("/doc/", http.StripPrefix("/doc", http.FileServer(s.docs)))
	}

	handler := withRequestLogging(mux)
	if s.basePath == "" {
		return handler
	}
	prefix := s.basePath
	root := http.NewServeMux()
	root.Handle(prefix+"/", http.StripPrefix(prefix, handler))
	root.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != prefix {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, prefix+"/", http.StatusTemporaryRedirect)
	})
	return root
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data, modTime, err := indexPage(s.baseHref)
	if err != nil {
		http.Error(w, "index not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, "index.html", modTime, bytes.NewReader(data))
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxMessageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn("http message too large", "limit", tooLarge.Limit)
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	msg, err := schema.DecodeSurfaceMessage(body)
	if err != nil {
		log.Debug("http message dropped", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.hub.Deliver(msg)
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Subscribe before replaying so nothing published in between is lost.
	ch, unsubscribe, seq := s.hub.Subscribe()
	defer unsubscribe()

	lastID := parseUint(r.Header.Get("Last-Event-ID"))
	replayCount := 0
	if lastID > 0 {
		for _, event := range s.hub.Replay(lastID) {
			if event.Seq > seq {
				break
			}
			_ = writeSSEvent(w, event)
			replayCount++
		}
		flusher.Flush()
	}

	log.Info("http stream opened", "last_id", lastID, "replay", replayCount)
	for {
		select {
		case <-r.Context().Done():
			log.Info("http stream closed")
			return
		case <-s.baseCtx.Done():
			log.Info("http stream closed", "reason", "shutdown")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.Seq <= lastID {
				continue
			}
			_ = writeSSEvent(w, event)
			flusher.Flush()
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))
	conn, err := transport.Accept(w, r, log)
	if err != nil {
		log.Warn("http websocket upgrade failed", "err", err)
		return
	}
	conn.SetMaxFrame(s.cfg.MaxMessageBytes)
	conn.OnMessage(s.hub.Deliver)
	ch, unsubscribe, _ := s.hub.Subscribe()
	defer unsubscribe()

	go func() {
		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return
				}
				if err := conn.Send(event.Message); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.baseCtx, cancel)
	defer stop()
	log.Info("http websocket opened")
	if err := conn.Run(ctx); err != nil {
		log.Debug("http websocket ended", "err", err)
	}
	log.Info("http websocket closed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeSSEvent(w io.Writer, event StreamEvent) error {
	data, err := json.Marshal(event.Message)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

var _ transport.Transport = (*Hub)(nil)

