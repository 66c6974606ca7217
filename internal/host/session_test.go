package host

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"pkt.systems/mdsurface/internal/assets"
	"pkt.systems/mdsurface/internal/content"
	"pkt.systems/mdsurface/internal/docstore"
	"pkt.systems/mdsurface/internal/transport"
	"pkt.systems/mdsurface/schema"
)

type recordingOpener struct {
	mu       sync.Mutex
	external []string
	files    []string
}

func (r *recordingOpener) OpenExternal(_ context.Context, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.external = append(r.external, url)
	return nil
}

func (r *recordingOpener) OpenFile(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, path)
	return nil
}

type harness struct {
	ctx     context.Context
	session *Session
	surface *transport.PipeEnd
	hostEnd *transport.PipeEnd
	got     chan schema.Message
	doc     *docstore.Document
	fs      afero.Fs
	opener  *recordingOpener
	path    string
}

func newHarness(t *testing.T, text string, cfg Config) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	doc, err := docstore.Open(path, dir, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	fsys := afero.NewMemMapFs()
	store := assets.NewStore(fsys, "", 0, nil)
	hostEnd, surfaceEnd := transport.Pipe(ctx, nil)
	opener := &recordingOpener{}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	}
	session := New(doc, store, opener, hostEnd, cfg, nil)
	t.Cleanup(func() { _ = session.Close() })
	got := make(chan schema.Message, 16)
	surfaceEnd.OnMessage(func(msg schema.Message) { got <- msg })
	if err := session.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	return &harness{ctx: ctx, session: session, surface: surfaceEnd, hostEnd: hostEnd, got: got, doc: doc, fs: fsys, opener: opener, path: path}
}

func (h *harness) send(t *testing.T, msg schema.Message) {
	t.Helper()
	if err := h.surface.Send(msg); err != nil {
		t.Fatalf("send %s: %v", msg.Kind, err)
	}
}

func (h *harness) sync(t *testing.T) {
	t.Helper()
	if err := h.hostEnd.Flush(h.ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := h.session.Sync(h.ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
}

func (h *harness) next(t *testing.T) schema.Message {
	t.Helper()
	select {
	case msg := <-h.got:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for host message")
	}
	return schema.Message{}
}

func (h *harness) expectNone(t *testing.T) {
	t.Helper()
	select {
	case msg := <-h.got:
		t.Fatalf("unexpected host message %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReadySendsInit(t *testing.T) {
	h := newHarness(t, "# Title\r\nbody\r\n", Config{Theme: "hc-dark", Options: schema.EditorOptions{EditorMaxWidth: 900}})
	h.send(t, schema.ReadyMessage())
	msg := h.next(t)
	if msg.Kind != schema.KindInit {
		t.Fatalf("expected init, got %s", msg.Kind)
	}
	if msg.Content != "# Title\r\nbody\r\n" {
		t.Fatalf("unexpected content %q", msg.Content)
	}
	if msg.Meta.FileName != "notes.md" || msg.Meta.RelativePath != "notes.md" {
		t.Fatalf("unexpected meta %+v", msg.Meta)
	}
	if msg.Theme != schema.ThemeDark || msg.Options.EditorMaxWidth != 900 {
		t.Fatalf("unexpected theme/options %s %+v", msg.Theme, msg.Options)
	}
}

func TestEditStaysInMemoryAndSavePersists(t *testing.T) {
	h := newHarness(t, "a\r\n", Config{})
	h.send(t, schema.EditMessage("a\nb\n"))
	h.sync(t)
	h.expectNone(t)
	if h.doc.Content() != "a\r\nb\r\n" || !h.doc.Dirty() {
		t.Fatalf("expected dirty converted content, got %q", h.doc.Content())
	}
	data, _ := os.ReadFile(h.path)
	if string(data) != "a\r\n" {
		t.Fatalf("edit must not touch the file, got %q", data)
	}

	h.send(t, schema.SaveMessage("a\nb\nc\n"))
	h.sync(t)
	data, _ = os.ReadFile(h.path)
	if string(data) != "a\r\nb\r\nc\r\n" {
		t.Fatalf("unexpected saved file %q", data)
	}
	h.expectNone(t)
}

func TestUploadWritesAsset(t *testing.T) {
	h := newHarness(t, "x\n", Config{})
	h.send(t, schema.UploadMessage("req-1", "", "image/png", content.EncodeBinary([]byte{1, 2, 3})))
	msg := h.next(t)
	if msg.Kind != schema.KindUploadResult || !msg.OK || msg.RequestID != "req-1" {
		t.Fatalf("unexpected result %+v", msg)
	}
	if msg.URL != "assets/image-20240101-000000.png" {
		t.Fatalf("unexpected url %q", msg.URL)
	}
	data, err := afero.ReadFile(h.fs, filepath.Join(h.doc.Dir(), "assets", "image-20240101-000000.png"))
	if err != nil || len(data) != 3 {
		t.Fatalf("expected asset on disk, got %v %v", data, err)
	}

	h.send(t, schema.UploadMessage("req-2", "", "", "data:image/png;base64,"+content.EncodeBinary([]byte{4})))
	msg = h.next(t)
	if !msg.OK || msg.URL != "assets/image-20240101-000000-1.png" {
		t.Fatalf("expected a unique second name, got %+v", msg)
	}
}

func TestOversizedUploadRejected(t *testing.T) {
	h := newHarness(t, "x\n", Config{})
	big := make([]byte, 11<<20)
	h.send(t, schema.UploadMessage("big", "huge.png", "image/png", content.EncodeBinary(big)))
	msg := h.next(t)
	if msg.OK || msg.RequestID != "big" {
		t.Fatalf("expected negative result, got %+v", msg)
	}
	if !strings.Contains(msg.Error, "10 MB") {
		t.Fatalf("expected limit in error, got %q", msg.Error)
	}
	if exists, _ := afero.DirExists(h.fs, filepath.Join(h.doc.Dir(), "assets")); exists {
		t.Fatalf("expected nothing written")
	}
	h.expectNone(t)
}

func TestInvalidUploadsGetOneNegativeResult(t *testing.T) {
	h := newHarness(t, "x\n", Config{})
	h.send(t, schema.UploadMessage("bad", "", "image/png", "not*base64"))
	h.send(t, schema.UploadMessage("empty", "", "image/png", ""))
	first := h.next(t)
	second := h.next(t)
	if first.OK || first.RequestID != "bad" || first.Error == "" {
		t.Fatalf("unexpected result %+v", first)
	}
	if second.OK || second.RequestID != "empty" || second.Error != "Image is empty" {
		t.Fatalf("unexpected result %+v", second)
	}
	h.expectNone(t)
}

func TestLinkDispatch(t *testing.T) {
	h := newHarness(t, "x\n", Config{})
	for _, href := range []string{"https://example.com/a?b=1", "./other.md", "sub/dir/file.md", "mailto:a@b.c", "#section", "javascript:alert(1)"} {
		h.send(t, schema.OpenLinkMessage(href))
	}
	h.sync(t)
	h.opener.mu.Lock()
	defer h.opener.mu.Unlock()
	if len(h.opener.external) != 1 || h.opener.external[0] != "https://example.com/a?b=1" {
		t.Fatalf("unexpected external opens %v", h.opener.external)
	}
	want := []string{filepath.Join(h.doc.Dir(), "other.md"), filepath.Join(h.doc.Dir(), "sub", "dir", "file.md")}
	if len(h.opener.files) != 2 || h.opener.files[0] != want[0] || h.opener.files[1] != want[1] {
		t.Fatalf("unexpected file opens %v", h.opener.files)
	}
}

func TestResolveLink(t *testing.T) {
	cases := []struct {
		href     string
		target   string
		external bool
		ok       bool
	}{
		{"http://x.test", "http://x.test", true, true},
		{"HTTPS://x.test", "HTTPS://x.test", true, true},
		{"img/a.png", filepath.Join("/docs", "img", "a.png"), false, true},
		{"/abs/file.md", filepath.Clean("/abs/file.md"), false, true},
		{"ftp://x.test", "", false, false},
		{"", "", false, false},
		{"//host/path", "", false, false},
	}
	for _, tc := range cases {
		target, external, ok := ResolveLink("/docs", tc.href)
		if target != tc.target || external != tc.external || ok != tc.ok {
			t.Fatalf("ResolveLink(%q) = %q %v %v", tc.href, target, external, ok)
		}
	}
}

func TestExternalChangePushesUpdate(t *testing.T) {
	h := newHarness(t, "a\n", Config{})
	if err := h.session.ExternalChange(h.ctx); err != nil {
		t.Fatalf("external change: %v", err)
	}
	h.expectNone(t)

	if err := os.WriteFile(h.path, []byte("changed\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := h.session.ExternalChange(h.ctx); err != nil {
		t.Fatalf("external change: %v", err)
	}
	msg := h.next(t)
	if msg.Kind != schema.KindUpdate || msg.Content != "changed\n" {
		t.Fatalf("unexpected update %+v", msg)
	}
}

func TestExternalChangeKeepsUnsavedEdit(t *testing.T) {
	h := newHarness(t, "a\n", Config{})
	h.send(t, schema.EditMessage("typed\n"))
	h.sync(t)
	if err := os.WriteFile(h.path, []byte("changed\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := h.session.ExternalChange(h.ctx); err != nil {
		t.Fatalf("external change: %v", err)
	}
	h.expectNone(t)
	if h.doc.Content() != "typed\n" {
		t.Fatalf("unsaved edit replaced by %q", h.doc.Content())
	}
}

func TestOwnSaveDoesNotPushUpdate(t *testing.T) {
	h := newHarness(t, "a\n", Config{})
	h.send(t, schema.SaveMessage("b\n"))
	h.sync(t)
	if err := h.session.ExternalChange(h.ctx); err != nil {
		t.Fatalf("external change: %v", err)
	}
	h.expectNone(t)
}

func TestWatcherPushesExternalWrites(t *testing.T) {
	h := newHarness(t, "a\n", Config{Watch: true, WatchDebounce: 10 * time.Millisecond})
	if err := os.WriteFile(h.path, []byte("from elsewhere\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case msg := <-h.got:
		if msg.Kind != schema.KindUpdate || msg.Content != "from elsewhere\n" {
			t.Fatalf("unexpected update %+v", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for watcher update")
	}
}

func TestSetTheme(t *testing.T) {
	h := newHarness(t, "a\n", Config{})
	if err := h.session.SetTheme(h.ctx, "dark"); err != nil {
		t.Fatalf("set theme: %v", err)
	}
	msg := h.next(t)
	if msg.Kind != schema.KindTheme || msg.Theme != schema.ThemeDark {
		t.Fatalf("unexpected theme message %+v", msg)
	}
	if err := h.session.SetTheme(h.ctx, "sepia"); err == nil {
		t.Fatalf("expected unknown theme error")
	}
}

func TestUploadErrorMessage(t *testing.T) {
	err := content.ValidateSize(make([]byte, 20), 10)
	if got := UploadErrorMessage(err); !strings.HasPrefix(got, "Image exceeds the") {
		t.Fatalf("unexpected message %q", got)
	}
}
