package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
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
	"pkt.systems/mdsurface/internal/host"
	"pkt.systems/mdsurface/internal/transport"
	"pkt.systems/mdsurface/schema"
)

type received struct {
	mu   sync.Mutex
	msgs []schema.Message
}

func (r *received) add(msg schema.Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *received) snapshot() []schema.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schema.Message(nil), r.msgs...)
}

func newTestServer(t *testing.T, cfg Config, docs afero.Fs) (*httptest.Server, *Hub) {
	t.Helper()
	hub := NewHub(cfg.History, nil)
	srv := NewServer(cfg, hub, docs)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, hub
}

func TestPostMessageDeliversToHost(t *testing.T) {
	ts, hub := newTestServer(t, Config{}, nil)
	var got received
	hub.OnMessage(got.add)

	resp, err := http.Post(ts.URL+"/api/message", "application/json", strings.NewReader(`{"kind":"edit","content":"hello"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	msgs := got.snapshot()
	if len(msgs) != 1 || msgs[0].Kind != schema.KindEdit || msgs[0].Content != "hello" {
		t.Fatalf("unexpected delivered messages %+v", msgs)
	}
}

func TestPostMalformedMessageIsRejected(t *testing.T) {
	ts, hub := newTestServer(t, Config{}, nil)
	var got received
	hub.OnMessage(got.add)

	bodies := []string{`not json`, `{"kind":"edit"}`, `{"kind":"init","content":"x"}`, `{"kind":"upload","dataBase64":"x"}`}
	for _, body := range bodies {
		resp, err := http.Post(ts.URL+"/api/message", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, resp.StatusCode)
		}
	}
	if msgs := got.snapshot(); len(msgs) != 0 {
		t.Fatalf("malformed messages reached the host: %+v", msgs)
	}

	resp, err := http.Get(ts.URL + "/api/message")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestPostMessageTooLarge(t *testing.T) {
	ts, _ := newTestServer(t, Config{MaxMessageBytes: 64}, nil)
	body := `{"kind":"edit","content":"` + strings.Repeat("x", 128) + `"}`
	resp, err := http.Post(ts.URL+"/api/message", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}
}

func TestStreamReplaysAfterLastEventID(t *testing.T) {
	ts, hub := newTestServer(t, Config{History: 8}, nil)
	for _, content := range []string{"one", "two"} {
		if err := hub.Send(schema.UpdateMessage(schema.Snapshot{Content: content}, schema.DefaultEditorOptions(), schema.ThemeLight)); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Last-Event-ID", "1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	id, data := readEvent(t, reader)
	if id != "2" {
		t.Fatalf("expected replay from id 2, got %q", id)
	}
	msg, err := schema.DecodeHostMessage([]byte(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Kind != schema.KindUpdate || msg.Content != "two" {
		t.Fatalf("unexpected replayed message %+v", msg)
	}

	waitFor(t, func() bool { return hub.Subscribers() == 1 })
	if err := hub.Send(schema.ThemeMessage(schema.ThemeDark)); err != nil {
		t.Fatalf("send: %v", err)
	}
	id, data = readEvent(t, reader)
	if id != "3" || !strings.Contains(data, `"kind":"theme"`) {
		t.Fatalf("unexpected live event %q %q", id, data)
	}
}

func TestWebSocketRoundTrip(t *testing.T) {
	ts, hub := newTestServer(t, Config{}, nil)
	hub.OnMessage(func(msg schema.Message) {
		if msg.Kind == schema.KindReady {
			_ = hub.Send(schema.InitMessage(schema.Snapshot{Content: "# Doc\n"}, schema.DefaultEditorOptions(), schema.ThemeDark))
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client, err := transport.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/api/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	got := make(chan schema.Message, 4)
	client.OnMessage(func(msg schema.Message) { got <- msg })
	go func() { _ = client.Run(ctx) }()
	defer func() { _ = client.Close() }()

	if err := client.Send(schema.ReadyMessage()); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case msg := <-got:
		if msg.Kind != schema.KindInit || msg.Content != "# Doc\n" || msg.Theme != schema.ThemeDark {
			t.Fatalf("unexpected message %+v", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for init")
	}
}

func TestDocumentFilesAreServed(t *testing.T) {
	docs := afero.NewMemMapFs()
	if err := afero.WriteFile(docs, "/assets/image.png", []byte("png"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ts, _ := newTestServer(t, Config{}, docs)

	resp, err := http.Get(ts.URL + "/doc/assets/image.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "png" {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get(ts.URL + "/doc/assets/missing.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestIndexUsesBasePath(t *testing.T) {
	ts, _ := newTestServer(t, Config{BasePath: "/md"}, nil)

	resp, err := http.Get(ts.URL + "/md/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `<base href="/md/" />`) {
		t.Fatalf("base href missing from index")
	}

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err = client.Get(ts.URL + "/md")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusTemporaryRedirect || resp.Header.Get("Location") != "/md/" {
		t.Fatalf("unexpected redirect %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestMaxMessageBytesFitsUpload(t *testing.T) {
	limit := MaxMessageBytesFor(schema.DefaultUploadMaxBytes)
	oversized := int64(2*schema.DefaultUploadMaxBytes+2) / 3 * 4
	if limit <= oversized {
		t.Fatalf("limit %d does not fit an encoded upload of %d", limit, oversized)
	}
	if MaxMessageBytesFor(0) != limit {
		t.Fatalf("expected zero to fall back to the default upload limit")
	}
}

func TestOversizedUploadIsAnswered(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(path, []byte("# Notes\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	doc, err := docstore.Open(path, dir, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ts, hub := newTestServer(t, Config{}, nil)
	session := host.New(doc, assets.NewStore(afero.NewMemMapFs(), "", 0, nil), nil, hub, host.Config{}, nil)
	defer func() { _ = session.Close() }()
	if err := session.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	events, unsub, _ := hub.Subscribe()
	defer unsub()

	data := content.EncodeBinary(bytes.Repeat([]byte{0x89}, 11*1024*1024))
	body, err := json.Marshal(schema.UploadMessage("big-1", "big.png", "image/png", data))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(ts.URL+"/api/message", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	select {
	case event := <-events:
		msg := event.Message
		if msg.Kind != schema.KindUploadResult || msg.RequestID != "big-1" || msg.OK {
			t.Fatalf("unexpected reply %+v", msg)
		}
		if !strings.Contains(msg.Error, "10 MB") {
			t.Fatalf("expected size limit in error, got %q", msg.Error)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no upload-result for oversized upload")
	}
}

func readEvent(t *testing.T, reader *bufio.Reader) (id, data string) {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if data != "" {
				return id, data
			}
		case strings.HasPrefix(line, "id: "):
			id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met")
}
