package assets

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"pkt.systems/mdsurface/schema"
)

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestSaveWritesUniqueNames(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := NewStore(fsys, "", 0, nil)
	docDir := "/docs"

	first, err := store.Save(docDir, "", "image/png", []byte{1, 2, 3}, fixedNow)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if first != "assets/image-20240101-000000.png" {
		t.Fatalf("unexpected first name %q", first)
	}
	second, err := store.Save(docDir, "", "image/png", []byte{4}, fixedNow)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if second != "assets/image-20240101-000000-1.png" {
		t.Fatalf("unexpected second name %q", second)
	}
	data, err := afero.ReadFile(fsys, filepath.Join(docDir, "assets", "image-20240101-000000.png"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(data, []byte{1, 2, 3}) {
		t.Fatalf("unexpected asset bytes %v", data)
	}
}

func TestSaveUsesSuggestedNameAndMime(t *testing.T) {
	store := NewStore(afero.NewMemMapFs(), "media/", 0, nil)
	got, err := store.Save("/docs", "My Photo.JPEG", "", []byte{1}, fixedNow)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(got, "media/my-photo-20240101-000000.") {
		t.Fatalf("unexpected name %q", got)
	}
}

func TestSaveRejectsOversizedAndEmpty(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := NewStore(fsys, "", 0, nil)
	big := make([]byte, 11<<20)
	_, err := store.Save("/docs", "", "image/png", big, fixedNow)
	if !errors.Is(err, schema.ErrPayloadTooLarge) {
		t.Fatalf("expected payload too large, got %v", err)
	}
	if !strings.Contains(err.Error(), "10 MB") {
		t.Fatalf("expected limit in message, got %q", err.Error())
	}
	if _, err := store.Save("/docs", "", "image/png", nil, fixedNow); !errors.Is(err, schema.ErrEmptyPayload) {
		t.Fatalf("expected empty payload, got %v", err)
	}
	exists, err := afero.DirExists(fsys, "/docs/assets")
	if err != nil {
		t.Fatalf("dir exists: %v", err)
	}
	if exists {
		t.Fatalf("expected nothing written for rejected uploads")
	}
}

type collidingFs struct {
	afero.Fs
	collide map[string]bool
}

func (c *collidingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if c.collide[filepath.Base(name)] {
		delete(c.collide, filepath.Base(name))
		if err := afero.WriteFile(c.Fs, name, []byte("racer"), 0o644); err != nil {
			return nil, err
		}
	}
	return c.Fs.OpenFile(name, flag, perm)
}

func TestSaveRetriesOnCreateCollision(t *testing.T) {
	fsys := &collidingFs{Fs: afero.NewMemMapFs(), collide: map[string]bool{"image-20240101-000000.png": true}}
	store := NewStore(fsys, "", 0, nil)
	got, err := store.Save("/docs", "", "image/png", []byte{9}, fixedNow)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if got != "assets/image-20240101-000000-1.png" {
		t.Fatalf("expected retry to pick the next name, got %q", got)
	}
	data, _ := afero.ReadFile(fsys, "/docs/assets/image-20240101-000000.png")
	if string(data) != "racer" {
		t.Fatalf("expected the racing file untouched, got %q", data)
	}
}
