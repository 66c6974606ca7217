// Package docstore loads a markdown document, tracks its in-memory edits and
// writes it back atomically in its original line-ending convention.
package docstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"pkt.systems/mdsurface/internal/content"
	"pkt.systems/mdsurface/schema"
	"pkt.systems/pslog"
)

// DefaultFileMode is used when the document did not exist yet.
const DefaultFileMode fs.FileMode = 0o644

// Document is one open markdown file.
type Document struct {
	mu      sync.Mutex
	path    string
	meta    schema.DocumentMeta
	eol     content.LineEnding
	content string
	onDisk  string
	dirty   bool
	saves   int
	log     pslog.Logger
}

// Open reads path and derives its metadata. workspaceRoot may be empty, in
// which case the relative path is the file name.
func Open(path, workspaceRoot string, logger pslog.Logger) (*Document, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("document path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	text := string(data)
	meta := Meta(abs, workspaceRoot)
	doc := &Document{
		path:    abs,
		meta:    meta,
		eol:     content.Detect(text),
		content: text,
		onDisk:  text,
		log:     logger.With("doc", meta.RelativePath),
	}
	doc.log.Debug("document opened", "bytes", len(data), "eol", doc.eol)
	return doc, nil
}

// Meta computes document metadata for an absolute path.
func Meta(abs, workspaceRoot string) schema.DocumentMeta {
	meta := schema.DocumentMeta{
		FileName:     filepath.Base(abs),
		FilePath:     abs,
		RelativePath: filepath.Base(abs),
	}
	if strings.TrimSpace(workspaceRoot) == "" {
		return meta
	}
	root, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return meta
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return meta
	}
	meta.RelativePath = filepath.ToSlash(rel)
	return meta
}

// Path returns the absolute document path.
func (d *Document) Path() string {
	return d.path
}

// Dir returns the directory holding the document.
func (d *Document) Dir() string {
	return filepath.Dir(d.path)
}

// Meta returns the document metadata.
func (d *Document) Meta() schema.DocumentMeta {
	return d.meta
}

// LineEnding returns the convention detected when the document was loaded.
func (d *Document) LineEnding() content.LineEnding {
	return d.eol
}

// Snapshot returns the in-memory content with metadata.
func (d *Document) Snapshot() schema.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return schema.Snapshot{Content: d.content, Meta: d.meta}
}

// Content returns the in-memory content in the document's convention.
func (d *Document) Content() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.content
}

// Dirty reports whether the in-memory content differs from the last save or load.
func (d *Document) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

// Saves counts successful writes.
func (d *Document) Saves() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saves
}

// Update replaces the in-memory content, converting it to the document's
// convention. It reports whether the content changed.
func (d *Document) Update(text string) bool {
	next := content.Project(text, d.eol)
	d.mu.Lock()
	defer d.mu.Unlock()
	if next == d.content {
		return false
	}
	d.content = next
	d.dirty = next != d.onDisk
	return true
}

// Save writes the in-memory content to disk atomically.
func (d *Document) Save() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := WriteAtomic(d.path, []byte(d.content)); err != nil {
		d.log.Warn("document save failed", "err", err)
		return err
	}
	d.onDisk = d.content
	d.dirty = false
	d.saves++
	d.log.Debug("document saved", "bytes", len(d.content))
	return nil
}

// Reload re-reads the file. A file matching what this document last wrote or
// read is not a change. Unsaved edits are kept over a changed file; the next
// save overwrites it. Otherwise the disk content replaces the in-memory
// content, and changed reports whether that altered the in-memory content.
func (d *Document) Reload() (changed bool, err error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return false, err
	}
	text := string(data)
	d.mu.Lock()
	defer d.mu.Unlock()
	if text == d.onDisk {
		return false, nil
	}
	if d.dirty {
		d.onDisk = text
		d.dirty = text != d.content
		d.log.Warn("document changed on disk with unsaved edits; keeping edits", "bytes", len(text))
		return false, nil
	}
	changed = text != d.content
	d.onDisk = text
	d.content = text
	d.dirty = false
	d.log.Debug("document reloaded", "bytes", len(text), "changed", changed)
	return changed, nil
}

// WriteAtomic writes data to path through a temp file and rename, keeping the
// existing file mode.
func WriteAtomic(path string, data []byte) error {
	mode := DefaultFileMode
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
