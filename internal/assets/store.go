// Package assets materializes uploaded binaries next to the document.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"pkt.systems/mdsurface/internal/content"
	"pkt.systems/mdsurface/schema"
	"pkt.systems/pslog"
)

// Store writes assets into a directory beside the document. The host is the
// only writer; names are probed and then created exclusively, so a file that
// appears between probe and create only costs another probe.
type Store struct {
	fs       afero.Fs
	dir      string
	maxBytes int64
	log      pslog.Logger
}

// NewStore constructs a store over fsys. dir is relative to the document
// directory and defaults to schema.DefaultAssetsDir.
func NewStore(fsys afero.Fs, dir string, maxBytes int64, logger pslog.Logger) *Store {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	dir = strings.Trim(filepath.ToSlash(strings.TrimSpace(dir)), "/")
	if dir == "" || dir == "." {
		dir = schema.DefaultAssetsDir
	}
	if maxBytes <= 0 {
		maxBytes = schema.DefaultUploadMaxBytes
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Store{fs: fsys, dir: dir, maxBytes: maxBytes, log: logger}
}

// Fs returns the underlying filesystem.
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// Dir returns the assets directory relative to the document.
func (s *Store) Dir() string {
	return s.dir
}

// MaxBytes returns the upload size limit.
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// Save validates data and writes it under docDir/<assets>. It returns the
// forward-slash path relative to docDir, for example "assets/image-20240101-000000.png".
func (s *Store) Save(docDir, suggestedName, mimeType string, data []byte, now time.Time) (string, error) {
	if err := content.ValidateSize(data, s.maxBytes); err != nil {
		return "", err
	}
	target := filepath.Join(docDir, filepath.FromSlash(s.dir))
	if err := s.fs.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("create assets dir: %w", err)
	}
	base := content.BaseName(suggestedName)
	ext := content.Extension(suggestedName, mimeType)
	collided := make(map[string]bool)
	for {
		name, err := content.UniqueName(base, ext, now, func(name string) (bool, error) {
			if collided[name] {
				return true, nil
			}
			return afero.Exists(s.fs, filepath.Join(target, name))
		})
		if err != nil {
			return "", err
		}
		full := filepath.Join(target, name)
		file, err := s.fs.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			collided[name] = true
			s.log.Debug("asset name collided", "name", name)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create asset: %w", err)
		}
		if _, err := file.Write(data); err != nil {
			_ = file.Close()
			_ = s.fs.Remove(full)
			return "", fmt.Errorf("write asset: %w", err)
		}
		if err := file.Close(); err != nil {
			_ = s.fs.Remove(full)
			return "", fmt.Errorf("write asset: %w", err)
		}
		rel := path.Join(s.dir, name)
		s.log.Debug("asset saved", "path", rel, "bytes", len(data))
		return rel, nil
	}
}
