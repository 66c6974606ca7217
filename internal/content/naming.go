package content

import (
	"fmt"
	"path"
	"strings"
	"time"

	"pkt.systems/mdsurface/schema"
)

const (
	// DefaultBaseName is used when a suggested name has no usable characters.
	DefaultBaseName = "image"
	// DefaultExtension is used when neither the name nor the media type gives one.
	DefaultExtension = "png"
	// MaxNameAttempts bounds the uniqueness probe.
	MaxNameAttempts = 1000
)

var mimeExtensions = map[string]string{
	"image/png":     "png",
	"image/jpeg":    "jpg",
	"image/jpg":     "jpg",
	"image/gif":     "gif",
	"image/webp":    "webp",
	"image/svg+xml": "svg",
	"image/bmp":     "bmp",
	"image/avif":    "avif",
}

// BaseName derives a filesystem-safe base name from a suggested file name.
func BaseName(suggested string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(suggested), "\\", "/"))
	if ext := path.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext)
	}
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return DefaultBaseName
	}
	return b.String()
}

// Extension picks an extension (without dot) from the suggested name, then the
// media type, then the default.
func Extension(suggested, mimeType string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(strings.TrimSpace(suggested)), "."))
	if ext != "" && isAlnum(ext) {
		return ext
	}
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.IndexByte(mimeType, ';'); idx != -1 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	if ext, ok := mimeExtensions[mimeType]; ok {
		return ext
	}
	return DefaultExtension
}

// CandidateName returns the attempt-th candidate for base/ext at now.
// Attempt zero carries no numeric suffix.
func CandidateName(base, ext string, now time.Time, attempt int) string {
	stamp := now.Format("20060102-150405")
	if attempt == 0 {
		return fmt.Sprintf("%s-%s.%s", base, stamp, ext)
	}
	return fmt.Sprintf("%s-%s-%d.%s", base, stamp, attempt, ext)
}

// UniqueName probes candidates until exists reports a free one.
func UniqueName(base, ext string, now time.Time, exists func(name string) (bool, error)) (string, error) {
	for attempt := 0; attempt < MaxNameAttempts; attempt++ {
		name := CandidateName(base, ext, now, attempt)
		taken, err := exists(name)
		if err != nil {
			return "", err
		}
		if !taken {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", schema.ErrNameGenerationExhausted, MaxNameAttempts)
}

func isAlnum(value string) bool {
	for _, r := range value {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
