package content

import (
	"encoding/base64"
	"fmt"
	"strings"

	"pkt.systems/mdsurface/schema"
)

// EncodeBinary encodes buf for transport.
func EncodeBinary(buf []byte) string {
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeBinary decodes a transport payload, accepting an optional data URI
// prefix and embedded whitespace.
func DecodeBinary(payload string) ([]byte, error) {
	data := StripDataURI(payload)
	data = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, data)
	for i := 0; i < len(data); i++ {
		if !isBase64Char(data[i]) {
			return nil, fmt.Errorf("%w: unexpected character %q at offset %d", schema.ErrInvalidEncoding, data[i], i)
		}
	}
	data = strings.TrimRight(data, "=")
	out, err := base64.RawStdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrInvalidEncoding, err)
	}
	return out, nil
}

// StripDataURI removes a leading "data:<mime>;base64," prefix.
func StripDataURI(payload string) string {
	trimmed := strings.TrimSpace(payload)
	if !strings.HasPrefix(strings.ToLower(trimmed), "data:") {
		return trimmed
	}
	idx := strings.IndexByte(trimmed, ',')
	if idx == -1 {
		return trimmed
	}
	return trimmed[idx+1:]
}

// DataURIMimeType returns the media type of a data URI prefix, if any.
func DataURIMimeType(payload string) string {
	trimmed := strings.TrimSpace(payload)
	if !strings.HasPrefix(strings.ToLower(trimmed), "data:") {
		return ""
	}
	header := trimmed[len("data:"):]
	if idx := strings.IndexAny(header, ";,"); idx != -1 {
		header = header[:idx]
	}
	return strings.ToLower(strings.TrimSpace(header))
}

// ValidateSize rejects empty payloads and payloads larger than maxBytes.
// A non-positive maxBytes disables the upper bound.
func ValidateSize(buf []byte, maxBytes int64) error {
	if len(buf) == 0 {
		return schema.ErrEmptyPayload
	}
	if maxBytes > 0 && int64(len(buf)) > maxBytes {
		return fmt.Errorf("%w: image exceeds the %s limit", schema.ErrPayloadTooLarge, FormatLimit(maxBytes))
	}
	return nil
}

// FormatLimit renders a byte limit the way users read it ("10 MB").
func FormatLimit(maxBytes int64) string {
	const mb = 1024 * 1024
	if maxBytes >= mb && maxBytes%mb == 0 {
		return fmt.Sprintf("%d MB", maxBytes/mb)
	}
	if maxBytes >= mb {
		return fmt.Sprintf("%.1f MB", float64(maxBytes)/mb)
	}
	return fmt.Sprintf("%d bytes", maxBytes)
}

func isBase64Char(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '+' || c == '/' || c == '=':
		return true
	}
	return false
}
