package content

import "strings"

// LineEnding is a line break convention.
type LineEnding string

const (
	// LF is the canonical convention.
	LF LineEnding = "\n"
	// CRLF is the Windows convention.
	CRLF LineEnding = "\r\n"
	// CR is the classic Mac convention.
	CR LineEnding = "\r"
)

// String returns a printable name for logs.
func (e LineEnding) String() string {
	switch e {
	case CRLF:
		return "crlf"
	case CR:
		return "cr"
	default:
		return "lf"
	}
}

// Detect returns the convention of the first line break in text, LF when there is none.
func Detect(text string) LineEnding {
	idx := strings.IndexAny(text, "\r\n")
	if idx == -1 {
		return LF
	}
	if text[idx] == '\n' {
		return LF
	}
	if idx+1 < len(text) && text[idx+1] == '\n' {
		return CRLF
	}
	return CR
}

// ToCanonical rewrites every \r\n and lone \r to \n.
func ToCanonical(text string) string {
	if !strings.Contains(text, "\r") {
		return text
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// ToTarget expands \n to the target convention. Input is expected in canonical form.
func ToTarget(canonical string, target LineEnding) string {
	switch target {
	case CRLF, CR:
		return strings.ReplaceAll(canonical, "\n", string(target))
	default:
		return canonical
	}
}

// Project canonicalizes text and then expands it to target.
func Project(text string, target LineEnding) string {
	return ToTarget(ToCanonical(text), target)
}
