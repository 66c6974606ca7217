// Package markdown reads the inline layer of markdown text: emphasis, code
// spans and links, the way the surface renders them.
package markdown

import "strings"

// Span represents a styled slice of rendered text.
type Span struct {
	Text   string
	Bold   bool
	Italic bool
	Code   bool
	// Href is set for link text and autolinks.
	Href string
}

// ParseInline parses a subset of inline markdown. Supported markers:
// **bold**, *italic*, `code`, [text](href) and <scheme://autolink>.
// Unclosed markers stay literal.
func ParseInline(input string) []Span {
	if input == "" {
		return nil
	}
	p := inlineParser{}
	for i := 0; i < len(input); {
		ch := input[i]
		if ch == '\\' && i+1 < len(input) && !p.code {
			p.buf.WriteByte(input[i+1])
			i += 2
			continue
		}
		if ch == '`' {
			if p.code {
				p.flush()
				p.code = false
				i++
				continue
			}
			if strings.Contains(input[i+1:], "`") {
				p.flush()
				p.code = true
				i++
				continue
			}
		}
		if p.code {
			p.buf.WriteByte(ch)
			i++
			continue
		}
		switch ch {
		case '[':
			if text, href, n, ok := parseLink(input[i:]); ok {
				p.flush()
				p.spans = append(p.spans, Span{Text: text, Bold: p.bold, Italic: p.italic, Href: href})
				i += n
				continue
			}
		case '<':
			if href, n, ok := parseAutolink(input[i:]); ok {
				p.flush()
				p.spans = append(p.spans, Span{Text: href, Bold: p.bold, Italic: p.italic, Href: href})
				i += n
				continue
			}
		case '*':
			if strings.HasPrefix(input[i:], "**") {
				if p.bold {
					p.flush()
					p.bold = false
					i += 2
					continue
				}
				if strings.Contains(input[i+2:], "**") {
					p.flush()
					p.bold = true
					i += 2
					continue
				}
				p.buf.WriteString("**")
				i += 2
				continue
			}
			if p.italic {
				p.flush()
				p.italic = false
				i++
				continue
			}
			if strings.Contains(input[i+1:], "*") {
				p.flush()
				p.italic = true
				i++
				continue
			}
		}
		p.buf.WriteByte(ch)
		i++
	}
	p.flush()
	return p.spans
}

type inlineParser struct {
	spans  []Span
	buf    strings.Builder
	bold   bool
	italic bool
	code   bool
}

func (p *inlineParser) flush() {
	if p.buf.Len() == 0 {
		return
	}
	p.spans = append(p.spans, Span{Text: p.buf.String(), Bold: p.bold, Italic: p.italic, Code: p.code})
	p.buf.Reset()
}

// parseLink reads [text](href "title") at the start of s.
func parseLink(s string) (text, href string, n int, ok bool) {
	closeText := strings.Index(s, "](")
	if closeText <= 0 {
		return "", "", 0, false
	}
	text = s[1:closeText]
	if strings.ContainsAny(text, "[]") {
		return "", "", 0, false
	}
	rest := s[closeText+2:]
	closeHref := strings.IndexByte(rest, ')')
	if closeHref < 0 {
		return "", "", 0, false
	}
	target := strings.TrimSpace(rest[:closeHref])
	if strings.HasPrefix(target, "<") {
		end := strings.IndexByte(target, '>')
		if end < 0 {
			return "", "", 0, false
		}
		target = target[1:end]
	} else if space := strings.IndexAny(target, " \t"); space >= 0 {
		target = target[:space]
	}
	if target == "" {
		return "", "", 0, false
	}
	return text, target, closeText + 2 + closeHref + 1, true
}

func parseAutolink(s string) (href string, n int, ok bool) {
	end := strings.IndexByte(s, '>')
	if end < 0 {
		return "", 0, false
	}
	candidate := s[1:end]
	if !strings.Contains(candidate, "://") && !strings.HasPrefix(candidate, "mailto:") {
		return "", 0, false
	}
	if strings.ContainsAny(candidate, " \t<") {
		return "", 0, false
	}
	return candidate, end + 1, true
}

// PlainText returns the rendered text of input with inline markers removed.
func PlainText(input string) string {
	var b strings.Builder
	for _, span := range ParseInline(input) {
		b.WriteString(span.Text)
	}
	return b.String()
}

// Links returns the link targets in input in order of appearance.
func Links(input string) []string {
	var out []string
	for _, span := range ParseInline(input) {
		if span.Href != "" {
			out = append(out, span.Href)
		}
	}
	return out
}
