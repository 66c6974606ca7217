// Package outline derives a navigable table of contents from a rendered
// document snapshot and tracks which entry is active.
package outline

import (
	"strconv"
	"strings"
)

// TitleID identifies the synthetic document title entry.
const TitleID = "title"

// DefaultTitle is used when the document has no name.
const DefaultTitle = "Untitled"

// ElementKind classifies a rendered block.
type ElementKind int

const (
	// ElementBlock is any non-heading block.
	ElementBlock ElementKind = iota
	// ElementHeading is a heading block with a level.
	ElementHeading
	// ElementTitle is the rendered document title.
	ElementTitle
)

// Element is one rendered block: its kind, heading level, text and vertical
// offset relative to the top of the viewport.
type Element struct {
	Kind   ElementKind
	Level  int
	Text   string
	Top    float64
	Height float64
}

// Entry is one outline item.
type Entry struct {
	ID    string `json:"id"`
	Depth int    `json:"depth"`
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Extract scans headings in document order. Empty headings are skipped; ids are
// positional, so inserting an earlier heading renumbers every later one.
func Extract(elements []Element, title string) []Entry {
	entries, _ := extract(elements, title)
	return entries
}

// extract also returns, per entry, the index of its source element (-1 when the
// title has no rendered element).
func extract(elements []Element, title string) ([]Entry, []int) {
	var entries []Entry
	var sources []int
	titleIndex := -1
	n := 0
	for i, el := range elements {
		switch el.Kind {
		case ElementTitle:
			if titleIndex == -1 {
				titleIndex = i
			}
		case ElementHeading:
			text := strings.TrimSpace(el.Text)
			if text == "" {
				continue
			}
			depth := el.Level - 1
			if depth < 0 {
				depth = 0
			}
			entries = append(entries, Entry{
				ID:    "heading-" + strconv.Itoa(n),
				Depth: depth,
				Level: el.Level,
				Text:  text,
			})
			sources = append(sources, i)
			n++
		}
	}
	if len(entries) == 0 {
		return nil, nil
	}
	title = strings.TrimSpace(title)
	if titleIndex != -1 && strings.TrimSpace(elements[titleIndex].Text) != "" {
		title = strings.TrimSpace(elements[titleIndex].Text)
	}
	if title == "" {
		title = DefaultTitle
	}
	entries = append([]Entry{{ID: TitleID, Depth: 0, Level: 0, Text: title}}, entries...)
	sources = append([]int{titleIndex}, sources...)
	return entries, sources
}

// IsSame reports whether two outlines match entry for entry.
func IsSame(a, b []Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
