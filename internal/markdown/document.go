// Package markdown provides the small line-oriented document model used for
// the shared workflow documents. Only second-level headers ("## Name") and
// single-line bracketed placeholders are recognized; everything else is
// opaque body text.
package markdown

import (
	"errors"
	"strings"
)

// HeaderPrefix marks the start of a section.
const HeaderPrefix = "## "

// Fence opens and closes a fenced code block.
const Fence = "```"

var (
	// ErrSectionNotFound is returned when a required section is absent.
	ErrSectionNotFound = errors.New("section not found")
	// ErrFenceNotFound is returned when a fenced block is missing or unterminated.
	ErrFenceNotFound = errors.New("fenced block not found")
)

// Placement reports where Patch put a block.
type Placement int

const (
	// PlacedPlaceholder means a placeholder line was replaced.
	PlacedPlaceholder Placement = iota
	// PlacedBeforeNext means the block went at the end of the section body.
	PlacedBeforeNext
	// PlacedAppended means the section was absent and the block was appended at EOF.
	PlacedAppended
)

func (p Placement) String() string {
	switch p {
	case PlacedPlaceholder:
		return "placeholder"
	case PlacedBeforeNext:
		return "before-next-header"
	case PlacedAppended:
		return "appended"
	default:
		return "unknown"
	}
}

// Section is a header line and the body lines up to the next header.
type Section struct {
	Header string
	Lines  []string
}

// Name returns the header text without the "## " marker.
func (s *Section) Name() string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s.Header), strings.TrimSpace(HeaderPrefix)))
}

// Document is an ordered list of sections plus any lines before the first header.
type Document struct {
	Preamble []string
	Sections []*Section

	trailingNewline bool
}

// IsHeader reports whether line opens a second-level section.
func IsHeader(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), HeaderPrefix)
}

// IsPlaceholder reports whether line is wholly wrapped in brackets, e.g. "[None yet]".
// Markdown links and checkbox items are not placeholders.
func IsPlaceholder(line string) bool {
	t := strings.TrimSpace(line)
	if len(t) < 2 || t[0] != '[' || t[len(t)-1] != ']' {
		return false
	}
	inner := t[1 : len(t)-1]
	return !strings.ContainsAny(inner, "[]")
}

// Parse splits text into a Document. Parse(s).String() == s for any s.
func Parse(text string) *Document {
	doc := &Document{}
	if text == "" {
		return doc
	}
	if strings.HasSuffix(text, "\n") {
		doc.trailingNewline = true
		text = strings.TrimSuffix(text, "\n")
	}

	var cur *Section
	for _, line := range strings.Split(text, "\n") {
		if IsHeader(line) {
			cur = &Section{Header: line}
			doc.Sections = append(doc.Sections, cur)
			continue
		}
		if cur == nil {
			doc.Preamble = append(doc.Preamble, line)
			continue
		}
		cur.Lines = append(cur.Lines, line)
	}
	return doc
}

// Lines returns the document as a flat list of lines.
func (d *Document) Lines() []string {
	out := make([]string, 0, len(d.Preamble)+len(d.Sections)*4)
	out = append(out, d.Preamble...)
	for _, s := range d.Sections {
		out = append(out, s.Header)
		out = append(out, s.Lines...)
	}
	return out
}

// String serializes the document back to text.
func (d *Document) String() string {
	lines := d.Lines()
	if len(lines) == 0 {
		if d.trailingNewline {
			return "\n"
		}
		return ""
	}
	text := strings.Join(lines, "\n")
	if d.trailingNewline {
		text += "\n"
	}
	return text
}

// Section returns the first section whose trimmed header equals header.
// header may be given with or without the "## " marker.
func (d *Document) Section(header string) *Section {
	want := normalizeHeader(header)
	for _, s := range d.Sections {
		if strings.TrimSpace(s.Header) == want {
			return s
		}
	}
	return nil
}

// HasSection reports whether the document contains header.
func (d *Document) HasSection(header string) bool {
	return d.Section(header) != nil
}

// HasContent reports whether the section exists and has any body line that is
// neither blank nor a placeholder.
func (d *Document) HasContent(header string) bool {
	return len(d.ContentLines(header)) > 0
}

// ContentLines returns the non-blank, non-placeholder body lines of a section.
func (d *Document) ContentLines(header string) []string {
	s := d.Section(header)
	if s == nil {
		return nil
	}
	var out []string
	for _, l := range s.Lines {
		if strings.TrimSpace(l) == "" || IsPlaceholder(l) {
			continue
		}
		out = append(out, l)
	}
	return out
}

func normalizeHeader(header string) string {
	h := strings.TrimSpace(header)
	if !strings.HasPrefix(h, HeaderPrefix) {
		h = HeaderPrefix + h
	}
	return h
}

func splitBlock(block string) []string {
	return strings.Split(strings.TrimRight(block, "\n"), "\n")
}

// lastContentIndex returns the index just past the last non-blank line.
func lastContentIndex(lines []string) int {
	i := len(lines)
	for i > 0 && strings.TrimSpace(lines[i-1]) == "" {
		i--
	}
	return i
}

func insertLines(lines []string, at int, add []string) []string {
	out := make([]string, 0, len(lines)+len(add))
	out = append(out, lines[:at]...)
	out = append(out, add...)
	return append(out, lines[at:]...)
}
