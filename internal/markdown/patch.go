package markdown

import (
	"fmt"
	"strings"
)

// Patch inserts block into the named section using exactly one insertion point:
// when the section body holds only placeholder lines the first one is
// replaced; failing that the
// block goes at the end of the body, directly before the next header; if the
// section does not exist the block is appended at end-of-file after a blank line.
//
// Patch is idempotent only through placeholder replacement. Calling it again
// once the placeholder is gone appends another copy of the block.
func (d *Document) Patch(header, block string) Placement {
	add := splitBlock(block)

	s := d.Section(header)
	if s == nil {
		d.appendAtEOF(add)
		return PlacedAppended
	}

	if i := placeholderIndex(s.Lines); i >= 0 {
		s.Lines = append(s.Lines[:i:i], append(add, s.Lines[i+1:]...)...)
		return PlacedPlaceholder
	}

	at := lastContentIndex(s.Lines)
	s.Lines = insertLines(s.Lines, at, append([]string{""}, add...))
	return PlacedBeforeNext
}

// placeholderIndex returns the first placeholder line of a body made up only
// of placeholder and blank lines, or -1. A bracketed line next to other
// content is content.
func placeholderIndex(lines []string) int {
	first := -1
	for i, l := range lines {
		switch {
		case strings.TrimSpace(l) == "":
		case IsPlaceholder(l):
			if first < 0 {
				first = i
			}
		default:
			return -1
		}
	}
	return first
}

func (d *Document) appendAtEOF(add []string) {
	add = append([]string{""}, add...)
	if n := len(d.Sections); n > 0 {
		last := d.Sections[n-1]
		last.Lines = append(last.Lines[:lastContentIndex(last.Lines)], add...)
	} else {
		d.Preamble = append(d.Preamble[:lastContentIndex(d.Preamble)], add...)
	}
	d.trailingNewline = true
}

// ReplaceLine rewrites the first line (header or body) for which match returns
// true. It reports whether a line was rewritten.
func (d *Document) ReplaceLine(match func(line string) bool, newLine string) bool {
	for i, l := range d.Preamble {
		if match(l) {
			d.Preamble[i] = newLine
			return true
		}
	}
	for _, s := range d.Sections {
		if match(s.Header) {
			s.Header = newLine
			return true
		}
		for i, l := range s.Lines {
			if match(l) {
				s.Lines[i] = newLine
				return true
			}
		}
	}
	return false
}

// SetBody replaces a section body wholesale, keeping one blank line before the
// next header. A missing section is appended at end-of-file.
func (d *Document) SetBody(header string, lines []string) {
	if s := d.Section(header); s != nil {
		body := append([]string{}, lines...)
		if s != d.Sections[len(d.Sections)-1] {
			body = append(body, "")
		}
		s.Lines = body
		return
	}
	if n := len(d.Sections); n > 0 {
		last := d.Sections[n-1]
		last.Lines = append(last.Lines[:lastContentIndex(last.Lines)], "")
	} else if len(d.Preamble) > 0 {
		d.Preamble = append(d.Preamble[:lastContentIndex(d.Preamble)], "")
	}
	d.Sections = append(d.Sections, &Section{Header: normalizeHeader(header), Lines: lines})
	d.trailingNewline = true
}

// InsertAfterAnchor inserts line directly after the first body line of the
// section that contains anchor. It returns false, leaving the document
// untouched, if the section or anchor is missing.
func (d *Document) InsertAfterAnchor(header, anchor, line string) bool {
	s := d.Section(header)
	if s == nil {
		return false
	}
	for i, l := range s.Lines {
		if strings.Contains(l, anchor) {
			s.Lines = insertLines(s.Lines, i+1, []string{line})
			return true
		}
	}
	return false
}

// ReplaceFenced replaces every line between the opening and closing fences of
// the first fenced block in the section. The fences themselves are kept.
func (d *Document) ReplaceFenced(header string, lines []string) error {
	s := d.Section(header)
	if s == nil {
		return fmt.Errorf("replacing fenced block in %q: %w", header, ErrSectionNotFound)
	}
	open := -1
	for i, l := range s.Lines {
		if strings.HasPrefix(strings.TrimSpace(l), Fence) {
			open = i
			break
		}
	}
	if open < 0 {
		return fmt.Errorf("replacing fenced block in %q: no opening fence: %w", header, ErrFenceNotFound)
	}
	closing := -1
	for i := open + 1; i < len(s.Lines); i++ {
		if strings.TrimSpace(s.Lines[i]) == Fence {
			closing = i
			break
		}
	}
	if closing < 0 {
		return fmt.Errorf("replacing fenced block in %q: no closing fence before next section: %w", header, ErrFenceNotFound)
	}

	out := make([]string, 0, len(s.Lines)-(closing-open-1)+len(lines))
	out = append(out, s.Lines[:open+1]...)
	out = append(out, lines...)
	out = append(out, s.Lines[closing:]...)
	s.Lines = out
	return nil
}

// Fenced returns the lines inside the first fenced block of the section.
func (d *Document) Fenced(header string) ([]string, error) {
	s := d.Section(header)
	if s == nil {
		return nil, fmt.Errorf("reading fenced block in %q: %w", header, ErrSectionNotFound)
	}
	open := -1
	for i, l := range s.Lines {
		if strings.HasPrefix(strings.TrimSpace(l), Fence) {
			if open < 0 {
				open = i
				continue
			}
			if strings.TrimSpace(l) == Fence {
				return append([]string{}, s.Lines[open+1:i]...), nil
			}
		}
	}
	return nil, fmt.Errorf("reading fenced block in %q: %w", header, ErrFenceNotFound)
}
