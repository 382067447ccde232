package extractor

import (
	"strings"
	"unicode/utf8"

	"docbreak/internal/pointermap"
)

// textBuilder joins segments with a single "\n" and tracks the rune offset of
// each one. A segment occupies [start, start+len); the separator belongs to no
// segment and there is none after the last, so the final end equals the text
// length.
type textBuilder struct {
	sb      strings.Builder
	pos     int
	written bool
}

func (b *textBuilder) add(s string) (start, end int) {
	if b.written {
		b.sb.WriteByte('\n')
		b.pos++
	}
	b.written = true
	start = b.pos
	b.sb.WriteString(s)
	b.pos += utf8.RuneCountInString(s)
	return start, b.pos
}

func (b *textBuilder) String() string {
	return b.sb.String()
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// splitLines splits on \n, \r\n and \r. A single trailing line break does not
// produce an empty last line.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// lineMap builds a txt/doc style map over lines joined by "\n".
func lineMap(kind pointermap.Kind, lines []string) (string, *pointermap.PointerMap) {
	var tb textBuilder
	pm := &pointermap.PointerMap{Type: kind, Lines: []pointermap.Line{}}
	for i, ln := range lines {
		start, end := tb.add(ln)
		pm.Lines = append(pm.Lines, pointermap.Line{Line: i + 1, CharStart: start, CharEnd: end})
	}
	return tb.String(), pm
}
