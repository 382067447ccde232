package pointermap

import (
	"encoding/json"
	"fmt"
)

// Kind identifies which source layout a PointerMap describes.
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindDOCX Kind = "docx"
	KindDOC  Kind = "doc"
	KindTXT  Kind = "txt"
)

// Span is a numbered range of extracted text. Index is the 1-based line
// number within a PDF page or the paragraph number within a DOCX body.
type Span struct {
	Index     int `json:"index"`
	CharStart int `json:"char_start"`
	CharEnd   int `json:"char_end"`
}

// Line is a 1-based line of a TXT or DOC extraction.
type Line struct {
	Line      int `json:"line"`
	CharStart int `json:"char_start"`
	CharEnd   int `json:"char_end"`
}

// Page groups the lines extracted from one PDF page. A page with no
// extractable text keeps an empty Lines slice.
type Page struct {
	Page  int    `json:"page"`
	Lines []Span `json:"lines"`
}

// PointerMap links character ranges of extracted text back to the original
// document. Offsets count runes of the text returned alongside the map.
// Only the field matching Type is populated.
type PointerMap struct {
	Type       Kind   `json:"type"`
	Pages      []Page `json:"pages,omitempty"`
	Paragraphs []Span `json:"paragraphs,omitempty"`
	Lines      []Line `json:"lines,omitempty"`
}

// Entry is a flattened view of one map entry, used by search and validation.
type Entry struct {
	Page      int // PDF only
	Number    int // line or paragraph number
	CharStart int
	CharEnd   int
}

// Entries flattens the map into document order.
func (m *PointerMap) Entries() []Entry {
	if m == nil {
		return nil
	}
	var out []Entry
	switch m.Type {
	case KindPDF:
		for _, p := range m.Pages {
			for _, l := range p.Lines {
				out = append(out, Entry{Page: p.Page, Number: l.Index, CharStart: l.CharStart, CharEnd: l.CharEnd})
			}
		}
	case KindDOCX:
		for _, p := range m.Paragraphs {
			out = append(out, Entry{Number: p.Index, CharStart: p.CharStart, CharEnd: p.CharEnd})
		}
	case KindTXT, KindDOC:
		for _, l := range m.Lines {
			out = append(out, Entry{Number: l.Line, CharStart: l.CharStart, CharEnd: l.CharEnd})
		}
	}
	return out
}

// Len returns the number of entries in the map.
func (m *PointerMap) Len() int {
	if m == nil {
		return 0
	}
	switch m.Type {
	case KindPDF:
		n := 0
		for _, p := range m.Pages {
			n += len(p.Lines)
		}
		return n
	case KindDOCX:
		return len(m.Paragraphs)
	case KindTXT, KindDOC:
		return len(m.Lines)
	}
	return 0
}

// End returns the char_end of the last entry, or 0 for an empty map.
func (m *PointerMap) End() int {
	entries := m.Entries()
	if len(entries) == 0 {
		return 0
	}
	return entries[len(entries)-1].CharEnd
}

// Validate checks that entries are well formed and ordered: every range has
// CharEnd >= CharStart, and each entry starts at or after the previous end.
func (m *PointerMap) Validate() error {
	if m == nil {
		return fmt.Errorf("pointer map is nil")
	}
	switch m.Type {
	case KindPDF, KindDOCX, KindDOC, KindTXT:
	default:
		return fmt.Errorf("unknown pointer map type %q", m.Type)
	}
	prevEnd := 0
	for i, e := range m.Entries() {
		if e.CharStart < 0 || e.CharEnd < e.CharStart {
			return fmt.Errorf("entry %d has invalid range [%d, %d)", i, e.CharStart, e.CharEnd)
		}
		if e.CharStart < prevEnd {
			return fmt.Errorf("entry %d starts at %d before previous end %d", i, e.CharStart, prevEnd)
		}
		prevEnd = e.CharEnd
	}
	return nil
}

// Marshal encodes the map for persistence.
func (m *PointerMap) Marshal() (json.RawMessage, error) {
	return json.Marshal(m)
}

// Unmarshal decodes a persisted map. Unknown or missing types are rejected so
// callers can fall back to an empty resolution.
func Unmarshal(data []byte) (*PointerMap, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty pointer map")
	}
	var m PointerMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode pointer map: %w", err)
	}
	switch m.Type {
	case KindPDF, KindDOCX, KindDOC, KindTXT:
		return &m, nil
	default:
		return nil, fmt.Errorf("unknown pointer map type %q", m.Type)
	}
}
