package annotation

import (
	"encoding/json"
	"sort"

	"docbreak/internal/pointermap"
)

// Location is where an offset of extracted text came from in the original
// document. The zero value means "unknown" and encodes as {}.
type Location struct {
	Type      pointermap.Kind `json:"type,omitempty"`
	Page      int             `json:"page,omitempty"`
	Line      int             `json:"line,omitempty"`
	Paragraph int             `json:"paragraph,omitempty"`
}

// IsZero reports whether the location could not be resolved.
func (l Location) IsZero() bool {
	return l.Type == ""
}

// Resolve maps the character range [start, end) of extracted text to the map
// entry containing start. It never fails: a nil or malformed map, a reversed
// range, or an offset that falls between entries or past the text all yield
// an empty Location, so a stale map cannot break the caller.
func Resolve(pm *pointermap.PointerMap, start, end int) Location {
	if pm == nil || start < 0 || end < start {
		return Location{}
	}
	entries := pm.Entries()
	if len(entries) == 0 {
		return Location{}
	}

	idx := -1
	if pm.Validate() == nil {
		// CharEnd is non-decreasing when the map is valid.
		i := sort.Search(len(entries), func(i int) bool { return entries[i].CharEnd > start })
		if i < len(entries) && entries[i].CharStart <= start {
			idx = i
		}
	} else {
		for i, e := range entries {
			if e.CharStart <= start && start < e.CharEnd {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return Location{}
	}

	e := entries[idx]
	switch pm.Type {
	case pointermap.KindPDF:
		return Location{Type: pointermap.KindPDF, Page: e.Page, Line: e.Number}
	case pointermap.KindDOCX:
		return Location{Type: pointermap.KindDOCX, Paragraph: e.Number}
	case pointermap.KindTXT, pointermap.KindDOC:
		return Location{Type: pm.Type, Line: e.Number}
	}
	return Location{}
}

// ResolveRaw resolves against a persisted map. Undecodable data resolves to
// an empty Location.
func ResolveRaw(raw json.RawMessage, start, end int) Location {
	pm, err := pointermap.Unmarshal(raw)
	if err != nil {
		return Location{}
	}
	return Resolve(pm, start, end)
}

// ResolveAnnotation resolves an annotation's range.
func ResolveAnnotation(pm *pointermap.PointerMap, a Annotation) Location {
	return Resolve(pm, a.StartOffset, a.EndOffset)
}
