package citation

import (
	"errors"
	"testing"

	"docbreak/internal/llm"
	"docbreak/internal/pointermap"
)

// "Revenue grew strongly\nCosts were flat\nHiring paused in March"
func sampleDoc() (string, *pointermap.PointerMap) {
	text := "Revenue grew strongly\nCosts were flat\nHiring paused in March"
	pm := &pointermap.PointerMap{Type: pointermap.KindTXT, Lines: []pointermap.Line{
		{Line: 1, CharStart: 0, CharEnd: 21},
		{Line: 2, CharStart: 22, CharEnd: 37},
		{Line: 3, CharStart: 38, CharEnd: 60},
	}}
	return text, pm
}

func TestLocate(t *testing.T) {
	l := New(nil)
	defer l.Close()
	text, pm := sampleDoc()
	if err := l.Index("d1", text, pm); err != nil {
		t.Fatalf("Index: %v", err)
	}

	hits, err := l.Locate("d1", "hiring", 3)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %+v, want 1", hits)
	}
	h := hits[0]
	if h.CharStart != 38 || h.CharEnd != 60 || h.Location.Line != 3 {
		t.Errorf("hit = %+v, want line 3 [38,60)", h)
	}
	if h.Snippet != "Hiring paused in March" {
		t.Errorf("snippet = %q", h.Snippet)
	}
}

func TestLocate_Errors(t *testing.T) {
	l := New(nil)
	if _, err := l.Locate("missing", "x", 1); !errors.Is(err, ErrNotIndexed) {
		t.Errorf("err = %v, want ErrNotIndexed", err)
	}
	text, pm := sampleDoc()
	_ = l.Index("d1", text, pm)
	if hits, err := l.Locate("d1", "   ", 1); err != nil || hits != nil {
		t.Errorf("blank query = %v, %v", hits, err)
	}
	l.Remove("d1")
	if _, err := l.Locate("d1", "revenue", 1); !errors.Is(err, ErrNotIndexed) {
		t.Errorf("after Remove err = %v, want ErrNotIndexed", err)
	}
}

func TestCite(t *testing.T) {
	l := New(nil)
	defer l.Close()
	text, pm := sampleDoc()
	_ = l.Index("d1", text, pm)

	secs := []llm.Section{
		{Title: "Costs", Content: "They were flat."},
		{Title: "Weather", Content: "Sunny."},
	}
	if err := l.Cite("d1", secs); err != nil {
		t.Fatalf("Cite: %v", err)
	}
	if secs[0].Source == nil || secs[0].Source.Line != 2 {
		t.Errorf("costs source = %+v, want line 2", secs[0].Source)
	}
	if secs[1].Source != nil {
		t.Errorf("weather source = %+v, want nil", secs[1].Source)
	}
}

func TestParseEntryID(t *testing.T) {
	if s, e, ok := parseEntryID("12-40"); !ok || s != 12 || e != 40 {
		t.Errorf("parseEntryID = %d,%d,%v", s, e, ok)
	}
	if _, _, ok := parseEntryID("garbage"); ok {
		t.Error("expected failure")
	}
}

func TestLocator_EvictsLeastRecentlyUsed(t *testing.T) {
	l := New(nil).WithLimit(2)
	defer l.Close()
	text, pm := sampleDoc()
	_ = l.Index("a", text, pm)
	_ = l.Index("b", text, pm)
	// touch a so b becomes the oldest
	if _, err := l.Locate("a", "revenue", 1); err != nil {
		t.Fatalf("Locate a: %v", err)
	}
	_ = l.Index("c", text, pm)

	if l.Len() != 2 {
		t.Errorf("len = %d, want 2", l.Len())
	}
	if _, err := l.Locate("b", "revenue", 1); !errors.Is(err, ErrNotIndexed) {
		t.Errorf("b err = %v, want ErrNotIndexed", err)
	}
	for _, id := range []string{"a", "c"} {
		if hits, err := l.Locate(id, "revenue", 1); err != nil || len(hits) != 1 {
			t.Errorf("%s hits = %v, %v", id, hits, err)
		}
	}
}

func TestIndex_Replaces(t *testing.T) {
	l := New(nil)
	defer l.Close()
	text, pm := sampleDoc()
	_ = l.Index("a", text, pm)
	_ = l.Index("a", "Completely different\nwords here", &pointermap.PointerMap{Type: pointermap.KindTXT, Lines: []pointermap.Line{
		{Line: 1, CharStart: 0, CharEnd: 20},
		{Line: 2, CharStart: 21, CharEnd: 31},
	}})
	if l.Len() != 1 {
		t.Errorf("len = %d, want 1", l.Len())
	}
	if hits, _ := l.Locate("a", "revenue", 1); len(hits) != 0 {
		t.Errorf("stale hits = %+v", hits)
	}
}
