package llm

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// ========== ParseBreakdown ==========

func TestParseBreakdown_Empty(t *testing.T) {
	got := ParseBreakdown("", "m")
	if got.TotalSections != 1 || len(got.Sections) != 1 {
		t.Fatalf("sections = %d, want 1", len(got.Sections))
	}
	if got.Sections[0].Content != "" {
		t.Errorf("content = %q, want empty", got.Sections[0].Content)
	}
	if got.Strategy != StrategyRaw {
		t.Errorf("strategy = %q, want raw", got.Strategy)
	}
}

func TestParseBreakdown_JSONObject(t *testing.T) {
	raw := "```json\n" + `{"sections":[{"title":"Intro","content":"Background"},{"title":"Results","content":"Numbers"}]}` + "\n```"
	got := ParseBreakdown(raw, "openai/gpt-4o")
	if got.Strategy != StrategyJSON {
		t.Fatalf("strategy = %q, want json", got.Strategy)
	}
	if got.TotalSections != 2 || got.Sections[1].Title != "Results" || got.Sections[1].Content != "Numbers" {
		t.Errorf("sections = %+v", got.Sections)
	}
	if got.ModelUsed != "openai/gpt-4o" || got.RawResponse != raw {
		t.Errorf("metadata = %q / %q", got.ModelUsed, got.RawResponse)
	}
}

func TestParseBreakdown_JSONArrayOfStrings(t *testing.T) {
	got := ParseBreakdown(`["Scope: what is covered", "Risks"]`, "m")
	if got.Strategy != StrategyJSON || got.TotalSections != 2 {
		t.Fatalf("got %q with %d sections", got.Strategy, got.TotalSections)
	}
	if got.Sections[0].Title != "Scope" || got.Sections[0].Content != "what is covered" {
		t.Errorf("first = %+v", got.Sections[0])
	}
}

func TestParseBreakdown_JSONWrongShapeFallsThrough(t *testing.T) {
	got := ParseBreakdown(`{"answer": "1. not a breakdown"}`, "m")
	if got.Strategy == StrategyJSON {
		t.Errorf("object without sections parsed as json: %+v", got.Sections)
	}
	if got.TotalSections < 1 {
		t.Error("no sections")
	}
}

func TestParseBreakdown_JSONString(t *testing.T) {
	got := ParseBreakdown(`"1. Alpha: a\n2. Beta: b"`, "m")
	if got.Strategy != StrategyNumbered || got.TotalSections != 2 {
		t.Errorf("got %q with %+v", got.Strategy, got.Sections)
	}
}

func TestParseBreakdown_Numbered(t *testing.T) {
	raw := `Here is the breakdown:

1. Introduction: Describes the project background.
   It spans two lines.
2) Methodology: Outlines data collection.
3. Results
Summarizes findings.`
	got := ParseBreakdown(raw, "m")
	if got.Strategy != StrategyNumbered {
		t.Fatalf("strategy = %q", got.Strategy)
	}
	want := []Section{
		{Title: "Introduction", Content: "Describes the project background.\nIt spans two lines."},
		{Title: "Methodology", Content: "Outlines data collection."},
		{Title: "Results", Content: "Summarizes findings."},
	}
	if len(got.Sections) != len(want) {
		t.Fatalf("sections = %+v", got.Sections)
	}
	for i := range want {
		if got.Sections[i].Title != want[i].Title || got.Sections[i].Content != want[i].Content {
			t.Errorf("section %d = %+v, want %+v", i, got.Sections[i], want[i])
		}
	}
}

func TestParseBreakdown_DecorationOnlyTitle(t *testing.T) {
	got := ParseBreakdown("1. **: first point\n2. Costs: flat", "m")
	if got.Strategy != StrategyNumbered || got.TotalSections != 2 {
		t.Fatalf("got %q with %+v", got.Strategy, got.Sections)
	}
	if got.Sections[0].Title != "Section 1" || got.Sections[0].Content != "first point" {
		t.Errorf("section 1 = %+v, want Section 1 / first point", got.Sections[0])
	}

	secs := parseParagraphs("## : alpha\nbeta\n\nplain paragraph")
	if len(secs) != 2 || secs[0].Title != "Section 1" || secs[0].Content != "alpha\nbeta" {
		t.Errorf("paragraphs = %+v", secs)
	}
}

func TestParseBreakdown_Bulleted(t *testing.T) {
	raw := "- Scope: the system\n• Risks: many\n→ Next: ship it\n* Extra"
	got := ParseBreakdown(raw, "m")
	if got.Strategy != StrategyBulleted || got.TotalSections != 4 {
		t.Fatalf("got %q with %+v", got.Strategy, got.Sections)
	}
	if got.Sections[2].Title != "Next" || got.Sections[3].Title != "Extra" {
		t.Errorf("sections = %+v", got.Sections)
	}
}

func TestParseBreakdown_Headers(t *testing.T) {
	raw := "Some preamble text.\n\n## Overview\nThe gist.\n\n**Conclusion:**\nDone here."
	got := ParseBreakdown(raw, "m")
	if got.Strategy != StrategyHeaders {
		t.Fatalf("strategy = %q, sections %+v", got.Strategy, got.Sections)
	}
	if got.TotalSections != 3 {
		t.Fatalf("sections = %+v", got.Sections)
	}
	if got.Sections[0].Title != "Introduction" || got.Sections[0].Content != "Some preamble text." {
		t.Errorf("preamble = %+v", got.Sections[0])
	}
	if got.Sections[1].Title != "Overview" || got.Sections[1].Content != "The gist." {
		t.Errorf("overview = %+v", got.Sections[1])
	}
	if got.Sections[2].Title != "Conclusion" || got.Sections[2].Content != "Done here." {
		t.Errorf("conclusion = %+v", got.Sections[2])
	}
}

func TestParseBreakdown_ParagraphsCapped(t *testing.T) {
	var paras []string
	for i := 0; i < 20; i++ {
		paras = append(paras, fmt.Sprintf("Paragraph number %d has some words.", i))
	}
	got := ParseBreakdown(strings.Join(paras, "\n\n"), "m")
	if got.Strategy != StrategyParagraphs {
		t.Fatalf("strategy = %q", got.Strategy)
	}
	if got.TotalSections != 15 {
		t.Errorf("sections = %d, want 15", got.TotalSections)
	}
}

func TestParseBreakdown_RawTruncated(t *testing.T) {
	raw := strings.Repeat("x", 1500)
	got := ParseBreakdown(raw, "m")
	if got.Strategy != StrategyParagraphs && got.Strategy != StrategyRaw {
		t.Fatalf("strategy = %q", got.Strategy)
	}
	if got.TotalSections != 1 {
		t.Errorf("sections = %d, want 1", got.TotalSections)
	}
}

func TestParseBreakdown_WhitespaceOnly(t *testing.T) {
	got := ParseBreakdown("  \n\n\t", "m")
	if got.Strategy != StrategyRaw || got.TotalSections != 1 || got.Sections[0].Content != "" {
		t.Errorf("got %+v", got)
	}
}

func TestFirstRunes(t *testing.T) {
	if got := firstRunes("héllo", 2); got != "hé" {
		t.Errorf("firstRunes = %q, want hé", got)
	}
}

// ========== prompts ==========

func TestDetectContentTypes(t *testing.T) {
	got := DetectContentTypes("The patient agreement: import os")
	want := []string{"code", "legal", "medical"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("DetectContentTypes = %v, want %v", got, want)
	}
	if got := DetectContentTypes("a plain note"); len(got) != 0 {
		t.Errorf("plain text = %v, want none", got)
	}
}

func TestTemplates_Order(t *testing.T) {
	ts := Templates("whereas the parties", CategoryAcademic)
	if ts[0].Name != "research_paper" {
		t.Errorf("first = %q, want research_paper", ts[0].Name)
	}
	if ts[len(ts)-1].Name != "legal_analysis" {
		t.Errorf("last = %q, want legal_analysis", ts[len(ts)-1].Name)
	}
	if !strings.Contains(BreakdownPrompt("DOC TEXT", CategoryGeneral), "DOC TEXT") {
		t.Error("breakdown prompt does not include the text")
	}
}

func TestComparePrompt(t *testing.T) {
	docs := []ComparedDocument{{Title: "a.pdf", Text: "alpha"}, {Title: "b.txt", Text: "beta"}}
	p, err := ComparePrompt(AnalysisDifferences, docs, "")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Document 1: a.pdf\nalpha", "Document 2: b.txt\nbeta", "differences"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if _, err := ComparePrompt(AnalysisCustom, docs, " "); err == nil {
		t.Error("expected error for empty custom prompt")
	}
	if _, err := ComparePrompt("vibes", docs, ""); !errors.Is(err, ErrInvalidAnalysis) {
		t.Error("expected error for unknown analysis type")
	}
}

func TestRegeneratePrompt_IncludesFeedback(t *testing.T) {
	p := RegeneratePrompt("1. A: b", "make it shorter", []Marker{{Start: 1, End: 4, Note: "unclear"}})
	for _, want := range []string{"1. A: b", "make it shorter", `"note": "unclear"`} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if !strings.Contains(RegeneratePrompt("x", "", nil), "[]") {
		t.Error("nil markers should render as []")
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := TruncateRunes("abcdef", 0); got != "abcdef" {
		t.Errorf("no limit = %q", got)
	}
	if got := TruncateRunes("ééééé", 2); !strings.HasPrefix(got, "éé\n") {
		t.Errorf("truncated = %q", got)
	}
}
