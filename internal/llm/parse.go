package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"docbreak/internal/annotation"
)

// Parse strategies, in the order they are tried.
const (
	StrategyJSON       = "json"
	StrategyNumbered   = "numbered"
	StrategyBulleted   = "bulleted"
	StrategyHeaders    = "headers"
	StrategyParagraphs = "paragraphs"
	StrategyRaw        = "raw"
)

const (
	maxParagraphSections = 15
	rawSectionRunes      = 1000
	maxHeaderLineRunes   = 100
)

// Section is one titled part of a breakdown. Source is set when the section
// could be anchored to a location in the original document.
type Section struct {
	Title   string               `json:"title"`
	Content string               `json:"content"`
	Source  *annotation.Location `json:"source,omitempty"`
}

// Result is a parsed model answer. It always has at least one section.
type Result struct {
	Sections      []Section `json:"sections"`
	RawResponse   string    `json:"raw_response"`
	ModelUsed     string    `json:"model_used"`
	TotalSections int       `json:"total_sections"`
	Strategy      string    `json:"strategy"`
}

var (
	numberedRe = regexp.MustCompile(`(?m)^[ \t]*\d+[.)][ \t]+`)
	bulletRe   = regexp.MustCompile(`(?m)^[ \t]*(?:[-*•→])[ \t]+`)
	fenceRe    = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\n(.*?)\n?```\\s*$")
	blankRe    = regexp.MustCompile(`\n[ \t]*\n`)
)

var headerKeywords = []string{
	"overview", "introduction", "summary", "background", "objectives", "scope",
	"methodology", "methods", "results", "findings", "analysis", "discussion",
	"key points", "recommendations", "next steps", "conclusion",
}

// ParseBreakdown turns free-form model output into sections. It never fails:
// each strategy is tried in turn and the last one always produces a section.
func ParseBreakdown(raw, model string) Result {
	sections, strategy := parseSections(raw, true)
	return Result{
		Sections:      sections,
		RawResponse:   raw,
		ModelUsed:     model,
		TotalSections: len(sections),
		Strategy:      strategy,
	}
}

func parseSections(raw string, allowJSON bool) ([]Section, string) {
	if allowJSON {
		if secs, text, ok := parseJSON(raw); ok {
			if secs != nil {
				return secs, StrategyJSON
			}
			// A JSON string: parse what it says instead.
			return parseSections(text, false)
		}
	}
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	if secs := splitAtMarkers(text, numberedRe); len(secs) > 0 {
		return secs, StrategyNumbered
	}
	if secs := splitAtMarkers(text, bulletRe); len(secs) > 0 {
		return secs, StrategyBulleted
	}
	if secs := parseHeaders(text); len(secs) > 0 {
		return secs, StrategyHeaders
	}
	if secs := parseParagraphs(text); len(secs) > 0 {
		return secs, StrategyParagraphs
	}
	return []Section{{Title: "Breakdown", Content: firstRunes(strings.TrimSpace(raw), rawSectionRunes)}}, StrategyRaw
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// parseJSON handles answers that are JSON. For a JSON string it returns the
// decoded text with nil sections.
func parseJSON(raw string) ([]Section, string, bool) {
	body := stripFences(raw)
	if body == "" || !json.Valid([]byte(body)) {
		return nil, "", false
	}
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil, "", false
	}
	switch t := v.(type) {
	case string:
		return nil, t, true
	case map[string]any:
		if breakdownObjectSchema.Validate(t) != nil {
			return nil, "", false
		}
		secs := itemsToSections(t["sections"].([]any))
		return secs, "", len(secs) > 0
	case []any:
		if breakdownArraySchema.Validate(t) != nil {
			return nil, "", false
		}
		secs := itemsToSections(t)
		return secs, "", len(secs) > 0
	}
	return nil, "", false
}

func itemsToSections(items []any) []Section {
	var out []Section
	for _, it := range items {
		var s Section
		switch v := it.(type) {
		case string:
			s = splitTitle(v)
		case map[string]any:
			s.Title, _ = v["title"].(string)
			s.Content, _ = v["content"].(string)
			s.Title = strings.TrimSpace(s.Title)
			s.Content = strings.TrimSpace(s.Content)
		}
		if s.Title == "" && s.Content == "" {
			continue
		}
		if s.Title == "" {
			s.Title = fmt.Sprintf("Section %d", len(out)+1)
		}
		out = append(out, s)
	}
	return out
}

// splitAtMarkers cuts text at every line that starts with a list marker;
// each block runs until the next marker. Text before the first marker is
// dropped.
func splitAtMarkers(text string, marker *regexp.Regexp) []Section {
	locs := marker.FindAllStringIndex(text, -1)
	var out []Section
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		block := strings.TrimSpace(text[loc[1]:end])
		if block == "" {
			continue
		}
		s := splitTitle(block)
		if s.Title == "" {
			s.Title = fmt.Sprintf("Section %d", len(out)+1)
		}
		out = append(out, s)
	}
	return out
}

// splitTitle uses "Title: content" when the first line has a colon, else the
// first line as title and the rest as content.
func splitTitle(block string) Section {
	block = strings.TrimSpace(block)
	first, rest, _ := strings.Cut(block, "\n")
	if title, content, ok := strings.Cut(first, ":"); ok && strings.TrimSpace(title) != "" {
		content = strings.TrimSpace(content)
		if rest = strings.TrimSpace(rest); rest != "" {
			if content != "" {
				content += "\n"
			}
			content += rest
		}
		return Section{Title: cleanTitle(title), Content: content}
	}
	return Section{Title: cleanTitle(first), Content: strings.TrimSpace(rest)}
}

func cleanTitle(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "*#_ "))
}

func isHeaderLine(line string) bool {
	l := strings.TrimSpace(line)
	if l == "" || len([]rune(l)) > maxHeaderLineRunes {
		return false
	}
	lower := strings.ToLower(l)
	for _, kw := range headerKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func parseHeaders(text string) []Section {
	var (
		out      []Section
		cur      *Section
		preamble []string
		body     []string
	)
	flush := func() {
		if cur != nil {
			cur.Content = strings.TrimSpace(strings.Join(body, "\n"))
			out = append(out, *cur)
		}
		body = nil
	}
	for _, line := range strings.Split(text, "\n") {
		if isHeaderLine(line) {
			flush()
			cur = &Section{Title: cleanTitle(strings.TrimSuffix(cleanTitle(line), ":"))}
			continue
		}
		if cur == nil {
			preamble = append(preamble, line)
			continue
		}
		body = append(body, line)
	}
	flush()
	if len(out) == 0 {
		return nil
	}
	if intro := strings.TrimSpace(strings.Join(preamble, "\n")); intro != "" {
		out = append([]Section{{Title: "Introduction", Content: intro}}, out...)
	}
	return out
}

func parseParagraphs(text string) []Section {
	var out []Section
	for _, p := range blankRe.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		s := splitTitle(p)
		if s.Content == "" {
			s = Section{Title: fmt.Sprintf("Section %d", len(out)+1), Content: p}
		} else if s.Title == "" {
			s.Title = fmt.Sprintf("Section %d", len(out)+1)
		}
		out = append(out, s)
		if len(out) == maxParagraphSections {
			break
		}
	}
	return out
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
