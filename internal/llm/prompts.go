package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Template is a prompt with {text} and optional {section} placeholders.
type Template struct {
	Name string
	Body string
}

// Render fills the placeholders.
func (t Template) Render(text, section string) string {
	return strings.NewReplacer("{text}", text, "{section}", section).Replace(t.Body)
}

// Content categories with their own breakdown templates.
const (
	CategoryGeneral   = "general"
	CategoryAcademic  = "academic"
	CategoryBusiness  = "business"
	CategoryTechnical = "technical"
)

var breakdownTemplates = map[string][]Template{
	CategoryGeneral: {
		{Name: "structured_breakdown", Body: `You are a content breakdown assistant. Your task is to take a full document and break it down clearly step-by-step.

Use numbered or bullet point format. Avoid AI tone. Keep it clear, short, and professional.

Example output format:
1. Introduction: Describes the project background
2. Methodology: Outlines data collection
3. Results: Summarizes findings
4. Conclusion: Provides final recommendations

Now, analyze the following text and create a structured breakdown:

{text}

Please provide a clear, structured breakdown with numbered sections:`},
		{Name: "executive_summary", Body: `Create an executive summary breakdown of this document.

Format:
1. Overview: Main purpose and scope
2. Key Points: Important findings and insights
3. Methodology: How the work was conducted
4. Results: Main outcomes and conclusions
5. Recommendations: Suggested next steps

Document:
{text}

Provide an executive summary breakdown:`},
	},
	CategoryAcademic: {
		{Name: "research_paper", Body: `Break down this academic research paper into clear sections.

Expected structure:
1. Abstract: Main research question and findings
2. Introduction: Background and objectives
3. Literature Review: Previous research
4. Methodology: Research design and methods
5. Results: Key findings and data
6. Discussion: Interpretation of results
7. Conclusion: Implications and future work

Research paper content:
{text}

Create an academic breakdown:`},
	},
	CategoryBusiness: {
		{Name: "business_report", Body: `Break down this business report into actionable sections.

Structure:
1. Executive Summary: Key findings and recommendations
2. Business Context: Market and competitive analysis
3. Financial Analysis: Key metrics and performance
4. Strategic Recommendations: Action items
5. Implementation Plan: Next steps and timeline

Business report content:
{text}

Create a business breakdown:`},
	},
	CategoryTechnical: {
		{Name: "technical_documentation", Body: `Break down this technical documentation into clear sections.

Structure:
1. Overview: Purpose and scope
2. System Architecture: Technical design
3. Implementation: Key components and processes
4. Configuration: Setup and deployment
5. Troubleshooting: Common issues and solutions
6. Maintenance: Ongoing support requirements

Technical content:
{text}

Create a technical breakdown:`},
	},
}

var specializedTemplates = map[string]Template{
	"code": {Name: "code_analysis", Body: `Analyze this code documentation and create a technical breakdown.

Structure:
1. Overview: Purpose and functionality
2. Architecture: System design and components
3. API Reference: Key functions and methods
4. Examples: Usage examples and patterns
5. Best Practices: Coding standards and guidelines
6. Deployment: Installation and configuration

Code documentation:
{text}

Create a code documentation breakdown:`},
	"legal": {Name: "legal_analysis", Body: `Break down this legal document into clear sections.

Structure:
1. Parties: Who is involved
2. Purpose: Main objective of the document
3. Terms: Key terms and conditions
4. Obligations: Responsibilities of each party
5. Timeline: Important dates and deadlines
6. Consequences: What happens if terms are violated

Legal document content:
{text}

Provide a legal document breakdown:`},
	"medical": {Name: "medical_analysis", Body: `Analyze this medical report and create a structured breakdown.

Structure:
1. Patient Information: Demographics and history
2. Assessment: Medical evaluation and findings
3. Diagnosis: Medical conditions identified
4. Treatment Plan: Recommended interventions
5. Follow-up: Monitoring and next steps
6. Recommendations: Lifestyle and preventive measures

Medical report content:
{text}

Create a medical report breakdown:`},
}

var contentIndicators = []struct {
	kind  string
	terms []string
}{
	{"code", []string{"def ", "class ", "function", "import ", "var ", "const ", "public ", "private "}},
	{"legal", []string{"whereas", "hereby", "party", "agreement", "contract", "terms", "conditions", "liability"}},
	{"medical", []string{"diagnosis", "treatment", "patient", "symptoms", "medication", "prescription", "clinical"}},
}

// DetectContentTypes returns the specialized kinds ("code", "legal",
// "medical") whose indicator terms appear in text.
func DetectContentTypes(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, ci := range contentIndicators {
		for _, term := range ci.terms {
			if strings.Contains(lower, term) {
				out = append(out, ci.kind)
				break
			}
		}
	}
	return out
}

// Templates returns the breakdown templates to use for text, most specific
// category first, then the general ones, then any specialized templates the
// content calls for.
func Templates(text, category string) []Template {
	var out []Template
	if ts, ok := breakdownTemplates[category]; ok {
		out = append(out, ts...)
	}
	if category != CategoryGeneral {
		out = append(out, breakdownTemplates[CategoryGeneral]...)
	}
	for _, kind := range DetectContentTypes(text) {
		out = append(out, specializedTemplates[kind])
	}
	return out
}

// BreakdownPrompt is the default prompt for a document's first breakdown.
func BreakdownPrompt(text, category string) string {
	ts := Templates(text, category)
	return ts[0].Render(text, "")
}

const guideTemplate = `You are an expert technical writing assistant. Transform the provided text into a clear, beginner-friendly, step-by-step guide that greatly expands the original.

What to include:
1) Overview: plain-language summary and expected outcomes.
2) Preparation checklist: required tools with official links only; prerequisites.
3) Step-by-step instructions: for each step include what to do, why it matters, and exact commands or clicks, with fenced code blocks labelled by language.
4) Examples or analogies for abstract ideas.
5) Sources: official links only; do not invent links.

Keep a logical flow and short sentences. End with a brief "Summary & Next Steps". Do not repeat these instructions or the input verbatim.

SECTION: {section}

CONTENT:
{text}
`

// GuidePrompt asks for a step-by-step guide over one section of a document.
func GuidePrompt(section, text string) string {
	return Template{Name: "step_by_step", Body: guideTemplate}.Render(text, section)
}

// ReportPrompt asks for a full written report of at least minWords words.
func ReportPrompt(text string, minWords int) string {
	if minWords <= 0 {
		minWords = 500
	}
	return fmt.Sprintf(`Write a complete report based on the content below.

Requirements:
- At least %d words.
- Clear numbered sections with concise prose.
- Image placeholders with descriptive captions where a figure would help (e.g. "Figure 1.1: Data Flow Diagram").
- Produce the final report only; do not repeat these instructions.

CONTENT:
%s
`, minWords, text)
}

// ReviewPrompt asks a reviewer model to critique and tighten a breakdown.
func ReviewPrompt(breakdown string) string {
	return fmt.Sprintf(`Review the following document breakdown for accuracy, completeness and clarity.

Return an improved breakdown using numbered sections in the form "N. Title: content". Keep anything that is already correct; fix or expand what is missing or unclear.

Breakdown:
%s
`, breakdown)
}

// Marker is a user-highlighted span of a breakdown or document.
type Marker struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text,omitempty"`
	Note  string `json:"note,omitempty"`
}

func indentJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil || string(b) == "null" {
		return "[]"
	}
	return string(b)
}

// RegeneratePrompt asks for the breakdown again, taking user feedback into
// account.
func RegeneratePrompt(original, comments string, markers []Marker) string {
	return fmt.Sprintf(`Please regenerate the following breakdown taking into account the user's comments and feedback:

Original Breakdown:
%s

User Comments:
%s

User Markers:
%s

Please improve the breakdown based on the user's feedback while maintaining the original structure and content.
`, original, comments, indentJSON(markers))
}

// CustomPrompt wraps a user instruction around an existing breakdown.
func CustomPrompt(instruction, original string, markers []Marker, comments map[string]string) string {
	if comments == nil {
		comments = map[string]string{}
	}
	return fmt.Sprintf(`%s

Original Breakdown:
%s

User Markers:
%s

User Comments:
%s

Please review and improve the breakdown based on the user's feedback.
`, instruction, original, indentJSON(markers), indentJSON(comments))
}

// Comparison analysis types.
const (
	AnalysisSimilarity  = "similarity"
	AnalysisDifferences = "differences"
	AnalysisSummary     = "summary"
	AnalysisKeyPoints   = "key_points"
	AnalysisCustom      = "custom"
)

// ErrInvalidAnalysis is returned by ComparePrompt for an unknown analysis type
// or a custom analysis without instructions.
var ErrInvalidAnalysis = errors.New("invalid comparison request")

// ComparedDocument is one input to a comparison.
type ComparedDocument struct {
	Title string
	Text  string
}

var comparisonFocus = map[string]struct{ lead, focus, closing string }{
	AnalysisSimilarity: {
		"Please analyze the similarities between the following documents:",
		"- Common themes and topics\n- Similar arguments or points\n- Shared methodologies or approaches\n- Overlapping conclusions or recommendations",
		"Provide a structured analysis with clear sections.",
	},
	AnalysisDifferences: {
		"Please analyze the differences between the following documents:",
		"- Unique arguments or perspectives\n- Different methodologies or approaches\n- Conflicting conclusions or recommendations\n- Distinct themes or topics",
		"Provide a structured analysis with clear sections.",
	},
	AnalysisSummary: {
		"Please provide a comprehensive summary comparison of the following documents:",
		"- Key points from each document\n- Overall themes and patterns\n- Main conclusions or recommendations\n- Comparative insights",
		"Provide a structured summary with clear sections.",
	},
	AnalysisKeyPoints: {
		"Please extract and compare the key points from the following documents:",
		"- Main arguments or claims\n- Key findings or results\n- Important recommendations\n- Critical insights",
		"Provide a structured comparison with clear sections.",
	},
}

// ComparePrompt builds a multi-document analysis prompt. Custom analyses need
// a non-empty custom instruction.
func ComparePrompt(analysisType string, docs []ComparedDocument, custom string) (string, error) {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = fmt.Sprintf("Document %d: %s\n%s", i+1, d.Title, d.Text)
	}
	joined := strings.Join(parts, "\n\n")

	if analysisType == AnalysisCustom {
		if strings.TrimSpace(custom) == "" {
			return "", fmt.Errorf("%w: custom prompt is required for custom analysis", ErrInvalidAnalysis)
		}
		return fmt.Sprintf("%s\n\nDocuments to analyze:\n\n%s\n", custom, joined), nil
	}
	f, ok := comparisonFocus[analysisType]
	if !ok {
		return "", fmt.Errorf("%w: unknown analysis type %q", ErrInvalidAnalysis, analysisType)
	}
	return fmt.Sprintf("%s\n\n%s\n\nFocus on:\n%s\n\n%s\n", f.lead, joined, f.focus, f.closing), nil
}

// TruncateRunes cuts text to at most max runes, marking the cut. Zero or
// negative max leaves text alone.
func TruncateRunes(text string, max int) string {
	if max <= 0 {
		return text
	}
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return string(r[:max]) + "\n\n[... document truncated ...]"
}
