package breakdown

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"docbreak/internal/citation"
	"docbreak/internal/extractor"
	"docbreak/internal/fallback"
	"docbreak/internal/llm"
	"docbreak/internal/models"
	"docbreak/internal/pointermap"
	"docbreak/internal/store"
)

const sampleText = "Revenue grew strongly\nCosts were flat"

// fakeExtractor returns a fixed two-line txt document.
type fakeExtractor struct {
	err error
}

func (f fakeExtractor) Extract(_ context.Context, path, fileType string) (*extractor.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &extractor.Document{
		Name:     filepath.Base(path),
		FileType: fileType,
		Text:     sampleText,
		PointerMap: &pointermap.PointerMap{Type: pointermap.KindTXT, Lines: []pointermap.Line{
			{Line: 1, CharStart: 0, CharEnd: 21},
			{Line: 2, CharStart: 22, CharEnd: 37},
		}},
	}, nil
}

// scriptedCaller answers per model and records every call.
type scriptedCaller struct {
	mu      sync.Mutex
	answers map[string]string
	errs    map[string]error
	calls   []string
	prompts []string
}

func (c *scriptedCaller) Call(_ context.Context, model, prompt string, _ time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, model)
	c.prompts = append(c.prompts, prompt)
	if err := c.errs[model]; err != nil {
		return "", err
	}
	return c.answers[model], nil
}

func testTiers() models.Tiers {
	return models.Tiers{
		Primary: map[models.Task][]string{
			models.TaskBreakdown:  {"m/a", "m/b"},
			models.TaskReviewer:   {"v/a"},
			models.TaskFinalizer:  {"f/a"},
			models.TaskReanalyzer: {"r/a"},
		},
		Secondary: map[models.Task][]string{},
		Fallback:  map[models.Task][]string{},
		Legacy:    map[models.Task]string{models.TaskBreakdown: "m/legacy"},
	}
}

const goodAnswer = "1. Revenue: Revenue grew strongly this year\n2. Costs: Costs were flat"

func newTestService(t *testing.T, ext Extractor, caller *scriptedCaller) (*Service, *store.Store, *fallback.Orchestrator) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	reg := models.New(testTiers()).WithEnv(func(string) string { return "" })
	orch := fallback.New(reg, nil, nil)
	loc := citation.New(nil)
	t.Cleanup(loc.Close)
	svc := NewService(Config{Timeout: time.Second, MaxRetries: 3}, ext, caller, orch, st, loc, nil)
	return svc, st, orch
}

func newDoc(t *testing.T, st *store.Store, name string) *store.Document {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(sampleText), 0644); err != nil {
		t.Fatal(err)
	}
	doc, err := st.CreateDocument(name, "txt", path)
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	return doc
}

// ========== Process ==========

func TestProcess_Success(t *testing.T) {
	caller := &scriptedCaller{answers: map[string]string{"m/a": goodAnswer}}
	svc, st, _ := newTestService(t, fakeExtractor{}, caller)
	doc := newDoc(t, st, "a.txt")

	b, err := svc.Process(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if b.ModelUsed != "m/a" || b.Strategy != llm.StrategyNumbered || b.TotalSections != 2 {
		t.Errorf("breakdown = %+v", b.Result)
	}
	if b.Sections[1].Source == nil || b.Sections[1].Source.Line != 2 {
		t.Errorf("costs source = %+v, want line 2", b.Sections[1].Source)
	}

	got, _ := st.GetDocument(doc.ID)
	if got.Status != store.StatusCompleted {
		t.Errorf("status = %q, want %q", got.Status, store.StatusCompleted)
	}
	if got.BreakdownID != b.ID {
		t.Errorf("breakdown id = %q, want %q", got.BreakdownID, b.ID)
	}
	c, err := st.LoadContent(doc.ID)
	if err != nil || c.Text != sampleText {
		t.Errorf("content = %+v, %v", c, err)
	}
}

func TestProcess_FallsBackOnEmptyAndMalformed(t *testing.T) {
	caller := &scriptedCaller{
		answers: map[string]string{"m/a": "   ", "m/legacy": goodAnswer},
		errs:    map[string]error{"m/b": &llm.MalformedResponseError{Model: "m/b", Reason: "no choices"}},
	}
	svc, st, orch := newTestService(t, fakeExtractor{}, caller)
	doc := newDoc(t, st, "a.txt")

	b, err := svc.Process(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if b.ModelUsed != "m/legacy" {
		t.Errorf("model = %q, want m/legacy", b.ModelUsed)
	}
	if got := strings.Join(caller.calls, ","); got != "m/a,m/b,m/legacy" {
		t.Errorf("calls = %q", got)
	}
	failed := orch.State().Failed(models.TaskBreakdown)
	if len(failed) != 2 {
		t.Errorf("failed = %v, want m/a and m/b", failed)
	}
}

func TestProcess_AllModelsFail(t *testing.T) {
	boom := errors.New("boom")
	caller := &scriptedCaller{errs: map[string]error{"m/a": boom, "m/b": boom, "m/legacy": boom}}
	svc, st, _ := newTestService(t, fakeExtractor{}, caller)
	doc := newDoc(t, st, "a.txt")

	_, err := svc.Process(context.Background(), doc.ID)
	var ee *fallback.ExhaustedError
	if !errors.As(err, &ee) {
		t.Fatalf("err = %v, want ExhaustedError", err)
	}
	if len(ee.Tried) != 3 {
		t.Errorf("tried = %v, want 3 models", ee.Tried)
	}
	got, _ := st.GetDocument(doc.ID)
	if got.Status != store.StatusFailed || got.Error == "" {
		t.Errorf("document = %+v, want failed with reason", got)
	}
}

func TestProcess_ExtractionFailsBeforeRemoteCall(t *testing.T) {
	caller := &scriptedCaller{answers: map[string]string{"m/a": goodAnswer}}
	svc, st, _ := newTestService(t, fakeExtractor{err: extractor.ErrExtractionFailed}, caller)
	doc := newDoc(t, st, "a.txt")

	if _, err := svc.Process(context.Background(), doc.ID); !errors.Is(err, extractor.ErrExtractionFailed) {
		t.Fatalf("err = %v, want ErrExtractionFailed", err)
	}
	if len(caller.calls) != 0 {
		t.Errorf("remote calls = %v, want none", caller.calls)
	}
	got, _ := st.GetDocument(doc.ID)
	if got.Status != store.StatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
}

func TestProcess_UsesStoredContent(t *testing.T) {
	caller := &scriptedCaller{answers: map[string]string{"m/a": goodAnswer}}
	svc, st, _ := newTestService(t, fakeExtractor{err: errors.New("should not extract")}, caller)
	doc := newDoc(t, st, "member.txt")
	pm := &pointermap.PointerMap{Type: pointermap.KindTXT, Lines: []pointermap.Line{{Line: 1, CharStart: 0, CharEnd: 21}}}
	if err := st.SaveContent(doc.ID, "Revenue grew strongly", pm); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Process(context.Background(), doc.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
}

func TestGenerate_ContextCancelled(t *testing.T) {
	caller := &scriptedCaller{answers: map[string]string{"m/a": goodAnswer}}
	svc, _, _ := newTestService(t, fakeExtractor{}, caller)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := svc.Generate(ctx, models.TaskBreakdown, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// ========== Follow-ups ==========

func processed(t *testing.T, svc *Service, st *store.Store, name string) *store.Breakdown {
	t.Helper()
	doc := newDoc(t, st, name)
	b, err := svc.Process(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	return b
}

func TestRegenerate(t *testing.T) {
	caller := &scriptedCaller{answers: map[string]string{"m/a": goodAnswer, "r/a": "1. Revenue: rewritten"}}
	svc, st, _ := newTestService(t, fakeExtractor{}, caller)
	orig := processed(t, svc, st, "a.txt")

	b, err := svc.Regenerate(context.Background(), orig.ID, "more detail please", []llm.Marker{{Start: 0, End: 7, Text: "Revenue"}})
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if b.Kind != store.KindRegenerated || b.ParentID != orig.ID || b.ModelUsed != "r/a" {
		t.Errorf("breakdown = %+v", b)
	}
	prompt := caller.prompts[len(caller.prompts)-1]
	if !strings.Contains(prompt, "more detail please") || !strings.Contains(prompt, "1. Revenue: Revenue grew strongly this year") {
		t.Errorf("prompt missing comments or original:\n%s", prompt)
	}
}

func TestCustomPrompt_RequiresInstruction(t *testing.T) {
	caller := &scriptedCaller{answers: map[string]string{"m/a": goodAnswer}}
	svc, st, _ := newTestService(t, fakeExtractor{}, caller)
	orig := processed(t, svc, st, "a.txt")
	if _, err := svc.CustomPrompt(context.Background(), orig.ID, "  ", nil, nil); err == nil {
		t.Error("expected error for blank instruction")
	}
}

func TestGuideReportReview_UseTaskModels(t *testing.T) {
	caller := &scriptedCaller{answers: map[string]string{
		"m/a": goodAnswer,
		"f/a": "1. Step: do it",
		"v/a": "1. Revenue: reviewed",
	}}
	svc, st, _ := newTestService(t, fakeExtractor{}, caller)
	orig := processed(t, svc, st, "a.txt")
	docID := orig.DocumentIDs[0]

	g, err := svc.Guide(context.Background(), docID, "")
	if err != nil || g.Kind != store.KindGuide || g.ModelUsed != "f/a" {
		t.Errorf("Guide = %+v, %v", g, err)
	}
	r, err := svc.Report(context.Background(), docID)
	if err != nil || r.Kind != store.KindReport || r.ModelUsed != "f/a" {
		t.Errorf("Report = %+v, %v", r, err)
	}
	v, err := svc.Review(context.Background(), orig.ID)
	if err != nil || v.Kind != store.KindReview || v.ModelUsed != "v/a" {
		t.Errorf("Review = %+v, %v", v, err)
	}
}

// ========== Compare ==========

func TestCompare(t *testing.T) {
	caller := &scriptedCaller{answers: map[string]string{"m/a": goodAnswer}}
	svc, st, _ := newTestService(t, fakeExtractor{}, caller)
	a := processed(t, svc, st, "a.txt")
	b := processed(t, svc, st, "b.txt")

	res, err := svc.Compare(context.Background(), []string{a.DocumentIDs[0], b.DocumentIDs[0]}, llm.AnalysisSimilarity, "")
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if res.Kind != store.KindComparison || len(res.DocumentIDs) != 2 {
		t.Errorf("comparison = %+v", res)
	}
	prompt := caller.prompts[len(caller.prompts)-1]
	if !strings.Contains(prompt, "Document 1: a.txt") || !strings.Contains(prompt, "Document 2: b.txt") {
		t.Errorf("prompt missing documents:\n%s", prompt)
	}
}

func TestCompare_TooFewDocuments(t *testing.T) {
	caller := &scriptedCaller{answers: map[string]string{"m/a": goodAnswer}}
	svc, st, _ := newTestService(t, fakeExtractor{}, caller)
	a := processed(t, svc, st, "a.txt")
	pending := newDoc(t, st, "pending.txt")

	_, err := svc.Compare(context.Background(), []string{a.DocumentIDs[0], pending.ID}, llm.AnalysisSummary, "")
	if !errors.Is(err, ErrTooFewDocuments) {
		t.Errorf("err = %v, want ErrTooFewDocuments", err)
	}
}

func TestBreakdownText(t *testing.T) {
	b := &store.Breakdown{Result: llm.Result{Sections: []llm.Section{{Title: "A", Content: "x"}, {Title: "B", Content: "y"}}}}
	if got, want := breakdownText(b), "1. A: x\n\n2. B: y"; got != want {
		t.Errorf("got = %q, want %q", got, want)
	}
	raw := &store.Breakdown{Result: llm.Result{RawResponse: "raw"}}
	if got := breakdownText(raw); got != "raw" {
		t.Errorf("got = %q, want %q", got, "raw")
	}
}
