// Package breakdown runs documents through extraction and the model fallback
// chain and stores the parsed results.
package breakdown

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docbreak/internal/citation"
	"docbreak/internal/extractor"
	"docbreak/internal/fallback"
	"docbreak/internal/llm"
	"docbreak/internal/models"
	"docbreak/internal/store"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrTooFewDocuments is returned by Compare when fewer than two of the given
// documents have extracted text.
var ErrTooFewDocuments = errors.New("comparison needs at least two documents with text")

// Extractor is the part of extractor.Extractor the service needs.
type Extractor interface {
	Extract(ctx context.Context, path, fileType string) (*extractor.Document, error)
}

// Caller sends one prompt to one model.
type Caller interface {
	Call(ctx context.Context, model, prompt string, timeout time.Duration) (string, error)
}

// Config tunes remote calls.
type Config struct {
	Timeout        time.Duration // per remote call, default 120s
	MaxRetries     int           // models tried per task, default 3
	MaxPromptChars int           // document text cap per prompt, 0 = no cap
	ReportMinWords int           // default 500
}

// Service owns the processing flow for documents and their derived results.
type Service struct {
	cfg     Config
	ext     Extractor
	client  Caller
	orch    *fallback.Orchestrator
	store   *store.Store
	locator *citation.Locator
	log     *zap.Logger
}

// NewService wires a Service. locator may be nil, in which case sections are
// stored without source locations.
func NewService(cfg Config, ext Extractor, client Caller, orch *fallback.Orchestrator, st *store.Store, locator *citation.Locator, log *zap.Logger) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.ReportMinWords <= 0 {
		cfg.ReportMinWords = 500
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{cfg: cfg, ext: ext, client: client, orch: orch, store: st, locator: locator, log: log}
}

type generation struct {
	text  string
	model string
}

// Generate runs prompt through the task's fallback chain. Blank or malformed
// answers count as failures so the next model is tried.
func (s *Service) Generate(ctx context.Context, task models.Task, prompt string) (text, model string, err error) {
	g, err := fallback.Execute(ctx, s.orch, task, "", s.cfg.MaxRetries,
		func(ctx context.Context, model string) (generation, error) {
			out, err := s.client.Call(ctx, model, prompt, s.cfg.Timeout)
			if err != nil {
				var me *llm.MalformedResponseError
				if errors.As(err, &me) {
					return generation{}, eris.Wrapf(llm.ErrEmptyResponse, "%s: %s", model, me.Reason)
				}
				return generation{}, err
			}
			if strings.TrimSpace(out) == "" {
				return generation{}, eris.Wrapf(llm.ErrEmptyResponse, "model %s", model)
			}
			return generation{text: out, model: model}, nil
		})
	if err != nil {
		return "", "", err
	}
	return g.text, g.model, nil
}

// Process extracts docID's file, generates its breakdown and stores both.
// The document moves from uploaded through processing to completed or
// failed; extraction finishes before any remote call starts.
func (s *Service) Process(ctx context.Context, docID string) (*store.Breakdown, error) {
	doc, err := s.store.GetDocument(docID)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetStatus(docID, store.StatusProcessing, ""); err != nil {
		return nil, err
	}
	start := time.Now()
	log := s.log.With(zap.String("document_id", docID), zap.String("name", doc.Name))
	log.Info("process.start", zap.String("type", doc.FileType))

	b, err := s.process(ctx, doc)
	if err != nil {
		log.Error("process.failed", zap.Error(err))
		if serr := s.store.SetStatus(docID, store.StatusFailed, err.Error()); serr != nil {
			log.Warn("process.status_write_failed", zap.Error(serr))
		}
		return nil, err
	}
	if _, err := s.store.UpdateDocument(docID, func(d *store.Document) {
		d.Status = store.StatusCompleted
		d.Error = ""
		d.BreakdownID = b.ID
	}); err != nil {
		return nil, err
	}
	log.Info("process.ok",
		zap.String("breakdown_id", b.ID),
		zap.String("model", b.ModelUsed),
		zap.Int("sections", b.TotalSections),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return b, nil
}

func (s *Service) process(ctx context.Context, doc *store.Document) (*store.Breakdown, error) {
	ex, err := s.content(ctx, doc)
	if err != nil {
		return nil, err
	}
	if s.locator != nil {
		if err := s.locator.Index(doc.ID, ex.Text, ex.PointerMap); err != nil {
			s.log.Warn("citation.index_failed", zap.String("document_id", doc.ID), zap.Error(err))
		}
	}

	category := doc.Category
	if category == "" {
		category = llm.CategoryGeneral
	}
	prompt := llm.BreakdownPrompt(llm.TruncateRunes(ex.Text, s.cfg.MaxPromptChars), category)
	raw, model, err := s.Generate(ctx, models.TaskBreakdown, prompt)
	if err != nil {
		return nil, err
	}
	return s.saveResult([]string{doc.ID}, store.KindBreakdown, "", raw, model)
}

// content returns the document's stored text, extracting and storing it
// first if needed. Bundle members arrive with their content already stored.
func (s *Service) content(ctx context.Context, doc *store.Document) (*store.Content, error) {
	c, err := s.store.LoadContent(doc.ID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	ex, err := s.ext.Extract(ctx, doc.Path, doc.FileType)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveContent(doc.ID, ex.Text, ex.PointerMap); err != nil {
		return nil, err
	}
	return &store.Content{DocumentID: doc.ID, Text: ex.Text, PointerMap: ex.PointerMap}, nil
}

// saveResult parses raw, anchors sections to the first document when
// possible and stores the breakdown.
func (s *Service) saveResult(docIDs []string, kind, parentID, raw, model string) (*store.Breakdown, error) {
	res := llm.ParseBreakdown(raw, model)
	if s.locator != nil && len(docIDs) == 1 {
		if err := s.cite(docIDs[0], res.Sections); err != nil {
			s.log.Warn("citation.cite_failed", zap.String("document_id", docIDs[0]), zap.Error(err))
		}
	}
	b := &store.Breakdown{DocumentIDs: docIDs, Kind: kind, ParentID: parentID, Result: res}
	if err := s.store.SaveBreakdown(b); err != nil {
		return nil, eris.Wrap(err, "save breakdown")
	}
	return b, nil
}

// cite indexes docID lazily, for instance after a restart.
func (s *Service) cite(docID string, sections []llm.Section) error {
	err := s.locator.Cite(docID, sections)
	if !errors.Is(err, citation.ErrNotIndexed) {
		return err
	}
	c, err := s.store.LoadContent(docID)
	if err != nil {
		return err
	}
	if err := s.locator.Index(docID, c.Text, c.PointerMap); err != nil {
		return err
	}
	return s.locator.Cite(docID, sections)
}

// Regenerate rewrites a breakdown taking the user's comments and highlighted
// markers into account.
func (s *Service) Regenerate(ctx context.Context, breakdownID, comments string, markers []llm.Marker) (*store.Breakdown, error) {
	orig, err := s.store.GetBreakdown(breakdownID)
	if err != nil {
		return nil, err
	}
	prompt := llm.RegeneratePrompt(breakdownText(orig), comments, markers)
	raw, model, err := s.Generate(ctx, models.TaskReanalyzer, prompt)
	if err != nil {
		return nil, err
	}
	return s.saveResult(orig.DocumentIDs, store.KindRegenerated, orig.ID, raw, model)
}

// CustomPrompt applies a free-form instruction to an existing breakdown.
func (s *Service) CustomPrompt(ctx context.Context, breakdownID, instruction string, markers []llm.Marker, comments map[string]string) (*store.Breakdown, error) {
	if strings.TrimSpace(instruction) == "" {
		return nil, eris.New("instruction is required")
	}
	orig, err := s.store.GetBreakdown(breakdownID)
	if err != nil {
		return nil, err
	}
	prompt := llm.CustomPrompt(instruction, breakdownText(orig), markers, comments)
	raw, model, err := s.Generate(ctx, models.TaskReanalyzer, prompt)
	if err != nil {
		return nil, err
	}
	return s.saveResult(orig.DocumentIDs, store.KindCustom, orig.ID, raw, model)
}

// Review has the reviewer task critique and tighten a breakdown.
func (s *Service) Review(ctx context.Context, breakdownID string) (*store.Breakdown, error) {
	orig, err := s.store.GetBreakdown(breakdownID)
	if err != nil {
		return nil, err
	}
	raw, model, err := s.Generate(ctx, models.TaskReviewer, llm.ReviewPrompt(breakdownText(orig)))
	if err != nil {
		return nil, err
	}
	return s.saveResult(orig.DocumentIDs, store.KindReview, orig.ID, raw, model)
}

// Guide turns one section of a document into a step-by-step guide. An empty
// section uses the whole document.
func (s *Service) Guide(ctx context.Context, docID, section string) (*store.Breakdown, error) {
	c, err := s.store.LoadContent(docID)
	if err != nil {
		return nil, err
	}
	if section == "" {
		section = "Full document"
	}
	prompt := llm.GuidePrompt(section, llm.TruncateRunes(c.Text, s.cfg.MaxPromptChars))
	raw, model, err := s.Generate(ctx, models.TaskFinalizer, prompt)
	if err != nil {
		return nil, err
	}
	return s.saveResult([]string{docID}, store.KindGuide, "", raw, model)
}

// Report writes a long-form report over a document.
func (s *Service) Report(ctx context.Context, docID string) (*store.Breakdown, error) {
	c, err := s.store.LoadContent(docID)
	if err != nil {
		return nil, err
	}
	prompt := llm.ReportPrompt(llm.TruncateRunes(c.Text, s.cfg.MaxPromptChars), s.cfg.ReportMinWords)
	raw, model, err := s.Generate(ctx, models.TaskFinalizer, prompt)
	if err != nil {
		return nil, err
	}
	return s.saveResult([]string{docID}, store.KindReport, "", raw, model)
}

// Compare analyses several documents together. Documents without extracted
// text are skipped; at least two must remain. The prompt budget is split
// evenly between them.
func (s *Service) Compare(ctx context.Context, docIDs []string, analysisType, custom string) (*store.Breakdown, error) {
	var (
		docs []llm.ComparedDocument
		used []string
	)
	for _, id := range docIDs {
		d, err := s.store.GetDocument(id)
		if err != nil {
			return nil, err
		}
		c, err := s.store.LoadContent(id)
		if err != nil || strings.TrimSpace(c.Text) == "" {
			s.log.Warn("compare.skip_document", zap.String("document_id", id), zap.Error(err))
			continue
		}
		docs = append(docs, llm.ComparedDocument{Title: d.Name, Text: c.Text})
		used = append(used, id)
	}
	if len(docs) < 2 {
		return nil, eris.Wrapf(ErrTooFewDocuments, "%d usable of %d", len(docs), len(docIDs))
	}
	if s.cfg.MaxPromptChars > 0 {
		per := s.cfg.MaxPromptChars / len(docs)
		for i := range docs {
			docs[i].Text = llm.TruncateRunes(docs[i].Text, per)
		}
	}
	prompt, err := llm.ComparePrompt(analysisType, docs, custom)
	if err != nil {
		return nil, err
	}
	raw, model, err := s.Generate(ctx, models.TaskBreakdown, prompt)
	if err != nil {
		return nil, err
	}
	return s.saveResult(used, store.KindComparison, "", raw, model)
}

// breakdownText renders a stored breakdown back into numbered sections for
// follow-up prompts.
func breakdownText(b *store.Breakdown) string {
	if len(b.Sections) == 0 {
		return b.RawResponse
	}
	var sb strings.Builder
	for i, sec := range b.Sections {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "%d. %s: %s", i+1, sec.Title, sec.Content)
	}
	return sb.String()
}
