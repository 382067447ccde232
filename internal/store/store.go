// Package store persists documents, their extracted text and pointer maps,
// breakdowns and annotations as JSON files under a data directory.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"docbreak/internal/annotation"
	"docbreak/internal/llm"
	"docbreak/internal/pointermap"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown document or breakdown ids.
var ErrNotFound = errors.New("not found")

// Status of a document as it moves through processing.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Breakdown kinds.
const (
	KindBreakdown   = "breakdown"
	KindRegenerated = "regenerated"
	KindCustom      = "custom"
	KindGuide       = "guide"
	KindReport      = "report"
	KindReview      = "review"
	KindComparison  = "comparison"
)

// ==================== Document ====================

// Document is the metadata row kept in documents.json.
type Document struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	FileType    string    `json:"file_type"`
	Path        string    `json:"path"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Category    string    `json:"category,omitempty"`
	TextLength  int       `json:"text_length"`
	BreakdownID string    `json:"breakdown_id,omitempty"`
	Members     []Member  `json:"members,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Member is the import result for one file of an uploaded archive.
type Member struct {
	Name       string `json:"name"`
	DocumentID string `json:"document_id,omitempty"`
	JobID      string `json:"job_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Content is the write-once extraction output stored as <id>.json.
type Content struct {
	DocumentID string                 `json:"document_id"`
	Text       string                 `json:"text"`
	PointerMap *pointermap.PointerMap `json:"pointer_map"`
}

// Breakdown is one generated result. Comparisons reference several documents.
type Breakdown struct {
	ID          string   `json:"id"`
	DocumentIDs []string `json:"document_ids"`
	Kind        string   `json:"kind"`
	ParentID    string   `json:"parent_id,omitempty"`
	llm.Result
	CreatedAt time.Time `json:"created_at"`
}

// ==================== Store ====================

// Store manages the data directory. Document metadata is cached in memory;
// content, breakdowns and annotations are read from disk on demand.
type Store struct {
	mu       sync.RWMutex
	docs     []Document
	dataDir  string
	filePath string
}

// New creates the directory layout and loads documents.json if present.
func New(dataDir string) (*Store, error) {
	for _, d := range []string{
		dataDir,
		filepath.Join(dataDir, "documents"),
		filepath.Join(dataDir, "uploads"),
		filepath.Join(dataDir, "breakdowns"),
		filepath.Join(dataDir, "annotations"),
	} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}

	s := &Store{
		dataDir:  dataDir,
		filePath: filepath.Join(dataDir, "documents.json"),
	}
	if data, err := os.ReadFile(s.filePath); err == nil {
		if err := json.Unmarshal(data, &s.docs); err != nil {
			return nil, fmt.Errorf("parse %s: %w", s.filePath, err)
		}
	}
	return s, nil
}

func (s *Store) save() error {
	return writeJSON(s.filePath, s.docs)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return json.Unmarshal(data, v)
}

// ==================== Document CRUD ====================

// CreateDocument registers a new upload with status "uploaded".
func (s *Store) CreateDocument(name, fileType, path string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	doc := Document{
		ID:        uuid.NewString(),
		Name:      name,
		FileType:  fileType,
		Path:      path,
		Status:    StatusUploaded,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.docs = append(s.docs, doc)
	if err := s.save(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments returns documents newest first.
func (s *Store) ListDocuments() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Document, len(s.docs))
	copy(out, s.docs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *Store) GetDocument(id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.docs {
		if s.docs[i].ID == id {
			d := s.docs[i]
			return &d, nil
		}
	}
	return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
}

// UpdateDocument applies fn to the stored row and saves it.
func (s *Store) UpdateDocument(id string, fn func(*Document)) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.docs {
		if s.docs[i].ID == id {
			fn(&s.docs[i])
			s.docs[i].UpdatedAt = time.Now()
			if err := s.save(); err != nil {
				return nil, err
			}
			d := s.docs[i]
			return &d, nil
		}
	}
	return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
}

// SetStatus records a status transition and, for failures, the reason.
func (s *Store) SetStatus(id string, status Status, reason string) error {
	_, err := s.UpdateDocument(id, func(d *Document) {
		d.Status = status
		d.Error = reason
	})
	return err
}

// DeleteDocument removes the row, its content and its annotations.
// Breakdowns are kept since comparisons may reference several documents.
func (s *Store) DeleteDocument(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.docs {
		if s.docs[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	s.docs = append(s.docs[:idx], s.docs[idx+1:]...)
	_ = os.Remove(s.contentPath(id))
	_ = os.Remove(s.annotationsPath(id))
	_ = os.RemoveAll(s.UploadDir(id))
	return s.save()
}

// ==================== Content ====================

// SaveContent writes the extracted text and pointer map and records the text
// length on the document.
func (s *Store) SaveContent(id, text string, pm *pointermap.PointerMap) error {
	if err := writeJSON(s.contentPath(id), Content{DocumentID: id, Text: text, PointerMap: pm}); err != nil {
		return fmt.Errorf("save content: %w", err)
	}
	_, err := s.UpdateDocument(id, func(d *Document) {
		d.TextLength = len([]rune(text))
	})
	return err
}

func (s *Store) LoadContent(id string) (*Content, error) {
	var c Content
	if err := readJSON(s.contentPath(id), &c); err != nil {
		return nil, fmt.Errorf("content %s: %w", id, err)
	}
	return &c, nil
}

// ==================== Breakdowns ====================

// SaveBreakdown assigns an id and timestamp when missing and writes b.
func (s *Store) SaveBreakdown(b *Breakdown) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	return writeJSON(filepath.Join(s.dataDir, "breakdowns", b.ID+".json"), b)
}

func (s *Store) GetBreakdown(id string) (*Breakdown, error) {
	var b Breakdown
	if err := readJSON(filepath.Join(s.dataDir, "breakdowns", id+".json"), &b); err != nil {
		return nil, fmt.Errorf("breakdown %s: %w", id, err)
	}
	return &b, nil
}

// ListBreakdowns returns every breakdown that references docID, oldest first.
func (s *Store) ListBreakdowns(docID string) ([]Breakdown, error) {
	dir := filepath.Join(s.dataDir, "breakdowns")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []Breakdown
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		var b Breakdown
		if err := readJSON(filepath.Join(dir, e.Name()), &b); err != nil {
			continue
		}
		for _, id := range b.DocumentIDs {
			if id == docID {
				out = append(out, b)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ==================== Annotations ====================

// AddAnnotation appends a to its document's annotation file.
func (s *Store) AddAnnotation(a *annotation.Annotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	list, err := s.annotationsLocked(a.DocumentID)
	if err != nil {
		return err
	}
	list = append(list, *a)
	return writeJSON(s.annotationsPath(a.DocumentID), list)
}

func (s *Store) Annotations(docID string) ([]annotation.Annotation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.annotationsLocked(docID)
}

func (s *Store) annotationsLocked(docID string) ([]annotation.Annotation, error) {
	var list []annotation.Annotation
	err := readJSON(s.annotationsPath(docID), &list)
	if errors.Is(err, ErrNotFound) {
		return []annotation.Annotation{}, nil
	}
	return list, err
}

// DeleteAnnotation removes one annotation by id.
func (s *Store) DeleteAnnotation(docID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.annotationsLocked(docID)
	if err != nil {
		return err
	}
	for i := range list {
		if list[i].ID == id {
			list = append(list[:i], list[i+1:]...)
			return writeJSON(s.annotationsPath(docID), list)
		}
	}
	return fmt.Errorf("annotation %s: %w", id, ErrNotFound)
}

// ==================== Path Helpers ====================

func (s *Store) DataDir() string { return s.dataDir }

// UploadDir is where the original upload for id is kept.
func (s *Store) UploadDir(id string) string {
	return filepath.Join(s.dataDir, "uploads", id)
}

func (s *Store) contentPath(id string) string {
	return filepath.Join(s.dataDir, "documents", id+".json")
}

func (s *Store) annotationsPath(docID string) string {
	return filepath.Join(s.dataDir, "annotations", docID+".json")
}
