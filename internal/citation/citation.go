// Package citation anchors generated text back to the document it came from
// using keyword search over the document's pointer-map entries.
package citation

import (
	"container/list"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"docbreak/internal/annotation"
	"docbreak/internal/llm"
	"docbreak/internal/pointermap"

	"github.com/blevesearch/bleve/v2"
	"go.uber.org/zap"
)

// ErrNotIndexed is returned by Locate for documents never passed to Index.
var ErrNotIndexed = errors.New("document not indexed")

// maxQueryRunes bounds how much of a section is used as the search query.
const maxQueryRunes = 300

// DefaultMaxDocuments is how many document indexes a Locator keeps before
// evicting the least recently used one.
const DefaultMaxDocuments = 32

// Hit is one matching map entry.
type Hit struct {
	CharStart int                 `json:"char_start"`
	CharEnd   int                 `json:"char_end"`
	Score     float64             `json:"score"`
	Location  annotation.Location `json:"location"`
	Snippet   string              `json:"snippet"`
}

type docIndex struct {
	index bleve.Index
	pm    *pointermap.PointerMap
	text  []rune
}

// Locator holds one in-memory index per document, up to a fixed number of
// documents. Evicted documents report ErrNotIndexed and can be indexed again.
type Locator struct {
	mu      sync.Mutex
	maxDocs int
	items   map[string]*list.Element
	order   *list.List // front = most recently used
	log     *zap.Logger
}

type lruEntry struct {
	docID string
	index *docIndex
}

// New creates an empty Locator holding up to DefaultMaxDocuments indexes.
func New(log *zap.Logger) *Locator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Locator{
		maxDocs: DefaultMaxDocuments,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		log:     log,
	}
}

// WithLimit sets the number of document indexes kept in memory.
func (l *Locator) WithLimit(n int) *Locator {
	if n > 0 {
		l.maxDocs = n
	}
	return l
}

func (l *Locator) get(docID string) (*docIndex, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.items[docID]; ok {
		l.order.MoveToFront(el)
		return el.Value.(*lruEntry).index, true
	}
	return nil, false
}

// put stores d and returns the indexes that must be closed: a replaced one
// and any evicted ones.
func (l *Locator) put(docID string, d *docIndex) []*docIndex {
	l.mu.Lock()
	defer l.mu.Unlock()
	var stale []*docIndex
	if el, ok := l.items[docID]; ok {
		e := el.Value.(*lruEntry)
		stale = append(stale, e.index)
		e.index = d
		l.order.MoveToFront(el)
		return stale
	}
	for l.order.Len() >= l.maxDocs {
		oldest := l.order.Back()
		e := oldest.Value.(*lruEntry)
		l.order.Remove(oldest)
		delete(l.items, e.docID)
		stale = append(stale, e.index)
		l.log.Debug("citation.evicted", zap.String("document_id", e.docID))
	}
	l.items[docID] = l.order.PushFront(&lruEntry{docID: docID, index: d})
	return stale
}

func entryID(start, end int) string {
	return fmt.Sprintf("%d-%d", start, end)
}

func parseEntryID(id string) (int, int, bool) {
	a, b, ok := strings.Cut(id, "-")
	if !ok {
		return 0, 0, false
	}
	start, err1 := strconv.Atoi(a)
	end, err2 := strconv.Atoi(b)
	return start, end, err1 == nil && err2 == nil
}

// Index (re)builds the index for docID. Every non-empty map entry becomes a
// searchable record keyed by its character range.
func (l *Locator) Index(docID, text string, pm *pointermap.PointerMap) error {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	runes := []rune(text)
	batch := idx.NewBatch()
	n := 0
	for _, e := range pm.Entries() {
		if e.CharEnd <= e.CharStart || e.CharEnd > len(runes) {
			continue
		}
		seg := string(runes[e.CharStart:e.CharEnd])
		if strings.TrimSpace(seg) == "" {
			continue
		}
		if err := batch.Index(entryID(e.CharStart, e.CharEnd), map[string]interface{}{"text": seg}); err != nil {
			idx.Close()
			return fmt.Errorf("index entry: %w", err)
		}
		n++
	}
	if err := idx.Batch(batch); err != nil {
		idx.Close()
		return fmt.Errorf("index batch: %w", err)
	}

	for _, d := range l.put(docID, &docIndex{index: idx, pm: pm, text: runes}) {
		d.index.Close()
	}
	l.log.Debug("citation.indexed", zap.String("document_id", docID), zap.Int("entries", n))
	return nil
}

// Locate returns up to k entries of docID best matching query.
func (l *Locator) Locate(docID, query string, k int) ([]Hit, error) {
	d, ok := l.get(docID)
	if !ok {
		return nil, ErrNotIndexed
	}
	query = strings.TrimSpace(query)
	if query == "" || k <= 0 {
		return nil, nil
	}

	q := bleve.NewMatchQuery(query)
	q.SetField("text")
	req := bleve.NewSearchRequest(q)
	req.Size = k
	res, err := d.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		start, end, ok := parseEntryID(h.ID)
		if !ok {
			continue
		}
		hits = append(hits, Hit{
			CharStart: start,
			CharEnd:   end,
			Score:     h.Score,
			Location:  annotation.Resolve(d.pm, start, end),
			Snippet:   string(d.text[start:end]),
		})
	}
	return hits, nil
}

// Cite sets Source on each section to the location of its best match. A
// section with no match keeps a nil Source.
func (l *Locator) Cite(docID string, sections []llm.Section) error {
	for i := range sections {
		q := []rune(sections[i].Title + " " + sections[i].Content)
		if len(q) > maxQueryRunes {
			q = q[:maxQueryRunes]
		}
		hits, err := l.Locate(docID, string(q), 1)
		if err != nil {
			return err
		}
		if len(hits) > 0 && !hits[0].Location.IsZero() {
			loc := hits[0].Location
			sections[i].Source = &loc
		}
	}
	return nil
}

// Remove drops docID's index.
func (l *Locator) Remove(docID string) {
	l.mu.Lock()
	el, ok := l.items[docID]
	if ok {
		l.order.Remove(el)
		delete(l.items, docID)
	}
	l.mu.Unlock()
	if ok {
		el.Value.(*lruEntry).index.index.Close()
	}
}

// Len reports how many documents are indexed.
func (l *Locator) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}

// Close releases every index.
func (l *Locator) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for el := l.order.Front(); el != nil; el = el.Next() {
		el.Value.(*lruEntry).index.index.Close()
	}
	l.items = make(map[string]*list.Element)
	l.order.Init()
}
