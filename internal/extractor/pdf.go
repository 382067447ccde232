package extractor

import (
	"fmt"
	"strings"

	"docbreak/internal/pointermap"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

func (e *Extractor) extractPDF(path string) (*Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, eris.Wrapf(ErrExtractionFailed, "open pdf: %v", err)
	}
	defer f.Close()

	numPages := r.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		text, err := pageText(r.Page(i))
		if err != nil {
			// Scanned or broken pages keep their slot with no lines.
			e.log.Warn("extract.pdf.page", zap.String("path", path), zap.Int("page", i), zap.Error(err))
		}
		pages = append(pages, text)
	}
	if !pagesHaveText(pages) {
		return nil, eris.Wrapf(ErrExtractionFailed, "pdf has no extractable text in %d page(s)", numPages)
	}

	text, pm := pdfMap(pages)
	return &Document{Text: text, PointerMap: pm}, nil
}

// pageText returns the plain text of one page. The pdf package panics on some
// malformed content streams, so that is reported as an error.
func pageText(p pdf.Page) (text string, err error) {
	if p.V.IsNull() {
		return "", nil
	}
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("read page: %v", r)
		}
	}()
	text, err = p.GetPlainText(nil)
	if err != nil {
		return "", err
	}
	// Each text object starts with a line break.
	return strings.TrimPrefix(strings.ToValidUTF8(text, "�"), "\n"), nil
}

// pagesHaveText reports whether any page line carries visible text. The page
// markers pdfMap adds do not count.
func pagesHaveText(pages []string) bool {
	for _, p := range pages {
		if hasVisibleText(p) {
			return true
		}
	}
	return false
}

// pdfMap lays the pages out as "--- Page N ---" markers followed by the
// page's lines. Markers are not map entries; every page gets an entry even
// when it has no lines.
func pdfMap(pages []string) (string, *pointermap.PointerMap) {
	var tb textBuilder
	pm := &pointermap.PointerMap{Type: pointermap.KindPDF, Pages: []pointermap.Page{}}
	for i, raw := range pages {
		tb.add(fmt.Sprintf("--- Page %d ---", i+1))
		page := pointermap.Page{Page: i + 1, Lines: []pointermap.Span{}}
		for j, line := range splitLines(raw) {
			start, end := tb.add(line)
			page.Lines = append(page.Lines, pointermap.Span{Index: j + 1, CharStart: start, CharEnd: end})
		}
		pm.Pages = append(pm.Pages, page)
	}
	return tb.String(), pm
}
