package extractor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"docbreak/internal/pointermap"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Errors returned by Extract. Callers match them with errors.Is.
var (
	ErrFileNotFound      = errors.New("file not found")
	ErrUnsupportedFormat = errors.New("unsupported file type")
	ErrExtractionFailed  = errors.New("no text could be extracted")
	ErrConversionFailed  = errors.New("document conversion failed")
	ErrConversionTimeout = errors.New("document conversion timed out")
)

// Supported file types, as stored on uploaded documents.
const (
	TypePDF  = "pdf"
	TypeDOCX = "docx"
	TypeDOC  = "doc"
	TypeTXT  = "txt"
	TypeZIP  = "zip"
)

// Document is the immutable result of one extraction: the plain text and the
// map from its character offsets back to the source.
type Document struct {
	Name       string                 `json:"name"`
	FileType   string                 `json:"file_type"`
	Text       string                 `json:"text"`
	PointerMap *pointermap.PointerMap `json:"pointer_map"`
}

// Config controls the out-of-process and scratch-space parts of extraction.
type Config struct {
	ScratchDir        string        // parent for temp dirs, "" uses os.TempDir
	ConvertTimeout    time.Duration // DOC → DOCX wall-clock limit, default 60s
	BundleConcurrency int           // parallel ZIP members, default 4
	MaxBundleDepth    int           // nested ZIP limit, default 3
}

// Extractor turns files into Documents.
type Extractor struct {
	cfg       Config
	converter Converter
	log       *zap.Logger
}

// New creates an Extractor. A nil converter uses LibreOffice from PATH and a
// nil logger discards output.
func New(cfg Config, conv Converter, log *zap.Logger) *Extractor {
	if cfg.ConvertTimeout <= 0 {
		cfg.ConvertTimeout = 60 * time.Second
	}
	if cfg.BundleConcurrency <= 0 {
		cfg.BundleConcurrency = 4
	}
	if cfg.MaxBundleDepth <= 0 {
		cfg.MaxBundleDepth = 3
	}
	if conv == nil {
		conv = LibreOffice{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{cfg: cfg, converter: conv, log: log}
}

// SupportedTypes lists every file type Extract or ExtractBundle accepts.
func SupportedTypes() []string {
	return []string{TypePDF, TypeDOCX, TypeDOC, TypeTXT, TypeZIP}
}

// DetectFileType maps a file name to its supported type, or "" if the
// extension is not supported.
func DetectFileType(name string) string {
	ext := normalizeType(filepath.Ext(name))
	for _, t := range SupportedTypes() {
		if ext == t {
			return t
		}
	}
	return ""
}

func normalizeType(fileType string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(fileType), "."))
}

// Extract reads the file at path as fileType and returns its text with a
// pointer map. ZIP bundles hold several documents and go through
// ExtractBundle instead.
func (e *Extractor) Extract(ctx context.Context, path, fileType string) (*Document, error) {
	ft := normalizeType(fileType)
	switch ft {
	case TypePDF, TypeDOCX, TypeDOC, TypeTXT:
	case TypeZIP:
		return nil, eris.Wrap(ErrUnsupportedFormat, "zip bundles are unpacked with ExtractBundle")
	default:
		return nil, eris.Wrapf(ErrUnsupportedFormat, "file type %q", fileType)
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Wrapf(ErrFileNotFound, "extract %s", path)
		}
		return nil, eris.Wrapf(err, "stat %s", path)
	}

	start := time.Now()
	e.log.Debug("extract.start", zap.String("path", path), zap.String("type", ft))

	var (
		doc *Document
		err error
	)
	switch ft {
	case TypePDF:
		doc, err = e.extractPDF(path)
	case TypeDOCX:
		doc, err = e.extractDOCX(path)
	case TypeDOC:
		doc, err = e.extractDOC(ctx, path)
	case TypeTXT:
		doc, err = e.extractTXT(path)
	}
	if err != nil {
		e.log.Warn("extract.failed", zap.String("path", path), zap.String("type", ft), zap.Error(err))
		return nil, err
	}

	if !hasVisibleText(doc.Text) {
		e.log.Warn("extract.empty", zap.String("path", path), zap.String("type", ft))
		return nil, eris.Wrapf(ErrExtractionFailed, "%s has no text", filepath.Base(path))
	}

	doc.Name = filepath.Base(path)
	doc.FileType = ft
	e.log.Info("extract.ok",
		zap.String("path", path),
		zap.String("type", ft),
		zap.Int("chars", runeLen(doc.Text)),
		zap.Int("entries", doc.PointerMap.Len()),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return doc, nil
}

func hasVisibleText(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) >= 0
}
