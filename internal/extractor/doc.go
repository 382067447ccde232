package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"docbreak/internal/pointermap"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Converter turns a legacy .doc file into a .docx written into outDir.
type Converter interface {
	ConvertToDOCX(ctx context.Context, src, outDir string) error
}

// LibreOffice converts with a headless soffice process.
type LibreOffice struct {
	Bin string // "" resolves libreoffice, then soffice, from PATH
}

// Available reports whether a LibreOffice binary can be found.
func (l LibreOffice) Available() bool {
	_, err := l.binary()
	return err == nil
}

func (l LibreOffice) binary() (string, error) {
	if l.Bin != "" {
		return exec.LookPath(l.Bin)
	}
	for _, name := range []string{"libreoffice", "soffice"} {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", errors.New("libreoffice not found on PATH")
}

func (l LibreOffice) ConvertToDOCX(ctx context.Context, src, outDir string) error {
	bin, err := l.binary()
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, bin, "--headless", "--convert-to", "docx", "--outdir", outDir, src)
	// soffice can leave helpers holding the pipes after a kill.
	cmd.WaitDelay = 5 * time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %v (stderr: %s)", filepath.Base(bin), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// extractDOC converts to DOCX in a scratch directory, extracts that, and maps
// the result by line. The scratch directory is removed on every path.
func (e *Extractor) extractDOC(ctx context.Context, path string) (*Document, error) {
	tmpDir, err := os.MkdirTemp(e.cfg.ScratchDir, "docbreak-doc-*")
	if err != nil {
		return nil, eris.Wrap(err, "create scratch dir")
	}
	defer os.RemoveAll(tmpDir)

	cctx, cancel := context.WithTimeout(ctx, e.cfg.ConvertTimeout)
	defer cancel()

	start := time.Now()
	err = e.converter.ConvertToDOCX(cctx, path, tmpDir)
	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return nil, eris.Wrapf(ErrConversionTimeout, "%s after %s", filepath.Base(path), e.cfg.ConvertTimeout)
	}
	if err != nil {
		return nil, eris.Wrapf(ErrConversionFailed, "%s: %v", filepath.Base(path), err)
	}
	e.log.Debug("extract.doc.converted", zap.String("path", path), zap.Duration("elapsed", time.Since(start)))

	out, err := convertedFile(tmpDir, path)
	if err != nil {
		return nil, err
	}
	converted, err := e.extractDOCX(out)
	if err != nil {
		return nil, eris.Wrapf(ErrConversionFailed, "read converted %s: %v", filepath.Base(out), err)
	}

	text, pm := lineMap(pointermap.KindDOC, strings.Split(converted.Text, "\n"))
	return &Document{Text: text, PointerMap: pm}, nil
}

// convertedFile finds the converter's output: <base>.docx, or failing that
// the only .docx in dir.
func convertedFile(dir, src string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	want := filepath.Join(dir, base+".docx")
	if _, err := os.Stat(want); err == nil {
		return want, nil
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*.docx"))
	if len(matches) == 1 {
		return matches[0], nil
	}
	return "", eris.Wrapf(ErrConversionFailed, "no docx produced for %s", filepath.Base(src))
}
