package extractor

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BundleEntry is the outcome for one supported member of a ZIP bundle. A
// member that fails carries Err; the rest of the bundle is unaffected.
type BundleEntry struct {
	Name     string    `json:"name"` // slash path inside the archive, nested archives included
	FileType string    `json:"file_type"`
	Document *Document `json:"document,omitempty"`
	Err      error     `json:"-"`
}

// ExtractBundle unpacks a ZIP archive into a scratch directory and extracts
// every supported member, recursing into nested archives. Entries come back
// in archive order. Members with unsupported extensions are skipped.
func (e *Extractor) ExtractBundle(ctx context.Context, archive string) ([]BundleEntry, error) {
	if _, err := os.Stat(archive); err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Wrapf(ErrFileNotFound, "bundle %s", archive)
		}
		return nil, eris.Wrapf(err, "stat %s", archive)
	}
	return e.extractBundle(ctx, archive, "", 0)
}

type bundleMember struct {
	name     string
	diskPath string
	fileType string
}

func (e *Extractor) extractBundle(ctx context.Context, archive, prefix string, depth int) ([]BundleEntry, error) {
	tmpDir, err := os.MkdirTemp(e.cfg.ScratchDir, "docbreak-zip-*")
	if err != nil {
		return nil, eris.Wrap(err, "create scratch dir")
	}
	defer os.RemoveAll(tmpDir)

	members, err := e.unpack(archive, tmpDir)
	if err != nil {
		return nil, err
	}
	e.log.Info("bundle.unpacked", zap.String("archive", archive), zap.Int("members", len(members)), zap.Int("depth", depth))

	results := make([][]BundleEntry, len(members))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.BundleConcurrency)
	for i, m := range members {
		g.Go(func() error {
			name := prefix + m.name
			if m.fileType == TypeZIP {
				if depth+1 >= e.cfg.MaxBundleDepth {
					results[i] = []BundleEntry{{Name: name, FileType: TypeZIP,
						Err: eris.Wrapf(ErrUnsupportedFormat, "archive nested deeper than %d", e.cfg.MaxBundleDepth)}}
					return nil
				}
				nested, err := e.extractBundle(gctx, m.diskPath, name+"/", depth+1)
				if err != nil {
					results[i] = []BundleEntry{{Name: name, FileType: TypeZIP, Err: err}}
					return nil
				}
				results[i] = nested
				return nil
			}
			doc, err := e.Extract(gctx, m.diskPath, m.fileType)
			if doc != nil {
				doc.Name = name
			}
			results[i] = []BundleEntry{{Name: name, FileType: m.fileType, Document: doc, Err: err}}
			return nil
		})
	}
	// Member errors are recorded per entry, so Wait only reports cancellation.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []BundleEntry
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// unpack writes the supported members of archive under dir. Entries whose
// path would escape dir are skipped.
func (e *Extractor) unpack(archive, dir string) ([]bundleMember, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, eris.Wrapf(ErrExtractionFailed, "open zip: %v", err)
	}
	defer zr.Close()

	var members []bundleMember
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := path.Clean(strings.ReplaceAll(f.Name, "\\", "/"))
		if path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
			e.log.Warn("bundle.unsafe_path", zap.String("archive", archive), zap.String("member", f.Name))
			continue
		}
		if strings.HasPrefix(path.Base(name), ".") || strings.HasPrefix(name, "__MACOSX/") {
			continue
		}
		ft := DetectFileType(name)
		if ft == "" {
			continue
		}
		dst := filepath.Join(dir, filepath.FromSlash(name))
		if err := writeMember(f, dst); err != nil {
			return nil, eris.Wrapf(ErrExtractionFailed, "unpack %s: %v", name, err)
		}
		members = append(members, bundleMember{name: name, diskPath: dst, fileType: ft})
	}
	return members, nil
}

func writeMember(f *zip.File, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
