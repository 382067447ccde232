package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"unicode/utf8"

	"docbreak/internal/annotation"
	"docbreak/internal/extractor"
	"docbreak/internal/store"

	"go.uber.org/zap"
)

// ========== Upload ==========

// handleUpload stores the file and queues it; the response does not wait for
// processing. ZIP bundles are queued too and unpacked by a worker, which
// records each member on the archive document.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonErr(w, "Invalid upload: "+err.Error(), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		jsonErr(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	ft := extractor.DetectFileType(name)
	if ft == "" {
		jsonErr(w, "Unsupported file type: "+filepath.Ext(name), http.StatusUnsupportedMediaType)
		return
	}

	doc, err := s.store.CreateDocument(name, ft, "")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	dst, err := s.saveUpload(doc.ID, name, file)
	if err != nil {
		_ = s.store.DeleteDocument(doc.ID)
		s.fail(w, r, err)
		return
	}
	doc, err = s.store.UpdateDocument(doc.ID, func(d *store.Document) {
		d.Path = dst
		d.Category = r.FormValue("category")
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("upload.saved", zap.String("document_id", doc.ID), zap.String("name", name), zap.Int64("bytes", header.Size))

	jobID, err := s.queue.Enqueue(r.Context(), doc.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jsonStatus(w, http.StatusAccepted, map[string]interface{}{"document": doc, "job_id": jobID})
}

func (s *Server) saveUpload(docID, name string, src io.Reader) (string, error) {
	dir := s.store.UploadDir(docID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, name)
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", err
	}
	return dst, out.Close()
}

// documentProcessor runs queued jobs. Archives are unpacked and each member
// becomes a queued document of its own; anything else gets a breakdown.
type documentProcessor struct {
	s *Server
}

func (p documentProcessor) Process(ctx context.Context, docID string) (*store.Breakdown, error) {
	doc, err := p.s.store.GetDocument(docID)
	if err != nil {
		return nil, err
	}
	if doc.FileType != extractor.TypeZIP {
		return p.s.svc.Process(ctx, docID)
	}
	return nil, p.s.importBundle(ctx, doc)
}

// importBundle registers every extracted member of an archive with its content
// already stored, queues it for its breakdown and lists the results on the
// archive document.
func (s *Server) importBundle(ctx context.Context, archive *store.Document) error {
	if err := s.store.SetStatus(archive.ID, store.StatusProcessing, ""); err != nil {
		return err
	}
	entries, err := s.ext.ExtractBundle(ctx, archive.Path)
	if err != nil {
		if serr := s.store.SetStatus(archive.ID, store.StatusFailed, err.Error()); serr != nil {
			s.log.Warn("bundle.status_write_failed", zap.String("document_id", archive.ID), zap.Error(serr))
		}
		return err
	}
	members := make([]store.Member, 0, len(entries))
	failed := 0
	for _, e := range entries {
		m := store.Member{Name: e.Name}
		if e.Err == nil {
			m.DocumentID, m.JobID, err = s.importMember(ctx, archive, e)
		} else {
			err = e.Err
		}
		if err != nil {
			m.Error = err.Error()
			failed++
		}
		members = append(members, m)
	}
	if _, err := s.store.UpdateDocument(archive.ID, func(d *store.Document) {
		d.Status = store.StatusCompleted
		d.Error = ""
		d.Members = members
	}); err != nil {
		return err
	}
	s.log.Info("bundle.imported", zap.String("document_id", archive.ID), zap.Int("members", len(members)), zap.Int("failed", failed))
	return nil
}

func (s *Server) importMember(ctx context.Context, archive *store.Document, e extractor.BundleEntry) (docID, jobID string, err error) {
	d, err := s.store.CreateDocument(archive.Name+"/"+e.Name, e.FileType, archive.Path)
	if err != nil {
		return "", "", err
	}
	if _, err := s.store.UpdateDocument(d.ID, func(d *store.Document) { d.Category = archive.Category }); err != nil {
		return d.ID, "", err
	}
	if err := s.store.SaveContent(d.ID, e.Document.Text, e.Document.PointerMap); err != nil {
		return d.ID, "", err
	}
	jobID, err = s.queue.Enqueue(ctx, d.ID)
	return d.ID, jobID, err
}

// ========== Documents ==========

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, s.store.ListDocuments())
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, err := s.store.GetDocument(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := map[string]interface{}{"document": doc}
	if c, err := s.store.LoadContent(id); err == nil {
		resp["text"] = c.Text
		resp["pointer_map"] = c.PointerMap
	}
	jsonResp(w, resp)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteDocument(id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.locator.Remove(id)
	jsonResp(w, map[string]string{"status": "deleted"})
}

// handleReprocess queues a document again, for instance after a failure.
func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetDocument(id); err != nil {
		s.fail(w, r, err)
		return
	}
	jobID, err := s.queue.Enqueue(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jsonStatus(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.queue.Status(r.PathValue("id"))
	if !ok {
		jsonErr(w, "job not found", http.StatusNotFound)
		return
	}
	jsonResp(w, job)
}

// handleResolve maps a character range of the extracted text back to the
// original document. Unresolvable ranges return an empty location.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	start, err1 := queryInt(r, "start")
	end, err2 := queryInt(r, "end")
	if err1 != nil || err2 != nil {
		jsonErr(w, "start and end must be integers", http.StatusBadRequest)
		return
	}
	c, err := s.store.LoadContent(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jsonResp(w, map[string]interface{}{
		"start":    start,
		"end":      end,
		"location": annotation.Resolve(c.PointerMap, start, end),
	})
}

// ========== Guide / Report ==========

func (s *Server) handleGuide(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Section string `json:"section"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			jsonErr(w, "Invalid request", http.StatusBadRequest)
			return
		}
	}
	b, err := s.svc.Guide(r.Context(), r.PathValue("id"), req.Section)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jsonResp(w, b)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	b, err := s.svc.Report(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jsonResp(w, b)
}

// ========== Annotations ==========

func (s *Server) handleCreateAnnotation(w http.ResponseWriter, r *http.Request) {
	var a annotation.Annotation
	if err := decodeJSON(w, r, &a); err != nil {
		jsonErr(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if !validID(a.DocumentID) || (a.ID != "" && !validID(a.ID)) {
		jsonErr(w, "invalid id", http.StatusBadRequest)
		return
	}
	c, err := s.store.LoadContent(a.DocumentID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := a.Validate(utf8.RuneCountInString(c.Text)); err != nil {
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.Location = annotation.ResolveAnnotation(c.PointerMap, a)
	if err := s.store.AddAnnotation(&a); err != nil {
		s.fail(w, r, err)
		return
	}
	s.hub.Broadcast(a.DocumentID, Event{Type: EventAnnotationCreated, User: a.Author, Data: a}, nil)
	jsonStatus(w, http.StatusCreated, a)
}

func (s *Server) handleListAnnotations(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.Annotations(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jsonResp(w, list)
}

func (s *Server) handleDeleteAnnotation(w http.ResponseWriter, r *http.Request) {
	docID, aid := r.PathValue("id"), r.PathValue("aid")
	if err := s.store.DeleteAnnotation(docID, aid); err != nil {
		s.fail(w, r, err)
		return
	}
	s.hub.Broadcast(docID, Event{Type: EventAnnotationDeleted, Data: map[string]string{"id": aid}}, nil)
	jsonResp(w, map[string]string{"status": "deleted"})
}
