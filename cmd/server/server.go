package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"docbreak/internal/breakdown"
	"docbreak/internal/citation"
	"docbreak/internal/config"
	"docbreak/internal/crypto"
	"docbreak/internal/extractor"
	"docbreak/internal/fallback"
	"docbreak/internal/llm"
	"docbreak/internal/models"
	"docbreak/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Server holds all shared state.
type Server struct {
	mu       sync.RWMutex
	cfg      *config.Config
	settings *config.Settings
	sealer   *crypto.Sealer

	store    *store.Store
	ext      *extractor.Extractor
	registry *models.Registry
	orch     *fallback.Orchestrator
	locator  *citation.Locator
	client   *liveClient
	svc      *breakdown.Service
	queue    *breakdown.Queue
	hub      *Hub
	log      *zap.Logger
}

// maxUploadBytes bounds one multipart upload.
const maxUploadBytes = 100 << 20

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) { mux.Handle(pattern, requireIDs(h)) }

	handle("GET /api/documents", s.handleListDocuments)
	handle("POST /api/documents", s.handleUpload)
	handle("GET /api/documents/{id}", s.handleGetDocument)
	handle("DELETE /api/documents/{id}", s.handleDeleteDocument)
	handle("GET /api/documents/{id}/resolve", s.handleResolve)
	handle("GET /api/documents/{id}/breakdowns", s.handleListBreakdowns)
	handle("POST /api/documents/{id}/process", s.handleReprocess)
	handle("POST /api/documents/{id}/guide", s.handleGuide)
	handle("POST /api/documents/{id}/report", s.handleReport)
	handle("GET /api/documents/{id}/annotations", s.handleListAnnotations)
	handle("DELETE /api/documents/{id}/annotations/{aid}", s.handleDeleteAnnotation)
	handle("GET /api/jobs/{id}", s.handleJob)

	handle("POST /api/annotations", s.handleCreateAnnotation)

	handle("GET /api/breakdowns/{id}", s.handleGetBreakdown)
	handle("POST /api/breakdowns/{id}/regenerate", s.handleRegenerate)
	handle("POST /api/breakdowns/{id}/custom", s.handleCustomPrompt)
	handle("POST /api/breakdowns/{id}/review", s.handleReview)
	handle("GET /api/breakdowns/{id}/export.xlsx", s.handleExport)
	handle("POST /api/comparisons", s.handleCompare)

	handle("GET /api/models/{task}", s.handleModels)
	handle("PUT /api/models/{task}", s.handleSetModel)
	handle("POST /api/models/preset", s.handlePreset)
	handle("GET /api/fallback", s.handleFallbackStatus)
	handle("DELETE /api/fallback", s.handleFallbackReset)
	handle("GET /api/settings", s.handleGetSettings)
	handle("POST /api/settings", s.handleSaveSettings)

	handle("GET /ws/documents/{id}", s.handleWebSocket)

	return corsMiddleware(mux)
}

// ========== Middleware ==========

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireIDs rejects requests whose {id} or {aid} path value is not a UUID.
// Ids end up in file names under the data directory.
func requireIDs(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, name := range []string{"id", "aid"} {
			if v := r.PathValue(name); v != "" && !validID(v) {
				jsonErr(w, "invalid "+name, http.StatusBadRequest)
				return
			}
		}
		next(w, r)
	}
}

// ========== Helpers ==========

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func jsonResp(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func jsonStatus(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	jsonStatus(w, code, map[string]string{"error": msg})
}

// errStatus maps domain errors to HTTP status codes.
func errStatus(err error) int {
	var exhausted *fallback.ExhaustedError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, extractor.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, llm.ErrInvalidAnalysis):
		return http.StatusBadRequest
	case errors.Is(err, extractor.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, extractor.ErrExtractionFailed),
		errors.Is(err, extractor.ErrConversionFailed),
		errors.Is(err, breakdown.ErrTooFewDocuments):
		return http.StatusUnprocessableEntity
	case errors.Is(err, extractor.ErrConversionTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &exhausted):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := errStatus(err)
	if code >= 500 {
		s.log.Error("http.error", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	}
	jsonErr(w, err.Error(), code)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}

func queryInt(r *http.Request, key string) (int, error) {
	return strconv.Atoi(r.URL.Query().Get(key))
}
