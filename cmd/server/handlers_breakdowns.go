package main

import (
	"fmt"
	"net/http"
	"strings"

	"docbreak/internal/export"
	"docbreak/internal/llm"
)

// ========== Breakdowns ==========

func (s *Server) handleGetBreakdown(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.GetBreakdown(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jsonResp(w, b)
}

func (s *Server) handleListBreakdowns(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListBreakdowns(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jsonResp(w, list)
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Comments string       `json:"comments"`
		Markers  []llm.Marker `json:"markers"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		jsonErr(w, "Invalid request", http.StatusBadRequest)
		return
	}
	b, err := s.svc.Regenerate(r.Context(), r.PathValue("id"), req.Comments, req.Markers)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jsonResp(w, b)
}

func (s *Server) handleCustomPrompt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Instruction string            `json:"instruction"`
		Markers     []llm.Marker      `json:"markers"`
		Comments    map[string]string `json:"comments"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		jsonErr(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Instruction) == "" {
		jsonErr(w, "instruction is required", http.StatusBadRequest)
		return
	}
	b, err := s.svc.CustomPrompt(r.Context(), r.PathValue("id"), req.Instruction, req.Markers, req.Comments)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jsonResp(w, b)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	b, err := s.svc.Review(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jsonResp(w, b)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.GetBreakdown(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	names := make(map[string]string, len(b.DocumentIDs))
	for _, id := range b.DocumentIDs {
		if d, err := s.store.GetDocument(id); err == nil {
			names[id] = d.Name
		}
	}
	data, err := export.BreakdownXLSX(b, names)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="breakdown-%s.xlsx"`, b.ID))
	w.Write(data)
}

// ========== Comparisons ==========

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentIDs  []string `json:"document_ids"`
		AnalysisType string   `json:"analysis_type"`
		CustomPrompt string   `json:"custom_prompt"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		jsonErr(w, "Invalid request", http.StatusBadRequest)
		return
	}
	for _, id := range req.DocumentIDs {
		if !validID(id) {
			jsonErr(w, "invalid document id: "+id, http.StatusBadRequest)
			return
		}
	}
	if req.AnalysisType == "" {
		req.AnalysisType = llm.AnalysisSummary
	}
	b, err := s.svc.Compare(r.Context(), req.DocumentIDs, req.AnalysisType, req.CustomPrompt)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jsonResp(w, b)
}
