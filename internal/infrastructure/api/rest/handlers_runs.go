package rest

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/woninglens/woninglens/internal/runstore"
)

// CreateRunRequest is the submission payload for a new run.
type CreateRunRequest struct {
	FundaURL  string         `json:"funda_url" validate:"omitempty,url"`
	FundaHTML string         `json:"funda_html,omitempty"`
	MediaURLs []string       `json:"media_urls,omitempty" validate:"omitempty,dive,url"`
	RawData   map[string]any `json:"raw_data,omitempty"`
}

// PasteRequest carries listing HTML pasted after submission.
type PasteRequest struct {
	FundaHTML string `json:"funda_html" validate:"required"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.FundaURL == "" && req.FundaHTML == "" && req.RawData == nil {
		s.respondError(w, "one of funda_url, funda_html, raw_data is required", http.StatusBadRequest)
		return
	}

	runID := uuid.NewString()
	record := s.store.Create(runID, req.FundaURL, "", "", "", false)
	if req.FundaHTML != "" {
		s.store.SetInputHTML(runID, req.FundaHTML)
	}
	if req.RawData != nil {
		if len(req.MediaURLs) > 0 {
			req.RawData["media_urls"] = req.MediaURLs
		}
		s.store.SetRawData(runID, req.RawData)
	}

	s.respondJSON(w, map[string]any{"run_id": record.RunID, "status": record.Status}, http.StatusCreated)
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	record, ok := s.store.Get(runID)
	if !ok {
		s.respondError(w, "run not found", http.StatusNotFound)
		return
	}
	if record.Status.Terminal() {
		s.respondError(w, "run already finished; submit a new run", http.StatusConflict)
		return
	}

	s.pool.Submit(runID)
	s.respondJSON(w, map[string]any{"ok": true, "status": "processing"}, http.StatusOK)
}

func (s *Server) handlePasteHTML(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if _, ok := s.store.Get(runID); !ok {
		s.respondError(w, "run not found", http.StatusNotFound)
		return
	}

	var req PasteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.store.SetInputHTML(runID, req.FundaHTML)
	s.respondJSON(w, map[string]any{"ok": true}, http.StatusOK)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if _, ok := s.store.Get(runID); !ok {
		s.respondError(w, "run not found", http.StatusNotFound)
		return
	}
	cancelled := s.pool.Cancel(runID)
	s.respondJSON(w, map[string]any{"ok": true, "cancelled": cancelled}, http.StatusOK)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	records := s.store.List()
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		out = append(out, runOverview(rec))
	}
	s.respondJSON(w, out, http.StatusOK)
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	record, ok := s.store.Get(r.PathValue("id"))
	if !ok {
		s.respondError(w, "run not found", http.StatusNotFound)
		return
	}

	s.respondJSON(w, map[string]any{
		"run_id":     record.RunID,
		"status":     record.Status,
		"steps":      record.Steps,
		"progress":   record.Progress(),
		"unknowns":   record.Unknowns,
		"artifacts":  record.Artifacts,
		"updated_at": record.UpdatedAt,
	}, http.StatusOK)
}

func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	record, ok := s.store.Get(r.PathValue("id"))
	if !ok {
		s.respondError(w, "run not found", http.StatusNotFound)
		return
	}

	mediaFromDB := []string{}
	if record.RawData != nil {
		if urls, ok := record.RawData["media_urls"].([]string); ok {
			mediaFromDB = urls
		}
	}

	s.respondJSON(w, map[string]any{
		"run_id":        record.RunID,
		"status":        record.Status,
		"core_summary":  record.CoreSummary,
		"chapters":      record.Chapters,
		"kpis":          record.KPIs,
		"discovery":     map[string]any{"unknowns": record.Unknowns, "warnings": record.Warnings},
		"media_from_db": mediaFromDB,
		"artifacts":     record.Artifacts,
		"errors":        record.Errors,
	}, http.StatusOK)
}

func (s *Server) handleLiveStatus(w http.ResponseWriter, r *http.Request) {
	record, ok := s.store.Get(r.PathValue("id"))
	if !ok {
		s.respondError(w, "run not found", http.StatusNotFound)
		return
	}

	s.respondJSON(w, map[string]any{
		"run_id":      record.RunID,
		"status":      record.Status,
		"phase":       record.Phase,
		"steps":       record.Steps,
		"planes":      record.Planes,
		"progress":    record.Progress(),
		"provider":    record.Provider,
		"model":       record.Model,
		"warnings":    record.Warnings,
		"errors":      record.Errors,
		"updated_at":  record.UpdatedAt,
		"transitions": record.Transitions,
	}, http.StatusOK)
}

func runOverview(r *runstore.Record) map[string]any {
	return map[string]any{
		"run_id":     r.RunID,
		"input_url":  r.InputURL,
		"status":     r.Status,
		"phase":      r.Phase,
		"progress":   r.Progress(),
		"created_at": r.CreatedAt,
		"updated_at": r.UpdatedAt,
	}
}
