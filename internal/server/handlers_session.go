package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satindergrewal/mixdesk/internal/export"
	"github.com/satindergrewal/mixdesk/internal/session"
)

// handleMixdown streams the rendered mix as a WAV attachment.
func (s *Server) handleMixdown(w http.ResponseWriter, r *http.Request) {
	res, err := s.exp.Export(r.Context(), s.ed.Model(), s.ed.Library(), export.Request{})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(res.WAV)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "mixdown.wav"))
	w.Header().Set("X-Mix-Fingerprint", res.Fingerprint)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.WAV); err != nil {
		s.log.Debug("mixdown client gone", zap.Error(err))
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Upload bool   `json:"upload"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	res, err := s.exp.Export(r.Context(), s.ed.Model(), s.ed.Library(), export.Request{
		Name:   req.Name,
		Upload: req.Upload,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "session store disabled")
		return false
	}
	return true
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	list, err := s.store.List(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if list == nil {
		list = []session.Summary{}
	}
	writeJSON(w, http.StatusOK, list)
}

// handleSaveSession snapshots the live session. An id overwrites that record.
func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	var req struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.ID != "" {
		if _, err := uuid.Parse(req.ID); err != nil {
			writeError(w, http.StatusBadRequest, "id must be a uuid")
			return
		}
	}
	if req.Name == "" {
		req.Name = "Untitled"
		if doc := s.ed.Document(); doc != nil && doc.Title != "" {
			req.Name = doc.Title
		}
	}

	rec := session.Capture(req.ID, req.Name, s.ed, s.tr)
	if err := s.store.Save(r.Context(), rec); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         rec.ID,
		"name":       rec.Name,
		"updated_at": rec.UpdatedAt,
	})
}

func (s *Server) handleLoadSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	rec, err := s.store.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if err := session.Apply(r.Context(), rec, s.ed, s.tr); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.log.Info("session loaded", zap.String("id", rec.ID), zap.String("name", rec.Name))
	writeJSON(w, http.StatusOK, s.ed.Model())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
