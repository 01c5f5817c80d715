package server

import (
	"context"
	"net/http"
)

type statusResponse struct {
	Transport any  `json:"transport"`
	Listeners int  `json:"listeners"`
	CanUndo   bool `json:"can_undo"`
	CanRedo   bool `json:"can_redo"`
	Document  any  `json:"document,omitempty"`
	Items     int  `json:"items"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Transport: s.tr.Status(),
		CanUndo:   s.ed.CanUndo(),
		CanRedo:   s.ed.CanRedo(),
		Items:     s.ed.Library().Len(),
	}
	if doc := s.ed.Document(); doc != nil {
		resp.Document = doc
	}
	if s.listeners != nil {
		resp.Listeners = s.listeners()
	}
	writeJSON(w, http.StatusOK, resp)
}

// transportAction runs fn and answers with the resulting status.
func (s *Server) transportAction(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context) error) {
	if err := fn(r.Context()); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.tr.Status())
}

type timeRequest struct {
	At    *float64 `json:"at"`
	Delta float64  `json:"delta"`
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req timeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	s.transportAction(w, r, func(ctx context.Context) error {
		if req.At != nil {
			return s.tr.PlayFrom(ctx, *req.At)
		}
		return s.tr.Play(ctx)
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.transportAction(w, r, s.tr.Pause)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.transportAction(w, r, s.tr.Stop)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	s.transportAction(w, r, s.tr.Toggle)
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req timeRequest
	if err := decodeJSON(r, &req); err != nil || req.At == nil {
		writeError(w, http.StatusBadRequest, "at is required")
		return
	}
	s.transportAction(w, r, func(ctx context.Context) error {
		return s.tr.Seek(ctx, *req.At)
	})
}

func (s *Server) handleNudge(w http.ResponseWriter, r *http.Request) {
	var req timeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	s.transportAction(w, r, func(ctx context.Context) error {
		return s.tr.Nudge(ctx, req.Delta)
	})
}

func (s *Server) handleGoToStart(w http.ResponseWriter, r *http.Request) {
	s.transportAction(w, r, s.tr.GoToStart)
}

func (s *Server) handleGoToEnd(w http.ResponseWriter, r *http.Request) {
	s.transportAction(w, r, s.tr.GoToEnd)
}

func (s *Server) handleGoToIn(w http.ResponseWriter, r *http.Request) {
	s.transportAction(w, r, s.tr.GoToIn)
}

func (s *Server) handleGoToOut(w http.ResponseWriter, r *http.Request) {
	s.transportAction(w, r, s.tr.GoToOut)
}

// handleSetIn marks the in point at the given time or the playhead.
func (s *Server) handleSetIn(w http.ResponseWriter, r *http.Request) {
	s.setMarker(w, r, s.tr.SetInPoint)
}

func (s *Server) handleSetOut(w http.ResponseWriter, r *http.Request) {
	s.setMarker(w, r, s.tr.SetOutPoint)
}

func (s *Server) setMarker(w http.ResponseWriter, r *http.Request, set func(float64)) {
	var req timeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	at := s.tr.Status().CurrentTime
	if req.At != nil {
		at = *req.At
	}
	set(at)
	writeJSON(w, http.StatusOK, s.tr.Markers())
}

func (s *Server) handleClearMarkers(w http.ResponseWriter, r *http.Request) {
	s.tr.ClearInOut()
	writeJSON(w, http.StatusOK, s.tr.Markers())
}

func (s *Server) handleArm(w http.ResponseWriter, r *http.Request) {
	track, err := trackParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	armed, err := s.tr.ToggleArm(track)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"track": track, "armed": armed})
}

func (s *Server) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	s.transportAction(w, r, s.tr.StartRecording)
}

func (s *Server) handleRecordStop(w http.ResponseWriter, r *http.Request) {
	clip, err := s.tr.StopRecording(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, clip)
}
