package server

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/satindergrewal/mixdesk/internal/editor"
	"github.com/satindergrewal/mixdesk/internal/timeline"
)

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ed.Model())
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ed.Library().Items())
}

// handleImport accepts a multipart "file" field or a raw body named by the
// name query parameter.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)

	var (
		raw  []byte
		name = r.URL.Query().Get("name")
		err  error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			writeError(w, http.StatusBadRequest, "missing file field")
			return
		}
		defer file.Close()
		if name == "" {
			name = header.Filename
		}
		raw, err = io.ReadAll(file)
	} else {
		raw, err = io.ReadAll(r.Body)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}
	if len(raw) == 0 {
		writeError(w, http.StatusBadRequest, "empty upload")
		return
	}
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing file name")
		return
	}

	item, dup, err := s.ed.Library().Import(r.Context(), raw, filepath.Base(name))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	status := http.StatusCreated
	if dup {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"item": item, "duplicate": dup})
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	cascade, _ := strconv.ParseBool(r.URL.Query().Get("cascade"))
	if err := s.ed.RemoveItem(chi.URLParam(r, "id"), cascade); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type placeRequest struct {
	ItemID   string   `json:"item_id"`
	Track    int      `json:"track"`
	Position float64  `json:"position"`
	Snap     *bool    `json:"snap"`
	At       *float64 `json:"at"`
}

func (s *Server) snapFor(p *bool) bool {
	if p == nil {
		return s.snap
	}
	return *p
}

func (s *Server) handleAddClip(w http.ResponseWriter, r *http.Request) {
	var req placeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	clip, err := s.ed.AddClip(req.ItemID, req.Track, req.Position, s.snapFor(req.Snap))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, clip)
}

func (s *Server) handleMoveClip(w http.ResponseWriter, r *http.Request) {
	var req placeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	clip, err := s.ed.MoveClip(chi.URLParam(r, "id"), req.Track, req.Position, s.snapFor(req.Snap))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clip)
}

func (s *Server) handleSplitClip(w http.ResponseWriter, r *http.Request) {
	var req placeRequest
	if err := decodeJSON(r, &req); err != nil || req.At == nil {
		writeError(w, http.StatusBadRequest, "at is required")
		return
	}
	first, second, err := s.ed.SplitClip(chi.URLParam(r, "id"), *req.At)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, []*timeline.Clip{first, second})
}

func (s *Server) handleSplitAtPlayhead(w http.ResponseWriter, r *http.Request) {
	var req placeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	at := s.tr.Status().CurrentTime
	if req.At != nil {
		at = *req.At
	}
	n, err := s.ed.SplitAtPlayhead(at)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"split": n, "at": at})
}

func (s *Server) handleTrimClip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Edge string  `json:"edge"`
		At   float64 `json:"at"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	var edge editor.Edge
	switch req.Edge {
	case "start":
		edge = editor.EdgeStart
	case "end":
		edge = editor.EdgeEnd
	default:
		writeError(w, http.StatusBadRequest, "edge must be start or end")
		return
	}
	clip, err := s.ed.TrimClip(chi.URLParam(r, "id"), edge, req.At)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clip)
}

func (s *Server) handleSetFade(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Which   string  `json:"which"`
		Seconds float64 `json:"seconds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	var which editor.Fade
	switch req.Which {
	case "in":
		which = editor.FadeIn
	case "out":
		which = editor.FadeOut
	default:
		writeError(w, http.StatusBadRequest, "which must be in or out")
		return
	}
	clip, err := s.ed.SetFade(chi.URLParam(r, "id"), which, req.Seconds)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clip)
}

func (s *Server) handleSetGain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Gain *float64 `json:"gain"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Gain == nil {
		writeError(w, http.StatusBadRequest, "gain is required")
		return
	}
	clip, err := s.ed.SetClipGain(chi.URLParam(r, "id"), *req.Gain)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clip)
}

// handleSetEnvelope replaces the clip envelope; a null or empty body clears it.
func (s *Server) handleSetEnvelope(w http.ResponseWriter, r *http.Request) {
	var env *timeline.Envelope
	if err := decodeJSON(r, &env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid envelope")
		return
	}
	clip, err := s.ed.SetEnvelope(chi.URLParam(r, "id"), env)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clip)
}

func (s *Server) handleDeleteClip(w http.ResponseWriter, r *http.Request) {
	if err := s.ed.DeleteClip(chi.URLParam(r, "id")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCopyClip(w http.ResponseWriter, r *http.Request) {
	if err := s.ed.CopyClip(chi.URLParam(r, "id")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCutClip(w http.ResponseWriter, r *http.Request) {
	if err := s.ed.CutClip(chi.URLParam(r, "id")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePaste(w http.ResponseWriter, r *http.Request) {
	var req placeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	clip, err := s.ed.Paste(req.Track, req.Position, s.snapFor(req.Snap))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, clip)
}

// handleCutRange removes [in, out); missing bounds come from the transport
// markers.
func (s *Server) handleCutRange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		In  *float64 `json:"in"`
		Out *float64 `json:"out"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	in, out := s.tr.InOut()
	if req.In != nil {
		in = req.In
	}
	if req.Out != nil {
		out = req.Out
	}
	if in == nil || out == nil {
		writeError(w, http.StatusBadRequest, "in and out points are required")
		return
	}
	removed, err := s.ed.CutRange(*in, *out)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.tr.ClearInOut()
	if err := s.tr.Seek(r.Context(), *in); err != nil {
		s.log.Warn("seek after cut", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.writeHistory(w, r, s.ed.Undo())
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	s.writeHistory(w, r, s.ed.Redo())
}

func (s *Server) writeHistory(w http.ResponseWriter, r *http.Request, changed bool) {
	if !changed {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := s.tr.Refresh(r.Context()); err != nil {
		s.log.Warn("refresh after history change", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"can_undo": s.ed.CanUndo(),
		"can_redo": s.ed.CanRedo(),
	})
}

func (s *Server) handleRelink(w http.ResponseWriter, r *http.Request) {
	var doc editor.Document
	if err := decodeJSON(r, &doc); err != nil || doc.ID == "" {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}
	if err := s.tr.Stop(r.Context()); err != nil {
		s.writeEngineError(w, err)
		return
	}
	if err := s.ed.Relink(doc); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.tr.ClearInOut()
	s.tr.Disarm()
	if err := s.tr.GoToStart(r.Context()); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ed.Model())
}

func trackParam(r *http.Request) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, "track"))
	if err != nil {
		return 0, errors.New("track must be an integer")
	}
	return n, nil
}

// handleMute sets mute when the body says so and toggles it otherwise.
func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	s.trackFlag(w, r, "muted", s.ed.SetMute, s.ed.ToggleMute)
}

func (s *Server) handleSolo(w http.ResponseWriter, r *http.Request) {
	s.trackFlag(w, r, "solo", s.ed.SetSolo, s.ed.ToggleSolo)
}

func (s *Server) trackFlag(w http.ResponseWriter, r *http.Request, key string,
	set func(int, bool) error, toggle func(int) (bool, error)) {
	track, err := trackParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req map[string]*bool
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	var value bool
	if v := req[key]; v != nil {
		value = *v
		err = set(track, value)
	} else {
		value, err = toggle(track)
	}
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if err := s.tr.Refresh(r.Context()); err != nil {
		s.log.Warn("refresh after routing change", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{"track": track, key: value})
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	track, err := trackParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req struct {
		Volume *float64 `json:"volume"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Volume == nil {
		writeError(w, http.StatusBadRequest, "volume is required")
		return
	}
	if err := s.ed.SetVolume(track, *req.Volume); err != nil {
		s.writeEngineError(w, err)
		return
	}
	if err := s.tr.Refresh(r.Context()); err != nil {
		s.log.Warn("refresh after volume change", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, s.ed.Model().Tracks[track])
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	track, err := trackParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if err := s.ed.RenameTrack(track, req.Name); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ed.Model().Tracks[track])
}
