// Package server exposes the editor, the transport and the export path over
// HTTP for the host UI.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/satindergrewal/mixdesk/internal/editor"
	"github.com/satindergrewal/mixdesk/internal/export"
	"github.com/satindergrewal/mixdesk/internal/library"
	"github.com/satindergrewal/mixdesk/internal/mixdown"
	"github.com/satindergrewal/mixdesk/internal/session"
	"github.com/satindergrewal/mixdesk/internal/transport"
)

// MaxUploadBytes caps an imported audio file.
const MaxUploadBytes = 512 << 20

// Options wires the collaborators. Store, Stream, Offer and Listeners are
// optional.
type Options struct {
	Editor    *editor.Engine
	Transport *transport.Transport
	Exporter  *export.Exporter
	Store     *session.Store
	Stream    http.Handler // MP3 preview
	Offer     http.Handler // WebRTC SDP exchange
	Listeners func() int
	Snap      bool // default snapping when a request does not say
	Logger    *zap.Logger
}

type Server struct {
	ed        *editor.Engine
	tr        *transport.Transport
	exp       *export.Exporter
	store     *session.Store
	stream    http.Handler
	offer     http.Handler
	listeners func() int
	snap      bool
	log       *zap.Logger
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Server{
		ed:        opts.Editor,
		tr:        opts.Transport,
		exp:       opts.Exporter,
		store:     opts.Store,
		stream:    opts.Stream,
		offer:     opts.Offer,
		listeners: opts.Listeners,
		snap:      opts.Snap,
		log:       opts.Logger,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	if s.stream != nil {
		r.Handle("/stream", s.stream)
	}
	if s.offer != nil {
		r.Handle("/offer", s.offer)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/model", s.handleModel)

		r.Get("/library", s.handleListItems)
		r.Post("/library", s.handleImport)
		r.Delete("/library/{id}", s.handleRemoveItem)

		r.Post("/clips", s.handleAddClip)
		r.Delete("/clips/{id}", s.handleDeleteClip)
		r.Post("/clips/{id}/move", s.handleMoveClip)
		r.Post("/clips/{id}/split", s.handleSplitClip)
		r.Post("/clips/{id}/trim", s.handleTrimClip)
		r.Post("/clips/{id}/fade", s.handleSetFade)
		r.Post("/clips/{id}/gain", s.handleSetGain)
		r.Put("/clips/{id}/envelope", s.handleSetEnvelope)
		r.Post("/clips/{id}/copy", s.handleCopyClip)
		r.Post("/clips/{id}/cut", s.handleCutClip)
		r.Post("/paste", s.handlePaste)
		r.Post("/split", s.handleSplitAtPlayhead)
		r.Post("/cut-range", s.handleCutRange)
		r.Post("/undo", s.handleUndo)
		r.Post("/redo", s.handleRedo)
		r.Post("/relink", s.handleRelink)

		r.Post("/tracks/{track}/mute", s.handleMute)
		r.Post("/tracks/{track}/solo", s.handleSolo)
		r.Post("/tracks/{track}/volume", s.handleVolume)
		r.Post("/tracks/{track}/name", s.handleRename)
		r.Post("/tracks/{track}/arm", s.handleArm)

		r.Post("/transport/play", s.handlePlay)
		r.Post("/transport/pause", s.handlePause)
		r.Post("/transport/stop", s.handleStop)
		r.Post("/transport/toggle", s.handleToggle)
		r.Post("/transport/seek", s.handleSeek)
		r.Post("/transport/nudge", s.handleNudge)
		r.Post("/transport/start", s.handleGoToStart)
		r.Post("/transport/end", s.handleGoToEnd)
		r.Post("/transport/in", s.handleGoToIn)
		r.Post("/transport/out", s.handleGoToOut)

		r.Post("/markers/in", s.handleSetIn)
		r.Post("/markers/out", s.handleSetOut)
		r.Delete("/markers", s.handleClearMarkers)

		r.Post("/record/start", s.handleRecordStart)
		r.Post("/record/stop", s.handleRecordStop)

		r.Get("/mixdown", s.handleMixdown)
		r.Post("/export", s.handleExport)

		r.Get("/sessions", s.handleListSessions)
		r.Post("/sessions", s.handleSaveSession)
		r.Post("/sessions/{id}/load", s.handleLoadSession)
		r.Delete("/sessions/{id}", s.handleDeleteSession)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "mixdesk",
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// writeEngineError maps engine errors onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var (
		overlap *editor.OverlapError
		rng     *editor.InvalidRangeError
		decode  *library.DecodeError
	)
	switch {
	case errors.As(err, &overlap):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":            err.Error(),
			"track":            overlap.TrackIndex,
			"conflicting_clip": overlap.ConflictingClipID,
		})
	case errors.As(err, &rng), errors.As(err, &decode),
		errors.Is(err, mixdown.ErrEmptyMix), errors.Is(err, session.ErrMissingItem):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, editor.ErrNoOp):
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, editor.ErrClipNotFound),
		errors.Is(err, editor.ErrTrackNotFound),
		errors.Is(err, editor.ErrItemNotFound),
		errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, editor.ErrBusy), errors.Is(err, mixdown.ErrRenderInProgress):
		writeError(w, http.StatusLocked, err.Error())
	case errors.Is(err, editor.ErrItemInUse),
		errors.Is(err, editor.ErrEmptyClipboard),
		errors.Is(err, transport.ErrNoArmedTrack),
		errors.Is(err, transport.ErrNotRecording),
		errors.Is(err, transport.ErrAlreadyRecording),
		errors.Is(err, transport.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, transport.ErrNoCapture), errors.Is(err, export.ErrNoUploader):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
