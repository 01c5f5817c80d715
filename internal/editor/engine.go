// Package editor applies edits to the timeline model. Every structural edit
// runs on a copy that only replaces the live model once it succeeds, and
// records exactly one history snapshot.
package editor

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/satindergrewal/mixdesk/internal/history"
	"github.com/satindergrewal/mixdesk/internal/library"
	"github.com/satindergrewal/mixdesk/internal/timeline"
)

// DefaultGrid is the snap resolution in seconds.
const DefaultGrid = 0.1

// RelinkTrackNames replace the default names when a session is linked to a
// news document.
var RelinkTrackNames = []string{"Commentaire", "Interview", "Ambiance", "Musique"}

// Options configures a new Engine.
type Options struct {
	TrackNames   []string
	Duration     float64
	Grid         float64
	HistoryLimit int
	Logger       *zap.Logger
}

// Document is the news item a session is produced for.
type Document struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	TargetDuration string `json:"target_duration"` // "m:ss"
}

// Engine owns the live model, its history and the clipboard.
type Engine struct {
	lib  *library.Library
	grid float64
	log  *zap.Logger

	mu        sync.Mutex
	pass      atomic.Bool
	model     *timeline.Model
	hist      *history.Manager
	clipboard *timeline.Clip
	doc       *Document
}

// New creates an engine over lib with a fresh model as history baseline.
func New(lib *library.Library, opts Options) *Engine {
	if opts.Grid <= 0 {
		opts.Grid = DefaultGrid
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	e := &Engine{
		lib:   lib,
		grid:  opts.Grid,
		log:   opts.Logger,
		model: timeline.New(opts.TrackNames, opts.Duration),
		hist:  history.New(opts.HistoryLimit),
	}
	e.hist.Reset(e.model)
	return e
}

// Library returns the asset library the engine edits against.
func (e *Engine) Library() *library.Library { return e.lib }

// Grid returns the snap resolution.
func (e *Engine) Grid() float64 { return e.grid }

// lock acquires the engine for a write, refusing while a View pass runs.
func (e *Engine) lock() error {
	if e.pass.Load() {
		return ErrBusy
	}
	e.mu.Lock()
	return nil
}

// mutate runs fn on a copy of the model and commits it with one snapshot.
// fn returning errUnchanged commits nothing and reports success.
func (e *Engine) mutate(op string, fn func(m *timeline.Model) error) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()

	work := e.model.Clone()
	if err := fn(work); err != nil {
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}
	if err := work.Validate(); err != nil {
		e.log.Error("edit rejected", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	e.model = work
	e.hist.Snapshot(work)
	e.log.Debug("edit applied", zap.String("op", op), zap.Int("history", e.hist.Len()))
	return nil
}

// control applies a non-structural change in place without a snapshot.
func (e *Engine) control(fn func(m *timeline.Model) error) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()
	work := e.model.Clone()
	if err := fn(work); err != nil {
		return err
	}
	e.model = work
	return nil
}

// Model returns a deep copy of the live model.
func (e *Engine) Model() *timeline.Model {
	if e.pass.Load() {
		// a View pass holds the lock and only reads
		return e.model.Clone()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model.Clone()
}

// View runs fn against the live model while holding the engine. fn must not
// retain or modify the model; edits attempted from inside fn fail with
// ErrBusy.
func (e *Engine) View(fn func(m *timeline.Model)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pass.Store(true)
	defer e.pass.Store(false)
	fn(e.model)
}

// Load replaces the model, for example after restoring a session, and makes
// it the new history baseline.
func (e *Engine) Load(m *timeline.Model, doc *Document) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()
	e.model = m.Clone()
	e.hist.Reset(e.model)
	e.clipboard = nil
	e.doc = doc
	return nil
}

// Undo restores the previous state. It reports false when there is none.
func (e *Engine) Undo() bool {
	if e.lock() != nil {
		return false
	}
	defer e.mu.Unlock()
	m, ok := e.hist.Undo()
	if ok {
		e.model = m
		e.log.Debug("undo", zap.Int("history", e.hist.Len()))
	}
	return ok
}

// Redo re-applies the next state. It reports false when there is none.
func (e *Engine) Redo() bool {
	if e.lock() != nil {
		return false
	}
	defer e.mu.Unlock()
	m, ok := e.hist.Redo()
	if ok {
		e.model = m
		e.log.Debug("redo", zap.Int("history", e.hist.Len()))
	}
	return ok
}

// CanUndo and CanRedo report history availability.
func (e *Engine) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hist.CanUndo()
}

func (e *Engine) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hist.CanRedo()
}

// Document returns the linked news document, if any.
func (e *Engine) Document() *Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return nil
	}
	d := *e.doc
	return &d
}

// Relink attaches the session to a news document: every clip and library
// item goes, tracks are renamed and the nominal length follows the target
// duration. History restarts from the cleared state.
func (e *Engine) Relink(doc Document) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()

	m := e.model.Clone()
	for i := range m.Tracks {
		m.Tracks[i].Clips = []timeline.Clip{}
		if i < len(RelinkTrackNames) {
			m.Tracks[i].Name = RelinkTrackNames[i]
		}
	}
	m.Duration = math.Max(timeline.ParseDuration(doc.TargetDuration)*1.5, 120)

	e.model = m
	e.lib.Clear()
	e.clipboard = nil
	e.doc = &doc
	e.hist.Reset(m)
	e.log.Info("session relinked",
		zap.String("document", doc.ID),
		zap.String("title", doc.Title),
		zap.Float64("duration", m.Duration))
	return nil
}

// place converts a requested position to a stored one: snapped to the grid
// when asked, never negative.
func (e *Engine) place(t float64, snap bool) float64 {
	if snap && e.grid > 0 {
		t = math.Round(t/e.grid) * e.grid
		t = math.Round(t*1e6) / 1e6
	}
	if t < 0 {
		t = 0
	}
	return t
}

func checkFinite(op string, vals ...float64) error {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &InvalidRangeError{Op: op, Start: v, End: v, Reason: "not a finite number"}
		}
	}
	return nil
}
