// Package history keeps bounded undo/redo snapshots of the timeline model.
package history

import "github.com/satindergrewal/mixdesk/internal/timeline"

// DefaultLimit is the number of states kept when none is configured.
const DefaultLimit = 50

// Manager stores deep copies of the model. index points at the state that
// matches the live model.
type Manager struct {
	limit  int
	states []*timeline.Model
	index  int
}

// New creates a manager. A non-positive limit uses DefaultLimit.
func New(limit int) *Manager {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Manager{limit: limit, index: -1}
}

// Reset discards all history and records baseline as the only state.
func (h *Manager) Reset(baseline *timeline.Model) {
	h.states = []*timeline.Model{baseline.Clone()}
	h.index = 0
}

// Snapshot records m as the newest state, dropping any redo states and
// evicting the oldest when over the limit.
func (h *Manager) Snapshot(m *timeline.Model) {
	h.states = append(h.states[:h.index+1], m.Clone())
	if len(h.states) > h.limit {
		drop := len(h.states) - h.limit
		h.states = append([]*timeline.Model(nil), h.states[drop:]...)
	}
	h.index = len(h.states) - 1
}

// Undo steps back one state and returns a copy of it.
func (h *Manager) Undo() (*timeline.Model, bool) {
	if !h.CanUndo() {
		return nil, false
	}
	h.index--
	return h.states[h.index].Clone(), true
}

// Redo steps forward one state and returns a copy of it.
func (h *Manager) Redo() (*timeline.Model, bool) {
	if !h.CanRedo() {
		return nil, false
	}
	h.index++
	return h.states[h.index].Clone(), true
}

func (h *Manager) CanUndo() bool { return h.index > 0 }

func (h *Manager) CanRedo() bool { return h.index >= 0 && h.index < len(h.states)-1 }

// Any reports whether pred holds for any stored state.
func (h *Manager) Any(pred func(m *timeline.Model) bool) bool {
	for _, m := range h.states {
		if pred(m) {
			return true
		}
	}
	return false
}

// Len returns the number of stored states.
func (h *Manager) Len() int { return len(h.states) }
