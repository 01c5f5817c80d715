package session

import (
	"context"
	"fmt"

	"github.com/satindergrewal/mixdesk/internal/editor"
	"github.com/satindergrewal/mixdesk/internal/transport"
)

// Capture builds a record of the live session. The model is a deep copy;
// library items are shared since they are immutable.
func Capture(id, name string, ed *editor.Engine, tr *transport.Transport) *Record {
	rec := &Record{
		ID:       id,
		Name:     name,
		Model:    ed.Model(),
		Items:    ed.Library().Items(),
		Document: ed.Document(),
	}
	if tr != nil {
		rec.Markers = tr.Markers()
	}
	return rec
}

// Apply replaces the live session with rec: library contents, model and
// history baseline, then transport markers. Nothing changes if the saved
// model is invalid or places an item the record does not carry; a failed
// model load puts the previous library back.
func Apply(ctx context.Context, rec *Record, ed *editor.Engine, tr *transport.Transport) error {
	if err := rec.Model.Validate(); err != nil {
		return fmt.Errorf("restore session %s: %w", rec.ID, err)
	}
	if err := checkItems(rec); err != nil {
		return fmt.Errorf("restore session %s: %w", rec.ID, err)
	}
	if tr != nil {
		if err := tr.Stop(ctx); err != nil {
			return fmt.Errorf("stop transport: %w", err)
		}
	}

	lib := ed.Library()
	previous := lib.Items()
	lib.Restore(rec.Items)
	if err := ed.Load(rec.Model, rec.Document); err != nil {
		lib.Restore(previous)
		return fmt.Errorf("restore session %s: %w", rec.ID, err)
	}
	if tr != nil {
		if err := tr.Restore(ctx, rec.Markers); err != nil {
			return fmt.Errorf("restore markers: %w", err)
		}
	}
	return nil
}

func checkItems(rec *Record) error {
	have := make(map[string]bool, len(rec.Items))
	for _, it := range rec.Items {
		have[it.ID] = true
	}
	for _, t := range rec.Model.Tracks {
		for _, c := range t.Clips {
			if !have[c.LibraryItemID] {
				return fmt.Errorf("clip %s: %w", c.ID, ErrMissingItem)
			}
		}
	}
	return nil
}
