package transport

import (
	"math"

	"github.com/google/uuid"

	"github.com/satindergrewal/mixdesk/internal/audio"
	"github.com/satindergrewal/mixdesk/internal/timeline"
)

// Instruction tells the backend to play one source window. When is relative
// to the start of the playback session; source times are in the library item.
type Instruction struct {
	ClipID        string           `json:"clip_id"`
	LibraryItemID string           `json:"library_item_id"`
	TrackIndex    int              `json:"track"`
	When          float64          `json:"when"`
	Offset        float64          `json:"offset"`
	Duration      float64          `json:"duration"`
	SourceStart   float64          `json:"source_start"`
	SourceEnd     float64          `json:"source_end"`
	Gain          audio.Automation `json:"gain"`
}

// Schedule is everything one playback session has to play.
type Schedule struct {
	SessionID    uuid.UUID     `json:"session_id"`
	From         float64       `json:"from"`
	Instructions []Instruction `json:"instructions"`
}

// BuildSchedule lists the instructions needed to play model from timeline
// time from. Only audible tracks contribute and clips that ended before from
// are skipped.
func BuildSchedule(model *timeline.Model, from float64) []Instruction {
	var out []Instruction
	for ti, track := range model.Tracks {
		if !model.Audible(ti) {
			continue
		}
		for _, c := range track.Clips {
			end := c.End()
			if end <= from {
				continue
			}
			when := math.Max(0, c.Position-from)
			offset := math.Max(0, from-c.Position)
			dur := math.Min(c.Duration-offset, end-from)
			if dur <= 0 {
				continue
			}
			out = append(out, Instruction{
				ClipID:        c.ID,
				LibraryItemID: c.LibraryItemID,
				TrackIndex:    ti,
				When:          when,
				Offset:        offset,
				Duration:      dur,
				SourceStart:   c.TrimStart + offset,
				SourceEnd:     c.TrimStart + offset + dur,
				Gain:          c.GainAutomation(track.Volume, offset, dur),
			})
		}
	}
	return out
}
