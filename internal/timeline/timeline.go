// Package timeline holds the multitrack model: tracks, clips and the
// interval rules between them. It is plain data with no I/O.
package timeline

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Epsilon is the tolerance for comparing positions and durations.
const Epsilon = 1e-6

const (
	DefaultDuration = 60.0 // nominal timeline length, seconds
	DefaultGain     = 1.0
	DefaultVolume   = 1.0
)

// DefaultTrackNames are the tracks a fresh model starts with.
var DefaultTrackNames = []string{"Voix", "Interview", "Ambiance", "Musique"}

// Clip is a window [TrimStart, TrimEnd) of a library item placed at
// Position on a track.
type Clip struct {
	ID            string    `json:"id"`
	LibraryItemID string    `json:"library_item_id"`
	Name          string    `json:"name"`
	Position      float64   `json:"position"`
	Duration      float64   `json:"duration"`
	TrimStart     float64   `json:"trim_start"`
	TrimEnd       float64   `json:"trim_end"`
	FadeIn        float64   `json:"fade_in"`
	FadeOut       float64   `json:"fade_out"`
	Gain          float64   `json:"gain"`
	Envelope      *Envelope `json:"envelope,omitempty"`
}

// End returns Position + Duration.
func (c Clip) End() float64 {
	return c.Position + c.Duration
}

// Clone returns a deep copy.
func (c Clip) Clone() Clip {
	out := c
	out.Envelope = c.Envelope.Clone()
	return out
}

// Overlaps reports whether the clip's half-open interval intersects
// [start, end). Touching edges do not overlap.
func (c Clip) Overlaps(start, end float64) bool {
	return c.Position < end-Epsilon && start < c.End()-Epsilon
}

// ClampFades limits both fades to half the duration.
func (c *Clip) ClampFades() {
	half := c.Duration / 2
	c.FadeIn = math.Max(0, math.Min(c.FadeIn, half))
	c.FadeOut = math.Max(0, math.Min(c.FadeOut, half))
}

// Track is one lane of clips sorted by Position.
type Track struct {
	ID     int     `json:"id"`
	Name   string  `json:"name"`
	Volume float64 `json:"volume"`
	Muted  bool    `json:"muted"`
	Solo   bool    `json:"solo"`
	Clips  []Clip  `json:"clips"`
}

// Sort orders clips by Position.
func (t *Track) Sort() {
	sort.SliceStable(t.Clips, func(i, j int) bool { return t.Clips[i].Position < t.Clips[j].Position })
}

// Model is the whole arrangement. Duration is the nominal length shown to
// the user, independent of where the last clip ends.
type Model struct {
	Tracks   []Track `json:"tracks"`
	Duration float64 `json:"duration"`
}

// New returns a model with the named empty tracks.
func New(names []string, duration float64) *Model {
	if len(names) == 0 {
		names = DefaultTrackNames
	}
	if duration <= 0 {
		duration = DefaultDuration
	}
	m := &Model{Duration: duration, Tracks: make([]Track, len(names))}
	for i, name := range names {
		m.Tracks[i] = Track{ID: i, Name: name, Volume: DefaultVolume, Clips: []Clip{}}
	}
	return m
}

// Clone returns a deep copy sharing nothing with m.
func (m *Model) Clone() *Model {
	out := &Model{Duration: m.Duration, Tracks: make([]Track, len(m.Tracks))}
	for i, t := range m.Tracks {
		nt := t
		nt.Clips = make([]Clip, len(t.Clips))
		for j, c := range t.Clips {
			nt.Clips[j] = c.Clone()
		}
		out.Tracks[i] = nt
	}
	return out
}

// HasTrack reports whether i is a valid track index.
func (m *Model) HasTrack(i int) bool {
	return i >= 0 && i < len(m.Tracks)
}

// ClipsOverlapping returns the clips on track that intersect [start, end),
// ignoring the clip with ID exclude.
func (m *Model) ClipsOverlapping(track int, start, end float64, exclude string) []Clip {
	if !m.HasTrack(track) {
		return nil
	}
	var out []Clip
	for _, c := range m.Tracks[track].Clips {
		if c.ID != exclude && c.Overlaps(start, end) {
			out = append(out, c)
		}
	}
	return out
}

// MaxEndTime is the content length: the latest clip end across all tracks.
func (m *Model) MaxEndTime() float64 {
	end := 0.0
	for _, t := range m.Tracks {
		for _, c := range t.Clips {
			end = math.Max(end, c.End())
		}
	}
	return end
}

// TimelineLength is the larger of the nominal duration and the content length.
func (m *Model) TimelineLength() float64 {
	return math.Max(m.Duration, m.MaxEndTime())
}

// FindClip locates a clip by ID.
func (m *Model) FindClip(id string) (track, index int, ok bool) {
	for ti, t := range m.Tracks {
		for ci, c := range t.Clips {
			if c.ID == id {
				return ti, ci, true
			}
		}
	}
	return -1, -1, false
}

// Clip returns a pointer into the model for the clip with the given ID.
func (m *Model) Clip(id string) (*Clip, int, bool) {
	ti, ci, ok := m.FindClip(id)
	if !ok {
		return nil, -1, false
	}
	return &m.Tracks[ti].Clips[ci], ti, true
}

// AnySolo reports whether any track is soloed.
func (m *Model) AnySolo() bool {
	for _, t := range m.Tracks {
		if t.Solo {
			return true
		}
	}
	return false
}

// Audible applies the solo rule: with any solo active only soloed tracks
// sound, otherwise every unmuted track does.
func (m *Model) Audible(track int) bool {
	if !m.HasTrack(track) {
		return false
	}
	t := m.Tracks[track]
	if m.AnySolo() {
		return t.Solo
	}
	return !t.Muted
}

// References counts clips pointing at a library item.
func (m *Model) References(itemID string) int {
	n := 0
	for _, t := range m.Tracks {
		for _, c := range t.Clips {
			if c.LibraryItemID == itemID {
				n++
			}
		}
	}
	return n
}

// Validate checks every structural invariant and returns the first violation.
func (m *Model) Validate() error {
	for ti, t := range m.Tracks {
		for ci, c := range t.Clips {
			switch {
			case c.Position < -Epsilon:
				return fmt.Errorf("track %d clip %s: negative position %v", ti, c.ID, c.Position)
			case c.Duration <= 0:
				return fmt.Errorf("track %d clip %s: non-positive duration %v", ti, c.ID, c.Duration)
			case math.Abs(c.TrimEnd-c.TrimStart-c.Duration) > Epsilon:
				return fmt.Errorf("track %d clip %s: trim window %v..%v does not match duration %v",
					ti, c.ID, c.TrimStart, c.TrimEnd, c.Duration)
			case c.FadeIn < 0 || c.FadeOut < 0:
				return fmt.Errorf("track %d clip %s: negative fade", ti, c.ID)
			case c.FadeIn+c.FadeOut > c.Duration+Epsilon:
				return fmt.Errorf("track %d clip %s: fades %v+%v exceed duration %v",
					ti, c.ID, c.FadeIn, c.FadeOut, c.Duration)
			case c.Gain < 0:
				return fmt.Errorf("track %d clip %s: negative gain", ti, c.ID)
			}
			if ci > 0 {
				prev := t.Clips[ci-1]
				if c.Position < prev.Position {
					return fmt.Errorf("track %d: clips out of order at %s", ti, c.ID)
				}
				if prev.Overlaps(c.Position, c.End()) {
					return fmt.Errorf("track %d: clip %s overlaps %s", ti, c.ID, prev.ID)
				}
			}
		}
	}
	return nil
}

// ParseDuration reads "m:ss" (or plain seconds). Anything unparseable yields
// DefaultDuration.
func ParseDuration(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultDuration
	}
	parts := strings.Split(s, ":")
	if len(parts) > 2 {
		return DefaultDuration
	}
	total := 0.0
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return DefaultDuration
		}
		total = total*60 + float64(n)
	}
	if total <= 0 {
		return DefaultDuration
	}
	return total
}
