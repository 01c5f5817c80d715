package editor

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satindergrewal/mixdesk/internal/timeline"
)

// Edge selects which end of a clip TrimClip moves.
type Edge int

const (
	EdgeStart Edge = iota
	EdgeEnd
)

// Fade selects a clip fade.
type Fade int

const (
	FadeIn Fade = iota
	FadeOut
)

const eps = timeline.Epsilon

// insertClip places c on track, rejecting any intersection with the clips
// already there.
func insertClip(m *timeline.Model, track int, c timeline.Clip) error {
	if !m.HasTrack(track) {
		return ErrTrackNotFound
	}
	if hits := m.ClipsOverlapping(track, c.Position, c.End(), c.ID); len(hits) > 0 {
		return &OverlapError{TrackIndex: track, ConflictingClipID: hits[0].ID}
	}
	t := &m.Tracks[track]
	t.Clips = append(t.Clips, c)
	t.Sort()
	return nil
}

func removeClip(m *timeline.Model, track, index int) timeline.Clip {
	t := &m.Tracks[track]
	c := t.Clips[index]
	t.Clips = append(t.Clips[:index], t.Clips[index+1:]...)
	return c
}

// slice cuts the clip-local window [from, to) out of c as a new clip at the
// matching timeline position. A piece keeps a fade only on the edge it shares
// with the original, clamped to half its new length.
func slice(c timeline.Clip, from, to float64) timeline.Clip {
	p := c.Clone()
	p.Position = c.Position + from
	p.Duration = to - from
	p.TrimStart = c.TrimStart + from
	p.TrimEnd = p.TrimStart + p.Duration
	p.Envelope = c.Envelope.Slice(from, to)
	if from > eps {
		p.FadeIn = 0
	}
	if to < c.Duration-eps {
		p.FadeOut = 0
	}
	p.ClampFades()
	return p
}

func copyOf(c timeline.Clip) *timeline.Clip {
	out := c.Clone()
	return &out
}

// AddClip places a library item on a track at position.
func (e *Engine) AddClip(itemID string, track int, position float64, snap bool) (*timeline.Clip, error) {
	if err := checkFinite("add", position); err != nil {
		return nil, err
	}
	item, ok := e.lib.Get(itemID)
	if !ok {
		return nil, ErrItemNotFound
	}
	var out *timeline.Clip
	err := e.mutate("add", func(m *timeline.Model) error {
		c := timeline.Clip{
			ID:            uuid.NewString(),
			LibraryItemID: item.ID,
			Name:          item.Name,
			Position:      e.place(position, snap),
			Duration:      item.Duration,
			TrimStart:     0,
			TrimEnd:       item.Duration,
			Gain:          timeline.DefaultGain,
		}
		if err := insertClip(m, track, c); err != nil {
			return err
		}
		out = copyOf(c)
		return nil
	})
	return out, err
}

// MoveClip moves a clip to a new position, possibly on another track. The
// destination is checked for overlap before anything changes.
func (e *Engine) MoveClip(clipID string, track int, position float64, snap bool) (*timeline.Clip, error) {
	if err := checkFinite("move", position); err != nil {
		return nil, err
	}
	var out *timeline.Clip
	err := e.mutate("move", func(m *timeline.Model) error {
		ti, ci, ok := m.FindClip(clipID)
		if !ok {
			return ErrClipNotFound
		}
		if !m.HasTrack(track) {
			return ErrTrackNotFound
		}
		c := removeClip(m, ti, ci)
		pos := e.place(position, snap)
		unchanged := ti == track && math.Abs(c.Position-pos) < eps
		c.Position = pos
		if err := insertClip(m, track, c); err != nil {
			return err
		}
		out = copyOf(c)
		if unchanged {
			return errUnchanged
		}
		return nil
	})
	return out, err
}

// SplitClip cuts a clip in two at timeline time at.
func (e *Engine) SplitClip(clipID string, at float64) (*timeline.Clip, *timeline.Clip, error) {
	if err := checkFinite("split", at); err != nil {
		return nil, nil, err
	}
	var first, second *timeline.Clip
	err := e.mutate("split", func(m *timeline.Model) error {
		ti, ci, ok := m.FindClip(clipID)
		if !ok {
			return ErrClipNotFound
		}
		a, b, ok := splitAt(m, ti, ci, at)
		if !ok {
			return ErrNoOp
		}
		first, second = copyOf(a), copyOf(b)
		return nil
	})
	return first, second, err
}

// splitAt replaces the clip at (track, index) with two pieces when at lies
// strictly inside it.
func splitAt(m *timeline.Model, track, index int, at float64) (timeline.Clip, timeline.Clip, bool) {
	c := m.Tracks[track].Clips[index]
	off := at - c.Position
	if off <= eps || off >= c.Duration-eps {
		return timeline.Clip{}, timeline.Clip{}, false
	}
	first := slice(c, 0, off)
	second := slice(c, off, c.Duration)
	second.ID = uuid.NewString()

	t := &m.Tracks[track]
	t.Clips[index] = first
	t.Clips = append(t.Clips, second)
	t.Sort()
	return first, second, true
}

// SplitAtPlayhead splits every clip on every track that spans at, as one
// edit. It returns the number of clips split.
func (e *Engine) SplitAtPlayhead(at float64) (int, error) {
	if err := checkFinite("split", at); err != nil {
		return 0, err
	}
	n := 0
	err := e.mutate("split-playhead", func(m *timeline.Model) error {
		for ti := range m.Tracks {
			for ci := 0; ci < len(m.Tracks[ti].Clips); ci++ {
				if _, _, ok := splitAt(m, ti, ci, at); ok {
					n++
					ci++ // skip the second piece
				}
			}
		}
		if n == 0 {
			return ErrNoOp
		}
		return nil
	})
	return n, err
}

// TrimClip moves one edge of a clip to timeline time at, revealing or hiding
// source material. The window never leaves the source asset.
func (e *Engine) TrimClip(clipID string, edge Edge, at float64) (*timeline.Clip, error) {
	if err := checkFinite("trim", at); err != nil {
		return nil, err
	}
	var out *timeline.Clip
	err := e.mutate("trim", func(m *timeline.Model) error {
		ti, ci, ok := m.FindClip(clipID)
		if !ok {
			return ErrClipNotFound
		}
		c := m.Tracks[ti].Clips[ci]
		sourceLen := c.TrimEnd
		if item, ok := e.lib.Get(c.LibraryItemID); ok {
			sourceLen = math.Max(item.Duration, c.TrimEnd)
		}

		var from, to float64 // clip-local window to keep
		switch edge {
		case EdgeStart:
			at = math.Max(at, 0)
			at = math.Max(at, c.Position-c.TrimStart)
			from, to = at-c.Position, c.Duration
		case EdgeEnd:
			at = math.Min(at, c.Position+sourceLen-c.TrimStart)
			from, to = 0, at-c.Position
		default:
			return &InvalidRangeError{Op: "trim", Start: at, End: at, Reason: "unknown edge"}
		}
		if to-from <= eps {
			return &InvalidRangeError{Op: "trim", Start: c.Position + from, End: c.Position + to, Reason: "clip would be empty"}
		}
		if math.Abs(from) < eps && math.Abs(to-c.Duration) < eps {
			out = copyOf(c)
			return errUnchanged
		}

		n := c.Clone()
		n.Position = c.Position + from
		n.TrimStart = c.TrimStart + from
		n.Duration = to - from
		n.TrimEnd = n.TrimStart + n.Duration
		n.Envelope = c.Envelope.Slice(from, to)
		n.ClampFades()

		removeClip(m, ti, ci)
		if err := insertClip(m, ti, n); err != nil {
			return err
		}
		out = copyOf(n)
		return nil
	})
	return out, err
}

// SetFade sets a fade length, clamped to half the clip.
func (e *Engine) SetFade(clipID string, which Fade, seconds float64) (*timeline.Clip, error) {
	if err := checkFinite("fade", seconds); err != nil {
		return nil, err
	}
	var out *timeline.Clip
	err := e.mutate("fade", func(m *timeline.Model) error {
		c, _, ok := m.Clip(clipID)
		if !ok {
			return ErrClipNotFound
		}
		v := math.Max(0, math.Min(seconds, c.Duration/2))
		target := &c.FadeIn
		if which == FadeOut {
			target = &c.FadeOut
		}
		unchanged := math.Abs(*target-v) < eps
		*target = v
		out = copyOf(*c)
		if unchanged {
			return errUnchanged
		}
		return nil
	})
	return out, err
}

// SetClipGain sets the clip gain multiplier.
func (e *Engine) SetClipGain(clipID string, gain float64) (*timeline.Clip, error) {
	if err := checkFinite("gain", gain); err != nil {
		return nil, err
	}
	if gain < 0 {
		return nil, &InvalidRangeError{Op: "gain", Start: gain, End: gain, Reason: "gain must be >= 0"}
	}
	var out *timeline.Clip
	err := e.mutate("gain", func(m *timeline.Model) error {
		c, _, ok := m.Clip(clipID)
		if !ok {
			return ErrClipNotFound
		}
		unchanged := c.Gain == gain
		c.Gain = gain
		out = copyOf(*c)
		if unchanged {
			return errUnchanged
		}
		return nil
	})
	return out, err
}

// SetEnvelope replaces the clip's volume envelope; nil removes it.
func (e *Engine) SetEnvelope(clipID string, env *timeline.Envelope) (*timeline.Clip, error) {
	env = env.Clone()
	if env != nil {
		for _, p := range env.Points {
			if err := checkFinite("envelope", p.Time, p.Volume); err != nil {
				return nil, err
			}
		}
		env.Normalize()
		if len(env.Points) == 0 {
			env = nil
		}
	}
	var out *timeline.Clip
	err := e.mutate("envelope", func(m *timeline.Model) error {
		c, _, ok := m.Clip(clipID)
		if !ok {
			return ErrClipNotFound
		}
		c.Envelope = env
		out = copyOf(*c)
		return nil
	})
	return out, err
}

// CutRange removes [in, out) from every track and closes the gap. Clips
// straddling a boundary are trimmed or split. It returns the removed length.
func (e *Engine) CutRange(in, out float64) (float64, error) {
	if err := checkFinite("cut", in, out); err != nil {
		return 0, err
	}
	in = math.Max(in, 0)
	if out-in <= eps {
		return 0, &InvalidRangeError{Op: "cut", Start: in, End: out, Reason: "in must be before out"}
	}
	removed := out - in
	err := e.mutate("cut", func(m *timeline.Model) error {
		changed := false
		for ti := range m.Tracks {
			t := &m.Tracks[ti]
			kept := make([]timeline.Clip, 0, len(t.Clips))
			for _, c := range t.Clips {
				switch {
				case c.End() <= in+eps:
					kept = append(kept, c)
					continue
				case c.Position >= out-eps:
					c.Position -= removed
					kept = append(kept, c)
				case c.Position >= in-eps && c.End() <= out+eps:
					// fully inside: dropped
				case c.Position < in-eps && c.End() > out+eps:
					head := slice(c, 0, in-c.Position)
					tail := slice(c, out-c.Position, c.Duration)
					tail.ID = uuid.NewString()
					tail.Position = in
					kept = append(kept, head, tail)
				case c.Position < in-eps:
					kept = append(kept, slice(c, 0, in-c.Position))
				default:
					tail := slice(c, out-c.Position, c.Duration)
					tail.Position = in
					kept = append(kept, tail)
				}
				changed = true
			}
			t.Clips = kept
			t.Sort()
		}
		if !changed {
			return errUnchanged
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// DeleteClip removes a clip.
func (e *Engine) DeleteClip(clipID string) error {
	return e.mutate("delete", func(m *timeline.Model) error {
		ti, ci, ok := m.FindClip(clipID)
		if !ok {
			return ErrClipNotFound
		}
		removeClip(m, ti, ci)
		return nil
	})
}

// CopyClip puts a copy of the clip on the clipboard.
func (e *Engine) CopyClip(clipID string) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()
	c, _, ok := e.model.Clip(clipID)
	if !ok {
		return ErrClipNotFound
	}
	e.clipboard = copyOf(*c)
	return nil
}

// CutClip copies the clip to the clipboard and deletes it.
func (e *Engine) CutClip(clipID string) error {
	var cb *timeline.Clip
	err := e.mutate("cut-clip", func(m *timeline.Model) error {
		ti, ci, ok := m.FindClip(clipID)
		if !ok {
			return ErrClipNotFound
		}
		cb = copyOf(removeClip(m, ti, ci))
		return nil
	})
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.clipboard = cb
	e.mu.Unlock()
	return nil
}

// Paste places a new copy of the clipboard clip.
func (e *Engine) Paste(track int, position float64, snap bool) (*timeline.Clip, error) {
	if err := checkFinite("paste", position); err != nil {
		return nil, err
	}
	var out *timeline.Clip
	err := e.mutate("paste", func(m *timeline.Model) error {
		if e.clipboard == nil {
			return ErrEmptyClipboard
		}
		if _, ok := e.lib.Get(e.clipboard.LibraryItemID); !ok {
			e.clipboard = nil
			return ErrItemNotFound
		}
		c := e.clipboard.Clone()
		c.ID = uuid.NewString()
		c.Position = e.place(position, snap)
		if err := insertClip(m, track, c); err != nil {
			return err
		}
		out = copyOf(c)
		return nil
	})
	return out, err
}

// RemoveItem deletes a library item. Items still used by clips are refused
// unless cascade is set, in which case those clips go in the same edit.
// History restarts whenever a stored state still places the item.
func (e *Engine) RemoveItem(itemID string, cascade bool) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()

	if _, ok := e.lib.Get(itemID); !ok {
		return ErrItemNotFound
	}
	refs := e.model.References(itemID)
	if refs > 0 && !cascade {
		return ErrItemInUse
	}
	if refs > 0 {
		work := e.model.Clone()
		for ti := range work.Tracks {
			t := &work.Tracks[ti]
			kept := t.Clips[:0]
			for _, c := range t.Clips {
				if c.LibraryItemID != itemID {
					kept = append(kept, c)
				}
			}
			t.Clips = kept
		}
		if err := work.Validate(); err != nil {
			return fmt.Errorf("remove-item: %w", err)
		}
		e.model = work
	}

	e.lib.Remove(itemID)
	if e.clipboard != nil && e.clipboard.LibraryItemID == itemID {
		e.clipboard = nil
	}
	referenced := e.hist.Any(func(m *timeline.Model) bool { return m.References(itemID) > 0 })
	if referenced {
		e.hist.Reset(e.model)
	}
	e.log.Info("library item removed",
		zap.String("item", itemID),
		zap.Int("clips", refs),
		zap.Bool("history_reset", referenced))
	return nil
}
