package editor

import (
	"math"
	"strings"

	"github.com/satindergrewal/mixdesk/internal/timeline"
)

// Track controls change routing only. They are not recorded in history.

// SetMute mutes or unmutes a track.
func (e *Engine) SetMute(track int, muted bool) error {
	return e.control(func(m *timeline.Model) error {
		if !m.HasTrack(track) {
			return ErrTrackNotFound
		}
		m.Tracks[track].Muted = muted
		return nil
	})
}

// ToggleMute flips a track's mute and returns the new state.
func (e *Engine) ToggleMute(track int) (bool, error) {
	var muted bool
	err := e.control(func(m *timeline.Model) error {
		if !m.HasTrack(track) {
			return ErrTrackNotFound
		}
		muted = !m.Tracks[track].Muted
		m.Tracks[track].Muted = muted
		return nil
	})
	return muted, err
}

// SetSolo solos or unsolos a track. Soloing is exclusive: every other track
// loses its solo.
func (e *Engine) SetSolo(track int, solo bool) error {
	return e.control(func(m *timeline.Model) error {
		if !m.HasTrack(track) {
			return ErrTrackNotFound
		}
		setSolo(m, track, solo)
		return nil
	})
}

// ToggleSolo flips a track's solo and returns the new state.
func (e *Engine) ToggleSolo(track int) (bool, error) {
	var solo bool
	err := e.control(func(m *timeline.Model) error {
		if !m.HasTrack(track) {
			return ErrTrackNotFound
		}
		solo = !m.Tracks[track].Solo
		setSolo(m, track, solo)
		return nil
	})
	return solo, err
}

func setSolo(m *timeline.Model, track int, solo bool) {
	if solo {
		for i := range m.Tracks {
			m.Tracks[i].Solo = false
		}
	}
	m.Tracks[track].Solo = solo
}

// SetVolume sets a track's volume, clamped to [0, 1].
func (e *Engine) SetVolume(track int, volume float64) error {
	if err := checkFinite("volume", volume); err != nil {
		return err
	}
	volume = math.Max(0, math.Min(1, volume))
	return e.control(func(m *timeline.Model) error {
		if !m.HasTrack(track) {
			return ErrTrackNotFound
		}
		m.Tracks[track].Volume = volume
		return nil
	})
}

// RenameTrack changes a track's display name. Blank names are ignored.
func (e *Engine) RenameTrack(track int, name string) error {
	name = strings.TrimSpace(name)
	return e.control(func(m *timeline.Model) error {
		if !m.HasTrack(track) {
			return ErrTrackNotFound
		}
		if name != "" {
			m.Tracks[track].Name = name
		}
		return nil
	})
}
