package transport

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satindergrewal/mixdesk/internal/editor"
	"github.com/satindergrewal/mixdesk/internal/library"
	"github.com/satindergrewal/mixdesk/internal/timeline"
)

// Arm selects the track that receives recordings. Only one track is armed.
func (t *Transport) Arm(track int) error {
	if !t.editor.Model().HasTrack(track) {
		return editor.ErrTrackNotFound
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed = &track
	return nil
}

// ToggleArm arms track, or disarms it when it is already armed. It returns
// whether the track ends up armed.
func (t *Transport) ToggleArm(track int) (bool, error) {
	if !t.editor.Model().HasTrack(track) {
		return false, editor.ErrTrackNotFound
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.armed != nil && *t.armed == track {
		t.armed = nil
		return false, nil
	}
	t.armed = &track
	return true, nil
}

// Disarm clears the armed track.
func (t *Transport) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed = nil
}

// Armed returns the armed track, if any.
func (t *Transport) Armed() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.armed == nil {
		return -1, false
	}
	return *t.armed, true
}

// Recording reports whether a take is in progress.
func (t *Transport) Recording() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recording
}

// StartRecording begins a take at the current playhead on the armed track.
// The transport must be stopped or paused.
func (t *Transport) StartRecording(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.recording {
		return ErrAlreadyRecording
	}
	if t.armed == nil {
		return ErrNoArmedTrack
	}
	if t.state == Playing {
		return ErrInvalidState
	}
	if t.capture == nil {
		return ErrNoCapture
	}
	if err := t.capture.Start(ctx); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	t.recording = true
	t.recordTrack = *t.armed
	t.recordStart = t.current
	t.recordRef = t.clock.Now()
	t.log.Info("recording started",
		zap.Int("track", t.recordTrack),
		zap.Float64("at", t.recordStart))
	return nil
}

// StopRecording ends the take, imports it into the library and places it on
// the armed track at the time recording began.
func (t *Transport) StopRecording(ctx context.Context) (*timeline.Clip, error) {
	t.mu.Lock()
	tk, ok := t.endRecordingLocked()
	t.mu.Unlock()
	if !ok {
		return nil, ErrNotRecording
	}
	return t.finishRecording(ctx, tk)
}

type take struct {
	track int
	start float64
}

// endRecordingLocked marks the recording finished and freezes the playhead
// at its end. The capture itself is stopped by finishRecording, outside the
// lock.
func (t *Transport) endRecordingLocked() (take, bool) {
	if !t.recording {
		return take{}, false
	}
	t.current = t.positionLocked()
	t.recording = false
	return take{track: t.recordTrack, start: t.recordStart}, true
}

func (t *Transport) finishRecording(ctx context.Context, tk take) (*timeline.Clip, error) {
	rec, err := t.capture.Stop(ctx)
	if err != nil {
		return nil, fmt.Errorf("stop capture: %w", err)
	}

	name := rec.Name
	if name == "" || name == "take.wav" {
		name = fmt.Sprintf("Enregistrement %s", t.clock.Now().Format("15:04:05"))
	}
	lib := t.editor.Library()
	item, err := lib.Decode(ctx, rec.Data, name)
	if err != nil {
		return nil, err
	}
	item.Type = library.TypeVoice
	item, _ = lib.Add(item)

	clip, err := t.editor.AddClip(item.ID, tk.track, tk.start, false)
	if err != nil {
		t.log.Warn("recorded take kept in library only",
			zap.String("item", item.ID),
			zap.Error(err))
		return nil, err
	}
	t.log.Info("recording finished",
		zap.String("clip", clip.ID),
		zap.Int("track", tk.track),
		zap.Float64("duration", clip.Duration),
		zap.Float64("wall_duration", rec.Duration))
	return clip, nil
}
