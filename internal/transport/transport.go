// Package transport drives playback and recording over the edited model. It
// keeps the playhead, the In/Out markers and the armed track, and hands
// schedules to a Backend that produces the sound.
package transport

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satindergrewal/mixdesk/internal/audio"
	"github.com/satindergrewal/mixdesk/internal/editor"
)

var (
	ErrNoArmedTrack     = errors.New("no track armed for recording")
	ErrNotRecording     = errors.New("not recording")
	ErrAlreadyRecording = errors.New("already recording")
	ErrInvalidState     = errors.New("invalid transport state")
	ErrNoCapture        = errors.New("no capture device configured")
)

// State is the playback state.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Backend produces sound for a schedule. Play replaces any running session.
type Backend interface {
	Play(ctx context.Context, s Schedule) error
	Cancel()
}

// Capture records a take from an input device.
type Capture interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (audio.Recording, error)
}

// Clock is a monotonic time source.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Markers is the transport state worth persisting with a session.
type Markers struct {
	CurrentTime float64  `json:"current_time"`
	InPoint     *float64 `json:"in_point,omitempty"`
	OutPoint    *float64 `json:"out_point,omitempty"`
	Armed       *int     `json:"armed,omitempty"`
}

// Status is a point-in-time view for the host UI.
type Status struct {
	State     State     `json:"state"`
	Length    float64   `json:"length"`
	Recording bool      `json:"recording"`
	SessionID uuid.UUID `json:"session_id"`
	Markers
}

// Options configures a Transport. Capture and Clock are optional.
type Options struct {
	Capture Capture
	Clock   Clock
	Logger  *zap.Logger
}

// Transport is safe for concurrent use.
type Transport struct {
	editor  *editor.Engine
	backend Backend
	capture Capture
	clock   Clock
	log     *zap.Logger

	mu       sync.Mutex
	state    State
	current  float64
	startPos float64
	startRef time.Time
	session  uuid.UUID
	in, out  *float64
	armed    *int

	recording   bool
	recordTrack int
	recordStart float64
	recordRef   time.Time
}

// New creates a stopped transport at time 0.
func New(ed *editor.Engine, backend Backend, opts Options) *Transport {
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Transport{
		editor:  ed,
		backend: backend,
		capture: opts.Capture,
		clock:   opts.Clock,
		log:     opts.Logger,
	}
}

// Play starts playback from the current position.
func (t *Transport) Play(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playLocked(ctx, t.positionLocked())
}

// PlayFrom starts playback from timeline time from.
func (t *Transport) PlayFrom(ctx context.Context, from float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playLocked(ctx, from)
}

// Toggle pauses when playing and plays otherwise.
func (t *Transport) Toggle(ctx context.Context) error {
	t.mu.Lock()
	playing := t.state == Playing
	t.mu.Unlock()
	if playing {
		return t.Pause(ctx)
	}
	return t.Play(ctx)
}

func (t *Transport) playLocked(ctx context.Context, from float64) error {
	if t.recording {
		return ErrInvalidState
	}
	t.cancelLocked()
	t.state = Stopped

	model := t.editor.Model()
	length := model.TimelineLength()
	from = clamp(from, 0, length)
	if t.in != nil && from < *t.in {
		from = *t.in
	}
	if from >= t.stopAtLocked(length)-1e-9 {
		from = 0
		if t.in != nil {
			from = *t.in
		}
	}

	lib := t.editor.Library()
	all := BuildSchedule(model, from)
	instructions := make([]Instruction, 0, len(all))
	for _, in := range all {
		if _, ok := lib.Get(in.LibraryItemID); !ok {
			t.log.Warn("clip skipped, library item missing",
				zap.String("clip", in.ClipID),
				zap.String("item", in.LibraryItemID))
			continue
		}
		instructions = append(instructions, in)
	}

	sched := Schedule{SessionID: uuid.New(), From: from, Instructions: instructions}
	if err := t.backend.Play(ctx, sched); err != nil {
		t.current = from
		return err
	}
	t.state = Playing
	t.session = sched.SessionID
	t.current = from
	t.startPos = from
	t.startRef = t.clock.Now()
	t.log.Info("playback started",
		zap.String("session", sched.SessionID.String()),
		zap.Float64("from", from),
		zap.Int("instructions", len(instructions)))
	return nil
}

// cancelLocked stops the backend session and leaves the playhead alone.
func (t *Transport) cancelLocked() {
	if t.state == Playing {
		t.backend.Cancel()
	}
	t.session = uuid.Nil
}

// positionLocked is the live playhead: derived from the reference time while
// playing or recording, stored otherwise.
func (t *Transport) positionLocked() float64 {
	now := t.clock.Now()
	switch {
	case t.recording:
		return t.recordStart + now.Sub(t.recordRef).Seconds()
	case t.state == Playing:
		return t.startPos + now.Sub(t.startRef).Seconds()
	default:
		return t.current
	}
}

func (t *Transport) stopAtLocked(length float64) float64 {
	if t.out != nil {
		return math.Min(*t.out, length)
	}
	return length
}

// Pause holds the playhead where it is. An active recording is finished.
func (t *Transport) Pause(ctx context.Context) error {
	t.mu.Lock()
	if t.state == Playing {
		t.current = t.positionLocked()
		t.cancelLocked()
		t.state = Paused
	}
	tk, ok := t.endRecordingLocked()
	t.mu.Unlock()
	if ok {
		_, err := t.finishRecording(ctx, tk)
		return err
	}
	return nil
}

// Stop cancels playback. It is safe to call repeatedly. An active recording
// is finished and its clip added to the model.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	if t.state == Playing {
		t.current = t.positionLocked()
	}
	t.cancelLocked()
	t.state = Stopped
	tk, ok := t.endRecordingLocked()
	t.mu.Unlock()
	if ok {
		_, err := t.finishRecording(ctx, tk)
		return err
	}
	return nil
}

// Tick advances the playhead from the clock and stops playback once it
// reaches the Out point or the end of the timeline. Hosts call it on a timer.
func (t *Transport) Tick(ctx context.Context) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = t.positionLocked()
	if t.state == Playing && !t.recording {
		stopAt := t.stopAtLocked(t.editor.Model().TimelineLength())
		if t.current >= stopAt {
			t.cancelLocked()
			t.state = Stopped
			t.current = stopAt
			t.log.Info("playback reached end", zap.Float64("at", stopAt))
		}
	}
	return t.statusLocked()
}

// Status reports the transport without advancing it.
func (t *Transport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked()
}

func (t *Transport) statusLocked() Status {
	return Status{
		State:     t.state,
		Length:    t.editor.Model().TimelineLength(),
		Recording: t.recording,
		SessionID: t.session,
		Markers:   t.markersLocked(),
	}
}

// Run calls Tick every interval until ctx ends.
func (t *Transport) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.Tick(ctx)
		}
	}
}

// Seek moves the playhead, restarting playback there if it was playing.
func (t *Transport) Seek(ctx context.Context, to float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seekLocked(ctx, to)
}

func (t *Transport) seekLocked(ctx context.Context, to float64) error {
	if t.recording {
		return ErrInvalidState
	}
	to = clamp(to, 0, t.editor.Model().TimelineLength())
	if t.state == Playing {
		return t.playLocked(ctx, to)
	}
	t.current = to
	return nil
}

func (t *Transport) GoToStart(ctx context.Context) error { return t.Seek(ctx, 0) }

func (t *Transport) GoToEnd(ctx context.Context) error {
	return t.Seek(ctx, t.editor.Model().TimelineLength())
}

// Nudge moves the playhead by delta seconds.
func (t *Transport) Nudge(ctx context.Context, delta float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seekLocked(ctx, t.positionLocked()+delta)
}

// GoToIn jumps to the In point if one is set.
func (t *Transport) GoToIn(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.in == nil {
		return nil
	}
	return t.seekLocked(ctx, *t.in)
}

// GoToOut jumps to the Out point if one is set.
func (t *Transport) GoToOut(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.out == nil {
		return nil
	}
	return t.seekLocked(ctx, *t.out)
}

// Refresh restarts playback at the current position so routing changes
// (mute, solo, volume, edits) are heard. It does nothing when not playing.
func (t *Transport) Refresh(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Playing || t.recording {
		return nil
	}
	return t.playLocked(ctx, t.positionLocked())
}

// SetInPoint marks In at at. An Out point at or before it is cleared.
func (t *Transport) SetInPoint(at float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setInLocked(at)
}

func (t *Transport) setInLocked(at float64) {
	at = clamp(at, 0, t.editor.Model().TimelineLength())
	t.in = &at
	if t.out != nil && *t.out <= at {
		t.out = nil
	}
}

// SetOutPoint marks Out at at. An In point at or after it is cleared.
func (t *Transport) SetOutPoint(at float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setOutLocked(at)
}

func (t *Transport) setOutLocked(at float64) {
	at = clamp(at, 0, t.editor.Model().TimelineLength())
	t.out = &at
	if t.in != nil && *t.in >= at {
		t.in = nil
	}
}

// ClearInOut removes both markers.
func (t *Transport) ClearInOut() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.in, t.out = nil, nil
}

// InOut returns the markers; nil means unset.
func (t *Transport) InOut() (in, out *float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copyFloat(t.in), copyFloat(t.out)
}

// Markers returns the persistable transport state.
func (t *Transport) Markers() Markers {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.markersLocked()
}

func (t *Transport) markersLocked() Markers {
	m := Markers{
		CurrentTime: t.positionLocked(),
		InPoint:     copyFloat(t.in),
		OutPoint:    copyFloat(t.out),
	}
	if t.armed != nil {
		a := *t.armed
		m.Armed = &a
	}
	return m
}

// Restore stops the transport and applies saved markers.
func (t *Transport) Restore(ctx context.Context, m Markers) error {
	if err := t.Stop(ctx); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = math.Max(0, m.CurrentTime)
	// same ordering rule as setting the markers by hand: Out wins
	t.in, t.out = nil, nil
	if m.InPoint != nil {
		t.setInLocked(*m.InPoint)
	}
	if m.OutPoint != nil {
		t.setOutLocked(*m.OutPoint)
	}
	t.armed = nil
	if m.Armed != nil && t.editor.Model().HasTrack(*m.Armed) {
		a := *m.Armed
		t.armed = &a
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
