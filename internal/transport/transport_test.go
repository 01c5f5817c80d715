package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satindergrewal/mixdesk/internal/audio"
	"github.com/satindergrewal/mixdesk/internal/editor"
	"github.com/satindergrewal/mixdesk/internal/library"
	"github.com/satindergrewal/mixdesk/internal/timeline"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeBackend struct {
	played   []Schedule
	canceled int
	err      error
}

func (b *fakeBackend) Play(_ context.Context, s Schedule) error {
	if b.err != nil {
		return b.err
	}
	b.played = append(b.played, s)
	return nil
}

func (b *fakeBackend) Cancel() { b.canceled++ }

func (b *fakeBackend) last() Schedule { return b.played[len(b.played)-1] }

type fakeCapture struct {
	started bool
	data    []byte
}

func (c *fakeCapture) Start(context.Context) error {
	c.started = true
	return nil
}

func (c *fakeCapture) Stop(context.Context) (audio.Recording, error) {
	c.started = false
	return audio.Recording{Data: c.data, Duration: float64(len(c.data))}, nil
}

// secondsDecoder turns each input byte into one second of silence.
type secondsDecoder struct{}

func (secondsDecoder) Decode(_ context.Context, raw []byte) (*audio.Buffer, error) {
	return audio.NewBuffer(2, len(raw)*10, 10), nil
}

type rig struct {
	ed      *editor.Engine
	tr      *Transport
	clock   *fakeClock
	backend *fakeBackend
	capture *fakeCapture
}

func newRig(t *testing.T) *rig {
	t.Helper()
	lib := library.New(secondsDecoder{}, 0, nil)
	ed := editor.New(lib, editor.Options{Duration: 30})
	r := &rig{
		ed:      ed,
		clock:   &fakeClock{now: time.Unix(1000, 0)},
		backend: &fakeBackend{},
		capture: &fakeCapture{data: make([]byte, 3)},
	}
	r.tr = New(ed, r.backend, Options{Capture: r.capture, Clock: r.clock})
	return r
}

func (r *rig) item(t *testing.T, name string, seconds int) *library.Item {
	t.Helper()
	item, _, err := r.ed.Library().Import(context.Background(), make([]byte, seconds), name)
	require.NoError(t, err)
	return item
}

func TestBuildSchedule(t *testing.T) {
	m := timeline.New(nil, 0)
	m.Tracks[0].Volume = 0.5
	m.Tracks[0].Clips = []timeline.Clip{
		{ID: "past", LibraryItemID: "x", Position: 0, Duration: 2, TrimEnd: 2, Gain: 1},
		{ID: "now", LibraryItemID: "x", Position: 3, Duration: 4, TrimStart: 1, TrimEnd: 5, Gain: 1, FadeIn: 2},
		{ID: "later", LibraryItemID: "x", Position: 10, Duration: 2, TrimEnd: 2, Gain: 2},
	}

	got := BuildSchedule(m, 4)
	require.Len(t, got, 2)

	now := got[0]
	assert.Equal(t, "now", now.ClipID)
	assert.Equal(t, 0.0, now.When)
	assert.Equal(t, 1.0, now.Offset)
	assert.Equal(t, 3.0, now.Duration)
	assert.Equal(t, 2.0, now.SourceStart)
	assert.Equal(t, 5.0, now.SourceEnd)
	// mid fade-in: ramps from 0 to base over the remaining second
	assert.InDelta(t, 0, now.Gain.ValueAt(0), 1e-9)
	assert.InDelta(t, 0.25, now.Gain.ValueAt(0.5), 1e-9)
	assert.InDelta(t, 0.5, now.Gain.ValueAt(1), 1e-9)

	later := got[1]
	assert.Equal(t, 6.0, later.When)
	assert.Equal(t, 0.0, later.Offset)
	assert.Equal(t, 2.0, later.Duration)
	assert.InDelta(t, 1.0, later.Gain.ValueAt(1), 1e-9)
}

func TestBuildScheduleSoloOverridesMute(t *testing.T) {
	m := timeline.New(nil, 0)
	for i := range m.Tracks {
		m.Tracks[i].Clips = []timeline.Clip{{ID: string(rune('a' + i)), Position: 0, Duration: 1, TrimEnd: 1, Gain: 1}}
	}
	m.Tracks[1].Muted = true
	m.Tracks[1].Solo = true
	m.Tracks[2].Muted = true

	got := BuildSchedule(m, 0)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].TrackIndex)

	m.Tracks[1].Solo = false
	got = BuildSchedule(m, 0)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].TrackIndex)
	assert.Equal(t, 3, got[1].TrackIndex)
}

func TestPlayPauseStop(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	item := r.item(t, "a.wav", 5)
	_, err := r.ed.AddClip(item.ID, 0, 2, false)
	require.NoError(t, err)

	require.NoError(t, r.tr.Play(ctx))
	require.Len(t, r.backend.played, 1)
	s := r.backend.last()
	assert.Equal(t, 0.0, s.From)
	require.Len(t, s.Instructions, 1)
	assert.Equal(t, 2.0, s.Instructions[0].When)
	assert.Equal(t, Playing, r.tr.Status().State)

	r.clock.Advance(1500 * time.Millisecond)
	require.NoError(t, r.tr.Pause(ctx))
	st := r.tr.Status()
	assert.Equal(t, Paused, st.State)
	assert.InDelta(t, 1.5, st.CurrentTime, 1e-9)
	assert.Equal(t, 1, r.backend.canceled)

	// time passing while paused does not move the playhead
	r.clock.Advance(10 * time.Second)
	assert.InDelta(t, 1.5, r.tr.Tick(ctx).CurrentTime, 1e-9)

	require.NoError(t, r.tr.Play(ctx))
	assert.Equal(t, 1.5, r.backend.last().From)
	assert.Equal(t, 0.5, r.backend.last().Instructions[0].When)

	require.NoError(t, r.tr.Stop(ctx))
	require.NoError(t, r.tr.Stop(ctx))
	assert.Equal(t, 2, r.backend.canceled, "second stop is a no-op")
	assert.Equal(t, Stopped, r.tr.Status().State)
}

func TestPlayDropsMissingItems(t *testing.T) {
	r := newRig(t)
	a := r.item(t, "a.wav", 2)
	b := r.item(t, "b.wav", 2)
	_, _ = r.ed.AddClip(a.ID, 0, 0, false)
	_, _ = r.ed.AddClip(b.ID, 1, 0, false)
	r.ed.Library().Remove(b.ID)

	require.NoError(t, r.tr.Play(context.Background()))
	s := r.backend.last()
	require.Len(t, s.Instructions, 1)
	assert.Equal(t, a.ID, s.Instructions[0].LibraryItemID)
}

func TestPlayBackendError(t *testing.T) {
	r := newRig(t)
	r.backend.err = errors.New("no device")
	assert.Error(t, r.tr.Play(context.Background()))
	assert.Equal(t, Stopped, r.tr.Status().State)
}

func TestPlayFromRestartsSession(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	require.NoError(t, r.tr.PlayFrom(ctx, 3))
	first := r.tr.Status().SessionID
	require.NoError(t, r.tr.PlayFrom(ctx, 5))
	assert.Equal(t, 1, r.backend.canceled, "previous session stopped first")
	assert.NotEqual(t, first, r.tr.Status().SessionID)
	assert.Equal(t, 5.0, r.backend.last().From)
}

func TestTickAutoStops(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	require.NoError(t, r.tr.PlayFrom(ctx, 28))
	r.clock.Advance(1 * time.Second)
	st := r.tr.Tick(ctx)
	assert.Equal(t, Playing, st.State)
	assert.InDelta(t, 29, st.CurrentTime, 1e-9)

	r.clock.Advance(2 * time.Second)
	st = r.tr.Tick(ctx)
	assert.Equal(t, Stopped, st.State)
	assert.Equal(t, 30.0, st.CurrentTime, "clamped to the timeline end")

	r.tr.SetOutPoint(10)
	require.NoError(t, r.tr.PlayFrom(ctx, 9))
	r.clock.Advance(1500 * time.Millisecond)
	st = r.tr.Tick(ctx)
	assert.Equal(t, Stopped, st.State)
	assert.Equal(t, 10.0, st.CurrentTime)
}

func TestPlayStartsAtInPoint(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.tr.SetInPoint(4)
	require.NoError(t, r.tr.PlayFrom(ctx, 1))
	assert.Equal(t, 4.0, r.backend.last().From)

	// starting at or past Out wraps to In
	r.tr.SetOutPoint(8)
	require.NoError(t, r.tr.PlayFrom(ctx, 9))
	assert.Equal(t, 4.0, r.backend.last().From)
}

func TestInOutOrdering(t *testing.T) {
	r := newRig(t)
	r.tr.SetInPoint(5)
	r.tr.SetOutPoint(10)
	in, out := r.tr.InOut()
	require.NotNil(t, in)
	require.NotNil(t, out)

	r.tr.SetInPoint(12)
	in, out = r.tr.InOut()
	assert.Equal(t, 12.0, *in)
	assert.Nil(t, out, "In after Out clears Out")

	r.tr.SetOutPoint(3)
	in, out = r.tr.InOut()
	assert.Nil(t, in, "Out before In clears In")
	assert.Equal(t, 3.0, *out)

	r.tr.ClearInOut()
	in, out = r.tr.InOut()
	assert.Nil(t, in)
	assert.Nil(t, out)
}

func TestNavigation(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	require.NoError(t, r.tr.Seek(ctx, 12))
	assert.Equal(t, 12.0, r.tr.Status().CurrentTime)
	require.NoError(t, r.tr.Nudge(ctx, -20))
	assert.Equal(t, 0.0, r.tr.Status().CurrentTime)
	require.NoError(t, r.tr.GoToEnd(ctx))
	assert.Equal(t, 30.0, r.tr.Status().CurrentTime)
	require.NoError(t, r.tr.Seek(ctx, 99))
	assert.Equal(t, 30.0, r.tr.Status().CurrentTime)
	require.NoError(t, r.tr.GoToStart(ctx))
	assert.Equal(t, 0.0, r.tr.Status().CurrentTime)

	r.tr.SetInPoint(7)
	r.tr.SetOutPoint(9)
	require.NoError(t, r.tr.GoToOut(ctx))
	assert.Equal(t, 9.0, r.tr.Status().CurrentTime)
	require.NoError(t, r.tr.GoToIn(ctx))
	assert.Equal(t, 7.0, r.tr.Status().CurrentTime)
	assert.Empty(t, r.backend.played, "seeking while stopped does not play")

	require.NoError(t, r.tr.Play(ctx))
	require.NoError(t, r.tr.Seek(ctx, 8))
	assert.Equal(t, 8.0, r.backend.last().From, "seeking while playing restarts there")
}

func TestRefreshAppliesRouting(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	item := r.item(t, "a.wav", 5)
	_, _ = r.ed.AddClip(item.ID, 0, 0, false)

	require.NoError(t, r.tr.Refresh(ctx))
	assert.Empty(t, r.backend.played, "refresh does nothing while stopped")

	require.NoError(t, r.tr.Play(ctx))
	require.Len(t, r.backend.last().Instructions, 1)
	r.clock.Advance(time.Second)

	require.NoError(t, r.ed.SetMute(0, true))
	require.NoError(t, r.tr.Refresh(ctx))
	assert.Equal(t, 1.0, r.backend.last().From)
	assert.Empty(t, r.backend.last().Instructions)
}

func TestArmIsExclusive(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.tr.Arm(1))
	require.NoError(t, r.tr.Arm(2))
	track, ok := r.tr.Armed()
	assert.True(t, ok)
	assert.Equal(t, 2, track)

	armed, err := r.tr.ToggleArm(2)
	require.NoError(t, err)
	assert.False(t, armed)
	_, ok = r.tr.Armed()
	assert.False(t, ok)

	armed, _ = r.tr.ToggleArm(3)
	assert.True(t, armed)
	r.tr.Disarm()
	_, ok = r.tr.Armed()
	assert.False(t, ok)

	assert.ErrorIs(t, r.tr.Arm(8), editor.ErrTrackNotFound)
}

func TestRecording(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	assert.ErrorIs(t, r.tr.StartRecording(ctx), ErrNoArmedTrack)
	_, err := r.tr.StopRecording(ctx)
	assert.ErrorIs(t, err, ErrNotRecording)

	require.NoError(t, r.tr.Arm(1))
	require.NoError(t, r.tr.Play(ctx))
	assert.ErrorIs(t, r.tr.StartRecording(ctx), ErrInvalidState)
	require.NoError(t, r.tr.Stop(ctx))

	require.NoError(t, r.tr.Seek(ctx, 2))
	require.NoError(t, r.tr.StartRecording(ctx))
	assert.True(t, r.capture.started)
	assert.ErrorIs(t, r.tr.StartRecording(ctx), ErrAlreadyRecording)
	assert.ErrorIs(t, r.tr.Play(ctx), ErrInvalidState)

	r.clock.Advance(3 * time.Second)
	st := r.tr.Tick(ctx)
	assert.True(t, st.Recording)
	assert.InDelta(t, 5, st.CurrentTime, 1e-9, "playhead follows the recording clock")

	clip, err := r.tr.StopRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2.0, clip.Position)
	assert.Equal(t, 3.0, clip.Duration)
	assert.False(t, r.tr.Recording())

	item, ok := r.ed.Library().Get(clip.LibraryItemID)
	require.True(t, ok)
	assert.Equal(t, library.TypeVoice, item.Type)
	assert.Contains(t, item.Name, "Enregistrement")

	m := r.ed.Model()
	require.Len(t, m.Tracks[1].Clips, 1)
	assert.InDelta(t, 5, r.tr.Status().CurrentTime, 1e-9)
}

func TestStopFinishesRecording(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	require.NoError(t, r.tr.Arm(0))
	require.NoError(t, r.tr.StartRecording(ctx))
	r.clock.Advance(time.Second)

	require.NoError(t, r.tr.Stop(ctx))
	assert.False(t, r.tr.Recording())
	assert.Len(t, r.ed.Model().Tracks[0].Clips, 1)
}

func TestStartRecordingWithoutCapture(t *testing.T) {
	r := newRig(t)
	tr := New(r.ed, r.backend, Options{Clock: r.clock})
	require.NoError(t, tr.Arm(0))
	assert.ErrorIs(t, tr.StartRecording(context.Background()), ErrNoCapture)
}

func TestMarkersRestore(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	require.NoError(t, r.tr.Seek(ctx, 6))
	r.tr.SetInPoint(2)
	require.NoError(t, r.tr.Arm(3))

	saved := r.tr.Markers()
	other := New(r.ed, &fakeBackend{}, Options{Clock: r.clock})
	require.NoError(t, other.Restore(ctx, saved))

	got := other.Markers()
	assert.Equal(t, 6.0, got.CurrentTime)
	require.NotNil(t, got.InPoint)
	assert.Equal(t, 2.0, *got.InPoint)
	require.NotNil(t, got.Armed)
	assert.Equal(t, 3, *got.Armed)
}

func TestMarkersRestoreOrdering(t *testing.T) {
	ctx := context.Background()
	at := func(v float64) *float64 { return &v }
	tests := []struct {
		name    string
		in, out *float64
		wantIn  *float64
		wantOut *float64
	}{
		{"ordered", at(2), at(5), at(2), at(5)},
		{"in after out", at(8), at(3), nil, at(3)},
		{"equal", at(4), at(4), nil, at(4)},
		{"clamped to timeline", at(1), at(90), at(1), at(30)},
		{"out only", nil, at(6), nil, at(6)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t)
			require.NoError(t, r.tr.Restore(ctx, Markers{InPoint: tt.in, OutPoint: tt.out}))
			in, out := r.tr.InOut()
			assert.Equal(t, tt.wantIn, in)
			assert.Equal(t, tt.wantOut, out)
		})
	}
}

func TestRunTicksUntilCanceled(t *testing.T) {
	r := newRig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := r.tr.Run(ctx, time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
