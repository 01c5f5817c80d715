package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clip(id string, pos, dur float64) Clip {
	return Clip{ID: id, LibraryItemID: "item", Position: pos, Duration: dur, TrimEnd: dur, Gain: 1}
}

func TestNewDefaults(t *testing.T) {
	m := New(nil, 0)
	require.Len(t, m.Tracks, 4)
	assert.Equal(t, "Voix", m.Tracks[0].Name)
	assert.Equal(t, "Musique", m.Tracks[3].Name)
	assert.Equal(t, 3, m.Tracks[3].ID)
	assert.Equal(t, DefaultDuration, m.Duration)
	assert.Equal(t, 1.0, m.Tracks[1].Volume)
}

func TestOverlapHalfOpen(t *testing.T) {
	c := clip("a", 0, 5)
	tests := []struct {
		start, end float64
		want       bool
	}{
		{5, 10, false},
		{-3, 0, false},
		{4.9, 10, true},
		{1, 2, true},
		{-1, 0.5, true},
		{5 - 1e-9, 8, false}, // within tolerance of touching
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Overlaps(tt.start, tt.end), "[%v, %v)", tt.start, tt.end)
	}
}

func TestCloneIsDeep(t *testing.T) {
	m := New(nil, 0)
	c := clip("a", 0, 5)
	c.Envelope = &Envelope{Points: []EnvelopePoint{{Time: 1, Volume: 0.5}}}
	m.Tracks[0].Clips = append(m.Tracks[0].Clips, c)

	cp := m.Clone()
	cp.Tracks[0].Clips[0].Position = 9
	cp.Tracks[0].Clips[0].Envelope.Points[0].Volume = 0.1
	cp.Tracks[1].Name = "x"

	assert.Equal(t, 0.0, m.Tracks[0].Clips[0].Position)
	assert.Equal(t, 0.5, m.Tracks[0].Clips[0].Envelope.Points[0].Volume)
	assert.Equal(t, "Interview", m.Tracks[1].Name)
}

func TestLengths(t *testing.T) {
	m := New(nil, 60)
	assert.Equal(t, 0.0, m.MaxEndTime())
	assert.Equal(t, 60.0, m.TimelineLength())

	m.Tracks[2].Clips = []Clip{clip("a", 50, 30)}
	assert.Equal(t, 80.0, m.MaxEndTime())
	assert.Equal(t, 80.0, m.TimelineLength())
}

func TestFindClipAndOverlapQuery(t *testing.T) {
	m := New(nil, 0)
	m.Tracks[1].Clips = []Clip{clip("a", 0, 5), clip("b", 10, 5)}

	ti, ci, ok := m.FindClip("b")
	require.True(t, ok)
	assert.Equal(t, 1, ti)
	assert.Equal(t, 1, ci)

	_, _, ok = m.FindClip("zz")
	assert.False(t, ok)

	hits := m.ClipsOverlapping(1, 4, 11, "")
	require.Len(t, hits, 2)
	hits = m.ClipsOverlapping(1, 4, 11, "a")
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ID)
	assert.Nil(t, m.ClipsOverlapping(9, 0, 1, ""))
}

func TestSoloOverridesMute(t *testing.T) {
	m := New(nil, 0)
	m.Tracks[0].Muted = true
	assert.False(t, m.Audible(0))
	assert.True(t, m.Audible(1))

	m.Tracks[0].Solo = true
	assert.True(t, m.AnySolo())
	assert.True(t, m.Audible(0), "soloed track sounds even when muted")
	assert.False(t, m.Audible(1))
	assert.False(t, m.Audible(42))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		clips []Clip
		ok    bool
	}{
		{"empty", nil, true},
		{"touching", []Clip{clip("a", 0, 5), clip("b", 5, 5)}, true},
		{"overlap", []Clip{clip("a", 0, 5), clip("b", 4, 5)}, false},
		{"unsorted", []Clip{clip("b", 5, 5), clip("a", 0, 5)}, false},
		{"trim mismatch", []Clip{{ID: "a", Duration: 5, TrimStart: 1, TrimEnd: 5}}, false},
		{"fade too long", []Clip{{ID: "a", Duration: 2, TrimEnd: 2, FadeIn: 1.5, FadeOut: 1}}, false},
		{"zero duration", []Clip{{ID: "a"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(nil, 0)
			m.Tracks[0].Clips = tt.clips
			if tt.ok {
				assert.NoError(t, m.Validate())
			} else {
				assert.Error(t, m.Validate())
			}
		})
	}
}

func TestReferences(t *testing.T) {
	m := New(nil, 0)
	m.Tracks[0].Clips = []Clip{clip("a", 0, 1), clip("b", 2, 1)}
	m.Tracks[3].Clips = []Clip{clip("c", 0, 1)}
	m.Tracks[3].Clips[0].LibraryItemID = "other"
	assert.Equal(t, 2, m.References("item"))
	assert.Equal(t, 1, m.References("other"))
	assert.Equal(t, 0, m.References("none"))
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1:30", 90},
		{"0:45", 45},
		{"2:05", 125},
		{"75", 75},
		{"", 60},
		{"abc", 60},
		{"1:2:3", 60},
		{"0:00", 60},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseDuration(tt.in), tt.in)
	}
}

func TestEnvelopeValueAt(t *testing.T) {
	var none *Envelope
	assert.Equal(t, 1.0, none.ValueAt(3))

	e := &Envelope{Points: []EnvelopePoint{{Time: 1, Volume: 0.5}, {Time: 3, Volume: 0.2}}}
	assert.Equal(t, 1.0, e.ValueAt(0.5))
	assert.Equal(t, 0.5, e.ValueAt(1))
	assert.Equal(t, 0.5, e.ValueAt(2.9))
	assert.Equal(t, 0.2, e.ValueAt(10))
}

func TestEnvelopeSlice(t *testing.T) {
	e := &Envelope{Points: []EnvelopePoint{{Time: 1, Volume: 0.5}, {Time: 3, Volume: 0.2}}}

	first := e.Slice(0, 2)
	require.NotNil(t, first)
	assert.Equal(t, []EnvelopePoint{{Time: 0, Volume: 1}, {Time: 1, Volume: 0.5}}, first.Points)

	second := e.Slice(2, 5)
	require.NotNil(t, second)
	require.Len(t, second.Points, 2)
	assert.Equal(t, 0.5, second.Points[0].Volume, "level at the cut carries over")
	assert.InDelta(t, 1.0, second.Points[1].Time, 1e-9)
	assert.Equal(t, 0.2, second.Points[1].Volume)

	var none *Envelope
	assert.Nil(t, none.Slice(0, 1))
}

func TestEnvelopeNormalize(t *testing.T) {
	e := &Envelope{Points: []EnvelopePoint{{Time: 2, Volume: 1}, {Time: -1, Volume: -0.5}}}
	e.Normalize()
	assert.Equal(t, []EnvelopePoint{{Time: 0, Volume: 0}, {Time: 2, Volume: 1}}, e.Points)
}

func TestGainAutomationFades(t *testing.T) {
	c := clip("a", 0, 10)
	c.Gain = 0.5
	c.FadeIn = 2
	c.FadeOut = 4

	a := c.GainAutomation(0.8, 0, 10)
	base := 0.4
	assert.InDelta(t, 0, a.ValueAt(0), 1e-9)
	assert.InDelta(t, base/2, a.ValueAt(1), 1e-9)
	assert.InDelta(t, base, a.ValueAt(2), 1e-9)
	assert.InDelta(t, base, a.ValueAt(6), 1e-9)
	assert.InDelta(t, base/2, a.ValueAt(8), 1e-9)
	assert.InDelta(t, 0, a.ValueAt(10), 1e-9)
}

func TestGainAutomationFromOffset(t *testing.T) {
	c := clip("a", 0, 10)
	c.FadeIn = 4

	// starting halfway through the fade-in ramps from 0 over what remains
	a := c.GainAutomation(1, 2, 8)
	assert.InDelta(t, 0, a.ValueAt(0), 1e-9)
	assert.InDelta(t, 1, a.ValueAt(2), 1e-9)

	// starting after the fade-in plays at full level
	a = c.GainAutomation(1, 5, 5)
	assert.InDelta(t, 1, a.ValueAt(0), 1e-9)
}

func TestGainAutomationEnvelope(t *testing.T) {
	c := clip("a", 0, 10)
	c.Envelope = &Envelope{Points: []EnvelopePoint{{Time: 1, Volume: 0.5}, {Time: 6, Volume: 0.25}}}

	a := c.GainAutomation(1, 0, 10)
	assert.InDelta(t, 1, a.ValueAt(0.5), 1e-9)
	assert.InDelta(t, 0.5, a.ValueAt(3), 1e-9)
	assert.InDelta(t, 0.25, a.ValueAt(7), 1e-9)

	// shifted by the offset and clipped at zero
	a = c.GainAutomation(1, 4, 6)
	assert.InDelta(t, 0.5, a.ValueAt(0), 1e-9)
	assert.InDelta(t, 0.25, a.ValueAt(2), 1e-9)
}

func TestGainAutomationShortFadeOutWindow(t *testing.T) {
	c := clip("a", 0, 10)
	c.FadeOut = 3
	// window shorter than the fade: no fade-out applied
	a := c.GainAutomation(1, 8, 2)
	assert.InDelta(t, 1, a.ValueAt(1.5), 1e-9)
}
