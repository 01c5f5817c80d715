package timeline

import "sort"

// EnvelopePoint sets the clip's relative volume from Time onward.
type EnvelopePoint struct {
	Time   float64 `json:"time"`
	Volume float64 `json:"volume"`
}

// Envelope is an ordered list of breakpoints relative to clip start. Each
// point steps the level; there is no interpolation between points.
type Envelope struct {
	Points []EnvelopePoint `json:"points"`
}

// Normalize sorts points by time, clamps negative times and volumes to zero.
func (e *Envelope) Normalize() {
	if e == nil {
		return
	}
	for i := range e.Points {
		if e.Points[i].Time < 0 {
			e.Points[i].Time = 0
		}
		if e.Points[i].Volume < 0 {
			e.Points[i].Volume = 0
		}
	}
	sort.SliceStable(e.Points, func(i, j int) bool { return e.Points[i].Time < e.Points[j].Time })
}

// ValueAt returns the envelope level at clip-relative time t; 1 before the
// first point or when the envelope is absent.
func (e *Envelope) ValueAt(t float64) float64 {
	v := 1.0
	if e == nil {
		return v
	}
	for _, p := range e.Points {
		if p.Time > t {
			break
		}
		v = p.Volume
	}
	return v
}

// Slice re-bases the window [from, to) onto a new zero. The level in effect
// at from is carried as a point at 0 so the piece sounds the same.
func (e *Envelope) Slice(from, to float64) *Envelope {
	if e == nil || len(e.Points) == 0 {
		return nil
	}
	out := &Envelope{}
	hasStart := false
	for _, p := range e.Points {
		if p.Time >= from-Epsilon && p.Time < to-Epsilon {
			t := p.Time - from
			if t < Epsilon {
				t = 0
				hasStart = true
			}
			out.Points = append(out.Points, EnvelopePoint{Time: t, Volume: p.Volume})
		}
	}
	if !hasStart {
		carry := EnvelopePoint{Time: 0, Volume: e.ValueAt(from)}
		out.Points = append([]EnvelopePoint{carry}, out.Points...)
	}
	return out
}

// Clone returns a deep copy; nil stays nil.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	return &Envelope{Points: append([]EnvelopePoint(nil), e.Points...)}
}
