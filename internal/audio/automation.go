package audio

import "sort"

// Event is one automation breakpoint. A plain event steps to Value at Time;
// a ramp event slides linearly from the previous breakpoint and lands on
// Value exactly at Time.
type Event struct {
	Time  float64 `json:"time"`
	Value float64 `json:"value"`
	Ramp  bool    `json:"ramp,omitempty"`
}

// Automation is a gain curve over local time (seconds from the start of a
// playback window). Events stay sorted by time; events sharing a time keep
// their insertion order, so a later event at the same instant wins.
type Automation struct {
	Initial float64 `json:"initial"`
	Events  []Event `json:"events,omitempty"`
}

// Constant returns a flat curve.
func Constant(v float64) Automation {
	return Automation{Initial: v}
}

// SetValueAt steps the curve to v at time t.
func (a *Automation) SetValueAt(v, t float64) {
	a.insert(Event{Time: t, Value: v})
}

// RampTo slides the curve linearly to v, arriving at time t.
func (a *Automation) RampTo(v, t float64) {
	a.insert(Event{Time: t, Value: v, Ramp: true})
}

func (a *Automation) insert(e Event) {
	i := sort.Search(len(a.Events), func(i int) bool { return a.Events[i].Time > e.Time })
	a.Events = append(a.Events, Event{})
	copy(a.Events[i+1:], a.Events[i:])
	a.Events[i] = e
}

// ValueAt evaluates the curve at local time t.
func (a Automation) ValueAt(t float64) float64 {
	prevTime, prevValue := 0.0, a.Initial
	for _, e := range a.Events {
		if e.Time <= t {
			prevTime, prevValue = e.Time, e.Value
			continue
		}
		if !e.Ramp {
			return prevValue
		}
		span := e.Time - prevTime
		if span <= 0 {
			return e.Value
		}
		return prevValue + (e.Value-prevValue)*(t-prevTime)/span
	}
	return prevValue
}

// Clone returns an independent copy.
func (a Automation) Clone() Automation {
	out := Automation{Initial: a.Initial}
	if len(a.Events) > 0 {
		out.Events = append([]Event(nil), a.Events...)
	}
	return out
}
