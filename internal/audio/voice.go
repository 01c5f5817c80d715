package audio

import "math"

// Voice places a window of a source buffer on an output timeline.
type Voice struct {
	Source *Buffer
	At     float64 // output time where the window starts, seconds
	From   float64 // read offset into Source, seconds
	Length float64 // window length, seconds
	Gain   Automation
}

// frameEdge converts a time to the first frame index at or after it. The
// small bias keeps values like 1.9999999999 from landing one frame late.
func frameEdge(seconds float64, rate int) int {
	return int(math.Ceil(seconds*float64(rate) - 1e-7))
}

// MixInto sums the voice into dst, whose frame 0 sits at output time
// dstStart. Source material is resampled to dst's rate by linear
// interpolation.
func (v Voice) MixInto(dst *Buffer, dstStart float64) {
	if v.Source == nil || v.Length <= 0 || dst.Frames() == 0 {
		return
	}
	first := frameEdge(v.At-dstStart, dst.SampleRate)
	last := frameEdge(v.At+v.Length-dstStart, dst.SampleRate)
	if first < 0 {
		first = 0
	}
	if last > dst.Frames() {
		last = dst.Frames()
	}

	rate := float64(dst.SampleRate)
	srcRate := float64(v.Source.SampleRate)
	for i := first; i < last; i++ {
		local := dstStart + float64(i)/rate - v.At
		if local < 0 {
			local = 0
		}
		g := float32(v.Gain.ValueAt(local))
		if g == 0 {
			continue
		}
		pos := (v.From + local) * srcRate
		for ch := range dst.Data {
			dst.Data[ch][i] += v.Source.At(ch, pos) * g
		}
	}
}
