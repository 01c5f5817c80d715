package timeline

import "github.com/satindergrewal/mixdesk/internal/audio"

// GainAutomation builds the gain curve for playing this clip from offset
// seconds into it for playDuration seconds. Times in the result are local to
// the playback window. Live scheduling and offline mixdown both use it.
func (c Clip) GainAutomation(trackVolume, offset, playDuration float64) audio.Automation {
	base := c.Gain * trackVolume
	a := audio.Constant(base)

	if c.Envelope != nil {
		for _, p := range c.Envelope.Points {
			t := p.Time - offset
			if t < 0 {
				t = 0
			}
			a.SetValueAt(p.Volume*base, t)
		}
	}

	if c.FadeIn > 0 && offset < c.FadeIn {
		a.SetValueAt(0, 0)
		a.RampTo(base, c.FadeIn-offset)
	}

	if c.FadeOut > 0 {
		fadeStart := playDuration - c.FadeOut
		if fadeStart > 0 {
			a.SetValueAt(base, fadeStart)
			a.RampTo(0, playDuration)
		}
	}
	return a
}
