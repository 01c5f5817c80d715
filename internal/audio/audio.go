package audio

import "time"

const (
	// ExportSampleRate and ExportChannels fix the offline mixdown format.
	ExportSampleRate = 44100
	ExportChannels   = 2
	BitDepth         = 16

	// Preview frames feed Opus, which only accepts 48kHz among the common rates.
	PreviewSampleRate = 48000
	Channels          = 2
	FrameDuration     = 20 * time.Millisecond
	FrameSize         = 960                  // samples per channel per 20ms frame
	FrameSamples      = FrameSize * Channels // total interleaved samples per frame
	FrameBytes        = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Recording is the result of a finished capture: raw decodable bytes plus
// the wall-clock length of the take.
type Recording struct {
	Data     []byte
	Name     string
	Duration float64 // seconds
}
