package audio

import "math"

// Buffer holds planar float PCM, one slice per channel, nominally in [-1, 1].
type Buffer struct {
	SampleRate int
	Data       [][]float32
}

// NewBuffer allocates a silent buffer.
func NewBuffer(channels, frames, sampleRate int) *Buffer {
	data := make([][]float32, channels)
	for ch := range data {
		data[ch] = make([]float32, frames)
	}
	return &Buffer{SampleRate: sampleRate, Data: data}
}

// Channels returns the channel count.
func (b *Buffer) Channels() int {
	return len(b.Data)
}

// Frames returns the number of sample frames per channel.
func (b *Buffer) Frames() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// At reads channel ch at a fractional frame position using linear
// interpolation. Channels past the source's count map onto its last channel
// so mono material plays on both sides. Positions outside the buffer are silent.
func (b *Buffer) At(ch int, pos float64) float32 {
	n := b.Frames()
	if n == 0 || pos < 0 || pos >= float64(n) {
		return 0
	}
	if ch >= len(b.Data) {
		ch = len(b.Data) - 1
	}
	data := b.Data[ch]
	lo := int(pos)
	if lo >= n-1 {
		return data[n-1]
	}
	frac := float32(pos - float64(lo))
	return data[lo] + (data[lo+1]-data[lo])*frac
}

// Clamp limits every sample to [-1, 1].
func (b *Buffer) Clamp() {
	for _, data := range b.Data {
		for i, s := range data {
			if s > 1 {
				data[i] = 1
			} else if s < -1 {
				data[i] = -1
			}
		}
	}
}

// Interleaved16 quantizes the buffer to interleaved int16 samples.
func (b *Buffer) Interleaved16() []int16 {
	channels := b.Channels()
	frames := b.Frames()
	out := make([]int16, frames*channels)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			out[i*channels+ch] = Quantize(b.Data[ch][i])
		}
	}
	return out
}

// Quantize converts one float sample to 16-bit PCM. Negative values scale by
// 32768 and positive values by 32767 so both ends of the range are reachable.
func Quantize(s float32) int16 {
	v := float64(s)
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	if v < 0 {
		v *= 32768
	} else {
		v *= 32767
	}
	return int16(math.Round(v))
}

// FromInt16 builds a buffer from interleaved int16 samples.
func FromInt16(samples []int16, channels, sampleRate int) *Buffer {
	if channels <= 0 {
		channels = 1
	}
	frames := len(samples) / channels
	buf := NewBuffer(channels, frames, sampleRate)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			buf.Data[ch][i] = float32(samples[i*channels+ch]) / 32768
		}
	}
	return buf
}
