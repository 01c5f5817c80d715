package session

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/satindergrewal/mixdesk/internal/audio"
)

// encodePCM packs a buffer as planar little-endian float32, channel after
// channel.
func encodePCM(buf *audio.Buffer) []byte {
	frames := buf.Frames()
	out := make([]byte, 0, buf.Channels()*frames*4)
	for _, ch := range buf.Data {
		for _, s := range ch {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(s))
		}
	}
	return out
}

func decodePCM(data []byte, channels, sampleRate int) (*audio.Buffer, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("pcm blob: invalid channel count %d", channels)
	}
	if len(data)%(channels*4) != 0 {
		return nil, fmt.Errorf("pcm blob: %d bytes is not a whole number of %d-channel frames", len(data), channels)
	}
	frames := len(data) / (channels * 4)
	buf := audio.NewBuffer(channels, frames, sampleRate)
	off := 0
	for ch := 0; ch < channels; ch++ {
		for i := 0; i < frames; i++ {
			buf.Data[ch][i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
	}
	return buf, nil
}
