package mixdown

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/satindergrewal/mixdesk/internal/audio"
)

const wavHeaderSize = 44

// SerializeWAV encodes buf as 16-bit PCM WAV.
func SerializeWAV(buf *audio.Buffer) []byte {
	var b bytes.Buffer
	b.Grow(wavHeaderSize + buf.Frames()*buf.Channels()*2)
	// bytes.Buffer writes never fail
	_ = WriteWAV(&b, buf)
	return b.Bytes()
}

// WriteWAV streams buf to w as a canonical 44-byte-header PCM WAV file with
// interleaved little-endian samples.
func WriteWAV(w io.Writer, buf *audio.Buffer) error {
	channels := buf.Channels()
	frames := buf.Frames()
	dataSize := frames * channels * 2

	var h [wavHeaderSize]byte
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(wavHeaderSize+dataSize-8))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(buf.SampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(buf.SampleRate*channels*2))
	binary.LittleEndian.PutUint16(h[32:34], uint16(channels*2))
	binary.LittleEndian.PutUint16(h[34:36], audio.BitDepth)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(dataSize))
	if _, err := w.Write(h[:]); err != nil {
		return err
	}

	// one second per write keeps memory flat for long mixes
	chunk := make([]byte, 0, buf.SampleRate*channels*2)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			chunk = binary.LittleEndian.AppendUint16(chunk, uint16(audio.Quantize(buf.Data[ch][i])))
		}
		if len(chunk) == cap(chunk) {
			if _, err := w.Write(chunk); err != nil {
				return err
			}
			chunk = chunk[:0]
		}
	}
	if len(chunk) > 0 {
		if _, err := w.Write(chunk); err != nil {
			return err
		}
	}
	return nil
}
