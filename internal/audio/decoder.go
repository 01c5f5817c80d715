package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedFormat is returned when no decoder recognises the input.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Decoder turns raw file bytes into PCM. WAV and MP3 are decoded in-process;
// anything else (the WebM/Ogg takes browsers record, for instance) goes
// through FFmpeg when FFmpegPath is set.
type Decoder struct {
	FFmpegPath string
	SampleRate int // output rate for the FFmpeg path; 0 means ExportSampleRate
}

// Decode sniffs the container and decodes it.
func (d *Decoder) Decode(ctx context.Context, raw []byte) (*Buffer, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty input")
	}
	switch {
	case isWAV(raw):
		return decodeWAV(raw)
	case isMP3(raw):
		return decodeMP3(raw)
	case d.FFmpegPath != "":
		return d.decodeFFmpeg(ctx, raw)
	default:
		return nil, ErrUnsupportedFormat
	}
}

func isWAV(raw []byte) bool {
	return len(raw) >= 12 && string(raw[0:4]) == "RIFF" && string(raw[8:12]) == "WAVE"
}

func isMP3(raw []byte) bool {
	if len(raw) >= 3 && string(raw[0:3]) == "ID3" {
		return true
	}
	// MPEG frame sync: 11 set bits
	return len(raw) >= 2 && raw[0] == 0xFF && raw[1]&0xE0 == 0xE0
}

func decodeWAV(raw []byte) (*Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(raw))
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav header")
	}
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read wav pcm: %w", err)
	}
	return fromIntBuffer(pcm, int(dec.BitDepth))
}

func fromIntBuffer(pcm *goaudio.IntBuffer, headerDepth int) (*Buffer, error) {
	if pcm.Format == nil || pcm.Format.NumChannels <= 0 || pcm.Format.SampleRate <= 0 {
		return nil, errors.New("wav format missing channels or sample rate")
	}
	depth := pcm.SourceBitDepth
	if depth == 0 {
		depth = headerDepth
	}
	if depth <= 0 || depth > 32 {
		return nil, fmt.Errorf("unsupported bit depth %d", depth)
	}

	channels := pcm.Format.NumChannels
	frames := len(pcm.Data) / channels
	buf := NewBuffer(channels, frames, pcm.Format.SampleRate)
	scale := float32(int64(1) << (depth - 1))
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			v := pcm.Data[i*channels+ch]
			if depth == 8 {
				// 8-bit WAV is unsigned
				v -= 128
			}
			buf.Data[ch][i] = float32(v) / scale
		}
	}
	return buf, nil
}

func decodeMP3(raw []byte) (*Buffer, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open mp3: %w", err)
	}
	out, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decode mp3: %w", err)
	}
	// go-mp3 always yields 16-bit little-endian stereo
	return FromInt16(BytesToSamples(out), 2, dec.SampleRate()), nil
}

// decodeFFmpeg pipes the input through FFmpeg and reads back raw PCM int16
// samples, interleaved stereo.
func (d *Decoder) decodeFFmpeg(ctx context.Context, raw []byte) (*Buffer, error) {
	rate := d.SampleRate
	if rate <= 0 {
		rate = ExportSampleRate
	}
	cmd := exec.CommandContext(ctx, d.FFmpegPath,
		"-i", "pipe:0",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(rate),
		"-ac", "2",
		"-loglevel", "error",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(raw)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode: %w", err)
	}
	if len(out) == 0 {
		return nil, errors.New("ffmpeg produced no audio")
	}
	return FromInt16(BytesToSamples(out), 2, rate), nil
}

// BytesToSamples reads little-endian int16 samples. A trailing odd byte is
// dropped.
func BytesToSamples(buf []byte) []int16 {
	samples := make([]int16, len(buf)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2 : i*2+2]))
	}
	return samples
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
