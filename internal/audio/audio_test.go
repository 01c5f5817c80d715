package audio

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// --- Constants ---

func TestConstants(t *testing.T) {
	// 48kHz * 20ms = 960 samples per channel
	if got := PreviewSampleRate * int(FrameDuration/time.Millisecond) / 1000; got != FrameSize {
		t.Errorf("FrameSize mismatch: want %d, got %d", got, FrameSize)
	}
	if FrameSamples != FrameSize*Channels {
		t.Errorf("FrameSamples = %d, want %d", FrameSamples, FrameSize*Channels)
	}
	if FrameBytes != FrameSamples*2 {
		t.Errorf("FrameBytes = %d, want %d", FrameBytes, FrameSamples*2)
	}
}

// --- Quantize ---

func TestQuantize(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32768},
		{2, 32767},
		{-3, -32768},
		{0.5, 16384},  // 16383.5 rounds away from zero
		{-0.5, -16384},
	}
	for _, tt := range tests {
		if got := Quantize(tt.in); got != tt.want {
			t.Errorf("Quantize(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// --- Buffer ---

func TestBufferDuration(t *testing.T) {
	b := NewBuffer(2, 44100, 44100)
	if b.Channels() != 2 {
		t.Errorf("Channels = %d, want 2", b.Channels())
	}
	if b.Duration() != 1 {
		t.Errorf("Duration = %v, want 1", b.Duration())
	}
	if (&Buffer{}).Duration() != 0 {
		t.Error("zero-rate buffer should report zero duration")
	}
}

func TestBufferAtInterpolates(t *testing.T) {
	b := NewBuffer(1, 3, 10)
	b.Data[0] = []float32{0, 1, 0}

	tests := []struct {
		pos  float64
		want float32
	}{
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{1.25, 0.75},
		{2, 0},
		{-1, 0},
		{3, 0},
	}
	for _, tt := range tests {
		if got := b.At(0, tt.pos); math.Abs(float64(got-tt.want)) > 1e-6 {
			t.Errorf("At(0, %v) = %v, want %v", tt.pos, got, tt.want)
		}
	}
	// mono maps onto the right channel too
	if got := b.At(1, 1); got != 1 {
		t.Errorf("At(1, 1) on mono = %v, want 1", got)
	}
}

func TestBufferClamp(t *testing.T) {
	b := NewBuffer(1, 3, 10)
	b.Data[0] = []float32{1.5, -2, 0.25}
	b.Clamp()
	want := []float32{1, -1, 0.25}
	for i, v := range b.Data[0] {
		if v != want[i] {
			t.Errorf("sample[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestInterleaved16(t *testing.T) {
	b := NewBuffer(2, 2, 10)
	b.Data[0] = []float32{1, 0}
	b.Data[1] = []float32{-1, 0}
	got := b.Interleaved16()
	want := []int16{32767, -32768, 0, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

// --- Automation ---

func TestAutomationConstant(t *testing.T) {
	a := Constant(0.8)
	for _, tt := range []float64{0, 1, 100} {
		if got := a.ValueAt(tt); got != 0.8 {
			t.Errorf("ValueAt(%v) = %v, want 0.8", tt, got)
		}
	}
}

func TestAutomationFadeInOut(t *testing.T) {
	a := Constant(1)
	a.SetValueAt(0, 0)
	a.RampTo(1, 2)
	a.SetValueAt(1, 8)
	a.RampTo(0, 10)

	tests := []struct {
		at   float64
		want float64
	}{
		{0, 0},
		{1, 0.5},
		{2, 1},
		{5, 1},
		{8, 1},
		{9, 0.5},
		{10, 0},
		{11, 0},
	}
	for _, tt := range tests {
		if got := a.ValueAt(tt.at); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ValueAt(%v) = %v, want %v", tt.at, got, tt.want)
		}
	}
}

func TestAutomationLaterEventWins(t *testing.T) {
	a := Constant(1)
	a.SetValueAt(0.5, 3)
	a.SetValueAt(0.2, 3)
	if got := a.ValueAt(3); got != 0.2 {
		t.Errorf("ValueAt(3) = %v, want 0.2", got)
	}
	if got := a.ValueAt(2.9); got != 1 {
		t.Errorf("ValueAt(2.9) = %v, want 1", got)
	}
}

func TestAutomationClone(t *testing.T) {
	a := Constant(1)
	a.SetValueAt(0, 1)
	b := a.Clone()
	b.Events[0].Value = 9
	if a.Events[0].Value != 0 {
		t.Error("Clone shares event storage")
	}
}

// --- Voice ---

func TestVoiceMixInto(t *testing.T) {
	src := NewBuffer(1, 10, 10)
	for i := range src.Data[0] {
		src.Data[0][i] = float32(i) / 10
	}
	dst := NewBuffer(2, 10, 10)

	// 0.3s of source starting at 0.2s, placed at 0.5s, half gain
	Voice{Source: src, At: 0.5, From: 0.2, Length: 0.3, Gain: Constant(0.5)}.MixInto(dst, 0)

	for i := 0; i < 10; i++ {
		want := float32(0)
		if i >= 5 && i < 8 {
			want = float32(i-5+2) / 10 * 0.5
		}
		for ch := 0; ch < 2; ch++ {
			if got := dst.Data[ch][i]; math.Abs(float64(got-want)) > 1e-6 {
				t.Errorf("dst[%d][%d] = %v, want %v", ch, i, got, want)
			}
		}
	}
}

func TestVoiceMixIntoOffsetWindow(t *testing.T) {
	src := NewBuffer(1, 20, 10)
	for i := range src.Data[0] {
		src.Data[0][i] = 1
	}
	// Output window covering 1.0s..1.5s of a voice that spans 0.5s..1.2s.
	dst := NewBuffer(1, 5, 10)
	Voice{Source: src, At: 0.5, Length: 0.7, Gain: Constant(1)}.MixInto(dst, 1.0)

	want := []float32{1, 1, 0, 0, 0}
	for i, w := range want {
		if dst.Data[0][i] != w {
			t.Errorf("dst[%d] = %v, want %v", i, dst.Data[0][i], w)
		}
	}
}

func TestVoiceNilSourceIsSilent(t *testing.T) {
	dst := NewBuffer(1, 4, 10)
	Voice{At: 0, Length: 1, Gain: Constant(1)}.MixInto(dst, 0)
	for i, v := range dst.Data[0] {
		if v != 0 {
			t.Errorf("dst[%d] = %v, want 0", i, v)
		}
	}
}

// --- SamplesToBytes / round-trip ---

func TestSamplesToBytes(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	buf := SamplesToBytes(samples)
	if len(buf) != len(samples)*2 {
		t.Fatalf("SamplesToBytes length = %d, want %d", len(buf), len(samples)*2)
	}
	// 1 in LE = [0x01, 0x00]
	if buf[2] != 0x01 || buf[3] != 0x00 {
		t.Errorf("Sample 1 bytes = [%02x, %02x], want [01, 00]", buf[2], buf[3])
	}
	// -1 in LE = [0xFF, 0xFF]
	if buf[4] != 0xFF || buf[5] != 0xFF {
		t.Errorf("Sample -1 bytes = [%02x, %02x], want [ff, ff]", buf[4], buf[5])
	}
}

func TestSamplesBytesRoundTrip(t *testing.T) {
	original := []int16{0, 100, -100, 32767, -32768, 12345, -12345}
	got := BytesToSamples(SamplesToBytes(original))
	for i := range original {
		if got[i] != original[i] {
			t.Errorf("Round-trip sample[%d] = %d, want %d", i, got[i], original[i])
		}
	}
	if n := len(BytesToSamples([]byte{1, 2, 3})); n != 1 {
		t.Errorf("odd byte count gave %d samples, want 1", n)
	}
}

// --- Decoder ---

func writeTestWAV(t *testing.T, rate, channels int, samples []int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestDecodeWAV(t *testing.T) {
	raw := writeTestWAV(t, 8000, 2, []int{16384, -16384, 0, 32767})

	buf, err := (&Decoder{}).Decode(context.Background(), raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if buf.SampleRate != 8000 {
		t.Errorf("SampleRate = %d, want 8000", buf.SampleRate)
	}
	if buf.Channels() != 2 || buf.Frames() != 2 {
		t.Fatalf("shape = %dx%d, want 2x2", buf.Channels(), buf.Frames())
	}
	if buf.Data[0][0] != 0.5 || buf.Data[1][0] != -0.5 {
		t.Errorf("frame 0 = (%v, %v), want (0.5, -0.5)", buf.Data[0][0], buf.Data[1][0])
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := (&Decoder{}).Decode(context.Background(), []byte("definitely not audio"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := (&Decoder{}).Decode(context.Background(), nil); err == nil {
		t.Error("empty input should fail")
	}
}

func TestSniff(t *testing.T) {
	if !isWAV([]byte("RIFF\x00\x00\x00\x00WAVEfmt ")) {
		t.Error("RIFF/WAVE not detected")
	}
	if !isMP3([]byte("ID3\x04")) {
		t.Error("ID3 tag not detected")
	}
	if !isMP3([]byte{0xFF, 0xFB, 0x90}) {
		t.Error("frame sync not detected")
	}
	if isMP3([]byte("OggS")) {
		t.Error("Ogg misdetected as mp3")
	}
}

// --- Capture ---

func TestCaptureRequiresDevice(t *testing.T) {
	c := &FFmpegCapture{Path: "ffmpeg"}
	if err := c.Start(context.Background()); err == nil {
		t.Error("Start without a device should fail")
	}
	if _, err := c.Stop(context.Background()); err == nil {
		t.Error("Stop without a take should fail")
	}
}
