package library

import (
	"math"

	"github.com/satindergrewal/mixdesk/internal/audio"
)

// Peak summarises one block of the waveform.
type Peak struct {
	Avg  float32 `json:"avg"`
	Peak float32 `json:"peak"`
}

// ComputePeaks splits the first channel into points blocks and records the
// mean and max absolute amplitude of each.
func ComputePeaks(buf *audio.Buffer, points int) []Peak {
	if buf == nil || buf.Frames() == 0 || points <= 0 {
		return nil
	}
	data := buf.Data[0]
	block := len(data) / points
	if block == 0 {
		block = 1
		points = len(data)
	}
	out := make([]Peak, points)
	for i := range out {
		start := i * block
		end := start + block
		if i == points-1 {
			end = len(data)
		}
		var sum float64
		var peak float32
		for _, s := range data[start:end] {
			a := float32(math.Abs(float64(s)))
			sum += float64(a)
			if a > peak {
				peak = a
			}
		}
		out[i] = Peak{Avg: float32(sum / float64(end-start)), Peak: peak}
	}
	return out
}
