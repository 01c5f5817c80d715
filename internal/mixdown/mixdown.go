// Package mixdown renders the timeline offline into a stereo PCM buffer and
// serialises it as WAV.
package mixdown

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/satindergrewal/mixdesk/internal/audio"
	"github.com/satindergrewal/mixdesk/internal/library"
	"github.com/satindergrewal/mixdesk/internal/timeline"
)

var (
	ErrEmptyMix         = errors.New("nothing to mix")
	ErrRenderInProgress = errors.New("a mixdown is already running")
)

// Source resolves library items by ID. *library.Library satisfies it.
type Source interface {
	Get(id string) (*library.Item, bool)
}

// Renderer runs one mixdown at a time.
type Renderer struct {
	SampleRate int
	Channels   int

	log  *zap.Logger
	busy atomic.Bool
}

// NewRenderer returns a renderer for the export format.
func NewRenderer(log *zap.Logger) *Renderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{
		SampleRate: audio.ExportSampleRate,
		Channels:   audio.ExportChannels,
		log:        log,
	}
}

// Render mixes every audible clip of model into a new buffer as long as the
// content. Clips whose item is missing from src are skipped.
func (r *Renderer) Render(ctx context.Context, model *timeline.Model, src Source) (*audio.Buffer, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return nil, ErrRenderInProgress
	}
	defer r.busy.Store(false)

	length := model.MaxEndTime()
	if length <= 0 {
		return nil, ErrEmptyMix
	}

	start := time.Now()
	frames := int(math.Ceil(length * float64(r.SampleRate)))
	out := audio.NewBuffer(r.Channels, frames, r.SampleRate)

	mixed := 0
	for ti, track := range model.Tracks {
		if !model.Audible(ti) {
			continue
		}
		for _, c := range track.Clips {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			item, ok := src.Get(c.LibraryItemID)
			if !ok || item.Buffer == nil {
				r.log.Warn("clip skipped, library item missing",
					zap.String("clip", c.ID),
					zap.String("item", c.LibraryItemID))
				continue
			}
			audio.Voice{
				Source: item.Buffer,
				At:     c.Position,
				From:   c.TrimStart,
				Length: c.Duration,
				Gain:   c.GainAutomation(track.Volume, 0, c.Duration),
			}.MixInto(out, 0)
			mixed++
		}
	}
	out.Clamp()

	r.log.Info("mixdown rendered",
		zap.Float64("length", length),
		zap.Int("frames", frames),
		zap.Int("clips", mixed),
		zap.Duration("took", time.Since(start)))
	return out, nil
}
