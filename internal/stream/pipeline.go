package stream

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satindergrewal/mixdesk/internal/audio"
	"github.com/satindergrewal/mixdesk/internal/library"
	"github.com/satindergrewal/mixdesk/internal/transport"
)

// Source resolves library items by ID.
type Source interface {
	Get(id string) (*library.Item, bool)
}

type session struct {
	id     uuid.UUID
	voices []audio.Voice
	length float64 // seconds
	frame  int
}

// Pipeline renders transport schedules into 20ms PCM frames at real-time
// rate. Between sessions it emits silence so encoders downstream keep a
// steady clock. It is the preview transport.Backend.
type Pipeline struct {
	src     Source
	frameCh chan []int16
	silence []int16
	log     *zap.Logger

	mu      sync.Mutex
	current *session
}

// NewPipeline creates a pipeline reading sample data from src.
func NewPipeline(src Source, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		src:     src,
		frameCh: make(chan []int16, 100),
		silence: make([]int16, audio.FrameSamples),
		log:     log,
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (p *Pipeline) Frames() <-chan []int16 {
	return p.frameCh
}

// Play replaces the running session with s.
func (p *Pipeline) Play(_ context.Context, s transport.Schedule) error {
	sess := &session{id: s.SessionID}
	for _, in := range s.Instructions {
		item, ok := p.src.Get(in.LibraryItemID)
		if !ok || item.Buffer == nil {
			continue
		}
		sess.voices = append(sess.voices, audio.Voice{
			Source: item.Buffer,
			At:     in.When,
			From:   in.SourceStart,
			Length: in.Duration,
			Gain:   in.Gain,
		})
		sess.length = math.Max(sess.length, in.When+in.Duration)
	}

	p.mu.Lock()
	p.current = sess
	p.mu.Unlock()
	p.log.Debug("preview session started",
		zap.String("session", s.SessionID.String()),
		zap.Int("voices", len(sess.voices)),
		zap.Float64("length", sess.length))
	return nil
}

// Cancel silences the running session immediately.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.log.Debug("preview session canceled", zap.String("session", p.current.id.String()))
	}
	p.current = nil
}

// Status returns the running session and its position.
func (p *Pipeline) Status() (id uuid.UUID, position, length time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return uuid.Nil, 0, 0
	}
	s := p.current
	return s.id, time.Duration(s.frame) * audio.FrameDuration, time.Duration(s.length * float64(time.Second))
}

// Run emits one frame per tick until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.frameCh)

	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	for {
		if !p.sendFrame(ctx, ticker, p.nextFrame()) {
			return
		}
	}
}

// nextFrame renders the next 20ms of the running session, or silence.
func (p *Pipeline) nextFrame() []int16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.current
	if s == nil {
		return p.silence
	}

	start := float64(s.frame) * audio.FrameDuration.Seconds()
	buf := audio.NewBuffer(audio.Channels, audio.FrameSize, audio.PreviewSampleRate)
	for _, v := range s.voices {
		v.MixInto(buf, start)
	}
	buf.Clamp()
	s.frame++

	if float64(s.frame)*audio.FrameDuration.Seconds() >= s.length {
		p.log.Debug("preview session finished", zap.String("session", s.id.String()))
		p.current = nil
	}
	return buf.Interleaved16()
}

// sendFrame waits for the ticker then sends a frame. Returns false on cancel.
func (p *Pipeline) sendFrame(ctx context.Context, ticker *time.Ticker, frame []int16) bool {
	select {
	case <-ctx.Done():
		return false
	case <-ticker.C:
	}

	select {
	case p.frameCh <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}
