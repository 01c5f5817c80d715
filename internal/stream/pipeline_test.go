package stream

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/satindergrewal/mixdesk/internal/audio"
	"github.com/satindergrewal/mixdesk/internal/library"
	"github.com/satindergrewal/mixdesk/internal/transport"
)

type mapSource map[string]*library.Item

func (s mapSource) Get(id string) (*library.Item, bool) {
	item, ok := s[id]
	return item, ok
}

func levelItem(id string, seconds float64, level float32) *library.Item {
	buf := audio.NewBuffer(2, int(seconds*audio.PreviewSampleRate), audio.PreviewSampleRate)
	for ch := range buf.Data {
		for i := range buf.Data[ch] {
			buf.Data[ch][i] = level
		}
	}
	return &library.Item{ID: id, Name: id, Duration: seconds, Buffer: buf}
}

func schedule(item string, when, dur float64) transport.Schedule {
	return transport.Schedule{
		SessionID: uuid.New(),
		Instructions: []transport.Instruction{{
			ClipID:        "c1",
			LibraryItemID: item,
			When:          when,
			Duration:      dur,
			SourceEnd:     dur,
			Gain:          audio.Constant(1),
		}},
	}
}

// --- Frame rendering ---

func TestPipelineSilenceWhenIdle(t *testing.T) {
	p := NewPipeline(mapSource{}, nil)
	frame := p.nextFrame()
	if len(frame) != audio.FrameSamples {
		t.Fatalf("frame length = %d, want %d", len(frame), audio.FrameSamples)
	}
	for i, s := range frame {
		if s != 0 {
			t.Fatalf("frame[%d] = %d, want 0", i, s)
		}
	}
}

func TestPipelineRendersSession(t *testing.T) {
	p := NewPipeline(mapSource{"a": levelItem("a", 1, 0.5)}, nil)
	s := schedule("a", 0, 0.05)
	if err := p.Play(context.Background(), s); err != nil {
		t.Fatalf("Play: %v", err)
	}

	id, _, length := p.Status()
	if id != s.SessionID {
		t.Errorf("session = %v, want %v", id, s.SessionID)
	}
	if length != 50*time.Millisecond {
		t.Errorf("length = %v, want 50ms", length)
	}

	frame := p.nextFrame()
	if frame[0] != 16384 || frame[1] != 16384 {
		t.Errorf("first samples = %d,%d, want 16384", frame[0], frame[1])
	}

	// 50ms is two full frames plus half of a third
	p.nextFrame()
	third := p.nextFrame()
	if third[0] != 16384 {
		t.Errorf("third frame start = %d, want 16384", third[0])
	}
	if last := third[len(third)-1]; last != 0 {
		t.Errorf("third frame tail = %d, want 0", last)
	}

	if id, _, _ := p.Status(); id != uuid.Nil {
		t.Errorf("session still running after its length: %v", id)
	}
}

func TestPipelineDelayedVoice(t *testing.T) {
	p := NewPipeline(mapSource{"a": levelItem("a", 1, 0.25)}, nil)
	p.Play(context.Background(), schedule("a", 0.02, 0.02))

	first := p.nextFrame()
	if first[0] != 0 {
		t.Errorf("first frame = %d, want silence before When", first[0])
	}
	second := p.nextFrame()
	if second[0] != audio.Quantize(0.25) {
		t.Errorf("second frame = %d, want %d", second[0], audio.Quantize(0.25))
	}

	_, pos, _ := p.Status()
	if pos != 0 {
		// session finished, status reset
		t.Errorf("position after finish = %v, want 0", pos)
	}
}

func TestPipelineSkipsMissingItems(t *testing.T) {
	p := NewPipeline(mapSource{}, nil)
	p.Play(context.Background(), schedule("gone", 0, 1))

	_, _, length := p.Status()
	if length != 0 {
		t.Errorf("length = %v, want 0", length)
	}
}

func TestPipelineCancel(t *testing.T) {
	p := NewPipeline(mapSource{"a": levelItem("a", 1, 0.5)}, nil)
	p.Play(context.Background(), schedule("a", 0, 1))
	p.nextFrame()

	_, pos, _ := p.Status()
	if pos != audio.FrameDuration {
		t.Errorf("position = %v, want %v", pos, audio.FrameDuration)
	}

	p.Cancel()
	frame := p.nextFrame()
	if frame[0] != 0 {
		t.Errorf("frame after cancel = %d, want 0", frame[0])
	}
}

func TestPipelinePlayReplacesSession(t *testing.T) {
	src := mapSource{"a": levelItem("a", 1, 0.5), "b": levelItem("b", 1, 0.25)}
	p := NewPipeline(src, nil)
	p.Play(context.Background(), schedule("a", 0, 1))
	p.nextFrame()
	next := schedule("b", 0, 1)
	p.Play(context.Background(), next)

	frame := p.nextFrame()
	if frame[0] != audio.Quantize(0.25) {
		t.Errorf("frame = %d, want only the new session", frame[0])
	}
	if id, _, _ := p.Status(); id != next.SessionID {
		t.Errorf("session = %v, want %v", id, next.SessionID)
	}
}

// --- Run loop ---

func TestPipelineRunEmitsFrames(t *testing.T) {
	p := NewPipeline(mapSource{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	select {
	case frame := <-p.Frames():
		if len(frame) != audio.FrameSamples {
			t.Errorf("frame length = %d, want %d", len(frame), audio.FrameSamples)
		}
	case <-time.After(time.Second):
		t.Fatal("no frame within a second")
	}

	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-p.Frames():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("frame channel not closed after cancel")
		}
	}
}

func TestPipelineFeedsBroadcaster(t *testing.T) {
	p := NewPipeline(mapSource{"a": levelItem("a", 1, 0.5)}, nil)
	b := NewBroadcaster(0, nil)
	l := b.Subscribe()
	defer b.Unsubscribe(l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	go b.Run(ctx, p.Frames())

	p.Play(ctx, schedule("a", 0, 1))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case frame := <-l.C:
			if frame[0] == 16384 {
				return
			}
		case <-deadline:
			t.Fatal("listener never heard the session")
		}
	}
}
