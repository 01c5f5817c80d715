package stream

import (
	"context"
	"testing"
	"time"

	"github.com/satindergrewal/mixdesk/internal/audio"
)

// drain empties l without blocking and returns how many frames it held.
func drain(l *Listener) int {
	n := 0
	for {
		select {
		case <-l.C:
			n++
		default:
			return n
		}
	}
}

// runUntil starts b.Run and returns a channel closed when it returns.
func runUntil(ctx context.Context, b *Broadcaster, source <-chan []int16) <-chan struct{} {
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		b.Run(ctx, source)
	}()
	return finished
}

func TestListenerAccounting(t *testing.T) {
	b := NewBroadcaster(0, nil)
	if got := b.ListenerCount(); got != 0 {
		t.Fatalf("fresh ListenerCount = %d, want 0", got)
	}

	ls := []*Listener{b.Subscribe(), b.Subscribe(), b.Subscribe()}
	if got := b.ListenerCount(); got != 3 {
		t.Errorf("ListenerCount = %d, want 3", got)
	}
	if cap(ls[0].C) != DefaultListenerBuffer {
		t.Errorf("cap(C) = %d, want default %d", cap(ls[0].C), DefaultListenerBuffer)
	}

	for i, l := range ls {
		b.Unsubscribe(l)
		if got, want := b.ListenerCount(), len(ls)-i-1; got != want {
			t.Errorf("after %d unsubscribes ListenerCount = %d, want %d", i+1, got, want)
		}
		select {
		case <-l.Done():
		default:
			t.Errorf("listener %d Done not closed after unsubscribe", i)
		}
	}

	// a second unsubscribe is harmless
	b.Unsubscribe(ls[0])
	if got := b.ListenerCount(); got != 0 {
		t.Errorf("ListenerCount = %d, want 0", got)
	}
}

func TestPreviewFramesReachEveryListener(t *testing.T) {
	b := NewBroadcaster(0, nil)
	listeners := make([]*Listener, 4)
	for i := range listeners {
		listeners[i] = b.Subscribe()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := make(chan []int16, 1)
	runUntil(ctx, b, source)

	frame := make([]int16, audio.FrameSamples)
	frame[0], frame[len(frame)-1] = 1200, -1200
	source <- frame

	for i, l := range listeners {
		select {
		case got := <-l.C:
			if len(got) != audio.FrameSamples {
				t.Errorf("listener %d frame length = %d, want %d", i, len(got), audio.FrameSamples)
			}
			if got[0] != 1200 || got[len(got)-1] != -1200 {
				t.Errorf("listener %d frame edges = %d,%d, want 1200,-1200", i, got[0], got[len(got)-1])
			}
		case <-time.After(time.Second):
			t.Fatalf("listener %d timed out", i)
		}
	}
}

func TestSlowListenerDropsWithoutStallingOthers(t *testing.T) {
	const buffer, frames = 8, 50
	b := NewBroadcaster(buffer, nil)
	slow := b.Subscribe()
	fast := b.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := make(chan []int16)
	finished := runUntil(ctx, b, source)

	for i := range frames {
		source <- []int16{int16(i)}
		select {
		case got := <-fast.C:
			if got[0] != int16(i) {
				t.Fatalf("fast listener frame = %d, want %d", got[0], i)
			}
		case <-time.After(time.Second):
			t.Fatalf("fast listener starved at frame %d", i)
		}
	}
	// the last fan-out has finished once Run returns
	cancel()
	<-finished

	if got := drain(slow); got != buffer {
		t.Errorf("slow listener kept %d frames, want its buffer of %d", got, buffer)
	}
	if got := b.Dropped(); got != frames-buffer {
		t.Errorf("Dropped = %d, want %d", got, frames-buffer)
	}
}

func TestFanOutCountsDrops(t *testing.T) {
	b := NewBroadcaster(4, nil)
	l := b.Subscribe()
	for i := range 10 {
		b.fanOut([]int16{int16(i)})
	}
	if b.Dropped() != 6 {
		t.Errorf("Dropped = %d, want 6", b.Dropped())
	}
	if got := drain(l); got != 4 {
		t.Errorf("buffered = %d, want 4", got)
	}
}

func TestRunStops(t *testing.T) {
	tests := []struct {
		name string
		stop func(cancel context.CancelFunc, source chan []int16)
	}{
		{"context canceled", func(cancel context.CancelFunc, _ chan []int16) { cancel() }},
		{"source closed", func(_ context.CancelFunc, source chan []int16) { close(source) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBroadcaster(0, nil)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			source := make(chan []int16)
			finished := runUntil(ctx, b, source)

			tt.stop(cancel, source)

			select {
			case <-finished:
			case <-time.After(2 * time.Second):
				t.Fatal("Run did not return")
			}
		})
	}
}
