package background

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type manualSource struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func newManualSource() *manualSource {
	return &manualSource{ch: make(chan time.Time)}
}

func (s *manualSource) Frames() <-chan time.Time { return s.ch }
func (s *manualSource) Stop()                    { s.stopped.Store(true) }

// tick blocks until the loop has taken the tick.
func (s *manualSource) tick() { s.ch <- time.Now() }

type countingFramer struct {
	mu sync.Mutex
	n  int
}

func (f *countingFramer) Frame() {
	f.mu.Lock()
	f.n++
	f.mu.Unlock()
}

func (f *countingFramer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

func TestLoop_FramePerTick(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := newManualSource()
	framer := &countingFramer{}
	seqs := make(chan uint64, 8)
	h := Loop{
		Framer: framer,
		Source: src,
		OnFrame: func(seq uint64) bool {
			seqs <- seq
			return true
		},
	}.Start(context.Background())

	for i := 0; i < 3; i++ {
		src.tick()
		if got := <-seqs; got != uint64(i) {
			t.Fatalf("frame %d reported seq %d", i, got)
		}
	}
	h.Stop()

	if n := framer.count(); n != 3 {
		t.Errorf("expected 3 frames, got %d", n)
	}
	if !src.stopped.Load() {
		t.Error("frame source not stopped")
	}
}

func TestLoop_StopHaltsFrames(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := newManualSource()
	framer := &countingFramer{}
	h := Loop{Framer: framer, Source: src}.Start(context.Background())

	src.tick()
	h.Stop()
	after := framer.count()

	// Nothing reads the source any more.
	select {
	case src.ch <- time.Now():
		t.Fatal("loop still consuming ticks after Stop")
	case <-time.After(20 * time.Millisecond):
	}
	if n := framer.count(); n != after {
		t.Errorf("frames ran after Stop: %d -> %d", after, n)
	}

	// Idempotent.
	h.Stop()
	select {
	case <-h.Done():
	default:
		t.Error("Done not closed after Stop")
	}
}

func TestLoop_ContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	src := newManualSource()
	h := Loop{Framer: &countingFramer{}, Source: src}.Start(ctx)

	cancel()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not exit on context cancel")
	}
	if !src.stopped.Load() {
		t.Error("frame source not stopped")
	}
	h.Stop()
}

func TestLoop_OnFrameFalseEnds(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := newManualSource()
	framer := &countingFramer{}
	h := Loop{
		Framer:  framer,
		Source:  src,
		OnFrame: func(seq uint64) bool { return seq < 1 },
	}.Start(context.Background())

	src.tick()
	src.tick()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not exit when OnFrame returned false")
	}
	if n := framer.count(); n != 2 {
		t.Errorf("expected 2 frames, got %d", n)
	}
	h.Stop()
}

func TestLoop_Ticker(t *testing.T) {
	defer goleak.VerifyNone(t)

	sim, surface := newSeeded(t, 320, 240)
	frames := make(chan struct{}, 1)
	h := Loop{
		Framer: sim,
		Source: NewTicker(time.Millisecond),
		OnFrame: func(uint64) bool {
			select {
			case frames <- struct{}{}:
			default:
			}
			return true
		},
	}.Start(context.Background())
	defer h.Stop()

	select {
	case <-frames:
	case <-time.After(2 * time.Second):
		t.Fatal("no frame from ticker")
	}
	h.Stop()
	if n := len(surface.Snapshot().Discs); n != ParticleCount {
		t.Errorf("expected %d discs, got %d", ParticleCount, n)
	}
}
