package background

import (
	"context"
	"sync"
	"time"
)

// FrameSource delivers animation ticks.
type FrameSource interface {
	Frames() <-chan time.Time
	Stop()
}

type tickerSource struct {
	t *time.Ticker
}

// NewTicker returns a FrameSource ticking every interval.
func NewTicker(interval time.Duration) FrameSource {
	return &tickerSource{t: time.NewTicker(interval)}
}

func (s *tickerSource) Frames() <-chan time.Time { return s.t.C }
func (s *tickerSource) Stop()                    { s.t.Stop() }

// Framer renders one animation frame.
type Framer interface {
	Frame()
}

// Loop runs Framer once per tick of Source. OnFrame, when set, is called in
// the loop goroutine after every frame with the zero-based frame sequence;
// returning false ends the loop.
type Loop struct {
	Framer  Framer
	Source  FrameSource
	OnFrame func(seq uint64) bool
}

// Handle controls a running loop.
type Handle struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Start runs the loop in its own goroutine until the returned handle is
// stopped, ctx is cancelled, or OnFrame returns false. The frame source is
// stopped when the loop exits.
func (l Loop) Start(ctx context.Context) *Handle {
	h := &Handle{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go l.run(ctx, h)
	return h
}

func (l Loop) run(ctx context.Context, h *Handle) {
	defer close(h.done)
	defer l.Source.Stop()

	var seq uint64
	for {
		select {
		case <-h.stop:
			return
		case <-ctx.Done():
			return
		case <-l.Source.Frames():
		}

		// A tick and a stop can be ready together; stop wins.
		select {
		case <-h.stop:
			return
		default:
		}

		l.Framer.Frame()
		if l.OnFrame != nil && !l.OnFrame(seq) {
			return
		}
		seq++
	}
}

// Stop cancels the loop and waits for its goroutine to exit. No frame runs
// after Stop returns. Stop is idempotent. It must not be called from OnFrame;
// return false there instead.
func (h *Handle) Stop() {
	h.once.Do(func() { close(h.stop) })
	<-h.done
}

// Done is closed once the loop goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}
