package background

import (
	"math"
	"sync"
)

// Frame is the recorded content of one rendered frame. Discs are
// {x, y, radius}; lines are {x0, y0, x1, y1}. Coordinates are rounded to
// hundredths of a surface unit.
type Frame struct {
	Width  int          `json:"width"`
	Height int          `json:"height"`
	Discs  [][3]float64 `json:"discs"`
	Lines  [][4]float64 `json:"lines"`
}

// DisplayList is a Surface that records draw calls so they can be replayed
// by a remote canvas.
type DisplayList struct {
	mu     sync.Mutex
	width  int
	height int
	discs  [][3]float64
	lines  [][4]float64
}

// NewDisplayList returns an empty DisplayList.
func NewDisplayList() *DisplayList {
	return &DisplayList{}
}

// SetSize implements Surface.
func (d *DisplayList) SetSize(width, height int) {
	d.mu.Lock()
	d.width, d.height = width, height
	d.mu.Unlock()
}

// Clear implements Surface.
func (d *DisplayList) Clear() {
	d.mu.Lock()
	d.discs = d.discs[:0]
	d.lines = d.lines[:0]
	d.mu.Unlock()
}

// FillDisc implements Surface.
func (d *DisplayList) FillDisc(x, y, radius float64) {
	d.mu.Lock()
	d.discs = append(d.discs, [3]float64{round2(x), round2(y), round2(radius)})
	d.mu.Unlock()
}

// StrokeLine implements Surface.
func (d *DisplayList) StrokeLine(x0, y0, x1, y1 float64) {
	d.mu.Lock()
	d.lines = append(d.lines, [4]float64{round2(x0), round2(y0), round2(x1), round2(y1)})
	d.mu.Unlock()
}

// Snapshot returns a copy of the calls recorded since the last Clear.
func (d *DisplayList) Snapshot() Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := Frame{
		Width:  d.width,
		Height: d.height,
		Discs:  make([][3]float64, len(d.discs)),
		Lines:  make([][4]float64, len(d.lines)),
	}
	copy(f.Discs, d.discs)
	copy(f.Lines, d.lines)
	return f
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
