package background

import (
	"math/rand/v2"
	"testing"
)

func newSeeded(t *testing.T, w, h int) (*Simulator, *DisplayList) {
	t.Helper()
	surface := NewDisplayList()
	sim := New(surface, FixedViewport{Width: w, Height: h}, rand.New(rand.NewPCG(1, 2)))
	return sim, surface
}

func TestNew_ParticleInvariants(t *testing.T) {
	const w, h = 800, 600
	sim, surface := newSeeded(t, w, h)

	ps := sim.Particles()
	if len(ps) != ParticleCount {
		t.Fatalf("expected %d particles, got %d", ParticleCount, len(ps))
	}
	for i, p := range ps {
		if p.X < 0 || p.X >= w || p.Y < 0 || p.Y >= h {
			t.Errorf("particle %d position (%v,%v) outside [0,%d)x[0,%d)", i, p.X, p.Y, w, h)
		}
		if p.Radius < 2 || p.Radius >= 4 {
			t.Errorf("particle %d radius %v outside [2,4)", i, p.Radius)
		}
		if p.DX < -1 || p.DX > 1 || p.DY < -1 || p.DY > 1 {
			t.Errorf("particle %d velocity (%v,%v) outside [-1,1]", i, p.DX, p.DY)
		}
	}

	snap := surface.Snapshot()
	if snap.Width != w || snap.Height != h {
		t.Errorf("surface size = %dx%d, want %dx%d", snap.Width, snap.Height, w, h)
	}
	if gw, gh := sim.Size(); gw != w || gh != h {
		t.Errorf("Size() = %vx%v, want %dx%d", gw, gh, w, h)
	}
}

func TestFrame_AdvancesAndReflects(t *testing.T) {
	const w, h = 300, 200
	sim, _ := newSeeded(t, w, h)

	for frame := 0; frame < 500; frame++ {
		before := sim.Particles()
		sim.Frame()
		after := sim.Particles()

		for i := range before {
			b, a := before[i], after[i]
			wantX, wantY := b.X+b.DX, b.Y+b.DY
			if a.X != wantX || a.Y != wantY {
				t.Fatalf("frame %d particle %d moved to (%v,%v), want (%v,%v)", frame, i, a.X, a.Y, wantX, wantY)
			}

			wantDX := b.DX
			if wantX < 0 || wantX > w {
				wantDX = -b.DX
			}
			wantDY := b.DY
			if wantY < 0 || wantY > h {
				wantDY = -b.DY
			}
			if a.DX != wantDX || a.DY != wantDY {
				t.Fatalf("frame %d particle %d velocity (%v,%v), want (%v,%v)", frame, i, a.DX, a.DY, wantDX, wantDY)
			}
			if a.Radius != b.Radius {
				t.Fatalf("frame %d particle %d radius changed", frame, i)
			}
		}
	}
}

func TestFrame_DrawsDiscsAndConnections(t *testing.T) {
	sim, surface := newSeeded(t, 400, 300)

	before := sim.Particles()
	sim.Frame()
	snap := surface.Snapshot()

	if len(snap.Discs) != ParticleCount {
		t.Fatalf("expected %d discs, got %d", ParticleCount, len(snap.Discs))
	}
	wantLines := 0
	for i := range before {
		for j := i + 1; j < len(before); j++ {
			if Connected(before[i], before[j]) {
				wantLines++
			}
		}
	}
	if len(snap.Lines) != wantLines {
		t.Errorf("expected %d lines, got %d", wantLines, len(snap.Lines))
	}

	// A second frame starts from a cleared surface.
	sim.Frame()
	if n := len(surface.Snapshot().Discs); n != ParticleCount {
		t.Errorf("second frame recorded %d discs, want %d", n, ParticleCount)
	}
}

func TestConnected_StrictBoundary(t *testing.T) {
	a := Particle{X: 0, Y: 0}
	tests := []struct {
		name string
		b    Particle
		want bool
	}{
		{"just under", Particle{X: 99.999}, true},
		{"exactly 100", Particle{X: 100}, false},
		{"over", Particle{X: 100.001}, false},
		{"diagonal 60-80-100", Particle{X: 60, Y: 80}, false},
		{"diagonal under", Particle{X: 59.9, Y: 80}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Connected(a, tt.b); got != tt.want {
				t.Errorf("Connected = %v, want %v (distance %v)", got, tt.want, Distance(a, tt.b))
			}
		})
	}
}

func TestFrame_ConnectionBoundaryDrawn(t *testing.T) {
	surface := NewDisplayList()
	sim := &Simulator{surface: surface, viewport: FixedViewport{Width: 1000, Height: 1000}}
	sim.syncSize()
	sim.particles = []Particle{
		{X: 100, Y: 500, Radius: 2},
		{X: 199.999, Y: 500, Radius: 2},
		{X: 400, Y: 500, Radius: 2},
		{X: 500, Y: 500, Radius: 2},
	}

	sim.Frame()
	lines := surface.Snapshot().Lines
	if len(lines) != 1 {
		t.Fatalf("expected exactly 1 line, got %d: %v", len(lines), lines)
	}
	if lines[0][0] != 100 || lines[0][2] != 200 {
		t.Errorf("unexpected line %v", lines[0])
	}
}

type mutableViewport struct{ w, h int }

func (v *mutableViewport) Size() (int, int) { return v.w, v.h }

func TestResize_KeepsParticles(t *testing.T) {
	vp := &mutableViewport{w: 1000, h: 800}
	surface := NewDisplayList()
	sim := New(surface, vp, rand.New(rand.NewPCG(7, 7)))
	before := sim.Particles()

	vp.w, vp.h = 200, 100
	sim.Resize()

	after := sim.Particles()
	if len(after) != len(before) {
		t.Fatalf("particle count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("particle %d changed on resize: %+v -> %+v", i, before[i], after[i])
		}
	}
	snap := surface.Snapshot()
	if snap.Width != 200 || snap.Height != 100 {
		t.Errorf("surface size = %dx%d, want 200x100", snap.Width, snap.Height)
	}

	// Particles outside the new bounds head back inside after one frame and
	// are all back within the bounds eventually.
	sim.Frame()
	for i, p := range sim.Particles() {
		if p.X > 200 && p.DX > 0 {
			t.Errorf("particle %d beyond right edge still moving right", i)
		}
		if p.Y > 100 && p.DY > 0 {
			t.Errorf("particle %d beyond bottom edge still moving down", i)
		}
	}
	for frame := 0; frame < 2000; frame++ {
		sim.Frame()
	}
	for i, p := range sim.Particles() {
		if p.X < -1 || p.X > 201 || p.Y < -1 || p.Y > 101 {
			t.Errorf("particle %d still stranded at (%v,%v)", i, p.X, p.Y)
		}
	}
}

func TestReflect(t *testing.T) {
	tests := []struct {
		name          string
		pos, v, limit float64
		want          float64
	}{
		{"inside keeps velocity", 50, 0.5, 100, 0.5},
		{"on upper edge keeps velocity", 100, 0.5, 100, 0.5},
		{"on lower edge keeps velocity", 0, -0.5, 100, -0.5},
		{"crossed upper edge negates", 100.2, 0.5, 100, -0.5},
		{"crossed lower edge negates", -0.2, -0.5, 100, 0.5},
		{"stranded heading inside keeps", 900, -0.5, 100, -0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reflect(tt.pos, tt.v, tt.limit); got != tt.want {
				t.Errorf("reflect(%v, %v, %v) = %v, want %v", tt.pos, tt.v, tt.limit, got, tt.want)
			}
		})
	}
}
