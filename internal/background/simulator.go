// Package background simulates the ambient particle-and-connection animation
// shown behind the web pages. A Simulator owns a fixed set of particles and
// draws them onto a Surface once per frame; a Loop drives frames from a
// FrameSource and can be stopped deterministically when the owning view goes
// away.
package background

import (
	"math"
	"math/rand/v2"
	"sync"
)

const (
	// ParticleCount is the fixed population of every simulator.
	ParticleCount = 100

	// ConnectDistance is the exclusive upper bound on the distance between two
	// particles for a connecting line to be drawn.
	ConnectDistance = 100.0

	// RadiusMin and RadiusSpread bound particle radii to [2, 4).
	RadiusMin    = 2.0
	RadiusSpread = 2.0

	// LineWidth is the stroke width of connection lines.
	LineWidth = 0.5
)

// Particle is a point drawn as a disc that drifts with a constant velocity
// and bounces off the surface edges.
type Particle struct {
	X, Y   float64
	Radius float64
	DX, DY float64
}

// Viewport reports the visible area a surface should cover.
type Viewport interface {
	Size() (width, height int)
}

// FixedViewport is a Viewport with constant dimensions.
type FixedViewport struct {
	Width, Height int
}

// Size implements Viewport.
func (v FixedViewport) Size() (int, int) { return v.Width, v.Height }

// Surface is a 2D drawing target.
type Surface interface {
	SetSize(width, height int)
	Clear()
	FillDisc(x, y, radius float64)
	StrokeLine(x0, y0, x1, y1 float64)
}

// Simulator owns a particle set and renders it to a surface. All methods are
// safe for concurrent use; Frame and Resize are serialized.
type Simulator struct {
	mu        sync.Mutex
	surface   Surface
	viewport  Viewport
	width     float64
	height    float64
	particles []Particle
}

// New sizes surface to the viewport and seeds ParticleCount particles with
// positions uniform over the surface, radii in [2,4) and velocity components
// in [-1,1). A nil rng uses a randomly seeded source.
func New(surface Surface, viewport Viewport, rng *rand.Rand) *Simulator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	s := &Simulator{surface: surface, viewport: viewport}
	s.syncSize()

	s.particles = make([]Particle, ParticleCount)
	for i := range s.particles {
		s.particles[i] = Particle{
			X:      rng.Float64() * s.width,
			Y:      rng.Float64() * s.height,
			Radius: RadiusMin + rng.Float64()*RadiusSpread,
			DX:     rng.Float64()*2 - 1,
			DY:     rng.Float64()*2 - 1,
		}
	}
	return s
}

// Frame renders the current particles and then advances them by one tick:
// clear, draw discs, draw connections, move.
func (s *Simulator) Frame() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.surface.Clear()
	for _, p := range s.particles {
		s.surface.FillDisc(p.X, p.Y, p.Radius)
	}
	for i := range s.particles {
		a := s.particles[i]
		for j := i + 1; j < len(s.particles); j++ {
			b := s.particles[j]
			if Connected(a, b) {
				s.surface.StrokeLine(a.X, a.Y, b.X, b.Y)
			}
		}
	}
	s.advance()
}

// advance moves every particle by its velocity and reflects the velocity on
// any axis whose new coordinate left [0, extent]. The check happens after the
// move, so a particle may sit just outside the bounds for one frame.
//
// Reflection points the velocity back inside. For a particle that crossed an
// edge this is a plain negation; a particle stranded outside by a resize and
// already heading inside keeps its direction instead of oscillating.
func (s *Simulator) advance() {
	for i := range s.particles {
		p := &s.particles[i]
		p.X += p.DX
		p.Y += p.DY
		p.DX = reflect(p.X, p.DX, s.width)
		p.DY = reflect(p.Y, p.DY, s.height)
	}
}

func reflect(pos, v, extent float64) float64 {
	switch {
	case pos < 0:
		return math.Abs(v)
	case pos > extent:
		return -math.Abs(v)
	}
	return v
}

// Resize re-reads the viewport and resizes the surface. Particles keep their
// positions; any now outside the bounds bounce back through the normal
// reflection rule.
func (s *Simulator) Resize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncSize()
}

func (s *Simulator) syncSize() {
	w, h := s.viewport.Size()
	s.width, s.height = float64(w), float64(h)
	s.surface.SetSize(w, h)
}

// Size returns the current surface extent.
func (s *Simulator) Size() (width, height float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// Particles returns a copy of the particle set.
func (s *Simulator) Particles() []Particle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Particle, len(s.particles))
	copy(out, s.particles)
	return out
}

// Distance returns the Euclidean distance between the centres of a and b.
func Distance(a, b Particle) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Connected reports whether a line is drawn between a and b.
func Connected(a, b Particle) bool {
	return Distance(a, b) < ConnectDistance
}
