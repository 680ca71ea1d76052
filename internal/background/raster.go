package background

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/vector"
)

// kappa places cubic Bézier control points so four segments approximate a
// circle.
const kappa = 0.5522847498

// Raster is a Surface backed by an RGBA image. Discs and lines are
// anti-aliased white over the background colour.
type Raster struct {
	img        *image.RGBA
	rast       *vector.Rasterizer
	box        image.Rectangle // area of the shape being drawn
	Background color.RGBA
	Ink        color.RGBA
}

// NewRaster returns an empty Raster. Call SetSize before drawing.
func NewRaster() *Raster {
	return &Raster{
		img:        image.NewRGBA(image.Rect(0, 0, 0, 0)),
		rast:       vector.NewRasterizer(0, 0),
		Background: color.RGBA{R: 0x0b, G: 0x10, B: 0x20, A: 0xff},
		Ink:        color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	}
}

// SetSize implements Surface. The image is reallocated and cleared.
func (r *Raster) SetSize(width, height int) {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	r.img = image.NewRGBA(image.Rect(0, 0, width, height))
	r.Clear()
}

// Clear implements Surface.
func (r *Raster) Clear() {
	draw.Draw(r.img, r.img.Bounds(), image.NewUniform(r.Background), image.Point{}, draw.Src)
}

// FillDisc implements Surface.
func (r *Raster) FillDisc(x, y, radius float64) {
	ox, oy, ok := r.begin(x-radius, y-radius, x+radius, y+radius)
	if !ok {
		return
	}
	cx, cy, rr := float32(x)-ox, float32(y)-oy, float32(radius)
	k := rr * kappa

	r.rast.MoveTo(cx+rr, cy)
	r.rast.CubeTo(cx+rr, cy+k, cx+k, cy+rr, cx, cy+rr)
	r.rast.CubeTo(cx-k, cy+rr, cx-rr, cy+k, cx-rr, cy)
	r.rast.CubeTo(cx-rr, cy-k, cx-k, cy-rr, cx, cy-rr)
	r.rast.CubeTo(cx+k, cy-rr, cx+rr, cy-k, cx+rr, cy)
	r.rast.ClosePath()
	r.fill()
}

// StrokeLine implements Surface. The stroke is LineWidth wide.
func (r *Raster) StrokeLine(x0, y0, x1, y1 float64) {
	dx, dy := x1-x0, y1-y0
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	const half = LineWidth / 2
	ox, oy, ok := r.begin(min(x0, x1)-half, min(y0, y1)-half, max(x0, x1)+half, max(y0, y1)+half)
	if !ok {
		return
	}
	// Unit normal scaled to half the stroke width.
	nx := float32(-dy / length * half)
	ny := float32(dx / length * half)
	ax, ay := float32(x0)-ox, float32(y0)-oy
	bx, by := float32(x1)-ox, float32(y1)-oy

	r.rast.MoveTo(ax+nx, ay+ny)
	r.rast.LineTo(bx+nx, by+ny)
	r.rast.LineTo(bx-nx, by-ny)
	r.rast.LineTo(ax-nx, ay-ny)
	r.rast.ClosePath()
	r.fill()
}

// begin sizes the rasterizer to the shape's bounding box clipped to the
// image, so each shape costs its own area rather than the whole image. It
// returns the box origin that path coordinates are shifted by.
func (r *Raster) begin(x0, y0, x1, y1 float64) (float32, float32, bool) {
	box := image.Rect(
		int(math.Floor(x0)), int(math.Floor(y0)),
		int(math.Ceil(x1))+1, int(math.Ceil(y1))+1,
	).Intersect(r.img.Bounds())
	if box.Empty() {
		return 0, 0, false
	}
	r.box = box
	r.rast.Reset(box.Dx(), box.Dy())
	return float32(box.Min.X), float32(box.Min.Y), true
}

func (r *Raster) fill() {
	r.rast.DrawOp = draw.Over
	r.rast.Draw(r.img, r.box, image.NewUniform(r.Ink), image.Point{})
}

// EncodePNG writes the current image as PNG.
func (r *Raster) EncodePNG(w io.Writer) error {
	if err := png.Encode(w, r.img); err != nil {
		return fmt.Errorf("background: encode png: %w", err)
	}
	return nil
}
