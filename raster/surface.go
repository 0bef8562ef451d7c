// Package raster is an in-memory RGBA implementation of canvas.Surface.
package raster

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"

	"github.com/gosuda/drawchat/canvas"
)

// capSteps is how many edges approximate each round cap.
const capSteps = 16

// Surface paints strokes into an *image.RGBA with round caps and joins.
type Surface struct {
	img  *image.RGBA
	mask *image.Alpha
	z    *vector.Rasterizer
}

var _ canvas.Surface = (*Surface)(nil)

func New(w, h int) *Surface {
	r := image.Rect(0, 0, w, h)
	return &Surface{
		img:  image.NewRGBA(r),
		mask: image.NewAlpha(r),
		z:    vector.NewRasterizer(w, h),
	}
}

func (s *Surface) Size() (int, int) {
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

// Image exposes the pixels for export or inspection.
func (s *Surface) Image() *image.RGBA { return s.img }

func (s *Surface) Clear() {
	draw.Draw(s.img, s.img.Bounds(), image.Transparent, image.Point{}, draw.Src)
}

func (s *Surface) Snapshot() []byte {
	return append([]byte(nil), s.img.Pix...)
}

// Restore ignores snapshots taken at another size.
func (s *Surface) Restore(snap []byte) {
	if len(snap) != len(s.img.Pix) {
		return
	}
	copy(s.img.Pix, snap)
}

// DrawSegment fills the capsule around from-to as one path, so every pixel
// is blended at most once per segment.
func (s *Surface) DrawSegment(from, to canvas.Pos, st canvas.Style) {
	c, err := ParseColor(st.Color)
	if err != nil {
		c, _ = ParseColor(canvas.DefaultStyle().Color)
	}
	r := st.Width / 2
	if r < 0.5 {
		r = 0.5
	}
	w, h := s.Size()
	s.z.Reset(w, h)
	capsule(s.z, from, to, r)

	bounds := s.img.Bounds()
	if st.Composite != canvas.CompositeDestinationOut {
		s.z.DrawOp = draw.Over
		s.z.Draw(s.img, bounds, image.NewUniform(c), image.Point{})
		return
	}
	// destination-out: dst *= 1 - coverage*alpha
	draw.Draw(s.mask, bounds, image.Transparent, image.Point{}, draw.Src)
	s.z.DrawOp = draw.Src
	s.z.Draw(s.mask, bounds, image.NewUniform(color.Alpha{A: c.A}), image.Point{})
	draw.DrawMask(s.img, bounds, image.Transparent, image.Point{}, s.mask, image.Point{}, draw.Src)
}

// capsule traces a closed outline: a half circle around to, then a half
// circle around from. Equal endpoints give a full circle.
func capsule(z *vector.Rasterizer, from, to canvas.Pos, r float64) {
	theta := math.Atan2(to.Y-from.Y, to.X-from.X)
	first := true
	arc := func(c canvas.Pos, start float64) {
		for i := 0; i <= capSteps; i++ {
			a := start + math.Pi*float64(i)/capSteps
			x, y := float32(c.X+r*math.Cos(a)), float32(c.Y+r*math.Sin(a))
			if first {
				z.MoveTo(x, y)
				first = false
				continue
			}
			z.LineTo(x, y)
		}
	}
	arc(to, theta-math.Pi/2)
	arc(from, theta+math.Pi/2)
	z.ClosePath()
}
