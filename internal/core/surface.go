package core

import (
	"fmt"
	"image"
	"math"
	"strings"
)

// Surface is a fixed-size RGBA pixel buffer that user code draws into.
// It mirrors the small subset of the 2D canvas API the engine exposes:
// a fill style, rectangle fills, single pixels and lines.
//
// Surface is not safe for concurrent use. The runtime controller owns it
// while a run is active; other goroutines should read it through
// Controller.Snapshot.
type Surface struct {
	width      int
	height     int
	background Color
	fill       Color
	fillStyle  string
	pix        []Color
}

// NewSurface creates a surface cleared to the given background.
func NewSurface(width, height int, background Color) *Surface {
	s := &Surface{
		width:      width,
		height:     height,
		background: background,
		pix:        make([]Color, width*height),
	}
	s.resetStyle()
	s.Clear()
	return s
}

// NewSurfaceFor creates a surface sized and colored for cfg.
func NewSurfaceFor(cfg EngineConfig) *Surface {
	return NewSurface(cfg.Width, cfg.Height, cfg.BackgroundColor())
}

func (s *Surface) resetStyle() {
	s.fill = Black
	s.fillStyle = FormatColor(Black)
}

// Width returns the surface width in pixels.
func (s *Surface) Width() int {
	return s.width
}

// Height returns the surface height in pixels.
func (s *Surface) Height() int {
	return s.height
}

// Bounds returns the full surface rectangle.
func (s *Surface) Bounds() Rect {
	return NewRect(0, 0, s.width, s.height)
}

// Background returns the color used by Clear and ClearRect.
func (s *Surface) Background() Color {
	return s.background
}

// SetBackground changes the color used by Clear and ClearRect.
func (s *Surface) SetBackground(c Color) {
	s.background = c
}

// Reset restores the default fill style and clears to the background.
func (s *Surface) Reset() {
	s.resetStyle()
	s.Clear()
}

// Clear fills the entire surface with the background color.
func (s *Surface) Clear() {
	s.Fill(s.background)
}

// Fill fills the entire surface with c.
func (s *Surface) Fill(c Color) {
	for i := range s.pix {
		s.pix[i] = c
	}
}

// FillStyle returns the current fill style as it was set.
func (s *Surface) FillStyle() string {
	return s.fillStyle
}

// SetFillStyle sets the color used by FillRect, StrokeRect and Line.
// An unparsable style is rejected and leaves the current style unchanged.
func (s *Surface) SetFillStyle(style string) error {
	c, err := ParseColor(style)
	if err != nil {
		return err
	}
	s.fill = c
	s.fillStyle = style
	return nil
}

// FillColor returns the parsed current fill color.
func (s *Surface) FillColor() Color {
	return s.fill
}

// FillRect fills r with the current fill color, clipped to the surface.
func (s *Surface) FillRect(r Rect) {
	s.paint(r, s.fill)
}

// ClearRect resets r to the background color, clipped to the surface.
func (s *Surface) ClearRect(r Rect) {
	s.paint(r, s.background)
}

// StrokeRect draws a one pixel outline of r with the current fill color.
func (s *Surface) StrokeRect(r Rect) {
	if r.Empty() {
		return
	}
	s.paint(Rect{X: r.X, Y: r.Y, W: r.W, H: 1}, s.fill)
	s.paint(Rect{X: r.X, Y: r.Bottom() - 1, W: r.W, H: 1}, s.fill)
	s.paint(Rect{X: r.X, Y: r.Y, W: 1, H: r.H}, s.fill)
	s.paint(Rect{X: r.Right() - 1, Y: r.Y, W: 1, H: r.H}, s.fill)
}

func (s *Surface) paint(r Rect, c Color) {
	r = r.Intersect(s.Bounds())
	for y := r.Y; y < r.Bottom(); y++ {
		row := s.pix[y*s.width : (y+1)*s.width]
		for x := r.X; x < r.Right(); x++ {
			row[x] = c
		}
	}
}

// SetPixel places c at (x, y).
// Out-of-bounds coordinates are silently ignored.
func (s *Surface) SetPixel(x, y int, c Color) {
	if !s.Bounds().Contains(x, y) {
		return
	}
	s.pix[y*s.width+x] = c
}

// Pixel returns the color at (x, y), or Transparent when out of bounds.
func (s *Surface) Pixel(x, y int) Color {
	if !s.Bounds().Contains(x, y) {
		return Transparent
	}
	return s.pix[y*s.width+x]
}

// Line draws a line from (x0, y0) to (x1, y1) inclusive with the fill color.
// The segment is clipped to the surface before it is walked.
func (s *Surface) Line(x0, y0, x1, y1 int) {
	box := NewRect(Min(x0, x1), Min(y0, y1), Abs(x1-x0)+1, Abs(y1-y0)+1)
	if !box.Intersects(s.Bounds()) {
		return
	}
	if !s.Bounds().Contains(x0, y0) || !s.Bounds().Contains(x1, y1) {
		ax, ay, bx, by, ok := clipLine(float64(x0), float64(y0), float64(x1), float64(y1),
			float64(s.width-1), float64(s.height-1))
		if !ok {
			return
		}
		x0, y0 = Clamp(int(math.Round(ax)), 0, s.width-1), Clamp(int(math.Round(ay)), 0, s.height-1)
		x1, y1 = Clamp(int(math.Round(bx)), 0, s.width-1), Clamp(int(math.Round(by)), 0, s.height-1)
	}

	dx := Abs(x1 - x0)
	dy := -Abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}

	// Bresenham
	err := dx + dy
	for {
		s.SetPixel(x0, y0, s.fill)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// clipLine clips a segment to [0, maxX]x[0, maxY] (Liang-Barsky).
// ok is false when no part of the segment is inside.
func clipLine(x0, y0, x1, y1, maxX, maxY float64) (ax, ay, bx, by float64, ok bool) {
	t0, t1 := 0.0, 1.0
	dx, dy := x1-x0, y1-y0
	for _, e := range [4][2]float64{{-dx, x0}, {dx, maxX - x0}, {-dy, y0}, {dy, maxY - y0}} {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return 0, 0, 0, 0, false
			}
			continue
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return 0, 0, 0, 0, false
			}
			t0 = math.Max(t0, r)
		} else {
			if r < t0 {
				return 0, 0, 0, 0, false
			}
			t1 = math.Min(t1, r)
		}
	}
	return x0 + t0*dx, y0 + t0*dy, x0 + t1*dx, y0 + t1*dy, true
}

// Clone returns a deep copy of the surface.
func (s *Surface) Clone() *Surface {
	c := *s
	c.pix = make([]Color, len(s.pix))
	copy(c.pix, s.pix)
	return &c
}

// CopyFrom copies the pixels of src into s. Both must have the same size.
func (s *Surface) CopyFrom(src *Surface) error {
	if src.width != s.width || src.height != s.height {
		return fmt.Errorf("surface size mismatch: %dx%d vs %dx%d", src.width, src.height, s.width, s.height)
	}
	copy(s.pix, src.pix)
	return nil
}

// Pix returns the pixels as packed RGBA bytes, row by row.
func (s *Surface) Pix() []byte {
	out := make([]byte, 0, len(s.pix)*4)
	for _, c := range s.pix {
		out = append(out, c.R, c.G, c.B, c.A)
	}
	return out
}

// Image returns a copy of the surface as an image.RGBA.
func (s *Surface) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	copy(img.Pix, s.Pix())
	return img
}

// String renders the surface as ASCII: '.' for background pixels, '#' for
// anything else. Rows are joined with newlines.
func (s *Surface) String() string {
	var sb strings.Builder
	sb.Grow(s.width*s.height + s.height)

	for y := 0; y < s.height; y++ {
		if y > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(s.Row(y))
	}
	return sb.String()
}

// Row returns row y in the same ASCII form as String.
func (s *Surface) Row(y int) string {
	if y < 0 || y >= s.height {
		return strings.Repeat(".", s.width)
	}
	b := make([]byte, s.width)
	for x := 0; x < s.width; x++ {
		if s.pix[y*s.width+x] == s.background {
			b[x] = '.'
		} else {
			b[x] = '#'
		}
	}
	return string(b)
}
