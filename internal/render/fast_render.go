package render

import (
	"image"
	"image/color"
	"math"
)

// FastRenderer blends flat primitives straight into an RGBA pixel buffer.
// It skips gg's rasterizer for the many tiny stars and the full-field flash.
type FastRenderer struct {
	buffer []byte
	width  int
	height int
	stride int
}

// NewFastRenderer wraps the pixels of img.
func NewFastRenderer(img *image.RGBA) *FastRenderer {
	b := img.Bounds()
	return &FastRenderer{
		buffer: img.Pix,
		width:  b.Dx(),
		height: b.Dy(),
		stride: img.Stride,
	}
}

// DrawFilledRectBlend blends a rectangle over an opaque destination.
// Coordinates are device pixels.
func (r *FastRenderer) DrawFilledRectBlend(x, y, w, h int, c color.NRGBA) {
	if c.A == 0 {
		return
	}

	x1 := max(0, x)
	y1 := max(0, y)
	x2 := min(r.width, x+w)
	y2 := min(r.height, y+h)

	if x1 >= x2 || y1 >= y2 {
		return
	}

	// Alpha blending: result = src * srcA + dst * (1 - srcA)
	srcA := float64(c.A) / 255.0
	invA := 1.0 - srcA
	sr := float64(c.R) * srcA
	sg := float64(c.G) * srcA
	sb := float64(c.B) * srcA

	for py := y1; py < y2; py++ {
		rowStart := py * r.stride
		for px := x1; px < x2; px++ {
			idx := rowStart + px*4
			r.buffer[idx] = uint8(sr + float64(r.buffer[idx])*invA)
			r.buffer[idx+1] = uint8(sg + float64(r.buffer[idx+1])*invA)
			r.buffer[idx+2] = uint8(sb + float64(r.buffer[idx+2])*invA)
			r.buffer[idx+3] = 255
		}
	}
}

// FillBlend blends c over the whole buffer
func (r *FastRenderer) FillBlend(c color.NRGBA) {
	r.DrawFilledRectBlend(0, 0, r.width, r.height, c)
}

// DrawStarfield draws count 2x2 dots drifting with t (milliseconds).
// Positions are in field pixels and scaled by ratio.
func (r *FastRenderer) DrawStarfield(count int, t, width, height, ratio float64, c color.NRGBA) {
	if width <= 0 || height <= 0 {
		return
	}
	size := int(math.Ceil(2 * ratio))
	for i := 0; i < count; i++ {
		x := math.Mod(float64(i*73)+t*0.02, width)
		y := math.Mod(float64(i*41)+t*0.04, height)
		r.DrawFilledRectBlend(int(x*ratio), int(y*ratio), size, size, c)
	}
}
