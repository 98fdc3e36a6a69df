// Package render rasterizes arcade snapshots with gg.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"sync"
	"time"

	"github.com/fogleman/gg"

	"flight-arcade/internal/game"
)

const starCount = 14

// plane glyph outline, nose up, in field pixels around the plane centre
var planeOutline = [][2]float64{
	{0, -14}, {12, 8}, {3, 6}, {0, 14}, {-3, 6}, {-12, 8},
}

// Canvas is a raster game.Surface.
// The play field is measured in logical pixels; the pixel buffer is
// ratio times larger in each dimension.
type Canvas struct {
	mu sync.Mutex

	width  float64
	height float64
	ratio  float64

	img  *image.RGBA
	dc   *gg.Context
	fast *FastRenderer

	faces   *Faces
	encoder png.Encoder
	pngBuf  bytes.Buffer
	frames  uint64
}

// NewCanvas creates a canvas for a width x height field at the given
// device pixel ratio. fontPath may be empty for the embedded font.
func NewCanvas(width, height, ratio float64, fontPath string) *Canvas {
	c := &Canvas{
		faces:   mustFaces(fontPath),
		encoder: png.Encoder{CompressionLevel: png.BestSpeed},
	}
	c.resize(width, height, ratio)
	return c
}

// Size returns the logical field size.
func (c *Canvas) Size() (float64, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

// Ratio returns the device pixel ratio.
func (c *Canvas) Ratio() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ratio
}

// PixelSize returns the dimensions of the pixel buffer.
func (c *Canvas) PixelSize() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.img.Bounds()
	return b.Dx(), b.Dy()
}

// Resize reallocates the pixel buffer and rescales the drawing transform.
// Non-positive sizes are ignored; a non-positive ratio means 1.
func (c *Canvas) Resize(width, height, ratio float64) {
	if width <= 0 || height <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resize(width, height, ratio)
}

func (c *Canvas) resize(width, height, ratio float64) {
	if width <= 0 || height <= 0 {
		width, height = 1, 1
	}
	if ratio <= 0 {
		ratio = 1
	}
	pw := max(1, int(math.Ceil(width*ratio)))
	ph := max(1, int(math.Ceil(height*ratio)))

	if c.img == nil || c.img.Bounds().Dx() != pw || c.img.Bounds().Dy() != ph {
		c.img = image.NewRGBA(image.Rect(0, 0, pw, ph))
		c.dc = gg.NewContextForRGBA(c.img)
		c.fast = NewFastRenderer(c.img)
	}
	c.dc.Identity()
	c.dc.Scale(ratio, ratio)

	c.width, c.height, c.ratio = width, height, ratio
}

// Render draws one frame. The snapshot is not retained.
func (c *Canvas) Render(snap *game.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dc := c.dc
	ratio := c.ratio
	t := float64(snap.Time) / float64(time.Millisecond)

	// Gradients are evaluated in device pixels, not user space
	bg := gg.NewLinearGradient(0, 0, 0, c.height*ratio)
	bg.AddColorStop(0, backgroundTop)
	bg.AddColorStop(1, backgroundBottom)
	dc.SetFillStyle(bg)
	dc.DrawRectangle(0, 0, c.width, c.height)
	dc.Fill()

	c.fast.DrawStarfield(starCount, t, c.width, c.height, ratio, starColor)

	for i := range snap.Obstacles {
		c.drawMeteor(&snap.Obstacles[i])
	}

	c.drawPlane(snap.Player)
	c.drawHUD(snap)

	if a := snap.FlashOpacity(); a > 0 {
		c.fast.FillBlend(withAlpha(flashColor, a))
	}
	c.frames++
}

func (c *Canvas) drawMeteor(o *game.ObstacleSnapshot) {
	dc := c.dc
	dc.Push()
	defer dc.Pop()

	dc.Translate(o.X, o.Y)
	dc.Rotate(o.Rotation)

	cx, cy := dc.TransformPoint(0, 0)
	grad := gg.NewRadialGradient(cx, cy, o.Radius*0.2*c.ratio, cx, cy, o.Radius*c.ratio)
	grad.AddColorStop(0, meteorCore)
	grad.AddColorStop(0.6, meteorMid)
	grad.AddColorStop(1, meteorEdge)

	dc.DrawCircle(0, 0, o.Radius)
	dc.SetFillStyle(grad)
	dc.FillPreserve()
	dc.SetColor(meteorStroke)
	dc.SetLineWidth(c.ratio)
	dc.Stroke()

	dc.SetFontFace(c.faces.Label)
	dc.SetColor(labelColor)
	dc.DrawStringAnchored(o.Label, 0, 1, 0.5, 0.5)
}

func (c *Canvas) drawPlane(p game.Vec2) {
	dc := c.dc
	dc.Push()
	defer dc.Pop()

	dc.Translate(p.X, p.Y)
	dc.NewSubPath()
	for i, pt := range planeOutline {
		if i == 0 {
			dc.MoveTo(pt[0], pt[1])
			continue
		}
		dc.LineTo(pt[0], pt[1])
	}
	dc.ClosePath()

	dc.SetColor(planeFill)
	dc.FillPreserve()
	dc.SetColor(planeStroke)
	dc.SetLineWidth(2 * c.ratio)
	dc.Stroke()
}

func (c *Canvas) drawHUD(snap *game.Snapshot) {
	dc := c.dc
	dc.SetFontFace(c.faces.HUD)
	dc.SetColor(hudColor)
	dc.DrawString(fmt.Sprintf("Score %d", int(math.Floor(snap.Score))), 12, 20)
	dc.DrawString(fmt.Sprintf("Lives %d", snap.Lives), 12, 38)
}

// Frames returns the number of frames rendered.
func (c *Canvas) Frames() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Image returns the live pixel buffer. Callers on other goroutines
// must use CopyPixels or EncodePNG instead.
func (c *Canvas) Image() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.img
}

// CopyPixels copies the current frame into dst, growing it when needed.
func (c *Canvas) CopyPixels(dst []byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append(dst[:0], c.img.Pix...)
}

// EncodePNG writes the current frame as PNG. The frame is encoded under
// the lock and written after it is released, so a slow writer never
// holds up Render.
func (c *Canvas) EncodePNG(w io.Writer) error {
	data, err := c.AppendPNG(nil)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// AppendPNG encodes the current frame and appends it to dst.
// The canvas reuses its own scratch buffer between calls.
func (c *Canvas) AppendPNG(dst []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pngBuf.Reset()
	if err := c.encoder.Encode(&c.pngBuf, c.img); err != nil {
		return dst, fmt.Errorf("encode png: %w", err)
	}
	return append(dst, c.pngBuf.Bytes()...), nil
}
