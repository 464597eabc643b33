package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"platewatch/internal/core/domain"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const labelPadding = 2

// Renderer paints detection boxes and labels onto an RGBA surface aligned
// 1:1 with the video's native resolution. A batch past its expiry window
// is suppressed entirely and the surface left cleared.
type Renderer struct {
	expiry   time.Duration
	face     font.Face
	positive color.RGBA // recognized text present
	neutral  color.RGBA
	label    color.RGBA // label text over the filled background
}

func NewRenderer(expiry time.Duration) *Renderer {
	return &Renderer{
		expiry:   expiry,
		face:     basicfont.Face7x13,
		positive: color.RGBA{R: 0x22, G: 0xc5, B: 0x5e, A: 0xff},
		neutral:  color.RGBA{R: 0xf5, G: 0x9e, B: 0x0b, A: 0xff},
		label:    color.RGBA{R: 0x11, G: 0x18, B: 0x27, A: 0xff},
	}
}

// Render clears dst and paints batch onto it. A stale batch means a
// cleared surface; the caller decides wall-clock now so ticks and tests
// agree on time. Returns whether anything was painted.
func (r *Renderer) Render(dst *image.RGBA, batch domain.DetectionBatch, now time.Time) bool {
	draw.Draw(dst, dst.Bounds(), image.Transparent, image.Point{}, draw.Src)

	if batch.ReceivedAt.IsZero() || batch.Expired(now, r.expiry) {
		return false
	}

	for _, det := range batch.Detections {
		col := r.neutral
		if det.PlateText != "" {
			col = r.positive
		}
		r.drawDetection(dst, det, col)
	}
	return len(batch.Detections) > 0
}

func (r *Renderer) drawDetection(dst *image.RGBA, det domain.Detection, col color.RGBA) {
	box := image.Rect(
		int(math.Round(det.Box.X)),
		int(math.Round(det.Box.Y)),
		int(math.Round(det.Box.X+det.Box.W)),
		int(math.Round(det.Box.Y+det.Box.H)),
	)
	drawRectOutline(dst, box, col, 2)

	text := labelText(det)
	textWidth := font.MeasureString(r.face, text).Ceil()
	metrics := r.face.Metrics()
	labelHeight := (metrics.Ascent + metrics.Descent).Ceil() + 2*labelPadding

	// The filled background keeps the label legible over arbitrary video
	// content. It sits above the box, or inside it at the top edge.
	bgTop := box.Min.Y - labelHeight
	if bgTop < dst.Bounds().Min.Y {
		bgTop = box.Min.Y
	}
	bg := image.Rect(box.Min.X, bgTop, box.Min.X+textWidth+2*labelPadding, bgTop+labelHeight)
	draw.Draw(dst, bg.Intersect(dst.Bounds()), &image.Uniform{C: col}, image.Point{}, draw.Src)

	drawer := font.Drawer{
		Dst:  dst,
		Src:  &image.Uniform{C: r.label},
		Face: r.face,
		Dot: fixed.Point26_6{
			X: fixed.I(box.Min.X + labelPadding),
			Y: fixed.I(bgTop + labelPadding + metrics.Ascent.Ceil()),
		},
	}
	drawer.DrawString(text)
}

// labelText composes the class name, the recognized text when present,
// and the confidence rounded to a whole percent.
func labelText(det domain.Detection) string {
	pct := int(math.Round(det.Confidence * 100))
	if det.PlateText != "" {
		return fmt.Sprintf("%s %s %d%%", det.Class, det.PlateText, pct)
	}
	return fmt.Sprintf("%s %d%%", det.Class, pct)
}

func drawRectOutline(dst *image.RGBA, rect image.Rectangle, col color.RGBA, thickness int) {
	bounds := dst.Bounds()
	src := &image.Uniform{C: col}

	top := image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+thickness)
	bottom := image.Rect(rect.Min.X, rect.Max.Y-thickness, rect.Max.X, rect.Max.Y)
	left := image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+thickness, rect.Max.Y)
	right := image.Rect(rect.Max.X-thickness, rect.Min.Y, rect.Max.X, rect.Max.Y)

	for _, edge := range []image.Rectangle{top, bottom, left, right} {
		draw.Draw(dst, edge.Intersect(bounds), src, image.Point{}, draw.Src)
	}
}
