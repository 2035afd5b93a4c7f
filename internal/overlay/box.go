package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/bryanchriswhite/MatrixOverlay/internal/config"
	"golang.org/x/image/vector"
)

// bezierCircle approximates a quarter circle with one cubic segment
const bezierCircle = 0.5523

// BoxStyle describes an occlusion box drawn behind text
type BoxStyle struct {
	Rounded bool
	Radius  float64
	Opacity float64
	// Border is drawn as a 1px outline when non-nil
	Border *color.RGBA
}

// boxStyleFromConfig builds the occlusion style from cosmetics
func boxStyleFromConfig(c config.CosmeticsConfig) BoxStyle {
	style := BoxStyle{
		Rounded: c.BoxStyle == config.BoxStyleRounded,
		Radius:  c.CornerRadius,
		Opacity: c.BackgroundOpacity,
	}
	if c.BorderEnabled {
		if bc, err := ParseHexColor(c.BorderColor); err == nil {
			style.Border = &bc
		}
	}
	return style
}

// DrawBox fills r with translucent black and optionally outlines it
func DrawBox(dst *image.RGBA, r image.Rectangle, style BoxStyle) {
	if r.Empty() {
		return
	}
	fill := image.NewUniform(color.NRGBA{A: uint8(clamp01(style.Opacity)*255 + 0.5)})

	if !style.Rounded || style.Radius <= 0 {
		draw.Draw(dst, r, fill, image.Point{}, draw.Over)
		if style.Border != nil {
			drawOutline(dst, r, image.NewUniform(*style.Border))
		}
		return
	}

	w, h := float32(r.Dx()), float32(r.Dy())
	radius := float32(style.Radius)

	z := vector.NewRasterizer(r.Dx(), r.Dy())
	roundedRect(z, 0, 0, w, h, radius, false)
	z.Draw(dst, r, fill, image.Point{})

	if style.Border != nil {
		// Outer path minus the inner path traced the other way leaves a ring
		ring := vector.NewRasterizer(r.Dx(), r.Dy())
		roundedRect(ring, 0, 0, w, h, radius, false)
		roundedRect(ring, 1, 1, w-2, h-2, radius-1, true)
		ring.Draw(dst, r, image.NewUniform(*style.Border), image.Point{})
	}
}

// drawOutline draws a 1px border just inside r
func drawOutline(dst *image.RGBA, r image.Rectangle, src image.Image) {
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1),
		image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y+1, r.Min.X+1, r.Max.Y-1),
		image.Rect(r.Max.X-1, r.Min.Y+1, r.Max.X, r.Max.Y-1),
	}
	for _, e := range edges {
		draw.Draw(dst, e, src, image.Point{}, draw.Over)
	}
}

// roundedRect adds a closed rounded rectangle path to z. reverse traces it
// counter-clockwise.
func roundedRect(z *vector.Rasterizer, x, y, w, h, r float32, reverse bool) {
	if w <= 0 || h <= 0 {
		return
	}
	if r > w/2 {
		r = w / 2
	}
	if r > h/2 {
		r = h / 2
	}
	if r < 0 {
		r = 0
	}
	k := r * bezierCircle

	if !reverse {
		z.MoveTo(x+r, y)
		z.LineTo(x+w-r, y)
		z.CubeTo(x+w-r+k, y, x+w, y+r-k, x+w, y+r)
		z.LineTo(x+w, y+h-r)
		z.CubeTo(x+w, y+h-r+k, x+w-r+k, y+h, x+w-r, y+h)
		z.LineTo(x+r, y+h)
		z.CubeTo(x+r-k, y+h, x, y+h-r+k, x, y+h-r)
		z.LineTo(x, y+r)
		z.CubeTo(x, y+r-k, x+r-k, y, x+r, y)
		z.ClosePath()
		return
	}

	z.MoveTo(x+r, y)
	z.CubeTo(x+r-k, y, x, y+r-k, x, y+r)
	z.LineTo(x, y+h-r)
	z.CubeTo(x, y+h-r+k, x+r-k, y+h, x+r, y+h)
	z.LineTo(x+w-r, y+h)
	z.CubeTo(x+w-r+k, y+h, x+w, y+h-r+k, x+w, y+h-r)
	z.LineTo(x+w, y+r)
	z.CubeTo(x+w, y+r-k, x+w-r+k, y, x+w-r, y)
	z.ClosePath()
}
