package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/bryanchriswhite/MatrixOverlay/internal/config"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// GlowText draws text with a halo built from offset translucent copies
type GlowText struct {
	Passes     []config.GlowPass
	Brightness float64
}

// Draw renders text with its top-left corner at (x, y). Each pass is drawn
// translated by (DX, DY) at Alpha*Brightness, then the text itself at
// Brightness with no offset.
func (g GlowText) Draw(dst draw.Image, face font.Face, text string, x, y float64, c color.RGBA) {
	if text == "" {
		return
	}
	for _, p := range g.Passes {
		drawText(dst, face, text, x+p.DX, y+p.DY, withAlpha(c, p.Alpha*g.Brightness))
	}
	drawText(dst, face, text, x, y, withAlpha(c, g.Brightness))
}

// drawText draws a single copy of text with its top-left corner at (x, y)
func drawText(dst draw.Image, face font.Face, text string, x, y float64, c color.NRGBA) {
	if c.A == 0 {
		return
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot: fixed.Point26_6{
			X: toFixed(x),
			Y: toFixed(y) + face.Metrics().Ascent,
		},
	}
	d.DrawString(text)
}

// TextWidth is the advance width of text in whole pixels
func TextWidth(face font.Face, text string) int {
	return font.MeasureString(face, text).Ceil()
}

// TextHeight is the line height of face in whole pixels
func TextHeight(face font.Face) int {
	m := face.Metrics()
	return (m.Ascent + m.Descent).Ceil()
}

func toFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(v * 64)
}
