package overlay

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/bryanchriswhite/MatrixOverlay/internal/config"
)

// Theme is the pair of colors used for text and rain. Lead is the brighter
// color of the first glyph in each rain stream.
type Theme struct {
	Primary color.RGBA
	Lead    color.RGBA
}

var (
	classicTheme = Theme{Primary: color.RGBA{0, 255, 65, 255}, Lead: color.RGBA{204, 255, 230, 255}}
	calmTheme    = Theme{Primary: color.RGBA{0, 204, 255, 255}, Lead: color.RGBA{204, 230, 255, 255}}
	alertTheme   = Theme{Primary: color.RGBA{255, 51, 51, 255}, Lead: color.RGBA{255, 204, 204, 255}}
)

// ResolveTheme maps a theme name onto colors. Unknown names use the general
// hex color, with the lead glyph tinted towards white.
func ResolveTheme(name, hex string) Theme {
	switch name {
	case config.ThemeClassic:
		return classicTheme
	case config.ThemeCalm:
		return calmTheme
	case config.ThemeAlert:
		return alertTheme
	}

	c, err := ParseHexColor(hex)
	if err != nil {
		return classicTheme
	}
	return Theme{Primary: c, Lead: mix(c, color.RGBA{255, 255, 255, 255}, 0.8)}
}

// ParseHexColor parses #RRGGBB or #RRGGBBAA
func ParseHexColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 && len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	if len(hex) == 6 {
		return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// withAlpha returns c (treated as opaque) at opacity a in [0,1]
func withAlpha(c color.RGBA, a float64) color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(clamp01(a)*255 + 0.5)}
}

func mix(a, b color.RGBA, t float64) color.RGBA {
	lerp := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*t + 0.5)
	}
	return color.RGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: 255}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
