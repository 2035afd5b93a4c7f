package overlay

import (
	"image"
	"image/draw"
	"math"
	"math/rand/v2"
	"time"
)

const (
	maxStreams      = 50
	baseFallRate    = 60.0
	recycleMargin   = 200.0
	fallMutation    = 0.02
	staticMutation  = 0.005
	glyphSizeFactor = 0.8
	glyphSpacing    = 1.2
	minTrail        = 5
	maxTrail        = 15
)

// RainStream is one falling column of glyphs. Y is the lead (bottom) glyph;
// the rest of the trail extends upward.
type RainStream struct {
	X          float64
	Y          float64
	Speed      float64
	Glyphs     []rune
	DepthScale float64
}

// Rain simulates the digital rain background for one surface
type Rain struct {
	Streams []RainStream

	width    int
	height   int
	density  int
	alphabet []rune
	rng      *rand.Rand
}

// NewRain spawns the stream population for a width x height surface. A nil
// rng seeds one from the clock.
func NewRain(width, height, density int, alphabet []rune, rng *rand.Rand) *Rain {
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}
	if len(alphabet) == 0 {
		alphabet = fallbackAlphabet
	}
	r := &Rain{
		width:    width,
		height:   height,
		density:  density,
		alphabet: alphabet,
		rng:      rng,
	}
	r.reset()
	return r
}

// StreamCount is the population for a density and surface width
func StreamCount(density, width int) int {
	n := int(float64(density) * float64(width) / 100)
	if n > maxStreams {
		return maxStreams
	}
	if n < 0 {
		return 0
	}
	return n
}

// SetDensity respawns the population when the density changes its size.
// Existing streams are kept otherwise.
func (r *Rain) SetDensity(density int) {
	if density == r.density {
		return
	}
	r.density = density
	if StreamCount(density, r.width) != len(r.Streams) {
		r.reset()
	}
}

// SetAlphabet changes the glyph set used for new and mutated glyphs
func (r *Rain) SetAlphabet(alphabet []rune) {
	if len(alphabet) > 0 {
		r.alphabet = alphabet
	}
}

func (r *Rain) reset() {
	n := StreamCount(r.density, r.width)
	r.Streams = make([]RainStream, n)
	for i := range r.Streams {
		r.Streams[i] = r.spawn()
	}
}

// spawn places a stream somewhere above the visible area
func (r *Rain) spawn() RainStream {
	h := float64(r.height)
	return RainStream{
		X:          r.rng.Float64() * float64(r.width),
		Y:          -h + r.rng.Float64()*h,
		Speed:      2 + r.rng.Float64()*8,
		Glyphs:     r.randomGlyphs(),
		DepthScale: 0.5 + r.rng.Float64()*0.7,
	}
}

func (r *Rain) randomGlyphs() []rune {
	n := minTrail + r.rng.IntN(maxTrail-minTrail)
	glyphs := make([]rune, n)
	for i := range glyphs {
		glyphs[i] = r.randomGlyph()
	}
	return glyphs
}

func (r *Rain) randomGlyph() rune {
	return r.alphabet[r.rng.IntN(len(r.alphabet))]
}

// Update advances the simulation by dt. A speed multiplier of zero freezes
// the streams in place; glyphs still mutate, more slowly.
func (r *Rain) Update(dt time.Duration, speedMultiplier float64) {
	if speedMultiplier == 0 {
		for i := range r.Streams {
			r.mutate(&r.Streams[i], staticMutation)
		}
		return
	}

	dy := baseFallRate * dt.Seconds() * speedMultiplier
	limit := float64(r.height) + recycleMargin
	for i := range r.Streams {
		s := &r.Streams[i]
		s.Y += s.Speed * dy
		if s.Y > limit {
			s.Y = -recycleMargin
			s.Glyphs = r.randomGlyphs()
		}
		r.mutate(s, fallMutation)
	}
}

func (r *Rain) mutate(s *RainStream, p float64) {
	for i := range s.Glyphs {
		if r.rng.Float64() < p {
			s.Glyphs[i] = r.randomGlyph()
		}
	}
}

// GlyphAlpha is the opacity of glyph i in a trail of n: depth squared, fading
// towards the tail, clamped to [0, 1]
func GlyphAlpha(depth float64, i, n int) float64 {
	if n <= 0 {
		return 0
	}
	return clamp01(depth * depth * (1 - float64(i)/float64(n)))
}

// StaticPulse is the fade applied to frozen rain
func StaticPulse(frame uint64) float64 {
	return math.Sin(float64(frame)*0.05)*0.5 + 0.5
}

// PulseAlpha is the full-surface opacity used by pulse mode
func PulseAlpha(frame uint64) float64 {
	return math.Sin(float64(frame)*0.05)*0.2 + 0.3
}

// RainStyle carries the per-frame drawing parameters
type RainStyle struct {
	FontSize   float64
	Theme      Theme
	Brightness float64
	Static     bool
	Frame      uint64
}

// Draw renders every visible glyph. Trail glyphs use the theme color, the
// lead glyph the lead color.
func (r *Rain) Draw(dst draw.Image, faces *Faces, style RainStyle) {
	glyphSize := style.FontSize * glyphSizeFactor
	pulse := 1.0
	if style.Static {
		pulse = StaticPulse(style.Frame)
	}
	top, bottom := -20.0, float64(r.height)+20

	for _, s := range r.Streams {
		if s.Y < top {
			continue
		}
		face := faces.Glyph(glyphSize * s.DepthScale)
		n := len(s.Glyphs)
		for i, g := range s.Glyphs {
			y := s.Y - float64(i)*glyphSize*glyphSpacing
			if y < top {
				break
			}
			if y > bottom {
				continue
			}
			alpha := GlyphAlpha(s.DepthScale, i, n) * pulse * style.Brightness
			c := withAlpha(style.Theme.Primary, alpha*0.9)
			if i == 0 {
				c = withAlpha(style.Theme.Lead, alpha)
			}
			drawText(dst, face, string(g), s.X, y, c)
		}
	}
}

// DrawPulse tints the whole surface with a slowly oscillating translucency
func DrawPulse(dst *image.RGBA, theme Theme, frame uint64) {
	src := image.NewUniform(withAlpha(theme.Primary, PulseAlpha(frame)))
	draw.Draw(dst, dst.Bounds(), src, image.Point{}, draw.Over)
}
