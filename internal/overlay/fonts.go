package overlay

import (
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/bryanchriswhite/MatrixOverlay/internal/logger"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
)

// Rain alphabets. Katakana is only used when the glyph font has it.
var (
	katakanaAlphabet = func() []rune {
		var r []rune
		for c := rune(0x30A1); c <= 0x30F6; c++ {
			r = append(r, c)
		}
		return r
	}()
	fallbackAlphabet = []rune("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ:.=*+-<>¦|ΣΞΠΦΨΩλμξ")
)

type faceKey struct {
	kind string
	size int
}

// Faces caches font faces per style and pixel size. Faces are not safe for
// concurrent use, so each Renderer owns its own set.
type Faces struct {
	regular *opentype.Font
	bold    *opentype.Font
	glyph   *opentype.Font

	mu    sync.Mutex
	cache map[faceKey]font.Face
}

// LoadFaces parses the embedded Go Mono fonts. glyphFontPath optionally
// points to a TTF/OTF used for rain glyphs; an unreadable file falls back to
// Go Mono.
func LoadFaces(glyphFontPath string) (*Faces, error) {
	regular, err := opentype.Parse(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse regular font: %w", err)
	}
	bold, err := opentype.Parse(gomonobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bold font: %w", err)
	}

	f := &Faces{
		regular: regular,
		bold:    bold,
		glyph:   regular,
		cache:   make(map[faceKey]font.Face),
	}

	if glyphFontPath != "" {
		data, err := os.ReadFile(glyphFontPath)
		if err != nil {
			return f, fmt.Errorf("failed to read glyph font: %w", err)
		}
		glyph, err := opentype.Parse(data)
		if err != nil {
			return f, fmt.Errorf("failed to parse glyph font: %w", err)
		}
		f.glyph = glyph
	}
	return f, nil
}

// Regular returns the body face at size pixels
func (f *Faces) Regular(size float64) font.Face {
	return f.face("regular", f.regular, size)
}

// Bold returns the header face at size pixels
func (f *Faces) Bold(size float64) font.Face {
	return f.face("bold", f.bold, size)
}

// Glyph returns the rain face at size pixels
func (f *Faces) Glyph(size float64) font.Face {
	return f.face("glyph", f.glyph, size)
}

// RainAlphabet returns katakana when the glyph font can draw it
func (f *Faces) RainAlphabet() []rune {
	if hasRune(f.glyph, katakanaAlphabet[0]) && hasRune(f.glyph, katakanaAlphabet[len(katakanaAlphabet)-1]) {
		return katakanaAlphabet
	}
	return fallbackAlphabet
}

func (f *Faces) face(kind string, src *opentype.Font, size float64) font.Face {
	px := int(math.Round(size))
	if px < 1 {
		px = 1
	}
	key := faceKey{kind: kind, size: px}

	f.mu.Lock()
	defer f.mu.Unlock()

	if face, ok := f.cache[key]; ok {
		return face
	}
	face, err := opentype.NewFace(src, &opentype.FaceOptions{
		Size:    float64(px),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		logger.WithComponent("overlay").Warn().
			Err(err).
			Str("kind", kind).
			Int("size", px).
			Msg("Failed to create font face, using basic font")
		return basicfont.Face7x13
	}
	f.cache[key] = face
	return face
}

func hasRune(f *opentype.Font, r rune) bool {
	var buf sfnt.Buffer
	idx, err := f.GlyphIndex(&buf, r)
	return err == nil && idx != 0
}
