package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"github.com/bryanchriswhite/MatrixOverlay/internal/config"
	"github.com/bryanchriswhite/MatrixOverlay/internal/layout"
	"github.com/bryanchriswhite/MatrixOverlay/internal/logger"
	"github.com/bryanchriswhite/MatrixOverlay/internal/metrics"
)

const (
	// frameDelta is the fixed simulation step per drawn frame
	frameDelta = 33 * time.Millisecond

	headerBoxWidth = 400
	headerBoxY     = 60
	headerScale    = 1.8
	headerBoxLines = 3

	rowBoxScale  = 1.5
	rowPadding   = 10
	boxInsetX    = 5
	boxInsetY    = 2
	scrollStep   = 0.5
	sampleStride = 5
)

// Target receives finished frames
type Target interface {
	Present(img *image.RGBA) error
}

// ItemState records where something was drawn in the last frame
type ItemState struct {
	ID     string  `json:"id"`
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Renderer composes one monitor's frames: backdrop, rain, header, metric rows.
// It owns the offscreen surface and all per-monitor animation state.
type Renderer struct {
	width        int
	height       int
	monitorIndex int

	surface   *image.RGBA
	layout    layout.Layout
	faces     *Faces
	glyphFont string
	theme     Theme
	rain      *Rain
	scroll    map[string]float64
	frame     uint64

	statesMu sync.RWMutex
	states   []ItemState
}

// NewRenderer creates the renderer for a width x height monitor
func NewRenderer(width, height, monitorIndex int, l layout.Layout, cfg *config.Config) (*Renderer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid surface size %dx%d", width, height)
	}

	faces, err := LoadFaces(cfg.Cosmetics.GlyphFont)
	if faces == nil {
		return nil, fmt.Errorf("failed to load fonts: %w", err)
	}
	if err != nil {
		logger.WithComponent("overlay").Warn().
			Err(err).
			Int("monitor", monitorIndex).
			Msg("Glyph font unavailable, using built-in font")
	}

	r := &Renderer{
		width:        width,
		height:       height,
		monitorIndex: monitorIndex,
		surface:      image.NewRGBA(image.Rect(0, 0, width, height)),
		layout:       l,
		faces:        faces,
		glyphFont:    cfg.Cosmetics.GlyphFont,
		theme:        ResolveTheme(cfg.General.Theme, cfg.General.Color),
		scroll:       make(map[string]float64),
	}
	r.rain = NewRain(width, height, cfg.Cosmetics.DensityScale, faces.RainAlphabet(), nil)
	r.clear(cfg.Cosmetics.BackdropOpacity)

	logger.WithComponent("overlay").Debug().
		Int("monitor", monitorIndex).
		Int("width", width).
		Int("height", height).
		Int("streams", len(r.rain.Streams)).
		Int("items", len(l.Items)).
		Msg("Renderer created")

	return r, nil
}

// Surface is the frame most recently drawn. Only valid until the next Draw.
func (r *Renderer) Surface() *image.RGBA {
	return r.surface
}

// Layout returns the current row layout
func (r *Renderer) Layout() layout.Layout {
	r.statesMu.RLock()
	defer r.statesMu.RUnlock()
	return r.layout
}

// UpdateConfig recomputes the layout and colors from cfg. The surface, rain
// streams and scroll offsets are kept.
func (r *Renderer) UpdateConfig(cfg *config.Config) {
	var l layout.Layout
	if screen, ok := cfg.ScreenFor(r.monitorIndex); ok {
		l = layout.Compute(screen, r.width, r.height, float64(cfg.General.FontSize))
	}
	r.statesMu.Lock()
	r.layout = l
	r.statesMu.Unlock()

	r.theme = ResolveTheme(cfg.General.Theme, cfg.General.Color)
	r.rain.SetDensity(cfg.Cosmetics.DensityScale)

	if cfg.Cosmetics.GlyphFont != r.glyphFont {
		faces, err := LoadFaces(cfg.Cosmetics.GlyphFont)
		if err != nil {
			logger.WithComponent("overlay").Warn().
				Err(err).
				Int("monitor", r.monitorIndex).
				Msg("Glyph font unavailable, using built-in font")
		}
		if faces != nil {
			r.faces = faces
			r.rain.SetAlphabet(faces.RainAlphabet())
		}
		r.glyphFont = cfg.Cosmetics.GlyphFont
	}
}

// Draw renders one frame and hands it to target
func (r *Renderer) Draw(target Target, cfg *config.Config, snapshot metrics.Snapshot) error {
	r.frame++
	var states []ItemState

	r.clear(cfg.Cosmetics.BackdropOpacity)

	switch cfg.Cosmetics.RainMode {
	case config.RainModeFall:
		r.rain.SetDensity(cfg.Cosmetics.DensityScale)
		r.rain.Update(frameDelta, cfg.Cosmetics.RainSpeed)
		r.rain.Draw(r.surface, r.faces, RainStyle{
			FontSize:   float64(cfg.General.FontSize),
			Theme:      r.theme,
			Brightness: cfg.Cosmetics.RainBrightness,
			Static:     cfg.Cosmetics.RainSpeed == 0,
			Frame:      r.frame,
		})
		for i := 0; i < len(r.rain.Streams); i += sampleStride {
			s := r.rain.Streams[i]
			states = append(states, ItemState{
				ID:     fmt.Sprintf("rain_%d", i),
				Type:   "rain",
				X:      s.X,
				Y:      s.Y,
				Width:  10,
				Height: 10,
			})
		}
	case config.RainModePulse:
		DrawPulse(r.surface, r.theme, r.frame)
	}

	glow := GlowText{Passes: cfg.General.GlowPasses, Brightness: cfg.Cosmetics.MetricsBrightness}
	boxStyle := boxStyleFromConfig(cfg.Cosmetics)

	if state, ok := r.drawHeader(cfg, snapshot, glow, boxStyle); ok {
		states = append(states, state)
	}

	for _, item := range r.layout.Items {
		if item.MetricID == metrics.DayOfWeek {
			continue
		}
		value, ok := snapshot[item.MetricID]
		if !ok {
			continue
		}
		states = append(states, r.drawRow(cfg, item, metrics.Format(value), glow, boxStyle))
	}

	r.statesMu.Lock()
	r.states = states
	r.statesMu.Unlock()

	if target == nil {
		return nil
	}
	if err := target.Present(r.surface); err != nil {
		return fmt.Errorf("failed to present frame: %w", err)
	}
	return nil
}

// ItemStates returns what was drawn in the last frame
func (r *Renderer) ItemStates() []ItemState {
	r.statesMu.RLock()
	defer r.statesMu.RUnlock()
	return append([]ItemState(nil), r.states...)
}

func (r *Renderer) clear(opacity float64) {
	backdrop := image.NewUniform(color.NRGBA{A: uint8(clamp01(opacity)*255 + 0.5)})
	draw.Draw(r.surface, r.surface.Bounds(), backdrop, image.Point{}, draw.Src)
}

// drawHeader draws the day of week centered in a fixed box near the top
func (r *Renderer) drawHeader(cfg *config.Config, snapshot metrics.Snapshot, glow GlowText, boxStyle BoxStyle) (ItemState, bool) {
	value, ok := snapshot[metrics.DayOfWeek]
	if !ok {
		return ItemState{}, false
	}
	if _, none := value.(metrics.None); none {
		return ItemState{}, false
	}

	text := metrics.Format(value)
	if cfg.General.ShowMonitorLabel {
		text = fmt.Sprintf("%s (Monitor %d)", text, r.monitorIndex+1)
	}

	fontSize := float64(cfg.General.FontSize)
	boxW := headerBoxWidth
	boxH := int(fontSize * headerBoxLines)
	boxX := (r.width - boxW) / 2
	boxY := headerBoxY

	if cfg.Cosmetics.OcclusionEnabled {
		DrawBox(r.surface, image.Rect(boxX, boxY, boxX+boxW, boxY+boxH), boxStyle)
	}

	face := r.faces.Bold(fontSize * headerScale)
	textW := TextWidth(face, text)
	textH := TextHeight(face)
	x := float64(boxX) + float64(boxW-textW)/2
	y := float64(boxY) + float64(boxH-textH)/2
	glow.Draw(r.surface, face, text, x, y, r.theme.Primary)

	return ItemState{
		ID:     metrics.DayOfWeek,
		Type:   "header",
		X:      x,
		Y:      y,
		Width:  float64(textW),
		Height: float64(textH),
	}, true
}

// drawRow draws a label on the left and its value right-aligned in the
// remaining column. Overflowing values either marquee or are clipped.
func (r *Renderer) drawRow(cfg *config.Config, item layout.Item, value string, glow GlowText, boxStyle BoxStyle) ItemState {
	fontSize := float64(cfg.General.MetricFontSize)
	boxH := int(fontSize * rowBoxScale)
	state := ItemState{
		ID:     item.MetricID,
		Type:   "metric",
		X:      float64(item.X),
		Y:      float64(item.Y),
		Width:  float64(item.MaxWidth),
		Height: float64(boxH),
	}
	if item.MaxWidth <= 0 {
		return state
	}

	if cfg.Cosmetics.OcclusionEnabled {
		box := image.Rect(item.X-boxInsetX, item.Y-boxInsetY, item.X-boxInsetX+item.MaxWidth+2*boxInsetX, item.Y-boxInsetY+boxH)
		DrawBox(r.surface, box, boxStyle)
	}

	face := r.faces.Regular(fontSize)
	y := float64(item.Y) + float64(boxH-TextHeight(face))/2 - 2
	glow.Draw(r.surface, face, item.Label, float64(item.X), y, r.theme.Primary)

	labelW := TextWidth(face, item.Label)
	valueW := TextWidth(face, value)
	areaStart := item.X + labelW + rowPadding
	areaW := item.MaxWidth - labelW - rowPadding
	if areaW <= 0 {
		return state
	}

	drawX := float64(item.X + item.MaxWidth - valueW)
	if valueW > areaW {
		if item.Scroll {
			drawX = r.advanceScroll(item, valueW, areaW)
		} else {
			drawX = float64(areaStart)
		}
	} else {
		delete(r.scroll, item.MetricID)
	}

	column := image.Rect(areaStart, item.Y-boxInsetY, areaStart+areaW, r.height)
	clipped, ok := r.surface.SubImage(column).(*image.RGBA)
	if !ok || clipped.Bounds().Empty() {
		return state
	}
	glow.Draw(clipped, face, value, drawX, y, r.theme.Primary)
	return state
}

// advanceScroll moves the marquee for item and returns the value's x. Once
// the text has fully left the column it restarts from the right edge.
func (r *Renderer) advanceScroll(item layout.Item, valueW, areaW int) float64 {
	offset := r.scroll[item.MetricID] + scrollStep
	if offset > float64(valueW+areaW) {
		offset = 0
	}
	r.scroll[item.MetricID] = offset
	return float64(item.X+item.MaxWidth) - offset
}
