package overlay

import (
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/bryanchriswhite/MatrixOverlay/internal/config"
	"github.com/bryanchriswhite/MatrixOverlay/internal/layout"
	"github.com/bryanchriswhite/MatrixOverlay/internal/metrics"
)

type recordingTarget struct {
	frames []*image.RGBA
	err    error
}

func (t *recordingTarget) Present(img *image.RGBA) error {
	t.frames = append(t.frames, img)
	return t.err
}

// quietConfig draws text only: no rain, no boxes, transparent backdrop
func quietConfig(ids ...string) *config.Config {
	cfg := config.Defaults()
	cfg.General.GlowPasses = nil
	cfg.General.ShowMonitorLabel = false
	cfg.Cosmetics.RainMode = config.RainModeOff
	cfg.Cosmetics.OcclusionEnabled = false
	cfg.Cosmetics.BackdropOpacity = 0
	cfg.Cosmetics.MetricsBrightness = 1
	cfg.Screens = []config.ScreenConfig{{Metrics: ids, XOffset: 20, YOffset: 20}}
	return cfg
}

func newTestRenderer(t *testing.T, cfg *config.Config, width, height int) *Renderer {
	t.Helper()
	l := layout.Compute(cfg.Screens[0], width, height, float64(cfg.General.FontSize))
	r, err := NewRenderer(width, height, 0, l, cfg)
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	return r
}

// litColumns returns the smallest and largest x with any alpha inside rows [y0, y1)
func litColumns(img *image.RGBA, y0, y1 int) (int, int) {
	minX, maxX := -1, -1
	b := img.Bounds()
	for y := y0; y < y1 && y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.RGBAAt(x, y).A == 0 {
				continue
			}
			if minX < 0 || x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
		}
	}
	return minX, maxX
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.RGBA
		wantErr bool
	}{
		{"#00FF41", color.RGBA{0, 255, 65, 255}, false},
		{"ff000080", color.RGBA{255, 0, 0, 128}, false},
		{"#12345", color.RGBA{}, true},
		{"#GGGGGG", color.RGBA{}, true},
	}
	for _, tt := range tests {
		got, err := ParseHexColor(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseHexColor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseHexColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestResolveTheme(t *testing.T) {
	if got := ResolveTheme(config.ThemeCalm, "#FFFFFF"); got != calmTheme {
		t.Errorf("calm theme = %v", got)
	}
	if got := ResolveTheme(config.ThemeAlert, ""); got != alertTheme {
		t.Errorf("alert theme = %v", got)
	}

	custom := ResolveTheme("custom", "#0000FF")
	if custom.Primary != (color.RGBA{0, 0, 255, 255}) {
		t.Errorf("custom primary = %v", custom.Primary)
	}
	if custom.Lead.R <= custom.Primary.R {
		t.Errorf("custom lead %v is not lighter than primary", custom.Lead)
	}

	if got := ResolveTheme("custom", "nope"); got != classicTheme {
		t.Errorf("bad color should fall back to classic, got %v", got)
	}
}

func TestDrawBoxSquare(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 20, 20))
	DrawBox(dst, image.Rect(5, 5, 15, 15), BoxStyle{Opacity: 0.5})

	if got := dst.RGBAAt(10, 10).A; got != 128 {
		t.Errorf("inside alpha = %d, want 128", got)
	}
	if got := dst.RGBAAt(2, 2).A; got != 0 {
		t.Errorf("outside alpha = %d, want 0", got)
	}
}

func TestDrawBoxRoundedCorners(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 40, 40))
	DrawBox(dst, image.Rect(0, 0, 40, 40), BoxStyle{Rounded: true, Radius: 10, Opacity: 1})

	if got := dst.RGBAAt(0, 0).A; got != 0 {
		t.Errorf("corner alpha = %d, want 0", got)
	}
	if got := dst.RGBAAt(20, 20).A; got != 255 {
		t.Errorf("center alpha = %d, want 255", got)
	}
}

func TestDrawBoxBorder(t *testing.T) {
	border := color.RGBA{255, 0, 0, 255}
	for _, rounded := range []bool{false, true} {
		dst := image.NewRGBA(image.Rect(0, 0, 40, 40))
		DrawBox(dst, image.Rect(0, 0, 40, 40), BoxStyle{Rounded: rounded, Radius: 4, Opacity: 0, Border: &border})

		if got := dst.RGBAAt(20, 0); got.R < 200 {
			t.Errorf("rounded=%v: top edge = %v, want red", rounded, got)
		}
		if got := dst.RGBAAt(20, 20); got.A != 0 {
			t.Errorf("rounded=%v: center = %v, want untouched", rounded, got)
		}
	}
}

func TestGlowPassesOffsetCopies(t *testing.T) {
	faces, err := LoadFaces("")
	if err != nil {
		t.Fatal(err)
	}
	face := faces.Regular(20)

	plain := image.NewRGBA(image.Rect(0, 0, 120, 40))
	GlowText{Brightness: 1}.Draw(plain, face, "I", 20, 5, classicTheme.Primary)
	_, plainMax := litColumns(plain, 0, 40)

	glowing := image.NewRGBA(image.Rect(0, 0, 120, 40))
	GlowText{
		Passes:     []config.GlowPass{{DX: 10, DY: 0, Alpha: 1}},
		Brightness: 1,
	}.Draw(glowing, face, "I", 20, 5, classicTheme.Primary)
	_, glowMax := litColumns(glowing, 0, 40)

	if plainMax < 0 {
		t.Fatal("text drew nothing")
	}
	if glowMax-plainMax < 9 || glowMax-plainMax > 11 {
		t.Errorf("glow pass extends text by %d px, want about 10", glowMax-plainMax)
	}
}

func TestGlowZeroBrightnessDrawsNothing(t *testing.T) {
	faces, err := LoadFaces("")
	if err != nil {
		t.Fatal(err)
	}
	dst := image.NewRGBA(image.Rect(0, 0, 100, 40))
	GlowText{Passes: config.DefaultGlowPasses(), Brightness: 0}.Draw(dst, faces.Regular(20), "HELLO", 5, 5, classicTheme.Primary)

	if minX, _ := litColumns(dst, 0, 40); minX >= 0 {
		t.Error("zero brightness text left pixels behind")
	}
}

func TestLoadFacesMissingGlyphFont(t *testing.T) {
	faces, err := LoadFaces("/nonexistent/glyphs.ttf")
	if err == nil {
		t.Error("expected an error for a missing glyph font")
	}
	if faces == nil {
		t.Fatal("faces should still be usable after a glyph font error")
	}
	if got := faces.RainAlphabet(); string(got) != string(fallbackAlphabet) {
		t.Errorf("alphabet = %q, want fallback", string(got))
	}
}

func TestNewRendererRejectsEmptySurface(t *testing.T) {
	if _, err := NewRenderer(0, 100, 0, layout.Layout{}, config.Defaults()); err == nil {
		t.Error("expected error for zero width")
	}
}

func TestDrawPresentsSurface(t *testing.T) {
	cfg := quietConfig(metrics.CPUUsage)
	r := newTestRenderer(t, cfg, 400, 400)
	target := &recordingTarget{}

	if err := r.Draw(target, cfg, metrics.Snapshot{metrics.CPUUsage: metrics.Float(12.5)}); err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	if len(target.frames) != 1 || target.frames[0] != r.Surface() {
		t.Fatalf("presented %d frames, want the renderer surface once", len(target.frames))
	}

	target.err = errors.New("gone")
	if err := r.Draw(target, cfg, nil); err == nil || !strings.Contains(err.Error(), "gone") {
		t.Errorf("Draw() error = %v, want wrapped present error", err)
	}
}

func TestDrawSkipsMissingRowsAndHeaderRow(t *testing.T) {
	cfg := quietConfig(metrics.DayOfWeek, metrics.CPUUsage, metrics.RAMUsage)
	r := newTestRenderer(t, cfg, 800, 600)

	snapshot := metrics.Snapshot{
		metrics.DayOfWeek: metrics.Text("Friday"),
		metrics.CPUUsage:  metrics.Float(3),
	}
	if err := r.Draw(nil, cfg, snapshot); err != nil {
		t.Fatal(err)
	}

	states := r.ItemStates()
	var header, rows []string
	for _, s := range states {
		switch s.Type {
		case "header":
			header = append(header, s.ID)
		case "metric":
			rows = append(rows, s.ID)
		}
	}
	if len(header) != 1 {
		t.Errorf("header states = %v, want one", header)
	}
	if len(rows) != 1 || rows[0] != metrics.CPUUsage {
		t.Errorf("row states = %v, want only %s", rows, metrics.CPUUsage)
	}
}

func TestHeaderCenteredInBox(t *testing.T) {
	cfg := quietConfig()
	cfg.General.ShowMonitorLabel = true
	r := newTestRenderer(t, cfg, 1000, 600)

	if err := r.Draw(nil, cfg, metrics.Snapshot{metrics.DayOfWeek: metrics.Text("Monday")}); err != nil {
		t.Fatal(err)
	}
	states := r.ItemStates()
	if len(states) != 1 {
		t.Fatalf("got %d states, want the header", len(states))
	}
	h := states[0]
	center := h.X + h.Width/2
	if center < 499 || center > 501 {
		t.Errorf("header centered at %v, want 500", center)
	}
	if h.Y < headerBoxY {
		t.Errorf("header y = %v above its box", h.Y)
	}
}

func TestOverflowingValueIsClipped(t *testing.T) {
	cfg := quietConfig(metrics.CPUUsage)
	r := newTestRenderer(t, cfg, 400, 400)
	item := r.Layout().Items[0]

	long := metrics.Text(strings.Repeat("W", 200))
	if err := r.Draw(nil, cfg, metrics.Snapshot{metrics.CPUUsage: long}); err != nil {
		t.Fatal(err)
	}

	minX, maxX := litColumns(r.Surface(), item.Y-boxInsetY, 400)
	if minX < item.X {
		t.Errorf("text leaked left of the row to x=%d", minX)
	}
	if maxX >= item.X+item.MaxWidth {
		t.Errorf("text leaked right of the row to x=%d, limit %d", maxX, item.X+item.MaxWidth)
	}
	if _, ok := r.scroll[metrics.CPUUsage]; ok {
		t.Error("clipped row should not scroll")
	}
}

func TestOverflowingValueStartsAtValueColumn(t *testing.T) {
	cfg := quietConfig(metrics.CPUUsage)
	r := newTestRenderer(t, cfg, 400, 400)
	item := r.Layout().Items[0]

	// Label only, then label plus an overflowing value; the value is what differs
	if err := r.Draw(nil, cfg, metrics.Snapshot{metrics.CPUUsage: metrics.Text("")}); err != nil {
		t.Fatal(err)
	}
	labelOnly := image.NewRGBA(r.Surface().Bounds())
	copy(labelOnly.Pix, r.Surface().Pix)

	if err := r.Draw(nil, cfg, metrics.Snapshot{metrics.CPUUsage: metrics.Text(strings.Repeat("W", 200))}); err != nil {
		t.Fatal(err)
	}

	face := r.faces.Regular(float64(cfg.General.MetricFontSize))
	areaStart := item.X + TextWidth(face, item.Label) + rowPadding
	areaEnd := item.X + item.MaxWidth

	minX, maxX := -1, -1
	b := r.Surface().Bounds()
	for y := item.Y - boxInsetY; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if r.Surface().RGBAAt(x, y) == labelOnly.RGBAAt(x, y) {
				continue
			}
			if minX < 0 || x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
		}
	}
	if minX < areaStart || minX > areaStart+3 {
		t.Errorf("value starts at x=%d, want left-anchored at the value column %d", minX, areaStart)
	}
	if maxX >= areaEnd || maxX < areaEnd-4 {
		t.Errorf("value ends at x=%d, want clipped at %d", maxX, areaEnd)
	}
}

func TestZeroWidthRowDrawsNothing(t *testing.T) {
	cfg := quietConfig(metrics.CPUUsage)
	cfg.Cosmetics.OcclusionEnabled = true
	cfg.Cosmetics.BackgroundOpacity = 1
	cfg.Screens[0].XOffset = 300
	r := newTestRenderer(t, cfg, 400, 400)
	item := r.Layout().Items[0]
	if item.MaxWidth != 0 {
		t.Fatalf("MaxWidth = %d, want 0", item.MaxWidth)
	}

	if err := r.Draw(nil, cfg, metrics.Snapshot{metrics.CPUUsage: metrics.Text("42")}); err != nil {
		t.Fatal(err)
	}
	if minX, _ := litColumns(r.Surface(), item.Y-boxInsetY, 400); minX >= 0 {
		t.Errorf("zero-width row drew at x=%d", minX)
	}
}

func TestFittingValueIsRightAligned(t *testing.T) {
	cfg := quietConfig(metrics.CPUUsage)
	r := newTestRenderer(t, cfg, 400, 400)
	item := r.Layout().Items[0]

	if err := r.Draw(nil, cfg, metrics.Snapshot{metrics.CPUUsage: metrics.Text("42")}); err != nil {
		t.Fatal(err)
	}

	face := r.faces.Regular(float64(cfg.General.MetricFontSize))
	right := item.X + item.MaxWidth
	valueStart := right - TextWidth(face, "42")
	_, maxX := litColumns(r.Surface(), item.Y-boxInsetY, 400)
	if maxX < valueStart || maxX >= right {
		t.Errorf("rightmost pixel at %d, want within [%d, %d)", maxX, valueStart, right)
	}
}

func TestScrollingValueWraps(t *testing.T) {
	cfg := quietConfig(metrics.NetworkDetails)
	r := newTestRenderer(t, cfg, 400, 400)
	snapshot := metrics.Snapshot{metrics.NetworkDetails: metrics.Text(strings.Repeat("eth0: 1.0 KB/s ", 20))}

	for i := 0; i < 3; i++ {
		if err := r.Draw(nil, cfg, snapshot); err != nil {
			t.Fatal(err)
		}
	}
	if got := r.scroll[metrics.NetworkDetails]; got != 3*scrollStep {
		t.Errorf("offset after 3 frames = %v, want %v", got, 3*scrollStep)
	}

	r.scroll[metrics.NetworkDetails] = 1e9
	if err := r.Draw(nil, cfg, snapshot); err != nil {
		t.Fatal(err)
	}
	if got := r.scroll[metrics.NetworkDetails]; got != 0 {
		t.Errorf("offset after passing the end = %v, want 0", got)
	}

	snapshot[metrics.NetworkDetails] = metrics.Text("idle")
	if err := r.Draw(nil, cfg, snapshot); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.scroll[metrics.NetworkDetails]; ok {
		t.Error("fitting value kept a scroll offset")
	}
}

func TestPulseModeTintsBackdrop(t *testing.T) {
	cfg := quietConfig()
	cfg.Cosmetics.RainMode = config.RainModePulse
	r := newTestRenderer(t, cfg, 50, 50)

	if err := r.Draw(nil, cfg, nil); err != nil {
		t.Fatal(err)
	}
	want := uint8(PulseAlpha(1)*255 + 0.5)
	if got := r.Surface().RGBAAt(25, 25).A; got != want {
		t.Errorf("alpha = %d, want %d", got, want)
	}
}

func TestOffModeLeavesBackdrop(t *testing.T) {
	cfg := quietConfig()
	cfg.Cosmetics.BackdropOpacity = 1
	r := newTestRenderer(t, cfg, 50, 50)

	if err := r.Draw(nil, cfg, nil); err != nil {
		t.Fatal(err)
	}
	if got := r.Surface().RGBAAt(10, 10); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("pixel = %v, want opaque black", got)
	}
	if len(r.ItemStates()) != 0 {
		t.Errorf("states = %v, want none", r.ItemStates())
	}
}

func TestFallModeReportsRainSamples(t *testing.T) {
	cfg := quietConfig()
	cfg.Cosmetics.RainMode = config.RainModeFall
	cfg.Cosmetics.DensityScale = 10
	r := newTestRenderer(t, cfg, 1000, 600)

	if err := r.Draw(nil, cfg, nil); err != nil {
		t.Fatal(err)
	}
	rain := 0
	for _, s := range r.ItemStates() {
		if s.Type == "rain" {
			rain++
		}
	}
	if want := (maxStreams + sampleStride - 1) / sampleStride; rain != want {
		t.Errorf("rain samples = %d, want %d", rain, want)
	}
}

func TestUpdateConfigKeepsAnimationState(t *testing.T) {
	cfg := quietConfig(metrics.CPUUsage)
	cfg.Cosmetics.RainMode = config.RainModeFall
	r := newTestRenderer(t, cfg, 800, 600)
	r.scroll[metrics.NetworkDetails] = 12
	first := &r.rain.Streams[0]

	next := cfg.Clone()
	next.Screens[0].Metrics = []string{metrics.CPUUsage, metrics.RAMUsage}
	next.General.Theme = config.ThemeAlert
	r.UpdateConfig(next)

	if &r.rain.Streams[0] != first {
		t.Error("config update respawned rain streams")
	}
	if r.scroll[metrics.NetworkDetails] != 12 {
		t.Error("config update reset scroll offsets")
	}
	if got := len(r.Layout().Items); got != 2 {
		t.Errorf("layout has %d items after update, want 2", got)
	}
	if r.theme != alertTheme {
		t.Errorf("theme = %v, want alert", r.theme)
	}
}
