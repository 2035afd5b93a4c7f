package runner

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/MatrixOverlay/internal/config"
	"github.com/bryanchriswhite/MatrixOverlay/internal/display"
	"github.com/bryanchriswhite/MatrixOverlay/internal/metrics"
)

type fakeWindows struct {
	byID    map[xproto.Window]*display.WindowContext
	visible bool
	shows   int
	hides   int
}

func (w *fakeWindows) Visible() bool { return w.visible }

func (w *fakeWindows) Lookup(window xproto.Window) (*display.WindowContext, bool) {
	wc, ok := w.byID[window]
	return wc, ok
}
func (w *fakeWindows) Destroy()      {}

func (w *fakeWindows) Show() {
	w.visible = true
	w.shows++
}

func (w *fakeWindows) Hide() {
	w.visible = false
	w.hides++
}

type countingTarget struct {
	presents int
	err      error
}

func (t *countingTarget) Present(*image.RGBA) error {
	t.presents++
	return t.err
}

func newTestRunner(t *testing.T, monitors ...display.Monitor) (*Runner, *fakeWindows, []*countingTarget) {
	t.Helper()
	mgr, err := config.NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	r := New(mgr, nil)
	windows := &fakeWindows{visible: true}
	r.windows = windows

	var targets []*countingTarget
	for i, m := range monitors {
		s, err := newSurface(i, m, r.currentConfig())
		if err != nil {
			t.Fatal(err)
		}
		target := &countingTarget{}
		s.target = target
		targets = append(targets, target)
		r.surfaces = append(r.surfaces, s)
		r.monitors = append(r.monitors, m)
	}
	return r, windows, targets
}

func TestHotkeyMatch(t *testing.T) {
	h := hotkeys{toggle: []xproto.Keycode{25}, quit: []xproto.Keycode{24}}

	tests := []struct {
		name   string
		detail xproto.Keycode
		state  uint16
		want   action
	}{
		{"ctrl alt w", 25, hotkeyModifiers, actionToggle},
		{"ctrl alt q", 24, hotkeyModifiers, actionQuit},
		{"with caps lock", 25, hotkeyModifiers | xproto.ModMaskLock, actionToggle},
		{"with num lock", 24, hotkeyModifiers | xproto.ModMask2, actionQuit},
		{"ctrl only", 25, xproto.ModMaskControl, actionNone},
		{"other key", 30, hotkeyModifiers, actionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.match(tt.detail, tt.state); got != tt.want {
				t.Errorf("match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKeycodesFor(t *testing.T) {
	// Two keysyms per keycode starting at keycode 8
	keysyms := []xproto.Keysym{
		0x61, 0x41, // 8: a A
		0x77, 0x57, // 9: w W
		0x71, 0x51, // 10: q Q
		0x57, 0x77, // 11: W w, first keysym doesn't match
		0x77, 0x57, // 12: w W
	}

	got := keycodesFor(8, 2, keysyms, keysymW)
	if len(got) != 2 || got[0] != 9 || got[1] != 12 {
		t.Errorf("w keycodes = %v, want [9 12]", got)
	}
	if got := keycodesFor(8, 2, keysyms, keysymQ); len(got) != 1 || got[0] != 10 {
		t.Errorf("q keycodes = %v, want [10]", got)
	}
	if got := keycodesFor(8, 0, keysyms, keysymQ); got != nil {
		t.Errorf("zero width mapping = %v, want nil", got)
	}
}

func TestDrawAllPresentsEveryMonitor(t *testing.T) {
	r, _, targets := newTestRunner(t,
		display.Monitor{Name: "DP-1", Width: 640, Height: 480, Primary: true},
		display.Monitor{Name: "HDMI-1", X: 640, Width: 320, Height: 240},
	)
	r.store.Set(map[string]metrics.Value{metrics.CPUUsage: metrics.Float(5)})

	r.drawAll()
	for i, target := range targets {
		if target.presents != 1 {
			t.Errorf("monitor %d presented %d times, want 1", i, target.presents)
		}
	}
}

func TestDefaultConfigDrawsHeader(t *testing.T) {
	r, _, _ := newTestRunner(t, display.Monitor{Name: "DP-1", Width: 1920, Height: 1080, Primary: true})
	cfg := r.currentConfig()

	collector := metrics.NewCollector(r.store, cfg.MetricIDs(), cfg.UpdateInterval())
	r.store.Set(collector.Collect(context.Background(), cfg.MetricIDs()))
	r.drawAll()

	states, _ := r.ItemStates(0)
	for _, s := range states {
		if s.Type == "header" {
			return
		}
	}
	t.Errorf("no header in the default frame: %+v", states)
}

func TestFrameErrorDoesNotStopOtherMonitors(t *testing.T) {
	r, _, targets := newTestRunner(t,
		display.Monitor{Name: "DP-1", Width: 320, Height: 240},
		display.Monitor{Name: "DP-2", Width: 320, Height: 240},
	)
	targets[0].err = errors.New("BadDrawable")

	r.drawAll()
	r.drawAll()
	if targets[1].presents != 2 {
		t.Errorf("healthy monitor presented %d times, want 2", targets[1].presents)
	}
}

func TestHiddenOverlayIsNotDrawn(t *testing.T) {
	r, windows, targets := newTestRunner(t, display.Monitor{Name: "DP-1", Width: 320, Height: 240})
	windows.visible = false

	r.drawAll()
	if targets[0].presents != 0 {
		t.Error("drew while hidden")
	}

	r.setVisible(true)
	if windows.shows != 1 || targets[0].presents != 1 {
		t.Errorf("show: shows=%d presents=%d, want 1 and 1", windows.shows, targets[0].presents)
	}

	r.setVisible(true)
	if windows.shows != 1 {
		t.Error("showing twice mapped the windows again")
	}
}

func TestExposeRedrawsOnlyThatMonitor(t *testing.T) {
	r, windows, targets := newTestRunner(t,
		display.Monitor{Name: "DP-1", Width: 320, Height: 240},
		display.Monitor{Name: "DP-2", Width: 320, Height: 240},
	)
	windows.byID = map[xproto.Window]*display.WindowContext{42: {Window: 42, Index: 1}}

	r.handleEvent(xproto.ExposeEvent{Window: 42, Count: 1})
	if targets[1].presents != 0 {
		t.Fatal("drew before the last expose of the series")
	}
	r.handleEvent(xproto.ExposeEvent{Window: 42})
	if targets[0].presents != 0 || targets[1].presents != 1 {
		t.Errorf("presents = %d, %d, want 0, 1", targets[0].presents, targets[1].presents)
	}
	r.handleEvent(xproto.ExposeEvent{Window: 7})
	if targets[0].presents != 0 || targets[1].presents != 1 {
		t.Error("expose of an unknown window drew something")
	}
}

func TestKeyPressToggles(t *testing.T) {
	r, windows, _ := newTestRunner(t, display.Monitor{Name: "DP-1", Width: 320, Height: 240})
	r.keys = hotkeys{toggle: []xproto.Keycode{25}, quit: []xproto.Keycode{24}}

	if a := r.handleEvent(xproto.KeyPressEvent{Detail: 25, State: hotkeyModifiers}); a != actionToggle {
		t.Fatalf("action = %v, want toggle", a)
	}
	if windows.visible {
		t.Error("toggle hotkey did not hide the overlay")
	}
	if a := r.handleEvent(xproto.KeyPressEvent{Detail: 24, State: hotkeyModifiers}); a != actionQuit {
		t.Errorf("action = %v, want quit", a)
	}
}

func TestApplyConfigUpdatesRenderers(t *testing.T) {
	r, _, targets := newTestRunner(t, display.Monitor{Name: "DP-1", Width: 800, Height: 600})

	cfg := r.currentConfig().Clone()
	cfg.Screens[0].Metrics = []string{metrics.CPUUsage}
	cfg.LogLevel = "info"
	r.applyConfig(cfg)

	l, ok := r.Layout(0)
	if !ok {
		t.Fatal("Layout(0) not found")
	}
	if len(l.Items) != 1 || l.Items[0].MetricID != metrics.CPUUsage {
		t.Errorf("layout = %+v, want only cpu_usage", l.Items)
	}
	if targets[0].presents != 1 {
		t.Errorf("presents after apply = %d, want 1", targets[0].presents)
	}
}

func TestReloadConfigKeepsPreviousOnError(t *testing.T) {
	r, _, _ := newTestRunner(t, display.Monitor{Name: "DP-1", Width: 800, Height: 600})
	before := r.currentConfig()

	if err := os.WriteFile(r.configMgr.GetConfigPath(), []byte("general:\n  font_size: 4\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if r.reloadConfig() {
		t.Fatal("invalid config reported as applied")
	}
	if r.currentConfig() != before {
		t.Error("invalid config replaced the running one")
	}

	if err := os.WriteFile(r.configMgr.GetConfigPath(), []byte("general:\n  font_size: 20\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if !r.reloadConfig() {
		t.Fatal("valid config not applied")
	}
	if got := r.currentConfig().General.FontSize; got != 20 {
		t.Errorf("font size = %d, want 20", got)
	}
}

func TestStateAccessors(t *testing.T) {
	r, _, _ := newTestRunner(t, display.Monitor{Name: "DP-1", Width: 320, Height: 240})

	if got := r.Monitors(); len(got) != 1 || got[0].Name != "DP-1" {
		t.Errorf("Monitors() = %v", got)
	}
	if _, ok := r.ItemStates(5); ok {
		t.Error("ItemStates found an unknown monitor")
	}
	if _, ok := r.Preview(0); ok {
		t.Error("preview reported while disabled")
	}

	r.SetVisible(false)
	r.SetVisible(true)
	if got := <-r.visibility; !got {
		t.Errorf("pending visibility = %v, want the latest request", got)
	}
}
