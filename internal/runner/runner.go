package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/MatrixOverlay/internal/api"
	"github.com/bryanchriswhite/MatrixOverlay/internal/config"
	"github.com/bryanchriswhite/MatrixOverlay/internal/display"
	"github.com/bryanchriswhite/MatrixOverlay/internal/instance"
	"github.com/bryanchriswhite/MatrixOverlay/internal/layout"
	"github.com/bryanchriswhite/MatrixOverlay/internal/logger"
	"github.com/bryanchriswhite/MatrixOverlay/internal/metrics"
	"github.com/bryanchriswhite/MatrixOverlay/internal/output"
	"github.com/bryanchriswhite/MatrixOverlay/internal/overlay"
	"github.com/rs/zerolog"
)

var _ api.State = (*Runner)(nil)

// windowSet is the part of display.WindowManager the loop drives
type windowSet interface {
	Lookup(window xproto.Window) (*display.WindowContext, bool)
	Visible() bool
	Show()
	Hide()
	Destroy()
}

// surface is one monitor's window, renderer and optional preview
type surface struct {
	index    int
	monitor  display.Monitor
	window   *display.WindowContext
	renderer *overlay.Renderer
	preview  *output.MJPEGOutput
	target   overlay.Target
}

// Runner owns the X connection, the overlay windows and the frame loop.
// All drawing happens on the goroutine running Run.
type Runner struct {
	configMgr *config.Manager
	lock      *instance.Lock

	mu       sync.RWMutex
	cfg      *config.Config
	monitors []display.Monitor
	surfaces []*surface

	windows   windowSet
	store     *metrics.Store
	collector *metrics.Collector
	keys      hotkeys

	visibility chan bool
}

// New creates a runner. lock may be nil when the single-instance lock is
// unavailable.
func New(configMgr *config.Manager, lock *instance.Lock) *Runner {
	return &Runner{
		configMgr:  configMgr,
		lock:       lock,
		cfg:        configMgr.Get(),
		store:      metrics.NewStore(),
		visibility: make(chan bool, 1),
	}
}

// Run connects to X, creates the overlays and draws until ctx is cancelled,
// a signal arrives or the quit hotkey is pressed
func (r *Runner) Run(ctx context.Context) error {
	log := logger.WithComponent("runner")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}
	defer conn.Close()

	monitors, err := display.Detect(conn)
	if err != nil {
		return fmt.Errorf("failed to detect monitors: %w", err)
	}
	if len(monitors) == 0 {
		return errors.New("no active monitors detected")
	}
	for i, m := range monitors {
		log.Info().Int("monitor", i).Str("output", m.Name).Msg(m.String())
	}

	windows, err := display.CreateWindows(conn, monitors)
	if err != nil {
		return fmt.Errorf("failed to create overlay windows: %w", err)
	}
	defer windows.Destroy()
	r.windows = windows

	cfg := r.currentConfig()
	var surfaces []*surface
	for _, wc := range windows.Contexts() {
		s, err := newSurface(wc.Index, wc.Monitor, cfg)
		if err != nil {
			logger.WithMonitor("runner", wc.Index, wc.Monitor.Name).Error().
				Err(err).
				Msg("Failed to create renderer, skipping monitor")
			continue
		}
		s.window = wc
		s.target = wc
		surfaces = append(surfaces, s)
	}
	if len(surfaces) == 0 {
		return errors.New("no monitor could be rendered")
	}

	r.mu.Lock()
	r.monitors = monitors
	r.surfaces = surfaces
	r.mu.Unlock()

	warnConflicts(cfg)

	root := xproto.Setup(conn).DefaultScreen(conn).Root
	if keys, err := grabHotkeys(conn, root); err != nil {
		log.Warn().Err(err).Msg("Hotkeys unavailable")
	} else {
		r.keys = keys
	}

	r.collector = metrics.NewCollector(r.store, cfg.MetricIDs(), cfg.UpdateInterval())
	go r.collector.Run(ctx)

	if cfg.Preview.Enabled {
		r.startPreview(ctx, cfg)
		defer r.stopPreview()
	}

	var reload <-chan struct{}
	if watcher, err := config.NewWatcher(r.configMgr.GetConfigPath()); err != nil {
		log.Warn().Err(err).Msg("Config hot reload unavailable")
	} else {
		defer watcher.Close()
		reload = watcher.Events()
	}

	var commands <-chan instance.Command
	if r.lock != nil {
		commands = r.lock.Commands()
	}

	events := make(chan xgb.Event, 16)
	go pumpEvents(ctx, conn, events)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ticker := time.NewTicker(cfg.UpdateInterval())
	defer ticker.Stop()

	log.Info().
		Int("monitors", len(surfaces)).
		Dur("interval", cfg.UpdateInterval()).
		Msg("Overlay running")

	r.drawAll()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Shutting down")
			return nil

		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("Shutting down")
			return nil

		case <-ticker.C:
			r.drawAll()

		case ev, ok := <-events:
			if !ok {
				return errors.New("X connection closed")
			}
			if r.handleEvent(ev) == actionQuit {
				log.Info().Msg("Quit hotkey pressed")
				return nil
			}

		case <-reload:
			if r.reloadConfig() {
				ticker.Reset(r.currentConfig().UpdateInterval())
			}

		case cmd := <-commands:
			log.Info().Str("command", string(cmd)).Msg("Remote command")
			if cmd == instance.CommandQuit {
				return nil
			}
			r.setVisible(!r.windows.Visible())

		case visible := <-r.visibility:
			r.setVisible(visible)
		}
	}
}

// newSurface builds the renderer for one monitor from cfg
func newSurface(index int, monitor display.Monitor, cfg *config.Config) (*surface, error) {
	var l layout.Layout
	if screen, ok := cfg.ScreenFor(index); ok {
		l = layout.Compute(screen, monitor.Width, monitor.Height, float64(cfg.General.FontSize))
	}
	renderer, err := overlay.NewRenderer(monitor.Width, monitor.Height, index, l, cfg)
	if err != nil {
		return nil, err
	}
	return &surface{
		index:    index,
		monitor:  monitor,
		renderer: renderer,
	}, nil
}

// pumpEvents forwards X events until the connection closes. Protocol errors
// are logged and dropped.
func pumpEvents(ctx context.Context, conn *xgb.Conn, events chan<- xgb.Event) {
	log := logger.WithComponent("runner")
	defer close(events)
	for {
		ev, err := conn.WaitForEvent()
		if ev == nil && err == nil {
			return
		}
		if err != nil {
			log.Debug().Err(err).Msg("X protocol error")
			continue
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// handleEvent redraws exposed windows and dispatches hotkeys
func (r *Runner) handleEvent(ev xgb.Event) action {
	switch e := ev.(type) {
	case xproto.ExposeEvent:
		if e.Count != 0 {
			return actionNone
		}
		if s := r.surfaceForWindow(e.Window); s != nil && r.windows.Visible() {
			r.draw(s, r.currentConfig(), r.store.Snapshot())
		}
	case xproto.KeyPressEvent:
		switch a := r.keys.match(e.Detail, e.State); a {
		case actionToggle:
			r.setVisible(!r.windows.Visible())
			return a
		case actionQuit:
			return a
		}
	}
	return actionNone
}

func (r *Runner) surfaceForWindow(w xproto.Window) *surface {
	wc, ok := r.windows.Lookup(w)
	if !ok {
		return nil
	}
	return r.surfaceByIndex(wc.Index)
}

// drawAll draws every monitor from a single metrics snapshot
func (r *Runner) drawAll() {
	if r.windows != nil && !r.windows.Visible() {
		return
	}
	cfg := r.currentConfig()
	snapshot := r.store.Snapshot()

	r.mu.RLock()
	surfaces := append([]*surface(nil), r.surfaces...)
	r.mu.RUnlock()

	for _, s := range surfaces {
		r.draw(s, cfg, snapshot)
	}
}

// draw renders one monitor. Failures are logged and the next frame retried.
func (r *Runner) draw(s *surface, cfg *config.Config, snapshot metrics.Snapshot) {
	if err := s.renderer.Draw(s.target, cfg, snapshot); err != nil {
		logger.WithMonitor("runner", s.index, s.monitor.Name).Warn().
			Err(err).
			Msg("Frame failed")
	}
}

// reloadConfig applies the file on disk. An invalid file keeps the running
// configuration and reports false.
func (r *Runner) reloadConfig() bool {
	cfg, err := r.configMgr.Reload()
	if err != nil {
		logger.WithComponent("runner").Warn().
			Err(err).
			Msg("Config reload failed, keeping previous config")
		return false
	}
	r.applyConfig(cfg)
	return true
}

// applyConfig pushes cfg to every renderer and the collector, then redraws
func (r *Runner) applyConfig(cfg *config.Config) {
	zerolog.SetGlobalLevel(logger.ParseLevel(cfg.LogLevel))

	r.mu.Lock()
	r.cfg = cfg
	surfaces := append([]*surface(nil), r.surfaces...)
	r.mu.Unlock()

	for _, s := range surfaces {
		s.renderer.UpdateConfig(cfg)
	}
	if r.collector != nil {
		r.collector.SetMetrics(cfg.MetricIDs(), cfg.UpdateInterval())
	}
	warnConflicts(cfg)

	logger.WithComponent("runner").Info().
		Int("screens", len(cfg.Screens)).
		Str("rain_mode", cfg.Cosmetics.RainMode).
		Msg("Config applied")

	r.drawAll()
}

func (r *Runner) setVisible(visible bool) {
	if r.windows.Visible() == visible {
		return
	}
	if visible {
		r.windows.Show()
		r.drawAll()
		return
	}
	r.windows.Hide()
}

func (r *Runner) currentConfig() *config.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

func warnConflicts(cfg *config.Config) {
	// ValidateUniqueness logs each pair; the result is only needed by the API
	layout.ValidateUniqueness(cfg.Screens)
}

// startPreview attaches an MJPEG output to every monitor and serves the API
func (r *Runner) startPreview(ctx context.Context, cfg *config.Config) {
	log := logger.WithComponent("runner")

	r.mu.Lock()
	for _, s := range r.surfaces {
		preview := output.NewMJPEGOutput(output.Config{
			Monitor: s.index,
			Width:   s.monitor.Width,
			Height:  s.monitor.Height,
			FPS:     5,
		})
		if err := preview.Start(); err != nil {
			log.Warn().Err(err).Int("monitor", s.index).Msg("Failed to start preview")
			continue
		}
		s.preview = preview
		s.target = output.Tee{Primary: s.window, Outputs: []output.Output{preview}}
	}
	r.mu.Unlock()

	server := api.NewServer(r, r.configMgr, r.store)
	go func() {
		if err := server.Start(ctx, cfg.Preview.Port); err != nil {
			log.Error().Err(err).Msg("Preview server stopped")
		}
	}()
}

func (r *Runner) stopPreview() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.surfaces {
		if s.preview != nil {
			s.preview.Stop()
		}
	}
}

// api.State

// Monitors returns the detected monitors
func (r *Runner) Monitors() []display.Monitor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]display.Monitor(nil), r.monitors...)
}

func (r *Runner) surfaceByIndex(i int) *surface {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.surfaces {
		if s.index == i {
			return s
		}
	}
	return nil
}

// Layout returns the rows laid out on monitor i
func (r *Runner) Layout(i int) (layout.Layout, bool) {
	s := r.surfaceByIndex(i)
	if s == nil {
		return layout.Layout{}, false
	}
	return s.renderer.Layout(), true
}

// ItemStates returns what monitor i drew last frame
func (r *Runner) ItemStates(i int) ([]overlay.ItemState, bool) {
	s := r.surfaceByIndex(i)
	if s == nil {
		return nil, false
	}
	return s.renderer.ItemStates(), true
}

// Preview returns monitor i's MJPEG stream when the preview is enabled
func (r *Runner) Preview(i int) (*output.MJPEGOutput, bool) {
	s := r.surfaceByIndex(i)
	if s == nil || s.preview == nil {
		return nil, false
	}
	return s.preview, true
}

// Visible reports whether the overlays are mapped
func (r *Runner) Visible() bool {
	if r.windows == nil {
		return false
	}
	return r.windows.Visible()
}

// SetVisible asks the loop to show or hide the overlays
func (r *Runner) SetVisible(visible bool) {
	select {
	case r.visibility <- visible:
	default:
		// A request is already pending; the latest one wins on the next pass
		select {
		case <-r.visibility:
		default:
		}
		select {
		case r.visibility <- visible:
		default:
		}
	}
}
