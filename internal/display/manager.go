package display

import (
	"errors"
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/MatrixOverlay/internal/logger"
)

// WindowManager owns the overlay windows, one per active monitor
type WindowManager struct {
	conn     *xgb.Conn
	contexts []*WindowContext
	byID     map[xproto.Window]*WindowContext
	visible  bool
	mu       sync.RWMutex
}

// CreateWindows creates an overlay window for each monitor. A monitor whose
// window can't be created is logged and skipped; a missing ARGB visual aborts.
func CreateWindows(conn *xgb.Conn, monitors []Monitor) (*WindowManager, error) {
	screen := xproto.Setup(conn).DefaultScreen(conn)

	m := &WindowManager{
		conn:    conn,
		byID:    make(map[xproto.Window]*WindowContext),
		visible: true,
	}

	for i, monitor := range monitors {
		wc, err := CreateOverlayWindow(conn, screen, i, monitor)
		if err != nil {
			if errors.Is(err, ErrNoARGBVisual) {
				m.Destroy()
				return nil, err
			}
			logger.WithMonitor("display", i, monitor.Name).Error().
				Err(err).
				Msg("Failed to create overlay window, skipping monitor")
			continue
		}
		m.contexts = append(m.contexts, wc)
		m.byID[wc.Window] = wc
	}

	if len(m.contexts) == 0 {
		return nil, fmt.Errorf("no overlay windows could be created for %d monitors", len(monitors))
	}

	conn.Sync()
	return m, nil
}

// Contexts returns the window contexts in monitor order
func (m *WindowManager) Contexts() []*WindowContext {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*WindowContext(nil), m.contexts...)
}

// Lookup finds the context owning a window
func (m *WindowManager) Lookup(window xproto.Window) (*WindowContext, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wc, ok := m.byID[window]
	return wc, ok
}

// Visible reports whether the overlays are mapped
func (m *WindowManager) Visible() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.visible
}

// Show maps every window and pushes it back below the rest
func (m *WindowManager) Show() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, wc := range m.contexts {
		xproto.MapWindow(m.conn, wc.Window)
		if err := wc.lower(); err != nil {
			logger.WithMonitor("display", wc.Index, wc.Monitor.Name).Warn().
				Err(err).
				Msg("Failed to lower window")
		}
	}
	m.visible = true
	logger.WithComponent("display").Info().Msg("Overlay shown")
}

// Hide unmaps every window
func (m *WindowManager) Hide() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, wc := range m.contexts {
		xproto.UnmapWindow(m.conn, wc.Window)
	}
	m.conn.Sync()
	m.visible = false
	logger.WithComponent("display").Info().Msg("Overlay hidden")
}

// Destroy frees every window and its resources
func (m *WindowManager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, wc := range m.contexts {
		wc.destroy()
	}
	m.contexts = nil
	m.byID = make(map[xproto.Window]*WindowContext)
	m.conn.Sync()

	logger.WithComponent("display").Info().Msg("Overlay windows destroyed")
}
