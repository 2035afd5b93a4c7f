package display

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/shape"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/MatrixOverlay/internal/logger"
)

const (
	windowInstance = "matrixoverlay"
	windowClass    = "MatrixOverlay"
)

// ErrNoARGBVisual is returned when the screen has no 32-bit TrueColor visual
// with an alpha channel
var ErrNoARGBVisual = errors.New("no 32-bit ARGB visual")

// WindowContext is one overlay window bound to a monitor
type WindowContext struct {
	Index   int
	Monitor Monitor
	Window  xproto.Window

	conn     *xgb.Conn
	gc       xproto.Gcontext
	colormap xproto.Colormap
	depth    byte
	format   imageFormat
	buf      []byte
}

// ARGBVisual is a depth-32 TrueColor visual
type ARGBVisual struct {
	ID    xproto.Visualid
	Depth byte
}

// FindARGBVisual scans the screen's depths for a 32-bit TrueColor visual
// whose color masks leave bits free for alpha.
func FindARGBVisual(screen *xproto.ScreenInfo) (ARGBVisual, error) {
	for _, depth := range screen.AllowedDepths {
		if depth.Depth != 32 {
			continue
		}
		for _, visual := range depth.Visuals {
			if visual.Class != xproto.VisualClassTrueColor {
				continue
			}
			if visual.RedMask|visual.GreenMask|visual.BlueMask == 0xFFFFFFFF {
				continue
			}
			return ARGBVisual{ID: visual.VisualId, Depth: depth.Depth}, nil
		}
	}
	return ARGBVisual{}, ErrNoARGBVisual
}

// CreateOverlayWindow creates a transparent, click-through desktop-layer
// window covering monitor, maps it and lowers it below other windows.
func CreateOverlayWindow(conn *xgb.Conn, screen *xproto.ScreenInfo, index int, monitor Monitor) (*WindowContext, error) {
	log := logger.WithMonitor("display", index, monitor.Name)

	visual, err := FindARGBVisual(screen)
	if err != nil {
		return nil, err
	}

	format, err := lookupImageFormat(xproto.Setup(conn), visual.Depth)
	if err != nil {
		return nil, err
	}

	colormap, err := xproto.NewColormapId(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate colormap ID: %w", err)
	}
	if err := xproto.CreateColormapChecked(conn, xproto.ColormapAllocNone, colormap, screen.Root, visual.ID).Check(); err != nil {
		return nil, fmt.Errorf("failed to create colormap: %w", err)
	}

	windowID, err := xproto.NewWindowId(conn)
	if err != nil {
		xproto.FreeColormap(conn, colormap)
		return nil, fmt.Errorf("failed to create window ID: %w", err)
	}

	// Value order follows the mask bit order
	mask := uint32(xproto.CwBackPixel | xproto.CwBorderPixel | xproto.CwEventMask | xproto.CwColormap)
	values := []uint32{
		0x00000000, // fully transparent background
		0x00000000, // border pixel, required for a non-default depth
		xproto.EventMaskExposure | xproto.EventMaskKeyPress | xproto.EventMaskStructureNotify,
		uint32(colormap),
	}

	err = xproto.CreateWindowChecked(
		conn,
		visual.Depth,
		windowID,
		screen.Root,
		int16(monitor.X), int16(monitor.Y),
		uint16(monitor.Width), uint16(monitor.Height),
		0, // border width
		xproto.WindowClassInputOutput,
		visual.ID,
		mask,
		values,
	).Check()
	if err != nil {
		xproto.FreeColormap(conn, colormap)
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	wc := &WindowContext{
		Index:    index,
		Monitor:  monitor,
		Window:   windowID,
		conn:     conn,
		colormap: colormap,
		depth:    visual.Depth,
		format:   format,
	}

	if err := wc.setDesktopHints(); err != nil {
		wc.destroy()
		return nil, fmt.Errorf("failed to set EWMH hints: %w", err)
	}

	title := fmt.Sprintf("MatrixOverlay - Monitor %d (%s)", index+1, monitor.Name)
	if err := wc.setWindowTitle(title); err != nil {
		log.Warn().Err(err).Msg("Failed to set window title")
	}
	if err := wc.setWindowClass(windowInstance, windowClass); err != nil {
		log.Warn().Err(err).Msg("Failed to set window class")
	}

	if err := wc.clearInputShape(); err != nil {
		wc.destroy()
		return nil, fmt.Errorf("failed to make window click-through: %w", err)
	}

	mapWindow := func() error {
		return xproto.MapWindowChecked(conn, windowID).Check()
	}
	if err := mapThenLower(mapWindow, wc.lower); err != nil {
		wc.destroy()
		return nil, err
	}

	gc, err := xproto.NewGcontextId(conn)
	if err != nil {
		wc.destroy()
		return nil, fmt.Errorf("failed to create graphics context ID: %w", err)
	}
	if err := xproto.CreateGCChecked(conn, gc, xproto.Drawable(windowID), 0, nil).Check(); err != nil {
		wc.destroy()
		return nil, fmt.Errorf("failed to create GC: %w", err)
	}
	wc.gc = gc

	log.Info().
		Uint32("window_id", uint32(windowID)).
		Int("x", monitor.X).
		Int("y", monitor.Y).
		Int("width", monitor.Width).
		Int("height", monitor.Height).
		Msg("Overlay window created")

	return wc, nil
}

// setDesktopHints marks the window as a sticky desktop-layer window that
// stays out of taskbars and pagers
// mapThenLower maps the window and only then sends it to the bottom of the
// stack. Servers may raise a window on map, so the opposite order is not
// reliable. Either failure aborts the window.
func mapThenLower(mapWindow, lower func() error) error {
	if err := mapWindow(); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}
	if err := lower(); err != nil {
		return fmt.Errorf("failed to lower window: %w", err)
	}
	return nil
}

func (wc *WindowContext) setDesktopHints() error {
	atoms, err := internAtoms(wc.conn,
		"_NET_WM_WINDOW_TYPE",
		"_NET_WM_WINDOW_TYPE_DESKTOP",
		"_NET_WM_STATE",
		"_NET_WM_STATE_BELOW",
		"_NET_WM_STATE_STICKY",
		"_NET_WM_STATE_SKIP_TASKBAR",
		"_NET_WM_STATE_SKIP_PAGER",
	)
	if err != nil {
		return err
	}

	if err := wc.setAtomList(atoms["_NET_WM_WINDOW_TYPE"], atoms["_NET_WM_WINDOW_TYPE_DESKTOP"]); err != nil {
		return err
	}
	return wc.setAtomList(atoms["_NET_WM_STATE"],
		atoms["_NET_WM_STATE_BELOW"],
		atoms["_NET_WM_STATE_STICKY"],
		atoms["_NET_WM_STATE_SKIP_TASKBAR"],
		atoms["_NET_WM_STATE_SKIP_PAGER"],
	)
}

func (wc *WindowContext) setAtomList(property xproto.Atom, values ...xproto.Atom) error {
	return xproto.ChangePropertyChecked(
		wc.conn,
		xproto.PropModeReplace,
		wc.Window,
		property,
		xproto.AtomAtom,
		32,
		uint32(len(values)),
		atomListData(values),
	).Check()
}

// atomListData encodes atoms as format-32 property data in client byte order
func atomListData(atoms []xproto.Atom) []byte {
	data := make([]byte, 4*len(atoms))
	for i, a := range atoms {
		xgb.Put32(data[i*4:], uint32(a))
	}
	return data
}

// clearInputShape sets the input region to zero rectangles so pointer events
// pass through to the windows below
func (wc *WindowContext) clearInputShape() error {
	if err := shape.Init(wc.conn); err != nil {
		return fmt.Errorf("shape extension unavailable: %w", err)
	}
	return shape.RectanglesChecked(
		wc.conn,
		shape.SoSet,
		shape.SkInput,
		0, // unsorted
		wc.Window,
		0, 0,
		nil,
	).Check()
}

func (wc *WindowContext) lower() error {
	return xproto.ConfigureWindowChecked(
		wc.conn,
		wc.Window,
		xproto.ConfigWindowStackMode,
		[]uint32{xproto.StackModeBelow},
	).Check()
}

// setWindowTitle sets the window title
func (wc *WindowContext) setWindowTitle(title string) error {
	atoms, err := internAtoms(wc.conn, "_NET_WM_NAME", "UTF8_STRING")
	if err != nil {
		return err
	}

	return xproto.ChangePropertyChecked(
		wc.conn,
		xproto.PropModeReplace,
		wc.Window,
		atoms["_NET_WM_NAME"],
		atoms["UTF8_STRING"],
		8,
		uint32(len(title)),
		[]byte(title),
	).Check()
}

// setWindowClass sets the window class
func (wc *WindowContext) setWindowClass(instance, class string) error {
	// WM_CLASS format: instance\0class\0
	classStr := instance + "\x00" + class + "\x00"

	return xproto.ChangePropertyChecked(
		wc.conn,
		xproto.PropModeReplace,
		wc.Window,
		xproto.AtomWmClass,
		xproto.AtomString,
		8,
		uint32(len(classStr)),
		[]byte(classStr),
	).Check()
}

// destroy releases the server-side resources of the window
func (wc *WindowContext) destroy() {
	if wc.gc != 0 {
		xproto.FreeGC(wc.conn, wc.gc)
		wc.gc = 0
	}
	if wc.Window != 0 {
		xproto.DestroyWindow(wc.conn, wc.Window)
	}
	if wc.colormap != 0 {
		xproto.FreeColormap(wc.conn, wc.colormap)
		wc.colormap = 0
	}
}

// internAtoms resolves several atoms, sending every request before waiting on
// the first reply
func internAtoms(conn *xgb.Conn, names ...string) (map[string]xproto.Atom, error) {
	cookies := make([]xproto.InternAtomCookie, len(names))
	for i, name := range names {
		cookies[i] = xproto.InternAtom(conn, false, uint16(len(name)), name)
	}

	atoms := make(map[string]xproto.Atom, len(names))
	for i, cookie := range cookies {
		reply, err := cookie.Reply()
		if err != nil {
			return nil, fmt.Errorf("failed to intern atom %s: %w", names[i], err)
		}
		atoms[names[i]] = reply.Atom
	}
	return atoms, nil
}
