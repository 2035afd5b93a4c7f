package display

import (
	"fmt"

	"github.com/BurntSushi/xgb/shape"
	"github.com/BurntSushi/xgb/xproto"
)

// Verification is what the server reports back about an overlay window
type Verification struct {
	Depth      int  `json:"depth"`
	X          int  `json:"x"`
	Y          int  `json:"y"`
	Width      int  `json:"width"`
	Height     int  `json:"height"`
	Viewable   bool `json:"viewable"`
	InputRects int  `json:"input_rects"`
}

// Problems lists every way the window differs from what the monitor needs
func (v *Verification) Problems(m Monitor) []string {
	var problems []string
	if v.Depth != 32 {
		problems = append(problems, fmt.Sprintf("depth is %d, want 32", v.Depth))
	}
	if v.X != m.X || v.Y != m.Y || v.Width != m.Width || v.Height != m.Height {
		problems = append(problems, fmt.Sprintf("geometry %dx%d+%d+%d, want %dx%d+%d+%d",
			v.Width, v.Height, v.X, v.Y, m.Width, m.Height, m.X, m.Y))
	}
	if !v.Viewable {
		problems = append(problems, "window is not viewable")
	}
	if v.InputRects != 0 {
		problems = append(problems, fmt.Sprintf("input shape has %d rectangles, want 0", v.InputRects))
	}
	return problems
}

// Verify reads back depth, root-relative geometry, map state and the input
// shape of an overlay window
func Verify(wc *WindowContext) (*Verification, error) {
	conn := wc.conn

	geom, err := xproto.GetGeometry(conn, xproto.Drawable(wc.Window)).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get window geometry: %w", err)
	}

	// Reparenting window managers move the window into a frame, so translate
	// the origin to root coordinates
	pos, err := xproto.TranslateCoordinates(conn, wc.Window, geom.Root, 0, 0).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to translate coordinates: %w", err)
	}

	attrs, err := xproto.GetWindowAttributes(conn, wc.Window).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get window attributes: %w", err)
	}

	rects, err := shape.GetRectangles(conn, wc.Window, shape.SkInput).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get input shape: %w", err)
	}

	return &Verification{
		Depth:      int(geom.Depth),
		X:          int(pos.DstX),
		Y:          int(pos.DstY),
		Width:      int(geom.Width),
		Height:     int(geom.Height),
		Viewable:   attrs.MapState == xproto.MapStateViewable,
		InputRects: len(rects.Rectangles),
	}, nil
}
