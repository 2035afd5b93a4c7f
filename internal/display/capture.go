package display

import (
	"fmt"
	"image"
	"image/color"

	"github.com/BurntSushi/xgb/xproto"
)

// probeColor is drawn by CheckReadBack and must survive the round trip
var probeColor = color.RGBA{R: 0, G: 255, B: 65, A: 255}

// decodeRows is the inverse of encodeRows. It writes rows [y0, y1) of dst
// from ZPixmap data as the server returned it.
func (f imageFormat) decodeRows(dst *image.RGBA, data []byte, y0, y1 int) {
	b := dst.Bounds()
	width := b.Dx()
	stride := f.stride(width)

	for y := y0; y < y1; y++ {
		row := data[(y-y0)*stride:]
		if len(row) < width*4 {
			return
		}
		pix := dst.Pix[dst.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < width; x++ {
			s := row[x*4 : x*4+4]
			d := pix[x*4 : x*4+4]
			if f.lsbFirst {
				d[0], d[1], d[2], d[3] = s[2], s[1], s[0], s[3]
			} else {
				d[0], d[1], d[2], d[3] = s[1], s[2], s[3], s[0]
			}
		}
	}
}

// Capture reads the window's current contents back from the server
func Capture(wc *WindowContext) (*image.RGBA, error) {
	if wc.gc == 0 {
		return nil, fmt.Errorf("window %d has been destroyed", wc.Window)
	}

	width, height := wc.Monitor.Width, wc.Monitor.Height
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	rows := wc.format.rowsPerRequest(width)
	for y0 := 0; y0 < height; y0 += rows {
		y1 := min(y0+rows, height)
		reply, err := xproto.GetImage(
			wc.conn,
			xproto.ImageFormatZPixmap,
			xproto.Drawable(wc.Window),
			0, int16(y0),
			uint16(width), uint16(y1-y0),
			0xffffffff,
		).Reply()
		if err != nil {
			return nil, fmt.Errorf("failed to get image: %w", err)
		}
		if reply.Depth != wc.depth {
			return nil, fmt.Errorf("captured depth %d, want %d", reply.Depth, wc.depth)
		}
		wc.format.decodeRows(img, reply.Data, y0, y1)
	}
	return img, nil
}

// probeFrame is a transparent frame with an opaque square in the middle
func probeFrame(width, height int) (*image.RGBA, image.Point) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	center := image.Pt(width/2, height/2)
	for y := center.Y - 2; y <= center.Y+2; y++ {
		for x := center.X - 2; x <= center.X+2; x++ {
			if image.Pt(x, y).In(img.Rect) {
				img.SetRGBA(x, y, probeColor)
			}
		}
	}
	return img, center
}

// CheckReadBack presents a probe frame and reads it back to confirm the
// server stores what the presenter sends. The window is left showing the
// probe.
func CheckReadBack(wc *WindowContext) error {
	probe, center := probeFrame(wc.Monitor.Width, wc.Monitor.Height)
	if err := wc.Present(probe); err != nil {
		return err
	}
	got, err := Capture(wc)
	if err != nil {
		return err
	}
	if c := got.RGBAAt(center.X, center.Y); c != probeColor {
		return fmt.Errorf("probe pixel read back as %v, want %v", c, probeColor)
	}
	if c := got.RGBAAt(0, 0); c.A != 0 {
		return fmt.Errorf("transparent corner read back with alpha %d", c.A)
	}
	return nil
}
