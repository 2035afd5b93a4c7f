package display

import (
	"fmt"
	"image"

	"github.com/BurntSushi/xgb/xproto"
)

// putImageHeader is the fixed size of a PutImage request before its data
const putImageHeader = 24

// imageFormat describes how the server wants ZPixmap data for a depth
type imageFormat struct {
	bytesPerPixel int
	scanlinePad   int
	lsbFirst      bool
	maxRequest    int
}

func lookupImageFormat(setup *xproto.SetupInfo, depth byte) (imageFormat, error) {
	for _, f := range setup.PixmapFormats {
		if f.Depth != depth {
			continue
		}
		if f.BitsPerPixel != 32 {
			return imageFormat{}, fmt.Errorf("unsupported bits per pixel %d for depth %d", f.BitsPerPixel, depth)
		}
		return imageFormat{
			bytesPerPixel: 4,
			scanlinePad:   int(f.ScanlinePad) / 8,
			lsbFirst:      setup.ImageByteOrder == xproto.ImageOrderLSBFirst,
			maxRequest:    int(setup.MaximumRequestLength) * 4,
		}, nil
	}
	return imageFormat{}, fmt.Errorf("no pixmap format found for depth %d", depth)
}

// stride is the padded length of one scanline
func (f imageFormat) stride(width int) int {
	unpadded := width * f.bytesPerPixel
	pad := f.scanlinePad
	if pad <= 0 {
		pad = 4
	}
	return ((unpadded + pad - 1) / pad) * pad
}

// rowsPerRequest is how many whole scanlines fit in one PutImage
func (f imageFormat) rowsPerRequest(width int) int {
	rows := (f.maxRequest - putImageHeader) / f.stride(width)
	if rows < 1 {
		return 1
	}
	return rows
}

// encodeRows converts rows [y0, y1) of img into ZPixmap data. img is
// premultiplied RGBA which is what an ARGB visual expects, so only the byte
// order changes: B G R A for LSBFirst servers, A R G B otherwise.
func (f imageFormat) encodeRows(dst []byte, img *image.RGBA, y0, y1 int) []byte {
	b := img.Bounds()
	width := b.Dx()
	stride := f.stride(width)

	need := stride * (y1 - y0)
	if cap(dst) < need {
		dst = make([]byte, need)
	}
	dst = dst[:need]

	for y := y0; y < y1; y++ {
		src := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		row := dst[(y-y0)*stride:]
		for x := 0; x < width; x++ {
			s := src[x*4 : x*4+4]
			d := row[x*4 : x*4+4]
			if f.lsbFirst {
				d[0], d[1], d[2], d[3] = s[2], s[1], s[0], s[3]
			} else {
				d[0], d[1], d[2], d[3] = s[3], s[0], s[1], s[2]
			}
		}
		for i := width * 4; i < stride; i++ {
			row[i] = 0
		}
	}
	return dst
}

// Present uploads a full frame straight to the window. Requests are not
// checked; errors arrive asynchronously on the event stream. Frames larger
// than one request are sent as consecutive strips of whole rows.
func (wc *WindowContext) Present(img *image.RGBA) error {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width != wc.Monitor.Width || height != wc.Monitor.Height {
		return fmt.Errorf("frame size mismatch: got %dx%d, expected %dx%d",
			width, height, wc.Monitor.Width, wc.Monitor.Height)
	}
	if wc.gc == 0 {
		return fmt.Errorf("window %d has been destroyed", wc.Window)
	}

	rows := wc.format.rowsPerRequest(width)
	for y0 := 0; y0 < height; y0 += rows {
		y1 := y0 + rows
		if y1 > height {
			y1 = height
		}
		wc.buf = wc.format.encodeRows(wc.buf, img, y0, y1)
		xproto.PutImage(
			wc.conn,
			xproto.ImageFormatZPixmap,
			xproto.Drawable(wc.Window),
			wc.gc,
			uint16(width),
			uint16(y1-y0),
			0, int16(y0),
			0, // left pad
			wc.depth,
			wc.buf,
		)
	}
	return nil
}
