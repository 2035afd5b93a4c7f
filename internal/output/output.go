package output

import (
	"image"

	"github.com/bryanchriswhite/MatrixOverlay/internal/logger"
)

// Output defines the interface for secondary frame sinks. The overlay
// window is always the primary sink; outputs receive a copy of every
// presented frame:
// - MJPEG HTTP preview stream
type Output interface {
	// Start initializes the output mechanism
	Start() error

	// Stop cleanly shuts down the output
	Stop() error

	// WriteFrame sends a frame to the output. The frame is only valid for
	// the duration of the call.
	WriteFrame(frame *image.RGBA) error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

// Config holds common configuration for all output types
type Config struct {
	Monitor int
	Width   int
	Height  int
	// FPS caps how often frames are encoded. Zero means every frame.
	FPS int
}

// Presenter is anything that puts a finished frame on screen
type Presenter interface {
	Present(img *image.RGBA) error
}

// Tee presents to Primary and copies the frame to every running output.
// Output failures are logged and never fail the present.
type Tee struct {
	Primary Presenter
	Outputs []Output
}

// Present implements overlay.Target
func (t Tee) Present(img *image.RGBA) error {
	var err error
	if t.Primary != nil {
		err = t.Primary.Present(img)
	}
	for _, o := range t.Outputs {
		if !o.IsRunning() {
			continue
		}
		if werr := o.WriteFrame(img); werr != nil {
			logger.WithComponent("output").Warn().
				Err(werr).
				Str("output", o.Name()).
				Msg("Failed to write frame")
		}
	}
	return err
}
