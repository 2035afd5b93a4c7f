package display

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/MatrixOverlay/internal/logger"
)

// DefaultRefreshHz is used when a mode's timings can't produce a rate
const DefaultRefreshHz = 60

var (
	// ErrNoRandR is returned when the RandR extension or its screen resources
	// are unavailable
	ErrNoRandR = errors.New("randr unavailable")
)

// Monitor is a connected, active output. Values are fixed after detection.
type Monitor struct {
	ID        uint32 `json:"id"`
	Name      string `json:"name"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	RefreshHz int    `json:"refresh_hz"`
	Primary   bool   `json:"primary"`
}

// String implements fmt.Stringer
func (m Monitor) String() string {
	primary := ""
	if m.Primary {
		primary = " primary"
	}
	return fmt.Sprintf("%s %dx%d+%d+%d @%dHz%s", m.Name, m.Width, m.Height, m.X, m.Y, m.RefreshHz, primary)
}

// Detect enumerates connected outputs with an active CRTC. The result is
// ordered primary first, then by ascending X.
func Detect(conn *xgb.Conn) ([]Monitor, error) {
	log := logger.WithComponent("display")

	if err := randr.Init(conn); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoRandR, err)
	}

	root := xproto.Setup(conn).DefaultScreen(conn).Root

	resources, err := randr.GetScreenResources(conn, root).Reply()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get screen resources: %v", ErrNoRandR, err)
	}

	var primary randr.Output
	if reply, err := randr.GetOutputPrimary(conn, root).Reply(); err == nil {
		primary = reply.Output
	} else {
		log.Debug().Err(err).Msg("Failed to query primary output")
	}

	modes := make(map[uint32]randr.ModeInfo, len(resources.Modes))
	for _, mode := range resources.Modes {
		modes[mode.Id] = mode
	}

	var monitors []Monitor
	for _, output := range resources.Outputs {
		info, err := randr.GetOutputInfo(conn, output, resources.ConfigTimestamp).Reply()
		if err != nil {
			log.Warn().Err(err).Uint32("output", uint32(output)).Msg("Failed to get output info, skipping")
			continue
		}
		if info.Connection != randr.ConnectionConnected || info.Crtc == 0 {
			continue
		}

		crtc, err := randr.GetCrtcInfo(conn, info.Crtc, resources.ConfigTimestamp).Reply()
		if err != nil {
			log.Warn().Err(err).Str("output", string(info.Name)).Msg("Failed to get CRTC info, skipping")
			continue
		}
		if crtc.Width == 0 || crtc.Height == 0 {
			continue
		}

		refresh := DefaultRefreshHz
		if mode, ok := modes[uint32(crtc.Mode)]; ok {
			refresh = refreshRate(mode.DotClock, mode.Htotal, mode.Vtotal)
		}

		m, err := newMonitor(uint32(output), string(info.Name), crtc.X, crtc.Y, crtc.Width, crtc.Height, refresh, output == primary)
		if err != nil {
			log.Warn().Err(err).Str("output", string(info.Name)).Msg("Skipping output")
			continue
		}
		log.Debug().Str("monitor", m.String()).Msg("Detected monitor")
		monitors = append(monitors, m)
	}

	sortMonitors(monitors)

	log.Info().Int("count", len(monitors)).Msg("Monitor detection complete")
	return monitors, nil
}

// refreshRate derives Hz from mode timings
func refreshRate(dotClock uint32, htotal, vtotal uint16) int {
	if dotClock == 0 || htotal == 0 || vtotal == 0 {
		return DefaultRefreshHz
	}
	hz := int(math.Round(float64(dotClock) / (float64(htotal) * float64(vtotal))))
	if hz <= 0 {
		return DefaultRefreshHz
	}
	return hz
}

// sortMonitors orders primary first, then ascending X. Stable so equal X
// keeps enumeration order.
func sortMonitors(monitors []Monitor) {
	sort.SliceStable(monitors, func(i, j int) bool {
		if monitors[i].Primary != monitors[j].Primary {
			return monitors[i].Primary
		}
		return monitors[i].X < monitors[j].X
	})
}

// newMonitor builds a Monitor from CRTC geometry. A CRTC placed at a
// negative origin cannot be covered by a window at its exact geometry, so it
// is rejected rather than moved.
func newMonitor(id uint32, name string, x, y int16, width, height uint16, refresh int, primary bool) (Monitor, error) {
	if x < 0 || y < 0 {
		return Monitor{}, fmt.Errorf("crtc origin (%d, %d) is negative", x, y)
	}
	return Monitor{
		ID:        id,
		Name:      name,
		X:         int(x),
		Y:         int(y),
		Width:     int(width),
		Height:    int(height),
		RefreshHz: refresh,
		Primary:   primary,
	}, nil
}
