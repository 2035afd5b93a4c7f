package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Rain modes understood by the overlay renderer
const (
	RainModeFall  = "fall"
	RainModePulse = "pulse"
	RainModeOff   = "off"
)

// Occlusion box styles
const (
	BoxStyleSquare  = "square"
	BoxStyleRounded = "rounded"
)

// Theme presets
const (
	ThemeClassic = "classic"
	ThemeCalm    = "calm"
	ThemeAlert   = "alert"
)

// GlowPass is one halo pass: the text is drawn translated by (DX, DY) at Alpha.
// In YAML it is written as a three element sequence: [dx, dy, alpha].
type GlowPass struct {
	DX    float64 `json:"dx"`
	DY    float64 `json:"dy"`
	Alpha float64 `json:"alpha"`
}

// UnmarshalYAML decodes a [dx, dy, alpha] triple
func (g *GlowPass) UnmarshalYAML(value *yaml.Node) error {
	var triple []float64
	if err := value.Decode(&triple); err != nil {
		return fmt.Errorf("glow pass must be [dx, dy, alpha]: %w", err)
	}
	if len(triple) != 3 {
		return fmt.Errorf("glow pass must have 3 values, got %d", len(triple))
	}
	g.DX, g.DY, g.Alpha = triple[0], triple[1], triple[2]
	return nil
}

// MarshalYAML encodes the pass as a flow-style triple
func (g GlowPass) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, v := range []float64{g.DX, g.DY, g.Alpha} {
		node.Content = append(node.Content, &yaml.Node{
			Kind:  yaml.ScalarNode,
			Value: fmt.Sprintf("%g", v),
		})
	}
	return node, nil
}

// GeneralConfig holds text rendering and cadence settings
type GeneralConfig struct {
	FontSize         int        `json:"font_size" yaml:"font_size"`
	MetricFontSize   int        `json:"metric_font_size" yaml:"metric_font_size"`
	Color            string     `json:"color" yaml:"color"`
	UpdateMs         int        `json:"update_ms" yaml:"update_ms"`
	Theme            string     `json:"theme" yaml:"theme"`
	GlowPasses       []GlowPass `json:"glow_passes" yaml:"glow_passes"`
	ShowMonitorLabel bool       `json:"show_monitor_label" yaml:"show_monitor_label"`
}

// ScreenConfig is the per-monitor content list. Screens are matched to
// detected monitors by index (primary first, then left to right).
type ScreenConfig struct {
	Metrics []string `json:"metrics" yaml:"metrics"`
	XOffset int      `json:"x_offset" yaml:"x_offset"`
	YOffset int      `json:"y_offset" yaml:"y_offset"`
}

// CosmeticsConfig controls the background animation and occlusion boxes
type CosmeticsConfig struct {
	RainMode          string  `json:"rain_mode" yaml:"rain_mode"`
	DensityScale      int     `json:"density_scale" yaml:"density_scale"`
	RainSpeed         float64 `json:"rain_speed" yaml:"rain_speed"`
	MetricsBrightness float64 `json:"metrics_brightness" yaml:"metrics_brightness"`
	RainBrightness    float64 `json:"rain_brightness" yaml:"rain_brightness"`
	OcclusionEnabled  bool    `json:"occlusion_enabled" yaml:"occlusion_enabled"`
	BorderEnabled     bool    `json:"border_enabled" yaml:"border_enabled"`
	BorderColor       string  `json:"border_color" yaml:"border_color"`
	BoxStyle          string  `json:"box_style" yaml:"box_style"`
	CornerRadius      float64 `json:"corner_radius" yaml:"corner_radius"`
	BackgroundOpacity float64 `json:"background_opacity" yaml:"background_opacity"`
	BackdropOpacity   float64 `json:"backdrop_opacity" yaml:"backdrop_opacity"`
	// GlyphFont is an optional TTF/OTF path used for the rain glyphs.
	GlyphFont string `json:"glyph_font,omitempty" yaml:"glyph_font,omitempty"`
}

// PreviewConfig controls the local preview/introspection HTTP server
type PreviewConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Port    int  `json:"port" yaml:"port"`
}

// Config represents the application configuration
type Config struct {
	General   GeneralConfig   `json:"general" yaml:"general"`
	Screens   []ScreenConfig  `json:"screens" yaml:"screens"`
	Cosmetics CosmeticsConfig `json:"cosmetics" yaml:"cosmetics"`
	Preview   PreviewConfig   `json:"preview" yaml:"preview"`
	LogLevel  string          `json:"log_level" yaml:"log_level"`
}

// DefaultGlowPasses is the halo used when the config doesn't define one
func DefaultGlowPasses() []GlowPass {
	return []GlowPass{
		{DX: -2, DY: -2, Alpha: 0.2},
		{DX: -1, DY: -1, Alpha: 0.3},
		{DX: 0, DY: 0, Alpha: 0.4},
		{DX: 1, DY: 1, Alpha: 0.3},
		{DX: 2, DY: 2, Alpha: 0.2},
	}
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			FontSize:         14,
			MetricFontSize:   14,
			Color:            "#00FF41",
			UpdateMs:         1000,
			Theme:            ThemeClassic,
			GlowPasses:       DefaultGlowPasses(),
			ShowMonitorLabel: true,
		},
		Screens: []ScreenConfig{
			{
				Metrics: []string{
					"cpu_usage",
					"ram_usage",
					"disk_usage",
					"network_details",
					"cpu_temp",
					"gpu_temp",
				},
				XOffset: 20,
				YOffset: 20,
			},
		},
		Cosmetics: CosmeticsConfig{
			RainMode:          RainModeFall,
			DensityScale:      10,
			RainSpeed:         1.0,
			MetricsBrightness: 0.9,
			RainBrightness:    0.9,
			OcclusionEnabled:  true,
			BorderEnabled:     false,
			BorderColor:       "#00FF41",
			BoxStyle:          BoxStyleSquare,
			CornerRadius:      6,
			BackgroundOpacity: 0.7,
			BackdropOpacity:   1.0,
		},
		Preview: PreviewConfig{
			Enabled: false,
			Port:    8765,
		},
		LogLevel: "info",
	}
}

// Validate checks configuration values. It returns the first problem found.
func (c *Config) Validate() error {
	if c.General.FontSize < 12 {
		return fmt.Errorf("general.font_size must be >= 12, got %d", c.General.FontSize)
	}
	if c.General.MetricFontSize <= 0 {
		return fmt.Errorf("general.metric_font_size must be positive, got %d", c.General.MetricFontSize)
	}
	if !IsHexColor(c.General.Color) {
		return fmt.Errorf("general.color must be a hex string like #RRGGBB, got %q", c.General.Color)
	}
	if c.General.UpdateMs < 500 {
		return fmt.Errorf("general.update_ms must be >= 500, got %d", c.General.UpdateMs)
	}
	for i, screen := range c.Screens {
		if screen.XOffset < 0 || screen.YOffset < 0 {
			return fmt.Errorf("screen %d offsets must be non-negative", i)
		}
	}

	switch c.Cosmetics.RainMode {
	case RainModeFall, RainModePulse, RainModeOff:
	default:
		return fmt.Errorf("cosmetics.rain_mode must be one of fall, pulse, off; got %q", c.Cosmetics.RainMode)
	}
	switch c.Cosmetics.BoxStyle {
	case BoxStyleSquare, BoxStyleRounded:
	default:
		return fmt.Errorf("cosmetics.box_style must be square or rounded; got %q", c.Cosmetics.BoxStyle)
	}
	if c.Cosmetics.DensityScale < 0 {
		return fmt.Errorf("cosmetics.density_scale must be non-negative")
	}
	if c.Cosmetics.RainSpeed < 0 {
		return fmt.Errorf("cosmetics.rain_speed must be non-negative")
	}
	if c.Cosmetics.BorderEnabled && !IsHexColor(c.Cosmetics.BorderColor) {
		return fmt.Errorf("cosmetics.border_color must be a hex string, got %q", c.Cosmetics.BorderColor)
	}
	for name, v := range map[string]float64{
		"metrics_brightness": c.Cosmetics.MetricsBrightness,
		"rain_brightness":    c.Cosmetics.RainBrightness,
		"background_opacity": c.Cosmetics.BackgroundOpacity,
		"backdrop_opacity":   c.Cosmetics.BackdropOpacity,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("cosmetics.%s must be within [0, 1], got %g", name, v)
		}
	}
	if c.Preview.Enabled && (c.Preview.Port <= 0 || c.Preview.Port > 65535) {
		return fmt.Errorf("preview.port must be a valid TCP port, got %d", c.Preview.Port)
	}
	return nil
}

// IsHexColor reports whether s is #RRGGBB or #RRGGBBAA
func IsHexColor(s string) bool {
	if !strings.HasPrefix(s, "#") {
		return false
	}
	hex := s[1:]
	if len(hex) != 6 && len(hex) != 8 {
		return false
	}
	for _, c := range hex {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// Clone returns a deep copy so snapshots handed to the renderer never alias
// the manager's state.
func (c *Config) Clone() *Config {
	out := *c
	out.General.GlowPasses = append([]GlowPass(nil), c.General.GlowPasses...)
	out.Screens = make([]ScreenConfig, len(c.Screens))
	for i, s := range c.Screens {
		out.Screens[i] = ScreenConfig{
			Metrics: append([]string(nil), s.Metrics...),
			XOffset: s.XOffset,
			YOffset: s.YOffset,
		}
	}
	return &out
}

// ScreenFor returns the screen config for monitor index i, falling back to the
// first screen. ok is false when no screens are configured at all.
func (c *Config) ScreenFor(i int) (ScreenConfig, bool) {
	if i >= 0 && i < len(c.Screens) {
		return c.Screens[i], true
	}
	if len(c.Screens) > 0 {
		return c.Screens[0], true
	}
	return ScreenConfig{}, false
}

// UpdateInterval is the redraw tick period
func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(c.General.UpdateMs) * time.Millisecond
}

// MetricIDs returns the de-duplicated set of metric ids referenced by any
// screen, in first-seen order.
func (c *Config) MetricIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, s := range c.Screens {
		for _, m := range s.Metrics {
			if !seen[m] {
				seen[m] = true
				ids = append(ids, m)
			}
		}
	}
	return ids
}
