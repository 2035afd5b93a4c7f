package layout

import (
	"strings"

	"github.com/bryanchriswhite/MatrixOverlay/internal/config"
	"github.com/bryanchriswhite/MatrixOverlay/internal/logger"
	"github.com/bryanchriswhite/MatrixOverlay/internal/metrics"
)

const (
	// SafeTopMargin keeps rows clear of the desktop icon grid that shares the
	// desktop layer
	SafeTopMargin = 180
	// LinePitch is the row spacing as a multiple of the font size
	LinePitch = 1.5
	// UniquenessThreshold is the minimum Jaccard distance between two
	// monitors' metric sets before a warning is raised
	UniquenessThreshold = 0.75
)

// Item is one metric row positioned on a monitor surface
type Item struct {
	MetricID string `json:"metric_id"`
	Label    string `json:"label"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	MaxWidth int    `json:"max_width"`
	Scroll   bool   `json:"scroll"`
}

// Layout is the ordered set of rows for one monitor
type Layout struct {
	Items []Item `json:"items"`
}

// Compute stacks the screen's metrics vertically from the safe margin at a
// fixed pitch. Rows starting below the surface are dropped.
func Compute(screen config.ScreenConfig, width, height int, fontSize float64) Layout {
	y := screen.YOffset
	if y < SafeTopMargin {
		y = SafeTopMargin
	}
	pitch := int(fontSize * LinePitch)
	// Offsets wider than half the surface leave no room for a row
	maxWidth := max(width-2*screen.XOffset, 0)

	items := make([]Item, 0, len(screen.Metrics))
	for _, id := range screen.Metrics {
		if height > 0 && y >= height {
			break
		}
		items = append(items, Item{
			MetricID: id,
			Label:    metrics.Label(id),
			X:        screen.XOffset,
			Y:        y,
			MaxWidth: maxWidth,
			Scroll:   Scrolls(id),
		})
		y += pitch
	}
	return Layout{Items: items}
}

// Scrolls reports whether a metric's value marquees when it overflows rather
// than being clipped
func Scrolls(id string) bool {
	return id == metrics.NetworkDetails || strings.Contains(id, "weather")
}

// Conflict is a pair of monitors whose content overlaps too much
type Conflict struct {
	A          int      `json:"a"`
	B          int      `json:"b"`
	Uniqueness float64  `json:"uniqueness"`
	Shared     []string `json:"shared"`
}

// ValidateUniqueness compares every pair of screens' metric sets and returns
// the pairs whose uniqueness (1 - Jaccard index) is below the threshold. Each
// conflict is logged as a warning. Pairs with no metrics at all are skipped.
func ValidateUniqueness(screens []config.ScreenConfig) []Conflict {
	log := logger.WithComponent("layout")

	sets := make([]map[string]bool, len(screens))
	for i, s := range screens {
		sets[i] = make(map[string]bool, len(s.Metrics))
		for _, m := range s.Metrics {
			sets[i][m] = true
		}
	}

	var conflicts []Conflict
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			uniqueness, shared, ok := jaccardDistance(screens[i].Metrics, sets[j])
			if !ok || uniqueness >= UniquenessThreshold {
				continue
			}
			c := Conflict{A: i, B: j, Uniqueness: uniqueness, Shared: shared}
			conflicts = append(conflicts, c)
			log.Warn().
				Int("monitor_a", i).
				Int("monitor_b", j).
				Float64("uniqueness", uniqueness).
				Strs("shared", shared).
				Msg("Monitors show largely the same metrics; consider differentiating their content")
		}
	}
	return conflicts
}

// jaccardDistance returns 1 - |a∩b|/|a∪b| for the ids in a and the set b,
// plus the shared ids in a's order. ok is false for an empty union.
func jaccardDistance(a []string, b map[string]bool) (float64, []string, bool) {
	union := len(b)
	var shared []string
	seen := make(map[string]bool, len(a))
	for _, id := range a {
		if seen[id] {
			continue
		}
		seen[id] = true
		if b[id] {
			shared = append(shared, id)
		} else {
			union++
		}
	}
	if union == 0 {
		return 0, nil, false
	}
	return 1 - float64(len(shared))/float64(union), shared, true
}
