package metrics

import (
	"fmt"
	"sort"
	"strings"
)

// Known metric ids. Anything else found in a screen's metric list is treated
// as a custom metric whose label is its id.
const (
	CPUUsage         = "cpu_usage"
	RAMUsage         = "ram_usage"
	RAMUsed          = "ram_used"
	RAMTotal         = "ram_total"
	LoadAvg          = "load_avg"
	Uptime           = "uptime"
	NetworkDetails   = "network_details"
	DiskUsage        = "disk_usage"
	CPUTemp          = "cpu_temp"
	FanSpeed         = "fan_speed"
	GPUTemp          = "gpu_temp"
	GPUUtil          = "gpu_util"
	WeatherTemp      = "weather_temp"
	WeatherCondition = "weather_condition"
	DayOfWeek        = "day_of_week"
	CodeDelta        = "code_delta"
)

var labels = map[string]string{
	CPUUsage:         "CPU",
	RAMUsage:         "RAM %",
	RAMUsed:          "RAM GB",
	RAMTotal:         "RAM Max",
	LoadAvg:          "Load",
	Uptime:           "Uptime",
	NetworkDetails:   "Network",
	DiskUsage:        "Disk",
	CPUTemp:          "CPU Temp",
	FanSpeed:         "Fan",
	GPUTemp:          "GPU Temp",
	GPUUtil:          "GPU Util",
	WeatherTemp:      "Temp",
	WeatherCondition: "Weather",
	DayOfWeek:        "Day",
	CodeDelta:        "Delta",
}

// Label returns the display label for a metric id
func Label(id string) string {
	if l, ok := labels[id]; ok {
		return l
	}
	return id
}

// IsKnown reports whether id is one of the built-in metrics
func IsKnown(id string) bool {
	_, ok := labels[id]
	return ok
}

// Value is a collected metric value. The concrete types are Float, Int, Text,
// NetworkTable and None.
type Value interface {
	isValue()
}

// Float is a numeric reading shown with one decimal
type Float float64

// Int is an integer reading
type Int int64

// Text is a preformatted reading
type Text string

// Throughput is the per-second byte rate of one interface
type Throughput struct {
	Rx uint64 `json:"rx"`
	Tx uint64 `json:"tx"`
}

// NetworkTable maps interface names to throughput
type NetworkTable map[string]Throughput

// None marks a metric that could not be read
type None struct{}

func (Float) isValue()        {}
func (Int) isValue()          {}
func (Text) isValue()         {}
func (NetworkTable) isValue() {}
func (None) isValue()         {}

// Snapshot is a point-in-time copy of all collected values keyed by metric id
type Snapshot map[string]Value

// Get returns the value for id, or None when it was never collected
func (s Snapshot) Get(id string) Value {
	if v, ok := s[id]; ok && v != nil {
		return v
	}
	return None{}
}

// Format renders a value for display
func Format(v Value) string {
	switch val := v.(type) {
	case Float:
		return fmt.Sprintf("%.1f", float64(val))
	case Int:
		return fmt.Sprintf("%d", int64(val))
	case Text:
		return string(val)
	case NetworkTable:
		return formatNetwork(val)
	default:
		return "---"
	}
}

func formatNetwork(table NetworkTable) string {
	ifaces := make([]string, 0, len(table))
	for name := range table {
		ifaces = append(ifaces, name)
	}
	sort.Strings(ifaces)

	var parts []string
	for _, name := range ifaces {
		t := table[name]
		if t.Rx == 0 && t.Tx == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: ↓%s ↑%s", name, FormatBytes(t.Rx), FormatBytes(t.Tx)))
	}
	if len(parts) == 0 {
		return "Idle"
	}
	return strings.Join(parts, " | ")
}

// FormatBytes renders a byte rate with binary units
func FormatBytes(bytes uint64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1fGB/s", float64(bytes)/gb)
	case bytes >= mb:
		return fmt.Sprintf("%.1fMB/s", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.1fKB/s", float64(bytes)/kb)
	default:
		return fmt.Sprintf("%dB/s", bytes)
	}
}
