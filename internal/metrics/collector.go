package metrics

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/MatrixOverlay/internal/logger"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

const bytesPerGB = 1024 * 1024 * 1024

// Sensor key fragments used to pick CPU and GPU temperatures
var (
	cpuSensorKeys = []string{"coretemp", "k10temp", "zenpower", "cpu", "package"}
	gpuSensorKeys = []string{"amdgpu", "radeon", "nouveau", "nvidia", "gpu"}
)

// Collector samples system metrics on its own cadence and writes them to a
// Store. Only the ids referenced by the configured screens are collected.
type Collector struct {
	store *Store

	mu       sync.Mutex
	ids      []string
	interval time.Duration

	now       func() time.Time
	lastNet   map[string]net.IOCountersStat
	lastNetAt time.Time
}

// NewCollector creates a collector for ids sampled every interval
func NewCollector(store *Store, ids []string, interval time.Duration) *Collector {
	return &Collector{
		store:    store,
		ids:      append([]string(nil), ids...),
		interval: interval,
		now:      time.Now,
	}
}

// SetMetrics replaces the collected ids and cadence. Takes effect on the next
// sample.
func (c *Collector) SetMetrics(ids []string, interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append([]string(nil), ids...)
	c.interval = interval
}

func (c *Collector) settings() ([]string, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...), c.interval
}

// Run samples until ctx is cancelled
func (c *Collector) Run(ctx context.Context) {
	log := logger.WithComponent("metrics")
	log.Info().Msg("Metrics collector started")
	defer log.Info().Msg("Metrics collector stopped")

	for {
		ids, interval := c.settings()
		c.store.Set(c.Collect(ctx, ids))

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// coreMetrics are collected whether or not a screen lists them. The header
// row is drawn from day_of_week on every monitor.
var coreMetrics = []string{DayOfWeek}

// Collect reads the given ids once, plus coreMetrics. Unreadable or
// unsupported metrics are reported as None.
func (c *Collector) Collect(ctx context.Context, ids []string) map[string]Value {
	log := logger.WithComponent("metrics")
	out := make(map[string]Value, len(ids)+len(coreMetrics))

	want := make(map[string]bool, len(ids)+len(coreMetrics))
	for _, id := range append(append([]string(nil), coreMetrics...), ids...) {
		want[id] = true
		out[id] = None{}
	}

	if want[CPUUsage] {
		if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
			out[CPUUsage] = Text(fmt.Sprintf("%.1f%%", pct[0]))
		} else if err != nil {
			log.Debug().Err(err).Msg("Failed to read CPU usage")
		}
	}

	if want[RAMUsage] || want[RAMUsed] || want[RAMTotal] {
		if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
			out[RAMUsage] = Text(fmt.Sprintf("%.0f%%", vm.UsedPercent))
			out[RAMUsed] = Text(fmt.Sprintf("%.1f GB", float64(vm.Used)/bytesPerGB))
			out[RAMTotal] = Text(fmt.Sprintf("%.1f GB", float64(vm.Total)/bytesPerGB))
		} else {
			log.Debug().Err(err).Msg("Failed to read memory")
		}
	}

	if want[DiskUsage] {
		if usage, err := disk.UsageWithContext(ctx, "/"); err == nil {
			out[DiskUsage] = Text(fmt.Sprintf("%.1f%%", usage.UsedPercent))
		} else {
			log.Debug().Err(err).Msg("Failed to read disk usage")
		}
	}

	if want[LoadAvg] {
		if avg, err := load.AvgWithContext(ctx); err == nil {
			out[LoadAvg] = Text(fmt.Sprintf("%.2f", avg.Load1))
		} else {
			log.Debug().Err(err).Msg("Failed to read load average")
		}
	}

	if want[Uptime] {
		if secs, err := host.UptimeWithContext(ctx); err == nil {
			out[Uptime] = Text(FormatUptime(secs))
		} else {
			log.Debug().Err(err).Msg("Failed to read uptime")
		}
	}

	if want[NetworkDetails] {
		if counters, err := net.IOCountersWithContext(ctx, true); err == nil {
			out[NetworkDetails] = c.networkTable(counters)
		} else {
			log.Debug().Err(err).Msg("Failed to read network counters")
		}
	}

	if want[CPUTemp] || want[GPUTemp] {
		temps, err := host.SensorsTemperaturesWithContext(ctx)
		if err != nil && len(temps) == 0 {
			log.Debug().Err(err).Msg("Failed to read sensors")
		}
		if t, ok := pickSensor(temps, cpuSensorKeys); ok {
			out[CPUTemp] = Text(fmt.Sprintf("%.0f°C", t))
		}
		if t, ok := pickSensor(temps, gpuSensorKeys); ok {
			out[GPUTemp] = Text(fmt.Sprintf("%.0f°C", t))
		}
	}

	if want[DayOfWeek] {
		out[DayOfWeek] = Text(c.now().Weekday().String())
	}

	// Only keep what was asked for
	for id := range out {
		if !want[id] {
			delete(out, id)
		}
	}
	return out
}

func (c *Collector) networkTable(counters []net.IOCountersStat) NetworkTable {
	now := c.now()
	current := make(map[string]net.IOCountersStat, len(counters))
	for _, ctr := range counters {
		if ctr.Name == "lo" {
			continue
		}
		current[ctr.Name] = ctr
	}

	table := NetworkRates(c.lastNet, current, now.Sub(c.lastNetAt))
	c.lastNet = current
	c.lastNetAt = now
	return table
}

// NetworkRates computes per-second throughput between two counter samples.
// Interfaces absent from prev are omitted; counter resets count as zero.
func NetworkRates(prev, curr map[string]net.IOCountersStat, elapsed time.Duration) NetworkTable {
	secs := elapsed.Seconds()
	if secs < 0.001 {
		secs = 1
	}

	table := make(NetworkTable)
	for name, c := range curr {
		p, ok := prev[name]
		if !ok {
			continue
		}
		var rx, tx uint64
		if c.BytesRecv >= p.BytesRecv {
			rx = c.BytesRecv - p.BytesRecv
		}
		if c.BytesSent >= p.BytesSent {
			tx = c.BytesSent - p.BytesSent
		}
		table[name] = Throughput{
			Rx: uint64(float64(rx) / secs),
			Tx: uint64(float64(tx) / secs),
		}
	}
	return table
}

// FormatUptime renders seconds as "H:MM" or "D days H:MM"
func FormatUptime(secs uint64) string {
	days := secs / 86400
	hours := (secs % 86400) / 3600
	mins := (secs % 3600) / 60
	if days > 0 {
		return fmt.Sprintf("%d days %d:%02d", days, hours, mins)
	}
	return fmt.Sprintf("%d:%02d", hours, mins)
}

func pickSensor(temps []host.TemperatureStat, keys []string) (float64, bool) {
	for _, key := range keys {
		for _, t := range temps {
			if t.Temperature <= 0 {
				continue
			}
			if strings.Contains(strings.ToLower(t.SensorKey), key) {
				return t.Temperature, true
			}
		}
	}
	return 0, false
}
