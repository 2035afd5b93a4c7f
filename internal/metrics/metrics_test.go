package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/net"
)

func TestLabel(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{CPUUsage, "CPU"},
		{RAMUsage, "RAM %"},
		{NetworkDetails, "Network"},
		{WeatherTemp, "Temp"},
		{DayOfWeek, "Day"},
		{"my_counter", "my_counter"},
	}
	for _, tt := range tests {
		if got := Label(tt.id); got != tt.want {
			t.Errorf("Label(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name  string
		value Value
		want  string
	}{
		{"float", Float(42.26), "42.3"},
		{"int", Int(7), "7"},
		{"text", Text("12%"), "12%"},
		{"none", None{}, "---"},
		{"nil", nil, "---"},
		{"idle network", NetworkTable{"eth0": {}}, "Idle"},
		{"empty network", NetworkTable{}, "Idle"},
		{
			"sorted network skipping zero",
			NetworkTable{
				"wlan0": {Rx: 2048, Tx: 0},
				"eth0":  {Rx: 10, Tx: 3 * 1024 * 1024},
				"tun0":  {},
			},
			"eth0: ↓10B/s ↑3.0MB/s | wlan0: ↓2.0KB/s ↑0B/s",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.value); got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0B/s"},
		{1023, "1023B/s"},
		{1024, "1.0KB/s"},
		{1536, "1.5KB/s"},
		{5 * 1024 * 1024, "5.0MB/s"},
		{2 * 1024 * 1024 * 1024, "2.0GB/s"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatUptime(t *testing.T) {
	if got := FormatUptime(3*3600 + 5*60); got != "3:05" {
		t.Errorf("got %q", got)
	}
	if got := FormatUptime(2*86400 + 4*3600 + 30*60); got != "2 days 4:30" {
		t.Errorf("got %q", got)
	}
}

func TestStoreSnapshotIsCopy(t *testing.T) {
	s := NewStore()
	s.Set(map[string]Value{
		CPUUsage:       Text("5%"),
		NetworkDetails: NetworkTable{"eth0": {Rx: 1}},
	})

	snap := s.Snapshot()
	snap[CPUUsage] = Text("99%")
	snap[NetworkDetails].(NetworkTable)["eth0"] = Throughput{Rx: 500}

	again := s.Snapshot()
	if again[CPUUsage] != Text("5%") {
		t.Errorf("store value changed through snapshot: %v", again[CPUUsage])
	}
	if again[NetworkDetails].(NetworkTable)["eth0"].Rx != 1 {
		t.Error("network table shared between snapshot and store")
	}
	if s.Version() != 1 {
		t.Errorf("Version() = %d, want 1", s.Version())
	}
}

func TestSnapshotGetMissing(t *testing.T) {
	var snap Snapshot
	if _, ok := snap.Get(CPUUsage).(None); !ok {
		t.Error("missing metric should read as None")
	}
}

func TestNetworkRates(t *testing.T) {
	prev := map[string]net.IOCountersStat{
		"eth0":  {Name: "eth0", BytesRecv: 1000, BytesSent: 500},
		"wlan0": {Name: "wlan0", BytesRecv: 9000, BytesSent: 100},
	}
	curr := map[string]net.IOCountersStat{
		"eth0":  {Name: "eth0", BytesRecv: 5000, BytesSent: 2500},
		"wlan0": {Name: "wlan0", BytesRecv: 10, BytesSent: 100},
		"new0":  {Name: "new0", BytesRecv: 99},
	}

	got := NetworkRates(prev, curr, 2*time.Second)
	if got["eth0"] != (Throughput{Rx: 2000, Tx: 1000}) {
		t.Errorf("eth0 = %+v", got["eth0"])
	}
	if got["wlan0"] != (Throughput{}) {
		t.Errorf("counter reset should read as zero, got %+v", got["wlan0"])
	}
	if _, ok := got["new0"]; ok {
		t.Error("interface without a previous sample should be omitted")
	}
}

func TestCollectDayOfWeekAndUnknown(t *testing.T) {
	c := NewCollector(NewStore(), nil, time.Second)
	c.now = func() time.Time { return time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC) }

	got := c.Collect(context.Background(), []string{DayOfWeek, "custom_thing"})
	if got[DayOfWeek] != Text("Friday") {
		t.Errorf("day_of_week = %v, want Friday", got[DayOfWeek])
	}
	if _, ok := got["custom_thing"].(None); !ok {
		t.Errorf("custom metric = %v, want None", got["custom_thing"])
	}
	if len(got) != 2 {
		t.Errorf("collected %d ids, want only the 2 requested", len(got))
	}
}

func TestCollectAlwaysIncludesDayOfWeek(t *testing.T) {
	c := NewCollector(NewStore(), nil, time.Second)
	c.now = func() time.Time { return time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC) }

	got := c.Collect(context.Background(), []string{"custom_thing"})
	if got[DayOfWeek] != Text("Monday") {
		t.Errorf("day_of_week = %v, want Monday without being requested", got[DayOfWeek])
	}
	if len(got) != 2 {
		t.Errorf("collected %d ids, want 2", len(got))
	}
}

func TestCollectorRunStopsOnCancel(t *testing.T) {
	store := NewStore()
	c := NewCollector(store, []string{DayOfWeek}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for store.Version() < 2 {
		select {
		case <-deadline:
			t.Fatal("collector did not sample twice")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("collector did not stop")
	}
	if _, ok := store.Snapshot()[DayOfWeek].(Text); !ok {
		t.Error("day_of_week not stored")
	}
}
