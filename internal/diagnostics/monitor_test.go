package diagnostics

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNewResourceMonitor_Defaults(t *testing.T) {
	monitor := NewResourceMonitor(0, 0, ResourceLimits{}, nil)

	if monitor.interval != time.Minute {
		t.Errorf("expected default interval 1m, got %v", monitor.interval)
	}
	if len(monitor.ring) != DefaultMonitorHistory {
		t.Errorf("expected history of %d, got %d", DefaultMonitorHistory, len(monitor.ring))
	}
}

func TestResourceMonitor_Sample(t *testing.T) {
	monitor := NewResourceMonitor(time.Second, 10, ResourceLimits{}, nil)

	s := monitor.Sample()

	if s.At.IsZero() {
		t.Error("expected non-zero timestamp")
	}
	if s.Goroutines <= 0 {
		t.Error("expected positive goroutine count")
	}
	if s.HeapMB <= 0 {
		t.Error("expected positive heap allocation")
	}
	if len(monitor.history()) != 0 {
		t.Error("Sample must not record")
	}
}

func TestResourceMonitor_HistoryKeepsNewestInOrder(t *testing.T) {
	monitor := NewResourceMonitor(time.Second, 3, ResourceLimits{}, nil)
	base := time.Unix(1000, 0)

	for i := range 5 {
		monitor.record(Sample{At: base.Add(time.Duration(i) * time.Second), Goroutines: i})
	}

	hist := monitor.history()
	if len(hist) != 3 {
		t.Fatalf("expected history of 3, got %d", len(hist))
	}
	for i, s := range hist {
		if s.Goroutines != i+2 {
			t.Errorf("history[%d]: expected goroutines %d, got %d", i, i+2, s.Goroutines)
		}
	}
}

func TestResourceMonitor_SummarizeWithoutHistory(t *testing.T) {
	monitor := NewResourceMonitor(time.Second, 3, ResourceLimits{}, nil)

	sum := monitor.Summarize(Sample{Goroutines: 7, HeapMB: 2})

	if sum.Samples != 0 || sum.Window != 0 || sum.GoroutineDelta != 0 {
		t.Errorf("expected empty history summary, got %+v", sum)
	}
	if sum.PeakGoroutines != 7 || sum.PeakHeapMB != 2 {
		t.Errorf("expected peaks from the current sample, got %+v", sum)
	}
}

func TestResourceMonitor_SummarizeTrend(t *testing.T) {
	monitor := NewResourceMonitor(time.Second, 10, ResourceLimits{Goroutines: 100}, nil)
	base := time.Unix(1000, 0)
	monitor.record(Sample{At: base, Goroutines: 10, HeapMB: 5, OpenFDs: 8})
	monitor.record(Sample{At: base.Add(time.Minute), Goroutines: 300, HeapMB: 50, OpenFDs: 20})

	sum := monitor.Summarize(Sample{At: base.Add(2 * time.Minute), Goroutines: 40, HeapMB: 12.5, OpenFDs: 30})

	if sum.Samples != 2 {
		t.Errorf("expected 2 samples, got %d", sum.Samples)
	}
	if sum.Window != 2*time.Minute {
		t.Errorf("expected 2m window, got %v", sum.Window)
	}
	if sum.GoroutineDelta != 30 || sum.FDDelta != 22 {
		t.Errorf("unexpected deltas: %+v", sum)
	}
	if sum.HeapDeltaMB != 7.5 {
		t.Errorf("expected heap delta 7.5, got %v", sum.HeapDeltaMB)
	}
	if sum.PeakGoroutines != 300 || sum.PeakHeapMB != 50 {
		t.Errorf("unexpected peaks: %+v", sum)
	}
	if len(sum.Exceeded) != 0 {
		t.Errorf("current sample is within limits, got %v", sum.Exceeded)
	}
}

func TestResourceLimits_Exceeded(t *testing.T) {
	limits := ResourceLimits{FDPercent: 50, Goroutines: 10, HeapMB: 100}

	got := limits.Exceeded(Sample{OpenFDs: 90, MaxFDs: 100, Goroutines: 11, HeapMB: 150})
	want := []string{"fds 90.0% > 50%", "goroutines 11 > 10", "heap 150.0MB > 100MB"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("expected %v, got %v", want, got)
	}

	if got := (ResourceLimits{}).Exceeded(Sample{OpenFDs: 99, MaxFDs: 100, Goroutines: 1 << 20, HeapMB: 1 << 20}); len(got) != 0 {
		t.Errorf("zero limits must not flag anything, got %v", got)
	}
	if got := limits.Exceeded(Sample{OpenFDs: 90}); len(got) != 0 {
		t.Errorf("unknown descriptor limit must not flag, got %v", got)
	}
}

func TestResourceMonitor_LogsWhenLimitIsCrossed(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	monitor := NewResourceMonitor(time.Second, 10, ResourceLimits{Goroutines: 5}, logger)

	monitor.record(Sample{Goroutines: 1})
	monitor.record(Sample{Goroutines: 10})
	monitor.record(Sample{Goroutines: 12})
	monitor.record(Sample{Goroutines: 1})
	monitor.record(Sample{Goroutines: 9})

	if n := strings.Count(buf.String(), "resource limit exceeded"); n != 2 {
		t.Errorf("expected one warning per crossing (2), got %d:\n%s", n, buf.String())
	}
}

func TestResourceMonitor_StartStop(t *testing.T) {
	monitor := NewResourceMonitor(20*time.Millisecond, 100, ResourceLimits{}, nil)
	monitor.Start(t.Context())

	deadline := time.Now().Add(2 * time.Second)
	for len(monitor.history()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(monitor.history()) == 0 {
		t.Fatal("expected at least one recorded sample")
	}

	monitor.Stop()
	monitor.Stop()

	// Allow one in-flight tick to finish.
	time.Sleep(40 * time.Millisecond)
	before := len(monitor.history())
	time.Sleep(100 * time.Millisecond)
	if after := len(monitor.history()); after != before {
		t.Errorf("samples recorded after Stop: before=%d, after=%d", before, after)
	}
}

func TestSystemMetricsCollector_Collect(t *testing.T) {
	t.Parallel()
	c := NewSystemMetricsCollector()
	m := c.Collect(t.Context())

	if m.MemPercent < 0 || m.MemPercent > 100 {
		t.Errorf("MemPercent out of range: %f", m.MemPercent)
	}
	if m.DiskPercent < 0 || m.DiskPercent > 100 {
		t.Errorf("DiskPercent out of range: %f", m.DiskPercent)
	}
}

func TestSystemMetricsCollector_CPUInfoCached(t *testing.T) {
	t.Parallel()
	c := NewSystemMetricsCollector()

	m1 := c.Collect(t.Context())
	m2 := c.Collect(t.Context())

	if m1.CPUModel != m2.CPUModel {
		t.Errorf("CPU model changed between calls: %q vs %q", m1.CPUModel, m2.CPUModel)
	}
	if m1.CPUCores != m2.CPUCores {
		t.Errorf("CPU cores changed between calls: %d vs %d", m1.CPUCores, m2.CPUCores)
	}
}
