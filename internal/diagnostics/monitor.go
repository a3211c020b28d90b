package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// DefaultMonitorHistory is the number of samples kept before a fault.
const DefaultMonitorHistory = 60

// Sample is one reading of the process's own resource usage.
type Sample struct {
	At         time.Time
	Uptime     time.Duration
	Goroutines int
	HeapMB     float64
	StackMB    float64
	OpenFDs    int
	MaxFDs     int
	NumGC      uint32
}

// FDPercent returns open descriptors as a share of the soft limit, or 0 when
// the limit is unknown.
func (s Sample) FDPercent() float64 {
	if s.MaxFDs <= 0 {
		return 0
	}
	return float64(s.OpenFDs) / float64(s.MaxFDs) * 100
}

// ResourceLimits marks samples that are worth flagging in a report. A zero
// field disables its limit.
type ResourceLimits struct {
	FDPercent  float64
	Goroutines int
	HeapMB     float64
}

// Exceeded lists the limits s is over, e.g. "goroutines 12000 > 10000".
func (l ResourceLimits) Exceeded(s Sample) []string {
	var out []string
	if l.FDPercent > 0 && s.FDPercent() > l.FDPercent {
		out = append(out, fmt.Sprintf("fds %.1f%% > %.0f%%", s.FDPercent(), l.FDPercent))
	}
	if l.Goroutines > 0 && s.Goroutines > l.Goroutines {
		out = append(out, fmt.Sprintf("goroutines %d > %d", s.Goroutines, l.Goroutines))
	}
	if l.HeapMB > 0 && s.HeapMB > l.HeapMB {
		out = append(out, fmt.Sprintf("heap %.1fMB > %.0fMB", s.HeapMB, l.HeapMB))
	}
	return out
}

// Summary compares the process at the fault with the history leading up to
// it.
type Summary struct {
	Now     Sample
	Samples int
	Window  time.Duration

	GoroutineDelta int
	HeapDeltaMB    float64
	FDDelta        int
	PeakGoroutines int
	PeakHeapMB     float64

	Exceeded []string
}

// ResourceMonitor keeps a ring of recent samples so a report shows how the
// process got to the fault, not only where it ended.
type ResourceMonitor struct {
	interval time.Duration
	limits   ResourceLimits
	logger   *slog.Logger
	started  time.Time
	read     func() Sample

	mu   sync.Mutex
	ring []Sample
	next int
	full bool
	over bool

	stopOnce sync.Once
	stop     chan struct{}
}

// NewResourceMonitor creates a monitor sampling every interval and keeping
// the last size samples. Non-positive values select a one-minute interval
// and DefaultMonitorHistory.
func NewResourceMonitor(interval time.Duration, size int, limits ResourceLimits, logger *slog.Logger) *ResourceMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if size <= 0 {
		size = DefaultMonitorHistory
	}
	m := &ResourceMonitor{
		interval: interval,
		limits:   limits,
		logger:   logger,
		started:  time.Now(),
		ring:     make([]Sample, size),
		stop:     make(chan struct{}),
	}
	m.read = m.readSample
	return m
}

// Start samples in the background until ctx is done or Stop is called.
func (m *ResourceMonitor) Start(ctx context.Context) {
	go func() {
		m.record(m.Sample())

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.record(m.Sample())
			}
		}
	}()
}

// Stop ends sampling. Later calls do nothing.
func (m *ResourceMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Sample reads the current resource usage without recording it.
func (m *ResourceMonitor) Sample() Sample {
	return m.read()
}

func (m *ResourceMonitor) readSample() Sample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	open, limit := CountFDs()

	return Sample{
		At:         time.Now(),
		Uptime:     time.Since(m.started),
		Goroutines: runtime.NumGoroutine(),
		HeapMB:     float64(ms.HeapAlloc) / 1024 / 1024,
		StackMB:    float64(ms.StackInuse) / 1024 / 1024,
		OpenFDs:    open,
		MaxFDs:     limit,
		NumGC:      ms.NumGC,
	}
}

// record stores s, overwriting the oldest sample once the ring is full. A
// sample crossing a limit is logged when the previous one was within limits.
func (m *ResourceMonitor) record(s Sample) {
	exceeded := m.limits.Exceeded(s)

	m.mu.Lock()
	m.ring[m.next] = s
	m.next = (m.next + 1) % len(m.ring)
	if m.next == 0 {
		m.full = true
	}
	crossed := len(exceeded) > 0 && !m.over
	m.over = len(exceeded) > 0
	m.mu.Unlock()

	if crossed && m.logger != nil {
		m.logger.Warn("resource limit exceeded", "limits", exceeded)
	}
}

// history returns the recorded samples, oldest first.
func (m *ResourceMonitor) history() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.full {
		return append([]Sample(nil), m.ring[:m.next]...)
	}
	out := make([]Sample, 0, len(m.ring))
	out = append(out, m.ring[m.next:]...)
	return append(out, m.ring[:m.next]...)
}

// Summarize compares now with the recorded history. Deltas are measured from
// the oldest sample; peaks include now.
func (m *ResourceMonitor) Summarize(now Sample) Summary {
	sum := Summary{
		Now:            now,
		PeakGoroutines: now.Goroutines,
		PeakHeapMB:     now.HeapMB,
		Exceeded:       m.limits.Exceeded(now),
	}

	hist := m.history()
	sum.Samples = len(hist)
	if len(hist) == 0 {
		return sum
	}

	oldest := hist[0]
	sum.Window = now.At.Sub(oldest.At)
	sum.GoroutineDelta = now.Goroutines - oldest.Goroutines
	sum.HeapDeltaMB = now.HeapMB - oldest.HeapMB
	if now.OpenFDs > 0 && oldest.OpenFDs > 0 {
		sum.FDDelta = now.OpenFDs - oldest.OpenFDs
	}
	for _, s := range hist {
		sum.PeakGoroutines = max(sum.PeakGoroutines, s.Goroutines)
		sum.PeakHeapMB = max(sum.PeakHeapMB, s.HeapMB)
	}
	return sum
}
