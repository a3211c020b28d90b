package diagnostics

import (
	"context"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemMetrics holds system-wide resource usage.
type SystemMetrics struct {
	// CPU
	CPUModel   string `json:"cpu_model" yaml:"cpu_model"`
	CPUCores   int    `json:"cpu_cores" yaml:"cpu_cores"`
	CPUThreads int    `json:"cpu_threads" yaml:"cpu_threads"`

	// Memory (in MB)
	MemTotalMB float64 `json:"mem_total_mb" yaml:"mem_total_mb"`
	MemUsedMB  float64 `json:"mem_used_mb" yaml:"mem_used_mb"`
	MemPercent float64 `json:"mem_percent" yaml:"mem_percent"`

	// Disk (in GB)
	DiskTotalGB float64 `json:"disk_total_gb" yaml:"disk_total_gb"`
	DiskUsedGB  float64 `json:"disk_used_gb" yaml:"disk_used_gb"`
	DiskPercent float64 `json:"disk_percent" yaml:"disk_percent"`

	// Load Average (Unix)
	LoadAvg1  float64 `json:"load_avg_1" yaml:"load_avg_1"`
	LoadAvg5  float64 `json:"load_avg_5" yaml:"load_avg_5"`
	LoadAvg15 float64 `json:"load_avg_15" yaml:"load_avg_15"`
}

// SystemMetricsCollector collects system-wide statistics.
// Hardware descriptors are read once and cached.
type SystemMetricsCollector struct {
	mu sync.Mutex

	infoCollected bool
	cpuModel      string
	cpuCores      int
	cpuThreads    int
}

// NewSystemMetricsCollector creates a new system metrics collector.
func NewSystemMetricsCollector() *SystemMetricsCollector {
	return &SystemMetricsCollector{}
}

// Collect gathers current system statistics. Sources that fail leave their
// fields at zero.
func (c *SystemMetricsCollector) Collect(ctx context.Context) SystemMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := SystemMetrics{}

	c.collectHardwareInfo(ctx, &stats)
	c.collectMemoryInfo(ctx, &stats)
	c.collectDiskInfo(ctx, &stats)
	c.collectLoadAvg(ctx, &stats)

	return stats
}

func (c *SystemMetricsCollector) collectMemoryInfo(ctx context.Context, stats *SystemMetrics) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return
	}

	stats.MemTotalMB = float64(vm.Total) / 1024 / 1024
	stats.MemUsedMB = float64(vm.Used) / 1024 / 1024
	stats.MemPercent = vm.UsedPercent
}

// collectDiskInfo reads disk usage for the root filesystem.
func (c *SystemMetricsCollector) collectDiskInfo(ctx context.Context, stats *SystemMetrics) {
	usage, err := disk.UsageWithContext(ctx, rootDiskPath())
	if err != nil {
		return
	}
	stats.DiskTotalGB = float64(usage.Total) / 1024 / 1024 / 1024
	stats.DiskUsedGB = float64(usage.Used) / 1024 / 1024 / 1024
	stats.DiskPercent = usage.UsedPercent
}

func (c *SystemMetricsCollector) collectLoadAvg(ctx context.Context, stats *SystemMetrics) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return
	}
	stats.LoadAvg1 = avg.Load1
	stats.LoadAvg5 = avg.Load5
	stats.LoadAvg15 = avg.Load15
}

func (c *SystemMetricsCollector) collectHardwareInfo(ctx context.Context, stats *SystemMetrics) {
	if !c.infoCollected {
		if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
			c.cpuModel = strings.TrimSpace(infos[0].ModelName)
		}
		if cores, err := cpu.CountsWithContext(ctx, false); err == nil && cores > 0 {
			c.cpuCores = cores
		}
		if threads, err := cpu.CountsWithContext(ctx, true); err == nil && threads > 0 {
			c.cpuThreads = threads
		}
		c.infoCollected = true
	}
	stats.CPUModel = c.cpuModel
	stats.CPUCores = c.cpuCores
	stats.CPUThreads = c.cpuThreads
}

func rootDiskPath() string {
	if runtime.GOOS == "windows" {
		drive := os.Getenv("SystemDrive")
		if drive == "" {
			drive = "C:"
		}
		return drive + "\\"
	}
	return "/"
}
