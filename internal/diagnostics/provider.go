package diagnostics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jaypipes/ghw"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"
)

// BuildFields lists the build and environment descriptors recorded in every
// report, in output order.
var BuildFields = []string{
	"GOOS",
	"GOARCH",
	"GO_VERSION",
	"NUM_CPU",
	"HOSTNAME",
	"PLATFORM",
	"PLATFORM_FAMILY",
	"PLATFORM_VERSION",
	"KERNEL_VERSION",
	"KERNEL_ARCH",
	"VIRTUALIZATION",
	"MANUFACTURER",
	"MODEL",
	"PRODUCT_FAMILY",
}

// AppInfo identifies the application. Empty fields are filled from the
// embedded build information.
type AppInfo struct {
	PackageName string
	VersionName string
	VersionCode string
}

var errUnknown = errors.New("value unknown on this platform")

// DefaultProvider reads metadata from the Go runtime, the embedded build
// information, gopsutil and ghw.
type DefaultProvider struct {
	app    AppInfo
	system *SystemMetricsCollector

	buildInfo func() (*debug.BuildInfo, bool)
	hostInfo  func(ctx context.Context) (*host.InfoStat, error)
	product   func() (*ghw.ProductInfo, error)
}

// NewDefaultProvider creates the production provider.
func NewDefaultProvider(app AppInfo) *DefaultProvider {
	return &DefaultProvider{
		app:       app,
		system:    NewSystemMetricsCollector(),
		buildInfo: debug.ReadBuildInfo,
		hostInfo:  host.InfoWithContext,
		product:   func() (*ghw.ProductInfo, error) { return ghw.Product() },
	}
}

// AppFields returns packageName, versionName and versionCode.
func (p *DefaultProvider) AppFields() []Field {
	info := sync.OnceValue(p.resolveApp)
	return []Field{
		{Key: "packageName", Read: func(context.Context) (string, error) { return info().PackageName, nil }},
		{Key: "versionName", Read: func(context.Context) (string, error) { return info().VersionName, nil }},
		{Key: "versionCode", Read: func(context.Context) (string, error) { return info().VersionCode, nil }},
	}
}

func (p *DefaultProvider) resolveApp() AppInfo {
	app := p.app
	bi, ok := p.buildInfo()
	if ok && bi != nil {
		if app.PackageName == "" {
			app.PackageName = bi.Main.Path
		}
		if app.VersionName == "" && bi.Main.Version != "(devel)" {
			app.VersionName = bi.Main.Version
		}
		if app.VersionCode == "" {
			app.VersionCode = buildSetting(bi, "vcs.revision")
		}
	}
	if app.PackageName == "" && len(os.Args) > 0 {
		app.PackageName = filepath.Base(os.Args[0])
	}
	return app
}

func buildSetting(bi *debug.BuildInfo, key string) string {
	for _, s := range bi.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

// BuildFields returns one field per entry of BuildFields.
func (p *DefaultProvider) BuildFields() []Field {
	var (
		hostOnce sync.Once
		hostStat *host.InfoStat
		hostErr  error
	)
	hostInfo := func(ctx context.Context) (*host.InfoStat, error) {
		hostOnce.Do(func() { hostStat, hostErr = p.hostInfo(ctx) })
		return hostStat, hostErr
	}
	product := sync.OnceValues(p.product)

	fromHost := func(get func(*host.InfoStat) string) func(context.Context) (string, error) {
		return func(ctx context.Context) (string, error) {
			h, err := hostInfo(ctx)
			if err != nil {
				return "", err
			}
			return get(h), nil
		}
	}
	fromProduct := func(get func(*ghw.ProductInfo) string) func(context.Context) (string, error) {
		return func(context.Context) (string, error) {
			info, err := product()
			if err != nil {
				return "", err
			}
			if info == nil {
				return "", errUnknown
			}
			v := get(info)
			if strings.EqualFold(v, "unknown") {
				return "", nil
			}
			return v, nil
		}
	}

	fields := make([]Field, 0, len(BuildFields))
	for _, name := range BuildFields {
		var read func(context.Context) (string, error)
		switch name {
		case "GOOS":
			read = constant(runtime.GOOS)
		case "GOARCH":
			read = constant(runtime.GOARCH)
		case "GO_VERSION":
			read = constant(runtime.Version())
		case "NUM_CPU":
			read = constant(strconv.Itoa(runtime.NumCPU()))
		case "HOSTNAME":
			read = func(context.Context) (string, error) { return os.Hostname() }
		case "PLATFORM":
			read = fromHost(func(h *host.InfoStat) string { return h.Platform })
		case "PLATFORM_FAMILY":
			read = fromHost(func(h *host.InfoStat) string { return h.PlatformFamily })
		case "PLATFORM_VERSION":
			read = fromHost(func(h *host.InfoStat) string { return h.PlatformVersion })
		case "KERNEL_VERSION":
			read = fromHost(func(h *host.InfoStat) string { return h.KernelVersion })
		case "KERNEL_ARCH":
			read = fromHost(func(h *host.InfoStat) string { return h.KernelArch })
		case "VIRTUALIZATION":
			read = fromHost(func(h *host.InfoStat) string {
				if h.VirtualizationSystem == "" {
					return ""
				}
				return h.VirtualizationSystem + "/" + h.VirtualizationRole
			})
		case "MANUFACTURER":
			read = fromProduct(func(pi *ghw.ProductInfo) string { return pi.Vendor })
		case "MODEL":
			read = fromProduct(func(pi *ghw.ProductInfo) string { return pi.Name })
		case "PRODUCT_FAMILY":
			read = fromProduct(func(pi *ghw.ProductInfo) string { return pi.Family })
		default:
			continue
		}
		fields = append(fields, Field{Key: name, Read: read})
	}
	return fields
}

// ProcessFields returns facts about the process with the given pid.
func (p *DefaultProvider) ProcessFields(pid int) []Field {
	var (
		once sync.Once
		proc *process.Process
		perr error
	)
	open := func(ctx context.Context) (*process.Process, error) {
		once.Do(func() {
			// #nosec G115 -- pids fit in int32 on every supported platform
			proc, perr = process.NewProcessWithContext(ctx, int32(pid))
		})
		return proc, perr
	}
	read := func(get func(context.Context, *process.Process) (string, error)) func(context.Context) (string, error) {
		return func(ctx context.Context) (string, error) {
			pr, err := open(ctx)
			if err != nil {
				return "", err
			}
			return get(ctx, pr)
		}
	}

	return []Field{
		{Key: "process.name", Read: read(func(ctx context.Context, pr *process.Process) (string, error) {
			return pr.NameWithContext(ctx)
		})},
		{Key: "process.exe", Read: read(func(ctx context.Context, pr *process.Process) (string, error) {
			return pr.ExeWithContext(ctx)
		})},
		{Key: "process.cmdline", Read: read(func(ctx context.Context, pr *process.Process) (string, error) {
			return pr.CmdlineWithContext(ctx)
		})},
		{Key: "process.cwd", Read: read(func(ctx context.Context, pr *process.Process) (string, error) {
			return pr.CwdWithContext(ctx)
		})},
		{Key: "process.ppid", Read: read(func(ctx context.Context, pr *process.Process) (string, error) {
			ppid, err := pr.PpidWithContext(ctx)
			return strconv.Itoa(int(ppid)), err
		})},
		{Key: "process.started", Read: read(func(ctx context.Context, pr *process.Process) (string, error) {
			ms, err := pr.CreateTimeWithContext(ctx)
			if err != nil {
				return "", err
			}
			return time.UnixMilli(ms).UTC().Format(time.RFC3339), nil
		})},
		{Key: "process.num_threads", Read: read(func(ctx context.Context, pr *process.Process) (string, error) {
			n, err := pr.NumThreadsWithContext(ctx)
			return strconv.Itoa(int(n)), err
		})},
		{Key: "process.rss_mb", Read: read(func(ctx context.Context, pr *process.Process) (string, error) {
			mi, err := pr.MemoryInfoWithContext(ctx)
			if err != nil {
				return "", err
			}
			return formatFloat(float64(mi.RSS) / 1024 / 1024), nil
		})},
	}
}

// SystemFields returns host-wide resource usage.
func (p *DefaultProvider) SystemFields() []Field {
	var once sync.Once
	var stats SystemMetrics
	load := func(ctx context.Context) SystemMetrics {
		once.Do(func() { stats = p.system.Collect(ctx) })
		return stats
	}
	field := func(key string, get func(SystemMetrics) string) Field {
		return Field{Key: key, Read: func(ctx context.Context) (string, error) {
			return get(load(ctx)), nil
		}}
	}

	return []Field{
		field("system.cpu_model", func(s SystemMetrics) string { return s.CPUModel }),
		field("system.cpu_cores", func(s SystemMetrics) string { return positiveInt(s.CPUCores) }),
		field("system.cpu_threads", func(s SystemMetrics) string { return positiveInt(s.CPUThreads) }),
		field("system.mem_total_mb", func(s SystemMetrics) string { return positiveFloat(s.MemTotalMB) }),
		field("system.mem_used_percent", func(s SystemMetrics) string { return positiveFloat(s.MemPercent) }),
		field("system.disk_total_gb", func(s SystemMetrics) string { return positiveFloat(s.DiskTotalGB) }),
		field("system.disk_used_percent", func(s SystemMetrics) string { return positiveFloat(s.DiskPercent) }),
		field("system.load_avg", func(s SystemMetrics) string {
			if s.LoadAvg1 == 0 && s.LoadAvg5 == 0 && s.LoadAvg15 == 0 {
				return ""
			}
			return formatFloat(s.LoadAvg1) + " " + formatFloat(s.LoadAvg5) + " " + formatFloat(s.LoadAvg15)
		}),
	}
}

func constant(v string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return v, nil }
}

func positiveFloat(v float64) string {
	if v <= 0 {
		return ""
	}
	return formatFloat(v)
}
