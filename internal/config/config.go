package config

import (
	"log/slog"
	"time"

	"github.com/hugo-lorenzo-mato/crashguard/internal/diagnostics"
)

// Config holds the complete crashguard configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// CaptureConfig configures crash capture.
type CaptureConfig struct {
	Dir                string `mapstructure:"dir" yaml:"dir"`
	MaxFiles           int    `mapstructure:"max_files" yaml:"max_files"`
	ChainToFallback    bool   `mapstructure:"chain_to_fallback" yaml:"chain_to_fallback"`
	IncludeEnv         bool   `mapstructure:"include_env" yaml:"include_env"`
	RuntimeCrashOutput bool   `mapstructure:"runtime_crash_output" yaml:"runtime_crash_output"`
	CollectTimeout     string `mapstructure:"collect_timeout" yaml:"collect_timeout"`
	MonitorInterval    string `mapstructure:"monitor_interval" yaml:"monitor_interval"`
	MinFreeBytes       uint64 `mapstructure:"min_free_bytes" yaml:"min_free_bytes"`
	Notice             string `mapstructure:"notice" yaml:"notice"`

	Limits LimitsConfig `mapstructure:"limits" yaml:"limits"`
	App    AppConfig    `mapstructure:"app" yaml:"app"`
}

// LimitsConfig sets the resource levels flagged in reports. Zero disables a
// limit.
type LimitsConfig struct {
	FDPercent  float64 `mapstructure:"fd_percent" yaml:"fd_percent"`
	Goroutines int     `mapstructure:"goroutines" yaml:"goroutines"`
	HeapMB     float64 `mapstructure:"heap_mb" yaml:"heap_mb"`
}

// AppConfig overrides the application identity recorded in reports.
type AppConfig struct {
	PackageName string `mapstructure:"package_name" yaml:"package_name,omitempty"`
	VersionName string `mapstructure:"version_name" yaml:"version_name,omitempty"`
	VersionCode string `mapstructure:"version_code" yaml:"version_code,omitempty"`
}

// ToCaptureConfig converts c to the diagnostics configuration. Durations are
// expected to have passed validation; unparsable values fall back to zero,
// which selects the diagnostics defaults.
func (c *Config) ToCaptureConfig(logger *slog.Logger) diagnostics.CaptureConfig {
	collectTimeout, _ := time.ParseDuration(c.Capture.CollectTimeout)
	monitorInterval, _ := time.ParseDuration(c.Capture.MonitorInterval)

	return diagnostics.CaptureConfig{
		Dir:                c.Capture.Dir,
		ChainToFallback:    c.Capture.ChainToFallback,
		MaxFiles:           c.Capture.MaxFiles,
		IncludeEnv:         c.Capture.IncludeEnv,
		MinFreeBytes:       c.Capture.MinFreeBytes,
		CollectTimeout:     collectTimeout,
		MonitorInterval:    monitorInterval,
		RuntimeCrashOutput: c.Capture.RuntimeCrashOutput,
		Limits: diagnostics.ResourceLimits{
			FDPercent:  c.Capture.Limits.FDPercent,
			Goroutines: c.Capture.Limits.Goroutines,
			HeapMB:     c.Capture.Limits.HeapMB,
		},
		App: diagnostics.AppInfo{
			PackageName: c.Capture.App.PackageName,
			VersionName: c.Capture.App.VersionName,
			VersionCode: c.Capture.App.VersionCode,
		},
		Notice: c.Capture.Notice,
		Logger: logger,
	}
}
