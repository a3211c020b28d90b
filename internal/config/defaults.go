package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/crashguard/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/crashguard/internal/fsutil"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Capture: CaptureConfig{
			Dir:             diagnostics.DefaultCaptureDir(),
			MaxFiles:        diagnostics.DefaultMaxFiles,
			CollectTimeout:  diagnostics.DefaultCollectTimeout.String(),
			MonitorInterval: "0s",
			MinFreeBytes:    diagnostics.DefaultMinFreeBytes,
			Notice:          diagnostics.DefaultNotice,
			Limits: LimitsConfig{
				FDPercent:  80,
				Goroutines: 10000,
			},
		},
	}
}

const defaultHeader = `# crashguard configuration
#
# Every key can be overridden with an environment variable, for example
# CRASHGUARD_CAPTURE_DIR=/var/crash. Durations use Go syntax (2s, 500ms).

`

// DefaultYAML renders the built-in configuration as a YAML document.
func DefaultYAML() ([]byte, error) {
	cfg := Default()
	body, err := yaml.Marshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding default config: %w", err)
	}
	return append([]byte(defaultHeader), body...), nil
}

// WriteDefault writes the default configuration to path atomically.
func WriteDefault(path string) error {
	data, err := DefaultYAML()
	if err != nil {
		return err
	}
	if err := fsutil.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}
