package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. CRASHGUARD_CAPTURE_DIR.
const EnvPrefix = "CRASHGUARD"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// NewLoaderWithViper creates a loader using an existing viper instance so
// CLI flags bound to it take precedence.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: EnvPrefix,
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads and validates configuration.
// Precedence (highest to lowest):
// 1. CLI flags (bound through viper.BindPFlag)
// 2. Environment variables (CRASHGUARD_*)
// 3. Project config (.crashguard.yaml in the current directory)
// 4. User config (~/.config/crashguard/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".crashguard")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if l.configFile == "" {
			if err := l.readUserConfig(); err != nil {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := NewValidator().Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// readUserConfig merges ~/.config/crashguard/config.yaml when no project
// config exists. viper searches a single config name, and the user file uses
// a different one.
func (l *Loader) readUserConfig() error {
	dir, err := UserConfigDir()
	if err != nil {
		return nil
	}
	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// UserConfigDir returns ~/.config/crashguard (or the platform equivalent).
func UserConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "crashguard"), nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	d := Default()

	l.v.SetDefault("log.level", d.Log.Level)
	l.v.SetDefault("log.format", d.Log.Format)

	l.v.SetDefault("capture.dir", d.Capture.Dir)
	l.v.SetDefault("capture.max_files", d.Capture.MaxFiles)
	l.v.SetDefault("capture.chain_to_fallback", d.Capture.ChainToFallback)
	l.v.SetDefault("capture.include_env", d.Capture.IncludeEnv)
	l.v.SetDefault("capture.runtime_crash_output", d.Capture.RuntimeCrashOutput)
	l.v.SetDefault("capture.collect_timeout", d.Capture.CollectTimeout)
	l.v.SetDefault("capture.monitor_interval", d.Capture.MonitorInterval)
	l.v.SetDefault("capture.min_free_bytes", d.Capture.MinFreeBytes)
	l.v.SetDefault("capture.notice", d.Capture.Notice)
	l.v.SetDefault("capture.limits.fd_percent", d.Capture.Limits.FDPercent)
	l.v.SetDefault("capture.limits.goroutines", d.Capture.Limits.Goroutines)
	l.v.SetDefault("capture.limits.heap_mb", d.Capture.Limits.HeapMB)
	l.v.SetDefault("capture.app.package_name", "")
	l.v.SetDefault("capture.app.version_name", "")
	l.v.SetDefault("capture.app.version_code", "")
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}
