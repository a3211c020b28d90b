package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/crashguard/internal/config"
	"github.com/hugo-lorenzo-mato/crashguard/internal/logging"
)

var (
	cfgFile    string
	logLevel   string
	logFormat  string
	captureDir string

	// Loaded by PersistentPreRunE.
	cfg    *config.Config
	logger *logging.Logger

	// Version info - set via SetVersion()
	appVersion string
	appCommit  string
	appDate    string
)

var rootCmd = &cobra.Command{
	Use:   "crashguard",
	Short: "Capture and inspect crash reports of Go processes",
	Long: `crashguard installs a process-wide fault handler that writes a crash
report with process and environment metadata before the process exits.

The commands below inspect the report directory, show what would be
recorded, and run an end-to-end demonstration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initConfig()
	},
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

// SetVersion records build information for the version command and reports.
func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// GetVersion returns the application version string.
func GetVersion() string {
	return appVersion
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: .crashguard.yaml, then ~/.config/crashguard/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto",
		"log format (auto, text, json)")
	rootCmd.PersistentFlags().StringVar(&captureDir, "dir", "",
		"crash report directory (default from config)")

	// Bind flags to viper (errors are nil when flag exists)
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("capture.dir", rootCmd.PersistentFlags().Lookup("dir"))
}

func initConfig() error {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}

	loaded, err := loader.Load()
	if err != nil {
		return err
	}
	cfg = loaded

	logger = logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
	if used := loader.ConfigFile(); used != "" {
		logger.Debug("config loaded", "file", used)
	}
	return nil
}

// reportDir returns the configured report directory.
func reportDir() string {
	return cfg.Capture.Dir
}
