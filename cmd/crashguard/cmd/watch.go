package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashguard/internal/diagnostics"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print new crash reports as they are written",
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir := reportDir()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(os.Stderr, mutedStyle.Render("watching "+dir+" (Ctrl+C to stop)"))
	return diagnostics.WatchReports(ctx, dir, func(r diagnostics.ReportInfo) {
		fmt.Fprintln(out, r.Path)
	})
}
