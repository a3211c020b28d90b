package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashguard/internal/diagnostics"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the report directory can take a crash report",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	dir := reportDir()
	checker := diagnostics.DiskChecker{MinFreeBytes: cfg.Capture.MinFreeBytes}

	if err := checker.Available(dir); err != nil {
		fmt.Fprintf(out, "%s %s\n", errorStyle.Render("✗"), err)
		return err
	}
	fmt.Fprintf(out, "%s %s is writable\n", successStyle.Render("✓"), dir)
	return nil
}
