package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashguard/internal/diagnostics"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored crash reports, newest first",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	dir := reportDir()

	reports, err := diagnostics.ListReports(dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if len(reports) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No crash reports in "+dir))
		return nil
	}

	fmt.Fprintln(out, renderReports(reports))
	fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%d report(s) in %s", len(reports), dir)))
	return nil
}

func renderReports(reports []diagnostics.ReportInfo) string {
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, []string{
			r.Name,
			r.Time.Local().Format(time.DateTime),
			formatSize(r.Size),
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("NAME", "TIME", "SIZE").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
