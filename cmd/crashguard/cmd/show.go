package cmd

import (
	"fmt"
	"os"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashguard/internal/clip"
	"github.com/hugo-lorenzo-mato/crashguard/internal/diagnostics"
)

var showCopy bool

var showCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Print a crash report",
	Long: `Show prints the newest crash report, or the report whose name best
matches the argument. Partial names such as a timestamp fragment work.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showCopy, "copy", false, "copy the report to the clipboard")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	query := ""
	if len(args) > 0 {
		query = args[0]
	}

	dir := reportDir()
	info, err := resolveReport(dir, query)
	if err != nil {
		return err
	}
	content, err := diagnostics.ReadReport(dir, info.Name)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), content)

	if showCopy {
		res, err := clip.WriteAll(content)
		if err != nil {
			return fmt.Errorf("copying report: %w", err)
		}
		if res.Method == clip.MethodFile {
			fmt.Fprintf(os.Stderr, "clipboard unavailable, report saved to %s\n", res.FilePath)
		} else {
			fmt.Fprintf(os.Stderr, "copied %s (%s)\n", info.Name, res.Method)
		}
	}
	return nil
}

// resolveReport picks the report for query: the newest one when query is
// empty, an exact name, or the best fuzzy match.
func resolveReport(dir, query string) (diagnostics.ReportInfo, error) {
	reports, err := diagnostics.ListReports(dir)
	if err != nil {
		return diagnostics.ReportInfo{}, err
	}
	if len(reports) == 0 {
		return diagnostics.ReportInfo{}, fmt.Errorf("no crash reports found in %s", dir)
	}
	if query == "" {
		return reports[0], nil
	}

	names := make([]string, len(reports))
	for i, r := range reports {
		if r.Name == query {
			return r, nil
		}
		names[i] = r.Name
	}

	matches := fuzzy.Find(query, names)
	if len(matches) == 0 {
		return diagnostics.ReportInfo{}, fmt.Errorf("no crash report matches %q", query)
	}
	return reports[matches[0].Index], nil
}
