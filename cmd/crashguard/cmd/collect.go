package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/crashguard/internal/diagnostics"
)

var collectFormat string

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Print the metadata a crash report would record now",
	Long: `Collect runs the metadata collector against the current process and
prints the result in report order.`,
	RunE: runCollect,
}

func init() {
	collectCmd.Flags().StringVar(&collectFormat, "format", "text", "output format (text, yaml)")
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, _ []string) error {
	cc := cfg.ToCaptureConfig(logger.Logger)
	monitor := diagnostics.NewResourceMonitor(time.Minute, 1, cc.Limits, logger.Logger)
	collector := diagnostics.NewCollector(
		diagnostics.NewDefaultProvider(cc.App),
		monitor,
		cc.IncludeEnv,
		cc.CollectTimeout,
		logger.Logger,
	)

	md := collector.Collect(cmd.Context(), os.Getpid())
	return writeMetadata(cmd.OutOrStdout(), md, collectFormat)
}

func writeMetadata(w io.Writer, md *diagnostics.Metadata, format string) error {
	switch format {
	case "text", "":
		var err error
		md.Each(func(key, value string) {
			if err == nil {
				_, err = fmt.Fprintf(w, "%s=%s\n", key, value)
			}
		})
		return err
	case "yaml":
		// A mapping node keeps insertion order.
		node := &yaml.Node{Kind: yaml.MappingNode}
		md.Each(func(key, value string) {
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: key},
				&yaml.Node{Kind: yaml.ScalarNode, Value: value, Style: yaml.DoubleQuotedStyle},
			)
		})
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(node); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (use text or yaml)", format)
	}
}
