package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashguard/internal/diagnostics"
)

var demoChain bool

// demoExit terminates the process after the demo fault.
var demoExit = os.Exit

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Install the fault handler and crash on purpose",
	Long: `Demo installs the fault handler, then panics on a worker goroutine with a
two-level cause chain. A report is written and the process exits with
status 1.

With --chain a handler is registered before install and receives the fault
after the report is written.`,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().BoolVar(&demoChain, "chain", false, "chain to a previously installed handler")
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, _ []string) error {
	if demoChain {
		diagnostics.SetDefaultHandler(diagnostics.FaultHandlerFunc(func(t diagnostics.Thread, fault any) {
			fmt.Fprintf(os.Stderr, "previous handler received fault on %s: %v\n", t, fault)
		}))
	}

	// exited is only reached when demoExit returns, which os.Exit never does.
	exited := make(chan int, 1)

	cc := cfg.ToCaptureConfig(logger.Logger)
	cc.ChainToFallback = demoChain
	cc.Exit = func(code int) {
		demoExit(code)
		exited <- code
	}
	reg := diagnostics.Init(cc)

	fmt.Fprintf(cmd.OutOrStdout(), "crashing on purpose, report goes to %s\n", reg.Config().Dir)

	diagnostics.GoNamed("demo-worker", func() {
		if err := loadProfile(); err != nil {
			panic(err)
		}
	})

	select {
	case code := <-exited:
		return fmt.Errorf("demo fault handled, exit status %d", code)
	case <-time.After(diagnostics.GracePeriod + 10*time.Second):
		return errors.New("fault handler did not terminate the process")
	}
}

func loadProfile() error {
	return pkgerrors.Wrap(readProfile(), "loading profile")
}

func readProfile() error {
	return pkgerrors.New("profile file truncated")
}
