// Package diagnostics captures unhandled faults of a long-running process and
// persists them as plain-text crash reports before the process exits.
//
// The package implements three main components:
//
//   - Registry: installs itself exactly once as the process-wide FaultHandler,
//     remembers the handler it replaced as the fallback, and drives the
//     capture, notice, grace period and exit sequence for the first fault.
//
//   - Collector: gathers metadata about the application, the host and the
//     running process. Every field is read on its own; a field that cannot be
//     read is skipped and blank values are recorded as NotSet.
//
//   - ReportWriter: renders a FaultRecord as key=value lines followed by the
//     exception chain, and writes it atomically to crash-<epoch-ms>.log.
//
// Goroutines opt in to capture with `defer diagnostics.Recover()` or by being
// started through Go / GoNamed. Configuration is loaded by the config package
// and converted with config.Config.ToCaptureConfig.
package diagnostics
