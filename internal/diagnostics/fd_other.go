//go:build !linux && !darwin

package diagnostics

// CountFDs reports 0, 0: descriptor counting is only implemented for Linux
// and macOS.
func CountFDs() (open, limit int) {
	return 0, 0
}
