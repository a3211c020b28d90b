//go:build linux

package diagnostics

import (
	"os"
	"syscall"
)

// CountFDs returns the number of open file descriptors and the soft limit.
// Zero values mean the count is unavailable.
func CountFDs() (open, limit int) {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return 0, 0
	}
	// ReadDir holds one descriptor open on the directory itself.
	open = len(entries) - 1

	var rlim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rlim); err == nil {
		// #nosec G115 -- rlimit values are always within int range on supported platforms
		limit = int(rlim.Cur)
	}

	return open, limit
}
