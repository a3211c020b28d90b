//go:build unix

package diagnostics

import "golang.org/x/sys/unix"

// writable asks the kernel whether the process may create files in dir.
func writable(dir string) error {
	return unix.Access(dir, unix.W_OK)
}
