//go:build !windows

package fsutil

import (
	"os"

	"github.com/google/renameio/v2"
)

// WriteFileAtomic writes data through a temp file renamed over path, so a
// reader never sees a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(path, data, perm)
}
