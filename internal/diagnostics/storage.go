package diagnostics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

// DefaultMinFreeBytes is the free space a report directory must have.
const DefaultMinFreeBytes = 1 << 20

// StorageChecker reports whether a directory can take a crash report.
type StorageChecker interface {
	Available(dir string) error
}

// StorageCheckerFunc adapts a function to StorageChecker.
type StorageCheckerFunc func(dir string) error

// Available calls f(dir).
func (f StorageCheckerFunc) Available(dir string) error {
	return f(dir)
}

// partitions lists mounted filesystems; replaced in tests.
var partitions = disk.Partitions

// DiskChecker accepts a directory when its nearest existing ancestor is a
// writable directory on a read-write filesystem with at least MinFreeBytes
// free.
type DiskChecker struct {
	MinFreeBytes uint64
}

// Available implements StorageChecker. Failures wrap ErrStorageUnavailable.
func (c DiskChecker) Available(dir string) error {
	existing, err := nearestExisting(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	info, err := os.Stat(existing)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrStorageUnavailable, existing)
	}
	if mount, ok := readOnlyMount(existing); ok {
		return fmt.Errorf("%w: %s is on read-only filesystem %s", ErrStorageUnavailable, existing, mount)
	}
	if err := writable(existing); err != nil {
		return fmt.Errorf("%w: %s is not writable: %v", ErrStorageUnavailable, existing, err)
	}

	usage, err := disk.Usage(existing)
	if err != nil {
		return fmt.Errorf("%w: reading usage of %s: %v", ErrStorageUnavailable, existing, err)
	}
	if usage.Free < c.MinFreeBytes {
		return fmt.Errorf("%w: %s has %d bytes free, need %d",
			ErrStorageUnavailable, existing, usage.Free, c.MinFreeBytes)
	}
	return nil
}

// nearestExisting walks up from dir to the first path that exists.
func nearestExisting(dir string) (string, error) {
	path, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		_, err := os.Stat(path)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(path)
		if parent == path {
			return "", fmt.Errorf("no existing ancestor of %s", dir)
		}
		path = parent
	}
}

// readOnlyMount reports the mount point holding path when it is mounted
// read-only. A partition table that cannot be read is not an error.
func readOnlyMount(path string) (string, bool) {
	parts, err := partitions(true)
	if err != nil {
		return "", false
	}
	var best disk.PartitionStat
	for _, p := range parts {
		if withinDir(path, p.Mountpoint) && len(p.Mountpoint) > len(best.Mountpoint) {
			best = p
		}
	}
	if best.Mountpoint == "" {
		return "", false
	}
	return best.Mountpoint, slices.Contains(best.Opts, "ro")
}

func withinDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
