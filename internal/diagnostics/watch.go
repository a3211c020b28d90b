package diagnostics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchReports calls fn for every report that appears in dir until ctx is
// done. Reports are written through a rename, so both create and rename
// events are considered.
func WatchReports(ctx context.Context, dir string, fn func(ReportInfo)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	seen := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if !IsReportName(name) || seen[name] {
				continue
			}
			info, err := os.Stat(event.Name)
			if err != nil || info.IsDir() {
				continue
			}
			seen[name] = true
			fn(ReportInfo{
				Name:    name,
				Path:    event.Name,
				Time:    reportTime(name),
				Size:    info.Size(),
				ModTime: info.ModTime(),
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
}
