package diagnostics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchReports(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	found := make(chan ReportInfo, 4)
	errCh := make(chan error, 1)
	go func() {
		errCh <- WatchReports(ctx, dir, func(r ReportInfo) { found <- r })
	}()

	// The watcher registers asynchronously.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	w := NewReportWriter(nil, 0, nil)
	w.now = fixedClock(time.UnixMilli(42))
	path, err := w.Persist("report", dir)
	require.NoError(t, err)

	select {
	case r := <-found:
		assert.Equal(t, "crash-42.log", r.Name)
		assert.Equal(t, path, r.Path)
	case <-time.After(5 * time.Second):
		t.Fatal("report not observed")
	}

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchReports_MissingDir(t *testing.T) {
	err := WatchReports(t.Context(), filepath.Join(t.TempDir(), "missing"), func(ReportInfo) {})
	assert.Error(t, err)
}
