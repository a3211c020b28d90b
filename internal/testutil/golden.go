// Package testutil holds helpers shared by package tests.
package testutil

import (
	"flag"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var update = flag.Bool("update", false, "update golden files")

// Golden compares output against files under a testdata directory.
type Golden struct {
	t       *testing.T
	baseDir string
}

// NewGolden creates a new golden file helper.
func NewGolden(t *testing.T, baseDir string) *Golden {
	return &Golden{
		t:       t,
		baseDir: baseDir,
	}
}

// Assert compares actual output against the golden file name.golden.
// Run the tests with -update to rewrite it.
func (g *Golden) Assert(name string, actual []byte) {
	g.t.Helper()

	goldenPath := filepath.Join(g.baseDir, name+".golden")

	if *update {
		g.updateGolden(goldenPath, actual)
		return
	}

	expected, err := os.ReadFile(goldenPath)
	if err != nil {
		g.t.Fatalf("reading golden file %s: %v", goldenPath, err)
	}

	if string(actual) != string(expected) {
		g.t.Errorf("output mismatch for %s:\n--- expected ---\n%s\n--- actual ---\n%s",
			name, expected, actual)
	}
}

// AssertString compares string output against golden file.
func (g *Golden) AssertString(name, actual string) {
	g.Assert(name, []byte(actual))
}

func (g *Golden) updateGolden(path string, actual []byte) {
	g.t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		g.t.Fatalf("creating golden directory: %v", err)
	}
	if err := os.WriteFile(path, actual, 0o600); err != nil {
		g.t.Fatalf("writing golden file: %v", err)
	}
	g.t.Logf("updated golden file: %s", path)
}

// Normalize unifies line endings and strips trailing whitespace.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

var (
	timestampRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}[^\s]*`)
	uuidRe      = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	goroutineRe = regexp.MustCompile(`goroutine \d+`)
	offsetRe    = regexp.MustCompile(` \+0x[0-9a-f]+\)`)
	reportRe    = regexp.MustCompile(`crash-\d+\.log`)
)

// ScrubTimestamps replaces RFC 3339 timestamps.
func ScrubTimestamps(s string) string {
	return timestampRe.ReplaceAllString(s, "[TIMESTAMP]")
}

// ScrubUUIDs replaces UUIDs such as session ids.
func ScrubUUIDs(s string) string {
	return uuidRe.ReplaceAllString(s, "[UUID]")
}

// ScrubGoroutines replaces goroutine ids.
func ScrubGoroutines(s string) string {
	return goroutineRe.ReplaceAllString(s, "goroutine [ID]")
}

// ScrubOffsets removes the program counter offsets of stack frames.
func ScrubOffsets(s string) string {
	return offsetRe.ReplaceAllString(s, ")")
}

// ScrubReportNames replaces crash report file names.
func ScrubReportNames(s string) string {
	return reportRe.ReplaceAllString(s, "crash-[MS].log")
}

// ScrubPaths replaces basePath.
func ScrubPaths(s, basePath string) string {
	if basePath == "" {
		return s
	}
	return strings.ReplaceAll(s, basePath, "[WORKDIR]")
}

// ScrubReport applies every scrubber that affects crash report text.
func ScrubReport(s, basePath string) string {
	result := ScrubPaths(s, basePath)
	result = ScrubTimestamps(result)
	result = ScrubUUIDs(result)
	result = ScrubGoroutines(result)
	result = ScrubOffsets(result)
	result = ScrubReportNames(result)
	return Normalize(result)
}
