package diagnostics

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/crashguard/internal/fsutil"
)

const (
	reportPrefix = "crash-"
	reportSuffix = ".log"

	// DefaultMaxFiles is the number of reports kept in a directory.
	DefaultMaxFiles = 10
)

// FaultRecord is the snapshot of one fault. It is built once and not
// modified afterwards.
type FaultRecord struct {
	Timestamp time.Time
	Thread    Thread
	Chain     []Exception
	Metadata  *Metadata
}

// NewFaultRecord builds the record for fault raised on t. stack is the
// goroutine trace captured at the fault.
func NewFaultRecord(t Thread, fault any, stack []byte, md *Metadata) *FaultRecord {
	if md == nil {
		md = NewMetadata()
	}
	return &FaultRecord{
		Timestamp: time.Now(),
		Thread:    t,
		Chain:     BuildChain(fault, stack),
		Metadata:  md,
	}
}

// lineBreaks escapes line breaks so every metadata pair stays on one line.
var lineBreaks = strings.NewReplacer("\n", `\n`, "\r", `\r`)

// Format renders rec as text: time and thread, the metadata as key=value
// lines in insertion order, a blank line, then one section per exception of
// the chain. Sections after the first start with "Caused by: ". Line breaks
// inside metadata keys and values are written as \n and \r.
func Format(rec *FaultRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "time=%s\n", rec.Timestamp.Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "thread=%s\n", rec.Thread)
	rec.Metadata.Each(func(key, value string) {
		b.WriteString(lineBreaks.Replace(key))
		b.WriteByte('=')
		b.WriteString(lineBreaks.Replace(value))
		b.WriteByte('\n')
	})
	b.WriteByte('\n')

	for i, ex := range rec.Chain {
		if i > 0 {
			b.WriteString("Caused by: ")
		}
		b.WriteString(ex.Type)
		if ex.Message != "" {
			b.WriteString(": ")
			b.WriteString(ex.Message)
		}
		b.WriteByte('\n')
		for _, frame := range ex.Frames {
			b.WriteString("\tat ")
			b.WriteString(frame)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// ReportName returns the file name of a report written at t.
func ReportName(t time.Time) string {
	return reportPrefix + strconv.FormatInt(t.UnixMilli(), 10) + reportSuffix
}

// IsReportName reports whether name matches crash-<epoch-ms>.log.
func IsReportName(name string) bool {
	ms, ok := strings.CutPrefix(name, reportPrefix)
	if !ok {
		return false
	}
	ms, ok = strings.CutSuffix(ms, reportSuffix)
	if !ok || ms == "" {
		return false
	}
	_, err := strconv.ParseInt(ms, 10, 64)
	return err == nil
}

// ReportWriter persists formatted reports.
type ReportWriter struct {
	checker  StorageChecker
	maxFiles int
	logger   *slog.Logger
	now      func() time.Time

	mu sync.Mutex // Protects file operations
}

// NewReportWriter creates a writer. A nil checker accepts every directory;
// maxFiles <= 0 selects DefaultMaxFiles.
func NewReportWriter(checker StorageChecker, maxFiles int, logger *slog.Logger) *ReportWriter {
	if checker == nil {
		checker = StorageCheckerFunc(func(string) error { return nil })
	}
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	return &ReportWriter{
		checker:  checker,
		maxFiles: maxFiles,
		logger:   logger,
		now:      time.Now,
	}
}

// Persist writes content to dir/crash-<epoch-ms>.log and returns the path.
//
// The storage check runs first; when it fails the error wraps
// ErrStorageUnavailable and nothing is written. The directory is created
// with its parents. If a report with the same millisecond exists, the next
// free millisecond is used. The write is atomic and no file handle outlives
// the call. Reports beyond the retention limit are removed afterwards.
func (w *ReportWriter) Persist(content, dir string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checker.Available(dir); err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", &WriteError{Path: dir, Err: fmt.Errorf("creating report dir: %w", err)}
	}

	path, err := w.freePath(dir)
	if err != nil {
		return "", &WriteError{Path: dir, Err: err}
	}

	if err := fsutil.WriteFileAtomic(path, []byte(content), 0o600); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}

	if err := w.cleanupOldReports(dir, path); err != nil && w.logger != nil {
		w.logger.Warn("crash report retention skipped", "dir", dir, "error", err)
	}

	return path, nil
}

func (w *ReportWriter) freePath(dir string) (string, error) {
	t := w.now()
	for range 1000 {
		path := filepath.Join(dir, ReportName(t))
		_, err := os.Lstat(path)
		if os.IsNotExist(err) {
			return path, nil
		}
		if err != nil {
			return "", err
		}
		t = t.Add(time.Millisecond)
	}
	return "", fmt.Errorf("no free report name in %s", dir)
}

// cleanupOldReports removes the oldest reports beyond maxFiles. The report at
// keep is never removed and counts toward the limit, even when other names
// carry a later timestamp.
func (w *ReportWriter) cleanupOldReports(dir, keep string) error {
	reports, err := ListReports(dir)
	if err != nil {
		return err
	}

	kept := 1
	// ListReports is newest first.
	for _, r := range reports {
		if r.Path == keep {
			continue
		}
		if kept < w.maxFiles {
			kept++
			continue
		}
		if err := os.Remove(r.Path); err != nil && w.logger != nil {
			w.logger.Warn("failed to remove old crash report",
				"path", r.Path,
				"error", err,
			)
		}
	}
	return nil
}

// ReportInfo describes a stored report.
type ReportInfo struct {
	Name    string
	Path    string
	Time    time.Time // taken from the file name
	Size    int64
	ModTime time.Time
}

// ListReports returns the reports in dir, newest first.
func ListReports(dir string) ([]ReportInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading report dir: %w", err)
	}

	var reports []ReportInfo
	for _, e := range entries {
		if e.IsDir() || !IsReportName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		reports = append(reports, ReportInfo{
			Name:    e.Name(),
			Path:    filepath.Join(dir, e.Name()),
			Time:    reportTime(e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Time.After(reports[j].Time)
	})
	return reports, nil
}

func reportTime(name string) time.Time {
	ms := strings.TrimSuffix(strings.TrimPrefix(name, reportPrefix), reportSuffix)
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(n)
}

// ReadReport returns the content of the report called name in dir.
func ReadReport(dir, name string) (string, error) {
	if !IsReportName(name) || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid report name %q", name)
	}
	data, err := fsutil.ReadFileScoped(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("reading crash report: %w", err)
	}
	return string(data), nil
}

// LoadLatestReport returns the newest report in dir.
func LoadLatestReport(dir string) (ReportInfo, string, error) {
	reports, err := ListReports(dir)
	if err != nil {
		return ReportInfo{}, "", err
	}
	if len(reports) == 0 {
		return ReportInfo{}, "", fmt.Errorf("no crash reports found in %s", dir)
	}
	content, err := ReadReport(dir, reports[0].Name)
	if err != nil {
		return ReportInfo{}, "", err
	}
	return reports[0], content, nil
}
