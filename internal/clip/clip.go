// Package clip copies crash reports to the clipboard.
package clip

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	atotto "github.com/atotto/clipboard"
	osc52 "github.com/aymanbagabas/go-osc52/v2"
	"golang.org/x/term"
)

// Method is the mechanism that made the content available.
type Method string

const (
	MethodNative Method = "native" // OS clipboard via github.com/atotto/clipboard
	MethodOSC52  Method = "osc52"  // terminal clipboard via an OSC52 escape sequence
	MethodFile   Method = "file"   // no clipboard; content saved to a temp file
)

// Result reports how WriteAll delivered the content.
type Result struct {
	Method   Method
	FilePath string // only set when Method == MethodFile
}

// These vars exist for testability.
var (
	nativeWriteAll = func(text string) error { return atotto.WriteAll(text) }
	osc52WriteAll  = writeAllOSC52
	tempDir        = os.TempDir
)

// WriteAll copies text, trying the native clipboard, then OSC52 (which works
// over SSH and in WSL), then a temp file.
func WriteAll(text string) (Result, error) {
	if err := nativeWriteAll(text); err == nil {
		return Result{Method: MethodNative}, nil
	}

	if err := osc52WriteAll(text); err == nil {
		return Result{Method: MethodOSC52}, nil
	}

	path, err := writeTempFile(text)
	if err != nil {
		return Result{}, err
	}
	return Result{Method: MethodFile, FilePath: path}, nil
}

// Terminals drop or truncate large OSC52 payloads.
const osc52LimitBytes = 100_000

var errNotTerminal = errors.New("stderr is not a terminal")

func writeAllOSC52(text string) error {
	if text == "" {
		return errors.New("empty clipboard text")
	}
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return errNotTerminal
	}
	if len(text) > osc52LimitBytes {
		return fmt.Errorf("text too large for OSC52 (%d bytes > %d)", len(text), osc52LimitBytes)
	}

	seq := osc52.New(text).Limit(osc52LimitBytes)
	switch {
	case os.Getenv("TMUX") != "":
		seq = seq.Tmux()
	case os.Getenv("STY") != "":
		seq = seq.Screen()
	}

	// stderr keeps the sequence out of redirected report output.
	_, err := seq.WriteTo(os.Stderr)
	return err
}

func writeTempFile(text string) (path string, err error) {
	f, err := os.CreateTemp(tempDir(), "crashguard-report-*.log")
	if err != nil {
		return "", err
	}
	path = f.Name()
	defer func() {
		_ = f.Close()
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	if _, err = f.WriteString(text); err != nil {
		return "", err
	}
	if err = f.Close(); err != nil {
		return "", err
	}
	return filepath.Clean(path), nil
}
