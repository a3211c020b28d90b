package diagnostics

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// MaxChainDepth caps the number of exceptions rendered for one fault.
const MaxChainDepth = 32

// Exception is one link of a fault's cause chain.
type Exception struct {
	Type    string
	Message string
	Frames  []string
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// BuildChain turns a fault value into its cause chain, originating exception
// first. stack is the goroutine trace captured at the fault and is attached to
// the first exception when the fault carries no trace of its own.
//
// Each node advances to its own cause. The walk stops at a nil cause, at a
// cause that equals the current node or any earlier node, or after
// MaxChainDepth nodes.
func BuildChain(fault any, stack []byte) []Exception {
	if fault == nil {
		return nil
	}

	first := Exception{
		Type:    fmt.Sprintf("%T", fault),
		Message: fmt.Sprint(fault),
	}

	err, ok := fault.(error)
	if !ok {
		first.Frames = ParseStack(stack)
		return []Exception{first}
	}

	first.Frames = errorFrames(err)
	if len(first.Frames) == 0 {
		first.Frames = ParseStack(stack)
	}

	chain := []Exception{first}
	visited := []error{err}
	for cur := err; len(visited) < MaxChainDepth; cur = visited[len(visited)-1] {
		next := unwrapOne(cur)
		if next == nil || seen(visited, next) {
			break
		}
		visited = append(visited, next)

		ex := Exception{
			Type:    fmt.Sprintf("%T", next),
			Message: fmt.Sprint(next),
			Frames:  errorFrames(next),
		}
		// Wrappers that add neither text nor frames are folded into the
		// previous link.
		if prev := chain[len(chain)-1]; ex.Message == prev.Message && len(ex.Frames) == 0 {
			continue
		}
		chain = append(chain, ex)
	}
	return chain
}

// unwrapOne returns the direct cause of err. A cause whose Unwrap panics,
// typically a method called on a typed nil pointer, ends the chain.
func unwrapOne(err error) (next error) {
	defer func() {
		if recover() != nil {
			next = nil
		}
	}()
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return u.Unwrap()
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if e != nil {
				return e
			}
		}
	}
	return nil
}

func seen(visited []error, err error) bool {
	for _, v := range visited {
		if sameError(v, err) {
			return true
		}
	}
	return false
}

// sameError compares two errors without panicking on uncomparable dynamic types.
func sameError(a, b error) (same bool) {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// errorFrames returns the frames recorded by github.com/pkg/errors, if any.
func errorFrames(err error) (frames []string) {
	defer func() {
		if recover() != nil {
			frames = nil
		}
	}()
	var st stackTracer
	if !errors.As(err, &st) {
		return nil
	}
	// errors.As may find a tracer deeper in the chain; only use it for the
	// node that carries it.
	if !sameError(err, st.(error)) {
		return nil
	}
	trace := st.StackTrace()
	frames = make([]string, 0, len(trace))
	for _, f := range trace {
		frames = append(frames, fmt.Sprintf("%n (%s:%d)", f, f, f))
	}
	return frames
}

// ParseStack converts runtime/debug.Stack output into one frame per call,
// formatted as "function (file:line +offset)". The goroutine header and the
// frames of debug.Stack itself are dropped.
func ParseStack(stack []byte) []string {
	lines := strings.Split(strings.TrimRight(string(stack), "\n"), "\n")
	var frames []string
	for i := 0; i < len(lines); i++ {
		fn := lines[i]
		if fn == "" || strings.HasPrefix(fn, "goroutine ") || strings.HasPrefix(fn, "\t") {
			continue
		}
		loc := ""
		if i+1 < len(lines) && strings.HasPrefix(lines[i+1], "\t") {
			loc = strings.TrimSpace(lines[i+1])
			i++
		}
		if strings.HasPrefix(fn, "runtime/debug.Stack(") {
			continue
		}
		if loc != "" {
			frames = append(frames, fn+" ("+loc+")")
		} else {
			frames = append(frames, fn)
		}
	}
	return frames
}
