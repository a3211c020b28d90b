package diagnostics

import (
	"bytes"
	"runtime"
	"strconv"
)

// Thread identifies the goroutine a fault happened on.
type Thread struct {
	ID   int64
	Name string
}

func (t Thread) String() string {
	if t.Name != "" {
		return t.Name
	}
	if t.ID > 0 {
		return "goroutine " + strconv.FormatInt(t.ID, 10)
	}
	return "unknown"
}

// CurrentThread identifies the calling goroutine. The runtime has no public
// goroutine id, so it is read from the header of the goroutine's stack trace.
func CurrentThread() Thread {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return Thread{ID: parseGoroutineID(buf[:n])}
}

// parseGoroutineID extracts N from a "goroutine N [status]:" header.
func parseGoroutineID(stack []byte) int64 {
	rest, ok := bytes.CutPrefix(stack, []byte("goroutine "))
	if !ok {
		return 0
	}
	end := bytes.IndexByte(rest, ' ')
	if end < 0 {
		return 0
	}
	id, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
