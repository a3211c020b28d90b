package diagnostics

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type selfCause struct{}

func (e *selfCause) Error() string { return "self" }
func (e *selfCause) Unwrap() error { return e }

type loopErr struct {
	msg  string
	next *loopErr
}

func (e *loopErr) Error() string { return e.msg }
func (e *loopErr) Unwrap() error {
	if e.next == nil {
		return nil
	}
	return e.next
}

type endless struct{ depth int }

func (e *endless) Error() string { return fmt.Sprintf("level %d", e.depth) }
func (e *endless) Unwrap() error { return &endless{depth: e.depth + 1} }

// sliceErr is not comparable.
type sliceErr []string

func (e sliceErr) Error() string { return strings.Join(e, ",") }
func (e sliceErr) Unwrap() error { return e }

type codeErr struct{ code int }

func (e *codeErr) Error() string { return fmt.Sprintf("code %d", e.code) }

type causeWrapper struct{ cause error }

func (e causeWrapper) Error() string { return "wrapped" }
func (e causeWrapper) Unwrap() error { return e.cause }

// panicUnwrap dereferences its receiver in Unwrap.
type panicUnwrap struct{ next error }

func (e *panicUnwrap) Error() string { return "unwrap" }
func (e *panicUnwrap) Unwrap() error { return e.next }

const sampleStack = `goroutine 7 [running]:
runtime/debug.Stack()
	/usr/lib/go/src/runtime/debug/stack.go:26 +0x5e
example.com/app.handler(...)
	/app/handler.go:12 +0x1d
main.main()
	/app/main.go:20 +0x25
`

func TestBuildChain_Nil(t *testing.T) {
	assert.Nil(t, BuildChain(nil, nil))
}

func TestBuildChain_NonErrorFault(t *testing.T) {
	chain := BuildChain("boom", []byte(sampleStack))

	require.Len(t, chain, 1)
	assert.Equal(t, "string", chain[0].Type)
	assert.Equal(t, "boom", chain[0].Message)
	assert.Equal(t, []string{
		"example.com/app.handler(...) (/app/handler.go:12 +0x1d)",
		"main.main() (/app/main.go:20 +0x25)",
	}, chain[0].Frames)
}

func TestBuildChain_TwoLevels(t *testing.T) {
	root := errors.New("file truncated")
	err := fmt.Errorf("loading profile: %w", root)

	chain := BuildChain(err, []byte(sampleStack))

	require.Len(t, chain, 2)
	assert.Equal(t, "*fmt.wrapError", chain[0].Type)
	assert.Equal(t, "loading profile: file truncated", chain[0].Message)
	assert.NotEmpty(t, chain[0].Frames)
	assert.Equal(t, "*errors.errorString", chain[1].Type)
	assert.Equal(t, "file truncated", chain[1].Message)
	assert.Empty(t, chain[1].Frames)
}

func TestBuildChain_EachNodeAdvancesToItsOwnCause(t *testing.T) {
	c := &loopErr{msg: "c"}
	b := &loopErr{msg: "b", next: c}
	a := &loopErr{msg: "a", next: b}

	chain := BuildChain(a, nil)

	require.Len(t, chain, 3)
	assert.Equal(t, "a", chain[0].Message)
	assert.Equal(t, "b", chain[1].Message)
	assert.Equal(t, "c", chain[2].Message)
}

func TestBuildChain_SelfCause(t *testing.T) {
	chain := BuildChain(&selfCause{}, nil)

	require.Len(t, chain, 1)
	assert.Equal(t, "self", chain[0].Message)
}

func TestBuildChain_Cycle(t *testing.T) {
	a := &loopErr{msg: "a"}
	b := &loopErr{msg: "b", next: a}
	a.next = b

	chain := BuildChain(a, nil)

	require.Len(t, chain, 2)
	assert.Equal(t, "a", chain[0].Message)
	assert.Equal(t, "b", chain[1].Message)
}

func TestBuildChain_DepthCapped(t *testing.T) {
	chain := BuildChain(&endless{}, nil)

	assert.Len(t, chain, MaxChainDepth)
	assert.Equal(t, fmt.Sprintf("level %d", MaxChainDepth-1), chain[len(chain)-1].Message)
}

func TestBuildChain_UncomparableCause(t *testing.T) {
	chain := BuildChain(sliceErr{"x"}, nil)

	// Uncomparable values cannot be matched, so only the depth cap stops the
	// walk; identical links are folded.
	require.Len(t, chain, 1)
	assert.Equal(t, "x", chain[0].Message)
}

func TestBuildChain_TypedNilCause(t *testing.T) {
	var cause *codeErr
	chain := BuildChain(causeWrapper{cause: cause}, nil)

	require.Len(t, chain, 2)
	assert.Equal(t, "wrapped", chain[0].Message)
	assert.Equal(t, "*diagnostics.codeErr", chain[1].Type)
	assert.Equal(t, "<nil>", chain[1].Message)
}

func TestBuildChain_PanickingUnwrapEndsChain(t *testing.T) {
	var cause *panicUnwrap
	chain := BuildChain(causeWrapper{cause: cause}, nil)

	require.Len(t, chain, 2)
	assert.Equal(t, "<nil>", chain[1].Message)
}

func TestBuildChain_JoinedErrors(t *testing.T) {
	err := errors.Join(errors.New("first"), errors.New("second"))

	chain := BuildChain(err, nil)

	require.Len(t, chain, 2)
	assert.Equal(t, "first", chain[1].Message)
}

func TestBuildChain_PkgErrorsFrames(t *testing.T) {
	err := pkgerrors.Wrap(pkgerrors.New("disk full"), "saving state")

	chain := BuildChain(err, []byte(sampleStack))

	require.Len(t, chain, 2)
	assert.Equal(t, "saving state: disk full", chain[0].Message)
	require.NotEmpty(t, chain[0].Frames)
	assert.Contains(t, chain[0].Frames[0], "TestBuildChain_PkgErrorsFrames")
	assert.Contains(t, chain[0].Frames[0], "chain_test.go")

	assert.Equal(t, "disk full", chain[1].Message)
	assert.NotEmpty(t, chain[1].Frames)
}

func TestParseStack(t *testing.T) {
	frames := ParseStack([]byte(sampleStack))

	assert.Equal(t, []string{
		"example.com/app.handler(...) (/app/handler.go:12 +0x1d)",
		"main.main() (/app/main.go:20 +0x25)",
	}, frames)
}

func TestParseStack_Empty(t *testing.T) {
	assert.Empty(t, ParseStack(nil))
}

func TestSameError(t *testing.T) {
	a := errors.New("a")

	assert.True(t, sameError(a, a))
	assert.False(t, sameError(a, errors.New("a")))
	assert.False(t, sameError(sliceErr{"a"}, sliceErr{"a"}))
}
