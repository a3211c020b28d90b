package diagnostics

import (
	"errors"
	"fmt"
)

var (
	// ErrNullFault is logged when a handler is invoked without a fault value.
	// The fault is delegated to the fallback handler.
	ErrNullFault = errors.New("no fault value to handle")

	// ErrStorageUnavailable is returned by Persist when the report directory
	// cannot take a write. No file is created in that case.
	ErrStorageUnavailable = errors.New("crash report storage unavailable")
)

// FieldError reports a metadata field that could not be read.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("reading metadata field %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// WriteError reports a failed report write.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing crash report %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
