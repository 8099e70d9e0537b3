package builder

import (
	"fmt"
)

// FatalError reports a malformed directive tree found while building: an
// unresolvable module name, a missing required artifact or a WRITE without
// an output target. It aborts the run.
type FatalError struct {
	Directive string
	Msg       string
	Err       error
}

func fatalf(directive string, format string, args ...any) *FatalError {
	return &FatalError{Directive: directive, Msg: fmt.Sprintf(format, args...)}
}

// Error implements the error interface for FatalError.
func (e *FatalError) Error() string {
	msg := e.Msg
	if e.Directive != "" {
		msg = fmt.Sprintf("%s: %s", e.Directive, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *FatalError) Unwrap() error {
	return e.Err
}

// OutputCollisionError is returned when a WRITE would replace an existing
// output without a force flag.
type OutputCollisionError struct {
	Path string
}

// Error implements the error interface for OutputCollisionError.
func (e *OutputCollisionError) Error() string {
	return fmt.Sprintf("output %s already exists (set force = true or pass --force to overwrite)", e.Path)
}
