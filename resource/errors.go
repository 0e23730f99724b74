package resource

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTimeout is matched by a StartError when the server did not become ready in time.
	ErrTimeout = errors.New("timed out waiting for the server to become ready")
	// ErrExited is matched by a StartError when the server exited before becoming ready.
	ErrExited = errors.New("server exited before becoming ready")
	// ErrState is returned when an operation is not valid in the current state.
	ErrState = errors.New("invalid state")
)

// InitError is returned when the working directory or the data could not be set up.
type InitError struct {
	Kind string
	// Output is whatever the initialisation tool wrote, when it ran at all.
	Output string
	Err    error
}

func (e *InitError) Error() string {
	return withOutput(fmt.Sprintf("%s: failed to initialize: %v", e.Kind, e.Err), e.Output)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// StartError is returned when the server could not be spawned, or did not become ready.
type StartError struct {
	Kind string
	// Output is the tail of the server output, when it ran at all.
	Output string
	Err    error
}

func (e *StartError) Error() string {
	return withOutput(fmt.Sprintf("%s: failed to launch: %v", e.Kind, e.Err), e.Output)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

func withOutput(msg, output string) string {
	output = strings.TrimSpace(output)
	if output == "" {
		return msg
	}
	return msg + "\n*** output ***\n" + output
}
