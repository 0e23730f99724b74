package o11y

import (
	"errors"
	"fmt"
)

// Warn marks err as a warning: a problem worth reporting that must not fail
// the caller. err stays reachable with errors.Is and errors.As.
func Warn(err error) error {
	if err == nil {
		return nil
	}
	return &wrapWarnError{
		msg:   err.Error(),
		err:   errWarning,
		cause: err,
	}
}

// Warnf is Warn over a formatted error, %w is honoured.
func Warnf(format string, args ...any) error {
	return Warn(fmt.Errorf(format, args...))
}

var errWarning = errors.New("")

// IsWarning returns true if any error in the chain is a warning.
func IsWarning(err error) bool {
	return errors.Is(err, errWarning)
}

type wrapWarnError struct {
	msg   string
	err   error
	cause error
}

func (e *wrapWarnError) Error() string {
	return e.msg
}

func (e *wrapWarnError) Unwrap() []error {
	return []error{e.err, e.cause}
}
