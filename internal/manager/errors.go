package manager

import (
	"errors"
	"fmt"
)

// ErrAlreadyActive is returned by New when a Manager already lives in
// this process. Ownership is process-exclusive.
var ErrAlreadyActive = errors.New("a manager is already active in this process")

// ExitCodeError carries the process exit status for a fatal failure.
// main unwraps it after the best-effort shutdown has already run.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitCodeError) Unwrap() error { return e.Err }

// fatal wraps err with exit status 1.
func fatal(err error) error {
	return &ExitCodeError{Code: 1, Err: err}
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coded *ExitCodeError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return 1
}
