package store

import (
	"errors"
	"fmt"
)

// ErrSchemaMismatch indicates the database schema version doesn't match
// the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// PermissionError reports a database open failure with the operator
// pointed at the file or its containing directory, whichever exists.
type PermissionError struct {
	// Path is the database file when Directory is false, otherwise the
	// containing directory.
	Path      string
	Directory bool
	Err       error
}

func (e *PermissionError) Error() string {
	kind := "file"
	if e.Directory {
		kind = "directory"
	}
	return fmt.Sprintf("%v - make sure you have write permissions to %s %s", e.Err, kind, e.Path)
}

func (e *PermissionError) Unwrap() error { return e.Err }
