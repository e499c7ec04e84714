// Package apperr holds the error taxonomy shared by the indexing pipeline and
// the query engine.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrUnknownExtension = errors.New("unknown extension")
	ErrInvalidFilter    = errors.New("invalid filter")
	ErrMissingDirectory = errors.New("directory does not exist")
)

// ParseError reports a decode failure for a single source file. It is logged
// and the file skipped; it never escapes the record builder.
type ParseError struct {
	Extension string
	Path      string
	Err       error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parse %s: %v", e.Extension, e.Err)
	}
	return fmt.Sprintf("parse %s (%s): %v", e.Path, e.Extension, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NotFoundError is returned by single-record fetches that match nothing.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Path)
}

// Is reports ErrNotFound so callers can use errors.Is without the concrete type.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// MissingDirectoryWarning is logged when the content root is absent. The tree
// is then treated as empty.
type MissingDirectoryWarning struct {
	Dir string
	Err error
}

func (e *MissingDirectoryWarning) Error() string {
	return fmt.Sprintf("%s does not exist: %v", e.Dir, e.Err)
}

func (e *MissingDirectoryWarning) Unwrap() error { return ErrMissingDirectory }

// FilterError wraps a malformed filter specification.
func FilterError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidFilter, fmt.Sprintf(format, args...))
}
