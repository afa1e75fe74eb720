package vfs

import (
	"errors"
	"fmt"
)

// Error taxonomy for VFS operations. Every backend failure maps onto one of
// these sentinels, wrapped in a *PathError carrying the operation, backend
// instance and path. None of them are recoverable by the VFS itself.
var (
	// ErrNotFound indicates the path does not exist
	ErrNotFound = errors.New("path not found")
	// ErrPermission indicates the backend denied access
	ErrPermission = errors.New("permission denied")
	// ErrNotDir indicates a directory operation on a non-directory
	ErrNotDir = errors.New("not a directory")
	// ErrNotFile indicates a file operation on a non-file
	ErrNotFile = errors.New("not a file")
	// ErrUnsupported indicates the backend's capability set excludes the operation
	ErrUnsupported = errors.New("operation not supported by backend")
)

// PathError records an operation, the backend it ran against, the path it
// operated on, and the underlying cause.
type PathError struct {
	Op      string
	Backend string
	Path    string
	Err     error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Backend, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// newPathError wraps err for the given operation and path
func newPathError(op, backend, path string, err error) *PathError {
	return &PathError{Op: op, Backend: backend, Path: path, Err: err}
}

// IsNotFound reports whether err indicates a missing path
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnsupported reports whether err indicates an unsupported operation
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}
