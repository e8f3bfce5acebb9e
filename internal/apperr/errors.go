// Package apperr defines the sentinel errors shared across service boundaries.
package apperr

import "errors"

var (
	// ErrNotFound: a directory metadata record or named entry is absent.
	ErrNotFound = errors.New("not found")
	// ErrUnsupported: a field was requested on an entry kind that does not carry it.
	ErrUnsupported = errors.New("unsupported for this entry kind")
	// ErrOutOfProject: a path is external or resolves outside the project root.
	ErrOutOfProject = errors.New("outside project root")
	// ErrConflict: a metadata record changed underneath an optimistic save.
	ErrConflict = errors.New("conflict")
)
