package vpath

import (
	"errors"
	"io/fs"
)

var (
	// ErrNotExist is returned when the target of an operation does not exist.
	// Re-exported from io/fs so callers can match with errors.Is.
	ErrNotExist = fs.ErrNotExist

	// ErrExist is returned when a creation or rename conflicts with an
	// existing entry.
	ErrExist = fs.ErrExist

	// ErrPermission is returned when the backend denies access.
	ErrPermission = fs.ErrPermission

	// ErrUnsupported is returned when an operation is structurally
	// disallowed for the backend or path kind, e.g. directory rename on
	// object storage. It is raised before any network call is issued.
	ErrUnsupported = errors.New("operation not supported")

	// ErrInvalidPath is returned for malformed path strings at
	// construction or navigation time.
	ErrInvalidPath = errors.New("invalid path")

	// ErrNotEmpty is returned by Rmdir when the directory still contains
	// entries.
	ErrNotEmpty = errors.New("directory not empty")
)
