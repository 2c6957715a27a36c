package patcher

import (
	"errors"
	"fmt"
)

var (
	// ErrNoOp indicates the requested patch is already reflected; nothing was written.
	ErrNoOp = errors.New("patch already applied")
	// ErrPatchWrite indicates the computed patch could not be persisted.
	ErrPatchWrite = errors.New("site settings could not be written")
	// ErrAnchorNotFound indicates the source has no site_settings block to patch.
	ErrAnchorNotFound = errors.New("site settings anchor not found")
	// ErrNoCanonicalTenant indicates the matched server declares no tenant 1 to derive URLs from.
	ErrNoCanonicalTenant = errors.New("server declares no canonical tenant")
	// ErrBaseURLConflict indicates a derived base URL is already declared for another tenant.
	ErrBaseURLConflict = errors.New("derived base url already declared")
)

// WriteError reports a filesystem failure while persisting a patch.
type WriteError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrPatchWrite, e.Op, e.Path, e.Err)
}

// Unwrap exposes both ErrPatchWrite and the underlying cause.
func (e *WriteError) Unwrap() []error {
	return []error{ErrPatchWrite, e.Err}
}

// ErrInvalidEvent indicates a patch event is missing data required by its kind.
var ErrInvalidEvent = errors.New("invalid patch event")
