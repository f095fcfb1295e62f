package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrResourceLimit matches every *ResourceLimitError
	ErrResourceLimit = errors.New("resource limit exceeded")
	// ErrArchiveFormat matches every *FormatError
	ErrArchiveFormat = errors.New("unreadable archive")
)

// Resource limit kinds
const (
	LimitArchiveSize      = "archive_size"
	LimitEntryCount       = "entry_count"
	LimitPathDepth        = "path_depth"
	LimitUncompressedSize = "uncompressed_size"
)

// ResourceLimitError reports an archive that exceeds a configured ceiling.
// The caller may retry with a smaller input.
type ResourceLimitError struct {
	Kind   string
	Limit  int64
	Actual int64
	Path   string // offending entry, when applicable
}

func (e *ResourceLimitError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s limit exceeded at %s: %d > %d", e.Kind, e.Path, e.Actual, e.Limit)
	}
	return fmt.Sprintf("%s limit exceeded: %d > %d", e.Kind, e.Actual, e.Limit)
}

// Is reports whether target is ErrResourceLimit
func (e *ResourceLimitError) Is(target error) bool {
	return target == ErrResourceLimit
}

// FormatError wraps a decoder failure for a corrupt or unreadable archive
type FormatError struct {
	Name string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("archive %s: %v", e.Name, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrArchiveFormat
func (e *FormatError) Is(target error) bool {
	return target == ErrArchiveFormat
}
