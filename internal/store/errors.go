package store

import (
	"errors"

	"github.com/papapumpkin/osmpoi/internal/catalog"
)

// Sentinel errors for dataset store operations.
var (
	// ErrScanFailed indicates the root directory could not be listed.
	ErrScanFailed = catalog.ErrScanFailed
	// ErrDeleteFailed is matched by every *DeleteError.
	ErrDeleteFailed = errors.New("delete failed")
	// ErrUnsupportedSource indicates a file that is neither an extract nor a finalized dataset.
	ErrUnsupportedSource = errors.New("unsupported source file")
	// ErrBuildActive indicates the dataset is being built and cannot be replaced or removed.
	ErrBuildActive = errors.New("build in progress")
	// ErrNoBuilder indicates an extract was added to a store without a build pipeline.
	ErrNoBuilder = errors.New("no build pipeline configured")
	// ErrLoopClosed indicates work was posted to a closed loop.
	ErrLoopClosed = errors.New("loop closed")
)

// DeleteError records the file a delete could not remove.
type DeleteError struct {
	Path string
	Err  error
}

// Error returns the path and the underlying cause.
func (e *DeleteError) Error() string {
	return "delete " + e.Path + ": " + e.Err.Error()
}

// Unwrap returns the underlying error for use with errors.Is/As.
func (e *DeleteError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrDeleteFailed.
func (e *DeleteError) Is(target error) bool {
	return target == ErrDeleteFailed
}
