package query

import (
	"errors"
	"strconv"
)

// Sentinel errors for query preconditions.
var (
	// ErrDatasetNotReady indicates the dataset is missing or not a finalized .poi file.
	ErrDatasetNotReady = errors.New("dataset not ready")
	// ErrInputUnreadable indicates the input CSV cannot be opened.
	ErrInputUnreadable = errors.New("input unreadable")
	// ErrOutputUnwritable indicates the output location cannot be written.
	ErrOutputUnwritable = errors.New("output unwritable")
	// ErrQueryEngineFailure is matched by every *EngineError.
	ErrQueryEngineFailure = errors.New("query engine failure")
)

// EngineError carries the non-zero status code returned by the query engine.
type EngineError struct {
	Code int
}

// Error returns the failure code.
func (e *EngineError) Error() string {
	return "query engine failed with code " + strconv.Itoa(e.Code)
}

// Is reports whether target is ErrQueryEngineFailure.
func (e *EngineError) Is(target error) bool {
	return target == ErrQueryEngineFailure
}
