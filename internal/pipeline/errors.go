package pipeline

import (
	"errors"
	"fmt"

	"github.com/papapumpkin/osmpoi/internal/dataset"
)

// Sentinel errors for build scheduling.
var (
	// ErrDuplicateJob indicates a job for the same dataset name is already queued or running.
	ErrDuplicateJob = errors.New("duplicate job")
	// ErrDatasetExists indicates a finalized dataset with the same name is already present.
	ErrDatasetExists = errors.New("dataset already exists")
	// ErrSourceUnreadable indicates the source extract cannot be opened.
	ErrSourceUnreadable = errors.New("source unreadable")
	// ErrJobStarted indicates a cancel was requested for a job that is no longer queued.
	ErrJobStarted = errors.New("job already started")
	// ErrNotResumable indicates there is no intermediate file a build can resume from.
	ErrNotResumable = errors.New("build not resumable")
	// ErrStageFailed is matched by every *StageError.
	ErrStageFailed = errors.New("stage failed")
	// ErrClosed indicates the pipeline no longer accepts jobs.
	ErrClosed = errors.New("pipeline closed")
)

// StageError records the stage that aborted a build and the status code it returned.
type StageError struct {
	Stage dataset.Stage
	Code  int
}

// Error returns a human-readable description of the failure.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed with code %d", e.Stage, e.Code)
}

// Is reports whether target is ErrStageFailed.
func (e *StageError) Is(target error) bool {
	return target == ErrStageFailed
}
