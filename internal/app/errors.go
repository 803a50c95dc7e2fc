package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/papapumpkin/osmpoi/internal/store"
)

var (
	// ErrNotFound indicates no dataset or job with the given name or ID.
	ErrNotFound = errors.New("not found")
	// ErrInvalidName indicates a dataset name that is not a plain file name.
	ErrInvalidName = errors.New("invalid dataset name")
	// ErrBuildActive indicates the dataset has a queued or running build.
	ErrBuildActive = store.ErrBuildActive
)

// checkName rejects names that would resolve outside the dataset directory.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
