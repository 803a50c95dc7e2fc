// Package catalog lists the dataset files present in a root directory.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"

	"github.com/papapumpkin/osmpoi/internal/dataset"
)

// ErrScanFailed wraps any failure to read the root directory.
var ErrScanFailed = errors.New("scan failed")

// ErrInvalidPattern indicates an ignore pattern could not be compiled.
var ErrInvalidPattern = errors.New("invalid ignore pattern")

// DefaultIgnore hides dotfiles, which are used for in-flight imports.
var DefaultIgnore = []string{".*"}

// Catalog scans a root directory on demand. It holds no state between scans.
type Catalog struct {
	root   string
	ignore []glob.Glob
}

// New creates a catalog for root. Ignore patterns are matched against base
// names; when none are given DefaultIgnore applies.
func New(root string, ignore ...string) (*Catalog, error) {
	if len(ignore) == 0 {
		ignore = DefaultIgnore
	}
	compiled := make([]glob.Glob, 0, len(ignore))
	for _, p := range ignore {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, p, err)
		}
		compiled = append(compiled, g)
	}
	return &Catalog{root: root, ignore: compiled}, nil
}

// Root returns the scanned directory.
func (c *Catalog) Root() string {
	return c.root
}

// Scan lists the dataset files in the root in directory order. Directories,
// ignored names and files without a dataset extension are skipped.
func (c *Catalog) Scan() ([]dataset.Entry, error) {
	dirents, err := os.ReadDir(c.root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrScanFailed, c.root, err)
	}

	entries := make([]dataset.Entry, 0, len(dirents))
	for _, de := range dirents {
		if !de.Type().IsRegular() {
			continue
		}
		name := de.Name()
		if c.ignored(name) {
			continue
		}
		e, ok := dataset.NewEntry(filepath.Join(c.root, name))
		if !ok {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (c *Catalog) ignored(name string) bool {
	for _, g := range c.ignore {
		if g.Match(name) {
			return true
		}
	}
	return false
}
