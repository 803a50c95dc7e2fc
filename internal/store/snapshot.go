package store

import "github.com/papapumpkin/osmpoi/internal/dataset"

// Snapshot is an immutable listing of the root directory.
type Snapshot struct {
	Version uint64
	Root    string
	Entries []dataset.Entry
}

// Ready returns only the finalized datasets, in listing order.
func (s *Snapshot) Ready() []dataset.Entry {
	var ready []dataset.Entry
	for _, e := range s.Entries {
		if e.IsReady() {
			ready = append(ready, e)
		}
	}
	return ready
}

// Lookup returns the entry with the given logical name. A finalized entry
// wins over an intermediate one during the finalize rename, and any dataset
// file wins over the raw extract it was built from.
func (s *Snapshot) Lookup(name string) (dataset.Entry, bool) {
	var found dataset.Entry
	best := -1
	for _, e := range s.Entries {
		if e.Name != name {
			continue
		}
		if r := lookupRank(e); r > best {
			found, best = e, r
		}
	}
	return found, best >= 0
}

func lookupRank(e dataset.Entry) int {
	switch {
	case e.IsReady():
		return 2
	case e.Stage == dataset.StageSource:
		return 0
	default:
		return 1
	}
}
