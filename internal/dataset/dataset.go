// Package dataset defines the on-disk model of a POI dataset. The build stage
// of a dataset is encoded entirely in its file extension, so the state of every
// dataset can be recovered from a directory listing after a restart.
package dataset

import (
	"os"
	"path/filepath"
	"strings"
)

// Stage is a step in the lifecycle of a dataset.
type Stage int

const (
	StageSource           Stage = iota // Raw .osm.pbf extract
	StageDumping                       // Raw objects being dumped into the work file
	StageParsingWays                   // Way geometry being resolved
	StageParsingRelations              // Relation geometry being resolved
	StageRefining                      // POI table being refined
	StageReady                         // Finalized, queryable
	StageFailed                        // Intermediate file with no build behind it
)

// ReadyExt is the extension reserved for finalized datasets.
const ReadyExt = ".poi"

// SourceExt is the canonical extension of raw OpenStreetMap extracts.
const SourceExt = ".osm.pbf"

var stageNames = map[Stage]string{
	StageSource:           "source",
	StageDumping:          "dumping",
	StageParsingWays:      "parsing-ways",
	StageParsingRelations: "parsing-relations",
	StageRefining:         "refining",
	StageReady:            "ready",
	StageFailed:           "failed",
}

// stageExts maps the stages that have their own file extension. StageFailed
// has none: it is derived from an intermediate file nobody is building.
var stageExts = map[Stage]string{
	StageSource:           SourceExt,
	StageDumping:          ".poidumping",
	StageParsingWays:      ".poiparsingways",
	StageParsingRelations: ".poiparsingrelations",
	StageRefining:         ".poirefining",
	StageReady:            ReadyExt,
}

// sourceSuffixes are stripped, longest first, when deriving a logical name
// from an externally supplied extract.
var sourceSuffixes = []string{".osm.pbf", ".pbf", ".osm"}

// String returns the lowercase stage name.
func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// Ext returns the file extension for the stage, or "" for StageFailed.
func (s Stage) Ext() string {
	return stageExts[s]
}

// Intermediate reports whether the stage denotes an unfinished build.
func (s Stage) Intermediate() bool {
	return s >= StageDumping && s <= StageRefining
}

// Next returns the stage that follows s in the build sequence. Ready and
// Failed are terminal and return themselves.
func (s Stage) Next() Stage {
	if s >= StageReady {
		return s
	}
	return s + 1
}

// ParseStage determines the stage encoded in a file name.
func ParseStage(filename string) (Stage, bool) {
	base := filepath.Base(filename)
	if strings.HasSuffix(base, SourceExt) {
		return StageSource, true
	}
	ext := filepath.Ext(base)
	for stage, e := range stageExts {
		if stage != StageSource && e == ext {
			return stage, true
		}
	}
	return 0, false
}

// LogicalName returns the dataset name of a path: the base name with any
// source or stage extension removed. "city.osm.pbf" and "city.poi" both
// yield "city".
func LogicalName(path string) string {
	base := filepath.Base(path)
	for _, suffix := range sourceSuffixes {
		if strings.HasSuffix(base, suffix) && len(base) > len(suffix) {
			return strings.TrimSuffix(base, suffix)
		}
	}
	if stage, ok := ParseStage(base); ok && stage != StageSource {
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return base
}

// IsSource reports whether path names a raw extract the pipeline can build.
func IsSource(path string) bool {
	base := filepath.Base(path)
	for _, suffix := range sourceSuffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}

// PathFor returns the file path of dataset name at the given stage.
func PathFor(root, name string, stage Stage) string {
	return filepath.Join(root, name+stage.Ext())
}

// Entry is one dataset file in the root directory.
type Entry struct {
	Path  string
	Name  string
	Stage Stage
	// FailedAt is the on-disk stage of a StageFailed entry.
	FailedAt Stage
}

// NewEntry builds an entry from a file path. ok is false when the name has
// no recognized extension.
func NewEntry(path string) (Entry, bool) {
	stage, ok := ParseStage(path)
	if !ok {
		return Entry{}, false
	}
	return Entry{Path: path, Name: LogicalName(path), Stage: stage}, true
}

// DisplayName returns the name shown to users.
func (e Entry) DisplayName() string {
	return e.Name
}

// IsReady reports whether the entry is a finalized dataset.
func (e Entry) IsReady() bool {
	return e.Stage == StageReady
}

// SizeBytes stats the file on every call. A missing file reports 0.
func (e Entry) SizeBytes() int64 {
	info, err := os.Stat(e.Path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// OnDiskStage returns the stage encoded by the file extension, which for a
// failed entry is the stage the build stopped at.
func (e Entry) OnDiskStage() Stage {
	if e.Stage == StageFailed {
		return e.FailedAt
	}
	return e.Stage
}
