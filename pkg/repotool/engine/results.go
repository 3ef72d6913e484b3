package engine

import (
	"fmt"

	"github.com/jamesainslie/repotool/pkg/repotool/manifest"
)

// Outcome is the classification of a single file in a pass.
type Outcome int

// Outcomes reported through Options.OnFile.
const (
	OutcomeUnchanged Outcome = iota
	OutcomeNew
	OutcomeMissing
	OutcomeChanged
	OutcomeDateDiffers
	OutcomeError
	OutcomeIgnored
	OutcomeNewlyIgnored
)

var outcomeNames = [...]string{
	OutcomeUnchanged:    "unchanged",
	OutcomeNew:          "new",
	OutcomeMissing:      "missing",
	OutcomeChanged:      "changed",
	OutcomeDateDiffers:  "last-modified-differs",
	OutcomeError:        "error",
	OutcomeIgnored:      "ignored",
	OutcomeNewlyIgnored: "newly-ignored",
}

func (o Outcome) String() string {
	if int(o) >= 0 && int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Live reports whether the outcome belongs to a non-ignored file present on
// disk, the files CountFiles counts.
func (o Outcome) Live() bool {
	switch o {
	case OutcomeUnchanged, OutcomeNew, OutcomeChanged, OutcomeDateDiffers, OutcomeError:
		return true
	}
	return false
}

// FileEvent is delivered to Options.OnFile once per classified file.
type FileEvent struct {
	Path    string
	Outcome Outcome
	Err     error
}

// PathError pairs a canonical path with the failure observed there.
type PathError struct {
	Path string
	Err  error
}

func (e PathError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e PathError) Unwrap() error {
	return e.Err
}

// MoveGroup is a set of missing files and a set of new files that share
// one content hash.
type MoveGroup struct {
	HashKey string
	From    []*manifest.File
	To      []*manifest.File
}

// DuplicateGroup is a set of two or more files in the tree sharing one hash.
type DuplicateGroup struct {
	HashKey string
	Files   []*manifest.File
}

// Stats counts the work done by a pass.
type Stats struct {
	DirsScanned  int64
	FilesScanned int64
	FilesHashed  int64
	BytesHashed  int64
	Skipped      int64
}

// Results holds every outcome bucket of a pass. A file appears in at most
// one of New, Missing, Changed, LastModifiedDiffers, Errors, Ignored,
// NewlyIgnored and Moved.
type Results struct {
	New                 []*manifest.File
	Missing             []*manifest.File
	Changed             []*manifest.File
	LastModifiedDiffers []*manifest.File
	Errors              []*manifest.File
	Ignored             []*manifest.File
	NewlyIgnored        []*manifest.File

	// FileErrors holds the cause for each entry of Errors, in the same order.
	FileErrors []PathError

	Moved      []*MoveGroup
	Duplicates []*DuplicateGroup

	// Groom lists canonical paths of ignored files flagged for follow-up.
	Groom []string

	// DirErrors lists directories that could not be read. Their subtrees
	// were left as recorded.
	DirErrors []PathError

	// Unrecognized lists entries that are neither regular files nor directories.
	Unrecognized []string

	Stats Stats
}

// merge appends every bucket of other to r.
func (r *Results) merge(other *Results) {
	if other == nil {
		return
	}
	r.New = append(r.New, other.New...)
	r.Missing = append(r.Missing, other.Missing...)
	r.Changed = append(r.Changed, other.Changed...)
	r.LastModifiedDiffers = append(r.LastModifiedDiffers, other.LastModifiedDiffers...)
	r.Errors = append(r.Errors, other.Errors...)
	r.Ignored = append(r.Ignored, other.Ignored...)
	r.NewlyIgnored = append(r.NewlyIgnored, other.NewlyIgnored...)
	r.FileErrors = append(r.FileErrors, other.FileErrors...)
	r.Groom = append(r.Groom, other.Groom...)
	r.DirErrors = append(r.DirErrors, other.DirErrors...)
	r.Unrecognized = append(r.Unrecognized, other.Unrecognized...)
}

func (r *Results) addError(f *manifest.File, err error) {
	r.Errors = append(r.Errors, f)
	r.FileErrors = append(r.FileErrors, PathError{Path: f.Path(), Err: err})
}

// Different reports whether the pass found anything that should make the
// caller exit non-zero. Date-only differences count unless ignoreDate is set.
func (r *Results) Different(ignoreDate bool) bool {
	if len(r.Missing) > 0 || len(r.Changed) > 0 || len(r.New) > 0 || len(r.Moved) > 0 {
		return true
	}
	if len(r.Errors) > 0 || len(r.DirErrors) > 0 {
		return true
	}
	return !ignoreDate && len(r.LastModifiedDiffers) > 0
}
