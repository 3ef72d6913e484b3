package output

import (
	"fmt"

	"github.com/jamesainslie/repotool/pkg/repotool/engine"
	"github.com/jamesainslie/repotool/pkg/repotool/manifest"
)

// severity drives the styling of a section in the pretty formatter.
type severity int

const (
	severityInfo severity = iota
	severityWarning
	severityDanger
)

// section is one file bucket of a report. It is printed when it holds
// more than threshold entries.
type section struct {
	unit        string
	description string
	lines       []string
	threshold   int
	severity    severity
}

func (s section) visible() bool {
	return len(s.lines) > s.threshold
}

// summary reads like "3 files are missing".
func (s section) summary() string {
	unit := s.unit
	if unit == "" {
		unit = "files"
	}
	return fmt.Sprintf("%d %s %s", len(s.lines), unit, s.description)
}

// trailingSections are the problems reported after the ignore buckets.
func trailingSections(res *engine.Results) []section {
	return []section{
		{unit: "directories", description: "could not be read", lines: pathErrorLines(res.DirErrors), severity: severityDanger},
		{unit: "entries", description: "are not regular files or directories", lines: res.Unrecognized, severity: severityWarning},
	}
}

// fileSections returns the file buckets in reporting order, split around
// moves: everything before moves, then everything after duplicates.
func fileSections(r *Report) (before, after []section) {
	res := r.Results
	dateSeverity := severityWarning
	if r.IgnoreDate {
		dateSeverity = severityInfo
	}

	before = []section{
		{description: "are missing", lines: filePaths(res.Missing), severity: severityDanger},
		{description: "have changed content", lines: filePaths(res.Changed), severity: severityDanger},
		{description: "are new", lines: filePaths(res.New), severity: severityWarning},
		{description: "have last-modified dates which are different", lines: filePaths(res.LastModifiedDiffers), severity: dateSeverity},
		{description: "have errors", lines: errorLines(res), severity: severityDanger},
	}
	after = []section{
		{description: "are newly ignored", lines: filePaths(res.NewlyIgnored)},
		{description: "were ignored", lines: filePaths(res.Ignored), threshold: 1},
	}
	return before, after
}

func filePaths(files []*manifest.File) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path()
	}
	return paths
}

// errorLines pairs each errored file with its cause when one was recorded.
func errorLines(res *engine.Results) []string {
	lines := make([]string, len(res.Errors))
	for i, f := range res.Errors {
		lines[i] = f.Path()
		if i < len(res.FileErrors) && res.FileErrors[i].Err != nil {
			lines[i] += ": " + res.FileErrors[i].Err.Error()
		}
	}
	return lines
}

func pathErrorLines(errs []engine.PathError) []string {
	lines := make([]string, len(errs))
	for i, e := range errs {
		lines[i] = e.Error()
	}
	return lines
}
