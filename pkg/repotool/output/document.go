package output

import (
	"github.com/jamesainslie/repotool/pkg/repotool/engine"
	"github.com/jamesainslie/repotool/pkg/repotool/types"
)

// document is the machine-readable shape shared by the json and yaml
// formatters. Every list is present, possibly empty.
type document struct {
	Root       string `json:"root" yaml:"root"`
	Command    string `json:"command,omitempty" yaml:"command,omitempty"`
	Different  bool   `json:"different" yaml:"different"`
	IgnoreDate bool   `json:"ignore_date" yaml:"ignore_date"`
	Saved      bool   `json:"saved" yaml:"saved"`

	Missing             []string        `json:"missing" yaml:"missing"`
	Changed             []string        `json:"changed" yaml:"changed"`
	New                 []string        `json:"new" yaml:"new"`
	LastModifiedDiffers []string        `json:"last_modified_differs" yaml:"last_modified_differs"`
	Errors              []documentError `json:"errors" yaml:"errors"`
	Moved               []documentMove  `json:"moved" yaml:"moved"`
	Duplicates          []documentGroup `json:"duplicates" yaml:"duplicates"`
	NewlyIgnored        []string        `json:"newly_ignored" yaml:"newly_ignored"`
	Ignored             []string        `json:"ignored" yaml:"ignored"`
	Groom               []string        `json:"groom" yaml:"groom"`
	DirErrors           []documentError `json:"dir_errors" yaml:"dir_errors"`
	Unrecognized        []string        `json:"unrecognized" yaml:"unrecognized"`

	Stats documentStats `json:"stats" yaml:"stats"`
}

type documentError struct {
	Path  string `json:"path" yaml:"path"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

type documentMove struct {
	Hash string   `json:"hash" yaml:"hash"`
	From []string `json:"from" yaml:"from"`
	To   []string `json:"to" yaml:"to"`
}

type documentGroup struct {
	Hash  string   `json:"hash" yaml:"hash"`
	Files []string `json:"files" yaml:"files"`
}

type documentStats struct {
	DirsScanned      int64  `json:"dirs_scanned" yaml:"dirs_scanned"`
	FilesScanned     int64  `json:"files_scanned" yaml:"files_scanned"`
	FilesHashed      int64  `json:"files_hashed" yaml:"files_hashed"`
	BytesHashed      int64  `json:"bytes_hashed" yaml:"bytes_hashed"`
	BytesHashedHuman string `json:"bytes_hashed_human" yaml:"bytes_hashed_human"`
	Skipped          int64  `json:"skipped" yaml:"skipped"`
	Duration         string `json:"duration,omitempty" yaml:"duration,omitempty"`
}

func buildDocument(r *Report) document {
	res := r.Results
	if res == nil {
		res = &engine.Results{}
	}

	doc := document{
		Root:                r.Root,
		Command:             r.Command,
		Different:           r.Different(),
		IgnoreDate:          r.IgnoreDate,
		Saved:               r.Saved,
		Missing:             filePaths(res.Missing),
		Changed:             filePaths(res.Changed),
		New:                 filePaths(res.New),
		LastModifiedDiffers: filePaths(res.LastModifiedDiffers),
		Errors:              make([]documentError, len(res.Errors)),
		Moved:               make([]documentMove, len(res.Moved)),
		Duplicates:          make([]documentGroup, len(res.Duplicates)),
		NewlyIgnored:        filePaths(res.NewlyIgnored),
		Ignored:             filePaths(res.Ignored),
		Groom:               nonNil(res.Groom),
		DirErrors:           make([]documentError, len(res.DirErrors)),
		Unrecognized:        nonNil(res.Unrecognized),
		Stats: documentStats{
			DirsScanned:      res.Stats.DirsScanned,
			FilesScanned:     res.Stats.FilesScanned,
			FilesHashed:      res.Stats.FilesHashed,
			BytesHashed:      res.Stats.BytesHashed,
			BytesHashedHuman: types.FormatSize(res.Stats.BytesHashed),
			Skipped:          res.Stats.Skipped,
		},
	}
	if r.Elapsed > 0 {
		doc.Stats.Duration = r.Elapsed.String()
	}

	for i, f := range res.Errors {
		doc.Errors[i] = documentError{Path: f.Path()}
		if i < len(res.FileErrors) && res.FileErrors[i].Err != nil {
			doc.Errors[i].Error = res.FileErrors[i].Err.Error()
		}
	}
	for i, g := range res.Moved {
		doc.Moved[i] = documentMove{Hash: g.HashKey, From: filePaths(g.From), To: filePaths(g.To)}
	}
	for i, g := range res.Duplicates {
		doc.Duplicates[i] = documentGroup{Hash: g.HashKey, Files: filePaths(g.Files)}
	}
	for i, e := range res.DirErrors {
		doc.DirErrors[i] = documentError{Path: e.Path}
		if e.Err != nil {
			doc.DirErrors[i].Error = e.Err.Error()
		}
	}
	return doc
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
