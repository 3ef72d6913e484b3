// Package history keeps a log of reconciliation runs in a badger database
// so past results can be listed and inspected.
package history

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/jamesainslie/repotool/pkg/repotool/engine"
)

// Counts is the size of each outcome bucket of a run.
type Counts struct {
	New                 int
	Missing             int
	Changed             int
	LastModifiedDiffers int
	Errors              int
	Moved               int
	Duplicates          int
	Ignored             int
	NewlyIgnored        int
	DirErrors           int
	Unrecognized        int
}

// Record describes one finished run.
type Record struct {
	ID       string
	Time     time.Time
	Root     string
	Command  string
	Flags    []string
	Counts   Counts
	Stats    engine.Stats
	Duration time.Duration
	ExitCode int

	// Saved is set when the run wrote the manifest back.
	Saved bool
}

// NewRecord summarizes res. The ID and time are assigned by Store.Put.
func NewRecord(root, command string, res *engine.Results) *Record {
	rec := &Record{Root: root, Command: command}
	if res == nil {
		return rec
	}
	rec.Counts = Counts{
		New:                 len(res.New),
		Missing:             len(res.Missing),
		Changed:             len(res.Changed),
		LastModifiedDiffers: len(res.LastModifiedDiffers),
		Errors:              len(res.Errors),
		Moved:               len(res.Moved),
		Duplicates:          len(res.Duplicates),
		Ignored:             len(res.Ignored),
		NewlyIgnored:        len(res.NewlyIgnored),
		DirErrors:           len(res.DirErrors),
		Unrecognized:        len(res.Unrecognized),
	}
	rec.Stats = res.Stats
	return rec
}

// Encode serializes the record with gob.
func (r *Record) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes data into the record.
func (r *Record) Decode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(r)
}
