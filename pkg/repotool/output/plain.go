package output

import (
	"bytes"
	"fmt"
	"strings"
)

const detailIndent = "   "

// PlainFormatter prints one summary line per non-empty bucket, followed by
// the paths when Detail is set. No colors are applied.
type PlainFormatter struct{}

// Format writes the report to w.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Report) error {
	if r.Results == nil {
		return nil
	}
	res := r.Results
	before, after := fileSections(r)

	for _, s := range before {
		f.writeSection(w, r.Detail, s)
	}

	if len(res.Moved) > 0 {
		fmt.Fprintf(w, "%d files were moved.\n", len(res.Moved))
		if r.Detail {
			for _, g := range res.Moved {
				w.WriteString(detailIndent)
				w.WriteString(strings.Join(filePaths(g.From), " "))
				w.WriteString(" -> ")
				w.WriteString(strings.Join(filePaths(g.To), " "))
				w.WriteByte('\n')
			}
			w.WriteByte('\n')
		}
	}

	if len(res.Duplicates) > 0 {
		fmt.Fprintf(w, "%d file hashes were duplicates.\n", len(res.Duplicates))
		if r.Detail {
			for _, g := range res.Duplicates {
				fmt.Fprintf(w, "%sHash: %s\n", detailIndent, g.HashKey)
				for _, p := range filePaths(g.Files) {
					fmt.Fprintf(w, "%s%s%s\n", detailIndent, detailIndent, p)
				}
			}
		}
		w.WriteByte('\n')
	}

	for _, s := range after {
		f.writeSection(w, r.Detail, s)
	}

	for _, s := range trailingSections(res) {
		f.writeSection(w, r.Detail, s)
	}
	return nil
}

func (f *PlainFormatter) writeSection(w *bytes.Buffer, detail bool, s section) {
	if !s.visible() {
		return
	}
	w.WriteString(s.summary())
	w.WriteString(".\n")
	if !detail {
		return
	}
	for _, line := range s.lines {
		w.WriteString(detailIndent)
		w.WriteString(line)
		w.WriteByte('\n')
	}
	w.WriteByte('\n')
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

var _ Formatter = (*PlainFormatter)(nil)
