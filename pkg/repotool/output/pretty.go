package output

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// PrettyFormatter renders the report with lipgloss styling for terminals.
type PrettyFormatter struct{}

// Format writes the report to w.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Report) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")

	if r.Results == nil {
		return nil
	}

	body := f.formatBody(r)
	if body == "" {
		body = SuccessStyle.Render("  Repository matches the manifest") + "\n"
	}
	w.WriteString(body)

	w.WriteString(f.formatFooter(r))
	w.WriteString("\n")
	return nil
}

func (f *PrettyFormatter) formatHeader(r *Report) string {
	var lines []string

	lines = append(lines, fmt.Sprintf("%s %s",
		LabelStyle.Render("Repository:"), ValueStyle.Render(r.Root)))

	if r.Command != "" {
		info := fmt.Sprintf("%s %s", LabelStyle.Render("Command:"), ValueStyle.Render(r.Command))
		if r.Saved {
			info += "  " + SuccessStyle.Render("manifest saved")
		}
		lines = append(lines, info)
	}

	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatBody(r *Report) string {
	res := r.Results
	before, after := fileSections(r)
	var sb strings.Builder

	for _, s := range before {
		f.writeSection(&sb, r.Detail, s)
	}

	if len(res.Moved) > 0 {
		f.writeTitle(&sb, severityWarning, fmt.Sprintf("%d files were moved", len(res.Moved)))
		if r.Detail {
			for _, g := range res.Moved {
				from := PathStyle.Render(strings.Join(filePaths(g.From), " "))
				to := PathStyle.Render(strings.Join(filePaths(g.To), " "))
				fmt.Fprintf(&sb, "    %s %s %s\n", from, MutedStyle.Render("->"), to)
			}
		}
	}

	if len(res.Duplicates) > 0 {
		f.writeTitle(&sb, severityInfo, fmt.Sprintf("%d file hashes were duplicates", len(res.Duplicates)))
		if r.Detail {
			for _, g := range res.Duplicates {
				fmt.Fprintf(&sb, "    %s\n", HashStyle.Render(g.HashKey))
				for _, p := range filePaths(g.Files) {
					fmt.Fprintf(&sb, "      %s\n", PathStyle.Render(p))
				}
			}
		}
	}

	for _, s := range after {
		f.writeSection(&sb, r.Detail, s)
	}

	for _, s := range trailingSections(res) {
		f.writeSection(&sb, r.Detail, s)
	}

	return sb.String()
}

func (f *PrettyFormatter) writeSection(sb *strings.Builder, detail bool, s section) {
	if !s.visible() {
		return
	}
	f.writeTitle(sb, s.severity, s.summary())
	if detail {
		for _, line := range s.lines {
			fmt.Fprintf(sb, "    %s\n", PathStyle.Render(line))
		}
	}
}

func (f *PrettyFormatter) writeTitle(sb *strings.Builder, s severity, text string) {
	sb.WriteString("  ")
	sb.WriteString(severityStyle(s).Render(text))
	sb.WriteString("\n")
}

func (f *PrettyFormatter) formatFooter(r *Report) string {
	stats := r.Results.Stats
	var parts []string

	parts = append(parts, fmt.Sprintf("%s %s",
		LabelStyle.Render("Scanned:"),
		ValueStyle.Render(fmt.Sprintf("%s files in %s dirs",
			humanize.Comma(stats.FilesScanned), humanize.Comma(stats.DirsScanned)))))

	parts = append(parts, fmt.Sprintf("%s %s",
		LabelStyle.Render("Hashed:"),
		ValueStyle.Render(fmt.Sprintf("%s (%s)",
			humanize.Comma(stats.FilesHashed), humanize.IBytes(uint64(max(stats.BytesHashed, 0)))))))

	if r.Elapsed > 0 {
		parts = append(parts, fmt.Sprintf("%s %s",
			LabelStyle.Render("Time:"), ValueStyle.Render(formatDuration(r.Elapsed))))
	}

	if r.Different() {
		parts = append(parts, ErrorStyle.Render("differences found"))
	} else {
		parts = append(parts, SuccessStyle.Render("clean"))
	}

	return FooterBox.Render(strings.Join(parts, "  "))
}

// formatDuration renders d compactly, e.g. 850ms, 2.4s, 3m 12s, 1h 5m.
func formatDuration(d time.Duration) string {
	sec := d.Seconds()
	if sec < 1 {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if sec < 60 {
		return fmt.Sprintf("%.1fs", sec)
	}
	minutes := int(sec) / 60
	seconds := int(sec) % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

var _ Formatter = (*PrettyFormatter)(nil)
