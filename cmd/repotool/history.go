package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/repotool/pkg/repotool/history"
	"github.com/jamesainslie/repotool/pkg/repotool/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View past runs",
	Long: `List previous create, status, validate and update runs with their
outcome counts. Runs older than history.retention_days are pruned
automatically.`,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show details of a run",
	Long:  `Display a run by its ID or a unique prefix of at least four characters.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove old runs",
	Long:  `Remove runs older than the retention period, or every run with --all.`,
	RunE:  runHistoryClean,
}

var (
	historyLimit    int
	historyCleanAll bool
	historyDays     int
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of runs to show")
	historyCleanCmd.Flags().BoolVar(&historyCleanAll, "all", false, "remove every run")
	historyCleanCmd.Flags().IntVar(&historyDays, "days", 0, "retention in days (default: history.retention_days)")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistory() (*history.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := history.OpenStore(cfg.HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return store, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		fmt.Fprintln(out, "Run 'repotool status' in a repository with a manifest.")
		return nil
	}

	fmt.Fprintf(out, "%-8s  %-19s  %-8s  %-4s  %-28s  %s\n", "ID", "TIME", "COMMAND", "EXIT", "SUMMARY", "ROOT")
	fmt.Fprintln(out, strings.Repeat("-", 100))
	for _, rec := range records {
		fmt.Fprintf(out, "%-8s  %-19s  %-8s  %-4d  %-28s  %s\n",
			shortID(rec.ID),
			rec.Time.Local().Format("2006-01-02 15:04:05"),
			rec.Command,
			rec.ExitCode,
			summarize(rec.Counts),
			rec.Root,
		)
	}
	fmt.Fprintln(out, strings.Repeat("-", 100))
	fmt.Fprintf(out, "Showing %d runs. Use 'repotool history show <id>' for details.\n", len(records))
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Get(args[0])
	if errors.Is(err, history.ErrNotFound) {
		return fmt.Errorf("no run with ID %s", args[0])
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Run Details")
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "ID:          %s\n", rec.ID)
	fmt.Fprintf(out, "Time:        %s\n", rec.Time.Local().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "Command:     %s\n", rec.Command)
	fmt.Fprintf(out, "Root:        %s\n", rec.Root)
	if len(rec.Flags) > 0 {
		fmt.Fprintf(out, "Flags:       %s\n", strings.Join(rec.Flags, " "))
	}
	fmt.Fprintf(out, "Duration:    %s\n", rec.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "Exit code:   %d\n", rec.ExitCode)
	fmt.Fprintf(out, "Saved:       %t\n", rec.Saved)

	fmt.Fprintln(out, "\nOutcomes")
	fmt.Fprintln(out, strings.Repeat("-", 60))
	c := rec.Counts
	rows := []struct {
		label string
		n     int
	}{
		{"missing", c.Missing},
		{"changed", c.Changed},
		{"new", c.New},
		{"date differs", c.LastModifiedDiffers},
		{"errors", c.Errors},
		{"moved", c.Moved},
		{"duplicates", c.Duplicates},
		{"newly ignored", c.NewlyIgnored},
		{"ignored", c.Ignored},
		{"dir errors", c.DirErrors},
		{"unrecognized", c.Unrecognized},
	}
	for _, row := range rows {
		fmt.Fprintf(out, "%-14s %d\n", row.label+":", row.n)
	}

	fmt.Fprintln(out, "\nWork")
	fmt.Fprintln(out, strings.Repeat("-", 60))
	fmt.Fprintf(out, "Directories:  %d\n", rec.Stats.DirsScanned)
	fmt.Fprintf(out, "Files:        %d\n", rec.Stats.FilesScanned)
	fmt.Fprintf(out, "Hashed:       %d (%s)\n", rec.Stats.FilesHashed, types.FormatSize(rec.Stats.BytesHashed))
	fmt.Fprintf(out, "Skipped:      %d\n", rec.Stats.Skipped)
	return nil
}

func runHistoryClean(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := history.OpenStore(cfg.HistoryPath())
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer store.Close()

	var removed int
	switch {
	case historyCleanAll:
		removed, err = store.DeleteBefore(time.Now().Add(time.Second))
	default:
		days := historyDays
		if days <= 0 {
			days = cfg.History.RetentionDays
		}
		printVerbose("Removing runs older than %d days", days)
		removed, err = store.Cleanup(days)
	}
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d runs.\n", removed)
	return nil
}

// summarize renders the non-zero difference counts of a run.
func summarize(c history.Counts) string {
	var parts []string
	add := func(n int, label string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, label))
		}
	}
	add(c.Missing, "missing")
	add(c.Changed, "changed")
	add(c.New, "new")
	add(c.Moved, "moved")
	add(c.LastModifiedDiffers, "dated")
	add(c.Errors+c.DirErrors, "errors")
	if len(parts) == 0 {
		return "clean"
	}
	return truncateString(strings.Join(parts, ", "), 28)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncateString truncates s to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
