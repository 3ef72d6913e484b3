package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jamesainslie/repotool/pkg/repotool/config"
	"github.com/jamesainslie/repotool/pkg/repotool/engine"
	"github.com/jamesainslie/repotool/pkg/repotool/hasher"
	"github.com/jamesainslie/repotool/pkg/repotool/history"
	"github.com/jamesainslie/repotool/pkg/repotool/logging"
	"github.com/jamesainslie/repotool/pkg/repotool/manifest"
	"github.com/jamesainslie/repotool/pkg/repotool/output"
)

// mode describes what a reconcile command does with the manifest.
type mode struct {
	name string

	// create writes a fresh manifest instead of loading one.
	create bool

	// checkHash hashes every present file.
	checkHash bool

	// save stores hashes and writes the manifest back.
	save bool
}

var (
	modeCreate   = mode{name: "create", create: true, save: true}
	modeStatus   = mode{name: "status"}
	modeValidate = mode{name: "validate", checkHash: true}
	modeUpdate   = mode{name: "update", save: true}
)

// reconcileFlags holds the flags shared by the reconcile commands.
type reconcileFlags struct {
	detail          bool
	progress        bool
	trackMoves      bool
	trackDuplicates bool
	ignoreDate      bool
	backDate        bool
	forceNewHash    bool
	update          bool
	hash            string
}

var recFlags reconcileFlags

var createCmd = &cobra.Command{
	Use:   "create [path]",
	Short: "Create a manifest for a directory",
	Long: `Record every file under the directory (default: current directory) in a
new manifest, hashing each one. Fails if a manifest already exists.`,
	Args: cobra.MaximumNArgs(1),
	RunE: reconcileCommand(modeCreate),
}

var statusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Compare the directory with its manifest",
	Long: `Check every file in the manifest based on file length and last modified
date. Hash only files whose date or size differ. Report new files, missing
files and any differences.

Exits 1 when differences were found and 2 when the command failed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: reconcileCommand(modeStatus),
}

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Verify every file against its recorded hash",
	Long: `Check every file in the manifest against its hash value. Report new
files, missing files and any differences.

Exits 1 when differences were found and 2 when the command failed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: reconcileCommand(modeValidate),
}

var updateCmd = &cobra.Command{
	Use:   "update [path]",
	Short: "Accept the current state of the directory into the manifest",
	Long: `Reconcile the directory with its manifest, record new files, drop missing
ones, store fresh hashes and write the manifest back.`,
	Args: cobra.MaximumNArgs(1),
	RunE: reconcileCommand(modeUpdate),
}

func init() {
	for _, cmd := range []*cobra.Command{createCmd, statusCmd, validateCmd, updateCmd} {
		addReconcileFlags(cmd.Flags(), cmd == statusCmd || cmd == validateCmd)
		rootCmd.AddCommand(cmd)
	}
	createCmd.Flags().StringVar(&recFlags.hash, "hash", "",
		fmt.Sprintf("hash method for the new manifest (%v)", hasher.Supported()))
}

func addReconcileFlags(fs *pflag.FlagSet, canUpdate bool) {
	fs.BoolVarP(&recFlags.detail, "detail", "d", false, "list the files that are different, not just the counts")
	fs.BoolVarP(&recFlags.progress, "progress", "p", false, "list each file as it is scanned")
	fs.BoolVarP(&recFlags.trackMoves, "track-moves", "m", false, "identify renamed or moved files by their hash")
	fs.BoolVar(&recFlags.trackDuplicates, "track-duplicates", false, "identify duplicate files by their hash")
	fs.BoolVar(&recFlags.ignoreDate, "ignore-date", false, "don't treat a date change alone as a difference")
	fs.BoolVar(&recFlags.backDate, "back-date", false, "restore recorded modification times on files whose content is unchanged")
	fs.BoolVar(&recFlags.forceNewHash, "force-new-hash", false, "re-hash with the manifest's default method")
	if canUpdate {
		fs.BoolVar(&recFlags.update, "update", false, "write the reconciled manifest back")
	}
}

func reconcileCommand(m mode) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		root := "."
		if len(args) > 0 {
			root = args[0]
		}
		if root, err = config.ExpandPath(root); err != nil {
			return err
		}
		if root, err = filepath.Abs(root); err != nil {
			return fmt.Errorf("failed to resolve %s: %w", root, err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		r := &reconciler{
			cfg:    cfg,
			mode:   m,
			flags:  recFlags,
			root:   root,
			stdout: cmd.OutOrStdout(),
			stderr: cmd.ErrOrStderr(),
			log:    logging.Get("cli"),
		}
		if m.save {
			r.flags.update = true
		}

		report, err := r.run(ctx)
		if err != nil {
			return err
		}
		r.record(report, changedFlags(cmd.Flags()))

		if r.failed(report) {
			return errDifferences
		}
		return nil
	}
}

// reconciler runs one reconcile command.
type reconciler struct {
	cfg    *config.Config
	mode   mode
	flags  reconcileFlags
	root   string
	stdout io.Writer
	stderr io.Writer
	log    *logging.Logger

	start time.Time
}

func (r *reconciler) manifestPath() string {
	return filepath.Join(r.root, r.cfg.ManifestName)
}

// canonicalManifestPath is the manifest's path inside the tree, e.g.
// "./.repositoryManifest".
func (r *reconciler) canonicalManifestPath() string {
	return manifest.JoinPath(manifest.RootName, r.cfg.ManifestName)
}

func (r *reconciler) run(ctx context.Context) (*output.Report, error) {
	r.start = time.Now()

	m, err := r.openManifest()
	if err != nil {
		return nil, err
	}

	opts := engine.Options{
		AlwaysCheckHash: r.mode.checkHash,
		Update:          r.flags.update,
		ForceNewHash:    r.flags.forceNewHash,
		BackDate:        r.flags.backDate,
		TrackMoves:      r.flags.trackMoves,
		TrackDuplicates: r.flags.trackDuplicates,
		ManifestPath:    r.canonicalManifestPath(),
		Workers:         r.cfg.Workers,
		Verbose:         getVerbose(),
	}
	if r.flags.progress && !getQuiet() {
		opts.OnFile, err = r.progress(ctx, m)
		if err != nil {
			return nil, err
		}
	}

	eng, err := engine.New(m, opts)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", r.manifestPath(), err)
	}
	printVerbose("Reconciling %s with %d workers", r.root, eng.Workers())

	res, err := eng.Run(ctx, r.root)
	if err != nil {
		return nil, err
	}

	report := &output.Report{
		Results:    res,
		Root:       r.root,
		Command:    r.mode.name,
		Detail:     r.flags.detail,
		IgnoreDate: r.flags.ignoreDate || r.cfg.IgnoreDate,
	}

	if r.flags.update {
		if err := m.Save(r.manifestPath()); err != nil {
			return nil, fmt.Errorf("failed to save manifest: %w", err)
		}
		report.Saved = true
		r.log.Info("manifest saved",
			"path", r.manifestPath(),
			"files", m.Root.TotalFiles(),
			"dirs", m.Root.TotalDirectories(),
		)
	}
	report.Elapsed = time.Since(r.start)

	if err := r.render(report); err != nil {
		return nil, err
	}
	return report, nil
}

func (r *reconciler) openManifest() (*manifest.Manifest, error) {
	path := r.manifestPath()

	if !r.mode.create {
		m, err := manifest.Load(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("no manifest at %s (run 'repotool create' first)", path)
			}
			return nil, err
		}
		return m, nil
	}

	if manifest.Exists(path) {
		return nil, fmt.Errorf("manifest already exists: %s", path)
	}

	method := r.flags.hash
	if method == "" {
		method = r.cfg.HashMethod
	}
	if !hasher.IsSupported(method) {
		return nil, fmt.Errorf("%w: %s", hasher.ErrUnsupportedAlgorithm, method)
	}

	m := manifest.New()
	m.DefaultHashMethod = hasher.Canonical(method)
	if r.cfg.ManifestName != manifest.DefaultFileName {
		m.IgnoreList = append(m.IgnoreList, "^"+regexp.QuoteMeta(r.canonicalManifestPath())+"$")
	}
	m.IgnoreList = append(m.IgnoreList, r.cfg.Ignore...)
	return m, nil
}

// progress counts the files up front and returns a callback printing one
// line per classified file. Only files present on disk advance the counter;
// missing and ignored files are listed without one.
func (r *reconciler) progress(ctx context.Context, m *manifest.Manifest) (func(engine.FileEvent), error) {
	ignore, err := m.Matcher()
	if err != nil {
		return nil, err
	}
	total, err := engine.CountFiles(ctx, r.root, ignore)
	if err != nil {
		return nil, err
	}

	var (
		mu   sync.Mutex
		seen atomic.Int64
	)
	return func(ev engine.FileEvent) {
		mu.Lock()
		defer mu.Unlock()

		prefix := "[-]"
		if ev.Outcome.Live() {
			prefix = fmt.Sprintf("[%d/%d]", seen.Add(1), total)
		}
		if ev.Err != nil {
			fmt.Fprintf(r.stderr, "%s %s %s: %v\n", prefix, ev.Outcome, ev.Path, ev.Err)
			return
		}
		fmt.Fprintf(r.stderr, "%s %s %s\n", prefix, ev.Outcome, ev.Path)
	}, nil
}

func (r *reconciler) render(report *output.Report) error {
	if getQuiet() {
		return nil
	}

	formatter, err := output.Get(r.cfg.Output)
	if err != nil {
		return fmt.Errorf("%w (available: %v)", err, output.Available())
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, report); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	_, err = r.stdout.Write(buf.Bytes())
	return err
}

// failed applies the exit rule. Commands that save accept differences into
// the manifest, so only errors fail them.
func (r *reconciler) failed(report *output.Report) bool {
	if r.mode.save {
		res := report.Results
		return len(res.Errors) > 0 || len(res.DirErrors) > 0
	}
	return report.Different()
}

// record appends the run to the history store. Failures are logged and
// never fail the command.
func (r *reconciler) record(report *output.Report, flags []string) {
	if !r.cfg.History.Enabled {
		return
	}

	store, err := history.OpenStore(r.cfg.HistoryPath())
	if err != nil {
		r.log.Warn("history unavailable", "error", err)
		return
	}
	defer store.Close()

	rec := history.NewRecord(r.root, r.mode.name, report.Results)
	rec.Flags = flags
	rec.Duration = report.Elapsed
	rec.Saved = report.Saved
	rec.ExitCode = exitClean
	if r.failed(report) {
		rec.ExitCode = exitDifferent
	}

	if err := store.Put(rec); err != nil {
		r.log.Warn("failed to record run", "error", err)
		return
	}
	if _, err := store.Cleanup(r.cfg.History.RetentionDays); err != nil {
		r.log.Warn("failed to prune history", "error", err)
	}
}

// changedFlags lists the flags set on the command line, e.g. "--detail".
func changedFlags(fs *pflag.FlagSet) []string {
	var flags []string
	fs.Visit(func(f *pflag.Flag) {
		if f.Value.Type() == "bool" {
			flags = append(flags, "--"+f.Name)
			return
		}
		flags = append(flags, "--"+f.Name+"="+f.Value.String())
	})
	return flags
}
