// Package engine reconciles a manifest tree against the live filesystem.
//
// A pass walks each directory and its manifest counterpart in lockstep,
// classifies every entry into an outcome bucket and mutates the tree to
// match what is on disk. Sibling files and subdirectories are reconciled
// concurrently; a directory's own maps are only touched by the goroutine
// that owns it, after all of its children have finished.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/text/unicode/norm"

	"github.com/jamesainslie/repotool/pkg/repotool/hasher"
	"github.com/jamesainslie/repotool/pkg/repotool/logging"
	"github.com/jamesainslie/repotool/pkg/repotool/manifest"
	"github.com/jamesainslie/repotool/pkg/repotool/tuner"
)

// DateTolerance is the largest modification-time difference still treated
// as equal. It absorbs coarse filesystem timestamps and clock skew.
const DateTolerance = 2000 * time.Millisecond

// ErrRootUnreadable is returned by Run when the repository root cannot be listed.
var ErrRootUnreadable = errors.New("repository root is unreadable")

// Options selects the behaviour of a pass.
type Options struct {
	// AlwaysCheckHash hashes every present file and disables the
	// size-only short circuit.
	AlwaysCheckHash bool

	// Update stores freshly computed hashes, hashes new files and disables
	// the size-only short circuit.
	Update bool

	// ForceNewHash replaces every hash computed in the pass with one made
	// by the manifest's default algorithm.
	ForceNewHash bool

	// BackDate rewrites the modification time of files whose content is
	// unchanged but whose time drifted, restoring the recorded value.
	BackDate bool

	TrackMoves      bool
	TrackDuplicates bool

	// ManifestPath is the canonical path of the persisted manifest. It is
	// never added to the groom list. Empty means "./.repositoryManifest".
	ManifestPath string

	// Workers bounds concurrent directory reads and hash streams.
	// Zero sizes the pool from the host's resources.
	Workers int

	// Hash computes file digests. Nil uses hasher.Compute.
	Hash hasher.Func

	// OnFile is called once per classified file. It is called from
	// multiple goroutines.
	OnFile func(FileEvent)

	// Verbose logs every classification at info level instead of debug.
	Verbose bool
}

// Engine runs reconciliation passes over one manifest. A single Engine must
// not run more than one pass at a time.
type Engine struct {
	manifest *manifest.Manifest
	opts     Options
	ignore   *manifest.IgnoreMatcher
	workers  int
	sem      *semaphore.Weighted
	log      *logging.Logger
	now      func() time.Time

	dirsScanned  atomic.Int64
	filesScanned atomic.Int64
	filesHashed  atomic.Int64
	bytesHashed  atomic.Int64
	skipped      atomic.Int64
}

// New creates an engine for m. The manifest's ignore list is compiled here,
// so an invalid pattern is reported before any I/O happens.
func New(m *manifest.Manifest, opts Options) (*Engine, error) {
	if m == nil || m.Root == nil {
		return nil, errors.New("manifest has no root directory")
	}

	ignore, err := m.Matcher()
	if err != nil {
		return nil, err
	}

	if opts.Hash == nil {
		opts.Hash = hasher.Compute
	}
	if opts.ManifestPath == "" {
		opts.ManifestPath = m.Root.Path() + manifest.DefaultFileName
	}

	workers := tuner.AutoWorkers(opts.Workers)

	return &Engine{
		manifest: m,
		opts:     opts,
		ignore:   ignore,
		workers:  workers,
		sem:      semaphore.NewWeighted(int64(workers)),
		log:      logging.Get("engine"),
		now:      time.Now,
	}, nil
}

// Workers returns the size of the I/O pool.
func (e *Engine) Workers() int {
	return e.workers
}

// Run reconciles the manifest against the directory at root and returns the
// outcome of the pass. Per-entry failures are recorded in the results; only
// an unreadable root or a cancelled context produce an error.
func (e *Engine) Run(ctx context.Context, root string) (*Results, error) {
	e.resetStats()
	start := time.Now()

	e.log.Info("reconciliation started",
		"root", root,
		"workers", e.workers,
		"check_hash", e.opts.AlwaysCheckHash,
		"update", e.opts.Update,
	)

	pass, err := e.reconcileDir(ctx, root, e.manifest.Root)
	if err != nil {
		e.log.Error("reconciliation aborted", "root", root, "error", err)
		return nil, err
	}
	res := pass.results

	if e.opts.TrackMoves {
		res.Moved, res.Missing, res.New = DetectMoves(res.Missing, res.New)
	}
	if e.opts.TrackDuplicates {
		res.Duplicates = DetectDuplicates(e.manifest.Root)
	}

	now := e.now().UTC()
	if e.opts.Update {
		e.manifest.LastUpdateUTC = &now
	}
	if e.opts.AlwaysCheckHash {
		e.manifest.LastValidateUTC = &now
	}

	res.Stats = e.stats()

	e.log.Info("reconciliation complete",
		"elapsed", time.Since(start).Round(time.Millisecond),
		"new", len(res.New),
		"missing", len(res.Missing),
		"changed", len(res.Changed),
		"moved", len(res.Moved),
		"errors", len(res.Errors)+len(res.DirErrors),
		"hashed", res.Stats.FilesHashed,
	)

	return res, nil
}

// dirPass is the outcome of reconciling one directory.
type dirPass struct {
	dir     *manifest.Directory
	results *Results

	// untouched marks a directory that could not be read.
	untouched bool

	// remove marks a directory that no longer exists or is now ignored.
	remove bool
}

type liveEntry struct {
	raw   string
	entry fs.DirEntry
}

// listing is a directory's live entries keyed by normalized name.
type listing struct {
	files        map[string]liveEntry
	dirs         map[string]liveEntry
	ignoredFiles map[string]liveEntry
	ignoredDirs  map[string]liveEntry
}

func (l *listing) has(name string) bool {
	for _, m := range []map[string]liveEntry{l.files, l.dirs, l.ignoredFiles, l.ignoredDirs} {
		if _, ok := m[name]; ok {
			return true
		}
	}
	return false
}

type fileCheck struct {
	file    *manifest.File
	outcome Outcome
	err     error
}

func (e *Engine) reconcileDir(ctx context.Context, livePath string, dir *manifest.Directory) (*dirPass, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pass := &dirPass{dir: dir, results: &Results{}}
	res := pass.results
	dirPath := dir.Path()

	entries, err := e.readDir(ctx, livePath)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if dir.Parent() == nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrRootUnreadable, livePath, err)
		}
		// Ignored directories are filtered by classify and never opened.
		e.log.Error("cannot read directory", "path", dirPath, "error", err)
		res.DirErrors = append(res.DirErrors, PathError{Path: dirPath, Err: err})
		pass.untouched = true
		return pass, nil
	}
	e.dirsScanned.Add(1)

	live := e.classify(dirPath, entries, res)

	// Snapshot of the recorded names; the maps are mutated once the
	// children have finished.
	fileNames := dir.SortedFileNames()
	subNames := dir.SortedSubdirectoryNames()
	recordedFiles := normalizedSet(fileNames)
	recordedDirs := normalizedSet(subNames)

	dirGroup, gctx := errgroup.WithContext(ctx)

	existingDirs := make([]*dirPass, len(subNames))
	for i, name := range subNames {
		sub, _ := dir.Subdirectory(name)
		key := norm.NFC.String(name)

		if le, ok := live.dirs[key]; ok {
			dirGroup.Go(func() error {
				p, err := e.reconcileDir(gctx, filepath.Join(livePath, le.raw), sub)
				existingDirs[i] = p
				return err
			})
			continue
		}

		outcome := OutcomeMissing
		if _, ok := live.ignoredDirs[key]; ok {
			outcome = OutcomeNewlyIgnored
		}
		existingDirs[i] = e.dropSubtree(sub, outcome)
	}

	newDirNames := unrecorded(live.dirs, recordedDirs)
	newDirs := make([]*dirPass, len(newDirNames))
	for i, name := range newDirNames {
		le := live.dirs[name]
		child := manifest.NewDirectory(name, dir)
		dirGroup.Go(func() error {
			p, err := e.reconcileDir(gctx, filepath.Join(livePath, le.raw), child)
			newDirs[i] = p
			return err
		})
	}

	fileGroup := new(errgroup.Group)
	fileGroup.SetLimit(e.workers)

	checks := make([]fileCheck, len(fileNames))
	for i, name := range fileNames {
		f, _ := dir.File(name)
		checks[i].file = f
		key := norm.NFC.String(name)

		if _, ok := live.ignoredFiles[key]; ok {
			checks[i].outcome = OutcomeNewlyIgnored
			continue
		}
		le, ok := live.files[key]
		if !ok {
			checks[i].outcome = OutcomeMissing
			continue
		}
		fileGroup.Go(func() error {
			outcome, err := e.checkFile(gctx, f, filepath.Join(livePath, le.raw), le.entry)
			if ctxErr := gctx.Err(); ctxErr != nil {
				return ctxErr
			}
			checks[i].outcome, checks[i].err = outcome, err
			return nil
		})
	}

	newFileNames := unrecorded(live.files, recordedFiles)
	added := make([]fileCheck, len(newFileNames))
	for i, name := range newFileNames {
		le := live.files[name]
		fileGroup.Go(func() error {
			f, err := e.newFile(gctx, dir, name, filepath.Join(livePath, le.raw), le.entry)
			if ctxErr := gctx.Err(); ctxErr != nil {
				return ctxErr
			}
			added[i] = fileCheck{file: f, outcome: OutcomeNew, err: err}
			return nil
		})
	}

	fileErr := fileGroup.Wait()
	if err := dirGroup.Wait(); err != nil {
		return nil, err
	}
	if fileErr != nil {
		return nil, fileErr
	}

	e.applyFileChecks(dir, checks, res)

	for i, p := range existingDirs {
		res.merge(p.results)
		if p.remove || (!p.untouched && p.dir.IsEmpty()) {
			dir.RemoveSubdirectory(subNames[i])
		}
	}

	e.applyNewFiles(dir, added, res)

	for _, name := range unrecorded(live.ignoredFiles, recordedFiles) {
		f := manifest.NewFile(name, dir)
		f.RegisteredUTC = e.now().UTC()
		res.Ignored = append(res.Ignored, f)
		e.groom(res, f.Path())
		e.emit(f.Path(), OutcomeIgnored, nil)
	}

	for _, p := range newDirs {
		res.merge(p.results)
		if p.dir.IsEmpty() {
			continue
		}
		if err := dir.AddSubdirectory(p.dir); err != nil {
			e.log.Error("cannot record directory", "path", p.dir.Path(), "error", err)
			res.DirErrors = append(res.DirErrors, PathError{Path: p.dir.Path(), Err: err})
		}
	}

	return pass, nil
}

// classify sorts live entries into files, directories and their ignored
// counterparts. Other entry types are logged and recorded as unrecognized.
func (e *Engine) classify(dirPath string, entries []fs.DirEntry, res *Results) *listing {
	l := &listing{
		files:        make(map[string]liveEntry),
		dirs:         make(map[string]liveEntry),
		ignoredFiles: make(map[string]liveEntry),
		ignoredDirs:  make(map[string]liveEntry),
	}

	for _, entry := range entries {
		name := norm.NFC.String(entry.Name())
		path := manifest.JoinPath(dirPath, name)

		if l.has(name) {
			e.log.Error("entry name collides after unicode normalization", "path", path, "raw", entry.Name())
			res.Unrecognized = append(res.Unrecognized, path)
			continue
		}

		le := liveEntry{raw: entry.Name(), entry: entry}
		mode := entry.Type()

		switch {
		case mode.IsDir():
			if e.ignore.Match(path + manifest.Delimiter) {
				e.log.Debug("ignoring directory", "path", path+manifest.Delimiter)
				l.ignoredDirs[name] = le
			} else {
				l.dirs[name] = le
			}
		case mode.IsRegular():
			if e.ignore.Match(path) {
				l.ignoredFiles[name] = le
			} else {
				l.files[name] = le
			}
		case e.ignore.Match(path):
			e.log.Debug("ignoring entry", "path", path, "mode", mode.String())
		default:
			e.log.Error("unrecognized entry type", "path", path, "mode", mode.String())
			res.Unrecognized = append(res.Unrecognized, path)
		}
	}

	return l
}

// checkFile reconciles a recorded file that is present on disk. It may
// refresh the file's metadata but never changes its membership.
func (e *Engine) checkFile(ctx context.Context, f *manifest.File, path string, entry fs.DirEntry) (Outcome, error) {
	info, err := entry.Info()
	if err != nil {
		return OutcomeError, fmt.Errorf("stat: %w", err)
	}
	e.filesScanned.Add(1)

	size := info.Size()
	mtime := info.ModTime().UTC()
	sizeDiffers := size != f.Length
	dateDiffers := outsideTolerance(mtime, f.LastModifiedUTC)

	defaultAlgorithm := e.manifest.DefaultHashMethod

	if sizeDiffers && !e.opts.AlwaysCheckHash && !e.opts.Update {
		if e.opts.ForceNewHash {
			digest, err := e.hash(ctx, path, defaultAlgorithm, size)
			if err != nil {
				return OutcomeError, err
			}
			f.Length, f.LastModifiedUTC = size, mtime
			f.HashType, f.HashData = defaultAlgorithm, digest
		}
		return OutcomeChanged, nil
	}

	needHash := e.opts.AlwaysCheckHash || e.opts.ForceNewHash || !f.HasHash() || dateDiffers || sizeDiffers
	if !needHash {
		return OutcomeUnchanged, nil
	}

	algorithm := e.manifest.HashMethodFor(f)
	digest, err := e.hash(ctx, path, algorithm, size)
	if err != nil {
		return OutcomeError, err
	}

	forced := digest
	if e.opts.ForceNewHash && hasher.Canonical(algorithm) != hasher.Canonical(defaultAlgorithm) {
		forced, err = e.hash(ctx, path, defaultAlgorithm, size)
		if err != nil {
			return OutcomeError, err
		}
	}

	outcome := OutcomeUnchanged
	switch {
	case !f.HasHash(), digest != f.HashData:
		outcome = OutcomeChanged
	case dateDiffers:
		outcome = OutcomeDateDiffers
		if e.opts.BackDate {
			if err := os.Chtimes(path, time.Time{}, f.LastModifiedUTC); err != nil {
				e.log.Warn("cannot restore modification time", "path", f.Path(), "error", err)
			} else {
				mtime = f.LastModifiedUTC
			}
		}
	}

	f.Length = size
	f.LastModifiedUTC = mtime
	if e.opts.ForceNewHash {
		f.HashType, f.HashData = defaultAlgorithm, forced
	} else {
		f.HashType, f.HashData = algorithm, digest
	}

	return outcome, nil
}

// newFile builds the entry for an unrecorded live file. The returned file
// is detached: its parent is dir but dir does not list it yet.
func (e *Engine) newFile(ctx context.Context, dir *manifest.Directory, name, path string, entry fs.DirEntry) (*manifest.File, error) {
	f := manifest.NewFile(name, dir)
	f.RegisteredUTC = e.now().UTC()
	f.HashType = e.manifest.DefaultHashMethod

	info, err := entry.Info()
	if err != nil {
		return f, fmt.Errorf("stat: %w", err)
	}
	e.filesScanned.Add(1)

	f.Length = info.Size()
	f.LastModifiedUTC = info.ModTime().UTC()

	if e.opts.Update || e.opts.AlwaysCheckHash || e.opts.TrackMoves || e.opts.ForceNewHash {
		digest, err := e.hash(ctx, path, f.HashType, f.Length)
		if err != nil {
			return f, err
		}
		f.HashData = digest
	}

	return f, nil
}

func (e *Engine) applyFileChecks(dir *manifest.Directory, checks []fileCheck, res *Results) {
	for _, c := range checks {
		f := c.file
		switch c.outcome {
		case OutcomeMissing:
			dir.RemoveFile(f.Name)
			res.Missing = append(res.Missing, f)
		case OutcomeNewlyIgnored:
			dir.RemoveFile(f.Name)
			res.NewlyIgnored = append(res.NewlyIgnored, f)
			e.groom(res, f.Path())
		case OutcomeChanged:
			res.Changed = append(res.Changed, f)
		case OutcomeDateDiffers:
			res.LastModifiedDiffers = append(res.LastModifiedDiffers, f)
		case OutcomeError:
			e.log.Error("cannot check file", "path", f.Path(), "error", c.err)
			res.addError(f, c.err)
		default:
			e.skipped.Add(1)
		}
		e.emit(f.Path(), c.outcome, c.err)
	}
}

func (e *Engine) applyNewFiles(dir *manifest.Directory, added []fileCheck, res *Results) {
	for _, c := range added {
		f := c.file
		if c.err == nil {
			c.err = dir.AddFile(f)
		}
		if c.err != nil {
			c.outcome = OutcomeError
			e.log.Error("cannot record new file", "path", f.Path(), "error", c.err)
			res.addError(f, c.err)
		} else {
			res.New = append(res.New, f)
		}
		e.emit(f.Path(), c.outcome, c.err)
	}
}

// dropSubtree reports every file under a directory that vanished or is now
// ignored. The caller removes the directory.
func (e *Engine) dropSubtree(sub *manifest.Directory, outcome Outcome) *dirPass {
	res := &Results{}
	sub.Walk(func(f *manifest.File) {
		if outcome == OutcomeNewlyIgnored {
			res.NewlyIgnored = append(res.NewlyIgnored, f)
			e.groom(res, f.Path())
		} else {
			res.Missing = append(res.Missing, f)
		}
		e.emit(f.Path(), outcome, nil)
	})
	return &dirPass{dir: sub, results: res, remove: true}
}

func (e *Engine) groom(res *Results, path string) {
	if path == e.opts.ManifestPath {
		return
	}
	res.Groom = append(res.Groom, path)
}

func (e *Engine) emit(path string, outcome Outcome, err error) {
	if outcome != OutcomeUnchanged {
		if e.opts.Verbose {
			e.log.Info(outcome.String(), "path", path)
		} else {
			e.log.Debug(outcome.String(), "path", path)
		}
	}
	if e.opts.OnFile != nil {
		e.opts.OnFile(FileEvent{Path: path, Outcome: outcome, Err: err})
	}
}

func (e *Engine) readDir(ctx context.Context, path string) ([]fs.DirEntry, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)
	return os.ReadDir(path)
}

func (e *Engine) hash(ctx context.Context, path, algorithm string, size int64) (string, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer e.sem.Release(1)

	digest, err := e.opts.Hash(path, algorithm)
	if err != nil {
		return "", err
	}
	e.filesHashed.Add(1)
	e.bytesHashed.Add(size)
	return digest, nil
}

func (e *Engine) resetStats() {
	e.dirsScanned.Store(0)
	e.filesScanned.Store(0)
	e.filesHashed.Store(0)
	e.bytesHashed.Store(0)
	e.skipped.Store(0)
}

func (e *Engine) stats() Stats {
	return Stats{
		DirsScanned:  e.dirsScanned.Load(),
		FilesScanned: e.filesScanned.Load(),
		FilesHashed:  e.filesHashed.Load(),
		BytesHashed:  e.bytesHashed.Load(),
		Skipped:      e.skipped.Load(),
	}
}

func outsideTolerance(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d > DateTolerance
}

func normalizedSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[norm.NFC.String(name)] = true
	}
	return set
}

// unrecorded returns the sorted live names absent from recorded.
func unrecorded(live map[string]liveEntry, recorded map[string]bool) []string {
	var names []string
	for name := range live {
		if !recorded[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
