package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/repotool/pkg/repotool/history"
	"github.com/jamesainslie/repotool/pkg/repotool/manifest"
)

// isolateCLI points config, history and logs at temporary directories.
func isolateCLI(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("REPOTOOL_HISTORY_PATH", filepath.Join(home, "history"))
	t.Setenv("REPOTOOL_LOGGING_PATH", filepath.Join(home, "repotool.log"))
	return home
}

// resetFlags restores every flag to its default between executions.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func writeRepoFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newRepo(t *testing.T) string {
	t.Helper()
	repo := t.TempDir()
	writeRepoFile(t, repo, "a.txt", "alpha")
	writeRepoFile(t, repo, "docs/b.txt", "bravo")

	_, err := execute(t, "create", repo)
	require.NoError(t, err)
	return repo
}

func TestCreate_WritesManifest(t *testing.T) {
	isolateCLI(t)
	repo := newRepo(t)

	m, err := manifest.Load(filepath.Join(repo, manifest.DefaultFileName))
	require.NoError(t, err)

	assert.Equal(t, 2, m.Root.TotalFiles())
	assert.Equal(t, "MD5", m.DefaultHashMethod)
	assert.NotNil(t, m.LastUpdateUTC)

	f, ok := m.Root.File("a.txt")
	require.True(t, ok)
	assert.True(t, f.HasHash())
}

func TestCreate_HashFlag(t *testing.T) {
	isolateCLI(t)
	repo := t.TempDir()
	writeRepoFile(t, repo, "a.txt", "alpha")

	_, err := execute(t, "create", "--hash", "sha256", repo)
	require.NoError(t, err)

	m, err := manifest.Load(filepath.Join(repo, manifest.DefaultFileName))
	require.NoError(t, err)
	assert.Equal(t, "SHA256", m.DefaultHashMethod)
}

func TestCreate_RefusesExistingManifest(t *testing.T) {
	isolateCLI(t)
	repo := newRepo(t)

	_, err := execute(t, "create", repo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest already exists")
	assert.Equal(t, exitFailure, exitCode(err))
}

func TestStatus_WithoutManifest(t *testing.T) {
	isolateCLI(t)

	_, err := execute(t, "status", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repotool create")
	assert.Equal(t, exitFailure, exitCode(err))
}

func TestStatus_CleanRepository(t *testing.T) {
	isolateCLI(t)
	repo := newRepo(t)

	out, err := execute(t, "status", repo)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestStatus_ReportsDifferences(t *testing.T) {
	isolateCLI(t)
	repo := newRepo(t)

	require.NoError(t, os.Remove(filepath.Join(repo, "a.txt")))
	writeRepoFile(t, repo, "c.txt", "charlie")

	out, err := execute(t, "status", "-d", repo)
	require.True(t, errors.Is(err, errDifferences), "err = %v", err)
	assert.Equal(t, exitDifferent, exitCode(err))

	assert.Contains(t, out, "1 files are missing.\n   ./a.txt\n")
	assert.Contains(t, out, "1 files are new.\n   ./c.txt\n")

	// status does not persist anything without --update.
	_, err = execute(t, "status", repo)
	assert.True(t, errors.Is(err, errDifferences))
}

func TestStatus_UpdateFlagPersists(t *testing.T) {
	isolateCLI(t)
	repo := newRepo(t)
	writeRepoFile(t, repo, "c.txt", "charlie")

	_, err := execute(t, "status", "--update", repo)
	assert.True(t, errors.Is(err, errDifferences))

	out, err := execute(t, "status", repo)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestUpdate_AcceptsChanges(t *testing.T) {
	isolateCLI(t)
	repo := newRepo(t)

	require.NoError(t, os.Remove(filepath.Join(repo, "docs", "b.txt")))
	writeRepoFile(t, repo, "c.txt", "charlie")

	out, err := execute(t, "update", repo)
	require.NoError(t, err)
	assert.Contains(t, out, "1 files are missing.")
	assert.Contains(t, out, "1 files are new.")

	out, err = execute(t, "status", repo)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestStatus_TrackMoves(t *testing.T) {
	isolateCLI(t)
	repo := newRepo(t)

	require.NoError(t, os.Rename(filepath.Join(repo, "a.txt"), filepath.Join(repo, "moved.txt")))

	out, err := execute(t, "status", "-m", "-d", repo)
	assert.True(t, errors.Is(err, errDifferences))
	assert.Contains(t, out, "1 files were moved.\n   ./a.txt -> ./moved.txt\n")
	assert.NotContains(t, out, "are missing")
	assert.NotContains(t, out, "are new")
}

func TestStatus_TrackDuplicates(t *testing.T) {
	isolateCLI(t)
	repo := t.TempDir()
	writeRepoFile(t, repo, "one.txt", "same")
	writeRepoFile(t, repo, "two.txt", "same")
	_, err := execute(t, "create", repo)
	require.NoError(t, err)

	out, err := execute(t, "status", "--track-duplicates", repo)
	require.NoError(t, err, "duplicates alone are not a difference")
	assert.Contains(t, out, "1 file hashes were duplicates.")
}

func TestValidate_DetectsSameSizeEdit(t *testing.T) {
	isolateCLI(t)
	repo := newRepo(t)

	path := filepath.Join(repo, "a.txt")
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("ALPHA"), 0o644))
	require.NoError(t, os.Chtimes(path, time.Now(), info.ModTime()))

	out, err := execute(t, "status", repo)
	require.NoError(t, err, "size and date match so status trusts the file")
	assert.Empty(t, out)

	out, err = execute(t, "validate", "-d", repo)
	assert.True(t, errors.Is(err, errDifferences))
	assert.Contains(t, out, "1 files have changed content.\n   ./a.txt\n")
}

func TestStatus_IgnoreDate(t *testing.T) {
	isolateCLI(t)
	repo := newRepo(t)

	path := filepath.Join(repo, "a.txt")
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))

	out, err := execute(t, "status", repo)
	assert.True(t, errors.Is(err, errDifferences))
	assert.Contains(t, out, "1 files have last-modified dates which are different.")

	_, err = execute(t, "status", "--ignore-date", repo)
	assert.NoError(t, err)
}

func TestStatus_JSONOutput(t *testing.T) {
	isolateCLI(t)
	repo := newRepo(t)
	writeRepoFile(t, repo, "c.txt", "charlie")

	out, err := execute(t, "status", "-o", "json", repo)
	assert.True(t, errors.Is(err, errDifferences))

	var doc struct {
		Root      string   `json:"root"`
		Command   string   `json:"command"`
		Different bool     `json:"different"`
		New       []string `json:"new"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, repo, doc.Root)
	assert.Equal(t, "status", doc.Command)
	assert.True(t, doc.Different)
	assert.Equal(t, []string{"./c.txt"}, doc.New)
}

func TestStatus_UnknownOutput(t *testing.T) {
	isolateCLI(t)
	repo := newRepo(t)

	_, err := execute(t, "status", "-o", "xml", repo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown formatter")
}

func TestStatus_Progress(t *testing.T) {
	isolateCLI(t)
	repo := newRepo(t)

	require.NoError(t, os.Remove(filepath.Join(repo, "a.txt")))

	out, err := execute(t, "status", "-p", repo)
	require.Error(t, err)
	assert.Contains(t, out, "[1/1] unchanged ./docs/b.txt")
	assert.Contains(t, out, "[-] missing ./a.txt")
	assert.Contains(t, out, "[-] ignored ./.repositoryManifest")

	counted := regexp.MustCompile(`\[(\d+)/(\d+)\]`)
	for _, m := range counted.FindAllStringSubmatch(out, -1) {
		n, _ := strconv.Atoi(m[1])
		total, _ := strconv.Atoi(m[2])
		assert.LessOrEqual(t, n, total, "progress counter passed its total: %s", m[0])
	}
}

func TestHistory_RecordsRuns(t *testing.T) {
	isolateCLI(t)
	repo := newRepo(t)

	_, err := execute(t, "status", repo)
	require.NoError(t, err)

	out, err := execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "create")
	assert.Contains(t, out, "status")
	assert.Contains(t, out, "Showing 2 runs.")

	out, err = execute(t, "history", "clean", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 2 runs.")

	out, err = execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded.")
}

func TestHistory_ShowUnknown(t *testing.T) {
	isolateCLI(t)

	_, err := execute(t, "history", "show", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no run with ID nope")
}

func TestHistory_Disabled(t *testing.T) {
	home := isolateCLI(t)
	t.Setenv("REPOTOOL_HISTORY_ENABLED", "false")
	newRepo(t)

	_, err := os.Stat(filepath.Join(home, "history"))
	assert.True(t, os.IsNotExist(err), "history store should not be created")
}

func TestConfigPathAndInit(t *testing.T) {
	home := isolateCLI(t)
	want := filepath.Join(home, ".config", "repotool", "config.yaml")

	out, err := execute(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, want+"\n", out)

	out, err = execute(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Created default config file")
	assert.FileExists(t, want)

	out, err = execute(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestVersion(t *testing.T) {
	isolateCLI(t)

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "repotool dev")
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "clean", summarize(history.Counts{Ignored: 4}))
	assert.Equal(t, "2 missing, 1 new", summarize(history.Counts{Missing: 2, New: 1}))
	assert.Equal(t, "3 errors", summarize(history.Counts{Errors: 1, DirErrors: 2}))
}
