package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/repotool/pkg/repotool/manifest"
)

func hashed(t *testing.T, dir *manifest.Directory, name, hashType, data string) *manifest.File {
	t.Helper()
	f := &manifest.File{Name: name, HashType: hashType, HashData: data}
	require.NoError(t, dir.AddFile(f))
	return f
}

func TestDetectMoves(t *testing.T) {
	t.Parallel()

	root := manifest.NewDirectory(manifest.RootName, nil)
	gone1 := hashed(t, root, "gone1", "MD5", "H1")
	gone2 := hashed(t, root, "gone2", "MD5", "H2")
	gone3 := hashed(t, root, "gone3", "MD5", "H1")
	lost := hashed(t, root, "lost", "MD5", "H9")
	unhashed := hashed(t, root, "unhashed", "MD5", "")
	new1 := hashed(t, root, "new1", "MD5", "H2")
	new2 := hashed(t, root, "new2", "MD5", "H1")
	new3 := hashed(t, root, "new3", "MD5", "H1")
	fresh := hashed(t, root, "fresh", "MD5", "H7")
	newUnhashed := hashed(t, root, "newUnhashed", "MD5", "")

	missing := []*manifest.File{gone1, gone2, gone3, lost, unhashed}
	added := []*manifest.File{new1, new2, new3, fresh, newUnhashed}

	moves, restMissing, restNew := DetectMoves(missing, added)

	require.Len(t, moves, 2)

	// Ordered by the first missing file carrying each hash.
	assert.Equal(t, "MD5:H1", moves[0].HashKey)
	assert.Equal(t, []*manifest.File{gone1, gone3}, moves[0].From)
	assert.Equal(t, []*manifest.File{new2, new3}, moves[0].To)

	assert.Equal(t, "MD5:H2", moves[1].HashKey)
	assert.Equal(t, []*manifest.File{gone2}, moves[1].From)
	assert.Equal(t, []*manifest.File{new1}, moves[1].To)

	assert.Equal(t, []*manifest.File{lost, unhashed}, restMissing)
	assert.Equal(t, []*manifest.File{fresh, newUnhashed}, restNew)
}

func TestDetectMoves_AlgorithmsDoNotPair(t *testing.T) {
	t.Parallel()

	root := manifest.NewDirectory(manifest.RootName, nil)
	old := hashed(t, root, "old", "MD5", "same")
	added := hashed(t, root, "added", "SHA256", "same")

	moves, missing, fresh := DetectMoves([]*manifest.File{old}, []*manifest.File{added})

	assert.Empty(t, moves)
	assert.Len(t, missing, 1)
	assert.Len(t, fresh, 1)
}

func TestDetectMoves_Empty(t *testing.T) {
	t.Parallel()

	moves, missing, fresh := DetectMoves(nil, nil)
	assert.Empty(t, moves)
	assert.Empty(t, missing)
	assert.Empty(t, fresh)
}

func TestDetectDuplicates_SkipsUnhashed(t *testing.T) {
	t.Parallel()

	root := manifest.NewDirectory(manifest.RootName, nil)
	hashed(t, root, "a", "MD5", "")
	hashed(t, root, "b", "MD5", "")
	hashed(t, root, "c", "MD5", "X")
	sub := manifest.NewDirectory("sub", nil)
	require.NoError(t, root.AddSubdirectory(sub))
	hashed(t, sub, "d", "md5", "X")

	groups := DetectDuplicates(root)

	require.Len(t, groups, 1)
	assert.Equal(t, "MD5:X", groups[0].HashKey)
	assert.Equal(t, []string{"./c", "./sub/d"}, paths(groups[0].Files))
	assert.Equal(t, 4, root.TotalFiles(), "duplicate detection is read-only")
}

func TestResults_Different(t *testing.T) {
	t.Parallel()

	f := &manifest.File{Name: "x"}

	tests := []struct {
		name       string
		res        Results
		ignoreDate bool
		want       bool
	}{
		{"empty", Results{}, false, false},
		{"missing", Results{Missing: []*manifest.File{f}}, true, true},
		{"changed", Results{Changed: []*manifest.File{f}}, true, true},
		{"new", Results{New: []*manifest.File{f}}, true, true},
		{"moved", Results{Moved: []*MoveGroup{{HashKey: "k"}}}, true, true},
		{"file error", Results{Errors: []*manifest.File{f}}, true, true},
		{"directory error", Results{DirErrors: []PathError{{Path: "./d/", Err: errors.New("x")}}}, true, true},
		{"date only", Results{LastModifiedDiffers: []*manifest.File{f}}, false, true},
		{"date only ignored", Results{LastModifiedDiffers: []*manifest.File{f}}, true, false},
		{"ignored files are not differences", Results{Ignored: []*manifest.File{f}, NewlyIgnored: []*manifest.File{f}}, false, false},
		{"duplicates are not differences", Results{Duplicates: []*DuplicateGroup{{HashKey: "k"}}}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.res.Different(tt.ignoreDate))
		})
	}
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "missing", OutcomeMissing.String())
	assert.Equal(t, "last-modified-differs", OutcomeDateDiffers.String())
	assert.Equal(t, "Outcome(99)", Outcome(99).String())
}

func TestOutcomeLive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		outcome Outcome
		want    bool
	}{
		{OutcomeUnchanged, true},
		{OutcomeNew, true},
		{OutcomeChanged, true},
		{OutcomeDateDiffers, true},
		{OutcomeError, true},
		{OutcomeMissing, false},
		{OutcomeIgnored, false},
		{OutcomeNewlyIgnored, false},
	}
	for _, tt := range tests {
		if got := tt.outcome.Live(); got != tt.want {
			t.Errorf("%s.Live() = %v, want %v", tt.outcome, got, tt.want)
		}
	}
}

func TestPathError(t *testing.T) {
	t.Parallel()

	cause := errors.New("permission denied")
	err := PathError{Path: "./locked/", Err: cause}

	assert.Equal(t, "./locked/: permission denied", err.Error())
	assert.ErrorIs(t, err, cause)
}
