package hasher

import (
	"crypto/md5"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCompute_MD5MatchesStdlib(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "hello world")
	sum := md5.Sum([]byte("hello world"))
	want := base64.StdEncoding.EncodeToString(sum[:])

	got, err := Compute(path, MD5)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, "XrY7u+Ae7tCTyyK7j1rNww==", got)
}

func TestCompute_AllAlgorithms(t *testing.T) {
	t.Parallel()

	path := writeFile(t, strings.Repeat("abc", 100000))
	seen := make(map[string]string)

	for _, algo := range Supported() {
		t.Run(algo, func(t *testing.T) {
			first, err := Compute(path, algo)
			require.NoError(t, err)
			require.NotEmpty(t, first)

			second, err := Compute(path, strings.ToLower(algo))
			require.NoError(t, err)
			assert.Equal(t, first, second, "digest must be deterministic and case-insensitive")
		})
		digest, err := Compute(path, algo)
		require.NoError(t, err)
		seen[digest] = algo
	}

	assert.Len(t, seen, len(Supported()), "each algorithm yields a distinct digest")
}

func TestCompute_Errors(t *testing.T) {
	t.Parallel()

	t.Run("unsupported algorithm", func(t *testing.T) {
		path := writeFile(t, "x")
		_, err := Compute(path, "CRC32")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Compute(filepath.Join(t.TempDir(), "nope"), MD5)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRead)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("directory is not hashable", func(t *testing.T) {
		_, err := Compute(t.TempDir(), MD5)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRead)
	})
}

func TestIsSupported(t *testing.T) {
	t.Parallel()

	assert.True(t, IsSupported("md5"))
	assert.True(t, IsSupported(" SHA256 "))
	assert.True(t, IsSupported("blake2b-256"))
	assert.False(t, IsSupported("whirlpool"))
	assert.Equal(t, MD5, Default)
}
