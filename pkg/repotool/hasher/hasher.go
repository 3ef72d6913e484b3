// Package hasher computes content digests for files tracked by a repository
// manifest. Files are streamed through the digest in fixed-size chunks so
// memory use does not grow with file size.
package hasher

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
)

// Algorithm names accepted by Compute. Matching is case-insensitive.
const (
	MD5        = "MD5"
	SHA1       = "SHA1"
	SHA256     = "SHA256"
	SHA512     = "SHA512"
	BLAKE2B256 = "BLAKE2B-256"
	XXH64      = "XXH64"
)

// Default is the algorithm used for manifests that do not name one.
const Default = MD5

// bufferSize is the chunk size used when streaming file content.
const bufferSize = 64 * 1024

var (
	// ErrUnsupportedAlgorithm is returned for unknown algorithm identifiers.
	ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")

	// ErrRead is returned when the file cannot be opened or read.
	ErrRead = errors.New("reading file for hashing")
)

// Func computes the encoded digest of the file at path.
// Compute is the production implementation; tests substitute their own.
type Func func(path, algorithm string) (string, error)

var constructors = map[string]func() hash.Hash{
	MD5:    md5.New,
	SHA1:   sha1.New,
	SHA256: sha256.New,
	SHA512: sha512.New,
	BLAKE2B256: func() hash.Hash {
		// New256 only fails for keys longer than 64 bytes.
		h, _ := blake2b.New256(nil)
		return h
	},
	XXH64: func() hash.Hash { return xxhash.New() },
}

// Compute streams the file at path through the named digest and returns the
// standard base64 encoding of the result.
func Compute(path, algorithm string) (string, error) {
	h, err := New(algorithm)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRead, err)
	}
	defer f.Close()

	buf := make([]byte, bufferSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrRead, path, err)
	}

	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// New returns a fresh hash.Hash for the named algorithm.
func New(algorithm string) (hash.Hash, error) {
	ctor, ok := constructors[Canonical(algorithm)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	return ctor(), nil
}

// Canonical returns the upper-case form of an algorithm name.
func Canonical(algorithm string) string {
	return strings.ToUpper(strings.TrimSpace(algorithm))
}

// IsSupported reports whether the algorithm name is known.
func IsSupported(algorithm string) bool {
	_, ok := constructors[Canonical(algorithm)]
	return ok
}

// Supported returns the sorted list of algorithm names.
func Supported() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
