// Package manifest models the persisted snapshot of a repository's directory
// tree: every tracked file's name, length, timestamps and content hash.
package manifest

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jamesainslie/repotool/pkg/repotool/hasher"
)

// Delimiter separates names in canonical paths.
const Delimiter = "/"

// RootName is the name of every manifest's root directory.
const RootName = "."

// ErrNameConflict is returned when a file and a directory would share a name
// under the same parent.
var ErrNameConflict = errors.New("name already used in directory")

// File is a tracked file. The parent link is only used to derive paths.
type File struct {
	Name            string
	Length          int64
	LastModifiedUTC time.Time
	RegisteredUTC   time.Time
	HashType        string
	HashData        string

	parent *Directory
}

// NewFile creates a detached file entry belonging to parent.
// It is not inserted into parent's file map.
func NewFile(name string, parent *Directory) *File {
	return &File{Name: name, parent: parent}
}

// Parent returns the directory that contains the file.
func (f *File) Parent() *Directory {
	return f.parent
}

// Path returns the canonical path of the file, e.g. "./docs/readme.md".
func (f *File) Path() string {
	if f.parent == nil {
		return f.Name
	}
	return f.parent.Path() + f.Name
}

// HasHash reports whether a digest has been recorded.
func (f *File) HasHash() bool {
	return f.HashData != ""
}

// HashKey identifies the file's content across the tree.
// Files without a recorded hash return "".
func (f *File) HashKey() string {
	if f.HashData == "" {
		return ""
	}
	return hasher.Canonical(f.HashType) + ":" + f.HashData
}

// Directory is a tracked directory holding name-keyed files and subdirectories.
type Directory struct {
	Name string

	parent         *Directory
	files          map[string]*File
	subdirectories map[string]*Directory
}

// NewDirectory creates an empty directory. A nil parent makes it a root.
func NewDirectory(name string, parent *Directory) *Directory {
	return &Directory{
		Name:           name,
		parent:         parent,
		files:          make(map[string]*File),
		subdirectories: make(map[string]*Directory),
	}
}

// Parent returns the containing directory, or nil for the root.
func (d *Directory) Parent() *Directory {
	return d.parent
}

// Path returns the canonical path of the directory with a trailing
// delimiter. The root is "./".
func (d *Directory) Path() string {
	if d.parent == nil {
		return d.Name + Delimiter
	}
	return d.parent.Path() + d.Name + Delimiter
}

// File returns the named file, if present.
func (d *Directory) File(name string) (*File, bool) {
	f, ok := d.files[name]
	return f, ok
}

// Subdirectory returns the named subdirectory, if present.
func (d *Directory) Subdirectory(name string) (*Directory, bool) {
	sub, ok := d.subdirectories[name]
	return sub, ok
}

// AddFile inserts f under its name and makes d its parent.
func (d *Directory) AddFile(f *File) error {
	if _, ok := d.subdirectories[f.Name]; ok {
		return fmt.Errorf("%w: %s%s", ErrNameConflict, d.Path(), f.Name)
	}
	f.parent = d
	d.files[f.Name] = f
	return nil
}

// RemoveFile deletes the named file from the directory.
func (d *Directory) RemoveFile(name string) {
	delete(d.files, name)
}

// AddSubdirectory inserts sub under its name and makes d its parent.
func (d *Directory) AddSubdirectory(sub *Directory) error {
	if _, ok := d.files[sub.Name]; ok {
		return fmt.Errorf("%w: %s%s", ErrNameConflict, d.Path(), sub.Name)
	}
	sub.parent = d
	d.subdirectories[sub.Name] = sub
	return nil
}

// RemoveSubdirectory deletes the named subdirectory and everything below it.
func (d *Directory) RemoveSubdirectory(name string) {
	delete(d.subdirectories, name)
}

// IsEmpty reports whether the directory holds no files and no subdirectories.
func (d *Directory) IsEmpty() bool {
	return len(d.files) == 0 && len(d.subdirectories) == 0
}

// SortedFileNames returns a sorted copy of the file names. Callers may
// mutate the directory while iterating the returned slice.
func (d *Directory) SortedFileNames() []string {
	return sortedKeys(d.files)
}

// SortedSubdirectoryNames returns a sorted copy of the subdirectory names.
func (d *Directory) SortedSubdirectoryNames() []string {
	return sortedKeys(d.subdirectories)
}

// Walk calls fn for every file under d, depth first, files before
// subdirectories, names in sorted order.
func (d *Directory) Walk(fn func(*File)) {
	for _, name := range d.SortedFileNames() {
		fn(d.files[name])
	}
	for _, name := range d.SortedSubdirectoryNames() {
		d.subdirectories[name].Walk(fn)
	}
}

// TotalFiles counts files in d and all of its descendants.
func (d *Directory) TotalFiles() int {
	n := len(d.files)
	for _, sub := range d.subdirectories {
		n += sub.TotalFiles()
	}
	return n
}

// TotalDirectories counts the descendants of d that are directories.
func (d *Directory) TotalDirectories() int {
	n := len(d.subdirectories)
	for _, sub := range d.subdirectories {
		n += sub.TotalDirectories()
	}
	return n
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// JoinPath builds a canonical path from a directory path and a child name.
func JoinPath(dirPath, name string) string {
	if !strings.HasSuffix(dirPath, Delimiter) {
		dirPath += Delimiter
	}
	return dirPath + name
}
