package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jamesainslie/repotool/pkg/repotool/hasher"
)

// DefaultFileName is the name of the manifest file kept at a repository root.
const DefaultFileName = ".repositoryManifest"

// TempDirectoryName is the working directory the tool may create inside a repository.
const TempDirectoryName = "temp-repository"

// DefaultIgnoreList returns the patterns applied to a fresh manifest: the
// manifest file itself and the tool's temporary working directory.
func DefaultIgnoreList() []string {
	return []string{
		`^\./\.repositoryManifest$`,
		`^\./temp-repository/`,
	}
}

// Manifest is the persisted snapshot of a repository tree.
type Manifest struct {
	GUID              string
	Root              *Directory
	InceptionUTC      time.Time
	LastUpdateUTC     *time.Time
	LastValidateUTC   *time.Time
	IgnoreList        []string
	DefaultHashMethod string
}

// New creates an empty manifest with a random GUID and default settings.
func New() *Manifest {
	return &Manifest{
		GUID:              uuid.NewString(),
		Root:              NewDirectory(RootName, nil),
		InceptionUTC:      time.Now().UTC(),
		IgnoreList:        DefaultIgnoreList(),
		DefaultHashMethod: hasher.Default,
	}
}

// HashMethodFor returns the algorithm to use for f: its own recorded type,
// or the manifest default when the file has none.
func (m *Manifest) HashMethodFor(f *File) string {
	if f.HashType != "" {
		return f.HashType
	}
	return m.DefaultHashMethod
}

// Matcher compiles the manifest's ignore list.
func (m *Manifest) Matcher() (*IgnoreMatcher, error) {
	return NewIgnoreMatcher(m.IgnoreList)
}

// document mirrors the persisted JSON layout.
type document struct {
	GUID                string       `json:"Guid"`
	InceptionDateUtc    time.Time    `json:"InceptionDateUtc"`
	LastUpdateDateUtc   *time.Time   `json:"LastUpdateDateUtc,omitempty"`
	LastValidateDateUtc *time.Time   `json:"LastValidateDateUtc,omitempty"`
	IgnoreList          []string     `json:"IgnoreList"`
	DefaultHashMethod   string       `json:"DefaultHashMethod"`
	RootDirectory       directoryDoc `json:"RootDirectory"`
}

type directoryDoc struct {
	Name           string                  `json:"Name"`
	Files          map[string]fileDoc      `json:"Files"`
	Subdirectories map[string]directoryDoc `json:"Subdirectories"`
}

type fileDoc struct {
	Name            string    `json:"Name"`
	FileLength      int64     `json:"FileLength"`
	LastModifiedUtc time.Time `json:"LastModifiedUtc"`
	RegisteredUtc   time.Time `json:"RegisteredUtc"`
	FileHash        hashDoc   `json:"FileHash"`
}

type hashDoc struct {
	HashType string `json:"HashType"`
	HashData string `json:"HashData"`
}

// Encode writes the manifest as an indented JSON document.
func (m *Manifest) Encode(w io.Writer) error {
	doc := document{
		GUID:                m.GUID,
		InceptionDateUtc:    m.InceptionUTC.UTC(),
		LastUpdateDateUtc:   utcPtr(m.LastUpdateUTC),
		LastValidateDateUtc: utcPtr(m.LastValidateUTC),
		IgnoreList:          append([]string{}, m.IgnoreList...),
		DefaultHashMethod:   m.DefaultHashMethod,
		RootDirectory:       encodeDirectory(m.Root),
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return nil
}

func encodeDirectory(d *Directory) directoryDoc {
	doc := directoryDoc{
		Name:           d.Name,
		Files:          make(map[string]fileDoc, len(d.files)),
		Subdirectories: make(map[string]directoryDoc, len(d.subdirectories)),
	}
	for name, f := range d.files {
		doc.Files[name] = fileDoc{
			Name:            f.Name,
			FileLength:      f.Length,
			LastModifiedUtc: f.LastModifiedUTC.UTC(),
			RegisteredUtc:   f.RegisteredUTC.UTC(),
			FileHash:        hashDoc{HashType: f.HashType, HashData: f.HashData},
		}
	}
	for name, sub := range d.subdirectories {
		doc.Subdirectories[name] = encodeDirectory(sub)
	}
	return doc
}

// Decode reads a manifest document.
func Decode(r io.Reader) (*Manifest, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	m := &Manifest{
		GUID:              doc.GUID,
		InceptionUTC:      doc.InceptionDateUtc.UTC(),
		LastUpdateUTC:     utcPtr(doc.LastUpdateDateUtc),
		LastValidateUTC:   utcPtr(doc.LastValidateDateUtc),
		IgnoreList:        append([]string{}, doc.IgnoreList...),
		DefaultHashMethod: doc.DefaultHashMethod,
	}
	if m.DefaultHashMethod == "" {
		m.DefaultHashMethod = hasher.Default
	}

	root, err := decodeDirectory(doc.RootDirectory, RootName, nil)
	if err != nil {
		return nil, err
	}
	root.Name = RootName
	m.Root = root

	if _, err := m.Matcher(); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeDirectory(doc directoryDoc, key string, parent *Directory) (*Directory, error) {
	name := doc.Name
	if name == "" {
		name = key
	}
	d := NewDirectory(name, parent)

	for fileKey, fd := range doc.Files {
		fileName := fd.Name
		if fileName == "" {
			fileName = fileKey
		}
		f := &File{
			Name:            fileName,
			Length:          fd.FileLength,
			LastModifiedUTC: fd.LastModifiedUtc.UTC(),
			RegisteredUTC:   fd.RegisteredUtc.UTC(),
			HashType:        fd.FileHash.HashType,
			HashData:        fd.FileHash.HashData,
		}
		if err := d.AddFile(f); err != nil {
			return nil, err
		}
	}

	for dirKey, sd := range doc.Subdirectories {
		sub, err := decodeDirectory(sd, dirKey, d)
		if err != nil {
			return nil, err
		}
		if err := d.AddSubdirectory(sub); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// Load reads the manifest stored at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Decode(bytes.NewReader(data))
}

// Exists reports whether a manifest file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Save writes the manifest to path atomically using a temp file and rename.
func (m *Manifest) Save(path string) error {
	if path == "" {
		return errors.New("manifest path cannot be empty")
	}

	var buf bytes.Buffer
	if err := m.Encode(&buf); err != nil {
		return err
	}

	tmpPath := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
