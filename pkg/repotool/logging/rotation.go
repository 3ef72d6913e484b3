package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// RotationConfig controls when the log file is rotated and how many rotated
// files are retained.
type RotationConfig struct {
	// MaxSize is the size in bytes that triggers rotation. Zero uses 10MB.
	MaxSize int64

	// MaxAge is the retention in days for rotated files. Zero keeps them.
	MaxAge int

	// MaxBackups caps the number of rotated files. Zero keeps them all.
	MaxBackups int

	// Daily rotates on the first write after midnight.
	Daily bool
}

// DefaultRotationConfig returns 10MB / 30 days / 5 backups with daily rotation.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSize:    10 << 20,
		MaxAge:     30,
		MaxBackups: 5,
		Daily:      true,
	}
}

const rotatedTimeFormat = "2006-01-02-150405"

// RotatingWriter is an io.WriteCloser that rotates its file by size or day.
// Writes are serialised in-process with a mutex and across processes with
// an advisory flock.
type RotatingWriter struct {
	path string
	cfg  RotationConfig

	mu       sync.Mutex
	file     *os.File
	size     int64
	openedAt time.Time
	seq      int
}

// NewRotatingWriter opens path for appending, creating parent directories,
// and prunes stale rotated files.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultRotationConfig().MaxSize
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	w := &RotatingWriter{path: path, cfg: cfg}
	if err := w.open(); err != nil {
		return nil, err
	}
	w.prune()
	return w, nil
}

// Path returns the active log file path.
func (w *RotatingWriter) Path() string {
	return w.path
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}

	if w.due(int64(len(p)), time.Now()) {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotating log file: %w", err)
		}
	}

	fd := int(w.file.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return 0, fmt.Errorf("acquiring file lock: %w", err)
	}
	defer func() { _ = unix.Flock(fd, unix.LOCK_UN) }()

	n, err := w.file.Write(p)
	w.size += int64(n)
	if err != nil {
		return n, fmt.Errorf("writing to log file: %w", err)
	}
	return n, nil
}

// Close syncs and closes the file. Further writes fail with os.ErrClosed.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}

	syncErr := w.file.Sync()
	closeErr := w.file.Close()
	w.file = nil

	if syncErr != nil {
		return fmt.Errorf("syncing log file: %w", syncErr)
	}
	return closeErr
}

func (w *RotatingWriter) open() error {
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	w.file = file
	w.size = info.Size()
	w.openedAt = info.ModTime()
	if w.size == 0 {
		w.openedAt = time.Now()
	}
	return nil
}

// due reports whether writing n more bytes at now requires a rotation.
// An empty file is never rotated for size.
func (w *RotatingWriter) due(n int64, now time.Time) bool {
	if w.size > 0 && w.size+n > w.cfg.MaxSize {
		return true
	}
	if w.cfg.Daily && w.size > 0 {
		y1, m1, d1 := w.openedAt.Date()
		y2, m2, d2 := now.Date()
		if y1 != y2 || m1 != m2 || d1 != d2 {
			return true
		}
	}
	return false
}

func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing current file: %w", err)
	}
	w.file = nil

	if err := os.Rename(w.path, w.rotatedName(time.Now())); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("renaming log file: %w", err)
	}

	if err := w.open(); err != nil {
		return err
	}
	w.openedAt = time.Now()
	w.prune()
	return nil
}

// rotatedName returns base.<timestamp>.ext, adding a counter when several
// rotations happen within the same second.
func (w *RotatingWriter) rotatedName(now time.Time) string {
	ext := filepath.Ext(w.path)
	base := strings.TrimSuffix(w.path, ext)
	stamp := now.Format(rotatedTimeFormat)

	name := fmt.Sprintf("%s.%s%s", base, stamp, ext)
	for {
		if _, err := os.Stat(name); os.IsNotExist(err) {
			return name
		}
		w.seq++
		name = fmt.Sprintf("%s.%s-%d%s", base, stamp, w.seq, ext)
	}
}

// prune deletes rotated files beyond MaxBackups or older than MaxAge.
// Failures are ignored; pruning is retried on the next rotation.
func (w *RotatingWriter) prune() {
	dir := filepath.Dir(w.path)
	active := filepath.Base(w.path)
	ext := filepath.Ext(active)
	prefix := strings.TrimSuffix(active, ext) + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	type rotated struct {
		path    string
		modTime time.Time
	}
	var files []rotated

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == active {
			continue
		}
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, rotated{path: filepath.Join(dir, name), modTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})

	cutoff := time.Now().Add(-time.Duration(w.cfg.MaxAge) * 24 * time.Hour)
	for i, f := range files {
		overCount := w.cfg.MaxBackups > 0 && i >= w.cfg.MaxBackups
		tooOld := w.cfg.MaxAge > 0 && f.modTime.Before(cutoff)
		if overCount || tooOld {
			_ = os.Remove(f.path)
		}
	}
}
