package logging_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jamesainslie/repotool/pkg/repotool/logging"
)

func countLogs(t *testing.T, dir, prefix string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	n := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), ".log") {
			n++
		}
	}
	return n
}

func TestRotatingWriter_RotatesBySize(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := logging.NewRotatingWriter(filepath.Join(dir, "size.log"), logging.RotationConfig{MaxSize: 128})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}

	line := []byte(strings.Repeat("x", 50) + "\n")
	for i := 0; i < 10; i++ {
		if _, err := w.Write(line); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// 51 bytes per line, two lines per file.
	if got := countLogs(t, dir, "size"); got != 5 {
		t.Errorf("log files = %d, want 5", got)
	}

	info, err := os.Stat(w.Path())
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() > 128 {
		t.Errorf("active file size = %d, exceeds MaxSize", info.Size())
	}
}

func TestRotatingWriter_MaxBackups(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := logging.NewRotatingWriter(filepath.Join(dir, "keep.log"), logging.RotationConfig{
		MaxSize:    64,
		MaxBackups: 2,
	})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}

	line := []byte(strings.Repeat("y", 40) + "\n")
	for i := 0; i < 20; i++ {
		if _, err := w.Write(line); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if got := countLogs(t, dir, "keep"); got != 3 {
		t.Errorf("log files = %d, want active + 2 backups", got)
	}
}

func TestRotatingWriter_PrunesByAgeOnOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	stale := filepath.Join(dir, "age.2020-01-01-000000.log")
	fresh := filepath.Join(dir, "age.2099-01-01-000000.log")
	unrelated := filepath.Join(dir, "other.2020-01-01-000000.log")

	for _, p := range []string{stale, fresh, unrelated} {
		if err := os.WriteFile(p, []byte("old\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-90 * 24 * time.Hour)
	for _, p := range []string{stale, unrelated} {
		if err := os.Chtimes(p, old, old); err != nil {
			t.Fatal(err)
		}
	}

	w, err := logging.NewRotatingWriter(filepath.Join(dir, "age.log"), logging.RotationConfig{MaxAge: 30})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale rotated file was not pruned")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh rotated file was pruned")
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Error("file belonging to another log was pruned")
	}
}

func TestRotatingWriter_AppendsToExisting(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "append.log")
	if err := os.WriteFile(path, []byte("first\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := logging.NewRotatingWriter(path, logging.RotationConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("second\n")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "first\nsecond\n" {
		t.Errorf("content = %q", data)
	}
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	t.Parallel()

	w, err := logging.NewRotatingWriter(filepath.Join(t.TempDir(), "closed.log"), logging.RotationConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := w.Write([]byte("late")); !errors.Is(err, os.ErrClosed) {
		t.Errorf("Write() after Close error = %v, want os.ErrClosed", err)
	}
}
