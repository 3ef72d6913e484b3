package logging_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jamesainslie/repotool/pkg/repotool/logging"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    logging.Level
		wantErr bool
	}{
		{"debug", logging.LevelDebug, false},
		{"INFO", logging.LevelInfo, false},
		{"warn", logging.LevelWarn, false},
		{"warning", logging.LevelWarn, false},
		{" error ", logging.LevelError, false},
		{"verbose", logging.LevelInfo, true},
		{"", logging.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := logging.ParseLevel(tt.input)
			if tt.wantErr {
				if !errors.Is(err, logging.ErrInvalidLevel) {
					t.Fatalf("ParseLevel(%q) error = %v, want ErrInvalidLevel", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLevel(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	t.Parallel()

	if logging.LevelWarn.String() != "warn" {
		t.Errorf("LevelWarn.String() = %q", logging.LevelWarn.String())
	}
	if logging.Level(42).String() != "unknown" {
		t.Errorf("Level(42).String() = %q", logging.Level(42).String())
	}
}

// The tests below share the global logging state and must not run in parallel.

func TestSilentBeforeInit(t *testing.T) {
	logger := logging.Get("silent")
	logger.Info("nobody hears this")
	logger.With("k", "v").Error("or this")

	if logger.Component() != "silent" {
		t.Errorf("Component() = %q", logger.Component())
	}
}

func TestInitWritesFileAndConsole(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "repotool.log")
	var console bytes.Buffer

	// Obtained before Init: must start writing once Init runs.
	early := logging.Get("early")

	err := logging.Init(logging.Config{
		Level:        "info",
		Path:         logPath,
		ConsoleLevel: "warn",
		Console:      &console,
		Components:   map[string]string{"engine": "debug"},
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = logging.Close() })

	engine := logging.Get("engine")
	engine.Debug("engine detail", "dir", "./docs/")
	engine.Warn("unreadable directory", "path", "./locked/")

	other := logging.Get("output")
	other.Debug("hidden detail")
	other.Info("report written")

	early.Info("early logger works")

	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	content := string(data)

	for _, want := range []string{"engine detail", "unreadable directory", "report written", "early logger works"} {
		if !strings.Contains(content, want) {
			t.Errorf("log file missing %q:\n%s", want, content)
		}
	}
	if strings.Contains(content, "hidden detail") {
		t.Error("debug entry from info-level component reached the file")
	}

	if !strings.Contains(console.String(), "unreadable directory") {
		t.Errorf("console missing warn entry: %q", console.String())
	}
	if strings.Contains(console.String(), "report written") {
		t.Error("info entry reached a warn-level console")
	}
}

func TestInitRejectsBadLevels(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  logging.Config
	}{
		{"default level", logging.Config{Level: "loud", Path: filepath.Join(dir, "a.log")}},
		{"component level", logging.Config{Level: "info", Path: filepath.Join(dir, "b.log"), Components: map[string]string{"x": "nope"}}},
		{"console level", logging.Config{Level: "info", Path: filepath.Join(dir, "c.log"), ConsoleLevel: "nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := logging.Init(tt.cfg)
			if !errors.Is(err, logging.ErrInvalidLevel) {
				t.Errorf("Init() error = %v, want ErrInvalidLevel", err)
			}
		})
	}
}

func TestCloseWithoutInit(t *testing.T) {
	if err := logging.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := logging.DefaultConfig()
	if cfg.Level != "info" {
		t.Errorf("Level = %q, want info", cfg.Level)
	}
	if !strings.HasSuffix(cfg.Path, filepath.Join("repotool", "repotool.log")) {
		t.Errorf("Path = %q", cfg.Path)
	}
	if cfg.Rotation.MaxSize != 10<<20 {
		t.Errorf("Rotation.MaxSize = %d", cfg.Rotation.MaxSize)
	}
}
