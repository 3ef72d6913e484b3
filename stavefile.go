//go:build stave

package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/yaklabco/stave/pkg/sh"
	"github.com/yaklabco/stave/pkg/st"
)

// Default target when running `stave` with no arguments.
var Default = Build

// Aliases for common targets.
var Aliases = map[string]interface{}{
	"b": Build,
	"t": Test,
	"l": Lint,
	"i": Install,
	"c": Clean,
	"s": Smoke,
}

const (
	binaryName = "repotool"
	mainPkg    = "./cmd/repotool"
	binDir     = "bin"
	modulePath = "github.com/jamesainslie/repotool"
)

// All runs lint, tests, the build and the smoke test.
func All() error {
	st.Deps(Lint, Test)
	st.Deps(Build)
	st.Deps(Smoke)
	return nil
}

// Build compiles the repotool binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating bin directory: %w", err)
	}
	return sh.RunV("go", "build", "-ldflags", buildLdflags(), "-o", binaryPath(), mainPkg)
}

// Install builds repotool and copies it to GOBIN, GOPATH/bin or /usr/local/bin.
func Install() error {
	st.Deps(Build)

	dir, err := installDir()
	if err != nil {
		return err
	}
	dst := filepath.Join(dir, exeName(binaryName))

	if st.Verbose() {
		fmt.Printf("Installing %s to %s\n", binaryPath(), dst)
	}
	return sh.Copy(dst, binaryPath())
}

// Uninstall removes the installed binary.
func Uninstall() error {
	dir, err := installDir()
	if err != nil {
		return err
	}
	target := filepath.Join(dir, exeName(binaryName))

	if _, err := os.Stat(target); os.IsNotExist(err) {
		if st.Verbose() {
			fmt.Printf("Binary not found at %s, nothing to uninstall\n", target)
		}
		return nil
	}
	if st.Verbose() {
		fmt.Printf("Removing %s\n", target)
	}
	return os.Remove(target)
}

// Test runs all tests with race detection and coverage.
func Test() error {
	return sh.RunV("go", "test", "-race", "-cover", "./...")
}

// Cover writes an HTML coverage report to bin/coverage.html.
func Cover() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating bin directory: %w", err)
	}
	profile := filepath.Join(binDir, "coverage.out")
	if err := sh.RunV("go", "test", "-coverprofile", profile, "./..."); err != nil {
		return err
	}
	return sh.RunV("go", "tool", "cover", "-html", profile, "-o", filepath.Join(binDir, "coverage.html"))
}

// Bench runs the hashing and reconciliation benchmarks.
func Bench() error {
	return sh.RunV("go", "test", "-run", "^$", "-bench", ".", "-benchmem",
		"./pkg/repotool/hasher/...", "./pkg/repotool/engine/...")
}

// Smoke builds the binary and drives create, status, update and validate
// against a scratch tree, checking the exit codes.
func Smoke() error {
	st.Deps(Build)

	bin, err := filepath.Abs(binaryPath())
	if err != nil {
		return err
	}
	repo, err := os.MkdirTemp("", "repotool-smoke-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(repo)

	state, err := os.MkdirTemp("", "repotool-smoke-state-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(state)

	if err := os.WriteFile(filepath.Join(repo, "a.txt"), []byte("alpha"), 0o644); err != nil {
		return err
	}

	env := append(os.Environ(),
		"REPOTOOL_HISTORY_PATH="+filepath.Join(state, "history"),
		"REPOTOOL_LOGGING_PATH="+filepath.Join(state, "repotool.log"),
	)
	steps := []struct {
		args []string
		want int
		prep func() error
	}{
		{args: []string{"create", repo}, want: 0},
		{args: []string{"status", repo}, want: 0},
		{
			args: []string{"status", "-d", repo},
			want: 1,
			prep: func() error { return os.WriteFile(filepath.Join(repo, "b.txt"), []byte("bravo"), 0o644) },
		},
		{args: []string{"update", repo}, want: 0},
		{args: []string{"validate", "-m", "--track-duplicates", repo}, want: 0},
	}

	for _, step := range steps {
		if step.prep != nil {
			if err := step.prep(); err != nil {
				return err
			}
		}
		cmd := exec.Command(bin, step.args...)
		cmd.Env = env
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		code := 0
		if err := cmd.Run(); err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				return fmt.Errorf("running %s: %w", strings.Join(step.args, " "), err)
			}
			code = exitErr.ExitCode()
		}
		if code != step.want {
			return fmt.Errorf("repotool %s exited %d, want %d", strings.Join(step.args, " "), code, step.want)
		}
		if st.Verbose() {
			fmt.Printf("ok: repotool %s -> %d\n", strings.Join(step.args, " "), code)
		}
	}
	return nil
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV("golangci-lint", "run", "./...")
}

// Clean removes build artifacts.
func Clean() error {
	if st.Verbose() {
		fmt.Printf("Removing %s/\n", binDir)
	}
	return sh.Rm(binDir + "/")
}

// Fmt formats all Go code.
func Fmt() error {
	if err := sh.Run("gofmt", "-w", "."); err != nil {
		return fmt.Errorf("running gofmt: %w", err)
	}
	return sh.Run("goimports", "-w", ".")
}

// Tidy runs go mod tidy.
func Tidy() error {
	return sh.RunV("go", "mod", "tidy")
}

func binaryPath() string {
	return filepath.Join(binDir, exeName(binaryName))
}

func exeName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

// installDir resolves GOBIN, then GOPATH/bin, then /usr/local/bin.
func installDir() (string, error) {
	gocmd := st.GoCmd()
	bin, err := sh.Output(gocmd, "env", "GOBIN")
	if err != nil {
		return "", fmt.Errorf("determining GOBIN: %w", err)
	}
	if bin != "" {
		return bin, nil
	}

	gopath, err := sh.Output(gocmd, "env", "GOPATH")
	if err != nil {
		return "", fmt.Errorf("determining GOPATH: %w", err)
	}
	if gopath != "" {
		return filepath.Join(gopath, "bin"), nil
	}
	return "/usr/local/bin", nil
}

// buildLdflags returns ldflags for version injection.
func buildLdflags() string {
	version := "dev"
	commit := "unknown"
	date := time.Now().Format(time.RFC3339)

	if v, err := sh.Output("git", "describe", "--tags", "--always"); err == nil && v != "" {
		version = strings.TrimSpace(v)
	}
	if c, err := sh.Output("git", "rev-parse", "--short", "HEAD"); err == nil && c != "" {
		commit = strings.TrimSpace(c)
	}

	pkg := modulePath + "/cmd/repotool"
	return fmt.Sprintf(
		"-X %s.version=%s -X %s.commit=%s -X %s.date=%s",
		pkg, version, pkg, commit, pkg, date,
	)
}
