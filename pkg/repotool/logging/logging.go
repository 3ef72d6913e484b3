// Package logging provides component loggers for repotool backed by
// charmbracelet/log, writing to a rotating file and optionally to stderr.
//
// Loggers obtained before Init are silent:
//
//	if err := logging.Init(logging.DefaultConfig()); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	logger := logging.Get("engine")
//	logger.Info("pass complete", "missing", 3)
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Level is a logging severity.
type Level int

// Levels from least to most severe.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
}

func (l Level) charm() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ErrInvalidLevel is returned for an unrecognised level name.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel converts a level name to a Level. "warning" is accepted as warn.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
}

// Config configures the logging system.
type Config struct {
	// Level is the default file log level.
	Level string

	// Path is the log file. Empty uses DefaultLogPath().
	Path string

	Rotation RotationConfig

	// Components overrides the level for individual components.
	Components map[string]string

	// ConsoleLevel mirrors entries at or above this level to stderr.
	// Empty disables console output.
	ConsoleLevel string

	// Console replaces stderr as the console destination.
	Console io.Writer
}

// Logger is a component logger. It always writes to the log file and
// optionally to the console.
type Logger struct {
	file      *log.Logger
	console   *log.Logger
	component string
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, keyvals ...interface{}) { l.emit(LevelDebug, msg, keyvals) }

// Info logs at info level.
func (l *Logger) Info(msg string, keyvals ...interface{}) { l.emit(LevelInfo, msg, keyvals) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, keyvals ...interface{}) { l.emit(LevelWarn, msg, keyvals) }

// Error logs at error level.
func (l *Logger) Error(msg string, keyvals ...interface{}) { l.emit(LevelError, msg, keyvals) }

// Component returns the name the logger was created with.
func (l *Logger) Component() string {
	return l.component
}

func (l *Logger) emit(level Level, msg string, keyvals []interface{}) {
	l.file.Log(level.charm(), msg, keyvals...)
	if l.console != nil {
		l.console.Log(level.charm(), msg, keyvals...)
	}
}

// With returns a logger that adds keyvals to every entry.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	child := &Logger{
		file:      l.file.With(keyvals...),
		component: l.component,
	}
	if l.console != nil {
		child.console = l.console.With(keyvals...)
	}
	return child
}

type state struct {
	mu           sync.RWMutex
	initialized  bool
	writer       *RotatingWriter
	level        Level
	components   map[string]Level
	console      io.Writer
	consoleLevel Level
	loggers      map[string]*Logger
}

var global = &state{
	components: make(map[string]Level),
	loggers:    make(map[string]*Logger),
}

// Init configures the logging system. Calling it again replaces the previous
// configuration and rebuilds every logger handed out so far.
func Init(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	components := make(map[string]Level, len(cfg.Components))
	for comp, name := range cfg.Components {
		lvl, err := ParseLevel(name)
		if err != nil {
			return fmt.Errorf("parsing level for component %s: %w", comp, err)
		}
		components[comp] = lvl
	}

	var console io.Writer
	var consoleLevel Level
	if cfg.ConsoleLevel != "" {
		consoleLevel, err = ParseLevel(cfg.ConsoleLevel)
		if err != nil {
			return fmt.Errorf("parsing console level: %w", err)
		}
		console = cfg.Console
		if console == nil {
			console = os.Stderr
		}
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}

	global.mu.Lock()
	defer global.mu.Unlock()

	if global.writer != nil {
		if err := global.writer.Close(); err != nil {
			return fmt.Errorf("closing existing writer: %w", err)
		}
		global.writer = nil
	}

	writer, err := NewRotatingWriter(path, cfg.Rotation)
	if err != nil {
		return fmt.Errorf("creating log writer: %w", err)
	}

	global.writer = writer
	global.level = level
	global.components = components
	global.console = console
	global.consoleLevel = consoleLevel
	global.initialized = true

	for component, logger := range global.loggers {
		*logger = *newLogger(component)
	}
	return nil
}

// Get returns the logger for component, creating it on first use.
func Get(component string) *Logger {
	global.mu.RLock()
	logger, ok := global.loggers[component]
	global.mu.RUnlock()
	if ok {
		return logger
	}

	global.mu.Lock()
	defer global.mu.Unlock()

	if logger, ok := global.loggers[component]; ok {
		return logger
	}
	logger = newLogger(component)
	global.loggers[component] = logger
	return logger
}

// newLogger must be called with global.mu held.
func newLogger(component string) *Logger {
	level := global.level
	if lvl, ok := global.components[component]; ok {
		level = lvl
	}

	if !global.initialized {
		return &Logger{
			file:      log.NewWithOptions(io.Discard, log.Options{Prefix: component}),
			component: component,
		}
	}

	logger := &Logger{
		file: log.NewWithOptions(global.writer, log.Options{
			Level:           level.charm(),
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          component,
		}),
		component: component,
	}

	if global.console != nil {
		logger.console = log.NewWithOptions(global.console, log.Options{
			Level:           global.consoleLevel.charm(),
			ReportTimestamp: true,
			TimeFormat:      "15:04:05",
			Prefix:          component,
		})
	}

	return logger
}

// Close flushes the log file and returns every logger to silent mode.
func Close() error {
	global.mu.Lock()
	defer global.mu.Unlock()

	if !global.initialized {
		return nil
	}

	var err error
	if global.writer != nil {
		err = global.writer.Close()
		global.writer = nil
	}

	global.initialized = false
	global.console = nil
	global.components = make(map[string]Level)
	for component, logger := range global.loggers {
		*logger = *newLogger(component)
	}

	if err != nil {
		return fmt.Errorf("closing log writer: %w", err)
	}
	return nil
}

// DefaultLogPath returns $XDG_STATE_HOME/repotool/repotool.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "repotool", "repotool.log")
}

// DefaultConfig returns info-level file logging at the default path.
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Path:     DefaultLogPath(),
		Rotation: DefaultRotationConfig(),
	}
}
