// Package output renders reconciliation results in the formats offered by
// the CLI (plain, pretty, json, yaml).
//
// Formatters are looked up by name from a registry:
//
//	formatter, err := output.Get("plain")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, report); err != nil {
//	    return err
//	}
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/repotool/pkg/repotool/engine"
	"github.com/jamesainslie/repotool/pkg/repotool/logging"
)

var logger = logging.Get("output")

// Report is one reconciliation pass as seen by a formatter.
type Report struct {
	Results *engine.Results

	// Root is the repository directory that was reconciled.
	Root string

	// Command is the CLI command that produced the pass (status, validate...).
	Command string

	// Detail lists the files in each bucket instead of counts only.
	Detail bool

	// IgnoreDate treats last-modified-only differences as insignificant.
	IgnoreDate bool

	// Saved is set when the manifest was written back after the pass.
	Saved bool

	Elapsed time.Duration
}

// Different reports whether the pass should produce a non-zero exit code.
func (r *Report) Different() bool {
	if r.Results == nil {
		return false
	}
	return r.Results.Different(r.IgnoreDate)
}

// Formatter writes a rendered report.
type Formatter interface {
	Format(w *bytes.Buffer, r *Report) error
}

// FormatterFactory creates a Formatter.
type FormatterFactory func() Formatter

// Registry maps names to formatter factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds or replaces a formatter factory.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		logger.Debug("unknown formatter requested", "name", name)
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns the registered names, sorted.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds the built-in formatters.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a formatter from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns the names in the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
