package manifest

import (
	"fmt"
	"regexp"
)

// IgnoreMatcher tests canonical paths against a list of regular expressions.
// It is safe for concurrent use.
type IgnoreMatcher struct {
	patterns []*regexp.Regexp
}

// NewIgnoreMatcher compiles patterns. An invalid pattern is an error.
func NewIgnoreMatcher(patterns []string) (*IgnoreMatcher, error) {
	m := &IgnoreMatcher{patterns: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// Match reports whether the canonical path matches any ignore pattern.
// A nil matcher ignores nothing.
func (m *IgnoreMatcher) Match(path string) bool {
	if m == nil {
		return false
	}
	for _, re := range m.patterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
