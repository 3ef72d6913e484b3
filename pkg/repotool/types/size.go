// Package types holds small value helpers shared across repotool packages.
package types

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
)

// Binary size units.
const (
	KiB int64 = 1 << 10
	MiB int64 = 1 << 20
	GiB int64 = 1 << 30
	TiB int64 = 1 << 40
)

// ErrInvalidSize is returned when a size string cannot be parsed.
var ErrInvalidSize = errors.New("invalid size format")

var sizePattern = regexp.MustCompile(`(?i)^([0-9]+(?:\.[0-9]+)?)\s*([kmgt]?)(i?b)?$`)

// ParseSize parses sizes such as "512", "512B", "100K", "50MB", "1.5GiB".
// Units are always binary: "K", "KB" and "KiB" all mean 1024 bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSize)
	}

	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	unit := "B"
	if m[2] != "" {
		unit = strings.ToUpper(m[2]) + "iB"
	}

	n, err := humanize.ParseBytes(m[1] + " " + unit)
	if err != nil || n > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	return int64(n), nil
}

// FormatSize renders bytes with binary units, e.g. "1.5 MiB".
// Negative values are rendered as zero.
func FormatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}
