//go:build darwin

package tuner

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Detect reports CPU count and hw.memsize. macOS does not expose free
// memory through sysctl, so half of the total is assumed available.
func Detect() (SystemResources, error) {
	resources := SystemResources{CPUCores: runtime.NumCPU()}

	memsize, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return resources, fmt.Errorf("sysctl hw.memsize: %w", err)
	}

	resources.TotalRAM = int64(memsize)
	resources.AvailableRAM = resources.TotalRAM / 2
	return resources, nil
}
