//go:build !linux && !darwin

package tuner

import "runtime"

// Detect reports the CPU count and an assumed memory size.
func Detect() (SystemResources, error) {
	return SystemResources{
		CPUCores:     runtime.NumCPU(),
		TotalRAM:     fallbackTotalRAM,
		AvailableRAM: fallbackTotalRAM / 2,
	}, nil
}
