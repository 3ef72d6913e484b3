// Package tuner detects host resources and sizes repotool's I/O worker pool.
package tuner

import "runtime"

// SystemResources describes the host.
type SystemResources struct {
	CPUCores     int
	TotalRAM     int64
	AvailableRAM int64
}

// Pool limits for concurrent directory reads and hash streams.
const (
	minWorkers = 4
	maxWorkers = 64

	// Below this much available memory the pool is held at lowMemoryWorkers
	// so hashing does not compete with the page cache.
	lowMemoryThreshold = 1 << 30
	lowMemoryWorkers   = 8
)

// fallbackTotalRAM is assumed when the platform cannot report memory.
const fallbackTotalRAM = 8 << 30

// Workers returns the I/O concurrency for resources. Hashing is disk bound,
// so the pool runs two workers per core. A positive override wins, capped
// at maxWorkers.
func Workers(resources SystemResources, override int) int {
	if override > 0 {
		return min(override, maxWorkers)
	}

	cores := resources.CPUCores
	if cores <= 0 {
		cores = runtime.NumCPU()
	}

	workers := min(max(cores*2, minWorkers), maxWorkers)
	if resources.AvailableRAM > 0 && resources.AvailableRAM < lowMemoryThreshold {
		workers = min(workers, lowMemoryWorkers)
	}
	return workers
}

// AutoWorkers detects resources and returns Workers(resources, override).
// Detection failures fall back to CPU-only sizing.
func AutoWorkers(override int) int {
	resources, err := Detect()
	if err != nil {
		resources = SystemResources{CPUCores: runtime.NumCPU()}
	}
	return Workers(resources, override)
}
