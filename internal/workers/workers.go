package workers

import (
	"os"
	"runtime"
	"strconv"
)

// OverrideEnv names the variable that fixes the worker count regardless of
// the task multiplier.
const OverrideEnv = "CACHE_WORKERS"

// Count returns the number of workers for a task whose per-CPU demand is
// multiplier (1.0 CPU-bound, 1.5 mixed), capped at limit
// when limit > 0. GOMAXPROCS is used rather than NumCPU so container CPU
// limits are respected.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(OverrideEnv); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			return capAt(count, limit)
		}
	}

	workers := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	if workers < 1 {
		workers = 1
	}
	return capAt(workers, limit)
}

func capAt(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}

// ForCPU returns the worker count for decode and resize work.
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForMixed returns the worker count for work that both decodes and waits
// on disk, such as warming the image cache.
func ForMixed(limit int) int {
	return Count(1.5, limit)
}
