package memory

import (
	"os"
	"runtime/debug"
	"strconv"

	"photo-gallery/internal/logging"
)

// DefaultMemoryRatio is the share of the container limit given to the Go
// heap. The rest is left for libvips, which allocates outside the heap.
const DefaultMemoryRatio = 0.75

// Sources reported in LimitResult.
const (
	SourceGOMEMLIMIT = "GOMEMLIMIT"
	SourceContainer  = "MEMORY_LIMIT"
	SourceNone       = "none"
)

// LimitResult describes the soft memory limit in effect after configuration.
type LimitResult struct {
	Configured     bool
	Source         string
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// ConfigureFromEnv sets the Go soft memory limit from MEMORY_LIMIT (bytes,
// typically from the Kubernetes Downward API) scaled by MEMORY_RATIO. An
// explicit GOMEMLIMIT always wins. Call it before the transcoder starts.
func ConfigureFromEnv() LimitResult {
	return configure(os.Getenv, debug.SetMemoryLimit)
}

func configure(getenv func(string) string, setLimit func(int64) int64) LimitResult {
	if v := getenv("GOMEMLIMIT"); v != "" {
		res := LimitResult{Source: SourceGOMEMLIMIT}
		if limit := setLimit(-1); limit > 0 && limit < 1<<62 {
			res.Configured = true
			res.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", v)
		return res
	}

	raw := getenv("MEMORY_LIMIT")
	if raw == "" {
		logging.Debug("MEMORY_LIMIT not set, GOMEMLIMIT will not be configured automatically")
		return LimitResult{Source: SourceNone}
	}
	containerLimit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || containerLimit <= 0 {
		logging.Warn("Ignoring invalid MEMORY_LIMIT %q", raw)
		return LimitResult{Source: SourceNone}
	}

	ratio := DefaultMemoryRatio
	if r := getenv("MEMORY_RATIO"); r != "" {
		parsed, err := strconv.ParseFloat(r, 64)
		if err != nil || parsed <= 0 || parsed > 1 {
			logging.Warn("MEMORY_RATIO %q must be within (0, 1], using %.2f", r, DefaultMemoryRatio)
		} else {
			ratio = parsed
		}
	}

	goLimit := int64(float64(containerLimit) * ratio)
	setLimit(goLimit)
	logging.Info("Configured GOMEMLIMIT: %s (%.0f%% of %s container limit)",
		formatBytes(goLimit), ratio*100, formatBytes(containerLimit))

	return LimitResult{
		Configured:     true,
		Source:         SourceContainer,
		ContainerLimit: containerLimit,
		GoMemLimit:     goLimit,
		Ratio:          ratio,
	}
}

// formatBytes renders b with a binary unit, e.g. "1.5 GiB".
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
