package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"atelier/internal/logging"
)

// DefaultRatio is the share of the container limit given to the Go heap.
// The rest covers goroutine stacks, cgo allocations of SQLite and image
// decoding buffers.
const DefaultRatio = 0.85

// LimitResult describes what ApplyLimit did.
type LimitResult struct {
	// Source is "GOMEMLIMIT", "config" or "none".
	Source         string
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// ApplyLimit sets the soft memory limit to ratio of containerLimit. An
// explicit GOMEMLIMIT in the environment wins; a zero containerLimit leaves
// the runtime default in place.
func ApplyLimit(containerLimit int64, ratio float64) LimitResult {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		res := LimitResult{Source: "GOMEMLIMIT"}
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			res.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", env)
		return res
	}

	if containerLimit <= 0 {
		logging.Debug("No memory limit configured, GOMEMLIMIT left unset")
		return LimitResult{Source: "none"}
	}

	if ratio <= 0 || ratio > 1 {
		ratio = DefaultRatio
	}
	limit := int64(float64(containerLimit) * ratio)
	debug.SetMemoryLimit(limit)

	logging.Info("Configured GOMEMLIMIT: %s (%.1f%% of %s)", FormatBytes(limit), ratio*100, FormatBytes(containerLimit))
	return LimitResult{Source: "config", ContainerLimit: containerLimit, GoMemLimit: limit, Ratio: ratio}
}

// CurrentLimit returns the runtime's soft memory limit, or 0 when none is
// set.
func CurrentLimit() int64 {
	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || limit >= math.MaxInt64 {
		return 0
	}
	return limit
}

// FormatBytes renders b with binary units.
func FormatBytes(b int64) string {
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
