package workers

import (
	"context"
	"os"
	"runtime"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// EnvWorkers overrides every computed worker count when set to a positive
// integer.
const EnvWorkers = "ATELIER_WORKERS"

// Count returns a worker count of multiplier workers per available CPU,
// capped at limit when limit is positive. GOMAXPROCS is used rather than
// NumCPU so container CPU limits are respected.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(EnvWorkers); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			return capped(count, limit)
		}
	}

	n := int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	if n < 1 {
		n = 1
	}
	return capped(n, limit)
}

func capped(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}

// ForCPU sizes pools for CPU-bound work such as thumbnail encoding.
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO sizes pools for work dominated by filesystem or database waits.
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// ForMixed sizes pools for work that both reads files and processes them.
func ForMixed(limit int) int {
	return Count(1.5, limit)
}

// Each runs fn for every item with at most n concurrent calls. The first
// error cancels the context passed to the remaining calls and is returned.
func Each[T any](ctx context.Context, n int, items []T, fn func(context.Context, T) error) error {
	if n < 1 {
		n = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n)
	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return fn(gctx, item)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
