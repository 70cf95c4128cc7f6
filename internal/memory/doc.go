// Package memory keeps the process inside its memory budget.
//
// ApplyLimit sets the Go soft memory limit (GOMEMLIMIT) from a container
// limit so the garbage collector works harder before the kernel kills the
// process. Monitor samples heap usage against that limit and acts as a
// gate: while usage is above the critical water mark, Wait blocks until it
// falls back under the high water mark. The indexer waits on the gate
// between batches so a scan of a very large library yields to the rest of
// the process instead of growing without bound.
package memory
