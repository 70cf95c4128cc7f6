/*
Package workers sizes worker pools from the CPUs actually available to the
process.

Inside a container runtime.NumCPU reports the host's CPUs while GOMAXPROCS
follows the cgroup limit, so every helper here starts from GOMAXPROCS and
applies a per-workload multiplier:

	workers.ForCPU(8)   // 1 per CPU: thumbnail encoding
	workers.ForIO(16)   // 2 per CPU: mount scans, database writes
	workers.ForMixed(8) // 1.5 per CPU: read then process

A positive limit caps the result; 0 means uncapped. Operators can pin the
count with the ATELIER_WORKERS environment variable, which still honors the
caller's limit.

Each runs a bounded fan-out over a slice using errgroup:

	err := workers.Each(ctx, workers.ForCPU(4), ids, func(ctx context.Context, id string) error {
		return generate(ctx, id)
	})
*/
package workers
