/*
Package workers sizes and runs the bounded pool that executes load tasks.

# Sizing

Inside containers runtime.NumCPU reports the host's CPUs while GOMAXPROCS
follows the cgroup limit (Go 1.19+), so sizing uses GOMAXPROCS:

	cores := workers.ForCPU(0)  // one worker per available CPU
	io := workers.ForIO(16)     // two per CPU, at most 16

IMGVIEW_WORKERS overrides the computed count when set to a positive
integer; the limit still applies.

# Pool

Pool runs each submitted function on its own goroutine, with at most Size
of them executing at once. Submit never blocks the caller: the goroutine
waits for a slot, not the submitter. InFlight counts functions that were
submitted and have not finished, queued or running, which is what the
scheduler compares against its core count for back-pressure.
SubmitWithDrop takes a second function that runs instead when Close drops
the task before it gets a slot, so callers can undo their bookkeeping.

	pool := workers.NewPool(workers.ForCPU(0))
	defer pool.Close()
	pool.Submit(func() { decode(entry) })
*/
package workers
