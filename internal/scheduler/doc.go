// Package scheduler decides, after every navigation step and every finished
// task, which entries to decode, which to evict and which still need a
// thumbnail, and hands that work to a bounded pool.
//
// # Policy
//
// With N entries, current index cur and a pool of cores workers, the
// distance of entry i is the circular distance
//
//	d = min(|i-cur|, N-|i-cur|)
//
// Each pass visits the window cur-(cores+1) .. cur+(cores+1), wrapped
// around the ends, each index once. An entry with d < cores and no full
// decode gets LoadFull; an entry further out that still holds one gets
// Unload. Full decodes outside the window are tracked too: any entry known
// to hold one at d >= cores gets Unload, however far away it is. After
// that, spare pool capacity goes to a background pass
// that requests one thumbnail for every entry, in order, exactly once.
//
// # Concurrency
//
// A pass never blocks on an entry: entries are claimed with
// collection.Entry.TryClaim and skipped when their lock is held or a task
// for them is already queued or running. A pass is also skipped entirely
// while cores of its own tasks are still loading; the next completion
// triggers a new one.
//
// Every dispatched task sends exactly one completion after it has
// published its results. [Scheduler.Run] forwards those results to the
// Listener and then runs the next pass, so work keeps flowing until no
// entry needs anything.
package scheduler
