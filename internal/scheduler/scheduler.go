package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"imgview/internal/collection"
	"imgview/internal/loader"
	"imgview/internal/logging"
	"imgview/internal/metrics"
	"imgview/internal/workers"
)

// Dispatcher runs tasks on a bounded pool. *workers.Pool implements it.
type Dispatcher interface {
	// SubmitWithDrop queues fn without blocking and reports whether it was
	// accepted. An accepted fn that is later discarded without running
	// calls dropped instead.
	SubmitWithDrop(fn, dropped func()) bool
	// InFlight counts accepted tasks that have not finished.
	InFlight() int
}

// Runner executes one task on an entry. *loader.Loader implements it.
type Runner interface {
	Run(e *collection.Entry) []loader.Kind
}

// Listener receives results. Calls come from the goroutine running Run.
type Listener interface {
	Loaded(kind loader.Kind, e *collection.Entry)
	FilenamesLoaded(entries []*collection.Entry)
}

// Throttle reports memory pressure. *memory.Monitor implements it.
type Throttle interface {
	ShouldThrottle() bool
}

// Options configures a Scheduler.
type Options struct {
	// Cores is the number of tasks allowed in flight. 0 means one per CPU.
	Cores int

	Listener Listener

	// Throttle, when it reports pressure, limits prefetch to the current
	// entry. May be nil.
	Throttle Throttle

	// DisableWindow skips full-resolution prefetch and eviction, leaving
	// only the thumbnail pass.
	DisableWindow bool

	// DisableThumbnailFill skips the background thumbnail pass.
	DisableThumbnailFill bool
}

type completion struct {
	entry *collection.Entry
	kinds []loader.Kind
}

// Scheduler owns the navigation position and drives the load tasks.
type Scheduler struct {
	coll   *collection.Collection
	disp   Dispatcher
	runner Runner
	opts   Options
	cores  int

	// mu serializes passes and guards the fields below.
	mu         sync.Mutex
	current    int
	fillCursor int
	// resident holds entries that may hold a full image. Entries leave it
	// when a pass finds them without one.
	resident map[*collection.Entry]struct{}

	// running counts dispatched tasks whose Run has not returned. It is
	// the back-pressure measure: a pool still reports a task in flight for
	// a moment after its completion has been received.
	running atomic.Int64
	// outstanding counts dispatched tasks whose completion has not been
	// fully handled by Run.
	outstanding atomic.Int64
	completions chan completion
	stopped     chan struct{}
	stopOnce    sync.Once
}

// New creates a Scheduler. Call Run to start consuming completions.
func New(coll *collection.Collection, disp Dispatcher, runner Runner, opts Options) *Scheduler {
	cores := opts.Cores
	if cores <= 0 {
		cores = workers.ForCPU(0)
	}

	return &Scheduler{
		coll:        coll,
		disp:        disp,
		runner:      runner,
		opts:        opts,
		cores:       cores,
		resident:    make(map[*collection.Entry]struct{}),
		completions: make(chan completion, cores*4),
		stopped:     make(chan struct{}),
	}
}

// Cores returns the in-flight task limit.
func (s *Scheduler) Cores() int {
	return s.cores
}

// Collection returns the collection being scheduled.
func (s *Scheduler) Collection() *collection.Collection {
	return s.coll
}

// Schedule runs one pass. It never blocks on an entry. Entries whose last
// load failed are left alone until the next navigation step.
func (s *Scheduler) Schedule() {
	s.schedule(false)
}

func (s *Scheduler) schedule(retryFailed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.coll.Len()
	if n == 0 {
		metrics.SchedulerPassesTotal.WithLabelValues("empty").Inc()
		return
	}
	if s.saturated() {
		metrics.SchedulerPassesTotal.WithLabelValues("saturated").Inc()
		return
	}
	metrics.SchedulerPassesTotal.WithLabelValues("ran").Inc()

	if !s.opts.DisableWindow {
		s.windowPass(n, retryFailed)
	}
	if !s.opts.DisableThumbnailFill {
		s.fillPass(n)
	}
}

// windowPass must be called with s.mu held.
func (s *Scheduler) windowPass(n int, retryFailed bool) {
	cur := s.current
	if cur >= n {
		cur = n - 1
	}
	throttled := s.opts.Throttle != nil && s.opts.Throttle.ShouldThrottle()

	for _, idx := range window(cur, s.cores+1, n) {
		e := s.coll.At(idx)
		if e == nil {
			continue
		}
		d := distance(idx, cur, n)

		w := e.TryClaim(func(c collection.Claim) collection.WorkSet {
			if c.HasFull {
				s.resident[e] = struct{}{}
			}
			if d < s.cores {
				if c.HasFull || (throttled && d > 0) || (c.Failed && !retryFailed) {
					return 0
				}
				return collection.LoadFull
			}
			if c.HasFull {
				return collection.Unload
			}
			return 0
		})
		if w != 0 {
			s.dispatch(e, w)
		}
	}

	s.evictPass(n, cur)
}

// evictPass marks Unload on every resident entry outside the load window,
// however far the position has moved since it was loaded. It must be
// called with s.mu held.
func (s *Scheduler) evictPass(n, cur int) {
	for e := range s.resident {
		if s.coll.At(e.Index()) != e {
			delete(s.resident, e)
			continue
		}
		if distance(e.Index(), cur, n) < s.cores {
			continue
		}

		empty := false
		w := e.TryClaim(func(c collection.Claim) collection.WorkSet {
			if !c.HasFull {
				empty = true
				return 0
			}
			return collection.Unload
		})
		if empty {
			delete(s.resident, e)
		}
		if w != 0 {
			s.dispatch(e, w)
		}
	}
}

// fillPass must be called with s.mu held. The cursor only moves past
// entries whose thumbnail has been requested, so an entry skipped on
// contention is picked up by a later pass.
func (s *Scheduler) fillPass(n int) {
	if s.fillCursor > n {
		s.fillCursor = n
	}
	advancing := true

	for i := s.fillCursor; i < n && !s.saturated(); i++ {
		e := s.coll.At(i)
		if e == nil {
			break
		}

		done := false
		w := e.TryClaim(func(c collection.Claim) collection.WorkSet {
			if c.ThumbRequested || c.HasThumbnail {
				done = true
				return 0
			}
			return collection.CreateThumbnail
		})
		if w != 0 {
			done = true
			s.dispatch(e, w)
		}

		if advancing && done {
			s.fillCursor = i + 1
		} else {
			advancing = false
		}
	}
}

func (s *Scheduler) saturated() bool {
	return s.running.Load() >= int64(s.cores)
}

func (s *Scheduler) dispatch(e *collection.Entry, w collection.WorkSet) {
	for _, f := range w.Flags() {
		metrics.TasksDispatchedTotal.WithLabelValues(f.String()).Inc()
	}

	s.outstanding.Add(1)
	s.running.Add(1)
	undo := func() {
		s.running.Add(-1)
		s.outstanding.Add(-1)
		e.Release()
	}
	ok := s.disp.SubmitWithDrop(func() {
		kinds := s.runner.Run(e)
		s.running.Add(-1)
		select {
		case s.completions <- completion{entry: e, kinds: kinds}:
		case <-s.stopped:
			s.outstanding.Add(-1)
		}
	}, func() {
		logging.Debug("Pool dropped %s for entry %d", w, e.Index())
		undo()
	})
	if !ok {
		logging.Debug("Pool rejected %s for entry %d", w, e.Index())
		undo()
	}
}

// Run consumes task completions until ctx is done, notifying the Listener
// and scheduling the next pass after each one.
func (s *Scheduler) Run(ctx context.Context) {
	defer s.stopOnce.Do(func() { close(s.stopped) })

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-s.completions:
			s.track(c)
			s.deliver(c)
			s.Schedule()
			s.outstanding.Add(-1)
		}
	}
}

// track records full-image residency from a completion. Entries are only
// removed by evictPass, which checks the entry itself: completions for one
// entry can arrive out of order.
func (s *Scheduler) track(c completion) {
	for _, k := range c.kinds {
		if k == loader.FullLoaded {
			s.mu.Lock()
			s.resident[c.entry] = struct{}{}
			s.mu.Unlock()
			return
		}
	}
}

func (s *Scheduler) deliver(c completion) {
	if s.opts.Listener == nil {
		return
	}
	for _, k := range c.kinds {
		s.opts.Listener.Loaded(k, c.entry)
	}
}

// AddBatch appends files to the collection, announces them and schedules.
func (s *Scheduler) AddBatch(files []collection.FileInfo) []*collection.Entry {
	entries := s.coll.Append(files)
	if len(entries) == 0 {
		return nil
	}

	metrics.ScanBatchesTotal.Inc()
	metrics.CollectionEntries.Set(float64(s.coll.Len()))

	if s.opts.Listener != nil {
		s.opts.Listener.FilenamesLoaded(entries)
	}
	s.Schedule()
	return entries
}

// Reset drops every entry and returns to index 0.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.coll.Clear()
	s.current = 0
	s.fillCursor = 0
	clear(s.resident)
	metrics.CollectionEntries.Set(0)
	metrics.CurrentIndex.Set(0)
}

// SetCurrent moves to index i, wrapped into range, and schedules.
func (s *Scheduler) SetCurrent(i int) {
	s.move(func(_, n int) int { return mod(i, n) })
}

// Next moves to the following entry, wrapping at the end.
func (s *Scheduler) Next() {
	s.move(func(cur, n int) int { return mod(cur+1, n) })
}

// Previous moves to the preceding entry, wrapping at the start.
func (s *Scheduler) Previous() {
	s.move(func(cur, n int) int { return mod(cur-1, n) })
}

func (s *Scheduler) move(to func(cur, n int) int) {
	s.mu.Lock()
	if n := s.coll.Len(); n > 0 {
		s.current = to(s.current, n)
	} else {
		s.current = 0
	}
	metrics.CurrentIndex.Set(float64(s.current))
	s.mu.Unlock()

	s.schedule(true)
}

// Current returns the current index.
func (s *Scheduler) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// CurrentEntry returns the current entry, or nil for an empty collection.
func (s *Scheduler) CurrentEntry() *collection.Entry {
	return s.coll.At(s.Current())
}

// Idle reports whether every dispatched task has finished and been
// delivered, and no entry has pending work.
func (s *Scheduler) Idle() bool {
	if s.outstanding.Load() > 0 || s.disp.InFlight() > 0 {
		return false
	}
	for _, e := range s.coll.Entries() {
		if !e.Idle() {
			return false
		}
	}
	return true
}

// Title formats the status line for the current entry:
// "<path> (<index>/<count>) (<width>x<height> <size>kB)".
func (s *Scheduler) Title() string {
	e := s.CurrentEntry()
	if e == nil {
		return ""
	}
	v := e.Snapshot()
	return fmt.Sprintf("%s (%d/%d) (%dx%d %dkB)",
		v.Path, v.Index+1, s.coll.Len(), v.Size.X, v.Size.Y, v.FileSize/1024)
}
