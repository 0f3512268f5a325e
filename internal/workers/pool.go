package workers

import (
	"context"
	"sync"
	"sync/atomic"

	"imgview/internal/logging"
	"imgview/internal/metrics"

	"golang.org/x/sync/semaphore"
)

// Pool is a bounded, fire-and-forget goroutine pool.
type Pool struct {
	size     int
	sem      *semaphore.Weighted
	inFlight atomic.Int64
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders Submit's wg.Add against Close's wg.Wait.
	mu     sync.Mutex
	closed bool
}

// NewPool creates a pool that runs at most size functions concurrently.
// A size below 1 is treated as 1.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	logging.Debug("Worker pool created with %d slots", size)
	return &Pool{
		size:   size,
		sem:    semaphore.NewWeighted(int64(size)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Size returns the maximum number of concurrently running functions.
func (p *Pool) Size() int {
	return p.size
}

// InFlight returns the number of submitted functions that have not
// finished yet, including those still waiting for a slot.
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}

// Submit schedules fn and returns immediately. It returns false, and fn
// never runs, once the pool is closed. A function still waiting for a slot
// when the pool closes is dropped.
func (p *Pool) Submit(fn func()) bool {
	return p.SubmitWithDrop(fn, nil)
}

// SubmitWithDrop is Submit with a callback that runs in place of fn when
// fn is dropped by Close. Exactly one of fn and dropped runs for every
// accepted submission. dropped may be nil.
func (p *Pool) SubmitWithDrop(fn, dropped func()) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.wg.Add(1)
	metrics.TasksInFlight.Set(float64(p.inFlight.Add(1)))
	p.mu.Unlock()

	go func() {
		defer func() {
			metrics.TasksInFlight.Set(float64(p.inFlight.Add(-1)))
			p.wg.Done()
		}()

		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			logging.Debug("Worker pool closed before task started")
			if dropped != nil {
				dropped()
			}
			return
		}
		defer p.sem.Release(1)

		// Close may have won the race for the slot.
		if p.ctx.Err() != nil {
			if dropped != nil {
				dropped()
			}
			return
		}
		fn()
	}()
	return true
}

// Wait blocks until every submitted function has finished or been dropped.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close stops accepting work, drops queued functions and waits for the
// running ones.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
