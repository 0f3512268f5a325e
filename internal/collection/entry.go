package collection

import (
	"image"
	"sync"
	"time"
)

// FileInfo identifies a file handed over by the producer.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Entry is one image in the collection.
type Entry struct {
	// Immutable after Append.
	index   int
	path    string
	size    int64
	modTime time.Time

	mu             sync.Mutex
	full           image.Image
	thumbnail      image.Image
	pixelSize      image.Point
	thumbSize      SizeF
	pending        WorkSet
	err            string
	thumbRequested bool
	grid           image.Point
	busy           bool
	disposed       bool
}

// View is a copy of an entry's state taken under its lock.
type View struct {
	Index          int
	Path           string
	FileSize       int64
	ModTime        time.Time
	Full           image.Image
	Thumbnail      image.Image
	Size           image.Point
	ThumbSize      SizeF
	Pending        WorkSet
	Err            string
	ThumbRequested bool
	Grid           image.Point
}

// Claim is what TryClaim shows its decision function.
type Claim struct {
	HasFull        bool
	HasThumbnail   bool
	ThumbRequested bool
	// Failed is set while the entry carries an error message.
	Failed bool
}

func (e *Entry) Index() int         { return e.index }
func (e *Entry) Path() string       { return e.path }
func (e *Entry) FileSize() int64    { return e.size }
func (e *Entry) ModTime() time.Time { return e.modTime }

// Info returns the identity the entry was created from.
func (e *Entry) Info() FileInfo {
	return FileInfo{Path: e.path, Size: e.size, ModTime: e.modTime}
}

// Lock acquires the entry mutex.
func (e *Entry) Lock() { e.mu.Lock() }

// Unlock releases the entry mutex.
func (e *Entry) Unlock() { e.mu.Unlock() }

// TryLock acquires the entry mutex if it is free.
func (e *Entry) TryLock() bool { return e.mu.TryLock() }

// Snapshot returns a copy of the entry state.
func (e *Entry) Snapshot() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return View{
		Index:          e.index,
		Path:           e.path,
		FileSize:       e.size,
		ModTime:        e.modTime,
		Full:           e.full,
		Thumbnail:      e.thumbnail,
		Size:           e.pixelSize,
		ThumbSize:      e.thumbSize,
		Pending:        e.pending,
		Err:            e.err,
		ThumbRequested: e.thumbRequested,
		Grid:           e.grid,
	}
}

// TryClaim marks work on an idle entry without blocking. It returns 0 when
// the lock is contended, the entry is disposed, a task is queued or
// running, or decide asks for nothing. Otherwise the returned work is now
// Pending and the entry is busy until Release.
func (e *Entry) TryClaim(decide func(Claim) WorkSet) WorkSet {
	if !e.mu.TryLock() {
		return 0
	}
	defer e.mu.Unlock()

	if e.disposed || e.busy || !e.pending.Empty() {
		return 0
	}

	w := decide(Claim{
		HasFull:        e.full != nil,
		HasThumbnail:   e.thumbnail != nil,
		ThumbRequested: e.thumbRequested,
		Failed:         e.err != "",
	})
	if w.Empty() {
		return 0
	}

	e.pending |= w
	e.busy = true
	if w&CreateThumbnail != 0 {
		e.thumbRequested = true
	}
	return w
}

// TakePending returns the pending work and clears it. ok is false for a
// disposed entry, in which case nothing should run.
func (e *Entry) TakePending() (w WorkSet, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	w = e.pending
	e.pending = 0
	return w, !e.disposed
}

// Release ends the current task: Pending is cleared and the entry becomes
// claimable again.
func (e *Entry) Release() {
	e.mu.Lock()
	e.pending = 0
	e.busy = false
	e.mu.Unlock()
}

// MarkWork adds w to the pending set.
func (e *Entry) MarkWork(w WorkSet) {
	e.mu.Lock()
	e.pending |= w
	e.mu.Unlock()
}

// SetFull stores the full-resolution decode and its pixel size, clearing
// any earlier error. It reports false for a disposed entry.
func (e *Entry) SetFull(img image.Image) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return false
	}
	e.full = img
	e.pixelSize = img.Bounds().Size()
	e.err = ""
	return true
}

// SetThumbnail stores the thumbnail and its unit-cell display size,
// clearing any earlier error. It reports false for a disposed entry.
func (e *Entry) SetThumbnail(img image.Image, display SizeF) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return false
	}
	e.thumbnail = img
	e.thumbSize = display
	e.err = ""
	return true
}

// ClearFull drops the full-resolution decode, keeping the thumbnail.
func (e *Entry) ClearFull() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return false
	}
	e.full = nil
	return true
}

// SetError records a read or decode failure.
func (e *Entry) SetError(msg string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return false
	}
	e.err = msg
	return true
}

// Idle reports whether the entry has no pending or running work.
func (e *Entry) Idle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending.Empty() && !e.busy
}

// Disposed reports whether the entry was dropped by Collection.Clear.
func (e *Entry) Disposed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposed
}

// Rect is the full image's placement in its grid cell.
func (e *Entry) Rect() RectF {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cellRect(ScaleToUnit(e.pixelSize.X, e.pixelSize.Y), e.grid.X, e.grid.Y)
}

// ThumbRect is the thumbnail's placement in its grid cell.
func (e *Entry) ThumbRect() RectF {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cellRect(e.thumbSize, e.grid.X, e.grid.Y)
}

func (e *Entry) setGrid(p image.Point) {
	e.mu.Lock()
	e.grid = p
	e.mu.Unlock()
}

func (e *Entry) dispose() {
	e.mu.Lock()
	e.disposed = true
	e.full = nil
	e.thumbnail = nil
	e.mu.Unlock()
}
