package scheduler

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"imgview/internal/collection"
	"imgview/internal/loader"
	"imgview/internal/thumbstore"
	"imgview/internal/workers"
)

// fakeDispatcher queues tasks without running them until told to.
type fakeDispatcher struct {
	mu      sync.Mutex
	queue   []func()
	dropped []func()
	reject  bool
}

func (d *fakeDispatcher) SubmitWithDrop(fn, dropped func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reject {
		return false
	}
	d.queue = append(d.queue, fn)
	d.dropped = append(d.dropped, dropped)
	return true
}

func (d *fakeDispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *fakeDispatcher) submitted() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// runAll runs every queued task in order and empties the queue.
func (d *fakeDispatcher) runAll() {
	d.mu.Lock()
	q := d.queue
	d.queue = nil
	d.dropped = nil
	d.mu.Unlock()
	for _, fn := range q {
		fn()
	}
}

// dropAll discards every queued task the way a closing pool does.
func (d *fakeDispatcher) dropAll() {
	d.mu.Lock()
	q := d.dropped
	d.queue = nil
	d.dropped = nil
	d.mu.Unlock()
	for _, fn := range q {
		fn()
	}
}

// drain hands queued completions to the scheduler's bookkeeping without
// starting another pass.
func drain(s *Scheduler) {
	for len(s.completions) > 0 {
		c := <-s.completions
		s.track(c)
		s.outstanding.Add(-1)
	}
}

// stubRunner behaves like the loader without touching files.
type stubRunner struct {
	mu   sync.Mutex
	runs map[int][]collection.WorkSet
}

func (r *stubRunner) Run(e *collection.Entry) []loader.Kind {
	defer e.Release()
	w, ok := e.TakePending()
	if !ok {
		return nil
	}

	r.mu.Lock()
	if r.runs == nil {
		r.runs = make(map[int][]collection.WorkSet)
	}
	r.runs[e.Index()] = append(r.runs[e.Index()], w)
	r.mu.Unlock()

	var kinds []loader.Kind
	if w.Has(collection.LoadFull) {
		e.SetFull(image.NewRGBA(image.Rect(0, 0, 4, 2)))
		kinds = append(kinds, loader.FullLoaded)
	}
	if w.Has(collection.CreateThumbnail) {
		e.SetThumbnail(image.NewRGBA(image.Rect(0, 0, 2, 1)), collection.SizeF{W: 1, H: 0.5})
		kinds = append(kinds, loader.ThumbLoaded)
	}
	if w.Has(collection.Unload) {
		e.ClearFull()
		kinds = append(kinds, loader.Unloaded)
	}
	return kinds
}

type throttleFunc func() bool

func (f throttleFunc) ShouldThrottle() bool { return f() }

type recordingListener struct {
	mu        sync.Mutex
	loaded    map[int][]loader.Kind
	filenames int
}

func (l *recordingListener) Loaded(kind loader.Kind, e *collection.Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded == nil {
		l.loaded = make(map[int][]loader.Kind)
	}
	l.loaded[e.Index()] = append(l.loaded[e.Index()], kind)
}

func (l *recordingListener) FilenamesLoaded(entries []*collection.Entry) {
	l.mu.Lock()
	l.filenames += len(entries)
	l.mu.Unlock()
}

func (l *recordingListener) kinds(i int) []loader.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]loader.Kind(nil), l.loaded[i]...)
}

func fileInfos(n int) []collection.FileInfo {
	out := make([]collection.FileInfo, n)
	for i := range out {
		out[i] = collection.FileInfo{Path: fmt.Sprintf("/photos/%02d.jpg", i), Size: 2048}
	}
	return out
}

func pending(c *collection.Collection) map[int]collection.WorkSet {
	out := make(map[int]collection.WorkSet)
	for _, e := range c.Entries() {
		if p := e.Snapshot().Pending; p != 0 {
			out[e.Index()] = p
		}
	}
	return out
}

func TestScheduleWindowMarks(t *testing.T) {
	coll := collection.New()
	entries := coll.Append(fileInfos(20))

	disp := &fakeDispatcher{}
	s := New(coll, disp, &stubRunner{}, Options{Cores: 4, DisableThumbnailFill: true})

	full := image.NewRGBA(image.Rect(0, 0, 1, 1))
	for _, i := range []int{0, 5, 9, 15} {
		entries[i].SetFull(full)
	}
	// Entry 0 was loaded earlier; the scheduler saw its completion.
	s.track(completion{entry: entries[0], kinds: []loader.Kind{loader.FullLoaded}})

	s.SetCurrent(10)

	want := map[int]collection.WorkSet{
		0:  collection.Unload,
		5:  collection.Unload,
		7:  collection.LoadFull,
		8:  collection.LoadFull,
		10: collection.LoadFull,
		11: collection.LoadFull,
		12: collection.LoadFull,
		13: collection.LoadFull,
		15: collection.Unload,
	}
	got := pending(coll)
	if len(got) != len(want) {
		t.Errorf("marked %d entries, want %d: %v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("entry %d pending = %v, want %v", i, got[i], w)
		}
	}
	if disp.submitted() != len(want) {
		t.Errorf("dispatched %d tasks, want %d", disp.submitted(), len(want))
	}
}

func TestScheduleUnloadsAfterJump(t *testing.T) {
	coll := collection.New()
	entries := coll.Append(fileInfos(20))

	disp := &fakeDispatcher{}
	s := New(coll, disp, &stubRunner{}, Options{Cores: 4, DisableThumbnailFill: true})

	s.SetCurrent(0)
	disp.runAll()
	drain(s)

	loaded := []int{17, 18, 19, 0, 1, 2, 3}
	for _, i := range loaded {
		if entries[i].Snapshot().Full == nil {
			t.Fatalf("entry %d not loaded at position 0", i)
		}
	}

	s.SetCurrent(10)
	got := pending(coll)
	for _, i := range loaded {
		if got[i] != collection.Unload {
			t.Errorf("entry %d pending = %v after the jump, want unload", i, got[i])
		}
	}

	disp.runAll()
	drain(s)
	for _, e := range entries {
		v := e.Snapshot()
		if v.Full == nil {
			continue
		}
		if d := distance(e.Index(), 10, 20); d >= 4 {
			t.Errorf("entry %d at distance %d still holds its image", e.Index(), d)
		}
	}

	// A later pass forgets entries it finds empty.
	s.Schedule()
	for e := range s.resident {
		if e.Snapshot().Full == nil && e.Idle() {
			t.Errorf("entry %d kept in the resident set without an image", e.Index())
		}
	}
}

func TestScheduleUnloadsAfterSaturatedMoves(t *testing.T) {
	coll := collection.New()
	entries := coll.Append(fileInfos(30))

	disp := &fakeDispatcher{}
	s := New(coll, disp, &stubRunner{}, Options{Cores: 2, DisableThumbnailFill: true})

	s.SetCurrent(0)
	// Every pass while the first tasks are queued is skipped.
	for i := 0; i < 10; i++ {
		s.Next()
	}
	disp.runAll()
	drain(s)

	s.Schedule()
	for _, e := range entries {
		if e.Snapshot().Full == nil {
			continue
		}
		if d := distance(e.Index(), 10, 30); d >= 2 && pending(coll)[e.Index()] != collection.Unload {
			t.Errorf("entry %d at distance %d holds its image with no unload marked", e.Index(), d)
		}
	}
}

func TestScheduleBackPressure(t *testing.T) {
	coll := collection.New()
	coll.Append(fileInfos(20))

	disp := &fakeDispatcher{}
	s := New(coll, disp, &stubRunner{}, Options{Cores: 4})
	s.SetCurrent(10)

	first := disp.submitted()
	if first < 4 {
		t.Fatalf("first pass dispatched %d tasks, want at least 4", first)
	}
	before := pending(coll)

	// Nothing has run, so the scheduler is saturated.
	s.Next()
	s.Schedule()

	if got := disp.submitted(); got != first {
		t.Errorf("saturated passes dispatched %d more tasks", got-first)
	}
	if got := pending(coll); len(got) != len(before) {
		t.Errorf("saturated passes marked %d entries, want %d", len(got), len(before))
	}
}

func TestScheduleSkipsClaimedAndLocked(t *testing.T) {
	coll := collection.New()
	entries := coll.Append(fileInfos(20))

	disp := &fakeDispatcher{}
	s := New(coll, disp, &stubRunner{}, Options{Cores: 4, DisableThumbnailFill: true})

	entries[11].Lock()
	s.SetCurrent(10)
	entries[11].Unlock()

	first := disp.submitted()
	if _, ok := pending(coll)[11]; ok {
		t.Error("locked entry 11 was marked")
	}

	// Nothing ran, so every marked entry is still claimed: a second pass only
	// picks up entry 11.
	s.running.Add(-int64(first))
	s.Schedule()

	if got := disp.submitted() - first; got != 1 {
		t.Errorf("second pass dispatched %d tasks, want 1 (entry 11)", got)
	}
}

func TestScheduleWrapsSmallCollection(t *testing.T) {
	coll := collection.New()
	coll.Append(fileInfos(5))

	disp := &fakeDispatcher{}
	s := New(coll, disp, &stubRunner{}, Options{Cores: 4, DisableThumbnailFill: true})
	s.SetCurrent(0)

	if disp.submitted() != 5 {
		t.Errorf("dispatched %d tasks for 5 entries, want 5", disp.submitted())
	}
	for i, w := range pending(coll) {
		if w != collection.LoadFull {
			t.Errorf("entry %d pending = %v, want load_full", i, w)
		}
	}
}

func TestScheduleThrottle(t *testing.T) {
	coll := collection.New()
	coll.Append(fileInfos(20))

	disp := &fakeDispatcher{}
	s := New(coll, disp, &stubRunner{}, Options{
		Cores:                4,
		Throttle:             throttleFunc(func() bool { return true }),
		DisableThumbnailFill: true,
	})
	s.SetCurrent(3)

	got := pending(coll)
	if len(got) != 1 || got[3] != collection.LoadFull {
		t.Errorf("throttled pass marked %v, want only the current entry", got)
	}
}

func TestScheduleRejectedSubmitReleases(t *testing.T) {
	coll := collection.New()
	entries := coll.Append(fileInfos(3))

	disp := &fakeDispatcher{reject: true}
	s := New(coll, disp, &stubRunner{}, Options{Cores: 2})
	s.Schedule()

	for _, e := range entries {
		if !e.Idle() {
			t.Errorf("entry %d left claimed after the pool rejected it", e.Index())
		}
	}
	if !s.Idle() {
		t.Error("Idle() = false after every submit was rejected")
	}
}

func TestScheduleDroppedTaskReleases(t *testing.T) {
	coll := collection.New()
	entries := coll.Append(fileInfos(6))

	disp := &fakeDispatcher{}
	s := New(coll, disp, &stubRunner{}, Options{Cores: 2})
	s.Schedule()
	if disp.submitted() == 0 {
		t.Fatal("pass dispatched nothing")
	}

	disp.dropAll()

	for _, e := range entries {
		if !e.Idle() {
			t.Errorf("entry %d left claimed after its task was dropped", e.Index())
		}
	}
	if got := s.running.Load(); got != 0 {
		t.Errorf("running = %d after every task was dropped, want 0", got)
	}
	if !s.Idle() {
		t.Error("Idle() = false after every task was dropped")
	}
}

func TestScheduleDroppedByClosedPool(t *testing.T) {
	coll := collection.New()
	pool := workers.NewPool(1)

	block := make(chan struct{})
	started := make(chan struct{})
	pool.Submit(func() {
		close(started)
		<-block
	})
	<-started

	s := New(coll, pool, &stubRunner{}, Options{Cores: 3})
	s.AddBatch(fileInfos(3))

	closed := make(chan struct{})
	go func() {
		pool.Close()
		close(closed)
	}()
	time.Sleep(20 * time.Millisecond)
	close(block)
	<-closed

	if !s.Idle() {
		t.Error("Idle() = false after the pool dropped every queued task")
	}
	for _, e := range coll.Entries() {
		if v := e.Snapshot(); v.Full != nil || v.Thumbnail != nil {
			t.Errorf("entry %d ran after the pool closed", e.Index())
		}
	}
}

func TestThumbnailFillRequestsEachOnce(t *testing.T) {
	coll := collection.New()
	coll.Append(fileInfos(10))

	disp := &fakeDispatcher{}
	runner := &stubRunner{}
	s := New(coll, disp, runner, Options{Cores: 2, DisableWindow: true})

	for pass := 0; pass < 20; pass++ {
		s.Schedule()
		disp.runAll()
		for len(s.completions) > 0 {
			<-s.completions
			s.outstanding.Add(-1)
		}
	}

	for i := 0; i < 10; i++ {
		runs := runner.runs[i]
		if len(runs) != 1 || runs[0] != collection.CreateThumbnail {
			t.Errorf("entry %d ran %v, want exactly one create_thumbnail", i, runs)
		}
	}
	if s.fillCursor != 10 {
		t.Errorf("fillCursor = %d, want 10", s.fillCursor)
	}
}

func TestThumbnailFillRespectsCapacity(t *testing.T) {
	coll := collection.New()
	coll.Append(fileInfos(10))

	disp := &fakeDispatcher{}
	s := New(coll, disp, &stubRunner{}, Options{Cores: 3, DisableWindow: true})
	s.Schedule()

	if disp.submitted() != 3 {
		t.Errorf("fill pass dispatched %d tasks, want 3", disp.submitted())
	}
}

func TestNavigation(t *testing.T) {
	coll := collection.New()
	disp := &fakeDispatcher{}
	listener := &recordingListener{}
	s := New(coll, disp, &stubRunner{}, Options{Cores: 1, Listener: listener, DisableThumbnailFill: true})

	s.Next()
	if s.Current() != 0 || s.CurrentEntry() != nil || s.Title() != "" {
		t.Error("navigation on an empty collection moved")
	}

	s.AddBatch(fileInfos(3))
	if listener.filenames != 3 {
		t.Errorf("FilenamesLoaded saw %d entries, want 3", listener.filenames)
	}

	steps := []struct {
		move func()
		want int
	}{
		{s.Next, 1},
		{s.Next, 2},
		{s.Next, 0},
		{s.Previous, 2},
		{func() { s.SetCurrent(-4) }, 2},
		{func() { s.SetCurrent(7) }, 1},
	}
	for i, step := range steps {
		step.move()
		if got := s.Current(); got != step.want {
			t.Errorf("step %d: Current() = %d, want %d", i, got, step.want)
		}
	}

	if got, want := s.Title(), "/photos/01.jpg (2/3) (0x0 2kB)"; got != want {
		t.Errorf("Title() = %q, want %q", got, want)
	}

	s.Reset()
	if coll.Len() != 0 || s.Current() != 0 {
		t.Errorf("Reset left Len() = %d, Current() = %d", coll.Len(), s.Current())
	}
}

func TestRunDeliversAndReschedules(t *testing.T) {
	coll := collection.New()
	pool := workers.NewPool(2)
	defer pool.Close()

	listener := &recordingListener{}
	s := New(coll, pool, &stubRunner{}, Options{Cores: 2, Listener: listener})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.AddBatch(fileInfos(6))
	waitIdle(t, s)

	for i := 0; i < 6; i++ {
		v := coll.At(i).Snapshot()
		if v.Thumbnail == nil {
			t.Errorf("entry %d has no thumbnail after the fill pass", i)
		}
	}
	if kinds := listener.kinds(0); len(kinds) == 0 || kinds[0] != loader.FullLoaded {
		t.Errorf("entry 0 notifications = %v, want full_loaded first", kinds)
	}
}

// guardRunner fails the test if two tasks ever run on one entry at once.
type guardRunner struct {
	t      *testing.T
	inner  Runner
	active sync.Map // index -> *atomic.Int32
}

func (g *guardRunner) Run(e *collection.Entry) []loader.Kind {
	v, _ := g.active.LoadOrStore(e.Index(), new(atomic.Int32))
	counter := v.(*atomic.Int32)
	if counter.Add(1) > 1 {
		g.t.Errorf("two tasks running on entry %d", e.Index())
	}
	defer counter.Add(-1)

	time.Sleep(time.Duration(rand.Intn(200)) * time.Microsecond)
	return g.inner.Run(e)
}

func TestSingleTaskPerEntryUnderContention(t *testing.T) {
	coll := collection.New()
	pool := workers.NewPool(8)
	defer pool.Close()

	s := New(coll, pool, &guardRunner{t: t, inner: &stubRunner{}}, Options{Cores: 4})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.AddBatch(fileInfos(25))

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 300; i++ {
				switch rng.Intn(4) {
				case 0:
					s.Next()
				case 1:
					s.Previous()
				case 2:
					s.SetCurrent(rng.Intn(25))
				default:
					s.Schedule()
				}
			}
		}(int64(g))
	}
	wg.Wait()

	waitIdle(t, s)
}

func TestEndToEndWithDeletedFile(t *testing.T) {
	dir := t.TempDir()
	var infos []collection.FileInfo
	for i := 0; i < 3; i++ {
		path := filepath.Join(dir, fmt.Sprintf("%d.png", i))
		f, err := os.Create(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 640, 480))); err != nil {
			t.Fatal(err)
		}
		f.Close()
		st, _ := os.Stat(path)
		infos = append(infos, collection.FileInfo{Path: path, Size: st.Size(), ModTime: st.ModTime()})
	}
	if err := os.Remove(infos[1].Path); err != nil {
		t.Fatal(err)
	}

	store, err := thumbstore.Open(context.Background(), filepath.Join(dir, thumbstore.FileName))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	pool := workers.NewPool(4)
	defer pool.Close()

	coll := collection.New()
	listener := &recordingListener{}
	s := New(coll, pool, loader.New(loader.Options{Store: store}), Options{Cores: 4, Listener: listener})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.AddBatch(infos)
	waitIdle(t, s)

	for _, i := range []int{0, 2} {
		v := coll.At(i).Snapshot()
		if v.Full == nil || v.Thumbnail == nil {
			t.Errorf("entry %d: full=%v thumbnail=%v, want both", i, v.Full != nil, v.Thumbnail != nil)
		}
		if v.Err != "" {
			t.Errorf("entry %d: Err = %q", i, v.Err)
		}
		if !contains(listener.kinds(i), loader.FullLoaded) {
			t.Errorf("entry %d: no full_loaded notification", i)
		}
	}

	v := coll.At(1).Snapshot()
	if v.Err == "" {
		t.Error("entry 1: Err not set for the deleted file")
	}
	if v.Full != nil || v.Thumbnail != nil {
		t.Error("entry 1: images set for the deleted file")
	}
	if kinds := listener.kinds(1); len(kinds) != 0 {
		t.Errorf("entry 1: notifications %v, want none", kinds)
	}

	st, err := store.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Rows != 2 {
		t.Errorf("store has %d rows, want 2", st.Rows)
	}
}

func TestClearWhileLoading(t *testing.T) {
	coll := collection.New()
	pool := workers.NewPool(4)
	defer pool.Close()

	s := New(coll, pool, &guardRunner{t: t, inner: &stubRunner{}}, Options{Cores: 4})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	old := s.AddBatch(fileInfos(12))
	s.Reset()
	waitIdle(t, s)

	for _, e := range old {
		if e.Snapshot().Full != nil {
			t.Errorf("disposed entry %d holds an image", e.Index())
		}
	}
}

func waitIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !s.Idle() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler did not become idle")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func contains(kinds []loader.Kind, k loader.Kind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}
