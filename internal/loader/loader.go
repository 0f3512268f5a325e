package loader

import (
	"bytes"
	"image"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"

	"imgview/internal/collection"
	"imgview/internal/contenthash"
	"imgview/internal/filesystem"
	"imgview/internal/logging"
	"imgview/internal/mediatypes"
	"imgview/internal/metrics"
)

// ThumbnailMaxEdge is the longest edge of a generated thumbnail, in pixels.
const ThumbnailMaxEdge = 256

// Kind is a result a task reports back to the scheduler.
type Kind int

const (
	FullLoaded Kind = iota
	ThumbLoaded
	Unloaded
)

func (k Kind) String() string {
	switch k {
	case FullLoaded:
		return "full_loaded"
	case ThumbLoaded:
		return "thumb_loaded"
	case Unloaded:
		return "unloaded"
	default:
		return "unknown"
	}
}

// ThumbnailCache is the persistent store consulted before generating a
// thumbnail. *thumbstore.Store implements it.
type ThumbnailCache interface {
	GetImage(hash contenthash.Hash) (image.Image, bool)
	InsertImage(hash contenthash.Hash, img image.Image, sourcePath string, sourceSize int64)
}

// FastThumbnailer produces a thumbnail straight from a file, along with the
// source's native pixel size. *vipsthumb.Thumbnailer implements it.
type FastThumbnailer interface {
	Thumbnail(path string, maxEdge int) (image.Image, image.Point, error)
}

// Options configures a Loader.
type Options struct {
	// Store may be nil, in which case every thumbnail is generated.
	Store ThumbnailCache

	// Fast is tried before a full decode when a thumbnail is all a task
	// needs. May be nil.
	Fast FastThumbnailer

	Retry filesystem.RetryConfig
}

// Loader holds what every task shares.
type Loader struct {
	store ThumbnailCache
	fast  FastThumbnailer
	retry filesystem.RetryConfig
}

// New creates a Loader.
func New(opts Options) *Loader {
	if opts.Retry == (filesystem.RetryConfig{}) {
		opts.Retry = filesystem.DefaultRetryConfig()
	}
	return &Loader{
		store: opts.Store,
		fast:  opts.Fast,
		retry: opts.Retry,
	}
}

// Run executes the work pending on e and returns what it published, in
// order. It always leaves e idle. A nil or disposed entry yields nothing.
func (l *Loader) Run(e *collection.Entry) []Kind {
	if e == nil {
		return nil
	}
	defer e.Release()

	work, ok := e.TakePending()
	if !ok || work.Empty() {
		return nil
	}

	start := time.Now()
	defer func() { metrics.TaskDuration.Observe(time.Since(start).Seconds()) }()

	t := &task{l: l, e: e, info: e.Info()}
	var kinds []Kind

	if work.Has(collection.LoadFull) {
		// Refresh an existing thumbnail from the same read and decode.
		if e.Snapshot().Thumbnail != nil {
			work |= collection.CreateThumbnail
		}
		if t.loadFull() {
			kinds = append(kinds, FullLoaded)
		}
	}

	if work.Has(collection.CreateThumbnail) && t.createThumbnail() {
		kinds = append(kinds, ThumbLoaded)
	}

	if work.Has(collection.Unload) && e.ClearFull() {
		metrics.LoadResultsTotal.WithLabelValues("unload", "success").Inc()
		kinds = append(kinds, Unloaded)
	}

	logging.Debug("Task %s on %s done in %v: %v", work, filepath.Base(t.info.Path), time.Since(start), kinds)
	return kinds
}

// task carries what one Run has read and decoded so far.
type task struct {
	l    *Loader
	e    *collection.Entry
	info collection.FileInfo

	data   []byte
	img    image.Image
	failed bool
}

func (t *task) fail(phase string, err error) {
	t.failed = true
	metrics.LoadResultsTotal.WithLabelValues(phase, "error").Inc()
	logging.Warn("Failed to %s %s: %v", phase, t.info.Path, err)
	t.e.SetError(err.Error())
}

func (t *task) read() bool {
	if t.data != nil {
		return true
	}
	if t.failed {
		return false
	}

	data, err := filesystem.ReadFileWithRetry(t.info.Path, t.l.retry)
	if err != nil {
		t.fail("read", err)
		return false
	}

	metrics.BytesRead.Add(float64(len(data)))
	metrics.LoadResultsTotal.WithLabelValues("read", "success").Inc()
	t.data = data
	return true
}

func (t *task) decode() bool {
	if t.img != nil {
		return true
	}
	if !t.read() {
		return false
	}

	format := mediatypes.DetectFormat(t.data[:min(len(t.data), 32)])
	start := time.Now()
	img, err := imaging.Decode(bytes.NewReader(t.data), imaging.AutoOrientation(true))
	metrics.DecodeDuration.WithLabelValues(string(format)).Observe(time.Since(start).Seconds())
	if err != nil {
		t.fail("decode", err)
		return false
	}

	metrics.LoadResultsTotal.WithLabelValues("decode", "success").Inc()
	t.img = img
	return true
}

func (t *task) loadFull() bool {
	if !t.decode() {
		return false
	}
	return t.e.SetFull(t.img)
}

func (t *task) hash() contenthash.Hash {
	if t.data != nil {
		return contenthash.FromBytes(t.data)
	}
	return contenthash.FromIdentity(t.info.Path, t.info.Size, t.info.ModTime)
}

func (t *task) createThumbnail() bool {
	hash := t.hash()

	if t.l.store != nil {
		if thumb, ok := t.l.store.GetImage(hash); ok {
			metrics.LoadResultsTotal.WithLabelValues("thumbnail", "cache_hit").Inc()
			return t.publishThumbnail(thumb, image.Point{})
		}
	}

	if t.l.fast != nil && t.data == nil {
		thumb, native, err := t.l.fast.Thumbnail(t.info.Path, ThumbnailMaxEdge)
		if err == nil {
			t.store(hash, thumb)
			metrics.LoadResultsTotal.WithLabelValues("thumbnail", "success").Inc()
			return t.publishThumbnail(thumb, native)
		}
		logging.Debug("Fast thumbnailer failed for %s, decoding instead: %v", t.info.Path, err)
	}

	// Store under the key that was looked up so the next lookup hits.
	if !t.decode() {
		return false
	}

	thumb := Thumbnail(t.img, ThumbnailMaxEdge)
	t.store(hash, thumb)
	metrics.LoadResultsTotal.WithLabelValues("thumbnail", "success").Inc()
	return t.publishThumbnail(thumb, t.img.Bounds().Size())
}

func (t *task) store(hash contenthash.Hash, thumb image.Image) {
	if t.l.store != nil {
		t.l.store.InsertImage(hash, thumb, t.info.Path, t.info.Size)
	}
}

// publishThumbnail sets the thumbnail and its display size. The size comes
// from the native pixel size when anything has reported it.
func (t *task) publishThumbnail(thumb image.Image, native image.Point) bool {
	if native.X <= 0 || native.Y <= 0 {
		native = t.e.Snapshot().Size
	}
	if native.X <= 0 || native.Y <= 0 {
		native = thumb.Bounds().Size()
	}
	return t.e.SetThumbnail(thumb, collection.ScaleToUnit(native.X, native.Y))
}

// Thumbnail returns img unchanged when its longer edge is below maxEdge and
// otherwise a bicubic downscale whose longer edge is maxEdge.
func Thumbnail(img image.Image, maxEdge int) image.Image {
	size := img.Bounds().Size()
	if max(size.X, size.Y) < maxEdge {
		return img
	}

	start := time.Now()
	thumb := imaging.Fit(img, maxEdge, maxEdge, imaging.CatmullRom)
	metrics.ResizeDuration.Observe(time.Since(start).Seconds())
	return thumb
}
