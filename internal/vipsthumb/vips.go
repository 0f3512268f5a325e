package vipsthumb

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"imgview/internal/logging"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"
)

var (
	// ErrNotStarted is returned when libvips has not been started.
	ErrNotStarted = errors.New("libvips not started")
	// ErrSmallSource is returned for images that need no reduction. Their
	// thumbnail is the decoded image itself, which the caller produces.
	ErrSmallSource = errors.New("source smaller than thumbnail")
)

var (
	startMu sync.Mutex
	started bool
)

// levelFor maps the application log level to the lowest libvips level that
// is still worth forwarding.
func levelFor(app logging.LogLevel) vips.LogLevel {
	switch app {
	case logging.LevelDebug:
		return vips.LogLevelInfo
	case logging.LevelInfo:
		return vips.LogLevelWarning
	case logging.LevelWarn:
		return vips.LogLevelError
	case logging.LevelError:
		return vips.LogLevelCritical
	default:
		return vips.LogLevelWarning
	}
}

func forward(domain string, level vips.LogLevel, msg string) {
	switch level {
	case vips.LogLevelError, vips.LogLevelCritical:
		logging.Error("[%s] %s", domain, msg)
	case vips.LogLevelWarning:
		logging.Warn("[%s] %s", domain, msg)
	default:
		logging.Debug("[%s] %s", domain, msg)
	}
}

// Startup initializes libvips with conservative memory settings. Repeated
// calls are no-ops.
func Startup(concurrency int) {
	startMu.Lock()
	defer startMu.Unlock()

	if started {
		return
	}
	if concurrency < 1 {
		concurrency = 1
	}

	vips.LoggingSettings(forward, levelFor(logging.GetLevel()))
	vips.Startup(&vips.Config{
		ConcurrencyLevel: concurrency,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
	})

	started = true
	logging.Info("libvips initialized (version: %s)", vips.Version)
}

// Shutdown releases libvips. It cannot be started again afterwards.
func Shutdown() {
	startMu.Lock()
	defer startMu.Unlock()

	if started {
		vips.Shutdown()
		started = false
		logging.Info("libvips shutdown complete")
	}
}

func isStarted() bool {
	startMu.Lock()
	defer startMu.Unlock()
	return started
}

// Thumbnailer implements the loader's fast thumbnail path.
type Thumbnailer struct{}

// New returns a Thumbnailer, or ErrNotStarted if Startup has not run.
func New() (*Thumbnailer, error) {
	if !isStarted() {
		return nil, ErrNotStarted
	}
	return &Thumbnailer{}, nil
}

// Thumbnail decodes path with its longer edge reduced to maxEdge and
// returns it with the source's native pixel size. Images whose longer edge
// is below maxEdge return ErrSmallSource along with their native size.
func (Thumbnailer) Thumbnail(path string, maxEdge int) (image.Image, image.Point, error) {
	if !isStarted() {
		return nil, image.Point{}, ErrNotStarted
	}

	ref, err := vips.LoadImageFromFile(path, vips.NewImportParams())
	if err != nil {
		return nil, image.Point{}, fmt.Errorf("vips failed to load image: %w", err)
	}
	defer ref.Close()

	if err := ref.AutoRotate(); err != nil {
		return nil, image.Point{}, fmt.Errorf("vips auto-rotate failed: %w", err)
	}
	native := image.Pt(ref.Width(), ref.Height())

	if max(native.X, native.Y) < maxEdge {
		return nil, native, ErrSmallSource
	}
	w, h := fit(native, maxEdge)
	if err := ref.Thumbnail(w, h, vips.InterestingNone); err != nil {
		return nil, image.Point{}, fmt.Errorf("vips resize failed: %w", err)
	}

	buf, _, err := ref.ExportJpeg(&vips.JpegExportParams{
		Quality:        95,
		OptimizeCoding: true,
	})
	if err != nil {
		return nil, image.Point{}, fmt.Errorf("vips export failed: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, image.Point{}, fmt.Errorf("failed to decode vips output: %w", err)
	}

	logging.Debug("vips thumbnail for %s: %dx%d -> %dx%d", filepath.Base(path),
		native.X, native.Y, img.Bounds().Dx(), img.Bounds().Dy())
	return img, native, nil
}

// fit returns the size of native scaled so its longer edge is maxEdge.
func fit(native image.Point, maxEdge int) (int, int) {
	if native.X >= native.Y {
		h := native.Y * maxEdge / native.X
		return maxEdge, max(h, 1)
	}
	w := native.X * maxEdge / native.Y
	return max(w, 1), maxEdge
}
