package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"imgview/internal/collection"
	"imgview/internal/filesystem"
	"imgview/internal/logging"
	"imgview/internal/mediatypes"
)

// DefaultFlushInterval is how long files accumulate before a batch is sent.
const DefaultFlushInterval = 10 * time.Millisecond

// ErrNoInput is returned when Scan is given no paths.
var ErrNoInput = errors.New("no files or directories given")

// Config configures a Scanner.
type Config struct {
	// Recursive descends into subdirectories of a scanned directory.
	Recursive bool
	// SkipHidden skips files and directories starting with ".".
	SkipHidden bool
	// FlushInterval bounds how long a batch is held back. 0 means
	// DefaultFlushInterval.
	FlushInterval time.Duration
	Retry         filesystem.RetryConfig
}

// DefaultConfig returns the configuration used by the viewer.
func DefaultConfig() Config {
	return Config{
		SkipHidden:    true,
		FlushInterval: DefaultFlushInterval,
		Retry:         filesystem.DefaultRetryConfig(),
	}
}

// Sink receives batches in discovery order. It is called from the
// goroutine running Scan.
type Sink func(batch []collection.FileInfo)

// Scanner enumerates image files.
type Scanner struct {
	config Config
}

// New creates a Scanner.
func New(config Config) *Scanner {
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultFlushInterval
	}
	if config.Retry == (filesystem.RetryConfig{}) {
		config.Retry = filesystem.DefaultRetryConfig()
	}
	return &Scanner{config: config}
}

// Scan enumerates paths and feeds the images found to sink. It returns the
// number of images found.
//
// A single file argument is emitted first, followed by the rest of its
// directory. Several arguments are handled in order: directories are
// listed and files are taken as they are.
func (s *Scanner) Scan(ctx context.Context, paths []string, sink Sink) (int, error) {
	if len(paths) == 0 {
		return 0, ErrNoInput
	}

	start := time.Now()
	b := &batcher{sink: sink, interval: s.config.FlushInterval, last: start}

	var err error
	if len(paths) > 1 {
		err = s.scanPaths(ctx, paths, b)
	} else {
		err = s.scanOne(ctx, paths[0], b)
	}
	b.flush()

	logging.Info("Scan found %d images in %v", b.total, time.Since(start))
	return b.total, err
}

func (s *Scanner) scanOne(ctx context.Context, path string, b *batcher) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	info, err := filesystem.StatWithRetry(abs, s.config.Retry)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", abs, err)
	}

	if info.IsDir() {
		return s.scanDir(ctx, abs, "", b)
	}
	if supported(abs) {
		b.add(fileInfo(abs, info))
		b.flush()
	}
	return s.scanDir(ctx, filepath.Dir(abs), abs, b)
}

func (s *Scanner) scanPaths(ctx context.Context, paths []string, b *batcher) error {
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			logging.Warn("Skipping %s: %v", p, err)
			continue
		}
		info, err := filesystem.StatWithRetry(abs, s.config.Retry)
		if err != nil {
			logging.Warn("Skipping %s: %v", abs, err)
			continue
		}

		if info.IsDir() {
			if err := s.scanDir(ctx, abs, "", b); err != nil {
				if ctx.Err() != nil {
					return err
				}
				logging.Warn("Skipping %s: %v", abs, err)
			}
			continue
		}
		if supported(abs) {
			b.add(fileInfo(abs, info))
		}
	}
	return nil
}

// scanDir lists dir, leaving out skip, which was already emitted.
func (s *Scanner) scanDir(ctx context.Context, dir, skip string, b *batcher) error {
	if !s.config.Recursive {
		entries, err := filesystem.ReadDirWithRetry(dir, s.config.Retry)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", dir, err)
		}
		for _, d := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.visit(filepath.Join(dir, d.Name()), d, skip, b)
		}
		return nil
	}

	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			logging.Warn("Error accessing path %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			if path != dir && s.hidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		s.visit(path, d, skip, b)
		return nil
	})
}

func (s *Scanner) visit(path string, d fs.DirEntry, skip string, b *batcher) {
	if d.IsDir() || path == skip || s.hidden(d.Name()) || !supported(path) {
		return
	}
	info, err := d.Info()
	if err != nil {
		logging.Warn("Error getting info for %s: %v", path, err)
		return
	}
	b.add(fileInfo(path, info))
}

func (s *Scanner) hidden(name string) bool {
	return s.config.SkipHidden && strings.HasPrefix(name, ".")
}

func supported(path string) bool {
	return mediatypes.IsSupported(path)
}

func fileInfo(path string, info fs.FileInfo) collection.FileInfo {
	return collection.FileInfo{Path: path, Size: info.Size(), ModTime: info.ModTime()}
}

// batcher accumulates files and hands them on once interval has passed.
type batcher struct {
	sink     Sink
	interval time.Duration
	last     time.Time
	pending  []collection.FileInfo
	total    int
}

func (b *batcher) add(f collection.FileInfo) {
	b.pending = append(b.pending, f)
	b.total++
	if time.Since(b.last) >= b.interval {
		b.flush()
	}
}

func (b *batcher) flush() {
	b.last = time.Now()
	if len(b.pending) == 0 {
		return
	}
	batch := b.pending
	b.pending = nil
	b.sink(batch)
}
