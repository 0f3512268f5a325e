package thumbstore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"imgview/internal/contenthash"
	"imgview/internal/logging"
	"imgview/internal/metrics"
)

// FileName is the name of the cache file inside the data directory.
const FileName = "thumbs.db"

// JPEGQuality is the quality thumbnails are encoded with before storage.
const JPEGQuality = 100

// Default timeout for store operations
const defaultTimeout = 5 * time.Second

// ErrNotFound is returned by Delete when no row has the given hash.
var ErrNotFound = errors.New("thumbnail not found")

// Store is the persistent thumbnail cache.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Stats summarizes the store contents.
type Stats struct {
	Rows  int64
	Bytes int64
}

// Open opens or creates the cache at path. The parent directory must exist.
func Open(ctx context.Context, path string) (*Store, error) {
	logging.Debug("Thumbnail store path: %s", path)

	if err := diagnosePermissions(path); err != nil {
		logging.Warn("Thumbnail store permission diagnostics: %v", err)
	}

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open thumbnail store: %w", err)
	}

	// All access is serialized on Store.mu; a second connection would only
	// add lock contention inside SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to connect to thumbnail store: %w", err), db.Close())
	}

	s := &Store{db: db, path: path}

	if err := s.initialize(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to initialize thumbnail store schema: %w", err), db.Close())
	}

	logging.Info("Thumbnail store opened at %s", path)
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS images (
			hash BLOB PRIMARY KEY,
			image BLOB,
			path TEXT,
			size INTEGER
		)
	`)
	if err != nil {
		return err
	}

	return s.runMigrations(ctx)
}

// runMigrations upgrades the two-column layout written by older versions.
func (s *Store) runMigrations(ctx context.Context) error {
	var pathExists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('images')
		WHERE name='path'
	`).Scan(&pathExists)
	if err != nil {
		return fmt.Errorf("failed to check for path column: %w", err)
	}

	if pathExists {
		return nil
	}

	logging.Info("Migrating thumbnail store: adding path and size columns")

	if _, err := s.db.ExecContext(ctx, `ALTER TABLE images ADD COLUMN path TEXT`); err != nil {
		return fmt.Errorf("failed to add path column: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `ALTER TABLE images ADD COLUMN size INTEGER`); err != nil {
		return fmt.Errorf("failed to add size column: %w", err)
	}

	logging.Info("Migration complete: thumbnail store has path and size columns")
	return nil
}

// Path returns the file the store was opened from.
func (s *Store) Path() string {
	return s.path
}

// Insert stores encoded under hash, replacing any existing row. Failures are
// logged and counted, never returned.
func (s *Store) Insert(hash contenthash.Hash, encoded []byte, sourcePath string, sourceSize int64) {
	start := time.Now()
	var err error
	defer func() { recordOp("insert", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO images (hash, image, path, size) VALUES (?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			image = excluded.image,
			path = excluded.path,
			size = excluded.size
	`, hash.Bytes(), encoded, sourcePath, sourceSize)
	if err != nil {
		logging.Error("Failed to store thumbnail %s for %s: %v", hash, sourcePath, err)
	}
}

// InsertImage JPEG-encodes img and stores it under hash.
func (s *Store) InsertImage(hash contenthash.Hash, img image.Image, sourcePath string, sourceSize int64) {
	encoded, err := Encode(img)
	if err != nil {
		metrics.ThumbnailStoreErrors.WithLabelValues("insert").Inc()
		logging.Error("Failed to encode thumbnail for %s: %v", sourcePath, err)
		return
	}
	s.Insert(hash, encoded, sourcePath, sourceSize)
}

// Get returns the blob stored under hash. A missing row and a failed query
// both report false; the failure is logged.
func (s *Store) Get(hash contenthash.Hash) ([]byte, bool) {
	start := time.Now()
	var err error
	defer func() { recordOp("get", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var blob []byte
	err = s.db.QueryRowContext(ctx, `SELECT image FROM images WHERE hash = ?`, hash.Bytes()).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		metrics.ThumbnailCacheMisses.Inc()
		return nil, false
	}
	if err != nil {
		logging.Error("Failed to read thumbnail %s: %v", hash, err)
		metrics.ThumbnailCacheMisses.Inc()
		return nil, false
	}

	metrics.ThumbnailCacheHits.Inc()
	return blob, true
}

// GetImage returns the decoded thumbnail stored under hash. A blob that no
// longer decodes is reported as absent so the caller regenerates it.
func (s *Store) GetImage(hash contenthash.Hash) (image.Image, bool) {
	blob, ok := s.Get(hash)
	if !ok {
		return nil, false
	}
	img, err := imaging.Decode(bytes.NewReader(blob))
	if err != nil {
		logging.Warn("Stored thumbnail %s is corrupt: %v", hash, err)
		return nil, false
	}
	return img, true
}

// Stats returns the row count and the total size of the stored blobs.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	start := time.Now()
	var err error
	defer func() { recordOp("stats", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	var st Stats
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(LENGTH(image)), 0) FROM images
	`).Scan(&st.Rows, &st.Bytes)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read thumbnail store stats: %w", err)
	}
	return st, nil
}

// Delete removes the row for hash. It returns ErrNotFound when there is none.
func (s *Store) Delete(ctx context.Context, hash contenthash.Hash) error {
	start := time.Now()
	var err error
	defer func() { recordOp("delete", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	var res sql.Result
	res, err = s.db.ExecContext(ctx, `DELETE FROM images WHERE hash = ?`, hash.Bytes())
	if err != nil {
		return fmt.Errorf("failed to delete thumbnail %s: %w", hash, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete thumbnail %s: %w", hash, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Vacuum rebuilds the database file, reclaiming space left by deletes.
func (s *Store) Vacuum(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum thumbnail store: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Encode JPEG-encodes img at JPEGQuality.
func Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func recordOp(operation string, start time.Time, err error) {
	metrics.ThumbnailStoreDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ThumbnailStoreErrors.WithLabelValues(operation).Inc()
	}
}

// diagnosePermissions logs why a later write might fail. It never blocks Open.
func diagnosePermissions(path string) error {
	dir := filepath.Dir(path)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat thumbnail store directory: %w", err)
	}
	logging.Debug("Thumbnail store directory: %s (mode: %v)", dir, dirInfo.Mode())

	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		logging.Debug("Thumbnail store file: %s (mode: %v, size: %d bytes)", p, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("%s is read-only (mode %v); thumbnails will not be saved", p, info.Mode())
		}
	}
	return nil
}
