// Package thumbstore persists encoded thumbnails in a single SQLite file,
// keyed by content hash.
//
// The table maps a 32-byte SHA-256 hash to a JPEG blob together with the
// source path and size it was made from:
//
//	CREATE TABLE images (hash BLOB PRIMARY KEY, image BLOB, path TEXT, size INTEGER)
//
// Older caches only carry (hash, image). Opening one adds the two missing
// columns; rows written before the migration keep NULL there and read back
// the same, since lookups only ever select the image.
//
// A Store holds one connection and serializes every call on a mutex, so it
// is safe to share between load tasks. Write failures are logged and
// counted in imgview_thumbnail_store_errors_total rather than returned: a
// thumbnail that failed to persist is simply regenerated next session.
package thumbstore
