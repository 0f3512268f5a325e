// Package loader runs the background work for a single collection entry:
// reading the file, decoding it, producing or fetching its thumbnail and
// dropping decoded data that is no longer needed.
//
// One call to [Loader.Run] is one task. It takes the entry's pending work
// under the entry lock, then performs every step with the lock released,
// taking it again only to publish each result. A file is read at most once
// and decoded at most once per task, however many operations need it.
//
// Thumbnails are looked up in the persistent store before anything is
// decoded. The key is the SHA-256 of the file bytes when the task has
// already read them, otherwise the SHA-256 of the file's path, size and
// modification time, which avoids a read for entries that only need a
// thumbnail.
package loader
