/*
Package filesystem wraps the file reads imgview performs with retry logic for
NFS stale file handle errors.

Image collections frequently live on network shares. An ESTALE from the
server is transient: the same open usually succeeds a few milliseconds
later. Every other error is returned immediately, so a missing file still
fails on the first attempt and lands in the entry's error message.

	data, err := filesystem.ReadFileWithRetry(path, filesystem.DefaultRetryConfig())

The defaults are three retries with exponential backoff from 50ms capped
at 500ms. Metrics are recorded through an Observer set at startup; with no
observer set, nothing is recorded.
*/
package filesystem
