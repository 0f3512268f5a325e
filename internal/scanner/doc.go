// Package scanner turns command-line arguments into batches of image files
// for the scheduler.
//
// The arguments select what is browsed:
//
//   - one file: that file first, then the other images in its directory
//   - several files: exactly those that are images, in the given order
//   - a directory: every image in it, recursively if configured
//
// Files are recognized by extension (see mediatypes.ImageExtensions).
// Batches are handed to the sink as the walk progresses, at most every
// FlushInterval, so a large directory starts displaying before the walk
// ends.
package scanner
