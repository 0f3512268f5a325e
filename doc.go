// Command imgview is a headless image viewer that keeps the neighbourhood
// of the current image decoded and builds thumbnails for the rest of the
// collection in the background.
//
// Usage:
//
//	imgview <file|directory>...
//
// Given one file, that file is shown first and the rest of its directory
// follows. Given a directory, its images are shown in name order. Several
// files are shown in the order given.
//
// # Keys
//
// On a terminal the viewer reads single keys:
//
//	n, space, right, down   next image (wraps)
//	p, backspace, left, up  previous image (wraps)
//	q, Esc, Ctrl-C          quit
//
// When stdin is not a terminal, each line is a command: "n", "p" or "q".
//
// # Application Lifecycle
//
//  1. Configuration Loading: Reads environment variables (see package
//     startup) and sets GOMEMLIMIT from MEMORY_LIMIT
//  2. Thumbnail Store: Opens thumbs.db in the data directory
//  3. Component Initialization:
//     - Worker Pool: One slot per CPU unless IMGVIEW_WORKERS is set
//     - Memory Monitor: Pauses neighbour prefetch under heap pressure
//     - libvips: Fast thumbnail path when VIPS_ENABLED is set
//     - Metrics Collector: Samples residency and store size
//  4. Scanning: Files are handed to the scheduler in batches as they are
//     found, so the first image loads before a large directory is listed
//  5. Status Server: /metrics, /healthz and /stats when METRICS_ADDR is set
//  6. Graceful Shutdown: Handles SIGINT/SIGTERM and q, waits for running
//     loads and closes the store
package main
