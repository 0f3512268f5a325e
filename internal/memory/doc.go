// Package memory keeps decoded-image residency inside the process memory
// budget.
//
// Full-resolution decodes dominate the heap: a 24 megapixel photo is close
// to 100 MB as RGBA. [ConfigureFromEnv] sets GOMEMLIMIT from a container
// limit so the collector works harder before the kernel steps in, and a
// [Monitor] samples the heap against that limit. The scheduler consults
// [Monitor.ShouldThrottle] and stops prefetching neighbours of the current
// image while it returns true; the current image is always loaded.
//
// # Environment Variables
//
//   - GOMEMLIMIT: Standard Go environment variable. If set, takes precedence
//     over everything below.
//
//   - MEMORY_LIMIT: Memory limit in bytes, for example from the Kubernetes
//     Downward API or a systemd MemoryMax.
//
//   - MEMORY_RATIO: Share of MEMORY_LIMIT given to the Go heap, between 0.0
//     and 1.0. Default is 0.85. libvips allocates outside the Go heap, so
//     lower this when VIPS_ENABLED is set.
package memory
