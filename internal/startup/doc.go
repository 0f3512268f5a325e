// Package startup loads configuration and prints the startup and shutdown
// log sections shared by the imgview binaries.
//
// # Configuration
//
// All configuration comes from environment variables via [LoadConfig]:
//
//   - IMGVIEW_DATA_DIR: Directory holding thumbs.db (default: the per-user
//     data directory, e.g. ~/.local/share/imgview)
//   - IMGVIEW_WORKERS: Number of load workers (default: one per CPU)
//   - IMGVIEW_RECURSIVE: Descend into subdirectories when given a directory
//     (default: false)
//   - METRICS_ADDR: Listen address for /metrics, /healthz and /stats, for
//     example 127.0.0.1:9090 (default: disabled)
//   - VIPS_ENABLED: Generate thumbnails with libvips (default: false)
//   - LOG_LEVEL: debug, info, warn or error (default: info)
//   - MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT: see package memory
//
// # Build Information
//
// Version, Commit and BuildTime are injected with -ldflags and exposed via
// [GetBuildInfo].
package startup
