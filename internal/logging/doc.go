// Package logging is the leveled logger shared by every imgview package.
//
// Levels, from most to least verbose:
//   - DEBUG: per-entry scheduling and load decisions
//   - INFO: startup, store and scan summaries
//   - WARN: recoverable failures (cache writes, unreadable paths)
//   - ERROR: failures that lose work
//   - FATAL: unrecoverable startup errors, exits the process
//
// The level comes from DEBUG=1 or LOG_LEVEL, read once on first use.
// Tests and tools may override it with SetLevel.
package logging
