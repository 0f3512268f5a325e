// Package vipsthumb produces thumbnails with libvips, which can shrink a
// JPEG while decoding it instead of materializing every pixel first.
//
// It is optional: the loader falls back to a pure-Go decode and resize when
// no Thumbnailer is configured. Enable it with VIPS_ENABLED=true.
//
// govips cannot restart libvips after Shutdown, so Startup and Shutdown are
// meant to be called once per process from main.
package vipsthumb
