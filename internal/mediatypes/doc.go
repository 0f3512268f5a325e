// Package mediatypes knows which files imgview can decode.
//
// It is a dependency-free leaf so that the scanner, the loader and the
// command-line tools can share one list of formats:
//
//	if mediatypes.IsSupported(path) {
//	    // enumerate it
//	}
//
// Vector and icon formats (svg, ico) are deliberately absent: they have no
// meaningful native resolution to window around. DetectFormat sniffs magic
// bytes so that decode errors can name what the file actually is.
package mediatypes
