package mediatypes

import (
	"path/filepath"
	"strings"
)

// Format identifies an image container by its content.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatWebP    Format = "webp"
	FormatBMP     Format = "bmp"
	FormatTIFF    Format = "tiff"
	FormatHEIF    Format = "heif"
	FormatAVIF    Format = "avif"
	FormatJXL     Format = "jxl"
	FormatUnknown Format = "unknown"
)

// ImageExtensions maps lowercase extensions, with the leading dot, to the
// format the decoders registered by the loader handle.
var ImageExtensions = map[string]Format{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".jpe":  FormatJPEG,
	".png":  FormatPNG,
	".gif":  FormatGIF,
	".webp": FormatWebP,
	".bmp":  FormatBMP,
	".tiff": FormatTIFF,
	".tif":  FormatTIFF,
}

// MimeTypes maps supported formats to their MIME type.
var MimeTypes = map[Format]string{
	FormatJPEG: "image/jpeg",
	FormatPNG:  "image/png",
	FormatGIF:  "image/gif",
	FormatWebP: "image/webp",
	FormatBMP:  "image/bmp",
	FormatTIFF: "image/tiff",
}

// Extension returns the lowercase extension of path, including the dot.
func Extension(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// IsSupported reports whether path has an extension imgview decodes.
func IsSupported(path string) bool {
	_, ok := ImageExtensions[Extension(path)]
	return ok
}

// GetMimeType returns the MIME type for path's extension, or
// "application/octet-stream" when it is not a supported image.
func GetMimeType(path string) string {
	if f, ok := ImageExtensions[Extension(path)]; ok {
		return MimeTypes[f]
	}
	return "application/octet-stream"
}

// DetectFormat identifies a file from its first bytes. 32 bytes are
// enough for every format it knows.
func DetectFormat(header []byte) Format {
	switch {
	case len(header) >= 3 && header[0] == 0xFF && header[1] == 0xD8 && header[2] == 0xFF:
		return FormatJPEG

	case len(header) >= 8 && header[0] == 0x89 && header[1] == 0x50 && header[2] == 0x4E && header[3] == 0x47:
		return FormatPNG

	case len(header) >= 4 && header[0] == 0x47 && header[1] == 0x49 && header[2] == 0x46 && header[3] == 0x38:
		return FormatGIF

	case len(header) >= 12 && header[0] == 0x52 && header[1] == 0x49 && header[2] == 0x46 && header[3] == 0x46 &&
		header[8] == 0x57 && header[9] == 0x45 && header[10] == 0x42 && header[11] == 0x50:
		return FormatWebP

	case len(header) >= 2 && header[0] == 0x42 && header[1] == 0x4D:
		return FormatBMP

	case len(header) >= 4 && ((header[0] == 0x49 && header[1] == 0x49 && header[2] == 0x2A && header[3] == 0x00) ||
		(header[0] == 0x4D && header[1] == 0x4D && header[2] == 0x00 && header[3] == 0x2A)):
		return FormatTIFF

	case len(header) >= 12 && header[4] == 0x66 && header[5] == 0x74 && header[6] == 0x79 && header[7] == 0x70:
		switch string(header[8:12]) {
		case "heic", "heix", "hevc", "hevx", "mif1", "msf1":
			return FormatHEIF
		case "avif", "avis":
			return FormatAVIF
		}
		return FormatUnknown

	case len(header) >= 2 && header[0] == 0xFF && header[1] == 0x0A:
		return FormatJXL
	}

	return FormatUnknown
}

// Decodable reports whether f is one of the formats the loader can decode.
func (f Format) Decodable() bool {
	_, ok := MimeTypes[f]
	return ok
}
