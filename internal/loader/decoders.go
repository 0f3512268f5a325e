package loader

// imaging registers jpeg, png and gif; these add the rest of the formats in
// mediatypes.ImageExtensions.
import (
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)
