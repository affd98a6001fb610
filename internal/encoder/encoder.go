// Package encoder turns rasterized canvases into PNG, JPEG or WebP bytes.
package encoder

import (
	"image"
	"image/color"

	"github.com/toolchest/favikit/internal/favicon"
	"github.com/toolchest/favikit/internal/raster"
)

// Encoder encodes an image to a specific format.
type Encoder interface {
	// Format returns the output format name ("png", "jpeg", "webp").
	Format() string

	// MIME returns the content type of encoded payloads.
	MIME() string

	// Encode converts the image to bytes at the given quality (1-100).
	// Lossless encoders ignore quality.
	Encode(img image.Image, quality int) ([]byte, error)

	// Available returns true if the encoder is ready to use.
	// cwebp may not be installed.
	Available() bool

	// Extension returns the file extension without dot.
	Extension() string
}

// SupportsAlpha reports whether format can carry transparency.
func SupportsAlpha(format string) bool {
	return format != favicon.OutputJPEG
}

// Prepare readies a canvas for format. Formats without alpha are always
// flattened; others are flattened only when transparency is not preserved.
// A transparent background flattens onto white.
func Prepare(img image.Image, format string, bg color.NRGBA, transparent, preserve bool) image.Image {
	if SupportsAlpha(format) && preserve {
		return img
	}
	if transparent {
		bg = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	}
	return raster.Flatten(img, bg)
}
