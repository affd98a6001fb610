package encoder

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
)

// PNGEncoder encodes lossless PNG.
type PNGEncoder struct {
	Level png.CompressionLevel
}

// ParsePNGLevel maps a config name onto a compression level.
func ParsePNGLevel(name string) (png.CompressionLevel, error) {
	switch name {
	case "", "best":
		return png.BestCompression, nil
	case "default":
		return png.DefaultCompression, nil
	case "fast":
		return png.BestSpeed, nil
	case "none":
		return png.NoCompression, nil
	}
	return 0, fmt.Errorf("unknown png level %q", name)
}

func (e *PNGEncoder) Format() string    { return "png" }
func (e *PNGEncoder) MIME() string      { return "image/png" }
func (e *PNGEncoder) Extension() string { return "png" }
func (e *PNGEncoder) Available() bool   { return true }

func (e *PNGEncoder) Encode(img image.Image, _ int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(16 * 1024)

	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(e.Level)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
