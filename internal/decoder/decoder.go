// Package decoder turns uploaded bytes into a drawable bitmap and enforces
// the source format and dimension policy.
package decoder

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/toolchest/favikit/internal/favicon"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Supported MIME types.
const (
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
	MIMEGIF  = "image/gif"
	MIMEWebP = "image/webp"
	MIMESVG  = "image/svg+xml"
	MIMEBMP  = "image/bmp"
)

var supported = map[string]bool{
	MIMEPNG:  true,
	MIMEJPEG: true,
	MIMEGIF:  true,
	MIMEWebP: true,
	MIMESVG:  true,
	MIMEBMP:  true,
}

var aliases = map[string]string{
	"image/jpg":      MIMEJPEG,
	"image/pjpeg":    MIMEJPEG,
	"image/x-png":    MIMEPNG,
	"image/svg":      MIMESVG,
	"image/x-bmp":    MIMEBMP,
	"image/x-ms-bmp": MIMEBMP,
}

var extensions = map[string]string{
	".png":  MIMEPNG,
	".jpg":  MIMEJPEG,
	".jpeg": MIMEJPEG,
	".gif":  MIMEGIF,
	".webp": MIMEWebP,
	".svg":  MIMESVG,
	".bmp":  MIMEBMP,
}

// SVGRenderSize is the longest side SVG sources are rasterized at.
const SVGRenderSize = 1024

// Limits is the decoder's acceptance policy.
type Limits struct {
	MinDimension       int
	MaxDimension       int
	LargeFileThreshold int64
}

// DefaultLimits returns the 16-2048 px policy with a 5 MiB warning threshold.
func DefaultLimits() Limits {
	return Limits{
		MinDimension:       16,
		MaxDimension:       2048,
		LargeFileThreshold: favicon.DefaultLargeFileThreshold,
	}
}

// Decoded is a source bitmap owned by one pipeline run.
type Decoded struct {
	Image image.Image
	// Width and Height are the natural dimensions. For SVG sources the
	// bitmap is rendered larger or smaller with the same aspect ratio.
	Width  int
	Height int
	MIME   string
	Size   int64
	Large  bool
}

// Release drops the bitmap.
func (d *Decoded) Release() {
	if d != nil {
		d.Image = nil
	}
}

// MIMEFromFilename maps a file extension to a supported MIME type.
func MIMEFromFilename(name string) string {
	return extensions[strings.ToLower(filepath.Ext(name))]
}

// Supported reports whether mime can be decoded.
func Supported(mime string) bool {
	return supported[normalizeMIME(mime)]
}

// Decode validates and decodes data. An empty declaredMIME is sniffed.
func Decode(data []byte, declaredMIME string, limits Limits) (dec *Decoded, err error) {
	defer func() {
		if r := recover(); r != nil {
			dec = nil
			err = fmt.Errorf("%w: %v", favicon.ErrDecodePanic, r)
		}
	}()

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", favicon.ErrCorruptImage)
	}

	mime := normalizeMIME(declaredMIME)
	if mime == "" {
		mime = normalizeMIME(mimetype.Detect(data).String())
	}
	if !supported[mime] {
		return nil, fmt.Errorf("%w: %q", favicon.ErrUnsupportedFormat, mime)
	}

	if mime == MIMESVG {
		dec, err = decodeSVG(data, limits)
	} else {
		dec, err = decodeRaster(data, limits)
	}
	if err != nil {
		return nil, err
	}
	dec.MIME = mime
	dec.Size = int64(len(data))
	dec.Large = limits.LargeFileThreshold > 0 && dec.Size > limits.LargeFileThreshold
	return dec, nil
}

func decodeRaster(data []byte, limits Limits) (*Decoded, error) {
	// Header first so oversized sources are rejected before allocation.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", favicon.ErrCorruptImage, err)
	}
	if err := checkDimensions(cfg.Width, cfg.Height, limits); err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", favicon.ErrCorruptImage, err)
	}
	b := img.Bounds()
	return &Decoded{Image: img, Width: b.Dx(), Height: b.Dy()}, nil
}

func decodeSVG(data []byte, limits Limits) (*Decoded, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", favicon.ErrCorruptImage, err)
	}

	w, h := icon.ViewBox.W, icon.ViewBox.H
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: svg has no usable viewBox", favicon.ErrCorruptImage)
	}
	natW, natH := int(math.Round(w)), int(math.Round(h))
	if err := checkDimensions(natW, natH, limits); err != nil {
		return nil, err
	}

	scale := float64(SVGRenderSize) / math.Max(w, h)
	outW := max(1, int(math.Round(w*scale)))
	outH := max(1, int(math.Round(h*scale)))

	icon.SetTarget(0, 0, float64(outW), float64(outH))
	img := image.NewRGBA(image.Rect(0, 0, outW, outH))
	scanner := rasterx.NewScannerGV(outW, outH, img, img.Bounds())
	raster := rasterx.NewDasher(outW, outH, scanner)
	icon.Draw(raster, 1.0)

	return &Decoded{Image: img, Width: natW, Height: natH}, nil
}

func checkDimensions(w, h int, limits Limits) error {
	if w < limits.MinDimension || h < limits.MinDimension ||
		w > limits.MaxDimension || h > limits.MaxDimension {
		return fmt.Errorf("%w: %dx%d (allowed %d-%d px per side)",
			favicon.ErrDimensionOutOfRange, w, h, limits.MinDimension, limits.MaxDimension)
	}
	return nil
}

func normalizeMIME(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	if m == "application/octet-stream" {
		// Generic uploads carry no type information; sniff instead.
		return ""
	}
	if a, ok := aliases[m]; ok {
		return a
	}
	return m
}
