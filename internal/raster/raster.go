// Package raster draws a decoded source onto fixed-size favicon canvases.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/toolchest/favikit/internal/catalog"
	"github.com/toolchest/favikit/internal/favicon"
)

// MaxCanvasSide is the largest surface the rasterizer allocates.
const MaxCanvasSide = 4096

// Params controls background and padding.
type Params struct {
	Background  color.NRGBA
	Transparent bool
	Padding     float64 // percent, 0-50
}

// ParamsFromOptions extracts rasterizer params from run options.
func ParamsFromOptions(o favicon.Options) (Params, error) {
	bg, transparent, err := favicon.ParseBackground(o.Background)
	if err != nil {
		return Params{}, err
	}
	return Params{Background: bg, Transparent: transparent, Padding: o.Padding}, nil
}

// Layout returns where a srcW x srcH source lands on a canvasW x canvasH
// canvas: each side is inset by padding% of half the shorter canvas side
// and the source is scaled to fit the remaining box, centered.
func Layout(srcW, srcH, canvasW, canvasH int, padding float64) image.Rectangle {
	inset := int(math.Round(padding / 100 * float64(min(canvasW, canvasH)) / 2))
	boxW := max(1, canvasW-2*inset)
	boxH := max(1, canvasH-2*inset)

	scale := math.Min(float64(boxW)/float64(srcW), float64(boxH)/float64(srcH))
	w := min(boxW, max(1, int(math.Round(float64(srcW)*scale))))
	h := min(boxH, max(1, int(math.Round(float64(srcH)*scale))))

	x := inset + (boxW-w)/2
	y := inset + (boxH-h)/2
	return image.Rect(x, y, x+w, y+h)
}

// Rasterize renders src onto a new canvas of the given size.
func Rasterize(src image.Image, size catalog.Size, p Params) (out *image.NRGBA, err error) {
	if size.Width <= 0 || size.Height <= 0 || size.Width > MaxCanvasSide || size.Height > MaxCanvasSide {
		return nil, fmt.Errorf("%w: %s is %dx%d", favicon.ErrCanvasAllocationFailed, size.Key, size.Width, size.Height)
	}
	if src == nil {
		return nil, fmt.Errorf("%w: %s: source released", favicon.ErrCanvasAllocationFailed, size.Key)
	}
	sb := src.Bounds()
	if sb.Empty() {
		return nil, fmt.Errorf("%w: %s: empty source", favicon.ErrCanvasAllocationFailed, size.Key)
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: %s: %v", favicon.ErrCanvasAllocationFailed, size.Key, r)
		}
	}()

	fill := color.NRGBA{}
	if !p.Transparent {
		fill = p.Background
	}
	canvas := imaging.New(size.Width, size.Height, fill)

	dst := Layout(sb.Dx(), sb.Dy(), size.Width, size.Height, p.Padding)
	resized := imaging.Resize(src, dst.Dx(), dst.Dy(), imaging.Lanczos)
	return imaging.Overlay(canvas, resized, dst.Min, 1.0), nil
}

// Flatten composites img over an opaque background. Formats without an
// alpha channel must be flattened before encoding.
func Flatten(img image.Image, bg color.NRGBA) *image.NRGBA {
	bg.A = 255
	b := img.Bounds()
	base := imaging.New(b.Dx(), b.Dy(), bg)
	return imaging.Overlay(base, img, image.Pt(0, 0), 1.0)
}

// RawSize is the uncompressed RGBA byte count of img.
func RawSize(img image.Image) int64 {
	b := img.Bounds()
	return int64(b.Dx()) * int64(b.Dy()) * 4
}
