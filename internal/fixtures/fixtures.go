// Package fixtures builds in-memory source images for tests and the e2e
// fixture generator.
package fixtures

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
)

// Gradient is an opaque horizontal/vertical colour ramp.
func Gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

// AlphaGradient fades from opaque to transparent left to right.
func AlphaGradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: 255,
				G: uint8(y * 255 / h),
				B: 0,
				A: uint8(255 - x*255/w),
			})
		}
	}
	return img
}

// Logo is a transparent square with an opaque disc in the middle.
func Logo(side int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, side, side))
	r := side / 3
	c := side / 2
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			dx, dy := x-c, y-c
			if dx*dx+dy*dy <= r*r {
				img.SetNRGBA(x, y, color.NRGBA{R: 220, G: 40, B: 60, A: 255})
			}
		}
	}
	return img
}

// PNG encodes img.
func PNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// JPEG encodes img at quality 90.
func JPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SVG returns a w x h document with a coloured rectangle.
func SVG(w, h int, fill string) []byte {
	return []byte(fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect x="0" y="0" width="%d" height="%d" fill="%s"/>
</svg>`, w, h, w, h, w, h, fill))
}

// Text is a payload that is not an image.
var Text = []byte("favicon sources must be images, this is plain text\n")

// padChunk is a private ancillary chunk type decoders skip.
const padChunk = "faVk"

// PadPNG grows a PNG to exactly total bytes by inserting an ancillary
// chunk before IEND. The result still decodes to the same image.
func PadPNG(data []byte, total int) ([]byte, error) {
	const overhead = 12 // length + type + crc
	iend := bytes.LastIndex(data, []byte("IEND"))
	if iend < 4 {
		return nil, fmt.Errorf("fixtures: no IEND chunk")
	}
	iend -= 4 // back to the length field

	payload := total - len(data) - overhead
	if payload < 0 {
		return nil, fmt.Errorf("fixtures: png is %d bytes, cannot pad to %d", len(data), total)
	}

	chunk := make([]byte, overhead+payload)
	binary.BigEndian.PutUint32(chunk[0:4], uint32(payload))
	copy(chunk[4:8], padChunk)
	crc := crc32.NewIEEE()
	crc.Write(chunk[4 : 8+payload])
	binary.BigEndian.PutUint32(chunk[8+payload:], crc.Sum32())

	out := make([]byte, 0, total)
	out = append(out, data[:iend]...)
	out = append(out, chunk...)
	out = append(out, data[iend:]...)
	return out, nil
}
