package encoder

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

// gradient returns a canvas with a transparent border around an opaque
// noisy square, so both alpha handling and lossy quality are observable.
func gradient(side int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, side, side))
	for y := side / 4; y < side*3/4; y++ {
		for x := side / 4; x < side*3/4; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 13), B: uint8(x * y), A: 255})
		}
	}
	return img
}

func TestPNGEncoder_RoundTrip(t *testing.T) {
	src := gradient(32)
	enc := &PNGEncoder{Level: png.BestCompression}
	data, err := enc.Encode(src, 0)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, _, _, a := img.At(0, 0).RGBA(); a != 0 {
		t.Errorf("corner alpha: got %d, want 0", a)
	}
	if _, _, _, a := img.At(16, 16).RGBA(); a != 0xffff {
		t.Errorf("center alpha: got %d, want opaque", a)
	}
}

func TestJPEGEncoder_QualityAffectsSize(t *testing.T) {
	src := Prepare(gradient(128), "jpeg", color.NRGBA{}, true, true)
	enc := &JPEGEncoder{}
	low, err := enc.Encode(src, 10)
	if err != nil {
		t.Fatalf("encode low: %v", err)
	}
	high, err := enc.Encode(src, 100)
	if err != nil {
		t.Fatalf("encode high: %v", err)
	}
	if len(low) >= len(high) {
		t.Errorf("quality 10 (%d bytes) not smaller than quality 100 (%d bytes)", len(low), len(high))
	}
}

func TestPrepare_JPEGFlattensTransparentToWhite(t *testing.T) {
	src := gradient(32)
	flat := Prepare(src, "jpeg", color.NRGBA{}, true, true)

	data, err := (&JPEGEncoder{}).Encode(flat, 95)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	r, g, b, _ := img.At(1, 1).RGBA()
	if r>>8 < 245 || g>>8 < 245 || b>>8 < 245 {
		t.Errorf("transparent corner: got (%d,%d,%d), want white", r>>8, g>>8, b>>8)
	}
}

func TestPrepare(t *testing.T) {
	src := gradient(16)
	red := color.NRGBA{R: 255, A: 255}

	if got := Prepare(src, "png", red, false, true); got != image.Image(src) {
		t.Error("png with preserved transparency should pass through")
	}

	flat := Prepare(src, "png", red, false, false)
	if _, _, _, a := flat.At(0, 0).RGBA(); a != 0xffff {
		t.Errorf("flattened png alpha: got %d", a)
	}
	if r, g, _, _ := flat.At(0, 0).RGBA(); r>>8 != 255 || g>>8 != 0 {
		t.Errorf("flattened png corner: got r=%d g=%d, want red", r>>8, g>>8)
	}

	jpg := Prepare(src, "jpeg", red, false, true)
	if r, _, _, _ := jpg.At(0, 0).RGBA(); r>>8 != 255 {
		t.Error("jpeg should flatten onto the background even when transparency is preserved")
	}
}

func TestRegistry_FallsBackToPNG(t *testing.T) {
	reg := NewRegistryWith(&PNGEncoder{}, &JPEGEncoder{}, &WebPEncoder{Binary: "favikit-no-such-cwebp"})

	if reg.Get("webp") != nil {
		t.Fatal("missing cwebp should not register")
	}
	enc, fellBack, err := reg.Resolve("webp")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !fellBack || enc.Format() != "png" {
		t.Errorf("got %s fellBack=%v, want png fallback", enc.Format(), fellBack)
	}

	enc, fellBack, err = reg.Resolve("JPEG")
	if err != nil || fellBack || enc.Format() != "jpeg" {
		t.Errorf("jpeg: got %v fellBack=%v err=%v", enc, fellBack, err)
	}

	if _, _, err := NewRegistryWith().Resolve("png"); err == nil {
		t.Error("empty registry should fail to resolve")
	}
}

func TestRegistry_String(t *testing.T) {
	reg := NewRegistryWith(&PNGEncoder{}, &JPEGEncoder{}, &WebPEncoder{Binary: "favikit-no-such-cwebp"})
	if got := reg.String(); got != "encoders: png, jpeg" {
		t.Errorf("summary: got %q", got)
	}
	if got := NewRegistryWith().String(); got != "no encoders available" {
		t.Errorf("empty summary: got %q", got)
	}
}

func TestParsePNGLevel(t *testing.T) {
	for name, want := range map[string]png.CompressionLevel{
		"":        png.BestCompression,
		"best":    png.BestCompression,
		"default": png.DefaultCompression,
		"fast":    png.BestSpeed,
		"none":    png.NoCompression,
	} {
		got, err := ParsePNGLevel(name)
		if err != nil || got != want {
			t.Errorf("%q: got %v err=%v, want %v", name, got, err, want)
		}
	}
	if _, err := ParsePNGLevel("max"); err == nil {
		t.Error("expected error for unknown level")
	}
}
