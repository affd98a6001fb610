package fixtures

import (
	"bytes"
	"image/png"
	"testing"
)

func TestPadPNG(t *testing.T) {
	data, err := PNG(Gradient(64, 64))
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	const total = 256 * 1024
	padded, err := PadPNG(data, total)
	if err != nil {
		t.Fatalf("pad: %v", err)
	}
	if len(padded) != total {
		t.Fatalf("length: got %d, want %d", len(padded), total)
	}
	img, err := png.Decode(bytes.NewReader(padded))
	if err != nil {
		t.Fatalf("decode padded: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
		t.Errorf("dims: got %dx%d", b.Dx(), b.Dy())
	}

	if _, err := PadPNG(data, len(data)); err == nil {
		t.Error("expected error when target leaves no room for a chunk")
	}
}
