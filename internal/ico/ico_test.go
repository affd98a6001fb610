package ico

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/png"
	"testing"

	goico "github.com/sergeymakinen/go-ico"
)

func pngFrame(t *testing.T, side int) Frame {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, side, side))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 255, 255
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	f, err := FrameFromPNG(buf.Bytes())
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	return f
}

func TestBuild_Layout(t *testing.T) {
	frames := []Frame{pngFrame(t, 48), pngFrame(t, 16), pngFrame(t, 32)}
	data, err := Build(frames)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if got := binary.LittleEndian.Uint16(data[2:]); got != 1 {
		t.Errorf("type: got %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint16(data[4:]); got != 3 {
		t.Errorf("count: got %d, want 3", got)
	}

	entries, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	wantWidths := []int{16, 32, 48}
	offset := uint32(headerSize + entrySize*3)
	for i, e := range entries {
		if e.Width != wantWidths[i] || e.Height != wantWidths[i] {
			t.Errorf("entry %d: got %dx%d, want %d", i, e.Width, e.Height, wantWidths[i])
		}
		if e.Offset != offset {
			t.Errorf("entry %d offset: got %d, want %d", i, e.Offset, offset)
		}
		offset += e.Size
	}
	if int(offset) != len(data) {
		t.Errorf("payload end: got %d, want %d", offset, len(data))
	}
}

func TestBuild_DecodesWithGoICO(t *testing.T) {
	data, err := Build([]Frame{pngFrame(t, 16), pngFrame(t, 32), pngFrame(t, 48)})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	img, err := goico.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("go-ico decode: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != b.Dy() || (b.Dx() != 16 && b.Dx() != 32 && b.Dx() != 48) {
		t.Errorf("decoded frame: got %dx%d", b.Dx(), b.Dy())
	}
	r, _, _, a := img.At(b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2).RGBA()
	if r>>8 != 255 || a>>8 != 255 {
		t.Errorf("pixel: got r=%d a=%d", r>>8, a>>8)
	}
}

func TestBuild_256StoredAsZero(t *testing.T) {
	data, err := Build([]Frame{pngFrame(t, 256)})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if data[headerSize] != 0 || data[headerSize+1] != 0 {
		t.Errorf("width/height bytes: got %d/%d, want 0/0", data[headerSize], data[headerSize+1])
	}
	entries, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if entries[0].Width != 256 {
		t.Errorf("parsed width: got %d", entries[0].Width)
	}
}

func TestBuild_Rejects(t *testing.T) {
	f16 := pngFrame(t, 16)
	cases := map[string][]Frame{
		"empty":     nil,
		"duplicate": {f16, f16},
		"not png":   {{Width: 16, Height: 16, PNG: []byte("GIF89a")}},
		"too big":   {{Width: 512, Height: 512, PNG: f16.PNG}},
	}
	for name, frames := range cases {
		if _, err := Build(frames); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestParse_Rejects(t *testing.T) {
	good, err := Build([]Frame{pngFrame(t, 16)})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	wrongType := append([]byte(nil), good...)
	wrongType[2] = 2

	cases := map[string][]byte{
		"short":      good[:4],
		"truncated":  good[:len(good)-10],
		"wrong type": wrongType,
	}
	for name, data := range cases {
		if _, err := Parse(data); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
