// Package ico assembles and inspects multi-resolution .ico containers with
// PNG-compressed frames.
package ico

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image/png"
	"sort"
)

const (
	headerSize = 6
	entrySize  = 16

	// MaxSide is the largest frame an ICO directory entry can describe.
	MaxSide = 256
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// ErrNoFrames is returned by Build when there is nothing to pack.
var ErrNoFrames = errors.New("ico: no frames")

// Frame is one PNG-encoded image destined for the container.
type Frame struct {
	Width  int
	Height int
	PNG    []byte
}

// Entry describes one frame found in a container.
type Entry struct {
	Width  int
	Height int
	Size   uint32
	Offset uint32
}

type iconDir struct {
	Reserved uint16
	Type     uint16
	Count    uint16
}

type iconDirEntry struct {
	Width       uint8
	Height      uint8
	ColorCount  uint8
	Reserved    uint8
	Planes      uint16
	BitCount    uint16
	BytesInRes  uint32
	ImageOffset uint32
}

// Build writes frames sorted by width ascending. Duplicate widths and
// frames without PNG bytes are rejected.
func Build(frames []Frame) ([]byte, error) {
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}
	sorted := append([]Frame(nil), frames...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Width < sorted[j].Width })

	payload := 0
	for i, f := range sorted {
		if f.Width <= 0 || f.Height <= 0 || f.Width > MaxSide || f.Height > MaxSide {
			return nil, fmt.Errorf("ico: frame %dx%d outside 1-%d", f.Width, f.Height, MaxSide)
		}
		if !bytes.HasPrefix(f.PNG, pngSignature) {
			return nil, fmt.Errorf("ico: %dx%d frame is not png", f.Width, f.Height)
		}
		if i > 0 && sorted[i-1].Width == f.Width {
			return nil, fmt.Errorf("ico: duplicate %dpx frame", f.Width)
		}
		payload += len(f.PNG)
	}

	var buf bytes.Buffer
	dirSize := headerSize + entrySize*len(sorted)
	buf.Grow(dirSize + payload)

	if err := binary.Write(&buf, binary.LittleEndian, iconDir{Type: 1, Count: uint16(len(sorted))}); err != nil {
		return nil, err
	}
	offset := uint32(dirSize)
	for _, f := range sorted {
		e := iconDirEntry{
			Width:       sideByte(f.Width),
			Height:      sideByte(f.Height),
			Planes:      1,
			BitCount:    32,
			BytesInRes:  uint32(len(f.PNG)),
			ImageOffset: offset,
		}
		if err := binary.Write(&buf, binary.LittleEndian, e); err != nil {
			return nil, err
		}
		offset += uint32(len(f.PNG))
	}
	for _, f := range sorted {
		buf.Write(f.PNG)
	}
	return buf.Bytes(), nil
}

// Parse reads the directory of an .ico and checks every entry points at a
// PNG payload inside the buffer.
func Parse(data []byte) ([]Entry, error) {
	r := bytes.NewReader(data)
	var dir iconDir
	if err := binary.Read(r, binary.LittleEndian, &dir); err != nil {
		return nil, fmt.Errorf("ico: header: %w", err)
	}
	if dir.Reserved != 0 || dir.Type != 1 {
		return nil, fmt.Errorf("ico: not an icon (type %d)", dir.Type)
	}
	if dir.Count == 0 {
		return nil, errors.New("ico: empty directory")
	}

	entries := make([]Entry, 0, dir.Count)
	for i := 0; i < int(dir.Count); i++ {
		var e iconDirEntry
		if err := binary.Read(r, binary.LittleEndian, &e); err != nil {
			return nil, fmt.Errorf("ico: entry %d: %w", i, err)
		}
		end := uint64(e.ImageOffset) + uint64(e.BytesInRes)
		if end > uint64(len(data)) {
			return nil, fmt.Errorf("ico: entry %d overruns buffer", i)
		}
		if !bytes.HasPrefix(data[e.ImageOffset:end], pngSignature) {
			return nil, fmt.Errorf("ico: entry %d is not png", i)
		}
		entries = append(entries, Entry{
			Width:  sideInt(e.Width),
			Height: sideInt(e.Height),
			Size:   e.BytesInRes,
			Offset: e.ImageOffset,
		})
	}
	return entries, nil
}

// FrameFromPNG reads the dimensions of a PNG payload.
func FrameFromPNG(data []byte) (Frame, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("ico: frame: %w", err)
	}
	return Frame{Width: cfg.Width, Height: cfg.Height, PNG: data}, nil
}

// 256 is stored as 0.
func sideByte(n int) uint8 {
	if n >= MaxSide {
		return 0
	}
	return uint8(n)
}

func sideInt(b uint8) int {
	if b == 0 {
		return MaxSide
	}
	return int(b)
}
