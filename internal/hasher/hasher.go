package hasher

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"github.com/cespare/xxhash/v2"

	"github.com/toolchest/favikit/internal/favicon"
)

// HexLen is the length of artifact hashes: 64 bits as 16 hex chars.
const HexLen = 16

// ContentHash returns the xxHash64 of data as 16 hex chars.
func ContentHash(data []byte) string {
	return encode(xxhash.Sum64(data))
}

// RequestKey identifies a (source bytes, options) pair for result caching.
// Only fields that change the generated artifacts take part.
func RequestKey(data []byte, opts favicon.Options) string {
	h := xxhash.New()
	h.Write(data)
	h.Write([]byte{0})
	relevant := struct {
		Background, Format, AppName, ShortName, ThemeColor string
		Padding, Quality                                   float64
		Sizes                                              []string
		Manifest, ICO                                      bool
		Compression                                        favicon.CompressionOptions
	}{
		opts.Background, opts.Format, opts.AppName, opts.ShortName, opts.ThemeColor,
		opts.Padding, opts.Quality,
		opts.Sizes,
		opts.GenerateManifest, opts.GenerateICO,
		opts.Compression,
	}
	// Marshaling a struct of plain fields cannot fail.
	enc, _ := json.Marshal(relevant)
	h.Write(enc)
	return encode(h.Sum64())
}

func encode(v uint64) string {
	return hex.EncodeToString(binary.BigEndian.AppendUint64(nil, v))
}
