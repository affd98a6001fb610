package favicon

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/toolchest/favikit/internal/catalog"
)

// Who ran the pipeline.
const (
	ProcessedByClient = "client"
	ProcessedByServer = "server"
)

// Artifact names.
const (
	ArchiveName  = "favicons.zip"
	ManifestName = "manifest.json"
	ICOName      = "favicon.ico"
)

// CompressionStats compares an encoded payload with its raw pixel buffer.
// OriginalSize is the raw RGBA byte count (w*h*4) floored at the encoded
// size, so BytesSaved never goes negative. EncodeTime covers the encoder
// call alone.
type CompressionStats struct {
	OriginalSize   int64         `json:"originalSize"`
	CompressedSize int64         `json:"compressedSize"`
	BytesSaved     int64         `json:"bytesSaved"`
	Ratio          float64       `json:"ratio"`
	EncodeTime     time.Duration `json:"encodeTime"`
}

// NewCompressionStats builds stats for one payload.
func NewCompressionStats(raw, encoded int64) CompressionStats {
	if raw < encoded {
		raw = encoded
	}
	return statsOf(raw, encoded)
}

func statsOf(original, compressed int64) CompressionStats {
	s := CompressionStats{
		OriginalSize:   original,
		CompressedSize: compressed,
		BytesSaved:     original - compressed,
	}
	if original > 0 {
		s.Ratio = float64(compressed) / float64(original)
	}
	return s
}

// Add returns the sum of s and other.
func (s CompressionStats) Add(other CompressionStats) CompressionStats {
	sum := statsOf(s.OriginalSize+other.OriginalSize, s.CompressedSize+other.CompressedSize)
	sum.EncodeTime = s.EncodeTime + other.EncodeTime
	return sum
}

// Generated is one produced artifact.
type Generated struct {
	Size     catalog.Size     `json:"size"`
	Filename string           `json:"filename"`
	MIME     string           `json:"mime"`
	Data     []byte           `json:"data,omitempty"`
	Hash     string           `json:"hash"`
	Stats    CompressionStats `json:"stats"`

	// Frame holds PNG bytes of this size when available, for ICO assembly.
	Frame []byte `json:"-"`
}

// DataURL renders the payload as a data: URL preview.
func (g Generated) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", g.MIME, base64.StdEncoding.EncodeToString(g.Data))
}

// Result is the outcome of one source image run.
type Result struct {
	ID             string           `json:"id"`
	Source         string           `json:"source"`
	Success        bool             `json:"success"`
	Error          *ErrorInfo       `json:"error,omitempty"`
	Warnings       []string         `json:"warnings,omitempty"`
	Favicons       []Generated      `json:"favicons"`
	Manifest       string           `json:"manifest,omitempty"`
	ICO            []byte           `json:"ico,omitempty"`
	Archive        []byte           `json:"archive,omitempty"`
	ProcessingTime time.Duration    `json:"processingTime"`
	Compression    CompressionStats `json:"compression"`
	ProcessedBy    string           `json:"processedBy"`
}

// Warn appends a warning.
func (r *Result) Warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Fail marks the run as failed with err. A failed run carries no
// artifacts, even the sizes finished before the failure.
func (r *Result) Fail(err error) {
	r.Success = false
	r.Error = NewErrorInfo(err)
	r.Favicons = []Generated{}
	r.Manifest = ""
	r.ICO = nil
	r.Archive = nil
	r.Compression = CompressionStats{}
}

// Err returns the terminal error, if any.
func (r *Result) Err() error {
	if r == nil || r.Error == nil {
		return nil
	}
	return r.Error
}

// Release drops every payload so the run's buffers can be collected.
func (r *Result) Release() {
	for i := range r.Favicons {
		r.Favicons[i].Data = nil
		r.Favicons[i].Frame = nil
	}
	r.ICO = nil
	r.Archive = nil
}

// BatchState is the lifecycle of a batch run.
type BatchState string

const (
	BatchPending         BatchState = "pending"
	BatchRunning         BatchState = "running"
	BatchCompleted       BatchState = "completed"
	BatchPartiallyFailed BatchState = "partially_failed"
	BatchFailed          BatchState = "failed"
)

// BatchResult wraps one Result per source file, in input order.
type BatchResult struct {
	ID             string        `json:"id"`
	State          BatchState    `json:"state"`
	Results        []*Result     `json:"results"`
	Archive        []byte        `json:"archive,omitempty"`
	Warnings       []string      `json:"warnings,omitempty"`
	ProcessingTime time.Duration `json:"processingTime"`
	Succeeded      int           `json:"succeeded"`
	Failed         int           `json:"failed"`
}

// Settle counts outcomes and derives the terminal state.
func (b *BatchResult) Settle() {
	b.Succeeded, b.Failed = 0, 0
	for _, r := range b.Results {
		if r != nil && r.Success {
			b.Succeeded++
		} else {
			b.Failed++
		}
	}
	switch {
	case b.Failed == 0:
		b.State = BatchCompleted
	case b.Succeeded == 0:
		b.State = BatchFailed
	default:
		b.State = BatchPartiallyFailed
	}
}
