// Package usage records anonymized generation statistics. A Data record
// carries buckets and counts only; file names, content and hashes never
// leave the run that produced them.
package usage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/toolchest/favikit/internal/favicon"
)

// File-size buckets.
const (
	SizeUnder100KB = "under_100kb"
	Size100KBTo1MB = "100kb_1mb"
	Size1To5MB     = "1mb_5mb"
	Size5To10MB    = "5mb_10mb"
	SizeOver10MB   = "over_10mb"
)

// Processing-time buckets.
const (
	TimeUnder1s = "under_1s"
	Time1To5s   = "1s_5s"
	Time5To15s  = "5s_15s"
	TimeOver15s = "over_15s"
)

var (
	sizeBuckets = []string{SizeUnder100KB, Size100KBTo1MB, Size1To5MB, Size5To10MB, SizeOver10MB}
	timeBuckets = []string{TimeUnder1s, Time1To5s, Time5To15s, TimeOver15s}
)

// ErrInvalidRecord is returned for records with unknown buckets or counts
// out of range.
var ErrInvalidRecord = errors.New("invalid usage record")

// Data is one anonymized run record.
type Data struct {
	FileSizeBucket       string `json:"fileSizeBucket"`
	BatchSize            int    `json:"batchSize"`
	SizesGenerated       int    `json:"sizesGenerated"`
	ProcessingTimeBucket string `json:"processingTimeBucket"`
	Success              bool   `json:"success"`
	ProcessedBy          string `json:"processedBy,omitempty"`
	Format               string `json:"format,omitempty"`
}

// SizeBucket maps a source byte count to its bucket.
func SizeBucket(n int64) string {
	switch {
	case n < 100<<10:
		return SizeUnder100KB
	case n < 1<<20:
		return Size100KBTo1MB
	case n < 5<<20:
		return Size1To5MB
	case n <= 10<<20:
		return Size5To10MB
	default:
		return SizeOver10MB
	}
}

// TimeBucket maps a processing duration to its bucket.
func TimeBucket(d time.Duration) string {
	switch {
	case d < time.Second:
		return TimeUnder1s
	case d < 5*time.Second:
		return Time1To5s
	case d < 15*time.Second:
		return Time5To15s
	default:
		return TimeOver15s
	}
}

// FromResult derives the record for one finished run.
func FromResult(res *favicon.Result, sourceSize int64, batchSize int, format string) Data {
	return Data{
		FileSizeBucket:       SizeBucket(sourceSize),
		BatchSize:            max(batchSize, 1),
		SizesGenerated:       len(res.Favicons),
		ProcessingTimeBucket: TimeBucket(res.ProcessingTime),
		Success:              res.Success,
		ProcessedBy:          res.ProcessedBy,
		Format:               format,
	}
}

// Validate rejects records that could not have come from FromResult.
func (d Data) Validate() error {
	if !contains(sizeBuckets, d.FileSizeBucket) {
		return fmt.Errorf("%w: file size bucket %q", ErrInvalidRecord, d.FileSizeBucket)
	}
	if !contains(timeBuckets, d.ProcessingTimeBucket) {
		return fmt.Errorf("%w: processing time bucket %q", ErrInvalidRecord, d.ProcessingTimeBucket)
	}
	if d.BatchSize < 1 {
		return fmt.Errorf("%w: batch size %d", ErrInvalidRecord, d.BatchSize)
	}
	if d.SizesGenerated < 0 {
		return fmt.Errorf("%w: sizes generated %d", ErrInvalidRecord, d.SizesGenerated)
	}
	switch d.ProcessedBy {
	case "", favicon.ProcessedByClient, favicon.ProcessedByServer:
	default:
		return fmt.Errorf("%w: processed by %q", ErrInvalidRecord, d.ProcessedBy)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Summary aggregates every recorded run.
type Summary struct {
	Total          int            `json:"total"`
	Succeeded      int            `json:"succeeded"`
	Failed         int            `json:"failed"`
	SizesGenerated int            `json:"sizesGenerated"`
	LargestBatch   int            `json:"largestBatch"`
	BySizeBucket   map[string]int `json:"bySizeBucket"`
	ByTimeBucket   map[string]int `json:"byTimeBucket"`
	ByProcessedBy  map[string]int `json:"byProcessedBy"`
}

// Store keeps an in-memory aggregate. Individual records are not retained.
type Store struct {
	mu  sync.Mutex
	sum Summary
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{sum: emptySummary()}
}

func emptySummary() Summary {
	return Summary{
		BySizeBucket:  map[string]int{},
		ByTimeBucket:  map[string]int{},
		ByProcessedBy: map[string]int{},
	}
}

// Record validates d and folds it into the aggregate.
func (s *Store) Record(d Data) error {
	if err := d.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sum.Total++
	if d.Success {
		s.sum.Succeeded++
	} else {
		s.sum.Failed++
	}
	s.sum.SizesGenerated += d.SizesGenerated
	s.sum.LargestBatch = max(s.sum.LargestBatch, d.BatchSize)
	s.sum.BySizeBucket[d.FileSizeBucket]++
	s.sum.ByTimeBucket[d.ProcessingTimeBucket]++
	if d.ProcessedBy != "" {
		s.sum.ByProcessedBy[d.ProcessedBy]++
	}
	return nil
}

// Summary returns a copy of the aggregate.
func (s *Store) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.sum
	out.BySizeBucket = copyCounts(s.sum.BySizeBucket)
	out.ByTimeBucket = copyCounts(s.sum.ByTimeBucket)
	out.ByProcessedBy = copyCounts(s.sum.ByProcessedBy)
	return out
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
