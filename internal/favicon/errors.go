package favicon

import (
	"context"
	"errors"
)

// Input errors: the run fails before any processing and is never retried.
var (
	ErrUnsupportedFormat   = errors.New("unsupported format")
	ErrCorruptImage        = errors.New("corrupt image")
	ErrDimensionOutOfRange = errors.New("dimension out of range")
	ErrFileTooLarge        = errors.New("file too large")
	ErrInvalidOptions      = errors.New("invalid options")
)

// Per-stage degradable errors: recorded as warnings while at least one
// size succeeds. ErrNoSizesGenerated ends a run where none did; it is
// never retried.
var (
	ErrCanvasAllocationFailed = errors.New("canvas allocation failed")
	ErrEncodingFailed         = errors.New("encoding failed")
	ErrICOAssembly            = errors.New("ico assembly failed")
	ErrPackaging              = errors.New("packaging failed")
	ErrNoSizesGenerated       = errors.New("no sizes could be generated")
)

// Systemic errors: eligible for the server fallback.
var (
	ErrMemoryLimit = errors.New("projected memory exceeds limit")
	ErrDecodePanic = errors.New("decoder crashed")
	ErrServer      = errors.New("server processing failed")
	ErrCanceled    = errors.New("canceled")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrUnsupportedFormat, "unsupported_format"},
	{ErrCorruptImage, "corrupt_image"},
	{ErrDimensionOutOfRange, "dimension_out_of_range"},
	{ErrFileTooLarge, "file_too_large"},
	{ErrInvalidOptions, "invalid_options"},
	{ErrCanvasAllocationFailed, "canvas_allocation_failed"},
	{ErrEncodingFailed, "encoding_failed"},
	{ErrICOAssembly, "ico_assembly_failed"},
	{ErrPackaging, "packaging_failed"},
	{ErrMemoryLimit, "memory_limit"},
	{ErrDecodePanic, "decode_panic"},
	{ErrNoSizesGenerated, "no_sizes_generated"},
	{ErrServer, "server_error"},
	{ErrCanceled, "canceled"},
	{context.Canceled, "canceled"},
	{context.DeadlineExceeded, "canceled"},
}

// KindUnknown classifies errors outside the taxonomy.
const KindUnknown = "internal"

// KindOf returns the taxonomy kind of err.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

func sentinelFor(kind string) error {
	for _, k := range kinds {
		if k.kind == kind {
			return k.err
		}
	}
	return nil
}

// IsInputError reports whether err rejects the input itself.
func IsInputError(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrCorruptImage) ||
		errors.Is(err, ErrDimensionOutOfRange) ||
		errors.Is(err, ErrFileTooLarge) ||
		errors.Is(err, ErrInvalidOptions)
}

// IsCanceled reports whether err stems from cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ErrorInfo is the wire form of a terminal error. It unwraps to the
// sentinel of its kind so errors.Is keeps working after a JSON round trip.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// NewErrorInfo captures err; nil in, nil out.
func NewErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	return &ErrorInfo{Kind: KindOf(err), Message: err.Error()}
}

func (e *ErrorInfo) Error() string { return e.Message }

func (e *ErrorInfo) Unwrap() error { return sentinelFor(e.Kind) }
