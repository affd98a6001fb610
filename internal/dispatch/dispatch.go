// Package dispatch decides where a single-image run executes: in process,
// or on a favikit server when the source is too heavy or the local run
// breaks.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"github.com/toolchest/favikit/internal/favicon"
	"github.com/toolchest/favikit/internal/pipeline"
)

// Memory ceiling bounds used when MaxMemoryUsage is not configured.
const (
	MinMemoryCeiling      = 64 << 20
	MaxMemoryCeiling      = 512 << 20
	FallbackMemoryCeiling = 256 << 20
)

// Route is where a run executes.
type Route string

const (
	RouteLocal  Route = "local"
	RouteServer Route = "server"
)

// Decision is the pre-flight outcome for one source.
type Decision struct {
	Route     Route
	Large     bool
	Projected int64
	Ceiling   int64
}

// Dispatcher routes runs between a local and a remote runner.
type Dispatcher struct {
	local   pipeline.Runner
	remote  pipeline.Runner
	log     logrus.FieldLogger
	ceiling func() int64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// WithMemoryCeiling overrides the host-derived default ceiling.
func WithMemoryCeiling(fn func() int64) Option {
	return func(d *Dispatcher) { d.ceiling = fn }
}

// New creates a dispatcher. remote may be nil, which disables every
// server path.
func New(local, remote pipeline.Runner, opts ...Option) *Dispatcher {
	d := &Dispatcher{local: local, remote: remote, ceiling: DefaultMemoryCeiling}
	for _, o := range opts {
		o(d)
	}
	if d.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		d.log = l
	}
	return d
}

// DefaultMemoryCeiling is a quarter of the host's available memory,
// clamped to [MinMemoryCeiling, MaxMemoryCeiling].
func DefaultMemoryCeiling() int64 {
	vm, err := mem.VirtualMemory()
	if err != nil || vm.Available == 0 {
		return FallbackMemoryCeiling
	}
	c := int64(vm.Available / 4)
	return min(max(c, MinMemoryCeiling), MaxMemoryCeiling)
}

// Plan applies the size and memory policy before any work starts.
func (d *Dispatcher) Plan(src pipeline.Source, opts favicon.Options) (Decision, error) {
	if err := opts.Validate(); err != nil {
		return Decision{}, err
	}
	lf := opts.LargeFile
	if src.Size > lf.MaxFileSize {
		return Decision{}, fmt.Errorf("%w: %s is %s, limit %s", favicon.ErrFileTooLarge,
			src.Name, humanize.IBytes(uint64(src.Size)), humanize.IBytes(uint64(lf.MaxFileSize)))
	}

	dec := Decision{Route: RouteLocal}
	if src.Size <= lf.Threshold {
		return dec, nil
	}
	dec.Large = true
	dec.Projected = int64(float64(src.Size) * lf.ExpansionFactor * float64(len(opts.Sizes)))
	dec.Ceiling = lf.MaxMemoryUsage
	if dec.Ceiling <= 0 {
		dec.Ceiling = d.ceiling()
	}
	if dec.Projected <= dec.Ceiling {
		return dec, nil
	}
	if lf.FallbackToServer && d.remote != nil {
		dec.Route = RouteServer
		return dec, nil
	}
	return dec, fmt.Errorf("%w: projected %s, ceiling %s", favicon.ErrMemoryLimit,
		humanize.IBytes(uint64(dec.Projected)), humanize.IBytes(uint64(dec.Ceiling)))
}

// Run executes one source through the planned route. A local failure that
// is not an input error is retried once on the server when fallback is
// enabled; the retry's outcome is final.
func (d *Dispatcher) Run(ctx context.Context, src pipeline.Source, opts favicon.Options, progress favicon.ProgressFunc) *favicon.Result {
	log := d.log.WithField("source", src.Name)

	dec, err := d.Plan(src, opts)
	if err != nil {
		log.WithError(err).Warn("rejected before processing")
		return rejected(src, err)
	}

	if dec.Route == RouteServer {
		log.WithFields(logrus.Fields{"projected": dec.Projected, "ceiling": dec.Ceiling}).Info("routing to server")
		res := d.remote.Run(ctx, src, opts, progress)
		res.Warn("projected memory %s exceeds %s; processed on server",
			humanize.IBytes(uint64(dec.Projected)), humanize.IBytes(uint64(dec.Ceiling)))
		return res
	}

	res := d.local.Run(ctx, src, opts, progress)
	if res.Success || !d.retryable(res.Err(), opts) {
		return res
	}

	log.WithError(res.Err()).Warn("local run failed, retrying on server")
	kind := favicon.KindOf(res.Err())
	res.Release()
	retry := d.remote.Run(ctx, src, opts, progress)
	retry.Warn("local processing failed (%s); retried on server", kind)
	return retry
}

func (d *Dispatcher) retryable(err error, opts favicon.Options) bool {
	if err == nil || d.remote == nil || !opts.LargeFile.FallbackToServer {
		return false
	}
	switch {
	case favicon.IsInputError(err), favicon.IsCanceled(err):
		return false
	case errors.Is(err, favicon.ErrNoSizesGenerated):
		return false
	}
	return true
}

func rejected(src pipeline.Source, err error) *favicon.Result {
	r := &favicon.Result{
		ID:          uuid.NewString(),
		Source:      src.Name,
		Favicons:    []favicon.Generated{},
		ProcessedBy: favicon.ProcessedByClient,
	}
	r.Fail(err)
	return r
}
