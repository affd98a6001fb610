package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/toolchest/favikit/internal/favicon"
	"github.com/toolchest/favikit/internal/packager"
)

// Batch runs the pipeline over many sources with bounded concurrency.
type Batch struct {
	runner Runner
	log    logrus.FieldLogger
}

// NewBatch creates a batch orchestrator around runner.
func NewBatch(runner Runner, log logrus.FieldLogger) *Batch {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Batch{runner: runner, log: log}
}

// tracker aggregates per-file progress into batch snapshots. Every update
// and callback happens under mu, so callbacks never overlap.
type tracker struct {
	mu       sync.Mutex
	id       string
	start    time.Time
	total    int
	finished int
	fraction []float64
	current  string
	last     favicon.Progress
	state    favicon.BatchState
	fn       favicon.BatchProgressFunc
}

func (t *tracker) update(idx int, name string, p favicon.Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fraction[idx] = p.Percent / 100
	t.current = name
	t.last = p
	t.emitLocked()
}

func (t *tracker) finish(idx int, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fraction[idx] = 1
	t.finished++
	t.current = name
	t.emitLocked()
}

func (t *tracker) setState(s favicon.BatchState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
	t.emitLocked()
}

func (t *tracker) emitLocked() {
	if t.fn == nil {
		return
	}
	var sum float64
	for _, f := range t.fraction {
		sum += f
	}
	snap := favicon.BatchProgress{
		BatchID:        t.id,
		State:          t.state,
		FilesCompleted: t.finished,
		TotalFiles:     t.total,
		CurrentFile:    t.current,
		Current:        t.last,
		Elapsed:        time.Since(t.start),
	}
	if t.total > 0 {
		snap.Percent = sum * 100 / float64(t.total)
	}
	if t.finished > 0 && t.finished < t.total {
		perFile := snap.Elapsed / time.Duration(t.finished)
		snap.ETA = perFile * time.Duration(t.total-t.finished)
	}
	t.fn(snap)
}

// Run processes sources and returns one result per source, in input order.
// A failing source never affects the others. When ctx is canceled no new
// source starts; sources already running finish and the rest are recorded
// as canceled.
func (b *Batch) Run(ctx context.Context, sources []Source, opts favicon.Options, progress favicon.BatchProgressFunc) *favicon.BatchResult {
	start := time.Now()
	out := &favicon.BatchResult{
		ID:      uuid.NewString(),
		State:   favicon.BatchPending,
		Results: make([]*favicon.Result, len(sources)),
	}
	log := b.log.WithFields(logrus.Fields{"batch_id": out.ID, "files": len(sources)})
	t := &tracker{
		id:       out.ID,
		start:    start,
		total:    len(sources),
		fraction: make([]float64, len(sources)),
		state:    favicon.BatchPending,
		fn:       progress,
	}

	if err := opts.Validate(); err != nil {
		for i, src := range sources {
			out.Results[i] = failed(src, err)
		}
		return b.settle(out, t, start, log)
	}

	t.setState(favicon.BatchRunning)
	out.State = favicon.BatchRunning
	log.WithField("max_concurrent", opts.Batch.MaxConcurrent).Info("batch started")

	// In-flight sources run to completion even if ctx is canceled.
	runCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(opts.Batch.MaxConcurrent)

	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			out.Results[i] = failed(src, fmt.Errorf("%w: %v", favicon.ErrCanceled, err))
			t.finish(i, src.Name)
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out.Results[i] = failed(src, fmt.Errorf("%w: %v", favicon.ErrCanceled, err))
				t.finish(i, src.Name)
				return nil
			}
			res := b.runner.Run(runCtx, src, opts, func(p favicon.Progress) {
				t.update(i, src.Name, p)
			})
			if res == nil {
				res = failed(src, fmt.Errorf("%w: runner returned no result", favicon.ErrServer))
			}
			out.Results[i] = res
			t.finish(i, src.Name)
			log.WithFields(logrus.Fields{"source": src.Name, "success": res.Success}).Debug("file finished")
			return nil
		})
	}
	// Workers never return errors; failures live on each result.
	_ = g.Wait()

	skipped := 0
	for _, r := range out.Results {
		if favicon.IsCanceled(r.Err()) {
			skipped++
		}
	}
	if skipped > 0 {
		out.Warnings = append(out.Warnings, fmt.Sprintf("canceled: %d of %d files not started", skipped, len(sources)))
	}

	out.Settle()
	if !opts.Batch.SeparateArchives && out.Succeeded > 0 {
		archive, err := packager.PackageBatch(out.Results)
		if err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("%s skipped: %v", favicon.ArchiveName, err))
		} else {
			out.Archive = archive
			// The combined archive now holds every payload.
			for _, r := range out.Results {
				r.Release()
			}
		}
	}
	return b.settle(out, t, start, log)
}

func (b *Batch) settle(out *favicon.BatchResult, t *tracker, start time.Time, log logrus.FieldLogger) *favicon.BatchResult {
	out.Settle()
	out.ProcessingTime = time.Since(start)
	t.setState(out.State)
	log.WithFields(logrus.Fields{
		"state":     out.State,
		"succeeded": out.Succeeded,
		"failed":    out.Failed,
		"elapsed":   out.ProcessingTime,
	}).Info("batch finished")
	return out
}

func failed(src Source, err error) *favicon.Result {
	r := &favicon.Result{
		ID:          uuid.NewString(),
		Source:      src.Name,
		Favicons:    []favicon.Generated{},
		ProcessedBy: favicon.ProcessedByClient,
	}
	r.Fail(err)
	return r
}
