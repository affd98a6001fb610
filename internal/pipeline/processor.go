package pipeline

import (
	"context"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/toolchest/favikit/internal/catalog"
	"github.com/toolchest/favikit/internal/decoder"
	"github.com/toolchest/favikit/internal/encoder"
	"github.com/toolchest/favikit/internal/favicon"
	"github.com/toolchest/favikit/internal/hasher"
	"github.com/toolchest/favikit/internal/ico"
	"github.com/toolchest/favikit/internal/manifest"
	"github.com/toolchest/favikit/internal/packager"
	"github.com/toolchest/favikit/internal/raster"
)

// MIMEICO is the content type of .ico artifacts.
const MIMEICO = "image/x-icon"

// Runner runs the single-image pipeline for one source. Both the local
// Generator and the server-backed dispatcher implement it.
type Runner interface {
	Run(ctx context.Context, src Source, opts favicon.Options, progress favicon.ProgressFunc) *favicon.Result
}

// RegistryFunc builds the encoders for a PNG compression level.
type RegistryFunc func(pngLevel string) (*encoder.Registry, error)

// Generator is the in-process pipeline: decode, then rasterize and encode
// each size, then synthesize favicon.ico and manifest.json and package.
type Generator struct {
	log         logrus.FieldLogger
	newRegistry RegistryFunc
	processedBy string
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) GeneratorOption {
	return func(g *Generator) { g.log = log }
}

// WithRegistry overrides encoder construction.
func WithRegistry(fn RegistryFunc) GeneratorOption {
	return func(g *Generator) { g.newRegistry = fn }
}

// WithProcessedBy sets the ProcessedBy marker stamped on results.
func WithProcessedBy(who string) GeneratorOption {
	return func(g *Generator) { g.processedBy = who }
}

// NewGenerator creates a generator.
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{
		newRegistry: encoder.NewRegistry,
		processedBy: favicon.ProcessedByClient,
	}
	for _, o := range opts {
		o(g)
	}
	if g.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		g.log = l
	}
	return g
}

// run carries the state of one Generate call.
type run struct {
	opts     favicon.Options
	params   raster.Params
	enc      encoder.Encoder
	png      encoder.Encoder
	sizes    []catalog.Size
	progress favicon.ProgressFunc
	total    int
	done     int
	log      logrus.FieldLogger
}

func (r *run) emit(step favicon.Step, sizeKey string) {
	if r.progress != nil {
		r.progress(favicon.NewProgress(step, sizeKey, r.done, r.total))
	}
}

// Run generates favicons for src. Failures are reported on the result,
// never as a panic. ctx is checked between sizes.
func (g *Generator) Run(ctx context.Context, src Source, opts favicon.Options, progress favicon.ProgressFunc) *favicon.Result {
	start := time.Now()
	res := &favicon.Result{
		ID:          uuid.NewString(),
		Source:      src.Name,
		ProcessedBy: g.processedBy,
		Favicons:    []favicon.Generated{},
	}
	log := g.log.WithFields(logrus.Fields{"run_id": res.ID, "source": src.Name})
	defer func() {
		res.ProcessingTime = time.Since(start)
		if res.Success {
			log.WithFields(logrus.Fields{
				"favicons": len(res.Favicons),
				"warnings": len(res.Warnings),
				"elapsed":  res.ProcessingTime,
			}).Info("favicons generated")
		} else {
			log.WithError(res.Err()).Warn("generation failed")
		}
	}()

	if err := g.generate(ctx, src, opts, progress, res, log); err != nil {
		res.Fail(err)
	}
	return res
}

func (g *Generator) generate(ctx context.Context, src Source, opts favicon.Options, progress favicon.ProgressFunc, res *favicon.Result, log logrus.FieldLogger) error {
	r := &run{opts: opts, progress: progress, log: log}

	r.emit(favicon.StepValidating, "")
	if err := r.opts.Validate(); err != nil {
		return err
	}
	sizes, err := r.opts.ResolvedSizes()
	if err != nil {
		return fmt.Errorf("%w: %v", favicon.ErrInvalidOptions, err)
	}
	r.sizes = sizes
	// rasterize + encode per size, then synthesize and package.
	r.total = 2*len(sizes) + 2

	if src.Size > r.opts.LargeFile.MaxFileSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", favicon.ErrFileTooLarge, src.Size, r.opts.LargeFile.MaxFileSize)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", favicon.ErrCanceled, err)
	}

	data, err := src.Load()
	if err != nil {
		return err
	}
	if int64(len(data)) > r.opts.LargeFile.MaxFileSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", favicon.ErrFileTooLarge, len(data), r.opts.LargeFile.MaxFileSize)
	}

	r.emit(favicon.StepDecoding, "")
	limits := decoder.DefaultLimits()
	limits.LargeFileThreshold = r.opts.LargeFile.Threshold
	dec, err := decoder.Decode(data, src.MIME, limits)
	if err != nil {
		return fmt.Errorf("decode %s: %w", src.Name, err)
	}
	defer dec.Release()
	if dec.Large {
		res.Warn("source is %d bytes, above the %d byte large-file threshold; processing may be slow", dec.Size, r.opts.LargeFile.Threshold)
	}
	log.WithFields(logrus.Fields{"mime": dec.MIME, "width": dec.Width, "height": dec.Height}).Debug("decoded source")

	if r.params, err = raster.ParamsFromOptions(r.opts); err != nil {
		return fmt.Errorf("%w: %v", favicon.ErrInvalidOptions, err)
	}
	reg, err := g.newRegistry(r.opts.Compression.PNGLevel)
	if err != nil {
		return fmt.Errorf("%w: %v", favicon.ErrInvalidOptions, err)
	}
	enc, fellBack, err := reg.Resolve(r.opts.Format)
	if err != nil {
		return fmt.Errorf("%w: %v", favicon.ErrEncodingFailed, err)
	}
	if fellBack {
		res.Warn("%s encoder unavailable, fell back to png", r.opts.Format)
	}
	r.enc = enc
	r.png = reg.Get(favicon.OutputPNG)

	for _, size := range r.sizes {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: stopped before %s: %v", favicon.ErrCanceled, size.Key, err)
		}
		gen, err := r.renderSize(dec.Image, size)
		if err != nil {
			res.Warn("%s skipped: %v", size.Key, err)
			log.WithField("size", size.Key).WithError(err).Warn("size failed")
			continue
		}
		res.Favicons = append(res.Favicons, gen)
		res.Compression = res.Compression.Add(gen.Stats)
	}
	if len(res.Favicons) == 0 {
		return fmt.Errorf("%w: all %d sizes failed", favicon.ErrNoSizesGenerated, len(r.sizes))
	}

	r.emit(favicon.StepSynthesizing, "")
	if r.opts.GenerateICO {
		data, err := buildICO(res.Favicons)
		if err != nil {
			res.Warn("%s skipped: %v", favicon.ICOName, err)
		} else {
			res.ICO = data
		}
	}
	if r.opts.GenerateManifest {
		data, err := manifest.Marshal(manifest.Build(res.Favicons, r.opts))
		if err != nil {
			res.Warn("%s skipped: %v", favicon.ManifestName, err)
		} else {
			res.Manifest = string(data)
		}
	}
	r.done++

	r.emit(favicon.StepPackaging, "")
	archive, err := packager.Package(res)
	if err != nil {
		res.Warn("%s skipped: %v", favicon.ArchiveName, err)
	} else {
		res.Archive = archive
	}
	r.done++

	res.Success = true
	r.emit(favicon.StepDone, "")
	return nil
}

// renderSize rasterizes and encodes one size. The canvas is dropped on
// return.
func (r *run) renderSize(src image.Image, size catalog.Size) (favicon.Generated, error) {
	r.emit(favicon.StepRasterizing, size.Key)
	canvas, err := raster.Rasterize(src, size, r.params)
	r.done++
	if err != nil {
		r.done++
		return favicon.Generated{}, err
	}

	r.emit(favicon.StepEncoding, size.Key)
	encStart := time.Now()
	gen, err := r.encodeSize(canvas, size)
	elapsed := time.Since(encStart)
	r.done++
	if err != nil {
		return favicon.Generated{}, err
	}
	gen.Hash = hasher.ContentHash(gen.Data)
	gen.Stats = favicon.NewCompressionStats(raster.RawSize(canvas), int64(len(gen.Data)))
	gen.Stats.EncodeTime = elapsed
	return gen, nil
}

func (r *run) encodeSize(canvas *image.NRGBA, size catalog.Size) (favicon.Generated, error) {
	gen := favicon.Generated{Size: size}
	preserve := r.opts.Compression.PreserveTransparency

	if size.Format == catalog.FormatICO {
		// ICO sizes always go through a PNG frame.
		frame, err := r.pngFrame(canvas, preserve)
		if err != nil {
			return gen, err
		}
		data, err := ico.Build([]ico.Frame{{Width: size.Width, Height: size.Height, PNG: frame}})
		if err != nil {
			return gen, fmt.Errorf("%w: %v", favicon.ErrICOAssembly, err)
		}
		gen.Filename = size.Name + ".ico"
		gen.MIME = MIMEICO
		gen.Data = data
		gen.Frame = frame
		return gen, nil
	}

	img := encoder.Prepare(canvas, r.enc.Format(), r.params.Background, r.params.Transparent, preserve)
	data, err := r.enc.Encode(img, r.opts.QualityPercent())
	if err != nil {
		return gen, fmt.Errorf("%w: %s: %v", favicon.ErrEncodingFailed, r.enc.Format(), err)
	}
	gen.Filename = size.Name + "." + r.enc.Extension()
	gen.MIME = r.enc.MIME()
	gen.Data = data

	if r.opts.GenerateICO && catalog.ICOEligible(size) {
		if r.enc.Format() == favicon.OutputPNG {
			gen.Frame = data
		} else if frame, err := r.pngFrame(canvas, preserve); err == nil {
			gen.Frame = frame
		} else {
			r.log.WithField("size", size.Key).WithError(err).Debug("no ico frame")
		}
	}
	return gen, nil
}

func (r *run) pngFrame(canvas *image.NRGBA, preserve bool) ([]byte, error) {
	if r.png == nil {
		return nil, fmt.Errorf("%w: png encoder unavailable", favicon.ErrEncodingFailed)
	}
	img := encoder.Prepare(canvas, favicon.OutputPNG, r.params.Background, r.params.Transparent, preserve)
	data, err := r.png.Encode(img, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: png frame: %v", favicon.ErrEncodingFailed, err)
	}
	return data, nil
}

// buildICO packs one frame per eligible width.
func buildICO(favs []favicon.Generated) ([]byte, error) {
	var frames []ico.Frame
	seen := make(map[int]bool)
	for _, g := range favs {
		if g.Frame == nil || !catalog.ICOEligible(g.Size) || seen[g.Size.Width] {
			continue
		}
		frame, err := ico.FrameFromPNG(g.Frame)
		if err != nil || frame.Width != g.Size.Width || frame.Height != g.Size.Height {
			continue
		}
		seen[g.Size.Width] = true
		frames = append(frames, frame)
	}
	data, err := ico.Build(frames)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", favicon.ErrICOAssembly, err)
	}
	return data, nil
}
