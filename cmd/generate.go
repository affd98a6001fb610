package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/toolchest/favikit/internal/catalog"
	"github.com/toolchest/favikit/internal/dispatch"
	"github.com/toolchest/favikit/internal/encoder"
	"github.com/toolchest/favikit/internal/favicon"
	"github.com/toolchest/favikit/internal/pipeline"
	"github.com/toolchest/favikit/internal/usage"
)

var (
	genOutDir     string
	genSizes      []string
	genPreset     string
	genFormat     string
	genQuality    float64
	genPadding    float64
	genBackground string
	genAppName    string
	genTheme      string
	genNoManifest bool
	genNoICO      bool
	genServer     string
	genFallback   bool
	genNoZip      bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <image>",
	Short: "Generate a favicon set from one source image",
	Long: `Decodes the source image, renders every requested size, assembles
favicon.ico and manifest.json, and writes them plus favicons.zip to the
output directory.

Sources above the large-file threshold are checked against the memory
ceiling; with --fallback and --server they are processed remotely instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	addOptionFlags(generateCmd)
	generateCmd.Flags().BoolVar(&genNoZip, "no-zip", false, "skip writing favicons.zip")
	rootCmd.AddCommand(generateCmd)
}

// addOptionFlags registers the flags shared by generate and batch.
func addOptionFlags(c *cobra.Command) {
	f := c.Flags()
	f.StringVarP(&genOutDir, "out", "o", "./favicons", "output directory")
	f.StringSliceVar(&genSizes, "sizes", nil, "size keys to generate (see `favikit sizes`)")
	f.StringVarP(&genPreset, "preset", "p", "", "size preset: "+strings.Join(catalog.PresetNames(), ", "))
	f.StringVarP(&genFormat, "format", "f", "", "output format: png, webp, jpeg")
	f.Float64Var(&genQuality, "quality", 0, "lossy quality 0.1-1.0")
	f.Float64Var(&genPadding, "padding", 0, "padding percent 0-50")
	f.StringVar(&genBackground, "background", "", `background color (#rrggbb) or "transparent"`)
	f.StringVar(&genAppName, "app-name", "", "manifest name")
	f.StringVar(&genTheme, "theme-color", "", "manifest theme color")
	f.BoolVar(&genNoManifest, "no-manifest", false, "skip manifest.json")
	f.BoolVar(&genNoICO, "no-ico", false, "skip favicon.ico")
	f.StringVar(&genServer, "server", "", "favikit server URL for fallback processing")
	f.BoolVar(&genFallback, "fallback", false, "fall back to the server for heavy or failing runs")
	c.MarkFlagsMutuallyExclusive("sizes", "preset")
}

// resolveOptions overlays changed flags onto the configured defaults.
func resolveOptions(c *cobra.Command) (favicon.Options, error) {
	o := cfg.Generate
	o.Sizes = append([]string(nil), cfg.Generate.Sizes...)
	f := c.Flags()

	if f.Changed("sizes") {
		o.Sizes = genSizes
	}
	if f.Changed("preset") {
		keys, ok := catalog.Preset(genPreset)
		if !ok {
			return o, fmt.Errorf("%w: unknown preset %q", favicon.ErrInvalidOptions, genPreset)
		}
		o.Sizes = keys
	}
	if f.Changed("format") {
		o.Format = genFormat
	}
	if f.Changed("quality") {
		o.Quality = genQuality
	}
	if f.Changed("padding") {
		o.Padding = genPadding
	}
	if f.Changed("background") {
		o.Background = genBackground
	}
	if f.Changed("app-name") {
		o.AppName = genAppName
		o.ShortName = ""
	}
	if f.Changed("theme-color") {
		o.ThemeColor = genTheme
	}
	if genNoManifest {
		o.GenerateManifest = false
	}
	if genNoICO {
		o.GenerateICO = false
	}
	if f.Changed("fallback") {
		o.LargeFile.FallbackToServer = genFallback
	}
	return o, o.Validate()
}

// newDispatcher builds the local generator and, when a server is known,
// the remote runner behind it.
func newDispatcher(c *cobra.Command) *dispatch.Dispatcher {
	local := pipeline.NewGenerator(pipeline.WithLogger(log))
	if reg, err := encoder.NewRegistry(cfg.Generate.Compression.PNGLevel); err == nil {
		log.Debug(reg.String())
	}

	serverURL := cfg.Remote.URL
	if c.Flags().Changed("server") {
		serverURL = genServer
	}
	var remote pipeline.Runner
	if serverURL != "" {
		remote = dispatch.NewRemote(serverURL, &http.Client{Timeout: cfg.Remote.Timeout})
		log.WithField("server", serverURL).Debug("remote processing available")
	}
	return dispatch.New(local, remote, dispatch.WithLogger(log))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runGenerate(c *cobra.Command, args []string) error {
	opts, err := resolveOptions(c)
	if err != nil {
		return err
	}
	src, err := pipeline.FromFile(args[0])
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	absOutput, err := filepath.Abs(genOutDir)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	log.WithFields(logrus.Fields{
		"source": src.Path,
		"size":   humanize.IBytes(uint64(src.Size)),
		"output": absOutput,
		"sizes":  strings.Join(opts.Sizes, ","),
	}).Debug("starting generate")

	ctx, stop := signalContext()
	defer stop()

	res := newDispatcher(c).Run(ctx, src, opts, func(p favicon.Progress) {
		log.WithFields(logrus.Fields{"step": p.Step, "size": p.SizeKey}).Debugf("%.0f%%", p.Percent)
	})
	reportUsage(ctx, res, src.Size, 1, opts.Format)

	if !res.Success {
		printWarnings(c, res.Warnings)
		return fmt.Errorf("generate %s: %w", src.Name, res.Err())
	}

	written, err := writeResult(absOutput, res, !genNoZip)
	res.Release()
	if err != nil {
		return err
	}
	printGenerateReport(c, res, written)
	return nil
}

// writeResult stores every artifact of res under dir and returns the
// written paths relative to dir.
func writeResult(dir string, res *favicon.Result, withArchive bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	files := make(map[string][]byte)
	var order []string
	add := func(name string, data []byte) {
		if len(data) == 0 {
			return
		}
		if _, dup := files[name]; !dup {
			order = append(order, name)
		}
		files[name] = data
	}
	for _, g := range res.Favicons {
		add(g.Filename, g.Data)
	}
	add(favicon.ManifestName, []byte(res.Manifest))
	add(favicon.ICOName, res.ICO)
	if withArchive {
		add(favicon.ArchiveName, res.Archive)
	}

	for _, name := range order {
		if err := os.WriteFile(filepath.Join(dir, name), files[name], 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
	}
	return order, nil
}

func reportUsage(ctx context.Context, res *favicon.Result, sourceSize int64, batchSize int, format string) {
	if !cfg.Usage.Enabled {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	rep := usage.NewReporter(cfg.UsageEndpoint(), nil, log)
	if err := rep.Report(rctx, usage.FromResult(res, sourceSize, batchSize, format)); err != nil {
		log.WithError(err).Warn("usage report failed")
	}
}
