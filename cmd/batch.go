package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/toolchest/favikit/internal/favicon"
	"github.com/toolchest/favikit/internal/packager"
	"github.com/toolchest/favikit/internal/pipeline"
)

var (
	batchConcurrency int
	batchSeparate    bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <file_or_dir>...",
	Short: "Generate favicon sets for many source images",
	Long: `Scans the given files and directories for images (png, jpg, jpeg,
webp, gif, bmp, svg) and generates a favicon set for each, running up to
--concurrency files at once. One file failing does not stop the others.

By default a single favicons.zip holds one directory per source; with
--separate each source gets its own <name>-favicons.zip.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	addOptionFlags(batchCmd)
	batchCmd.Flags().IntVarP(&batchConcurrency, "concurrency", "c", 0, "files processed at once (0 = config default)")
	batchCmd.Flags().BoolVar(&batchSeparate, "separate", false, "one archive per source instead of a combined one")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(c *cobra.Command, args []string) error {
	opts, err := resolveOptions(c)
	if err != nil {
		return err
	}
	if c.Flags().Changed("concurrency") {
		opts.Batch.MaxConcurrent = batchConcurrency
	}
	if batchSeparate {
		opts.Batch.SeparateArchives = true
	}

	sources, err := pipeline.ScanImages(args...)
	if err != nil {
		return fmt.Errorf("scan inputs: %w", err)
	}
	if len(sources) == 0 {
		return fmt.Errorf("no images found in %v", args)
	}
	absOutput, err := filepath.Abs(genOutDir)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}
	log.WithFields(logrus.Fields{"files": len(sources), "output": absOutput}).Info("starting batch")

	ctx, stop := signalContext()
	defer stop()

	b := pipeline.NewBatch(newDispatcher(c), log)
	out := b.Run(ctx, sources, opts, func(p favicon.BatchProgress) {
		log.WithFields(logrus.Fields{
			"file":  p.CurrentFile,
			"done":  fmt.Sprintf("%d/%d", p.FilesCompleted, p.TotalFiles),
			"eta":   p.ETA.Round(time.Second).String(),
			"state": p.State,
		}).Debugf("%.0f%%", p.Percent)
	})
	for i, r := range out.Results {
		reportUsage(ctx, r, sources[i].Size, len(sources), opts.Format)
	}

	if err := writeBatch(absOutput, out); err != nil {
		return err
	}
	printBatchReport(c, out)

	if out.State == favicon.BatchFailed {
		return fmt.Errorf("batch failed: all %d files failed", out.Failed)
	}
	return nil
}

func writeBatch(dir string, out *favicon.BatchResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if len(out.Archive) > 0 {
		path := filepath.Join(dir, favicon.ArchiveName)
		if err := os.WriteFile(path, out.Archive, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", favicon.ArchiveName, err)
		}
		return nil
	}

	used := make(map[string]int)
	for _, r := range out.Results {
		if !r.Success || len(r.Archive) == 0 {
			continue
		}
		stem := packager.UniqueName(packager.Stem(r.Source), used)
		path := filepath.Join(dir, stem+"-"+favicon.ArchiveName)
		if err := os.WriteFile(path, r.Archive, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}
