package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/toolchest/favikit/internal/favicon"
)

func printBanner(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════════════════╗")
	fmt.Fprintf(w, "║%-50s║\n", center(title, 50))
	fmt.Fprintln(w, "╚══════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
}

func center(s string, width int) string {
	pad := width - len([]rune(s))
	if pad <= 0 {
		return s
	}
	left := pad / 2
	return fmt.Sprintf("%*s%s", left, "", s)
}

func bytesOf(n int64) string {
	return humanize.IBytes(uint64(max(n, 0)))
}

func printGenerateReport(c *cobra.Command, res *favicon.Result, written []string) {
	w := c.OutOrStdout()
	printBanner(w, "favikit generate complete")

	fmt.Fprintf(w, "  Source:      %s\n", res.Source)
	fmt.Fprintf(w, "  Favicons:    %d\n", len(res.Favicons))
	fmt.Fprintf(w, "  Raw pixels:  %s\n", bytesOf(res.Compression.OriginalSize))
	fmt.Fprintf(w, "  Encoded:     %s\n", bytesOf(res.Compression.CompressedSize))
	if res.Compression.OriginalSize > 0 {
		fmt.Fprintf(w, "  Ratio:       %.1f%% of raw\n", res.Compression.Ratio*100)
	}
	fmt.Fprintf(w, "  Processed:   %s\n", res.ProcessedBy)
	fmt.Fprintf(w, "  Time:        %s\n", res.ProcessingTime.Round(time.Millisecond))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "  Sizes:")
	for _, g := range res.Favicons {
		fmt.Fprintf(w, "    %-32s %9s  %s\n", g.Filename, g.Size.Dimensions(), bytesOf(g.Stats.CompressedSize))
	}
	fmt.Fprintln(w)

	if len(written) > 0 {
		fmt.Fprintf(w, "  Wrote %d files to %s\n", len(written), genOutDir)
		fmt.Fprintln(w)
	}
	printWarnings(c, res.Warnings)
}

func printBatchReport(c *cobra.Command, out *favicon.BatchResult) {
	w := c.OutOrStdout()
	printBanner(w, "favikit batch complete")

	fmt.Fprintf(w, "  State:       %s\n", out.State)
	fmt.Fprintf(w, "  Files:       %d succeeded, %d failed\n", out.Succeeded, out.Failed)
	fmt.Fprintf(w, "  Time:        %s\n", out.ProcessingTime.Round(time.Millisecond))
	fmt.Fprintln(w)

	for _, r := range out.Results {
		if r.Success {
			fmt.Fprintf(w, "    ✓ %-40s %2d icons  %s\n", truncName(r.Source, 40), len(r.Favicons), bytesOf(r.Compression.CompressedSize))
			continue
		}
		fmt.Fprintf(w, "    ✗ %-40s %s\n", truncName(r.Source, 40), r.Err())
	}
	fmt.Fprintln(w)
	printWarnings(c, out.Warnings)
}

func printWarnings(c *cobra.Command, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	w := c.OutOrStdout()
	fmt.Fprintf(w, "  Warnings (%d):\n", len(warnings))
	for _, msg := range warnings {
		fmt.Fprintf(w, "    ⚠ %s\n", msg)
	}
	fmt.Fprintln(w)
}

func truncName(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n+3:]
}
