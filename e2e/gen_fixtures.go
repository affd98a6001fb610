//go:build ignore

// gen_fixtures creates source images for the E2E smoke test.
// Usage: go run gen_fixtures.go <output_dir>
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/toolchest/favikit/internal/fixtures"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: gen_fixtures <output_dir>")
		os.Exit(1)
	}
	dir := os.Args[1]
	os.MkdirAll(filepath.Join(dir, "brand"), 0o755)

	logo := must(fixtures.PNG(fixtures.Logo(512)))
	write(filepath.Join(dir, "logo.png"), logo)

	// Same logo as vector and as an opaque JPEG.
	write(filepath.Join(dir, "brand", "mark.svg"), fixtures.SVG(256, 256, "#d93a1e"))
	write(filepath.Join(dir, "brand", "banner.jpg"), must(fixtures.JPEG(fixtures.Gradient(400, 225))))

	// 6 MB: above the large-file threshold, below the hard limit.
	write(filepath.Join(dir, "big.png"), must(fixtures.PadPNG(logo, 6*1024*1024)))

	// Not an image; must be rejected as unsupported.
	write(filepath.Join(dir, "notes.txt"), fixtures.Text)

	fmt.Fprintf(os.Stderr, "[gen_fixtures] created 5 fixtures in %s\n", dir)
}

func must(data []byte, err error) []byte {
	if err != nil {
		panic(err)
	}
	return data
}

func write(path string, data []byte) {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		panic(err)
	}
}
