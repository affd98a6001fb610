package encoder

import (
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/disintegration/imaging"
)

// WebPEncoder encodes WebP by shelling out to cwebp, which keeps the build
// free of cgo. Install: brew install webp / apt install webp
type WebPEncoder struct {
	// Binary overrides the cwebp lookup. Empty means search PATH.
	Binary string

	once      sync.Once
	available bool
	path      string
}

func (e *WebPEncoder) Format() string    { return "webp" }
func (e *WebPEncoder) MIME() string      { return "image/webp" }
func (e *WebPEncoder) Extension() string { return "webp" }

func (e *WebPEncoder) Available() bool {
	e.once.Do(func() {
		name := e.Binary
		if name == "" {
			name = "cwebp"
		}
		if path, err := exec.LookPath(name); err == nil {
			e.available = true
			e.path = path
		}
	})
	return e.available
}

func (e *WebPEncoder) Encode(img image.Image, quality int) ([]byte, error) {
	if !e.Available() {
		return nil, fmt.Errorf("cwebp not found in PATH; install with: brew install webp")
	}
	if quality <= 0 || quality > 100 {
		quality = 90
	}

	dir, err := os.MkdirTemp("", "favikit-webp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	srcPath := filepath.Join(dir, "src.png")
	dstPath := filepath.Join(dir, "dst.webp")
	if err := imaging.Save(img, srcPath); err != nil {
		return nil, fmt.Errorf("write temp png: %w", err)
	}

	cmd := exec.Command(e.path,
		"-q", strconv.Itoa(quality),
		"-m", "6",
		"-alpha_q", "100",
		"-quiet",
		srcPath,
		"-o", dstPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("cwebp: %w: %s", err, string(out))
	}
	return os.ReadFile(dstPath)
}
