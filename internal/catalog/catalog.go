package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Format is the container a catalog size is delivered in.
type Format string

const (
	FormatPNG Format = "png"
	FormatICO Format = "ico"
)

// Size is one named favicon target. Sizes are immutable values taken from
// the fixed catalog below.
type Size struct {
	Key     string `json:"key"`
	Name    string `json:"name"` // file stem, e.g. "favicon-32x32"
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Format  Format `json:"format"`
	Purpose string `json:"purpose,omitempty"` // web manifest purpose
}

// Dimensions returns the "WxH" form used by web manifests.
func (s Size) Dimensions() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Built-in sizes.
var sizes = map[string]Size{
	"ico16":         {Key: "ico16", Name: "favicon-16x16", Width: 16, Height: 16, Format: FormatICO},
	"ico32":         {Key: "ico32", Name: "favicon-32x32", Width: 32, Height: 32, Format: FormatICO},
	"ico48":         {Key: "ico48", Name: "favicon-48x48", Width: 48, Height: 48, Format: FormatICO},
	"png16":         {Key: "png16", Name: "favicon-16x16", Width: 16, Height: 16, Format: FormatPNG},
	"png32":         {Key: "png32", Name: "favicon-32x32", Width: 32, Height: 32, Format: FormatPNG},
	"png48":         {Key: "png48", Name: "favicon-48x48", Width: 48, Height: 48, Format: FormatPNG},
	"png96":         {Key: "png96", Name: "favicon-96x96", Width: 96, Height: 96, Format: FormatPNG},
	"appleTouch180": {Key: "appleTouch180", Name: "apple-touch-icon", Width: 180, Height: 180, Format: FormatPNG},
	"mstile150":     {Key: "mstile150", Name: "mstile-150x150", Width: 150, Height: 150, Format: FormatPNG},
	"android192":    {Key: "android192", Name: "android-chrome-192x192", Width: 192, Height: 192, Format: FormatPNG},
	"android512":    {Key: "android512", Name: "android-chrome-512x512", Width: 512, Height: 512, Format: FormatPNG},
	"maskable512":   {Key: "maskable512", Name: "maskable-icon-512x512", Width: 512, Height: 512, Format: FormatPNG, Purpose: "maskable"},
}

// Presets are named size selections.
var presets = map[string][]string{
	"minimal":  {"png16", "png32", "appleTouch180"},
	"standard": {"ico16", "ico32", "ico48", "png16", "png32", "appleTouch180", "android192", "android512"},
	"complete": {
		"ico16", "ico32", "ico48",
		"png16", "png32", "png48", "png96",
		"appleTouch180", "mstile150",
		"android192", "android512", "maskable512",
	},
}

// DefaultPreset is used when neither sizes nor a preset are given.
const DefaultPreset = "standard"

// ICOWidths lists the frame widths a multi-resolution favicon.ico carries.
var ICOWidths = []int{16, 32, 48}

// Lookup returns the size registered under key.
func Lookup(key string) (Size, bool) {
	s, ok := sizes[key]
	return s, ok
}

// Resolve maps keys to catalog sizes, keeping the caller's order.
func Resolve(keys []string) ([]Size, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("no sizes requested")
	}
	seen := make(map[string]bool, len(keys))
	out := make([]Size, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		s, ok := sizes[k]
		if !ok {
			return nil, fmt.Errorf("unknown size %q", k)
		}
		if seen[k] {
			return nil, fmt.Errorf("duplicate size %q", k)
		}
		seen[k] = true
		out = append(out, s)
	}
	return out, nil
}

// Preset returns the keys of a named preset.
func Preset(name string) ([]string, bool) {
	keys, ok := presets[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), keys...), true
}

// PresetNames lists preset names alphabetically.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// All returns every catalog size ordered by width, then key.
func All() []Size {
	out := make([]Size, 0, len(sizes))
	for _, s := range sizes {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Width != out[j].Width {
			return out[i].Width < out[j].Width
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// ICOEligible reports whether s can be a frame of the combined favicon.ico.
func ICOEligible(s Size) bool {
	if s.Width != s.Height {
		return false
	}
	for _, w := range ICOWidths {
		if s.Width == w {
			return true
		}
	}
	return false
}
