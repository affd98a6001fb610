package favicon

import (
	"fmt"
	"image/color"
	"net/url"
	"strconv"
	"strings"

	"github.com/toolchest/favikit/internal/catalog"
)

// Output formats.
const (
	OutputPNG  = "png"
	OutputWebP = "webp"
	OutputJPEG = "jpeg"
)

// BackgroundTransparent leaves the canvas unfilled.
const BackgroundTransparent = "transparent"

// Default limits.
const (
	DefaultLargeFileThreshold = 5 * 1024 * 1024
	DefaultMaxFileSize        = 10 * 1024 * 1024
	DefaultExpansionFactor    = 3.0
	DefaultMaxConcurrent      = 2
	MaxPadding                = 50
)

// Options configures one generation run. Build it once and treat it as
// read-only for the lifetime of the run.
type Options struct {
	Background       string   `json:"background" mapstructure:"background"`
	Padding          float64  `json:"padding" mapstructure:"padding"` // percent
	Format           string   `json:"format" mapstructure:"format"`
	Quality          float64  `json:"quality" mapstructure:"quality"` // 0.1 - 1.0
	Sizes            []string `json:"sizes" mapstructure:"sizes"`
	GenerateManifest bool     `json:"generateManifest" mapstructure:"generate_manifest"`
	GenerateICO      bool     `json:"generateICO" mapstructure:"generate_ico"`
	AppName          string   `json:"appName,omitempty" mapstructure:"app_name"`
	ShortName        string   `json:"shortName,omitempty" mapstructure:"short_name"`
	ThemeColor       string   `json:"themeColor,omitempty" mapstructure:"theme_color"`

	Compression CompressionOptions `json:"compression" mapstructure:"compression"`
	Batch       BatchOptions       `json:"batch" mapstructure:"batch"`
	LargeFile   LargeFileOptions   `json:"largeFile" mapstructure:"large_file"`
}

// CompressionOptions tunes the encoders.
type CompressionOptions struct {
	PreserveTransparency bool   `json:"preserveTransparency" mapstructure:"preserve_transparency"`
	PNGLevel             string `json:"pngLevel" mapstructure:"png_level"` // default, best, fast, none
}

// BatchOptions tunes multi-file runs.
type BatchOptions struct {
	MaxConcurrent    int  `json:"maxConcurrent" mapstructure:"max_concurrent"`
	SeparateArchives bool `json:"separateArchives" mapstructure:"separate_archives"`
}

// LargeFileOptions holds the size and memory policy of the dispatcher.
type LargeFileOptions struct {
	Threshold        int64   `json:"threshold" mapstructure:"threshold"`
	MaxFileSize      int64   `json:"maxFileSize" mapstructure:"max_file_size"`
	MaxMemoryUsage   int64   `json:"maxMemoryUsage" mapstructure:"max_memory_usage"`
	ExpansionFactor  float64 `json:"expansionFactor" mapstructure:"expansion_factor"`
	FallbackToServer bool    `json:"fallbackToServer" mapstructure:"fallback_to_server"`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	keys, _ := catalog.Preset(catalog.DefaultPreset)
	return Options{
		Background:       BackgroundTransparent,
		Padding:          0,
		Format:           OutputPNG,
		Quality:          0.9,
		Sizes:            keys,
		GenerateManifest: true,
		GenerateICO:      true,
		AppName:          "My Website",
		ShortName:        "Website",
		ThemeColor:       "#ffffff",
		Compression: CompressionOptions{
			PreserveTransparency: true,
			PNGLevel:             "best",
		},
		Batch: BatchOptions{
			MaxConcurrent: DefaultMaxConcurrent,
		},
		LargeFile: LargeFileOptions{
			Threshold:        DefaultLargeFileThreshold,
			MaxFileSize:      DefaultMaxFileSize,
			ExpansionFactor:  DefaultExpansionFactor,
			FallbackToServer: false,
		},
	}
}

// Validate checks ranges and normalizes zero limits to their defaults.
func (o *Options) Validate() error {
	o.Format = strings.ToLower(strings.TrimSpace(o.Format))
	if o.Format == "jpg" {
		o.Format = OutputJPEG
	}
	switch o.Format {
	case OutputPNG, OutputWebP, OutputJPEG:
	case "":
		o.Format = OutputPNG
	default:
		return fmt.Errorf("%w: format %q", ErrInvalidOptions, o.Format)
	}
	if o.Quality < 0.1 || o.Quality > 1.0 {
		return fmt.Errorf("%w: quality %.2f outside 0.1-1.0", ErrInvalidOptions, o.Quality)
	}
	if o.Padding < 0 || o.Padding > MaxPadding {
		return fmt.Errorf("%w: padding %.1f%% outside 0-%d%%", ErrInvalidOptions, o.Padding, MaxPadding)
	}
	if _, _, err := ParseBackground(o.Background); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	if _, err := catalog.Resolve(o.Sizes); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	switch o.Compression.PNGLevel {
	case "", "default", "best", "fast", "none":
	default:
		return fmt.Errorf("%w: png level %q", ErrInvalidOptions, o.Compression.PNGLevel)
	}

	if o.Batch.MaxConcurrent <= 0 {
		o.Batch.MaxConcurrent = DefaultMaxConcurrent
	}
	if o.LargeFile.Threshold <= 0 {
		o.LargeFile.Threshold = DefaultLargeFileThreshold
	}
	if o.LargeFile.MaxFileSize <= 0 {
		o.LargeFile.MaxFileSize = DefaultMaxFileSize
	}
	if o.LargeFile.ExpansionFactor <= 0 {
		o.LargeFile.ExpansionFactor = DefaultExpansionFactor
	}
	if o.LargeFile.Threshold > o.LargeFile.MaxFileSize {
		return fmt.Errorf("%w: large-file threshold %d above max file size %d",
			ErrInvalidOptions, o.LargeFile.Threshold, o.LargeFile.MaxFileSize)
	}
	return nil
}

// ResolvedSizes returns the catalog sizes in request order.
func (o Options) ResolvedSizes() ([]catalog.Size, error) {
	return catalog.Resolve(o.Sizes)
}

// QualityPercent maps Quality onto the 1-100 scale encoders use.
func (o Options) QualityPercent() int {
	q := int(o.Quality*100 + 0.5)
	if q < 1 {
		q = 1
	}
	if q > 100 {
		q = 100
	}
	return q
}

// ParseBackground parses "transparent", "#RGB", "#RRGGBB" or "#RRGGBBAA".
func ParseBackground(s string) (c color.NRGBA, transparent bool, err error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == BackgroundTransparent {
		return color.NRGBA{}, true, nil
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 && len(hex) != 8 {
		return c, false, fmt.Errorf("invalid background color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return c, false, fmt.Errorf("invalid background color %q", s)
	}
	if len(hex) == 6 {
		v = v<<8 | 0xff
	}
	c = color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}
	return c, c.A == 0, nil
}

// Form field names used by the fallback endpoint.
const (
	fieldBackground   = "background"
	fieldPadding      = "padding"
	fieldFormat       = "format"
	fieldQuality      = "quality"
	fieldSizes        = "sizes"
	fieldManifest     = "generateManifest"
	fieldICO          = "generateICO"
	fieldAppName      = "appName"
	fieldShortName    = "shortName"
	fieldThemeColor   = "themeColor"
	fieldTransparency = "preserveTransparency"
	fieldPNGLevel     = "pngLevel"
)

// FormValues serializes the per-image options as multipart form fields.
// Batch and large-file policy stay on the caller's side.
func (o Options) FormValues() url.Values {
	v := url.Values{}
	v.Set(fieldBackground, o.Background)
	v.Set(fieldPadding, strconv.FormatFloat(o.Padding, 'f', -1, 64))
	v.Set(fieldFormat, o.Format)
	v.Set(fieldQuality, strconv.FormatFloat(o.Quality, 'f', -1, 64))
	v.Set(fieldSizes, strings.Join(o.Sizes, ","))
	v.Set(fieldManifest, strconv.FormatBool(o.GenerateManifest))
	v.Set(fieldICO, strconv.FormatBool(o.GenerateICO))
	v.Set(fieldAppName, o.AppName)
	v.Set(fieldShortName, o.ShortName)
	v.Set(fieldThemeColor, o.ThemeColor)
	v.Set(fieldTransparency, strconv.FormatBool(o.Compression.PreserveTransparency))
	v.Set(fieldPNGLevel, o.Compression.PNGLevel)
	return v
}

// OptionsFromForm overlays form fields onto base. Missing fields keep the
// base value.
func OptionsFromForm(base Options, v url.Values) (Options, error) {
	o := base
	o.Sizes = append([]string(nil), base.Sizes...)

	if s := v.Get(fieldBackground); s != "" {
		o.Background = s
	}
	if s := v.Get(fieldFormat); s != "" {
		o.Format = s
	}
	if s := v.Get(fieldAppName); s != "" {
		o.AppName = s
	}
	if s := v.Get(fieldShortName); s != "" {
		o.ShortName = s
	}
	if s := v.Get(fieldThemeColor); s != "" {
		o.ThemeColor = s
	}
	if s := v.Get(fieldPNGLevel); s != "" {
		o.Compression.PNGLevel = s
	}
	if s := v.Get(fieldSizes); s != "" {
		o.Sizes = strings.Split(s, ",")
	}

	floats := []struct {
		field string
		dst   *float64
	}{
		{fieldPadding, &o.Padding},
		{fieldQuality, &o.Quality},
	}
	for _, f := range floats {
		if s := v.Get(f.field); s != "" {
			n, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return o, fmt.Errorf("%w: %s=%q", ErrInvalidOptions, f.field, s)
			}
			*f.dst = n
		}
	}

	bools := []struct {
		field string
		dst   *bool
	}{
		{fieldManifest, &o.GenerateManifest},
		{fieldICO, &o.GenerateICO},
		{fieldTransparency, &o.Compression.PreserveTransparency},
	}
	for _, f := range bools {
		if s := v.Get(f.field); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return o, fmt.Errorf("%w: %s=%q", ErrInvalidOptions, f.field, s)
			}
			*f.dst = b
		}
	}
	return o, o.Validate()
}
