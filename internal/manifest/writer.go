package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/toolchest/favikit/internal/catalog"
	"github.com/toolchest/favikit/internal/favicon"
)

// Build assembles the manifest for favicons, keeping their order.
// ICO-format artifacts are left out; browsers do not read them from
// manifests.
func Build(favicons []favicon.Generated, opts favicon.Options) *WebManifest {
	m := &WebManifest{
		Name:            opts.AppName,
		ShortName:       opts.ShortName,
		Icons:           make([]Icon, 0, len(favicons)),
		ThemeColor:      opts.ThemeColor,
		BackgroundColor: backgroundColor(opts.Background),
		Display:         DefaultDisplay,
		StartURL:        DefaultStartURL,
	}
	if m.ShortName == "" {
		m.ShortName = m.Name
	}
	if m.ThemeColor == "" {
		m.ThemeColor = DefaultBackground
	}
	for _, g := range favicons {
		if g.Size.Format == catalog.FormatICO {
			continue
		}
		m.Icons = append(m.Icons, Icon{
			Src:     "/" + g.Filename,
			Sizes:   g.Size.Dimensions(),
			Type:    g.MIME,
			Purpose: g.Size.Purpose,
		})
	}
	return m
}

// Marshal serializes the manifest with stable two-space indentation.
func Marshal(m *WebManifest) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Parse reads a manifest back.
func Parse(data []byte) (*WebManifest, error) {
	var m WebManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

func backgroundColor(bg string) string {
	c, transparent, err := favicon.ParseBackground(bg)
	if err != nil || transparent {
		return DefaultBackground
	}
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
