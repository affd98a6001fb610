package manifest

// WebManifest is the manifest.json shipped alongside the icons.
type WebManifest struct {
	Name            string `json:"name"`
	ShortName       string `json:"short_name"`
	Icons           []Icon `json:"icons"`
	ThemeColor      string `json:"theme_color"`
	BackgroundColor string `json:"background_color"`
	Display         string `json:"display"`
	StartURL        string `json:"start_url"`
}

// Icon is one entry of the icons array.
type Icon struct {
	Src     string `json:"src"`
	Sizes   string `json:"sizes"` // "WxH"
	Type    string `json:"type"`  // MIME type
	Purpose string `json:"purpose,omitempty"`
}

// Manifest defaults.
const (
	DefaultDisplay    = "standalone"
	DefaultStartURL   = "/"
	DefaultBackground = "#ffffff"
)
