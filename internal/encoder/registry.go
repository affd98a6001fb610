package encoder

import (
	"fmt"
	"strings"
)

// Registry holds the encoders for one run configuration.
type Registry struct {
	encoders map[string]Encoder
}

// NewRegistry builds a registry with the given PNG compression level name.
// Unavailable encoders are skipped.
func NewRegistry(pngLevel string) (*Registry, error) {
	level, err := ParsePNGLevel(pngLevel)
	if err != nil {
		return nil, err
	}
	return NewRegistryWith(&PNGEncoder{Level: level}, &JPEGEncoder{}, &WebPEncoder{}), nil
}

// NewRegistryWith registers the given encoders.
func NewRegistryWith(all ...Encoder) *Registry {
	r := &Registry{encoders: make(map[string]Encoder, len(all))}
	for _, enc := range all {
		if enc.Available() {
			r.encoders[enc.Format()] = enc
		}
	}
	return r
}

// Get returns an encoder for the given format, or nil if unavailable.
func (r *Registry) Get(format string) Encoder {
	return r.encoders[strings.ToLower(format)]
}

// Resolve returns the encoder for format, falling back to PNG when it is
// not available. fellBack reports the substitution.
func (r *Registry) Resolve(format string) (enc Encoder, fellBack bool, err error) {
	if enc := r.Get(format); enc != nil {
		return enc, false, nil
	}
	if enc := r.Get("png"); enc != nil {
		return enc, true, nil
	}
	return nil, false, fmt.Errorf("no encoder for %q and no png fallback", format)
}

// Available returns all available format names.
func (r *Registry) Available() []string {
	var result []string
	for _, f := range []string{"png", "webp", "jpeg"} {
		if _, ok := r.encoders[f]; ok {
			result = append(result, f)
		}
	}
	return result
}

// String returns a summary of available encoders.
func (r *Registry) String() string {
	avail := r.Available()
	if len(avail) == 0 {
		return "no encoders available"
	}
	return fmt.Sprintf("encoders: %s", strings.Join(avail, ", "))
}
