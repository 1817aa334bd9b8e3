package encoder

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/AnyUserName/mediaproxy/internal/transform"
	"github.com/AnyUserName/mediaproxy/internal/webp"
)

// Registry holds the output encoders and picks one per preset.
type Registry struct {
	encoders map[string]Encoder
}

// NewRegistry creates a registry, probing all encoders for availability.
func NewRegistry(lossless bool) *Registry {
	r := &Registry{
		encoders: make(map[string]Encoder),
	}

	// Register all encoders. Only available ones will be used.
	all := []Encoder{
		&WebPEncoder{Codec: webp.New(), Lossless: lossless},
		&PNGEncoder{},
	}

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

// For returns the encoder for the output format of preset.
func (r *Registry) For(preset transform.Preset) (Encoder, error) {
	format := preset.Profile().Format
	enc := r.Get(format)
	if enc == nil {
		if format == "webp" {
			return nil, webp.ErrUnavailable
		}
		return nil, errors.Errorf("no %s encoder available", format)
	}
	return enc, nil
}

// Available returns all available format names.
func (r *Registry) Available() []string {
	var result []string
	for _, f := range []string{"webp", "png"} {
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
