package encoder

import (
	"github.com/AnyUserName/mediaproxy/internal/media"
	"github.com/AnyUserName/mediaproxy/internal/proxyerr"
	"github.com/AnyUserName/mediaproxy/internal/webp"
)

// WebPEncoder encodes still and animated WebP through libwebp.
type WebPEncoder struct {
	Codec *webp.Codec
	// Lossless switches every encode to VP8L; quality then trades speed for size.
	Lossless bool
}

func (e *WebPEncoder) Format() string      { return "webp" }
func (e *WebPEncoder) Extension() string   { return "webp" }
func (e *WebPEncoder) ContentType() string { return "image/webp" }

func (e *WebPEncoder) Available() bool {
	return e.codec().Available()
}

func (e *WebPEncoder) codec() *webp.Codec {
	if e.Codec == nil {
		return webp.New()
	}
	return e.Codec
}

// Encode writes a Raster or single-frame Sequence as a still WebP and a
// longer Sequence as an animation.
func (e *WebPEncoder) Encode(m media.Media, quality float32) ([]byte, error) {
	opts := webp.Options{Quality: quality, Lossless: e.Lossless}
	switch v := m.(type) {
	case media.Raster:
		return e.codec().Encode(v.Image, opts)
	case media.Sequence:
		switch len(v.Frames) {
		case 0:
			return nil, proxyerr.Newf(proxyerr.Codec, "webp", "empty frame sequence")
		case 1:
			return e.codec().Encode(v.Frames[0].Image, opts)
		}
		return e.codec().EncodeAnimation(v, opts)
	case media.Vector:
		return nil, proxyerr.Newf(proxyerr.Codec, "webp", "markup must be rasterized before encoding")
	default:
		return nil, proxyerr.Newf(proxyerr.Codec, "webp", "unknown media %T", m)
	}
}
