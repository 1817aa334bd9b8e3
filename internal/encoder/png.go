package encoder

import (
	"bytes"
	"image/png"

	"github.com/AnyUserName/mediaproxy/internal/media"
	"github.com/AnyUserName/mediaproxy/internal/proxyerr"
)

// PNGEncoder encodes still images to PNG using Go's standard library.
// Used for the badge preset; animations are reduced to their first frame.
type PNGEncoder struct{}

func (e *PNGEncoder) Format() string      { return "png" }
func (e *PNGEncoder) Extension() string   { return "png" }
func (e *PNGEncoder) ContentType() string { return "image/png" }
func (e *PNGEncoder) Available() bool     { return true }

func (e *PNGEncoder) Encode(m media.Media, _ float32) ([]byte, error) {
	var r media.Raster
	switch v := m.(type) {
	case media.Raster:
		r = v
	case media.Sequence:
		if len(v.Frames) == 0 {
			return nil, proxyerr.Newf(proxyerr.Codec, "png", "empty frame sequence")
		}
		r = media.Raster{Image: v.Frames[0].Image}
	case media.Vector:
		return nil, proxyerr.Newf(proxyerr.Codec, "png", "markup must be rasterized before encoding")
	default:
		return nil, proxyerr.Newf(proxyerr.Codec, "png", "unknown media %T", m)
	}

	var buf bytes.Buffer
	buf.Grow(4 * r.Image.Rect.Dx() * r.Image.Rect.Dy() / 2)

	enc := &png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, r.Image); err != nil {
		return nil, proxyerr.New(proxyerr.Codec, "png", err)
	}
	return buf.Bytes(), nil
}
