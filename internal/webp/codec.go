// Package webp encodes still and animated WebP images and decodes animated
// WebP through libwebp.
//
// Every native resource (config, picture, memory writer, animation encoder,
// WebPData, mux, animation decoder) is held by a single wrapper that is
// released with defer right after it is acquired, so each handle is torn down
// exactly once on every return path.
package webp

import (
	"image"

	"github.com/pkg/errors"

	"github.com/AnyUserName/mediaproxy/internal/media"
)

// ErrUnavailable is returned when the binary was built without cgo.
var ErrUnavailable = errors.New("webp: libwebp is not available (built without cgo)")

// MaxDimension is the largest width or height WebP can store.
const MaxDimension = 16383

// Options control encoding.
type Options struct {
	// Quality is the 0-100 quality factor.
	Quality float32
	// Lossless switches to VP8L.
	Lossless bool
	// NearLossless (0-99) enables near-lossless preprocessing; it implies
	// Lossless. 0 disables it.
	NearLossless int
	// Method is the speed/size trade-off (0=fast, 6=best). 0 keeps the
	// preset default.
	Method int
}

func (o Options) normalized() Options {
	if o.Quality < 0 {
		o.Quality = 0
	}
	if o.Quality > 100 {
		o.Quality = 100
	}
	if o.NearLossless < 0 || o.NearLossless >= 100 {
		o.NearLossless = 0
	}
	if o.NearLossless > 0 {
		o.Lossless = true
	}
	if o.Method < 0 || o.Method > 6 {
		o.Method = 0
	}
	return o
}

// Codec drives a libwebp implementation.
type Codec struct {
	lib native
}

// New returns a codec backed by the linked libwebp.
func New() *Codec {
	return &Codec{lib: defaultNative()}
}

// Available reports whether libwebp is linked in.
func (c *Codec) Available() bool {
	return c.lib != nil
}

var std = New()

// Available reports whether the package-level codec can be used.
func Available() bool { return std.Available() }

// Encode encodes a still image with the package-level codec.
func Encode(img *image.NRGBA, opts Options) ([]byte, error) {
	return std.Encode(img, opts)
}

// EncodeAnimation encodes seq with the package-level codec.
func EncodeAnimation(seq media.Sequence, opts Options) ([]byte, error) {
	return std.EncodeAnimation(seq, opts)
}

// DecodeAnimation decodes an animated WebP with the package-level codec.
func DecodeAnimation(buf []byte) (media.Sequence, error) {
	return std.DecodeAnimation(buf)
}

// HasAnimation reports whether buf carries the animation flag.
func HasAnimation(buf []byte) (bool, error) {
	return std.HasAnimation(buf)
}

// packed returns the pixels of img as a tightly packed buffer starting at
// the image origin.
func packed(img *image.NRGBA) []byte {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if img.Stride == 4*w && len(img.Pix) >= 4*w*h {
		return img.Pix[:4*w*h]
	}
	pix := make([]byte, 4*w*h)
	for y := 0; y < h; y++ {
		off := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		copy(pix[4*w*y:4*w*(y+1)], img.Pix[off:off+4*w])
	}
	return pix
}
