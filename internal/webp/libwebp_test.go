//go:build cgo

package webp

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xwebp "golang.org/x/image/webp"

	"github.com/AnyUserName/mediaproxy/internal/media"
)

func gradient(w, h int, seed uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x*255/w) ^ seed,
				G: uint8(y*255/h) + seed,
				B: seed,
				A: 255,
			})
		}
	}
	return img
}

func TestLosslessStillRoundTrip(t *testing.T) {
	src := gradient(32, 24, 7)
	out, err := Encode(src, Options{Quality: 80, Lossless: true})
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("RIFF")))

	decoded, err := xwebp.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, src.Bounds(), decoded.Bounds())
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			want := src.NRGBAAt(x, y)
			got := color.NRGBAModel.Convert(decoded.At(x, y)).(color.NRGBA)
			require.Equalf(t, want, got, "pixel (%d,%d)", x, y)
		}
	}

	animated, err := HasAnimation(out)
	require.NoError(t, err)
	assert.False(t, animated)
}

func TestLossyStillDecodes(t *testing.T) {
	out, err := Encode(gradient(40, 30, 3), Options{Quality: 50})
	require.NoError(t, err)

	cfg, err := xwebp.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Width)
	assert.Equal(t, 30, cfg.Height)
}

func TestAnimationRoundTrip(t *testing.T) {
	delays := []int{100, 40, 60}
	seq := media.Sequence{}
	for i, d := range delays {
		seq.Frames = append(seq.Frames, media.Frame{
			Image: gradient(16, 12, uint8(40*(i+1))),
			Delay: media.DelayMS(d),
		})
	}

	out, err := EncodeAnimation(seq, Options{Quality: 100, Lossless: true})
	require.NoError(t, err)

	animated, err := HasAnimation(out)
	require.NoError(t, err)
	require.True(t, animated)

	got, err := DecodeAnimation(out)
	require.NoError(t, err)
	require.Len(t, got.Frames, len(delays))
	for i, f := range got.Frames {
		assert.Equal(t, delays[i], f.Delay.Milliseconds(), "frame %d delay", i)
		assert.Equal(t, image.Rect(0, 0, 16, 12), f.Image.Rect)
		assert.Equal(t, seq.Frames[i].Image.Pix, f.Image.Pix, "frame %d pixels", i)
	}
}

func TestDecodeAnimationRejectsGarbage(t *testing.T) {
	_, err := DecodeAnimation([]byte("definitely not a webp file"))
	require.Error(t, err)

	_, err = HasAnimation([]byte("nope"))
	require.Error(t, err)
}

func TestEncodeRejectsOversize(t *testing.T) {
	img := &image.NRGBA{Rect: image.Rect(0, 0, MaxDimension+1, 1), Stride: 4 * (MaxDimension + 1)}
	img.Pix = make([]byte, img.Stride)
	_, err := Encode(img, Options{Quality: 80})
	require.Error(t, err)
}
