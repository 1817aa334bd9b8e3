package decoder

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	ico "github.com/biessek/golang-ico"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnyUserName/mediaproxy/internal/media"
	"github.com/AnyUserName/mediaproxy/internal/proxyerr"
	"github.com/AnyUserName/mediaproxy/internal/webp"
)

var (
	red         = color.NRGBA{R: 255, A: 255}
	blue        = color.NRGBA{B: 255, A: 255}
	green       = color.NRGBA{G: 255, A: 255}
	white       = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	transparent = color.NRGBA{}
)

func fill(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestDecodePNG(t *testing.T) {
	src := fill(6, 3, color.NRGBA{R: 10, G: 20, B: 30, A: 128})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	m, err := Decode(media.PNG, buf.Bytes())
	require.NoError(t, err)
	r, ok := m.(media.Raster)
	require.True(t, ok, "got %T", m)
	assert.Equal(t, image.Rect(0, 0, 6, 3), r.Image.Rect)
	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 128}, r.Image.NRGBAAt(2, 1))
}

func TestDecodeJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, fill(8, 6, white), &jpeg.Options{Quality: 90}))

	m, err := Decode(media.JPEG, buf.Bytes())
	require.NoError(t, err)
	r, ok := m.(media.Raster)
	require.True(t, ok)
	assert.Equal(t, 8, r.Image.Rect.Dx())
	assert.Equal(t, 6, r.Image.Rect.Dy())
	assert.Equal(t, uint8(255), r.Image.NRGBAAt(0, 0).A)
}

func TestDecodeICO(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ico.Encode(&buf, fill(16, 16, blue)))

	m, err := Decode(media.ICO, buf.Bytes())
	require.NoError(t, err)
	r, ok := m.(media.Raster)
	require.True(t, ok)
	assert.Equal(t, image.Rect(0, 0, 16, 16), r.Image.Rect)
	assert.Equal(t, blue, r.Image.NRGBAAt(8, 8))
}

func TestDecodeSVGKeepsMarkup(t *testing.T) {
	markup := []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10"></svg>`)
	m, err := Decode(media.SVG, markup)
	require.NoError(t, err)
	assert.Equal(t, media.Vector{Markup: markup}, m)
}

func TestDecodeUnsupported(t *testing.T) {
	_, err := Decode(media.Unknown, []byte("whatever"))
	require.Error(t, err)
	assert.Equal(t, proxyerr.UnsupportedFormat, proxyerr.KindOf(err))
}

func TestDecodeMalformed(t *testing.T) {
	for _, kind := range []media.Kind{media.PNG, media.JPEG, media.GIF, media.ICO} {
		_, err := Decode(kind, []byte("\x00\x01garbage"))
		require.Error(t, err, kind.String())
		assert.Equal(t, proxyerr.Decode, proxyerr.KindOf(err), kind.String())
	}
}

func paletted(r image.Rectangle, idx uint8) *image.Paletted {
	pal := color.Palette{transparent, red, blue, green, white}
	img := image.NewPaletted(r, pal)
	for i := range img.Pix {
		img.Pix[i] = idx
	}
	return img
}

func TestDecodeGIFDisposal(t *testing.T) {
	g := &gif.GIF{
		Image: []*image.Paletted{
			paletted(image.Rect(0, 0, 4, 4), 1), // red everywhere
			paletted(image.Rect(0, 0, 2, 2), 2), // blue, restored afterwards
			paletted(image.Rect(2, 2, 4, 4), 3), // green, cleared afterwards
			paletted(image.Rect(3, 0, 4, 1), 4), // white
		},
		Delay:    []int{5, 10, 2, 0},
		Disposal: []byte{gif.DisposalNone, gif.DisposalPrevious, gif.DisposalBackground, gif.DisposalNone},
		Config:   image.Config{Width: 4, Height: 4},
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, g))

	m, err := Decode(media.GIF, buf.Bytes())
	require.NoError(t, err)
	seq, ok := m.(media.Sequence)
	require.True(t, ok, "got %T", m)
	require.Len(t, seq.Frames, 4)

	wantDelays := []int{50, 100, 20, 0}
	for i, f := range seq.Frames {
		assert.Equal(t, wantDelays[i], f.Delay.Milliseconds(), "frame %d delay", i)
		assert.Equal(t, image.Rect(0, 0, 4, 4), f.Image.Rect, "frame %d bounds", i)
	}

	at := func(frame, x, y int) color.NRGBA { return seq.Frames[frame].Image.NRGBAAt(x, y) }

	assert.Equal(t, red, at(0, 0, 0))
	assert.Equal(t, red, at(0, 3, 3))

	assert.Equal(t, blue, at(1, 0, 0))
	assert.Equal(t, red, at(1, 3, 3))

	// Frame 1 was disposed to the previous canvas.
	assert.Equal(t, red, at(2, 0, 0))
	assert.Equal(t, green, at(2, 3, 3))

	// Frame 2 was disposed to background.
	assert.Equal(t, transparent, at(3, 3, 3))
	assert.Equal(t, white, at(3, 3, 0))
	assert.Equal(t, red, at(3, 0, 0))
}

func TestDecodeSingleFrameGIFIsSequence(t *testing.T) {
	g := &gif.GIF{
		Image:  []*image.Paletted{paletted(image.Rect(0, 0, 3, 2), 2)},
		Delay:  []int{0},
		Config: image.Config{Width: 3, Height: 2},
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, g))

	m, err := Decode(media.GIF, buf.Bytes())
	require.NoError(t, err)
	seq, ok := m.(media.Sequence)
	require.True(t, ok)
	assert.Len(t, seq.Frames, 1)
}

func TestDecodeWebP(t *testing.T) {
	if !webp.Available() {
		t.Skip("libwebp not linked")
	}

	still, err := webp.Encode(fill(5, 4, green), webp.Options{Quality: 90, Lossless: true})
	require.NoError(t, err)
	m, err := Decode(media.WebP, still)
	require.NoError(t, err)
	r, ok := m.(media.Raster)
	require.True(t, ok, "got %T", m)
	assert.Equal(t, green, r.Image.NRGBAAt(4, 3))

	anim, err := webp.EncodeAnimation(media.Sequence{Frames: []media.Frame{
		{Image: fill(5, 4, red), Delay: media.DelayMS(70)},
		{Image: fill(5, 4, blue), Delay: media.DelayMS(30)},
	}}, webp.Options{Quality: 90, Lossless: true})
	require.NoError(t, err)
	m, err = Decode(media.WebP, anim)
	require.NoError(t, err)
	seq, ok := m.(media.Sequence)
	require.True(t, ok, "got %T", m)
	require.Len(t, seq.Frames, 2)
	assert.Equal(t, 70, seq.Frames[0].Delay.Milliseconds())
	assert.Equal(t, 30, seq.Frames[1].Delay.Milliseconds())
}
