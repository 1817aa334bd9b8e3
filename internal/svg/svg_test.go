package svg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const square = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 40 20">
  <rect x="0" y="0" width="40" height="20" fill="#ff0000"/>
</svg>`

func TestSize(t *testing.T) {
	w, h, err := Size([]byte(square))
	require.NoError(t, err)
	assert.Equal(t, 40, w)
	assert.Equal(t, 20, h)
}

func TestSizeRejectsMalformed(t *testing.T) {
	_, _, err := Size([]byte("\x00\x01 definitely not markup"))
	assert.Error(t, err)
}

func TestRasterizeIntrinsic(t *testing.T) {
	img, err := Rasterize([]byte(square), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 40, img.Rect.Dx())
	assert.Equal(t, 20, img.Rect.Dy())

	c := img.NRGBAAt(20, 10)
	assert.Equal(t, uint8(255), c.R)
	assert.Equal(t, uint8(255), c.A)
}

func TestRasterizeTarget(t *testing.T) {
	img, err := Rasterize([]byte(square), 96, 96)
	require.NoError(t, err)
	assert.Equal(t, 96, img.Rect.Dx())
	assert.Equal(t, 96, img.Rect.Dy())
	assert.Equal(t, 4*96, img.Stride)
}

const sizedIcon = `<svg xmlns="http://www.w3.org/2000/svg" width="512" height="512" viewBox="0 0 24 24">
  <rect x="0" y="0" width="24" height="24" fill="#00ff00"/>
</svg>`

func TestSizePrefersDeclaredDimensions(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		w, h   int
	}{
		{"width and height", sizedIcon, 512, 512},
		{"px units", `<svg xmlns="http://www.w3.org/2000/svg" width="64px" height="32px" viewBox="0 0 8 4"/>`, 64, 32},
		{"absolute units", `<svg xmlns="http://www.w3.org/2000/svg" width="2in" height="48pt" viewBox="0 0 10 10"/>`, 192, 64},
		{"width only", `<svg xmlns="http://www.w3.org/2000/svg" width="48" viewBox="0 0 24 12"/>`, 48, 24},
		{"height only", `<svg xmlns="http://www.w3.org/2000/svg" height="30" viewBox="0 0 20 10"/>`, 60, 30},
		{"relative falls back", `<svg xmlns="http://www.w3.org/2000/svg" width="100%" height="100%" viewBox="0 0 24 24"/>`, 24, 24},
		{"em falls back", `<svg xmlns="http://www.w3.org/2000/svg" width="2em" height="2em" viewBox="0 0 16 16"/>`, 16, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, err := Size([]byte(tt.markup))
			require.NoError(t, err)
			assert.Equal(t, tt.w, w)
			assert.Equal(t, tt.h, h)
		})
	}
}

func TestRasterizeDeclaredSizeMapsViewBox(t *testing.T) {
	img, err := Rasterize([]byte(sizedIcon), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 512, img.Rect.Dx())
	assert.Equal(t, 512, img.Rect.Dy())

	// The 24 unit rect covers the whole canvas.
	c := img.NRGBAAt(500, 500)
	assert.Equal(t, uint8(255), c.G)
	assert.Equal(t, uint8(255), c.A)
}
