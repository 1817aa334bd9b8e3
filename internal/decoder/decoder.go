// Package decoder turns fetched bytes into a media.Media value.
package decoder

import (
	"bytes"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	ico "github.com/biessek/golang-ico"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	xwebp "golang.org/x/image/webp"

	"github.com/AnyUserName/mediaproxy/internal/media"
	"github.com/AnyUserName/mediaproxy/internal/proxyerr"
	"github.com/AnyUserName/mediaproxy/internal/webp"
)

// Decode decodes data as kind. Still formats become a Raster, GIF and
// animated WebP a Sequence, SVG a Vector holding the untouched markup.
func Decode(kind media.Kind, data []byte) (media.Media, error) {
	switch kind {
	case media.PNG:
		return still(kind, png.Decode, data)
	case media.JPEG:
		return still(kind, jpeg.Decode, data)
	case media.ICO:
		return still(kind, ico.Decode, data)
	case media.GIF:
		return decodeGIF(data)
	case media.WebP:
		return decodeWebP(data)
	case media.SVG:
		return media.Vector{Markup: data}, nil
	default:
		return nil, proxyerr.Newf(proxyerr.UnsupportedFormat, "decode", "no decoder for %s", kind)
	}
}

type decodeFunc func(r io.Reader) (image.Image, error)

func still(kind media.Kind, fn decodeFunc, data []byte) (media.Media, error) {
	img, err := fn(bytes.NewReader(data))
	if err != nil {
		return nil, proxyerr.New(proxyerr.Decode, "decode "+kind.String(), err)
	}
	return media.Raster{Image: imaging.Clone(img)}, nil
}

func decodeWebP(data []byte) (media.Media, error) {
	animated, err := webp.HasAnimation(data)
	switch {
	case errors.Is(err, webp.ErrUnavailable):
		// x/image/webp still handles plain VP8/VP8L files.
	case err != nil:
		return nil, err
	case animated:
		seq, err := webp.DecodeAnimation(data)
		if err != nil {
			return nil, err
		}
		return seq, nil
	}
	return still(media.WebP, xwebp.Decode, data)
}

// decodeGIF composites every frame onto the logical screen so each
// Sequence frame is a full canvas, honoring the frame disposal methods.
func decodeGIF(data []byte) (media.Media, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, proxyerr.New(proxyerr.Decode, "decode gif", err)
	}
	if len(g.Image) == 0 {
		return nil, proxyerr.Newf(proxyerr.Decode, "decode gif", "no frames")
	}

	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() {
		for _, frame := range g.Image {
			bounds = bounds.Union(frame.Bounds())
		}
		bounds.Min = image.Point{}
	}

	canvas := image.NewNRGBA(bounds)
	seq := media.Sequence{Frames: make([]media.Frame, 0, len(g.Image))}
	var saved *image.NRGBA
	for i, frame := range g.Image {
		disposal := byte(0)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			saved = imaging.Clone(canvas)
		}

		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)

		delay := 0
		if i < len(g.Delay) {
			delay = g.Delay[i] * 10
		}
		seq.Frames = append(seq.Frames, media.Frame{
			Image: imaging.Clone(canvas),
			Delay: media.DelayMS(delay),
		})

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			draw.Draw(canvas, canvas.Bounds(), saved, image.Point{}, draw.Src)
		}
	}
	return seq, nil
}
