package webp

import (
	"image"

	"github.com/AnyUserName/mediaproxy/internal/media"
	"github.com/AnyUserName/mediaproxy/internal/proxyerr"
)

// HasAnimation inspects the bitstream header only.
func (c *Codec) HasAnimation(buf []byte) (bool, error) {
	if c.lib == nil {
		return false, ErrUnavailable
	}
	if len(buf) == 0 {
		return false, proxyerr.Newf(proxyerr.Decode, "WebPGetFeatures", "empty input")
	}
	animated, status := c.lib.features(buf)
	if status != 0 {
		err := proxyerr.Native("WebPGetFeatures", status)
		err.Kind = proxyerr.Decode
		return false, err
	}
	return animated, nil
}

// DecodeAnimation decodes every frame of an animated WebP into full-canvas
// RGBA images. Frame delays are the differences between the cumulative
// timestamps reported by the decoder.
func (c *Codec) DecodeAnimation(buf []byte) (media.Sequence, error) {
	if c.lib == nil {
		return media.Sequence{}, ErrUnavailable
	}

	dec, err := openAnimDecoder(c.lib, buf)
	if err != nil {
		return media.Sequence{}, err
	}
	defer dec.release()

	info, ok := c.lib.animDecoderInfo(dec.ref)
	if !ok {
		return media.Sequence{}, proxyerr.Newf(proxyerr.Decode, "WebPAnimDecoderGetInfo", "cannot read canvas info")
	}
	if info.width <= 0 || info.height <= 0 {
		return media.Sequence{}, proxyerr.Newf(proxyerr.Decode, "WebPAnimDecoderGetInfo",
			"invalid canvas %dx%d", info.width, info.height)
	}

	type pulled struct {
		img       *image.NRGBA
		timestamp int
	}
	frames := make([]pulled, 0, min(max(info.frameCount, 0), 256))
	rect := image.Rect(0, 0, info.width, info.height)
	for c.lib.animDecoderHasMore(dec.ref) {
		img := image.NewNRGBA(rect)
		ts, ok := c.lib.animDecoderNext(dec.ref, img.Pix)
		if !ok {
			return media.Sequence{}, proxyerr.Newf(proxyerr.Decode, "WebPAnimDecoderGetNext",
				"frame %d is corrupt", len(frames))
		}
		frames = append(frames, pulled{img: img, timestamp: ts})
	}
	if len(frames) == 0 {
		return media.Sequence{}, proxyerr.Newf(proxyerr.Decode, "WebPAnimDecoderGetNext", "no frames")
	}

	seq := media.Sequence{Frames: make([]media.Frame, len(frames))}
	prev := 0
	for i, f := range frames {
		seq.Frames[i] = media.Frame{Image: f.img, Delay: media.DelayMS(f.timestamp - prev)}
		prev = f.timestamp
	}
	return seq, nil
}
