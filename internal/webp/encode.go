package webp

import (
	"image"

	"github.com/pkg/errors"

	"github.com/AnyUserName/mediaproxy/internal/media"
	"github.com/AnyUserName/mediaproxy/internal/proxyerr"
)

func checkSize(op string, img *image.NRGBA) (int, int, error) {
	if img == nil {
		return 0, 0, proxyerr.Newf(proxyerr.Codec, op, "nil image")
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w <= 0 || h <= 0 || w > MaxDimension || h > MaxDimension {
		return 0, 0, proxyerr.Newf(proxyerr.Codec, op, "unsupported dimensions %dx%d", w, h)
	}
	return w, h, nil
}

// Encode encodes img as a still WebP.
func (c *Codec) Encode(img *image.NRGBA, opts Options) ([]byte, error) {
	if c.lib == nil {
		return nil, ErrUnavailable
	}
	w, h, err := checkSize("WebPEncode", img)
	if err != nil {
		return nil, err
	}

	cfg, err := newConfig(c.lib, opts.normalized())
	if err != nil {
		return nil, err
	}
	defer cfg.release()

	pic, err := importPicture(c.lib, packed(img), w, h)
	if err != nil {
		return nil, err
	}
	defer pic.release()

	wrt, err := newWriter(c.lib)
	if err != nil {
		return nil, err
	}
	defer wrt.release()

	if !c.lib.encode(cfg.ref, pic.ref, wrt.ref) {
		return nil, proxyerr.Native("WebPEncode", c.lib.pictureError(pic.ref))
	}
	return c.lib.writerBytes(wrt.ref), nil
}

// EncodeAnimation encodes seq as an animated WebP that loops forever on a
// transparent background. Frame i starts at the sum of the delays before it.
func (c *Codec) EncodeAnimation(seq media.Sequence, opts Options) ([]byte, error) {
	if c.lib == nil {
		return nil, ErrUnavailable
	}
	if len(seq.Frames) == 0 {
		return nil, proxyerr.Newf(proxyerr.Codec, "WebPAnimEncoderNew", "no frames")
	}
	width, height, err := checkSize("WebPAnimEncoderNew", seq.Frames[0].Image)
	if err != nil {
		return nil, err
	}

	cfg, err := newConfig(c.lib, opts.normalized())
	if err != nil {
		return nil, err
	}
	defer cfg.release()

	enc, err := newAnimEncoder(c.lib, width, height)
	if err != nil {
		return nil, err
	}
	defer enc.release()

	timestamp := 0
	for i, f := range seq.Frames {
		if err := c.addFrame(enc, cfg, f.Image, width, height, timestamp); err != nil {
			return nil, errors.Wrapf(err, "frame %d", i)
		}
		timestamp += f.Delay.Milliseconds()
	}
	if !c.lib.animEncoderAdd(enc.ref, nil, timestamp, nil) {
		return nil, enc.failure("WebPAnimEncoderAdd", 0)
	}

	assembled, err := newData(c.lib)
	if err != nil {
		return nil, err
	}
	defer assembled.release()

	if !c.lib.animEncoderAssemble(enc.ref, assembled.ref) {
		return nil, enc.failure("WebPAnimEncoderAssemble", 0)
	}

	mx, err := newMux(c.lib, assembled)
	if err != nil {
		return nil, err
	}
	defer mx.release()

	if st := c.lib.muxSetAnimationParams(mx.ref, 0, 0); st != muxOK {
		return nil, proxyerr.Native("WebPMuxSetAnimationParams", st)
	}

	out, err := newData(c.lib)
	if err != nil {
		return nil, err
	}
	defer out.release()

	if st := c.lib.muxAssemble(mx.ref, out.ref); st != muxOK {
		return nil, proxyerr.Native("WebPMuxAssemble", st)
	}
	return c.lib.dataBytes(out.ref), nil
}

func (c *Codec) addFrame(enc *animEncoder, cfg *config, img *image.NRGBA, width, height, timestamp int) error {
	w, h, err := checkSize("WebPAnimEncoderAdd", img)
	if err != nil {
		return err
	}
	if w != width || h != height {
		return proxyerr.Newf(proxyerr.Codec, "WebPAnimEncoderAdd",
			"frame is %dx%d, canvas is %dx%d", w, h, width, height)
	}

	pic, err := importPicture(c.lib, packed(img), w, h)
	if err != nil {
		return err
	}
	defer pic.release()

	if !c.lib.animEncoderAdd(enc.ref, pic.ref, timestamp, cfg.ref) {
		return enc.failure("WebPAnimEncoderAdd", c.lib.pictureError(pic.ref))
	}
	return nil
}
