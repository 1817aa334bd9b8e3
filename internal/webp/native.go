package webp

import (
	"runtime"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/AnyUserName/mediaproxy/internal/proxyerr"
)

// Opaque native handles. Each one is owned by exactly one wrapper below.
type (
	configRef  unsafe.Pointer
	pictureRef unsafe.Pointer
	writerRef  unsafe.Pointer
	animEncRef unsafe.Pointer
	dataRef    unsafe.Pointer
	muxRef     unsafe.Pointer
	animDecRef unsafe.Pointer
)

// animInfo is the canvas description reported by the animation decoder.
type animInfo struct {
	width, height int
	frameCount    int
	loopCount     int
}

// muxOK is WEBP_MUX_OK.
const muxOK = 1

// native is the handle-based libwebp surface the codec drives. Functions
// returning a bool report libwebp's "0 means failure" convention.
type native interface {
	newConfig(opts Options) (configRef, bool)
	validateConfig(c configRef) bool
	freeConfig(c configRef)

	newPicture(width, height int) (pictureRef, bool)
	importRGBA(p pictureRef, pix []byte, stride int) bool
	pictureError(p pictureRef) int
	freePicture(p pictureRef)

	newWriter() (writerRef, bool)
	encode(c configRef, p pictureRef, w writerRef) bool
	writerBytes(w writerRef) []byte
	freeWriter(w writerRef)

	newAnimEncoder(width, height int) (animEncRef, bool)
	// animEncoderAdd with a nil picture and config marks the end of input.
	animEncoderAdd(e animEncRef, p pictureRef, timestampMS int, c configRef) bool
	animEncoderAssemble(e animEncRef, out dataRef) bool
	animEncoderError(e animEncRef) string
	deleteAnimEncoder(e animEncRef)

	newData() (dataRef, bool)
	dataBytes(d dataRef) []byte
	clearData(d dataRef)

	newMux(d dataRef) (muxRef, bool)
	muxSetAnimationParams(m muxRef, bgcolor uint32, loopCount int) int
	muxAssemble(m muxRef, out dataRef) int
	deleteMux(m muxRef)

	// newAnimDecoder keeps a reference to data; the caller pins it until
	// deleteAnimDecoder returns.
	newAnimDecoder(data []byte) (animDecRef, bool)
	animDecoderInfo(d animDecRef) (animInfo, bool)
	animDecoderHasMore(d animDecRef) bool
	// animDecoderNext copies the next canvas into dst and returns its
	// cumulative end timestamp.
	animDecoderNext(d animDecRef, dst []byte) (int, bool)
	deleteAnimDecoder(d animDecRef)

	features(data []byte) (hasAnimation bool, status int)
}

type config struct {
	lib native
	ref configRef
}

func newConfig(lib native, opts Options) (*config, error) {
	ref, ok := lib.newConfig(opts)
	if !ok {
		return nil, proxyerr.Newf(proxyerr.Codec, "WebPConfigPreset", "cannot initialize config")
	}
	c := &config{lib: lib, ref: ref}
	if !lib.validateConfig(ref) {
		c.release()
		return nil, proxyerr.Newf(proxyerr.Codec, "WebPValidateConfig", "invalid config (quality=%v)", opts.Quality)
	}
	return c, nil
}

func (c *config) release() {
	if c.ref != nil {
		c.lib.freeConfig(c.ref)
		c.ref = nil
	}
}

type picture struct {
	lib native
	ref pictureRef
}

// importPicture allocates a width x height picture and copies pix into it.
func importPicture(lib native, pix []byte, width, height int) (*picture, error) {
	ref, ok := lib.newPicture(width, height)
	if !ok {
		return nil, proxyerr.Newf(proxyerr.Codec, "WebPPictureInit", "cannot initialize picture")
	}
	p := &picture{lib: lib, ref: ref}
	if !lib.importRGBA(ref, pix, width*4) {
		err := proxyerr.Native("WebPPictureImportRGBA", lib.pictureError(ref))
		p.release()
		return nil, err
	}
	return p, nil
}

func (p *picture) release() {
	if p.ref != nil {
		p.lib.freePicture(p.ref)
		p.ref = nil
	}
}

type writer struct {
	lib native
	ref writerRef
}

func newWriter(lib native) (*writer, error) {
	ref, ok := lib.newWriter()
	if !ok {
		return nil, proxyerr.Newf(proxyerr.Codec, "WebPMemoryWriterInit", "cannot allocate writer")
	}
	return &writer{lib: lib, ref: ref}, nil
}

func (w *writer) release() {
	if w.ref != nil {
		w.lib.freeWriter(w.ref)
		w.ref = nil
	}
}

type animEncoder struct {
	lib native
	ref animEncRef
}

func newAnimEncoder(lib native, width, height int) (*animEncoder, error) {
	ref, ok := lib.newAnimEncoder(width, height)
	if !ok {
		return nil, proxyerr.Newf(proxyerr.Codec, "WebPAnimEncoderNew", "cannot create %dx%d encoder", width, height)
	}
	return &animEncoder{lib: lib, ref: ref}, nil
}

// failure builds an error from the encoder's last error message.
func (e *animEncoder) failure(op string, status int) error {
	err := proxyerr.Native(op, status)
	if msg := e.lib.animEncoderError(e.ref); msg != "" {
		err.Err = errors.New(msg)
	}
	return err
}

func (e *animEncoder) release() {
	if e.ref != nil {
		e.lib.deleteAnimEncoder(e.ref)
		e.ref = nil
	}
}

type webpData struct {
	lib native
	ref dataRef
}

func newData(lib native) (*webpData, error) {
	ref, ok := lib.newData()
	if !ok {
		return nil, proxyerr.Newf(proxyerr.Codec, "WebPDataInit", "cannot allocate data")
	}
	return &webpData{lib: lib, ref: ref}, nil
}

func (d *webpData) release() {
	if d.ref != nil {
		d.lib.clearData(d.ref)
		d.ref = nil
	}
}

type mux struct {
	lib native
	ref muxRef
}

// newMux opens a mux over a copy of src; src may be released independently.
func newMux(lib native, src *webpData) (*mux, error) {
	ref, ok := lib.newMux(src.ref)
	if !ok {
		return nil, proxyerr.Newf(proxyerr.Codec, "WebPMuxCreate", "cannot parse assembled animation")
	}
	return &mux{lib: lib, ref: ref}, nil
}

func (m *mux) release() {
	if m.ref != nil {
		m.lib.deleteMux(m.ref)
		m.ref = nil
	}
}

type animDecoder struct {
	lib    native
	ref    animDecRef
	pinner runtime.Pinner
}

// openAnimDecoder borrows buf for the decoder's lifetime. buf must not be
// modified until release returns.
func openAnimDecoder(lib native, buf []byte) (*animDecoder, error) {
	if len(buf) == 0 {
		return nil, proxyerr.Newf(proxyerr.Decode, "WebPAnimDecoderNew", "empty input")
	}
	d := &animDecoder{lib: lib}
	d.pinner.Pin(&buf[0])
	ref, ok := lib.newAnimDecoder(buf)
	if !ok {
		d.pinner.Unpin()
		return nil, proxyerr.Newf(proxyerr.Decode, "WebPAnimDecoderNew", "cannot open animation")
	}
	d.ref = ref
	return d, nil
}

func (d *animDecoder) release() {
	if d.ref != nil {
		d.lib.deleteAnimDecoder(d.ref)
		d.ref = nil
		d.pinner.Unpin()
	}
}
