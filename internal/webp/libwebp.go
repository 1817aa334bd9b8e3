//go:build cgo

package webp

/*
#cgo pkg-config: libwebp libwebpmux libwebpdemux

#include <stdlib.h>
#include <string.h>
#include <webp/decode.h>
#include <webp/encode.h>
#include <webp/mux.h>
#include <webp/demux.h>

static WebPConfig* mp_config_new(float quality, int lossless, int near_lossless, int method) {
	WebPConfig* c = (WebPConfig*)calloc(1, sizeof(WebPConfig));
	if (c == NULL) return NULL;
	if (!WebPConfigPreset(c, WEBP_PRESET_PICTURE, quality)) {
		free(c);
		return NULL;
	}
	c->alpha_compression = 0;
	if (lossless) c->lossless = 1;
	if (near_lossless > 0) c->near_lossless = near_lossless;
	if (method > 0) c->method = method;
	return c;
}

static int mp_config_validate(const WebPConfig* c) { return WebPValidateConfig(c); }

static WebPPicture* mp_picture_new(int width, int height) {
	WebPPicture* p = (WebPPicture*)calloc(1, sizeof(WebPPicture));
	if (p == NULL) return NULL;
	if (!WebPPictureInit(p)) {
		free(p);
		return NULL;
	}
	p->use_argb = 1;
	p->width = width;
	p->height = height;
	return p;
}

static int mp_picture_import(WebPPicture* p, const uint8_t* rgba, int stride) {
	return WebPPictureImportRGBA(p, rgba, stride);
}

static int mp_picture_error(const WebPPicture* p) { return (int)p->error_code; }

static void mp_picture_free(WebPPicture* p) {
	WebPPictureFree(p);
	free(p);
}

static WebPMemoryWriter* mp_writer_new(void) {
	WebPMemoryWriter* w = (WebPMemoryWriter*)malloc(sizeof(WebPMemoryWriter));
	if (w == NULL) return NULL;
	WebPMemoryWriterInit(w);
	return w;
}

static void mp_writer_free(WebPMemoryWriter* w) {
	WebPMemoryWriterClear(w);
	free(w);
}

static int mp_encode(const WebPConfig* c, WebPPicture* p, WebPMemoryWriter* w) {
	p->writer = WebPMemoryWrite;
	p->custom_ptr = w;
	return WebPEncode(c, p);
}

static WebPAnimEncoder* mp_anim_encoder_new(int width, int height) {
	WebPAnimEncoderOptions opts;
	if (!WebPAnimEncoderOptionsInit(&opts)) return NULL;
	return WebPAnimEncoderNew(width, height, &opts);
}

static int mp_anim_encoder_add(WebPAnimEncoder* e, WebPPicture* p, int timestamp, const WebPConfig* c) {
	return WebPAnimEncoderAdd(e, p, timestamp, c);
}

static int mp_anim_encoder_assemble(WebPAnimEncoder* e, WebPData* out) {
	return WebPAnimEncoderAssemble(e, out);
}

static const char* mp_anim_encoder_error(WebPAnimEncoder* e) { return WebPAnimEncoderGetError(e); }

static void mp_anim_encoder_delete(WebPAnimEncoder* e) { WebPAnimEncoderDelete(e); }

static WebPData* mp_data_new(void) {
	WebPData* d = (WebPData*)malloc(sizeof(WebPData));
	if (d == NULL) return NULL;
	WebPDataInit(d);
	return d;
}

static void mp_data_free(WebPData* d) {
	WebPDataClear(d);
	free(d);
}

static WebPMux* mp_mux_new(const WebPData* d) { return WebPMuxCreate(d, 1); }

static int mp_mux_set_animation(WebPMux* m, uint32_t bgcolor, int loop_count) {
	WebPMuxAnimParams params;
	params.bgcolor = bgcolor;
	params.loop_count = loop_count;
	return (int)WebPMuxSetAnimationParams(m, &params);
}

static int mp_mux_assemble(WebPMux* m, WebPData* out) { return (int)WebPMuxAssemble(m, out); }

static void mp_mux_delete(WebPMux* m) { WebPMuxDelete(m); }

static WebPAnimDecoder* mp_anim_decoder_new(const uint8_t* buf, size_t size) {
	WebPAnimDecoderOptions opts;
	WebPData in;
	if (!WebPAnimDecoderOptionsInit(&opts)) return NULL;
	opts.color_mode = MODE_RGBA;
	opts.use_threads = 0;
	in.bytes = buf;
	in.size = size;
	return WebPAnimDecoderNew(&in, &opts);
}

static int mp_anim_decoder_info(const WebPAnimDecoder* d, int* width, int* height, int* frames, int* loops) {
	WebPAnimInfo info;
	if (!WebPAnimDecoderGetInfo(d, &info)) return 0;
	*width = (int)info.canvas_width;
	*height = (int)info.canvas_height;
	*frames = (int)info.frame_count;
	*loops = (int)info.loop_count;
	return 1;
}

static int mp_anim_decoder_has_more(const WebPAnimDecoder* d) { return WebPAnimDecoderHasMoreFrames(d); }

static int mp_anim_decoder_next(WebPAnimDecoder* d, uint8_t* dst, size_t size, int* timestamp) {
	uint8_t* buf = NULL;
	if (!WebPAnimDecoderGetNext(d, &buf, timestamp)) return 0;
	memcpy(dst, buf, size);
	return 1;
}

static void mp_anim_decoder_delete(WebPAnimDecoder* d) { WebPAnimDecoderDelete(d); }

static int mp_features(const uint8_t* buf, size_t size, int* animated) {
	WebPBitstreamFeatures f;
	VP8StatusCode st = WebPGetFeatures(buf, size, &f);
	if (st != VP8_STATUS_OK) return (int)st;
	*animated = f.has_animation;
	return 0;
}
*/
import "C"

import (
	"unsafe"
)

type libwebp struct{}

func defaultNative() native { return libwebp{} }

func cbool(b bool) C.int {
	if b {
		return 1
	}
	return 0
}

func (libwebp) newConfig(o Options) (configRef, bool) {
	c := C.mp_config_new(C.float(o.Quality), cbool(o.Lossless), C.int(o.NearLossless), C.int(o.Method))
	return configRef(unsafe.Pointer(c)), c != nil
}

func (libwebp) validateConfig(c configRef) bool {
	return C.mp_config_validate((*C.WebPConfig)(unsafe.Pointer(c))) != 0
}

func (libwebp) freeConfig(c configRef) {
	C.free(unsafe.Pointer(c))
}

func (libwebp) newPicture(width, height int) (pictureRef, bool) {
	p := C.mp_picture_new(C.int(width), C.int(height))
	return pictureRef(unsafe.Pointer(p)), p != nil
}

func (libwebp) importRGBA(p pictureRef, pix []byte, stride int) bool {
	if len(pix) == 0 {
		return false
	}
	return C.mp_picture_import((*C.WebPPicture)(unsafe.Pointer(p)),
		(*C.uint8_t)(unsafe.Pointer(&pix[0])), C.int(stride)) != 0
}

func (libwebp) pictureError(p pictureRef) int {
	return int(C.mp_picture_error((*C.WebPPicture)(unsafe.Pointer(p))))
}

func (libwebp) freePicture(p pictureRef) {
	C.mp_picture_free((*C.WebPPicture)(unsafe.Pointer(p)))
}

func (libwebp) newWriter() (writerRef, bool) {
	w := C.mp_writer_new()
	return writerRef(unsafe.Pointer(w)), w != nil
}

func (libwebp) encode(c configRef, p pictureRef, w writerRef) bool {
	return C.mp_encode((*C.WebPConfig)(unsafe.Pointer(c)),
		(*C.WebPPicture)(unsafe.Pointer(p)),
		(*C.WebPMemoryWriter)(unsafe.Pointer(w))) != 0
}

func (libwebp) writerBytes(w writerRef) []byte {
	wrt := (*C.WebPMemoryWriter)(unsafe.Pointer(w))
	if wrt.mem == nil || wrt.size == 0 {
		return nil
	}
	return C.GoBytes(unsafe.Pointer(wrt.mem), C.int(wrt.size))
}

func (libwebp) freeWriter(w writerRef) {
	C.mp_writer_free((*C.WebPMemoryWriter)(unsafe.Pointer(w)))
}

func (libwebp) newAnimEncoder(width, height int) (animEncRef, bool) {
	e := C.mp_anim_encoder_new(C.int(width), C.int(height))
	return animEncRef(unsafe.Pointer(e)), e != nil
}

func (libwebp) animEncoderAdd(e animEncRef, p pictureRef, timestampMS int, c configRef) bool {
	return C.mp_anim_encoder_add((*C.WebPAnimEncoder)(unsafe.Pointer(e)),
		(*C.WebPPicture)(unsafe.Pointer(p)),
		C.int(timestampMS),
		(*C.WebPConfig)(unsafe.Pointer(c))) != 0
}

func (libwebp) animEncoderAssemble(e animEncRef, out dataRef) bool {
	return C.mp_anim_encoder_assemble((*C.WebPAnimEncoder)(unsafe.Pointer(e)),
		(*C.WebPData)(unsafe.Pointer(out))) != 0
}

func (libwebp) animEncoderError(e animEncRef) string {
	return C.GoString(C.mp_anim_encoder_error((*C.WebPAnimEncoder)(unsafe.Pointer(e))))
}

func (libwebp) deleteAnimEncoder(e animEncRef) {
	C.mp_anim_encoder_delete((*C.WebPAnimEncoder)(unsafe.Pointer(e)))
}

func (libwebp) newData() (dataRef, bool) {
	d := C.mp_data_new()
	return dataRef(unsafe.Pointer(d)), d != nil
}

func (libwebp) dataBytes(d dataRef) []byte {
	wd := (*C.WebPData)(unsafe.Pointer(d))
	if wd.bytes == nil || wd.size == 0 {
		return nil
	}
	return C.GoBytes(unsafe.Pointer(wd.bytes), C.int(wd.size))
}

func (libwebp) clearData(d dataRef) {
	C.mp_data_free((*C.WebPData)(unsafe.Pointer(d)))
}

func (libwebp) newMux(d dataRef) (muxRef, bool) {
	m := C.mp_mux_new((*C.WebPData)(unsafe.Pointer(d)))
	return muxRef(unsafe.Pointer(m)), m != nil
}

func (libwebp) muxSetAnimationParams(m muxRef, bgcolor uint32, loopCount int) int {
	return int(C.mp_mux_set_animation((*C.WebPMux)(unsafe.Pointer(m)), C.uint32_t(bgcolor), C.int(loopCount)))
}

func (libwebp) muxAssemble(m muxRef, out dataRef) int {
	return int(C.mp_mux_assemble((*C.WebPMux)(unsafe.Pointer(m)), (*C.WebPData)(unsafe.Pointer(out))))
}

func (libwebp) deleteMux(m muxRef) {
	C.mp_mux_delete((*C.WebPMux)(unsafe.Pointer(m)))
}

func (libwebp) newAnimDecoder(data []byte) (animDecRef, bool) {
	d := C.mp_anim_decoder_new((*C.uint8_t)(unsafe.Pointer(&data[0])), C.size_t(len(data)))
	return animDecRef(unsafe.Pointer(d)), d != nil
}

func (libwebp) animDecoderInfo(d animDecRef) (animInfo, bool) {
	var w, h, frames, loops C.int
	if C.mp_anim_decoder_info((*C.WebPAnimDecoder)(unsafe.Pointer(d)), &w, &h, &frames, &loops) == 0 {
		return animInfo{}, false
	}
	return animInfo{width: int(w), height: int(h), frameCount: int(frames), loopCount: int(loops)}, true
}

func (libwebp) animDecoderHasMore(d animDecRef) bool {
	return C.mp_anim_decoder_has_more((*C.WebPAnimDecoder)(unsafe.Pointer(d))) != 0
}

func (libwebp) animDecoderNext(d animDecRef, dst []byte) (int, bool) {
	if len(dst) == 0 {
		return 0, false
	}
	var ts C.int
	ok := C.mp_anim_decoder_next((*C.WebPAnimDecoder)(unsafe.Pointer(d)),
		(*C.uint8_t)(unsafe.Pointer(&dst[0])), C.size_t(len(dst)), &ts)
	return int(ts), ok != 0
}

func (libwebp) deleteAnimDecoder(d animDecRef) {
	C.mp_anim_decoder_delete((*C.WebPAnimDecoder)(unsafe.Pointer(d)))
}

func (libwebp) features(data []byte) (bool, int) {
	var animated C.int
	st := C.mp_features((*C.uint8_t)(unsafe.Pointer(&data[0])), C.size_t(len(data)), &animated)
	return animated != 0, int(st)
}
