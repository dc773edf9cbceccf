package main

/*
#include <stdint.h>
#include <stdlib.h>
*/
import "C"

import (
	"unsafe"

	"github.com/opd-ai/framecodec/codec"
	"github.com/opd-ai/framecodec/csc"
	"github.com/opd-ai/framecodec/memalign"
	"github.com/sirupsen/logrus"
)

func main() {} // Required for c-shared build mode

// get_encoder_pixel_format exposes the encoder pixel format so the decoder
// can use the same setting. Returns -1 for an invalid context.
//
//export get_encoder_pixel_format
func get_encoder_pixel_format(ctx unsafe.Pointer) C.int {
	id, ok := handleID(ctx)
	if !ok {
		return -1
	}
	st, err := lookupContext(id, encoderContext)
	if err != nil {
		return -1
	}
	return C.int(st.enc.PixelFormat())
}

// get_encoder_quality returns the current quality setting, or -1 for an
// invalid context.
//
//export get_encoder_quality
func get_encoder_quality(ctx unsafe.Pointer) C.int {
	id, ok := handleID(ctx)
	if !ok {
		return -1
	}
	st, err := lookupContext(id, encoderContext)
	if err != nil {
		return -1
	}
	return C.int(st.enc.Quality())
}

// init_encoder creates an encoding context for images of a given size.
// Returns NULL on failure.
//
//export init_encoder
func init_encoder(width, height, initial_quality, supports_csc_option C.int) unsafe.Pointer {
	id, err := openEncoder(int(width), int(height), int(initial_quality), supports_csc_option != 0)
	if err != nil {
		return nil
	}
	return newContextHandle(id)
}

// init_decoder creates a decoding context for images of a given size.
// csc_fmt is -1 (or a planar YUV format) for planar output, or RGB24 (2)
// for packed RGB output. Returns NULL on failure.
//
//export init_decoder
func init_decoder(width, height, csc_fmt C.int) unsafe.Pointer {
	id, err := openDecoder(int(width), int(height), int(csc_fmt))
	if err != nil {
		return nil
	}
	return newContextHandle(id)
}

func newContextHandle(id uintptr) unsafe.Pointer {
	h := newHandle(id)
	if h == nil {
		discardContext(id)
	}
	return h
}

// set_decoder_csc_format changes the output format of the next
// decompress_image call. A context cleaned with do_clean_decoder is
// re-initialised here. It must not be called while another thread is
// decoding on the same context.
//
//export set_decoder_csc_format
func set_decoder_csc_format(ctx unsafe.Pointer, csc_fmt C.int) {
	id, ok := handleID(ctx)
	if !ok {
		return
	}
	if err := setDecoderCSC(id, int(csc_fmt)); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "set_decoder_csc_format",
			"csc_fmt":  int(csc_fmt),
			"error":    err.Error(),
		}).Warn("Ignoring decoder csc format")
	}
}

// clean_encoder releases the encoding context and frees the handle.
//
//export clean_encoder
func clean_encoder(ctx unsafe.Pointer) {
	id, ok := handleID(ctx)
	if !ok {
		return
	}
	if err := destroyContext(id, encoderContext); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "clean_encoder",
			"error":    err.Error(),
		}).Warn("Failed to clean encoder")
		return
	}
	freeHandle(ctx)
}

// do_clean_decoder releases the decoder internals without freeing the
// handle.
//
//export do_clean_decoder
func do_clean_decoder(ctx unsafe.Pointer) {
	id, ok := handleID(ctx)
	if !ok {
		return
	}
	if err := closeDecoder(id); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "do_clean_decoder",
			"error":    err.Error(),
		}).Warn("Failed to clean decoder")
	}
}

// clean_decoder releases the decoding context and frees the handle.
//
//export clean_decoder
func clean_decoder(ctx unsafe.Pointer) {
	id, ok := handleID(ctx)
	if !ok {
		return
	}
	if err := destroyContext(id, decoderContext); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "clean_decoder",
			"error":    err.Error(),
		}).Warn("Failed to clean decoder")
		return
	}
	freeHandle(ctx)
}

// csc_image_rgb2yuv converts packed RGB24 into a picture that must be
// passed to compress_image, which frees it. Returns NULL on bad input.
//
//export csc_image_rgb2yuv
func csc_image_rgb2yuv(ctx unsafe.Pointer, in *C.uint8_t, stride C.int) unsafe.Pointer {
	id, ok := handleID(ctx)
	if !ok || in == nil {
		return nil
	}
	st, err := lookupContext(id, encoderContext)
	if err != nil || int(stride) < st.enc.Width()*3 {
		return nil
	}
	n, ok := csc.RowSpan(st.enc.Height(), int(stride), st.enc.Width()*3)
	if !ok {
		return nil
	}
	picID, err := convertRGB(id, unsafe.Slice((*byte)(unsafe.Pointer(in)), n), int(stride))
	if err != nil {
		return nil
	}
	h := newHandle(picID)
	if h == nil {
		takePicture(picID).Release()
	}
	return h
}

// csc_image_yuv2rgb converts three planes to packed RGB24. On success *out
// points to a buffer the caller must free(). Returns non-zero on error.
//
//export csc_image_yuv2rgb
func csc_image_yuv2rgb(ctx unsafe.Pointer, in **C.uint8_t, stride *C.int, out **C.uint8_t, outsz *C.int, outstride *C.int) C.int {
	id, ok := handleID(ctx)
	if !ok || in == nil || stride == nil || out == nil || outsz == nil || outstride == nil {
		return 1
	}
	inPlanes := (*[3]*C.uint8_t)(unsafe.Pointer(in))
	inStrides := (*[3]C.int)(unsafe.Pointer(stride))

	var strides [3]int
	for i := range strides {
		strides[i] = int(inStrides[i])
	}
	lengths, err := planeLengths(id, strides)
	if err != nil {
		return 1
	}
	var planes [3][]byte
	for i := range planes {
		if inPlanes[i] == nil {
			return 1
		}
		planes[i] = unsafe.Slice((*byte)(unsafe.Pointer(inPlanes[i])), lengths[i])
	}

	img, err := convertYUV(id, planes, strides)
	if err != nil {
		return 1
	}
	defer img.Release()

	p := cCopy(img.Bytes())
	if p == nil {
		return 1
	}
	*out = (*C.uint8_t)(p)
	*outsz = C.int(img.Size())
	*outstride = C.int(img.Stride())
	return 0
}

// compress_image compresses a picture from csc_image_rgb2yuv and frees it
// on every path. *out points to context memory that must not be freed and
// is overwritten by the next call. Returns non-zero on error.
//
//export compress_image
func compress_image(ctx, pic_in unsafe.Pointer, out **C.uint8_t, outsz *C.int, quality_override C.int) C.int {
	picID, _ := handleID(pic_in)
	freeHandle(pic_in)

	id, ok := handleID(ctx)
	if !ok {
		takePicture(picID).Release()
		return 1
	}
	data, err := compressPicture(id, picID, int(quality_override))
	if err != nil {
		return 1
	}
	st, err := lookupContext(id, encoderContext)
	if err != nil {
		return 1
	}
	buf := st.out.ensure(len(data))
	if buf == nil {
		return 1
	}
	copy(buf, data)
	if out != nil {
		*out = (*C.uint8_t)(st.out.ptr)
	}
	if outsz != nil {
		*outsz = C.int(len(data))
	}
	return 0
}

// decompress_image decodes size bytes. For planar output *out receives
// three plane pointers into context memory, valid until the next call.
// For RGB24 output (*out)[0] is a packed buffer the caller must free() and
// the other two entries are NULL. Returns non-zero on error.
//
//export decompress_image
func decompress_image(ctx unsafe.Pointer, in *C.uint8_t, size C.int, out unsafe.Pointer, outsize *C.int, outstride unsafe.Pointer) C.int {
	id, ok := handleID(ctx)
	if !ok || in == nil || size <= 0 || out == nil || outsize == nil || outstride == nil {
		return 1
	}
	planesOut := (*[3]*C.uint8_t)(out)
	stridesOut := (*[3]C.int)(outstride)

	st, img, err := decompressFrame(id, unsafe.Slice((*byte)(unsafe.Pointer(in)), int(size)))
	if err != nil {
		return 1
	}

	switch v := img.(type) {
	case *csc.RGBImage:
		defer v.Release()
		p := cCopy(v.Bytes())
		if p == nil {
			return 1
		}
		*planesOut = [3]*C.uint8_t{(*C.uint8_t)(p), nil, nil}
		*stridesOut = [3]C.int{C.int(v.Stride()), 0, 0}
		*outsize = C.int(v.Size())
	case *codec.PlanarView:
		total := v.Size()
		buf := st.out.ensure(total)
		if buf == nil {
			return 1
		}
		offset := 0
		for i := 0; i < 3; i++ {
			_, h := v.Format().PlaneSize(v.Width(), v.Height(), i)
			n := v.Stride(i) * h
			copy(buf[offset:offset+n], v.Plane(i))
			planesOut[i] = (*C.uint8_t)(unsafe.Add(st.out.ptr, offset))
			stridesOut[i] = C.int(v.Stride(i))
			offset += n
		}
		*outsize = C.int(total)
	default:
		return 1
	}
	return 0
}

// set_encoding_speed changes the x264 preset: 100 for "ultrafast", 0 for
// the slowest preset with the best compression.
//
//export set_encoding_speed
func set_encoding_speed(ctx unsafe.Pointer, pct C.int) {
	id, ok := handleID(ctx)
	if !ok {
		return
	}
	if st, err := lookupContext(id, encoderContext); err == nil {
		st.enc.SetSpeed(int(pct))
	}
}

// set_encoding_quality changes the quality: 100 for maximum quality, 0 for
// the lowest.
//
//export set_encoding_quality
func set_encoding_quality(ctx unsafe.Pointer, pct C.int) {
	id, ok := handleID(ctx)
	if !ok {
		return
	}
	if st, err := lookupContext(id, encoderContext); err == nil {
		st.enc.SetQuality(int(pct))
	}
}

// xmemalign returns memory aligned for vectorised access, or NULL. Free it
// with xmemfree.
//
//export xmemalign
func xmemalign(size C.size_t) unsafe.Pointer {
	p := cAlloc(int(size))
	if p == nil {
		logrus.WithFields(logrus.Fields{
			"function":  "xmemalign",
			"size":      uint64(size),
			"alignment": memalign.Alignment,
		}).Warn("Aligned allocation failed")
	}
	return p
}

// xmemfree frees memory allocated with xmemalign.
//
//export xmemfree
func xmemfree(ptr unsafe.Pointer) {
	cFree(ptr)
}
