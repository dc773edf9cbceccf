// Package main provides C API bindings for framecodec, so existing C
// programs written against the x264lib interface can link against the Go
// implementation unchanged.
//
// # Build Instructions
//
// To build as a C shared library:
//
//	go build -buildmode=c-shared -o libx264lib.so ./capi/
//
// This generates:
//   - libx264lib.so: The shared library
//   - libx264lib.h: Auto-generated C header file with function declarations
//
// # C API Usage
//
//	void *enc = init_encoder(w, h, 70, 1);
//	void *dec = init_decoder(w, h, -1);
//	if (enc == NULL || dec == NULL) {
//	    return 1;
//	}
//
//	void *pic = csc_image_rgb2yuv(enc, rgb, w * 3);
//	uint8_t *data;
//	int size;
//	if (compress_image(enc, pic, &data, &size, -1) != 0) {
//	    // pic has been freed anyway
//	}
//
//	uint8_t *planes[3];
//	int outsize, strides[3];
//	decompress_image(dec, data, size, &planes, &outsize, &strides);
//
//	clean_decoder(dec);
//	clean_encoder(enc);
//
// # Memory Ownership
//
// Buffers returned through compress_image, and planar output of
// decompress_image, belong to the context: never free them, and copy them
// before the next call on the same context. The RGB buffers returned by
// csc_image_yuv2rgb, and by decompress_image on a decoder created with
// csc_fmt RGB24, belong to the caller and must be released with free().
// Pictures from csc_image_rgb2yuv are always freed by compress_image.
//
// Contexts are opaque handles. clean_encoder and clean_decoder free them;
// do_clean_decoder only tears down the decoder state and leaves the handle
// alive: set_decoder_csc_format re-initialises it, or clean_decoder frees it.
//
// # Thread Safety
//
// The handle registry is protected by a read-write mutex. A single context
// must not be used from two threads at once.
package main
