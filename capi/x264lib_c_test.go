package main

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/opd-ai/framecodec/codec"
	"github.com/opd-ai/framecodec/csc"
	"github.com/opd-ai/framecodec/memalign"
)

func testRGB(width, height int) []byte {
	buf := make([]byte, width*height*3)
	for i := range buf {
		buf[i] = byte(i * 7)
	}
	return buf
}

// TestNilHandles verifies that every entry point tolerates NULL.
func TestNilHandles(t *testing.T) {
	if got := get_encoder_pixel_format(nil); got != -1 {
		t.Errorf("Expected -1 pixel format for NULL context, got %d", got)
	}
	if got := get_encoder_quality(nil); got != -1 {
		t.Errorf("Expected -1 quality for NULL context, got %d", got)
	}
	if csc_image_rgb2yuv(nil, nil, 0) != nil {
		t.Error("Expected NULL picture for NULL context")
	}
	if compress_image(nil, nil, nil, nil, -1) == 0 {
		t.Error("Expected failure compressing with NULL context")
	}
	if decompress_image(nil, nil, 0, nil, nil, nil) == 0 {
		t.Error("Expected failure decompressing with NULL context")
	}
	if csc_image_yuv2rgb(nil, nil, nil, nil, nil, nil) == 0 {
		t.Error("Expected failure converting with NULL context")
	}

	// These must not crash.
	set_encoding_speed(nil, 50)
	set_encoding_quality(nil, 50)
	set_decoder_csc_format(nil, -1)
	clean_encoder(nil)
	do_clean_decoder(nil)
	clean_decoder(nil)
	xmemfree(nil)
}

func TestInitRejectsBadArguments(t *testing.T) {
	if init_encoder(0, 32, 50, 0) != nil {
		t.Error("Expected NULL encoder for zero width")
	}
	if init_encoder(64, 32, 150, 0) != nil {
		t.Error("Expected NULL encoder for quality above 100")
	}
	if init_decoder(64, -1, -1) != nil {
		t.Error("Expected NULL decoder for negative height")
	}
	if init_decoder(64, 32, 99) != nil {
		t.Error("Expected NULL decoder for unknown csc format")
	}
}

func TestEncoderHandleLifecycle(t *testing.T) {
	enc := init_encoder(64, 32, 90, 1)
	if enc == nil {
		t.Fatal("Failed to create encoder context")
	}

	if got := get_encoder_pixel_format(enc); int(got) != int(csc.YUV444P) {
		t.Errorf("Expected YUV444P (%d), got %d", csc.YUV444P, got)
	}
	if got := get_encoder_quality(enc); got != 90 {
		t.Errorf("Expected quality 90, got %d", got)
	}

	set_encoding_quality(enc, 130)
	if got := get_encoder_quality(enc); got != 100 {
		t.Errorf("Expected quality clamped to 100, got %d", got)
	}
	set_encoding_speed(enc, 100)

	id, ok := handleID(enc)
	if !ok {
		t.Fatal("Expected a valid handle")
	}
	st, err := lookupContext(id, encoderContext)
	if err != nil {
		t.Fatalf("Expected registered encoder: %v", err)
	}
	if st.enc.Speed() != 100 {
		t.Errorf("Expected speed 100, got %d", st.enc.Speed())
	}

	// The decoder-only entry points refuse an encoder handle.
	if _, err := lookupContext(id, decoderContext); !errors.Is(err, errWrongKind) {
		t.Errorf("Expected errWrongKind, got %v", err)
	}
	do_clean_decoder(enc)

	clean_encoder(enc)
	if _, err := lookupContext(id, encoderContext); !errors.Is(err, errUnknownHandle) {
		t.Errorf("Expected handle to be retired, got %v", err)
	}
}

func TestPipelineThroughRegistry(t *testing.T) {
	encID, err := openEncoder(48, 16, 100, false)
	if err != nil {
		t.Fatalf("openEncoder: %v", err)
	}
	defer destroyContext(encID, encoderContext)

	decID, err := openDecoder(48, 16, cscFormatNone)
	if err != nil {
		t.Fatalf("openDecoder: %v", err)
	}
	defer destroyContext(decID, decoderContext)

	picID, err := convertRGB(encID, testRGB(48, 16), 48*3)
	if err != nil {
		t.Fatalf("convertRGB: %v", err)
	}
	data, err := compressPicture(encID, picID, -1)
	if err != nil {
		t.Fatalf("compressPicture: %v", err)
	}
	if takePicture(picID) != nil {
		t.Error("Expected picture to be consumed by compress")
	}
	payload := append([]byte(nil), data...)

	_, img, err := decompressFrame(decID, payload)
	if err != nil {
		t.Fatalf("decompressFrame: %v", err)
	}
	view, ok := img.(*codec.PlanarView)
	if !ok {
		t.Fatalf("Expected planar output, got %T", img)
	}
	if view.Format() != csc.YUV420P {
		t.Errorf("Expected YUV420P, got %s", view.Format())
	}

	lengths, err := planeLengths(decID, view.Strides())
	if err != nil {
		t.Fatalf("planeLengths: %v", err)
	}
	planes := [3][]byte{
		view.Plane(0)[:lengths[0]],
		view.Plane(1)[:lengths[1]],
		view.Plane(2)[:lengths[2]],
	}
	rgb, err := convertYUV(decID, planes, view.Strides())
	if err != nil {
		t.Fatalf("convertYUV: %v", err)
	}
	if rgb.Size() != 48*16*3 {
		t.Errorf("Expected %d RGB bytes, got %d", 48*16*3, rgb.Size())
	}
	rgb.Release()

	if err := setDecoderCSC(decID, int(csc.RGB24)); err != nil {
		t.Fatalf("setDecoderCSC: %v", err)
	}
	_, img, err = decompressFrame(decID, payload)
	if err != nil {
		t.Fatalf("decompressFrame after csc change: %v", err)
	}
	if _, ok := img.(*csc.RGBImage); !ok {
		t.Errorf("Expected RGB output after csc change, got %T", img)
	} else {
		img.(*csc.RGBImage).Release()
	}

	if err := setDecoderCSC(decID, 77); !errors.Is(err, codec.ErrInvalidCSCFormat) {
		t.Errorf("Expected ErrInvalidCSCFormat, got %v", err)
	}
}

func TestCompressConsumesPictureOnBadContext(t *testing.T) {
	encID, err := openEncoder(16, 16, 50, false)
	if err != nil {
		t.Fatalf("openEncoder: %v", err)
	}
	defer destroyContext(encID, encoderContext)

	picID, err := convertRGB(encID, testRGB(16, 16), 16*3)
	if err != nil {
		t.Fatalf("convertRGB: %v", err)
	}

	if _, err := compressPicture(encID+1000, picID, -1); !errors.Is(err, errUnknownHandle) {
		t.Errorf("Expected errUnknownHandle, got %v", err)
	}
	if takePicture(picID) != nil {
		t.Error("Expected picture to be consumed even when the context is invalid")
	}

	picID, err = convertRGB(encID, testRGB(16, 16), 16*3)
	if err != nil {
		t.Fatalf("convertRGB: %v", err)
	}
	if _, err := compressPicture(encID, picID, 101); !errors.Is(err, codec.ErrInvalidQuality) {
		t.Errorf("Expected ErrInvalidQuality, got %v", err)
	}
	if takePicture(picID) != nil {
		t.Error("Expected picture to be consumed on argument error")
	}
}

func TestDoCleanDecoderKeepsHandle(t *testing.T) {
	dec := init_decoder(32, 32, -1)
	if dec == nil {
		t.Fatal("Failed to create decoder context")
	}
	id, _ := handleID(dec)

	do_clean_decoder(dec)
	st, err := lookupContext(id, decoderContext)
	if err != nil {
		t.Fatalf("Expected handle to survive do_clean_decoder: %v", err)
	}
	if _, err := st.dec.Decompress([]byte{1}); !errors.Is(err, codec.ErrContextClosed) {
		t.Errorf("Expected ErrContextClosed, got %v", err)
	}

	clean_decoder(dec)
	if _, err := lookupContext(id, decoderContext); !errors.Is(err, errUnknownHandle) {
		t.Errorf("Expected handle to be retired, got %v", err)
	}
}

// TestCleanedDecoderReinitialises checks that set_decoder_csc_format
// brings a decoder back after do_clean_decoder.
func TestCleanedDecoderReinitialises(t *testing.T) {
	encID, err := openEncoder(32, 16, 90, false)
	if err != nil {
		t.Fatalf("openEncoder: %v", err)
	}
	defer destroyContext(encID, encoderContext)

	picID, err := convertRGB(encID, testRGB(32, 16), 32*3)
	if err != nil {
		t.Fatalf("convertRGB: %v", err)
	}
	data, err := compressPicture(encID, picID, -1)
	if err != nil {
		t.Fatalf("compressPicture: %v", err)
	}
	payload := append([]byte(nil), data...)

	dec := init_decoder(32, 16, -1)
	if dec == nil {
		t.Fatal("Failed to create decoder context")
	}
	defer clean_decoder(dec)
	id, _ := handleID(dec)

	do_clean_decoder(dec)
	if _, _, err := decompressFrame(id, payload); !errors.Is(err, codec.ErrContextClosed) {
		t.Fatalf("Expected ErrContextClosed before re-init, got %v", err)
	}

	set_decoder_csc_format(dec, -1)
	_, img, err := decompressFrame(id, payload)
	if err != nil {
		t.Fatalf("Expected decode after re-init to succeed: %v", err)
	}
	if _, ok := img.(*codec.PlanarView); !ok {
		t.Errorf("Expected planar output, got %T", img)
	}

	// A second clean followed by an RGB request reopens with the new format.
	do_clean_decoder(dec)
	if err := setDecoderCSC(id, int(csc.RGB24)); err != nil {
		t.Fatalf("setDecoderCSC: %v", err)
	}
	_, img, err = decompressFrame(id, payload)
	if err != nil {
		t.Fatalf("decompressFrame: %v", err)
	}
	rgb, ok := img.(*csc.RGBImage)
	if !ok {
		t.Fatalf("Expected RGB output, got %T", img)
	}
	rgb.Release()
}

func TestOutputForCSC(t *testing.T) {
	tests := []struct {
		cscFmt int
		want   codec.OutputFormat
		ok     bool
	}{
		{cscFormatNone, codec.OutputPlanar, true},
		{int(csc.YUV420P), codec.OutputPlanar, true},
		{int(csc.YUV444P), codec.OutputPlanar, true},
		{int(csc.RGB24), codec.OutputRGB24, true},
		{-2, 0, false},
		{1000, 0, false},
	}
	for _, tt := range tests {
		got, err := outputForCSC(tt.cscFmt)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("outputForCSC(%d) = %v, %v; want %v", tt.cscFmt, got, err, tt.want)
		}
		if !tt.ok && !errors.Is(err, codec.ErrInvalidCSCFormat) {
			t.Errorf("outputForCSC(%d) error = %v; want ErrInvalidCSCFormat", tt.cscFmt, err)
		}
	}
}

func TestXMemAlign(t *testing.T) {
	for _, size := range []int{1, 31, 4096, 1 << 20} {
		p := cAlloc(size)
		if p == nil {
			t.Fatalf("cAlloc(%d) returned NULL", size)
		}
		if uintptr(p)%memalign.Alignment != 0 {
			t.Errorf("cAlloc(%d) = %p is not %d-byte aligned", size, p, memalign.Alignment)
		}
		buf := unsafe.Slice((*byte)(p), size)
		buf[0], buf[size-1] = 1, 2
		cFree(p)
	}

	if cAlloc(0) != nil {
		t.Error("Expected NULL for zero-size allocation")
	}
	if xmemalign(0) != nil {
		t.Error("Expected NULL from xmemalign(0)")
	}
	p := xmemalign(64)
	if p == nil {
		t.Fatal("xmemalign(64) returned NULL")
	}
	xmemfree(p)
}

func TestCBufferGrows(t *testing.T) {
	var b cBuffer
	defer b.free()

	small := b.ensure(16)
	if len(small) != 16 {
		t.Fatalf("Expected 16 bytes, got %d", len(small))
	}
	small[0] = 0xAB
	big := b.ensure(1 << 16)
	if len(big) != 1<<16 || big[0] != 0xAB {
		t.Error("Expected grown buffer to keep its contents")
	}
	if b.cap != 1<<16 {
		t.Errorf("Expected capacity %d, got %d", 1<<16, b.cap)
	}
	b.ensure(8)
	if b.cap != 1<<16 {
		t.Error("Expected buffer never to shrink")
	}
}
