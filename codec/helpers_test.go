package codec

import (
	"errors"

	"github.com/opd-ai/framecodec/csc"
	"github.com/opd-ai/framecodec/engine"
)

var errEngineBroken = errors.New("engine broken")

// failingEncoder rejects every frame.
type failingEncoder struct {
	calls  int
	closed bool
}

func (f *failingEncoder) Encode(csc.Frame, engine.Params) ([]byte, error) {
	f.calls++
	return nil, errEngineBroken
}

func (f *failingEncoder) Close() error {
	f.closed = true
	return nil
}

// recordingEncoder remembers the parameters of the last call and returns a
// fixed payload.
type recordingEncoder struct {
	last    engine.Params
	payload []byte
}

func (r *recordingEncoder) Encode(_ csc.Frame, p engine.Params) ([]byte, error) {
	r.last = p
	return r.payload, nil
}

func (r *recordingEncoder) Close() error { return nil }

func failingEncoderFactory(enc *failingEncoder) engine.EncoderFactory {
	return func(int, int, csc.PixelFormat) (engine.Encoder, error) {
		return enc, nil
	}
}

func brokenEncoderFactory(int, int, csc.PixelFormat) (engine.Encoder, error) {
	return nil, errEngineBroken
}

func brokenDecoderFactory(int, int) (engine.Decoder, error) {
	return nil, errEngineBroken
}

// flatRGB fills a tightly packed RGB24 frame with one colour.
func flatRGB(width, height int, r, g, b byte) []byte {
	buf := make([]byte, width*height*3)
	for i := 0; i < len(buf); i += 3 {
		buf[i], buf[i+1], buf[i+2] = r, g, b
	}
	return buf
}

// texturedRGB returns a frame with gradients and pseudo-random noise so
// that compressed size depends on quality.
func texturedRGB(width, height int, seed uint32) []byte {
	buf := make([]byte, width*height*3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			seed = seed*1664525 + 1013904223
			i := (y*width + x) * 3
			buf[i] = byte(x*4) ^ byte(seed>>27)
			buf[i+1] = byte(y*3+x) ^ byte(seed>>20)&0x1f
			buf[i+2] = byte(255 - x*2 - y)
		}
	}
	return buf
}

func absDiff(a, b byte) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func maxRGBError(a, b []byte) int {
	worst := 0
	for i := range a {
		if d := absDiff(a[i], b[i]); d > worst {
			worst = d
		}
	}
	return worst
}
