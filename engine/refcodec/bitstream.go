package refcodec

import (
	"encoding/binary"
	"fmt"

	"github.com/opd-ai/framecodec/csc"
	"github.com/opd-ai/framecodec/engine"
)

const (
	magic      = "FCV1"
	version    = 1
	headerSize = 16

	// MaxStep is the coarsest quantiser step, used at quality 0.
	MaxStep = 32
)

// header is the fixed frame header that precedes the zstd payload.
//
//	0  magic "FCV1"
//	4  version
//	5  pixel format
//	6  quantiser step
//	7  preset
//	8  width  (uint32, big endian)
//	12 height (uint32, big endian)
type header struct {
	format csc.PixelFormat
	step   int
	preset engine.Preset
	width  int
	height int
}

func (h header) appendTo(dst []byte) []byte {
	dst = append(dst, magic...)
	dst = append(dst, version, byte(h.format), byte(h.step), byte(h.preset))
	dst = binary.BigEndian.AppendUint32(dst, uint32(h.width))
	dst = binary.BigEndian.AppendUint32(dst, uint32(h.height))
	return dst
}

func parseHeader(data []byte) (header, error) {
	if len(data) < headerSize {
		return header{}, fmt.Errorf("%w: %d bytes, header needs %d", engine.ErrTruncated, len(data), headerSize)
	}
	if string(data[0:4]) != magic {
		return header{}, fmt.Errorf("%w: bad magic %q", engine.ErrCorruptStream, data[0:4])
	}
	if data[4] != version {
		return header{}, fmt.Errorf("%w: unsupported version %d", engine.ErrCorruptStream, data[4])
	}

	h := header{
		format: csc.PixelFormat(data[5]),
		step:   int(data[6]),
		preset: engine.Preset(data[7]),
		width:  int(binary.BigEndian.Uint32(data[8:12])),
		height: int(binary.BigEndian.Uint32(data[12:16])),
	}
	if !h.format.IsPlanarYUV() {
		return header{}, fmt.Errorf("%w: pixel format %s", engine.ErrCorruptStream, h.format)
	}
	if h.step < 1 || h.step > MaxStep {
		return header{}, fmt.Errorf("%w: quantiser step %d", engine.ErrCorruptStream, h.step)
	}
	return h, nil
}

// QuantStep maps a quality percentage to a quantiser step: 1 at quality
// 100, MaxStep at quality 0.
func QuantStep(quality int) int {
	quality = engine.ClampPercent(quality)
	return 1 + (100-quality)*(MaxStep-1)/100
}

func quantize(v byte, step int) byte {
	return byte((int(v) + step/2) / step)
}

func dequantize(q byte, step int) byte {
	v := int(q) * step
	if v > 255 {
		return 255
	}
	return byte(v)
}
