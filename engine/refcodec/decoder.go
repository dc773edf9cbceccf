package refcodec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/opd-ai/framecodec/csc"
	"github.com/opd-ai/framecodec/engine"
	"github.com/opd-ai/framecodec/memalign"
	"github.com/sirupsen/logrus"
)

const minDecoderMemory = 16 << 20

// Decoder reverses Encoder. Decoded planes live in aligned buffers owned
// by the decoder and are rewritten on every Decode.
type Decoder struct {
	width  int
	height int

	zdec     *zstd.Decoder
	residual []byte

	format csc.PixelFormat
	planes [3][]byte
	stride [3]int
	closed bool
}

var _ engine.Decoder = (*Decoder)(nil)

// NewDecoder creates a decoder for width x height streams.
func NewDecoder(width, height int) (*Decoder, error) {
	if err := csc.ValidateGeometry(width, height); err != nil {
		return nil, err
	}

	// No supported format holds more samples than YUV444P. The floor keeps
	// the limit above the encoder's window size.
	limit := max(uint64(csc.YUV444P.FrameSize(width, height)), minDecoderMemory)
	zdec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "refcodec.NewDecoder",
		"width":    width,
		"height":   height,
	}).Debug("Creating reference decoder")

	return &Decoder{
		width:  width,
		height: height,
		zdec:   zdec,
		format: -1,
	}, nil
}

// NewEngineDecoder adapts NewDecoder to engine.DecoderFactory.
func NewEngineDecoder(width, height int) (engine.Decoder, error) {
	dec, err := NewDecoder(width, height)
	if err != nil {
		return nil, err
	}
	return dec, nil
}

// Decode implements engine.Decoder.
func (d *Decoder) Decode(data []byte) (csc.Frame, error) {
	if d.closed {
		return csc.Frame{}, engine.ErrClosed
	}

	hdr, err := parseHeader(data)
	if err != nil {
		return csc.Frame{}, err
	}
	if hdr.width != d.width || hdr.height != d.height {
		return csc.Frame{}, fmt.Errorf("%w: stream is %dx%d, decoder is %dx%d",
			engine.ErrGeometryMismatch, hdr.width, hdr.height, d.width, d.height)
	}

	res, err := d.zdec.DecodeAll(data[headerSize:], d.residual[:0])
	if err != nil {
		return csc.Frame{}, fmt.Errorf("%w: %v", engine.ErrCorruptStream, err)
	}
	d.residual = res
	if want := hdr.format.FrameSize(d.width, d.height); len(res) != want {
		return csc.Frame{}, fmt.Errorf("%w: payload has %d samples, want %d",
			engine.ErrCorruptStream, len(res), want)
	}

	if err := d.ensurePlanes(hdr.format); err != nil {
		return csc.Frame{}, err
	}
	d.reconstruct(hdr.step)

	return csc.Frame{
		Width:  d.width,
		Height: d.height,
		Format: d.format,
		Data:   d.planes,
		Stride: d.stride,
	}, nil
}

func (d *Decoder) reconstruct(step int) {
	off := 0
	for i := 0; i < 3; i++ {
		pw, ph := d.format.PlaneSize(d.width, d.height, i)
		var above byte
		for y := 0; y < ph; y++ {
			row := d.planes[i][y*d.stride[i] : y*d.stride[i]+pw]
			pred := above
			for x := range row {
				q := d.residual[off] + pred
				if x == 0 {
					above = q
				}
				row[x] = dequantize(q, step)
				pred = q
				off++
			}
		}
	}
}

func (d *Decoder) ensurePlanes(format csc.PixelFormat) error {
	if format == d.format {
		return nil
	}
	d.freePlanes()

	for i := 0; i < 3; i++ {
		pw, ph := format.PlaneSize(d.width, d.height, i)
		stride := memalign.RoundUp(pw)
		buf, err := memalign.Alloc(stride * ph)
		if err != nil {
			d.freePlanes()
			return fmt.Errorf("decoder planes: %w", err)
		}
		d.planes[i] = buf
		d.stride[i] = stride
	}
	d.format = format
	return nil
}

func (d *Decoder) freePlanes() {
	for i := range d.planes {
		memalign.Free(d.planes[i])
		d.planes[i] = nil
		d.stride[i] = 0
	}
	d.format = -1
}

// Close implements engine.Decoder.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.freePlanes()
	d.residual = nil
	d.zdec.Close()
	return nil
}
