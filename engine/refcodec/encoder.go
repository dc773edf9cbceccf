package refcodec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/opd-ai/framecodec/csc"
	"github.com/opd-ai/framecodec/engine"
	"github.com/sirupsen/logrus"
)

// Encoder is a lossy intra-only engine. Samples are quantised according to
// quality, turned into left-prediction residuals and entropy coded with
// zstd at a level chosen by the speed preset.
type Encoder struct {
	width  int
	height int
	format csc.PixelFormat

	residual []byte
	out      []byte

	zenc   *zstd.Encoder
	level  zstd.EncoderLevel
	closed bool
}

var _ engine.Encoder = (*Encoder)(nil)

// NewEncoder creates an encoder for width x height frames in format.
func NewEncoder(width, height int, format csc.PixelFormat) (*Encoder, error) {
	if err := csc.ValidateGeometry(width, height); err != nil {
		return nil, err
	}
	if !format.IsPlanarYUV() {
		return nil, fmt.Errorf("%w: %s", csc.ErrUnsupportedFormat, format)
	}

	logrus.WithFields(logrus.Fields{
		"function": "refcodec.NewEncoder",
		"width":    width,
		"height":   height,
		"format":   format.String(),
	}).Debug("Creating reference encoder")

	return &Encoder{
		width:    width,
		height:   height,
		format:   format,
		residual: make([]byte, format.FrameSize(width, height)),
	}, nil
}

// NewEngineEncoder adapts NewEncoder to engine.EncoderFactory.
func NewEngineEncoder(width, height int, format csc.PixelFormat) (engine.Encoder, error) {
	enc, err := NewEncoder(width, height, format)
	if err != nil {
		return nil, err
	}
	return enc, nil
}

// Encode implements engine.Encoder.
func (e *Encoder) Encode(frame csc.Frame, params engine.Params) ([]byte, error) {
	if e.closed {
		return nil, engine.ErrClosed
	}
	if err := frame.Validate(e.width, e.height, e.format); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrGeometryMismatch, err)
	}
	if err := e.ensureLevel(levelForPreset(params.Preset)); err != nil {
		return nil, err
	}

	step := QuantStep(params.Quality)
	e.predict(frame, step)

	hdr := header{
		format: e.format,
		step:   step,
		preset: params.Preset,
		width:  e.width,
		height: e.height,
	}
	e.out = hdr.appendTo(e.out[:0])
	e.out = e.zenc.EncodeAll(e.residual, e.out)
	return e.out, nil
}

// predict fills e.residual with quantised samples minus their left
// neighbour. The first sample of a row is predicted from the first sample
// of the row above.
func (e *Encoder) predict(frame csc.Frame, step int) {
	off := 0
	for i := 0; i < 3; i++ {
		pw, ph := e.format.PlaneSize(e.width, e.height, i)
		stride := frame.Stride[i]
		var above byte
		for y := 0; y < ph; y++ {
			row := frame.Data[i][y*stride : y*stride+pw]
			pred := above
			for x, v := range row {
				q := quantize(v, step)
				if x == 0 {
					above = q
				}
				e.residual[off] = q - pred
				pred = q
				off++
			}
		}
	}
}

func (e *Encoder) ensureLevel(level zstd.EncoderLevel) error {
	if e.zenc != nil && e.level == level {
		return nil
	}
	if e.zenc != nil {
		_ = e.zenc.Close()
	}

	zenc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(level),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return fmt.Errorf("zstd encoder: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Encoder.ensureLevel",
		"level":    level.String(),
	}).Debug("Entropy coder level changed")

	e.zenc = zenc
	e.level = level
	return nil
}

// Close implements engine.Encoder.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.residual = nil
	e.out = nil
	if e.zenc != nil {
		err := e.zenc.Close()
		e.zenc = nil
		return err
	}
	return nil
}

func levelForPreset(p engine.Preset) zstd.EncoderLevel {
	switch {
	case p <= engine.PresetVeryfast:
		return zstd.SpeedFastest
	case p <= engine.PresetMedium:
		return zstd.SpeedDefault
	case p <= engine.PresetSlower:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}
