package codec

import (
	"fmt"

	"github.com/opd-ai/framecodec/csc"
	"github.com/opd-ai/framecodec/engine"
	"github.com/sirupsen/logrus"
)

// OutputFormat selects what Decompress hands back.
type OutputFormat int

const (
	// OutputPlanar returns the decoder's planes as a borrowed *PlanarView.
	OutputPlanar OutputFormat = iota
	// OutputRGB24 converts to a caller-owned *csc.RGBImage.
	OutputRGB24
)

// String returns the name of the output format.
func (o OutputFormat) String() string {
	switch o {
	case OutputPlanar:
		return "planar"
	case OutputRGB24:
		return "rgb24"
	default:
		return fmt.Sprintf("OutputFormat(%d)", int(o))
	}
}

// Valid reports whether o is a known output format.
func (o OutputFormat) Valid() bool {
	return o == OutputPlanar || o == OutputRGB24
}

// DecodeContext is the decoder half of the codec.
//
// A DecodeContext is not safe for concurrent use. In particular
// SetCSCFormat must not be called while a Decompress on the same context
// is running.
type DecodeContext interface {
	Width() int
	Height() int
	Output() OutputFormat
	SourceFormat() csc.PixelFormat
	SetCSCFormat(output OutputFormat) error
	Decompress(data []byte) (Image, error)
	YUVToRGB(planes [3][]byte, strides [3]int) (*csc.RGBImage, error)
	Close() error
	Reset(output OutputFormat) error
	Destroy() error
}

var _ DecodeContext = (*Decoder)(nil)

// Decoder implements DecodeContext on top of an engine.Decoder.
type Decoder struct {
	cfg    *Config
	width  int
	height int
	output OutputFormat
	source csc.PixelFormat

	engine engine.Decoder
	conv   *csc.Converter

	last  csc.Frame
	lease lease

	closed    bool
	destroyed bool
}

// NewDecoder creates a decoder context for width x height streams.
func NewDecoder(width, height int, output OutputFormat, opts ...Option) (*Decoder, error) {
	if err := csc.ValidateGeometry(width, height); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	if !output.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCSCFormat, output)
	}

	d := &Decoder{
		cfg:    newConfig(opts),
		width:  width,
		height: height,
		closed: true,
	}
	d.source = d.cfg.SourceFormat
	if err := d.open(output); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Decoder) open(output OutputFormat) error {
	eng, err := d.cfg.DecoderFactory(d.width, d.height)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Decoder.open",
			"width":    d.width,
			"height":   d.height,
			"error":    err.Error(),
		}).Error("Decompression engine failed to initialize")
		return fmt.Errorf("%w: %v", ErrEngineInit, err)
	}

	d.engine = eng
	d.output = output
	d.closed = false

	logrus.WithFields(logrus.Fields{
		"function": "Decoder.open",
		"width":    d.width,
		"height":   d.height,
		"output":   output.String(),
	}).Info("Decoder context ready")
	return nil
}

// Width returns the configured frame width.
func (d *Decoder) Width() int { return d.width }

// Height returns the configured frame height.
func (d *Decoder) Height() int { return d.height }

// Output returns the current output format.
func (d *Decoder) Output() OutputFormat { return d.output }

// SourceFormat returns the planar format of the most recently decoded
// stream, or the configured initial format before the first decode.
func (d *Decoder) SourceFormat() csc.PixelFormat { return d.source }

// Closed reports whether the engine is torn down and needs a Reset.
func (d *Decoder) Closed() bool { return d.closed }

// SetCSCFormat changes the output format of the next Decompress.
func (d *Decoder) SetCSCFormat(output OutputFormat) error {
	if d.destroyed {
		return ErrContextDestroyed
	}
	if !output.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidCSCFormat, output)
	}
	if output != d.output {
		logrus.WithFields(logrus.Fields{
			"function": "Decoder.SetCSCFormat",
			"from":     d.output.String(),
			"to":       output.String(),
		}).Debug("Decoder output format changed")
	}
	d.output = output
	return nil
}

// Decompress decodes one compressed frame.
//
// With OutputPlanar the result is a *PlanarView over decoder memory that
// the next call invalidates. With OutputRGB24 it is a *csc.RGBImage the
// caller must Release.
func (d *Decoder) Decompress(data []byte) (Image, error) {
	d.invalidate()

	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	frame, err := d.engine.Decode(data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Decoder.Decompress",
			"size":     len(data),
			"error":    err.Error(),
		}).Warn("Failed to decode frame")
		return nil, fmt.Errorf("%w: %w", ErrDecompress, err)
	}
	if frame.Width != d.width || frame.Height != d.height {
		return nil, fmt.Errorf("%w: decoded %dx%d, expected %dx%d",
			ErrGeometryMismatch, frame.Width, frame.Height, d.width, d.height)
	}
	d.source = frame.Format

	logrus.WithFields(logrus.Fields{
		"function": "Decoder.Decompress",
		"size":     len(data),
		"format":   frame.Format.String(),
		"output":   d.output.String(),
	}).Debug("Frame decoded")

	if d.output == OutputRGB24 {
		return d.convert(frame)
	}

	d.last = frame
	return &PlanarView{owner: &d.lease, gen: d.lease.gen, frame: frame}, nil
}

// YUVToRGB converts three planes in the source format to a caller-owned
// RGB24 image.
func (d *Decoder) YUVToRGB(planes [3][]byte, strides [3]int) (*csc.RGBImage, error) {
	if d.destroyed {
		return nil, ErrContextDestroyed
	}
	return d.convert(csc.Frame{
		Width:  d.width,
		Height: d.height,
		Format: d.source,
		Data:   planes,
		Stride: strides,
	})
}

func (d *Decoder) convert(f csc.Frame) (*csc.RGBImage, error) {
	if d.conv == nil || d.conv.Format() != f.Format {
		conv, err := csc.NewConverter(d.width, d.height, f.Format, d.cfg.Allocator)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConversion, err)
		}
		d.conv = conv
	}

	img, err := d.conv.YUVToRGB(f)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Decoder.convert",
			"format":   f.Format.String(),
			"error":    err.Error(),
		}).Warn("Colorspace conversion failed")
		return nil, fmt.Errorf("%w: %w", ErrConversion, err)
	}
	return img, nil
}

func (d *Decoder) invalidate() {
	d.lease.revoke()
	if d.cfg.PoisonBuffers {
		poisonFrame(d.last)
	}
	d.last = csc.Frame{}
}

func (d *Decoder) checkOpen() error {
	switch {
	case d.destroyed:
		return ErrContextDestroyed
	case d.closed:
		return ErrContextClosed
	}
	return nil
}

// Close tears down the engine but keeps the Decoder itself usable with
// Reset. Closing twice is a no-op.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	d.invalidate()
	d.closed = true
	d.conv = nil

	var err error
	if d.engine != nil {
		err = d.engine.Close()
		d.engine = nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "Decoder.Close",
		"width":    d.width,
		"height":   d.height,
	}).Info("Decoder context closed")
	return err
}

// Reset closes the decoder if needed and starts a fresh engine with the
// given output format.
func (d *Decoder) Reset(output OutputFormat) error {
	if d.destroyed {
		return ErrContextDestroyed
	}
	if !output.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidCSCFormat, output)
	}
	if err := d.Close(); err != nil {
		return err
	}
	d.source = d.cfg.SourceFormat
	return d.open(output)
}

// Destroy closes the decoder and retires it; every later call returns
// ErrContextDestroyed.
func (d *Decoder) Destroy() error {
	if d.destroyed {
		return nil
	}
	err := d.Close()
	d.destroyed = true
	return err
}
