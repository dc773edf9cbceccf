package codec

import (
	"fmt"

	"github.com/opd-ai/framecodec/csc"
	"github.com/opd-ai/framecodec/engine"
	"github.com/opd-ai/framecodec/memalign"
	"github.com/sirupsen/logrus"
)

// EncodeContext is the encoder half of the codec: one geometry, one pixel
// format, tunable speed and quality, and a reusable bitstream buffer.
//
// An EncodeContext is not safe for concurrent use. Distinct contexts share
// no state and may run on separate goroutines.
type EncodeContext interface {
	Width() int
	Height() int
	PixelFormat() csc.PixelFormat
	Quality() int
	Speed() int
	Preset() engine.Preset
	SetSpeed(pct int)
	SetQuality(pct int)
	RGBToYUV(in []byte, stride int) (*csc.Picture, error)
	Compress(pic *csc.Picture, qualityOverride int) (*Bitstream, error)
	Close() error
	Destroy() error
}

var _ EncodeContext = (*Encoder)(nil)

// Encoder implements EncodeContext on top of an engine.Encoder.
type Encoder struct {
	cfg    *Config
	width  int
	height int
	format csc.PixelFormat

	quality int
	speed   int

	conv   *csc.Converter
	engine engine.Encoder

	out    []byte
	outLen int
	lease  lease

	closed    bool
	destroyed bool
}

// NewEncoder creates an encoder context for width x height frames.
//
// When supportsCSC is false the context always uses YUV420P. Otherwise the
// format follows initialQuality: at or above the configured YUV444 threshold
// it picks YUV444P, at or above the YUV422 threshold YUV422P, else YUV420P.
// The format never changes afterwards.
func NewEncoder(width, height, initialQuality int, supportsCSC bool, opts ...Option) (*Encoder, error) {
	if err := csc.ValidateGeometry(width, height); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	if initialQuality < 0 || initialQuality > 100 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuality, initialQuality)
	}

	cfg := newConfig(opts)
	format := chooseFormat(initialQuality, supportsCSC, cfg)

	logrus.WithFields(logrus.Fields{
		"function":     "NewEncoder",
		"width":        width,
		"height":       height,
		"quality":      initialQuality,
		"speed":        cfg.Speed,
		"supports_csc": supportsCSC,
		"format":       format.String(),
	}).Info("Creating encoder context")

	conv, err := csc.NewConverter(width, height, format, cfg.Allocator)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}

	eng, err := cfg.EncoderFactory(width, height, format)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewEncoder",
			"error":    err.Error(),
		}).Error("Compression engine failed to initialize")
		return nil, fmt.Errorf("%w: %v", ErrEngineInit, err)
	}

	e := &Encoder{
		cfg:     cfg,
		width:   width,
		height:  height,
		format:  format,
		quality: initialQuality,
		speed:   cfg.Speed,
		conv:    conv,
		engine:  eng,
	}
	if err := e.ensureOutput(initialOutputSize(format.FrameSize(width, height))); err != nil {
		eng.Close()
		return nil, err
	}
	return e, nil
}

func chooseFormat(quality int, supportsCSC bool, cfg *Config) csc.PixelFormat {
	switch {
	case !supportsCSC:
		return csc.YUV420P
	case quality >= cfg.YUV444Quality:
		return csc.YUV444P
	case quality >= cfg.YUV422Quality:
		return csc.YUV422P
	default:
		return csc.YUV420P
	}
}

// initialOutputSize leaves room for incompressible frames plus headers.
func initialOutputSize(frameSize int) int {
	return frameSize + frameSize/64 + 1024
}

// Width returns the configured frame width.
func (e *Encoder) Width() int { return e.width }

// Height returns the configured frame height.
func (e *Encoder) Height() int { return e.height }

// PixelFormat returns the planar format chosen at creation.
func (e *Encoder) PixelFormat() csc.PixelFormat { return e.format }

// Quality returns the persistent quality setting.
func (e *Encoder) Quality() int { return e.quality }

// Speed returns the speed setting.
func (e *Encoder) Speed() int { return e.speed }

// Preset returns the engine preset the current speed maps to.
func (e *Encoder) Preset() engine.Preset { return engine.PresetForSpeed(e.speed) }

// SetSpeed sets the encoding speed, clamped to 0..100. 100 is the fastest
// preset. The change applies from the next Compress.
func (e *Encoder) SetSpeed(pct int) {
	e.speed = engine.ClampPercent(pct)
	logrus.WithFields(logrus.Fields{
		"function": "Encoder.SetSpeed",
		"speed":    e.speed,
		"preset":   e.Preset().String(),
	}).Debug("Encoding speed changed")
}

// SetQuality sets the persistent quality, clamped to 0..100. The pixel
// format is not renegotiated.
func (e *Encoder) SetQuality(pct int) {
	e.quality = engine.ClampPercent(pct)
	logrus.WithFields(logrus.Fields{
		"function": "Encoder.SetQuality",
		"quality":  e.quality,
	}).Debug("Encoding quality changed")
}

// RGBToYUV converts a packed RGB24 frame into a new Picture in the
// context's pixel format. The picture must be passed to Compress or
// released by the caller.
//
// Running out of memory here panics.
func (e *Encoder) RGBToYUV(in []byte, stride int) (*csc.Picture, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	pic, err := e.conv.RGBToYUV(in, stride)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Encoder.RGBToYUV",
			"stride":   stride,
			"size":     len(in),
			"error":    err.Error(),
		}).Warn("Rejected RGB input")
		return nil, fmt.Errorf("%w: %w", ErrConversion, err)
	}
	return pic, nil
}

// Compress consumes pic and returns a view of the compressed frame.
//
// pic is released on every path, including argument errors. The previous
// Bitstream from this context is invalidated before any work is done.
// qualityOverride is -1 to use the persistent quality, or 0..100 to
// override it for this call only.
func (e *Encoder) Compress(pic *csc.Picture, qualityOverride int) (*Bitstream, error) {
	defer pic.Release()
	e.invalidate()

	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if pic == nil {
		return nil, ErrNilPicture
	}
	if pic.Released() {
		return nil, ErrPictureReleased
	}

	quality := e.quality
	if qualityOverride != -1 {
		if qualityOverride < 0 || qualityOverride > 100 {
			logrus.WithFields(logrus.Fields{
				"function": "Encoder.Compress",
				"override": qualityOverride,
			}).Warn("Quality override out of range")
			return nil, fmt.Errorf("%w: override %d", ErrInvalidQuality, qualityOverride)
		}
		quality = qualityOverride
	}

	if err := pic.Frame.Validate(e.width, e.height, e.format); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Encoder.Compress",
			"width":    pic.Width,
			"height":   pic.Height,
			"format":   pic.Format.String(),
			"error":    err.Error(),
		}).Warn("Picture does not match encoder geometry")
		return nil, fmt.Errorf("%w: %v", ErrGeometryMismatch, err)
	}

	params := engine.Params{Quality: quality, Preset: e.Preset()}
	data, err := e.engine.Encode(pic.Frame, params)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Encoder.Compress",
			"quality":  quality,
			"preset":   params.Preset.String(),
			"error":    err.Error(),
		}).Error("Compression engine failed")
		return nil, fmt.Errorf("%w: %w", ErrCompress, err)
	}

	if err := e.ensureOutput(len(data)); err != nil {
		return nil, err
	}
	e.outLen = copy(e.out, data)

	logrus.WithFields(logrus.Fields{
		"function": "Encoder.Compress",
		"quality":  quality,
		"preset":   params.Preset.String(),
		"size":     e.outLen,
	}).Debug("Frame compressed")

	return &Bitstream{
		owner: &e.lease,
		gen:   e.lease.gen,
		data:  e.out[:e.outLen:e.outLen],
	}, nil
}

// invalidate revokes the outstanding Bitstream and poisons its bytes when
// configured to.
func (e *Encoder) invalidate() {
	e.lease.revoke()
	if e.cfg.PoisonBuffers && e.outLen > 0 {
		memalign.Poison(e.out[:e.outLen])
	}
	e.outLen = 0
}

// ensureOutput grows the output buffer to at least n bytes. It never
// shrinks.
func (e *Encoder) ensureOutput(n int) error {
	if n <= len(e.out) {
		return nil
	}
	buf, err := e.cfg.Allocator.Alloc(memalign.RoundUp(n))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Encoder.ensureOutput",
			"size":     n,
			"error":    err.Error(),
		}).Error("Failed to grow bitstream buffer")
		return fmt.Errorf("%w: %v", ErrCompress, err)
	}
	if e.out != nil {
		e.cfg.Allocator.Free(e.out)
	}
	e.out = buf
	return nil
}

func (e *Encoder) checkOpen() error {
	switch {
	case e.destroyed:
		return ErrContextDestroyed
	case e.closed:
		return ErrContextClosed
	}
	return nil
}

// Close releases the engine and the bitstream buffer. Later calls return
// ErrContextClosed. Closing twice is a no-op.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.invalidate()
	e.closed = true

	var err error
	if e.engine != nil {
		err = e.engine.Close()
		e.engine = nil
	}
	if e.out != nil {
		e.cfg.Allocator.Free(e.out)
		e.out = nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "Encoder.Close",
		"width":    e.width,
		"height":   e.height,
	}).Info("Encoder context closed")
	return err
}

// Destroy closes the context and retires it; every later call returns
// ErrContextDestroyed.
func (e *Encoder) Destroy() error {
	if e.destroyed {
		return nil
	}
	err := e.Close()
	e.destroyed = true
	return err
}
