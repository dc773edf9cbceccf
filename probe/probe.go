package probe

import (
	"context"
	"errors"
	"fmt"

	"github.com/opd-ai/framecodec/codec"
	"github.com/opd-ai/framecodec/csc"
	"github.com/opd-ai/framecodec/memalign"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Test image geometry used by SelfTest.
const (
	TestWidth  = 64
	TestHeight = 32
)

// DefaultCandidates are the sizes MaxSize tries, smallest first.
var DefaultCandidates = []int{512, 1024, 2048, 4096, 8192, 16384}

var (
	// ErrWrongFormat indicates an encoder that did not pick the requested
	// pixel format.
	ErrWrongFormat = errors.New("encoder chose an unexpected pixel format")

	// ErrEmptyOutput indicates a successful compress with no data.
	ErrEmptyOutput = errors.New("no compressed data")

	// ErrBadOutput indicates decoded output with the wrong shape.
	ErrBadOutput = errors.New("decoded output does not match the source")

	// ErrNotRejected indicates a mismatched input that was accepted.
	ErrNotRejected = errors.New("mismatched input was not rejected")

	// ErrLeaked indicates converter buffers still outstanding after release.
	ErrLeaked = errors.New("converter buffers were not released")

	// ErrUnusable indicates that not even the smallest candidate size works.
	ErrUnusable = errors.New("codec cannot encode the smallest candidate size")
)

// Formats lists the planar formats SelfTest covers.
var Formats = []csc.PixelFormat{csc.YUV420P, csc.YUV422P, csc.YUV444P}

// Limits are the largest dimensions MaxSize found to work together.
type Limits struct {
	Width  int
	Height int
}

// TestImage returns a packed RGB24 frame with horizontal and vertical
// gradients.
func TestImage(width, height int) []byte {
	buf := make([]byte, width*height*3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 3
			buf[i] = byte(x * 255 / max(width-1, 1))
			buf[i+1] = byte(y * 255 / max(height-1, 1))
			buf[i+2] = byte((x + y) & 0xff)
		}
	}
	return buf
}

// encoderSettings returns an initial quality and csc flag that make an
// encoder pick format, given the thresholds forced by withThresholds.
func encoderSettings(format csc.PixelFormat) (quality int, supportsCSC bool) {
	switch format {
	case csc.YUV444P:
		return 90, true
	case csc.YUV422P:
		return 70, true
	default:
		return 50, false
	}
}

// withThresholds returns a fresh slice so concurrent checks never share a
// backing array.
func withThresholds(opts []codec.Option) []codec.Option {
	out := make([]codec.Option, 0, len(opts)+2)
	out = append(out, opts...)
	return append(out, codec.WithYUV444Quality(80), codec.WithYUV422Quality(60))
}

// SelfTest runs the encode and decode checks for every format in Formats.
func SelfTest(ctx context.Context, opts ...codec.Option) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, format := range Formats {
		format := format
		g.Go(func() error {
			if err := CheckConverter(TestWidth, TestHeight, format); err != nil {
				return fmt.Errorf("%s converter: %w", format, err)
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := checkEncoder(TestWidth, TestHeight, format, true, opts)
			if err != nil {
				return fmt.Errorf("%s encoder: %w", format, err)
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := checkDecoder(TestWidth, TestHeight, format, data, true, opts); err != nil {
				return fmt.Errorf("%s decoder: %w", format, err)
			}
			return nil
		})
	}

	err := g.Wait()
	fields := logrus.Fields{
		"function": "SelfTest",
		"width":    TestWidth,
		"height":   TestHeight,
	}
	if err != nil {
		fields["error"] = err.Error()
		logrus.WithFields(fields).Error("Codec self-test failed")
		return err
	}
	logrus.WithFields(fields).Info("Codec self-test passed")
	return nil
}

// checkEncoder compresses a test image and returns a copy of the
// bitstream. With full set it also verifies that pictures of other sizes
// and formats are rejected.
func checkEncoder(width, height int, format csc.PixelFormat, full bool, opts []codec.Option) ([]byte, error) {
	quality, supportsCSC := encoderSettings(format)
	enc, err := codec.NewEncoder(width, height, quality, supportsCSC, withThresholds(opts)...)
	if err != nil {
		return nil, err
	}
	defer enc.Destroy()

	if enc.PixelFormat() != format {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrWrongFormat, format, enc.PixelFormat())
	}

	pic, err := enc.RGBToYUV(TestImage(width, height), width*3)
	if err != nil {
		return nil, err
	}
	bs, err := enc.Compress(pic, -1)
	if err != nil {
		return nil, err
	}
	if bs.Len() == 0 {
		return nil, ErrEmptyOutput
	}
	data, err := bs.Clone()
	if err != nil {
		return nil, err
	}

	if !full {
		return data, nil
	}

	for _, size := range [][2]int{{width * 2, height / 2}, {width / 2, height * 2}} {
		if csc.ValidateGeometry(size[0], size[1]) != nil {
			continue
		}
		pic, err := csc.NewPicture(size[0], size[1], format, nil)
		if err != nil {
			return nil, err
		}
		if _, err := enc.Compress(pic, -1); !errors.Is(err, codec.ErrGeometryMismatch) {
			return nil, fmt.Errorf("%w: %dx%d picture (err=%v)", ErrNotRejected, size[0], size[1], err)
		}
	}

	wrong := csc.YUV444P
	if format == csc.YUV444P {
		wrong = csc.YUV420P
	}
	pic, err = csc.NewPicture(width, height, wrong, nil)
	if err != nil {
		return nil, err
	}
	if _, err := enc.Compress(pic, -1); !errors.Is(err, codec.ErrGeometryMismatch) {
		return nil, fmt.Errorf("%w: %s picture (err=%v)", ErrNotRejected, wrong, err)
	}
	return data, nil
}

// checkDecoder decodes data to RGB and to planar output. With full set it
// also verifies that junk bytes, and a decoder of another size, are
// rejected.
func checkDecoder(width, height int, format csc.PixelFormat, data []byte, full bool, opts []codec.Option) error {
	dec, err := codec.NewDecoder(width, height, codec.OutputRGB24, opts...)
	if err != nil {
		return err
	}
	defer dec.Destroy()

	img, err := dec.Decompress(data)
	if err != nil {
		return err
	}
	rgb, ok := img.(*csc.RGBImage)
	if !ok {
		return fmt.Errorf("%w: got %T for rgb24 output", ErrBadOutput, img)
	}
	size := rgb.Size()
	rgb.Release()
	if size != width*height*3 || dec.SourceFormat() != format {
		return fmt.Errorf("%w: %d bytes of %s", ErrBadOutput, size, dec.SourceFormat())
	}

	if err := dec.SetCSCFormat(codec.OutputPlanar); err != nil {
		return err
	}
	img, err = dec.Decompress(data)
	if err != nil {
		return err
	}
	if view, ok := img.(*codec.PlanarView); !ok || view.Format() != format {
		return fmt.Errorf("%w: planar output %T %s", ErrBadOutput, img, img.Format())
	}

	if !full {
		return nil
	}
	if _, err := dec.Decompress([]byte("junk")); !errors.Is(err, codec.ErrDecompress) {
		return fmt.Errorf("%w: junk stream (err=%v)", ErrNotRejected, err)
	}

	if csc.ValidateGeometry(width*2, height) != nil {
		return nil
	}
	other, err := codec.NewDecoder(width*2, height, codec.OutputPlanar, opts...)
	if err != nil {
		return err
	}
	defer other.Destroy()
	if _, err := other.Decompress(data); !errors.Is(err, codec.ErrDecompress) {
		return fmt.Errorf("%w: %dx%d stream in %dx%d decoder (err=%v)",
			ErrNotRejected, width, height, width*2, height, err)
	}
	return nil
}

// CheckConverter converts the test image to format and back, checking
// the shape of both outputs, and verifies that inputs of the wrong size
// or format are rejected. Every buffer must be released afterwards.
func CheckConverter(width, height int, format csc.PixelFormat) error {
	tracker := memalign.NewTracker(nil)
	if err := checkConverter(width, height, format, tracker); err != nil {
		return err
	}
	if n := tracker.Outstanding(); n != 0 {
		return fmt.Errorf("%w: %d outstanding", ErrLeaked, n)
	}
	return nil
}

func checkConverter(width, height int, format csc.PixelFormat, alloc memalign.Allocator) error {
	conv, err := csc.NewConverter(width, height, format, alloc)
	if err != nil {
		return err
	}

	pic, err := conv.RGBToYUV(TestImage(width, height), width*3)
	if err != nil {
		return err
	}
	defer pic.Release()
	if pic.Format != format || pic.Width != width || pic.Height != height {
		return fmt.Errorf("%w: %dx%d %s picture", ErrBadOutput, pic.Width, pic.Height, pic.Format)
	}
	for i := 0; i < 3; i++ {
		w, h := format.PlaneSize(width, height, i)
		if pic.Stride[i] < w || len(pic.Data[i]) < pic.Stride[i]*h {
			return fmt.Errorf("%w: plane %d has %d bytes at stride %d", ErrBadOutput, i, len(pic.Data[i]), pic.Stride[i])
		}
	}

	rgb, err := conv.YUVToRGB(pic.Frame)
	if err != nil {
		return err
	}
	size, rgbFormat := rgb.Size(), rgb.Format()
	rgb.Release()
	if size != width*height*3 || rgbFormat != csc.RGB24 {
		return fmt.Errorf("%w: %d bytes of %s", ErrBadOutput, size, rgbFormat)
	}

	if height > 1 {
		if _, err := conv.RGBToYUV(TestImage(width, height/2), width*3); !errors.Is(err, csc.ErrInputTooSmall) {
			return fmt.Errorf("%w: %dx%d rgb input (err=%v)", ErrNotRejected, width, height/2, err)
		}
	}

	if csc.ValidateGeometry(width*2, height) == nil {
		other, err := csc.NewPicture(width*2, height, format, alloc)
		if err != nil {
			return err
		}
		_, err = conv.YUVToRGB(other.Frame)
		other.Release()
		if !errors.Is(err, csc.ErrGeometryMismatch) {
			return fmt.Errorf("%w: %dx%d picture (err=%v)", ErrNotRejected, width*2, height, err)
		}
	}

	wrong := pic.Frame
	wrong.Format = csc.YUV444P
	if format == csc.YUV444P {
		wrong.Format = csc.YUV420P
	}
	if _, err := conv.YUVToRGB(wrong); !errors.Is(err, csc.ErrFormatMismatch) {
		return fmt.Errorf("%w: %s frame (err=%v)", ErrNotRejected, wrong.Format, err)
	}
	return nil
}

// MaxSize finds the largest width, then the largest height, then the
// largest combination of both that format can be encoded at. Candidates
// must be ascending; nil means DefaultCandidates. Probing stops at the
// first failure on each axis.
func MaxSize(ctx context.Context, format csc.PixelFormat, candidates []int, opts ...codec.Option) (Limits, error) {
	if len(candidates) == 0 {
		candidates = DefaultCandidates
	}

	fits := func(w, h int) bool {
		_, err := checkEncoder(w, h, format, false, opts)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "MaxSize",
				"format":   format.String(),
				"width":    w,
				"height":   h,
				"error":    err.Error(),
			}).Debug("Size probe failed")
		}
		return err == nil
	}

	var maxw, maxh int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for _, v := range candidates {
			if err := gctx.Err(); err != nil {
				return err
			}
			if !fits(v, 64) {
				break
			}
			maxw = v
		}
		return nil
	})
	g.Go(func() error {
		for _, v := range candidates {
			if err := gctx.Err(); err != nil {
				return err
			}
			if !fits(64, v) {
				break
			}
			maxh = v
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Limits{}, err
	}
	if maxw == 0 || maxh == 0 {
		return Limits{}, fmt.Errorf("%w: %s at %d", ErrUnusable, format, candidates[0])
	}

	limits := Limits{Width: maxw, Height: maxh}
	limit := min(maxw, maxh)
probe:
	for _, v := range candidates {
		for _, size := range [][2]int{{v, v}, {v * 2, v}} {
			if size[0] > limit || size[1] > limit {
				continue
			}
			if err := ctx.Err(); err != nil {
				return Limits{}, err
			}
			w, h := min(maxw, size[0]), min(maxh, size[1])
			if !fits(w, h) {
				break probe
			}
			limits = Limits{Width: w, Height: h}
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":   "MaxSize",
		"format":     format.String(),
		"max_width":  maxw,
		"max_height": maxh,
		"width":      limits.Width,
		"height":     limits.Height,
	}).Info("Probed maximum frame size")
	return limits, nil
}
