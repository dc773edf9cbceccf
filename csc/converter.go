package csc

import (
	"fmt"

	"github.com/opd-ai/framecodec/memalign"
	"github.com/sirupsen/logrus"
)

// Converter converts between packed RGB24 and one planar YUV format at a
// fixed frame size. It holds no per-call state; each call allocates its
// output from the converter's allocator.
type Converter struct {
	width  int
	height int
	format PixelFormat
	alloc  memalign.Allocator
}

// NewConverter creates a converter for width x height frames in format.
// A nil allocator means memalign.Heap.
func NewConverter(width, height int, format PixelFormat, alloc memalign.Allocator) (*Converter, error) {
	if err := ValidateGeometry(width, height); err != nil {
		return nil, err
	}
	if !format.IsPlanarYUV() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if alloc == nil {
		alloc = memalign.Heap{}
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewConverter",
		"width":    width,
		"height":   height,
		"format":   format.String(),
	}).Debug("Created colorspace converter")

	return &Converter{
		width:  width,
		height: height,
		format: format,
		alloc:  alloc,
	}, nil
}

// Format returns the planar format the converter produces and consumes.
func (c *Converter) Format() PixelFormat {
	return c.format
}

// Size returns the frame geometry.
func (c *Converter) Size() (width, height int) {
	return c.width, c.height
}

// RGBToYUV converts a packed RGB24 frame into a newly allocated planar
// picture. Rows are stride bytes apart; the frame size comes from the
// converter. Ownership of the picture passes to the caller.
//
// Input that does not match the converter geometry is rejected. Failing to
// allocate the picture is fatal: it panics through logrus.
func (c *Converter) RGBToYUV(in []byte, stride int) (*Picture, error) {
	if stride < c.width*3 {
		return nil, fmt.Errorf("%w: %d < %d", ErrStrideTooSmall, stride, c.width*3)
	}
	if need, ok := RowSpan(c.height, stride, c.width*3); !ok || len(in) < need {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d at stride %d",
			ErrInputTooSmall, len(in), c.width, c.height, stride)
	}

	pic, err := NewPicture(c.width, c.height, c.format, c.alloc)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Converter.RGBToYUV",
			"width":    c.width,
			"height":   c.height,
			"format":   c.format.String(),
			"error":    err.Error(),
		}).Panic("Picture allocation failed")
	}

	c.rgbToLuma(in, stride, pic)
	c.rgbToChroma(in, stride, pic)
	return pic, nil
}

func (c *Converter) rgbToLuma(in []byte, stride int, pic *Picture) {
	ys := pic.Stride[0]
	for y := 0; y < c.height; y++ {
		src := in[y*stride : y*stride+c.width*3]
		dst := pic.Data[0][y*ys : y*ys+c.width]
		for x := range dst {
			r, g, b := int(src[3*x]), int(src[3*x+1]), int(src[3*x+2])
			dst[x] = byte(((66*r + 129*g + 25*b + 128) >> 8) + 16)
		}
	}
}

// rgbToChroma averages each subsampling block before converting, clamping
// blocks at the right and bottom edges of odd sized frames.
func (c *Converter) rgbToChroma(in []byte, stride int, pic *Picture) {
	xs, ys := c.format.ChromaShift()
	cw, ch := c.format.PlaneSize(c.width, c.height, 1)
	us, vs := pic.Stride[1], pic.Stride[2]

	for cy := 0; cy < ch; cy++ {
		y0 := cy << ys
		y1 := min(y0+(1<<ys), c.height)
		for cx := 0; cx < cw; cx++ {
			x0 := cx << xs
			x1 := min(x0+(1<<xs), c.width)

			var sr, sg, sb, n int
			for y := y0; y < y1; y++ {
				row := in[y*stride:]
				for x := x0; x < x1; x++ {
					sr += int(row[3*x])
					sg += int(row[3*x+1])
					sb += int(row[3*x+2])
					n++
				}
			}
			r, g, b := (sr+n/2)/n, (sg+n/2)/n, (sb+n/2)/n

			pic.Data[1][cy*us+cx] = byte(((-38*r - 74*g + 112*b + 128) >> 8) + 128)
			pic.Data[2][cy*vs+cx] = byte(((112*r - 94*g - 18*b + 128) >> 8) + 128)
		}
	}
}

// YUVToRGB converts a planar frame into a newly allocated packed RGB24
// image owned by the caller. The frame must match the converter's geometry
// and format.
func (c *Converter) YUVToRGB(f Frame) (*RGBImage, error) {
	if err := f.Validate(c.width, c.height, c.format); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Converter.YUVToRGB",
			"error":    err.Error(),
		}).Warn("Rejected planar input")
		return nil, err
	}

	stride := c.width * 3
	buf, err := c.alloc.Alloc(stride * c.height)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}

	xs, ys := c.format.ChromaShift()
	for y := 0; y < c.height; y++ {
		yrow := f.Data[0][y*f.Stride[0]:]
		urow := f.Data[1][(y>>ys)*f.Stride[1]:]
		vrow := f.Data[2][(y>>ys)*f.Stride[2]:]
		dst := buf[y*stride : (y+1)*stride]
		for x := 0; x < c.width; x++ {
			cc := 298 * (int(yrow[x]) - 16)
			d := int(urow[x>>xs]) - 128
			e := int(vrow[x>>xs]) - 128
			dst[3*x] = clamp((cc + 409*e + 128) >> 8)
			dst[3*x+1] = clamp((cc - 100*d - 208*e + 128) >> 8)
			dst[3*x+2] = clamp((cc + 516*d + 128) >> 8)
		}
	}

	return &RGBImage{
		width:  c.width,
		height: c.height,
		stride: stride,
		data:   buf,
		alloc:  c.alloc,
	}, nil
}

func clamp(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
