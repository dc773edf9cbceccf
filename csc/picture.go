package csc

import (
	"fmt"

	"github.com/opd-ai/framecodec/memalign"
)

// Frame describes planar image data it does not own.
type Frame struct {
	Width  int
	Height int
	Format PixelFormat
	Data   [3][]byte
	Stride [3]int
}

// Validate checks that f has the expected geometry and format and that
// each plane is large enough for its stride.
func (f *Frame) Validate(width, height int, format PixelFormat) error {
	if f.Width != width || f.Height != height {
		return fmt.Errorf("%w: expected %dx%d, got %dx%d", ErrGeometryMismatch, width, height, f.Width, f.Height)
	}
	if f.Format != format {
		return fmt.Errorf("%w: expected %s, got %s", ErrFormatMismatch, format, f.Format)
	}
	return checkPlanes(f.Data, f.Stride, width, height, format)
}

func checkPlanes(data [3][]byte, stride [3]int, width, height int, format PixelFormat) error {
	for i := 0; i < 3; i++ {
		w, h := format.PlaneSize(width, height, i)
		if stride[i] < w {
			return fmt.Errorf("%w: plane %d stride %d < %d", ErrStrideTooSmall, i, stride[i], w)
		}
		if need, ok := RowSpan(h, stride[i], w); !ok || len(data[i]) < need {
			return fmt.Errorf("%w: plane %d has %d bytes at stride %d", ErrPlaneTooSmall, i, len(data[i]), stride[i])
		}
	}
	return nil
}

// Picture is a planar image that owns its memory. Every plane starts on an
// aligned boundary and every stride is a multiple of memalign.Alignment.
//
// A Picture must be released exactly once, either directly or by the
// compress call that consumes it.
type Picture struct {
	Frame
	block    []byte
	alloc    memalign.Allocator
	released bool
}

// NewPicture allocates a picture for the given geometry and planar format.
func NewPicture(width, height int, format PixelFormat, alloc memalign.Allocator) (*Picture, error) {
	if err := ValidateGeometry(width, height); err != nil {
		return nil, err
	}
	if !format.IsPlanarYUV() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if alloc == nil {
		alloc = memalign.Heap{}
	}

	var strides, offsets [3]int
	total := 0
	for i := 0; i < 3; i++ {
		w, h := format.PlaneSize(width, height, i)
		strides[i] = memalign.RoundUp(w)
		offsets[i] = total
		total += strides[i] * h
	}

	block, err := alloc.Alloc(total)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}

	p := &Picture{
		Frame: Frame{
			Width:  width,
			Height: height,
			Format: format,
			Stride: strides,
		},
		block: block,
		alloc: alloc,
	}
	for i := 0; i < 3; i++ {
		_, h := format.PlaneSize(width, height, i)
		p.Data[i] = block[offsets[i] : offsets[i]+strides[i]*h : offsets[i]+strides[i]*h]
	}
	return p, nil
}

// Release returns the picture memory to its allocator. Calling Release on
// an already released picture has no effect.
func (p *Picture) Release() {
	if p == nil || p.released {
		return
	}
	p.released = true
	p.alloc.Free(p.block)
	p.block = nil
	p.Data = [3][]byte{}
}

// Released reports whether Release has been called.
func (p *Picture) Released() bool {
	return p == nil || p.released
}

// RGBImage is a packed RGB24 image owned by the caller, who must call
// Release when done with it. Nothing else ever writes to it.
type RGBImage struct {
	width    int
	height   int
	stride   int
	data     []byte
	alloc    memalign.Allocator
	released bool
}

// Format always returns RGB24.
func (r *RGBImage) Format() PixelFormat { return RGB24 }

// Width returns the image width in pixels.
func (r *RGBImage) Width() int { return r.width }

// Height returns the image height in pixels.
func (r *RGBImage) Height() int { return r.height }

// Stride returns the row length in bytes.
func (r *RGBImage) Stride() int { return r.stride }

// Size returns the buffer length in bytes.
func (r *RGBImage) Size() int { return len(r.data) }

// Bytes returns the pixel data, or nil once released.
func (r *RGBImage) Bytes() []byte { return r.data }

// Release returns the buffer to its allocator. Subsequent calls are no-ops.
func (r *RGBImage) Release() {
	if r == nil || r.released {
		return
	}
	r.released = true
	r.alloc.Free(r.data)
	r.data = nil
}
