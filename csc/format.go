package csc

import (
	"fmt"
	"math"
)

// MaxDimension is the largest supported width or height.
const MaxDimension = 16384

// PixelFormat identifies a pixel layout. The numeric values follow
// libavutil's AVPixelFormat so they can cross the C boundary unchanged.
type PixelFormat int

const (
	// YUV420P is planar YUV with chroma halved in both directions.
	YUV420P PixelFormat = 0
	// RGB24 is packed R, G, B, one byte each.
	RGB24 PixelFormat = 2
	// YUV422P is planar YUV with chroma halved horizontally.
	YUV422P PixelFormat = 4
	// YUV444P is planar YUV with full resolution chroma.
	YUV444P PixelFormat = 5
)

// String returns the conventional name of the format.
func (f PixelFormat) String() string {
	switch f {
	case YUV420P:
		return "YUV420P"
	case RGB24:
		return "RGB24"
	case YUV422P:
		return "YUV422P"
	case YUV444P:
		return "YUV444P"
	default:
		return fmt.Sprintf("Unknown(%d)", int(f))
	}
}

// IsPlanarYUV reports whether f is one of the planar YUV formats.
func (f PixelFormat) IsPlanarYUV() bool {
	switch f {
	case YUV420P, YUV422P, YUV444P:
		return true
	default:
		return false
	}
}

// ChromaShift returns the log2 horizontal and vertical chroma subsampling.
func (f PixelFormat) ChromaShift() (xs, ys uint) {
	switch f {
	case YUV420P:
		return 1, 1
	case YUV422P:
		return 1, 0
	default:
		return 0, 0
	}
}

// PlaneSize returns the width and height in samples of plane i for a frame
// of the given size. Chroma dimensions round up.
func (f PixelFormat) PlaneSize(width, height, i int) (w, h int) {
	if i == 0 {
		return width, height
	}
	xs, ys := f.ChromaShift()
	return (width + (1 << xs) - 1) >> xs, (height + (1 << ys) - 1) >> ys
}

// FrameSize returns the number of samples across all three planes with no
// row padding.
func (f PixelFormat) FrameSize(width, height int) int {
	total := 0
	for i := 0; i < 3; i++ {
		w, h := f.PlaneSize(width, height, i)
		total += w * h
	}
	return total
}

// ValidateGeometry checks that width and height are within 1..MaxDimension.
func ValidateGeometry(width, height int) error {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, width, height)
	}
	return nil
}

// RowSpan returns the bytes covered by rows rows of rowBytes each, stride
// bytes apart. It reports false when the span does not fit in an int.
func RowSpan(rows, stride, rowBytes int) (int, bool) {
	if rows <= 1 {
		return rowBytes, true
	}
	if stride > (math.MaxInt-rowBytes)/(rows-1) {
		return 0, false
	}
	return (rows-1)*stride + rowBytes, true
}
