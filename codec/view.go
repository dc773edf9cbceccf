package codec

import (
	"github.com/opd-ai/framecodec/csc"
	"github.com/opd-ai/framecodec/memalign"
)

// lease tracks which generation of a context-owned buffer is current.
// Each pipeline call revokes the outstanding lease before doing any work.
type lease struct {
	gen uint64
}

func (l *lease) revoke() {
	l.gen++
}

func (l *lease) current(gen uint64) bool {
	return l != nil && l.gen == gen
}

// Image is the result of Decompress: either a *PlanarView borrowed from the
// decoder or a *csc.RGBImage owned by the caller.
type Image interface {
	Format() csc.PixelFormat
	Width() int
	Height() int
}

var (
	_ Image = (*PlanarView)(nil)
	_ Image = (*csc.RGBImage)(nil)
)

// Bitstream is a borrowed view of an encoder's output buffer. It is valid
// until the next Compress, Close or Destroy on the encoder that returned it.
// Callers must not retain or modify the bytes; use Clone to keep a copy.
type Bitstream struct {
	owner *lease
	gen   uint64
	data  []byte
}

// Valid reports whether the view still refers to the current output.
func (b *Bitstream) Valid() bool {
	return b != nil && b.owner.current(b.gen)
}

// Bytes returns the compressed data, or nil once the view is invalidated.
func (b *Bitstream) Bytes() []byte {
	if !b.Valid() {
		return nil
	}
	return b.data
}

// Len returns the compressed size in bytes, or 0 once invalidated.
func (b *Bitstream) Len() int {
	return len(b.Bytes())
}

// Clone returns a caller-owned copy of the data.
func (b *Bitstream) Clone() ([]byte, error) {
	if !b.Valid() {
		return nil, ErrBufferInvalidated
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out, nil
}

// PlanarView is a borrowed view of a decoder's planar output. It is valid
// until the next Decompress, Close, Reset or Destroy on that decoder.
type PlanarView struct {
	owner *lease
	gen   uint64
	frame csc.Frame
}

// Valid reports whether the view still refers to the current output.
func (v *PlanarView) Valid() bool {
	return v != nil && v.owner.current(v.gen)
}

// Format returns the planar pixel format of the decoded stream.
func (v *PlanarView) Format() csc.PixelFormat { return v.frame.Format }

// Width returns the frame width in pixels.
func (v *PlanarView) Width() int { return v.frame.Width }

// Height returns the frame height in pixels.
func (v *PlanarView) Height() int { return v.frame.Height }

// Plane returns plane i (0 = Y, 1 = U, 2 = V), or nil once invalidated.
func (v *PlanarView) Plane(i int) []byte {
	if !v.Valid() || i < 0 || i > 2 {
		return nil
	}
	return v.frame.Data[i]
}

// Stride returns the row length of plane i in bytes.
func (v *PlanarView) Stride(i int) int {
	if i < 0 || i > 2 {
		return 0
	}
	return v.frame.Stride[i]
}

// Strides returns all three strides.
func (v *PlanarView) Strides() [3]int {
	return v.frame.Stride
}

// Size returns the number of bytes spanned by the three planes.
func (v *PlanarView) Size() int {
	n := 0
	for i := 0; i < 3; i++ {
		_, h := v.frame.Format.PlaneSize(v.frame.Width, v.frame.Height, i)
		n += v.frame.Stride[i] * h
	}
	return n
}

// Frame returns the planes as a csc.Frame for further processing.
func (v *PlanarView) Frame() (csc.Frame, error) {
	if !v.Valid() {
		return csc.Frame{}, ErrBufferInvalidated
	}
	return v.frame, nil
}

func poisonFrame(f csc.Frame) {
	for i := 0; i < 3; i++ {
		memalign.Poison(f.Data[i])
	}
}
