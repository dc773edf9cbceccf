// Package engine defines the compression capabilities the codec layer
// drives, and the speed/quality vocabulary shared with them.
//
// An engine is a black box: the codec context hands it planar frames and
// receives a bitstream, or hands it a bitstream and receives planar frames.
// Buffers returned by an engine belong to the engine and stay valid only
// until its next Encode or Decode call.
package engine

import (
	"errors"

	"github.com/opd-ai/framecodec/csc"
)

// Errors engines report. Implementations wrap these with detail.
var (
	// ErrClosed indicates use of an engine after Close.
	ErrClosed = errors.New("engine closed")

	// ErrGeometryMismatch indicates a frame or stream whose size or format
	// differs from the engine configuration.
	ErrGeometryMismatch = errors.New("geometry mismatch")

	// ErrTruncated indicates a bitstream too short to hold a frame.
	ErrTruncated = errors.New("truncated bitstream")

	// ErrCorruptStream indicates a bitstream that cannot be decoded.
	ErrCorruptStream = errors.New("corrupt bitstream")
)

// Params are the per-call encoder settings.
type Params struct {
	// Quality is 0 (smallest output) to 100 (best fidelity).
	Quality int
	// Preset trades encode time against compression.
	Preset Preset
}

// Encoder compresses planar frames of one fixed geometry and format.
type Encoder interface {
	// Encode compresses frame. The returned slice is owned by the encoder
	// and is overwritten by the next call.
	Encode(frame csc.Frame, params Params) ([]byte, error)
	// Close releases engine resources.
	Close() error
}

// Decoder decompresses bitstreams of one fixed geometry.
type Decoder interface {
	// Decode decompresses data. The returned planes are owned by the
	// decoder and are overwritten by the next call.
	Decode(data []byte) (csc.Frame, error)
	// Close releases engine resources.
	Close() error
}

// EncoderFactory creates an encoder, the "init(width, height, pixfmt)"
// capability.
type EncoderFactory func(width, height int, format csc.PixelFormat) (Encoder, error)

// DecoderFactory creates a decoder, the "init(width, height)" capability.
type DecoderFactory func(width, height int) (Decoder, error)
