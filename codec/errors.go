package codec

import "errors"

// Sentinel errors for codec operations.
// These errors enable reliable error classification using errors.Is().

// Initialization errors.
var (
	// ErrInvalidGeometry indicates a non-positive or oversized width or height.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrInvalidQuality indicates a quality outside 0..100 (or -1 for overrides).
	ErrInvalidQuality = errors.New("invalid quality")

	// ErrInvalidCSCFormat indicates an unknown decoder output format.
	ErrInvalidCSCFormat = errors.New("invalid csc format")

	// ErrEngineInit indicates the compression engine failed to start.
	ErrEngineInit = errors.New("engine initialization failed")
)

// Lifecycle errors.
var (
	// ErrContextClosed indicates use of a context after Close.
	ErrContextClosed = errors.New("context closed")

	// ErrContextDestroyed indicates use of a context after Destroy.
	ErrContextDestroyed = errors.New("context destroyed")
)

// Pipeline errors.
var (
	// ErrNilPicture indicates Compress was called without a picture.
	ErrNilPicture = errors.New("nil picture")

	// ErrPictureReleased indicates a picture that was already consumed.
	ErrPictureReleased = errors.New("picture already released")

	// ErrGeometryMismatch indicates pixel data whose size or format differs
	// from the context configuration.
	ErrGeometryMismatch = errors.New("geometry mismatch")

	// ErrCompress indicates the engine failed to compress a frame.
	ErrCompress = errors.New("compression failed")

	// ErrEmptyInput indicates Decompress was called with no data.
	ErrEmptyInput = errors.New("empty input")

	// ErrDecompress indicates the engine failed to decompress a bitstream.
	ErrDecompress = errors.New("decompression failed")

	// ErrConversion indicates a colorspace conversion failure.
	ErrConversion = errors.New("colorspace conversion failed")
)

// ErrBufferInvalidated is returned when reading a borrowed buffer after the
// context that lent it has moved on to its next call.
var ErrBufferInvalidated = errors.New("buffer invalidated by a later call")
