package csc

import "errors"

// Geometry and format errors.
var (
	// ErrInvalidGeometry indicates a width or height outside 1..MaxDimension.
	ErrInvalidGeometry = errors.New("invalid frame geometry")

	// ErrUnsupportedFormat indicates a pixel format the converter cannot handle.
	ErrUnsupportedFormat = errors.New("unsupported pixel format")

	// ErrGeometryMismatch indicates input whose size differs from the converter's.
	ErrGeometryMismatch = errors.New("frame geometry mismatch")

	// ErrFormatMismatch indicates input in a different pixel format.
	ErrFormatMismatch = errors.New("pixel format mismatch")
)

// Input buffer errors.
var (
	// ErrStrideTooSmall indicates a row stride shorter than one row of pixels.
	ErrStrideTooSmall = errors.New("stride too small")

	// ErrInputTooSmall indicates a packed input buffer shorter than the frame.
	ErrInputTooSmall = errors.New("input buffer too small")

	// ErrPlaneTooSmall indicates a planar input plane shorter than its geometry.
	ErrPlaneTooSmall = errors.New("plane too small")
)

// ErrAllocation indicates an output buffer could not be allocated.
var ErrAllocation = errors.New("output allocation failed")
