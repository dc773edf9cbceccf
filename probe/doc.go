// Package probe checks that the codec works on this machine and finds the
// largest frame size it accepts.
//
// SelfTest pushes a 64x32 test image through an encoder and decoder for
// every planar format, and verifies that pictures and bitstreams of the
// wrong size are rejected rather than misread, as are junk bytes.
// CheckConverter does the same for the colorspace converter alone.
// MaxSize grows the frame width, then the height, then both, until
// encoding fails.
//
// Each check uses its own contexts, so independent checks run on separate
// goroutines.
package probe
