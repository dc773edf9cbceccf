// Package csc converts frames between packed RGB24 and planar YUV.
//
// A Converter is bound to one frame size and one planar format (YUV420P,
// YUV422P or YUV444P). Conversion uses BT.601 limited range coefficients in
// 8-bit fixed point.
//
// # Ownership
//
// The package distinguishes three shapes of pixel data:
//
//   - Frame describes planes it does not own. Engines and decoders hand out
//     Frames over their own reusable memory.
//   - Picture owns its planes. RGBToYUV returns one; it must be released
//     exactly once, normally by the compress call that consumes it.
//   - RGBImage owns a packed RGB24 buffer. YUVToRGB returns one; the caller
//     must Release it and nothing else ever writes to it.
//
// Example:
//
//	conv, err := csc.NewConverter(640, 480, csc.YUV420P, nil)
//	if err != nil {
//	    return err
//	}
//	pic, err := conv.RGBToYUV(rgb, 640*3)
//	if err != nil {
//	    return err
//	}
//	defer pic.Release()
//
//	img, err := conv.YUVToRGB(pic.Frame)
//	if err != nil {
//	    return err
//	}
//	defer img.Release()
package csc
