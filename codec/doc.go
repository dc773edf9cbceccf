// Package codec provides encoder and decoder contexts that sit between a
// raw RGB pixel source or sink and a compression engine.
//
// An Encoder converts packed RGB24 frames to planar YUV and compresses
// them. A Decoder decompresses bitstreams and optionally converts the
// result back to RGB24. Both are bound to one frame size for their whole
// life.
//
// # Buffer Ownership
//
// Results come in two shapes and the type tells you which one you hold:
//
//   - *Bitstream and *PlanarView borrow memory owned by the context. They
//     stay valid only until the next pipeline call on the same context and
//     must never be released by the caller. Valid reports whether a view is
//     still current.
//   - *csc.RGBImage belongs to the caller, who must call Release. Later
//     calls on the context never touch it.
//
// A *csc.Picture returned by RGBToYUV is consumed by Compress, which
// releases it whether or not compression succeeds.
//
// # Encoding
//
//	enc, err := codec.NewEncoder(640, 480, 70, true)
//	if err != nil {
//	    return err
//	}
//	defer enc.Destroy()
//
//	pic, err := enc.RGBToYUV(rgb, 640*3)
//	if err != nil {
//	    return err
//	}
//	bs, err := enc.Compress(pic, -1)
//	if err != nil {
//	    return err
//	}
//	send(bs.Bytes()) // before the next Compress
//
// # Decoding
//
//	dec, err := codec.NewDecoder(640, 480, codec.OutputRGB24)
//	if err != nil {
//	    return err
//	}
//	defer dec.Destroy()
//
//	img, err := dec.Decompress(payload)
//	if err != nil {
//	    return err
//	}
//	rgb := img.(*csc.RGBImage)
//	defer rgb.Release()
//
// # Configuration
//
// DefaultConfig reads FRAMECODEC_SPEED, FRAMECODEC_YUV444_QUALITY,
// FRAMECODEC_YUV422_QUALITY and FRAMECODEC_POISON_BUFFERS. Invalid values
// are logged and ignored. Options passed to NewEncoder and NewDecoder are
// applied on top.
//
// # Thread Safety
//
// Contexts are not safe for concurrent use; callers serialise access to a
// context. Separate contexts are independent.
package codec
