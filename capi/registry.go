package main

import (
	"errors"
	"fmt"
	"sync"

	"github.com/opd-ai/framecodec/codec"
	"github.com/opd-ai/framecodec/csc"
	"github.com/sirupsen/logrus"
)

// cscFormatNone asks a decoder for planar output.
const cscFormatNone = -1

var (
	errUnknownHandle = errors.New("unknown handle")
	errWrongKind     = errors.New("handle refers to the other codec direction")
)

type contextKind int

const (
	encoderContext contextKind = iota + 1
	decoderContext
)

// contextState is what a C context handle maps to. The C-side buffers
// hold copies of context-owned output, valid until the next call.
type contextState struct {
	kind contextKind
	enc  *codec.Encoder
	dec  *codec.Decoder
	out  cBuffer
}

// Global handle registry for C API compatibility. C callers only ever see
// a small C allocation holding the ID.
var (
	contexts            = make(map[uintptr]*contextState)
	pictures            = make(map[uintptr]*csc.Picture)
	nextID      uintptr = 1
	registryMux sync.RWMutex
)

func register(st *contextState) uintptr {
	registryMux.Lock()
	defer registryMux.Unlock()

	id := nextID
	nextID++
	contexts[id] = st
	return id
}

func lookupContext(id uintptr, kind contextKind) (*contextState, error) {
	registryMux.RLock()
	st, ok := contexts[id]
	registryMux.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %d", errUnknownHandle, id)
	}
	if st.kind != kind {
		return nil, fmt.Errorf("%w: %d", errWrongKind, id)
	}
	return st, nil
}

func unregister(id uintptr) *contextState {
	registryMux.Lock()
	defer registryMux.Unlock()

	st := contexts[id]
	delete(contexts, id)
	return st
}

// outputForCSC maps the csc_fmt argument of the C interface. The value is
// a pixel format number: RGB24 selects conversion, -1 or any planar YUV
// format selects planar output.
func outputForCSC(cscFmt int) (codec.OutputFormat, error) {
	switch f := csc.PixelFormat(cscFmt); {
	case cscFmt == cscFormatNone || f.IsPlanarYUV():
		return codec.OutputPlanar, nil
	case f == csc.RGB24:
		return codec.OutputRGB24, nil
	default:
		return 0, fmt.Errorf("%w: csc_fmt %d", codec.ErrInvalidCSCFormat, cscFmt)
	}
}

func openEncoder(width, height, quality int, supportsCSC bool) (uintptr, error) {
	enc, err := codec.NewEncoder(width, height, quality, supportsCSC)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "init_encoder",
			"width":    width,
			"height":   height,
			"quality":  quality,
			"error":    err.Error(),
		}).Error("Failed to create encoder context")
		return 0, err
	}
	return register(&contextState{kind: encoderContext, enc: enc}), nil
}

func openDecoder(width, height, cscFmt int) (uintptr, error) {
	output, err := outputForCSC(cscFmt)
	if err != nil {
		return 0, err
	}
	dec, err := codec.NewDecoder(width, height, output)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "init_decoder",
			"width":    width,
			"height":   height,
			"csc_fmt":  cscFmt,
			"error":    err.Error(),
		}).Error("Failed to create decoder context")
		return 0, err
	}
	return register(&contextState{kind: decoderContext, dec: dec}), nil
}

// convertRGB runs rgb2yuv and registers the resulting picture.
func convertRGB(id uintptr, in []byte, stride int) (uintptr, error) {
	st, err := lookupContext(id, encoderContext)
	if err != nil {
		return 0, err
	}
	pic, err := st.enc.RGBToYUV(in, stride)
	if err != nil {
		return 0, err
	}

	registryMux.Lock()
	defer registryMux.Unlock()
	picID := nextID
	nextID++
	pictures[picID] = pic
	return picID, nil
}

// takePicture removes a picture from the registry. The caller owns it.
func takePicture(picID uintptr) *csc.Picture {
	registryMux.Lock()
	defer registryMux.Unlock()

	pic := pictures[picID]
	delete(pictures, picID)
	return pic
}

// compressPicture consumes the picture even when id is not a valid
// encoder.
func compressPicture(id, picID uintptr, override int) ([]byte, error) {
	pic := takePicture(picID)
	st, err := lookupContext(id, encoderContext)
	if err != nil {
		pic.Release()
		return nil, err
	}
	bs, err := st.enc.Compress(pic, override)
	if err != nil {
		return nil, err
	}
	return bs.Bytes(), nil
}

func decompressFrame(id uintptr, data []byte) (*contextState, codec.Image, error) {
	st, err := lookupContext(id, decoderContext)
	if err != nil {
		return nil, nil, err
	}
	img, err := st.dec.Decompress(data)
	if err != nil {
		return nil, nil, err
	}
	return st, img, nil
}

func convertYUV(id uintptr, planes [3][]byte, strides [3]int) (*csc.RGBImage, error) {
	st, err := lookupContext(id, decoderContext)
	if err != nil {
		return nil, err
	}
	return st.dec.YUVToRGB(planes, strides)
}

// planeLengths returns how many bytes each plane spans for the decoder's
// current source format.
func planeLengths(id uintptr, strides [3]int) ([3]int, error) {
	st, err := lookupContext(id, decoderContext)
	if err != nil {
		return [3]int{}, err
	}
	format := st.dec.SourceFormat()
	var n [3]int
	for i := 0; i < 3; i++ {
		w, h := format.PlaneSize(st.dec.Width(), st.dec.Height(), i)
		if strides[i] < w {
			return [3]int{}, fmt.Errorf("%w: plane %d stride %d < %d", csc.ErrStrideTooSmall, i, strides[i], w)
		}
		span, ok := csc.RowSpan(h, strides[i], w)
		if !ok {
			return [3]int{}, fmt.Errorf("%w: plane %d stride %d", csc.ErrPlaneTooSmall, i, strides[i])
		}
		n[i] = span
	}
	return n, nil
}

// setDecoderCSC switches the decoder output format, reopening a decoder
// that do_clean_decoder tore down.
func setDecoderCSC(id uintptr, cscFmt int) error {
	st, err := lookupContext(id, decoderContext)
	if err != nil {
		return err
	}
	output, err := outputForCSC(cscFmt)
	if err != nil {
		return err
	}
	if st.dec.Closed() {
		return st.dec.Reset(output)
	}
	return st.dec.SetCSCFormat(output)
}

// closeDecoder tears down the decoder but keeps the handle registered so
// the caller can free it separately.
func closeDecoder(id uintptr) error {
	st, err := lookupContext(id, decoderContext)
	if err != nil {
		return err
	}
	st.out.free()
	return st.dec.Close()
}

// discardContext destroys a context whatever its kind.
func discardContext(id uintptr) {
	if st := unregister(id); st != nil {
		st.out.free()
		if st.enc != nil {
			st.enc.Destroy()
		} else {
			st.dec.Destroy()
		}
	}
}

// destroyContext retires the handle and everything behind it.
func destroyContext(id uintptr, kind contextKind) error {
	if _, err := lookupContext(id, kind); err != nil {
		return err
	}
	st := unregister(id)
	st.out.free()
	if st.enc != nil {
		return st.enc.Destroy()
	}
	return st.dec.Destroy()
}
