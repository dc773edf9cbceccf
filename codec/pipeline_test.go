package codec

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/opd-ai/framecodec/csc"
	"github.com/opd-ai/framecodec/engine"
	"github.com/opd-ai/framecodec/memalign"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestRoundTripFidelity(t *testing.T) {
	colours := [][3]byte{
		{0, 0, 0},
		{255, 255, 255},
		{200, 30, 90},
		{12, 180, 250},
	}
	// tolerance covers BT.601 rounding plus half a quantiser step.
	qualities := []struct {
		quality     int
		supportsCSC bool
		tolerance   int
	}{
		{100, false, 3},
		{100, true, 3},
		{70, true, 20},
	}

	for _, q := range qualities {
		for _, c := range colours {
			name := fmt.Sprintf("q%d_csc%v_%d_%d_%d", q.quality, q.supportsCSC, c[0], c[1], c[2])
			t.Run(name, func(t *testing.T) {
				enc, err := NewEncoder(40, 24, q.quality, q.supportsCSC)
				require.NoError(t, err)
				defer enc.Destroy()

				dec, err := NewDecoder(40, 24, OutputRGB24)
				require.NoError(t, err)
				defer dec.Destroy()

				src := flatRGB(40, 24, c[0], c[1], c[2])
				pic, err := enc.RGBToYUV(src, 40*3)
				require.NoError(t, err)
				bs, err := enc.Compress(pic, -1)
				require.NoError(t, err)

				img, err := dec.Decompress(bs.Bytes())
				require.NoError(t, err)
				rgb, ok := img.(*csc.RGBImage)
				require.True(t, ok)
				defer rgb.Release()

				assert.Equal(t, enc.PixelFormat(), dec.SourceFormat())
				assert.LessOrEqual(t, maxRGBError(rgb.Bytes(), src), q.tolerance)
			})
		}
	}
}

func TestRoundTripLosslessAtFullQuality(t *testing.T) {
	enc, err := NewEncoder(48, 32, 100, true)
	require.NoError(t, err)
	defer enc.Destroy()
	dec, err := NewDecoder(48, 32, OutputPlanar)
	require.NoError(t, err)
	defer dec.Destroy()

	pic, err := enc.RGBToYUV(texturedRGB(48, 32, 11), 48*3)
	require.NoError(t, err)
	want := make([][]byte, 3)
	for i := range want {
		want[i] = append([]byte(nil), pic.Data[i]...)
	}
	strides := pic.Stride

	bs, err := enc.Compress(pic, -1)
	require.NoError(t, err)
	img, err := dec.Decompress(bs.Bytes())
	require.NoError(t, err)
	view := img.(*PlanarView)

	// Quality 100 is lossless in the planar domain.
	for i := 0; i < 3; i++ {
		w, h := view.Format().PlaneSize(48, 32, i)
		for y := 0; y < h; y++ {
			got := view.Plane(i)[y*view.Stride(i) : y*view.Stride(i)+w]
			exp := want[i][y*strides[i] : y*strides[i]+w]
			require.True(t, bytes.Equal(exp, got), "plane %d row %d", i, y)
		}
	}
}

func TestBufferReuseInvalidatesPreviousOutput(t *testing.T) {
	t.Run("failing compress poisons previous bitstream", func(t *testing.T) {
		enc, err := NewEncoder(32, 16, 90, false, WithPoisonBuffers(true))
		require.NoError(t, err)
		defer enc.Destroy()

		pic, err := enc.RGBToYUV(texturedRGB(32, 16, 1), 32*3)
		require.NoError(t, err)
		bs, err := enc.Compress(pic, -1)
		require.NoError(t, err)
		raw := bs.Bytes()
		require.NotEmpty(t, raw)
		require.False(t, memalign.IsPoisoned(raw))

		pic, err = enc.RGBToYUV(texturedRGB(32, 16, 2), 32*3)
		require.NoError(t, err)
		_, err = enc.Compress(pic, 500)
		require.Error(t, err)

		assert.False(t, bs.Valid())
		assert.True(t, memalign.IsPoisoned(raw), "stale bytes must read as poison")
	})

	t.Run("successful compress invalidates previous bitstream", func(t *testing.T) {
		enc, err := NewEncoder(32, 16, 90, false)
		require.NoError(t, err)
		defer enc.Destroy()

		var views []*Bitstream
		for seed := uint32(0); seed < 3; seed++ {
			pic, err := enc.RGBToYUV(texturedRGB(32, 16, seed), 32*3)
			require.NoError(t, err)
			bs, err := enc.Compress(pic, -1)
			require.NoError(t, err)
			views = append(views, bs)
		}
		assert.False(t, views[0].Valid())
		assert.False(t, views[1].Valid())
		assert.True(t, views[2].Valid())
	})

	t.Run("decompress invalidates previous planar view", func(t *testing.T) {
		data, _ := encodeFrame(t, 32, 16, 90, false, texturedRGB(32, 16, 9))
		dec, err := NewDecoder(32, 16, OutputPlanar, WithPoisonBuffers(true))
		require.NoError(t, err)
		defer dec.Destroy()

		img, err := dec.Decompress(data)
		require.NoError(t, err)
		first := img.(*PlanarView)
		luma := first.Plane(0)
		require.NotNil(t, luma)

		_, err = dec.Decompress([]byte("not a frame at all"))
		require.Error(t, err)

		assert.False(t, first.Valid())
		assert.Nil(t, first.Plane(0))
		_, err = first.Frame()
		assert.True(t, errors.Is(err, ErrBufferInvalidated))
		assert.True(t, memalign.IsPoisoned(luma))
	})
}

func TestCompressNeverLeaksPictures(t *testing.T) {
	tracker := memalign.NewTracker(nil, memalign.WithPoisonOnFree())
	failing := &failingEncoder{}
	enc, err := NewEncoder(32, 16, 50, false,
		WithAllocator(tracker),
		WithEncoderFactory(failingEncoderFactory(failing)))
	require.NoError(t, err)

	base := tracker.Outstanding()
	for i := 0; i < 25; i++ {
		pic, err := enc.RGBToYUV(texturedRGB(32, 16, uint32(i)), 32*3)
		require.NoError(t, err)
		_, err = enc.Compress(pic, -1)
		require.True(t, errors.Is(err, ErrCompress))
		require.True(t, errors.Is(err, errEngineBroken))
	}

	assert.Equal(t, 25, failing.calls)
	assert.Equal(t, base, tracker.Outstanding(), "net-zero picture allocations")
	assert.Zero(t, tracker.DoubleFrees())

	require.NoError(t, enc.Destroy())
	assert.Zero(t, tracker.Outstanding())
}

func TestRGBOutputIsCallerOwned(t *testing.T) {
	tracker := memalign.NewTracker(nil, memalign.WithPoisonOnFree())
	dec, err := NewDecoder(24, 16, OutputRGB24, WithAllocator(tracker), WithPoisonBuffers(true))
	require.NoError(t, err)
	defer dec.Destroy()

	first, _ := encodeFrame(t, 24, 16, 100, false, flatRGB(24, 16, 10, 200, 30))
	second, _ := encodeFrame(t, 24, 16, 100, false, flatRGB(24, 16, 250, 5, 128))

	img, err := dec.Decompress(first)
	require.NoError(t, err)
	owned := img.(*csc.RGBImage)
	snapshot := append([]byte(nil), owned.Bytes()...)

	for i := 0; i < 3; i++ {
		img, err := dec.Decompress(second)
		require.NoError(t, err)
		img.(*csc.RGBImage).Release()
		_, err = dec.Decompress([]byte{1, 2, 3})
		require.Error(t, err)
	}
	require.NoError(t, dec.Close())

	assert.Equal(t, snapshot, owned.Bytes(), "later calls must not touch caller-owned output")
	assert.Equal(t, 1, tracker.Outstanding())
	owned.Release()
	owned.Release()
	assert.Zero(t, tracker.Outstanding())
	assert.Zero(t, tracker.DoubleFrees())
}

func TestQualityAffectsSizeWithoutReallocation(t *testing.T) {
	tracker := memalign.NewTracker(nil)
	enc, err := NewEncoder(128, 64, 50, false, WithAllocator(tracker))
	require.NoError(t, err)
	defer enc.Destroy()

	src := texturedRGB(128, 64, 42)
	compress := func(quality int) int {
		t.Helper()
		pic, err := enc.RGBToYUV(src, 128*3)
		require.NoError(t, err)
		enc.SetQuality(quality)
		bs, err := enc.Compress(pic, -1)
		require.NoError(t, err)
		return bs.Len()
	}

	high := compress(100)
	allocs := tracker.Allocs()

	enc.SetSpeed(0)
	enc.SetSpeed(100)
	enc.SetQuality(10)
	assert.Equal(t, allocs, tracker.Allocs(), "tuning must not allocate")

	low := compress(10)
	assert.Equal(t, allocs+1, tracker.Allocs(), "only the picture is allocated")
	assert.GreaterOrEqual(t, high, low)
	assert.Greater(t, high, low, "textured content must compress smaller at low quality")
}

func TestGeometryIsImmutable(t *testing.T) {
	enc, err := NewEncoder(32, 16, 50, false)
	require.NoError(t, err)
	defer enc.Destroy()

	for _, size := range [][2]int{{16, 16}, {32, 8}, {64, 32}} {
		pic, err := csc.NewPicture(size[0], size[1], csc.YUV420P, nil)
		require.NoError(t, err)
		_, err = enc.Compress(pic, -1)
		assert.True(t, errors.Is(err, ErrGeometryMismatch), "%dx%d", size[0], size[1])
	}

	// A picture with truncated planes is rejected before reaching the engine.
	pic, err := csc.NewPicture(32, 16, csc.YUV420P, nil)
	require.NoError(t, err)
	pic.Data[2] = pic.Data[2][:4]
	_, err = enc.Compress(pic, -1)
	assert.True(t, errors.Is(err, ErrGeometryMismatch))

	other, _ := encodeFrame(t, 64, 16, 50, false, texturedRGB(64, 16, 1))
	dec, err := NewDecoder(32, 16, OutputPlanar)
	require.NoError(t, err)
	defer dec.Destroy()
	_, err = dec.Decompress(other)
	assert.True(t, errors.Is(err, ErrDecompress))
	assert.True(t, errors.Is(err, engine.ErrGeometryMismatch))
}

func TestSetCSCFormatBetweenDecodes(t *testing.T) {
	data, format := encodeFrame(t, 20, 12, 65, true, texturedRGB(20, 12, 6))
	require.Equal(t, csc.YUV422P, format)

	dec, err := NewDecoder(20, 12, OutputPlanar)
	require.NoError(t, err)
	defer dec.Destroy()

	img, err := dec.Decompress(data)
	require.NoError(t, err)
	assert.IsType(t, &PlanarView{}, img)
	assert.Equal(t, csc.YUV422P, img.Format())

	require.NoError(t, dec.SetCSCFormat(OutputRGB24))
	img, err = dec.Decompress(data)
	require.NoError(t, err)
	rgb, ok := img.(*csc.RGBImage)
	require.True(t, ok)
	assert.Equal(t, csc.RGB24, rgb.Format())
	assert.Equal(t, 20*12*3, rgb.Size())
	rgb.Release()

	require.NoError(t, dec.SetCSCFormat(OutputPlanar))
	img, err = dec.Decompress(data)
	require.NoError(t, err)
	assert.IsType(t, &PlanarView{}, img)
}

func TestIndependentContextsRunConcurrently(t *testing.T) {
	var g errgroup.Group
	for worker := 0; worker < 6; worker++ {
		worker := worker
		g.Go(func() error {
			width, height := 16+worker*8, 8+worker*4
			enc, err := NewEncoder(width, height, 40+worker*10, worker%2 == 0)
			if err != nil {
				return err
			}
			defer enc.Destroy()
			dec, err := NewDecoder(width, height, OutputRGB24)
			if err != nil {
				return err
			}
			defer dec.Destroy()

			for frame := 0; frame < 10; frame++ {
				pic, err := enc.RGBToYUV(texturedRGB(width, height, uint32(frame)), width*3)
				if err != nil {
					return err
				}
				bs, err := enc.Compress(pic, -1)
				if err != nil {
					return err
				}
				img, err := dec.Decompress(bs.Bytes())
				if err != nil {
					return err
				}
				rgb := img.(*csc.RGBImage)
				if rgb.Width() != width || rgb.Height() != height {
					return fmt.Errorf("worker %d: got %dx%d", worker, rgb.Width(), rgb.Height())
				}
				rgb.Release()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
