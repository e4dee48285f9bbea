package rastercache

import (
	"bytes"
	"context"
	"errors"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRegion(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, 4*256)
	fs := newFakeStore(byteStructure(100, 70, 16, 2))
	fs.seeded = true
	r, err := c.Open("r", fs)
	require.NoError(t, err)

	for band := 0; band < 2; band++ {
		x, y, w, h := 10, 5, 50, 40
		buf := make([]byte, w*h)
		require.NoError(t, r.ReadRegion(ctx, band, x, y, w, h, buf))
		for j := 0; j < h; j++ {
			for i := 0; i < w; i++ {
				if buf[j*w+i] != pattern(band, x+i, y+j) {
					t.Fatalf("band %d pixel %d,%d: got %d want %d", band, x+i, y+j, buf[j*w+i], pattern(band, x+i, y+j))
				}
			}
		}
	}
	assert.LessOrEqual(t, c.CacheUsed(), c.CacheMax())

	//bottom right edge block
	buf := make([]byte, 4*6)
	require.NoError(t, r.ReadRegion(ctx, 1, 96, 64, 4, 6, buf))
	assert.Equal(t, pattern(1, 99, 69), buf[len(buf)-1])
}

func TestReadRegionOutside(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, 1<<20)

	fs := newFakeStore(byteStructure(64, 64, 16, 1))
	fs.seeded = true
	r, err := c.Open("strict", fs)
	require.NoError(t, err)
	err = r.ReadRegion(ctx, 0, -5, -5, 20, 20, make([]byte, 400))
	assert.ErrorIs(t, err, ErrOutOfBounds)
	err = r.ReadRegion(ctx, 0, 60, 0, 5, 1, make([]byte, 5))
	assert.ErrorIs(t, err, ErrOutOfBounds)
	assert.Equal(t, 0, fs.readCount(0, 0, 0))
	assert.Equal(t, 0, fs.readCount(0, 3, 0))

	fill, err := c.Open("fill", fs, FillOutside(255))
	require.NoError(t, err)
	buf := make([]byte, 400)
	require.NoError(t, fill.ReadRegion(ctx, 0, -5, -5, 20, 20, buf))
	for j := 0; j < 20; j++ {
		for i := 0; i < 20; i++ {
			x, y := i-5, j-5
			want := byte(255)
			if x >= 0 && y >= 0 {
				want = pattern(0, x, y)
			}
			assert.Equal(t, want, buf[j*20+i], "pixel %d,%d", x, y)
		}
	}

	buf = make([]byte, 16)
	require.NoError(t, fill.ReadRegion(ctx, 0, 200, 200, 4, 4, buf))
	assert.Equal(t, bytes.Repeat([]byte{255}, 16), buf)

	err = fill.WriteRegion(ctx, 0, -1, 0, 2, 1, []byte{1, 2})
	assert.ErrorIs(t, err, ErrOutOfBounds)
	err = fill.WriteRegion(ctx, 0, 63, 63, 2, 2, make([]byte, 4))
	assert.ErrorIs(t, err, ErrOutOfBounds)
	assert.Equal(t, 0, c.Stats().Dirty)
}

func TestRegionValidation(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, 1<<20)
	r, _ := openTestRaster(t, c, "r", byteStructure(64, 64, 16, 1))

	assert.ErrorIs(t, r.ReadRegion(ctx, 1, 0, 0, 1, 1, make([]byte, 1)), ErrInvalidBand)
	assert.ErrorIs(t, r.WriteRegion(ctx, -1, 0, 0, 1, 1, make([]byte, 1)), ErrInvalidBand)
	assert.ErrorIs(t, r.ReadRegion(ctx, 0, 0, 0, 4, 4, make([]byte, 15)), ErrBufferSize)
	assert.ErrorIs(t, r.WriteRegion(ctx, 0, 0, 0, 4, 4, make([]byte, 17)), ErrBufferSize)
	assert.Error(t, r.ReadRegion(ctx, 0, 0, 0, 0, 4, nil))
	assert.Error(t, r.WriteRegion(ctx, 0, 0, 0, 4, -1, nil))
}

func TestReadAfterWrite(t *testing.T) {
	ctx := context.Background()
	const sx, sy = 100, 70
	st := byteStructure(sx, sy, 16, 2)
	//room for 5 blocks only: most writes go through evictions
	c := newTestCache(t, 5*256)
	r, fs := openTestRaster(t, c, "r", st)
	ref := [2][]byte{make([]byte, sx*sy), make([]byte, sx*sy)}

	fz := fuzz.New().NilChance(0)
	for i := 0; i < 64; i++ {
		var win [4]uint16
		fz.Fuzz(&win)
		x := int(win[0]) % sx
		y := int(win[1]) % sy
		w := 1 + int(win[2])%(sx-x)
		h := 1 + int(win[3])%(sy-y)
		band := i % 2

		var data []byte
		fz.NumElements(w*h, w*h)
		fz.Fuzz(&data)
		require.Len(t, data, w*h)

		require.NoError(t, r.WriteRegion(ctx, band, x, y, w, h, data))
		for j := 0; j < h; j++ {
			copy(ref[band][(y+j)*sx+x:(y+j)*sx+x+w], data[j*w:(j+1)*w])
		}

		got := make([]byte, w*h)
		require.NoError(t, r.ReadRegion(ctx, band, x, y, w, h, got))
		require.Equal(t, data, got, "window %d,%d+%dx%d", x, y, w, h)
		require.LessOrEqual(t, c.CacheUsed(), c.CacheMax())
	}

	for band := 0; band < 2; band++ {
		got := make([]byte, sx*sy)
		require.NoError(t, r.ReadRegion(ctx, band, 0, 0, sx, sy, got))
		assert.Equal(t, ref[band], got, "band %d", band)
	}

	//everything reached the store once closed
	require.NoError(t, r.Close(ctx))
	c2 := newTestCache(t, 1<<20)
	r2, err := c2.Open("r", fs)
	require.NoError(t, err)
	for band := 0; band < 2; band++ {
		got := make([]byte, sx*sy)
		require.NoError(t, r2.ReadRegion(ctx, band, 0, 0, sx, sy, got))
		assert.Equal(t, ref[band], got, "band %d", band)
	}
}

func TestWriteRegionPreservesUncovered(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, 1<<20)
	fs := newFakeStore(byteStructure(32, 32, 16, 1))
	fs.seeded = true
	r, err := c.Open("r", fs)
	require.NoError(t, err)

	require.NoError(t, r.WriteRegion(ctx, 0, 8, 8, 16, 16, bytes.Repeat([]byte{0}, 256)))
	require.NoError(t, r.Flush(ctx))
	assert.Equal(t, 4, fs.totalWrites())
	blk := fs.stored(0, 0, 0)
	assert.Equal(t, pattern(0, 7, 7), blk[7*16+7])
	assert.Equal(t, byte(0), blk[8*16+8])
	blk = fs.stored(0, 1, 1)
	assert.Equal(t, byte(0), blk[7*16+7])
	assert.Equal(t, pattern(0, 24, 24), blk[8*16+8])
}

func TestWriteRegionPartialFailure(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, 1<<20)
	r, fs := openTestRaster(t, c, "r", byteStructure(64, 16, 16, 1))
	fs.setFailRead(0, 2, 0, true)

	err := r.WriteRegion(ctx, 0, 0, 0, 64, 16, bytes.Repeat([]byte{8}, 64*16))
	var rerr *RegionError
	require.True(t, errors.As(err, &rerr), "got %v", err)
	assert.Equal(t, 2, rerr.Applied)
	assert.Equal(t, BlockKey{Raster: "r", Band: 0, Col: 2, Row: 0}, rerr.Key)
	var derr *DecodeError
	assert.True(t, errors.As(err, &derr))

	assert.Equal(t, 2, c.Stats().Dirty)
	assert.True(t, resident(c, r, 0, 1, 0))
	assert.False(t, resident(c, r, 0, 3, 0))
	assert.Equal(t, 0, fs.readCount(0, 3, 0))

	buf := make([]byte, 32*16)
	require.NoError(t, r.ReadRegion(ctx, 0, 0, 0, 32, 16, buf))
	assert.Equal(t, bytes.Repeat([]byte{8}, 32*16), buf)
}

func TestTypedIO(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, 1<<20)
	st := DatasetStructure{
		BandStructure: BandStructure{SizeX: 40, SizeY: 40, BlockSizeX: 16, BlockSizeY: 16, DataType: Float32},
		NBands:        1,
	}
	r, _ := openTestRaster(t, c, "r", st, FillOutside(-1))

	in := make([]float32, 20*20)
	for i := range in {
		in[i] = float32(i) * 0.5
	}
	require.NoError(t, r.Write(ctx, 0, 10, 10, in, 20, 20))
	out := make([]float32, 20*20)
	require.NoError(t, r.Read(ctx, 0, 10, 10, out, 20, 20))
	assert.Equal(t, in, out)

	edge := make([]float32, 4)
	require.NoError(t, r.Read(ctx, 0, 8, 10, edge, 4, 1))
	assert.Equal(t, []float32{0, 0, 0, 0.5}, edge)
	require.NoError(t, r.Read(ctx, 0, -2, 10, edge, 4, 1))
	assert.Equal(t, []float32{-1, -1, 0, 0}, edge)

	assert.ErrorIs(t, r.Read(ctx, 0, 0, 0, make([]int16, 4), 2, 2), ErrBufferType)
	assert.ErrorIs(t, r.Read(ctx, 0, 0, 0, make([]byte, 16), 2, 2), ErrBufferType)
	assert.ErrorIs(t, r.Read(ctx, 0, 0, 0, []string{"a"}, 1, 1), ErrBufferType)
	assert.ErrorIs(t, r.Write(ctx, 0, 0, 0, make([]float32, 3), 2, 2), ErrBufferSize)
	assert.ErrorIs(t, r.Read(ctx, 0, 0, 0, []float32{}, 2, 2), ErrBufferSize)
}

func TestTypedIOComplex(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, 1<<20)
	st := DatasetStructure{
		BandStructure: BandStructure{SizeX: 8, SizeY: 8, BlockSizeX: 4, BlockSizeY: 4, DataType: CFloat64},
		NBands:        1,
	}
	r, _ := openTestRaster(t, c, "r", st)
	in := []complex128{1 + 2i, 3 - 4i, 5, 6i}
	require.NoError(t, r.Write(ctx, 0, 3, 3, in, 2, 2))
	out := make([]complex128, 4)
	require.NoError(t, r.Read(ctx, 0, 3, 3, out, 2, 2))
	assert.Equal(t, in, out)
}
