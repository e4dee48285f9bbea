// Copyright 2021 Airbus Defence and Space
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rastercache

import (
	"context"
	"fmt"
	"unsafe"
)

// IOOperation selects the direction of a region transfer
type IOOperation int

const (
	//IORead reads pixels from the raster into the buffer
	IORead IOOperation = iota
	//IOWrite writes pixels from the buffer into the raster
	IOWrite
)

// ReadRegion copies the w*h pixels of band starting at pixel x,y into buf,
// stored row by row in the band's data type. len(buf) must be
// w*h*DataType.Size().
//
// Blocks are fetched in row-major order. If a block cannot be fetched a
// *RegionError is returned and the contents of buf are unspecified.
// Windows extending outside the raster fail with ErrOutOfBounds unless the
// raster was opened with FillOutside.
func (r *Raster) ReadRegion(ctx context.Context, band, x, y, w, h int, buf []byte) error {
	return r.region(ctx, IORead, band, x, y, w, h, buf)
}

// WriteRegion copies buf, laid out as for ReadRegion, into the w*h pixels of
// band starting at pixel x,y. The window must lie inside the raster.
//
// Each intersecting block is fetched (so that pixels outside the window are
// preserved), modified and marked dirty; nothing is persisted before the
// block is evicted or the raster flushed. Blocks are modified in row-major
// order: on failure the returned *RegionError tells how many blocks were
// already applied, later blocks being untouched.
func (r *Raster) WriteRegion(ctx context.Context, band, x, y, w, h int, buf []byte) error {
	return r.region(ctx, IOWrite, band, x, y, w, h, buf)
}

// Read is ReadRegion for a typed buffer ([]uint8, []int16, []uint16,
// []int32, []uint32, []float32, []float64, []complex64 or []complex128)
// matching the band's data type.
func (r *Raster) Read(ctx context.Context, band, x, y int, buffer interface{}, w, h int) error {
	return r.IO(ctx, IORead, band, x, y, buffer, w, h)
}

// Write is WriteRegion for a typed buffer
func (r *Raster) Write(ctx context.Context, band, x, y int, buffer interface{}, w, h int) error {
	return r.IO(ctx, IOWrite, band, x, y, buffer, w, h)
}

// IO reads or writes the pixels contained in the supplied window
func (r *Raster) IO(ctx context.Context, rw IOOperation, band, x, y int, buffer interface{}, w, h int) error {
	buf, err := bufferBytes(buffer, r.structure.DataType)
	if err != nil {
		return err
	}
	return r.region(ctx, rw, band, x, y, w, h, buf)
}

func bufferBytes(buffer interface{}, dtype DataType) ([]byte, error) {
	var bt DataType
	var ptr unsafe.Pointer
	var n int
	switch b := buffer.(type) {
	case []byte:
		return b, checkType(Byte, dtype)
	case []int16:
		bt, n = Int16, len(b)
		if n > 0 {
			ptr = unsafe.Pointer(&b[0])
		}
	case []uint16:
		bt, n = UInt16, len(b)
		if n > 0 {
			ptr = unsafe.Pointer(&b[0])
		}
	case []int32:
		bt, n = Int32, len(b)
		if n > 0 {
			ptr = unsafe.Pointer(&b[0])
		}
	case []uint32:
		bt, n = UInt32, len(b)
		if n > 0 {
			ptr = unsafe.Pointer(&b[0])
		}
	case []float32:
		bt, n = Float32, len(b)
		if n > 0 {
			ptr = unsafe.Pointer(&b[0])
		}
	case []float64:
		bt, n = Float64, len(b)
		if n > 0 {
			ptr = unsafe.Pointer(&b[0])
		}
	case []complex64:
		bt, n = CFloat32, len(b)
		if n > 0 {
			ptr = unsafe.Pointer(&b[0])
		}
	case []complex128:
		bt, n = CFloat64, len(b)
		if n > 0 {
			ptr = unsafe.Pointer(&b[0])
		}
	default:
		return nil, fmt.Errorf("unsupported buffer type %T: %w", buffer, ErrBufferType)
	}
	if err := checkType(bt, dtype); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return unsafe.Slice((*byte)(ptr), n*bt.Size()), nil
}

func checkType(buffer, band DataType) error {
	if buffer != band {
		return fmt.Errorf("%v buffer for %v band: %w", buffer, band, ErrBufferType)
	}
	return nil
}

func (r *Raster) region(ctx context.Context, rw IOOperation, band, x, y, w, h int, buf []byte) error {
	st := r.structure
	if band < 0 || band >= st.NBands {
		return fmt.Errorf("band %d of %s: %w", band, r.id, ErrInvalidBand)
	}
	if w <= 0 || h <= 0 {
		return fmt.Errorf("invalid window size %dx%d", w, h)
	}
	ps := st.DataType.Size()
	if len(buf) != w*h*ps {
		return fmt.Errorf("%d bytes for a %dx%d %v window: %w", len(buf), w, h, st.DataType, ErrBufferSize)
	}

	inside := x >= 0 && y >= 0 && x+w <= st.SizeX && y+h <= st.SizeY
	if !inside {
		if rw == IOWrite || r.opts.outside == outsideError {
			return fmt.Errorf("window %d,%d+%dx%d of %dx%d raster %s: %w",
				x, y, w, h, st.SizeX, st.SizeY, r.id, ErrOutOfBounds)
		}
		st.DataType.Fill(buf, r.opts.fill)
	}

	//intersection of the window with the raster
	ix0, iy0 := max(x, 0), max(y, 0)
	ix1, iy1 := min(x+w, st.SizeX), min(y+h, st.SizeY)
	if ix0 >= ix1 || iy0 >= iy1 {
		return nil
	}

	bw, bh := st.BlockSizeX, st.BlockSizeY
	applied := 0
	for row := iy0 / bh; row <= (iy1-1)/bh; row++ {
		for col := ix0 / bw; col <= (ix1-1)/bw; col++ {
			key := BlockKey{Raster: r.id, Band: band, Col: col, Row: row}
			e, err := r.cache.acquire(ctx, r, key)
			if err != nil {
				return &RegionError{Key: key, Applied: applied, Err: err}
			}
			err = r.transfer(rw, e, x, y, w, ix0, iy0, ix1, iy1, ps, buf)
			r.cache.mu.Lock()
			r.cache.unpin(e)
			r.cache.mu.Unlock()
			if err != nil {
				return &RegionError{Key: key, Applied: applied, Err: err}
			}
			applied++
		}
	}
	return nil
}

// transfer copies the part of the window ix0,iy0-ix1,iy1 covered by the
// pinned block e between the block and buf, whose origin is x,y and width w.
func (r *Raster) transfer(rw IOOperation, e *entry, x, y, w, ix0, iy0, ix1, iy1, ps int, buf []byte) error {
	bw, bh := r.structure.BlockSizeX, r.structure.BlockSizeY
	bx0, by0 := e.key.Col*bw, e.key.Row*bh
	ox0, ox1 := max(ix0, bx0), min(ix1, bx0+bw)
	oy0, oy1 := max(iy0, by0), min(iy1, by0+bh)
	n := (ox1 - ox0) * ps

	if rw == IORead {
		e.mu.RLock()
		defer e.mu.RUnlock()
	} else {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.detached.Load() {
			return ErrRasterClosed
		}
	}
	for py := oy0; py < oy1; py++ {
		boff := ((py-by0)*bw + (ox0 - bx0)) * ps
		woff := ((py-y)*w + (ox0 - x)) * ps
		if rw == IORead {
			copy(buf[woff:woff+n], e.data[boff:boff+n])
		} else {
			copy(e.data[boff:boff+n], buf[woff:woff+n])
		}
	}
	if rw == IOWrite {
		e.version.Add(1)
	}
	return nil
}
