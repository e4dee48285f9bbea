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

import "fmt"

// BlockWindow is the pixel extent of a block inside a band, starting at pixel
// X0,Y0 and spanning W,H pixels. Col and Row are the block coordinates.
type BlockWindow struct {
	Col, Row int
	X0, Y0   int
	W, H     int
	bw, bh   int //block size
	sx, sy   int //img size
	nx, ny   int //num blocks
}

// Next returns the following block in scanline order. It returns BlockWindow{},false
// when there are no more blocks in the scanlines
func (b BlockWindow) Next() (BlockWindow, bool) {
	nb := b
	nb.Col++
	if nb.Col >= nb.nx {
		nb.Col = 0
		nb.Row++
	}
	if nb.Row >= nb.ny {
		return BlockWindow{}, false
	}
	nb.X0 = nb.Col * nb.bw
	nb.Y0 = nb.Row * nb.bh
	nb.W, nb.H = actualBlockSize(nb.sx, nb.sy, nb.bw, nb.bh, nb.Col, nb.Row)
	return nb, true
}

// BlockIterator returns the blocks covering a sizeX,sizeY band.
// All sizes must be strictly positive.
func BlockIterator(sizeX, sizeY int, blockSizeX, blockSizeY int) BlockWindow {
	bl := BlockWindow{
		bw: blockSizeX,
		bh: blockSizeY,
		sx: sizeX,
		sy: sizeY,
	}
	bl.nx, bl.ny = (sizeX+blockSizeX-1)/blockSizeX,
		(sizeY+blockSizeY-1)/blockSizeY
	bl.W, bl.H = actualBlockSize(sizeX, sizeY, blockSizeX, blockSizeY, 0, 0)
	return bl
}

// BandStructure describes the pixel and block layout of a band
type BandStructure struct {
	SizeX, SizeY           int
	BlockSizeX, BlockSizeY int
	DataType               DataType
}

// DatasetStructure describes the layout shared by all bands of a raster
type DatasetStructure struct {
	BandStructure
	NBands int
}

// FirstBlock returns the topleft block definition
func (is BandStructure) FirstBlock() BlockWindow {
	return BlockIterator(is.SizeX, is.SizeY, is.BlockSizeX, is.BlockSizeY)
}

// BlockCount returns the number of blocks in the x and y dimensions
func (is BandStructure) BlockCount() (int, int) {
	return (is.SizeX + is.BlockSizeX - 1) / is.BlockSizeX,
		(is.SizeY + is.BlockSizeY - 1) / is.BlockSizeY
}

// ActualBlockSize returns the number of pixels in the x and y dimensions
// that actually contain data for the given x,y block
func (is BandStructure) ActualBlockSize(blockX, blockY int) (int, int) {
	return actualBlockSize(is.SizeX, is.SizeY, is.BlockSizeX, is.BlockSizeY, blockX, blockY)
}

// BlockBytes returns the size of a decoded block buffer. Edge blocks are
// allocated at full size, pixels outside the raster being padding.
func (is BandStructure) BlockBytes() int64 {
	return int64(is.BlockSizeX) * int64(is.BlockSizeY) * int64(is.DataType.Size())
}

// Validate checks that the structure describes a usable raster
func (ds DatasetStructure) Validate() error {
	switch {
	case ds.SizeX <= 0 || ds.SizeY <= 0:
		return fmt.Errorf("invalid raster size %dx%d", ds.SizeX, ds.SizeY)
	case ds.BlockSizeX <= 0 || ds.BlockSizeY <= 0:
		return fmt.Errorf("invalid block size %dx%d", ds.BlockSizeX, ds.BlockSizeY)
	case ds.NBands <= 0:
		return fmt.Errorf("invalid band count %d", ds.NBands)
	case ds.DataType.Size() == 0:
		return fmt.Errorf("unsupported data type %v", ds.DataType)
	}
	return nil
}

func actualBlockSize(sizeX, sizeY int, blockSizeX, blockSizeY int, blockX, blockY int) (int, int) {
	cx, cy := (sizeX+blockSizeX-1)/blockSizeX,
		(sizeY+blockSizeY-1)/blockSizeY
	if blockX < 0 || blockY < 0 || blockX >= cx || blockY >= cy {
		return 0, 0
	}
	retx := blockSizeX
	rety := blockSizeY
	if blockX == cx-1 {
		nXPixelOff := blockX * blockSizeX
		retx = sizeX - nXPixelOff
	}
	if blockY == cy-1 {
		nYPixelOff := blockY * blockSizeY
		rety = sizeY - nYPixelOff
	}
	return retx, rety
}
