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
)

// BlockKey identifies a block across all the rasters attached to a Cache
type BlockKey struct {
	Raster   string
	Band     int
	Col, Row int
}

func (k BlockKey) String() string {
	return fmt.Sprintf("%s[%d](%d,%d)", k.Raster, k.Band, k.Col, k.Row)
}

// BlockSource decodes a single block from persistent storage.
//
// ReadBlock fills buf, whose length is always BlockBytes() of the band
// structure, with the decoded pixels of block col,row of the given band.
// Pixels of edge blocks falling outside the raster may be left untouched.
//
// Implementations must be safe for concurrent use on distinct blocks.
type BlockSource interface {
	ReadBlock(ctx context.Context, band, col, row int, buf []byte) error
}

// BlockSink encodes and persists a single block.
//
// WriteBlock must not retain data after returning.
type BlockSink interface {
	WriteBlock(ctx context.Context, band, col, row int, data []byte) error
}

// BlockStore is the collaborator a Raster is attached to: the format driver
// describing the block layout and decoding/encoding individual blocks.
type BlockStore interface {
	Structure() DatasetStructure
	BlockSource
	BlockSink
}
