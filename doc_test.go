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

package rastercache_test

import (
	"context"
	"fmt"
	"log"
	"math/rand"

	"github.com/airbusgeo/rastercache"
	"github.com/airbusgeo/rastercache/store"
	"github.com/airbusgeo/rastercache/tilestore"
)

func ExampleRaster_ReadRegion() {
	ctx := context.Background()

	//create a 200x200 one band image, tiled with 32x32 blocks, in memory
	st := store.NewMemory()
	ts, err := tilestore.Create(ctx, st, "example", rastercache.DatasetStructure{
		BandStructure: rastercache.BandStructure{SizeX: 200, SizeY: 200, BlockSizeX: 32, BlockSizeY: 32, DataType: rastercache.Byte},
		NBands:        1,
	})
	if err != nil {
		log.Fatal(err)
	}

	//a cache with room for 64 blocks
	cache, err := rastercache.New(rastercache.CacheMax(rastercache.Bytes(64 * 32 * 32)))
	if err != nil {
		log.Fatal(err)
	}
	defer cache.Close(ctx)

	r, err := cache.Open("example", ts)
	if err != nil {
		log.Fatal(err)
	}

	//fill the band with random data
	buf := make([]byte, 200*200)
	for i := range buf {
		buf[i] = byte(rand.Intn(255)) + 1
	}
	if err := r.WriteRegion(ctx, 0, 0, 0, 200, 200, buf); err != nil {
		log.Fatal(err)
	}
	//blocks are only encoded once flushed
	fmt.Println(len(st.Keys("example/0/")))
	if err := r.Flush(ctx); err != nil {
		log.Fatal(err)
	}
	fmt.Println(len(st.Keys("example/0/")))

	//read the image line by line: each block is decoded at most once
	line := make([]byte, 200)
	for y := 0; y < 200; y++ {
		if err := r.ReadRegion(ctx, 0, 0, y, 200, 1, line); err != nil {
			log.Fatal(err)
		}
	}
	stats := cache.Stats()
	fmt.Println(stats.Misses, stats.Blocks)

	// Output:
	// 0
	// 49
	// 49 49
}

func ExampleRaster_GetBlock() {
	ctx := context.Background()
	ts, _ := tilestore.Create(ctx, store.NewMemory(), "", rastercache.DatasetStructure{
		BandStructure: rastercache.BandStructure{SizeX: 64, SizeY: 64, BlockSizeX: 16, BlockSizeY: 16, DataType: rastercache.Byte},
		NBands:        1,
	}, tilestore.NoData(7))
	cache, _ := rastercache.New(rastercache.CacheMax(rastercache.Bytes(1 << 20)))
	defer cache.Close(ctx)
	r, _ := cache.Open("blocks", ts)

	h, err := r.GetBlock(ctx, 0, 1, 2)
	if err != nil {
		log.Fatal(err)
	}
	//the block stays resident until released
	defer h.Release()
	h.View(func(data []byte) {
		fmt.Println(len(data), data[0])
	})
	h.Update(func(data []byte) {
		data[0] = 42
	})
	fmt.Println(h.Key(), cache.Stats().Dirty)

	// Output:
	// 256 7
	// blocks[0](1,2) 1
}
