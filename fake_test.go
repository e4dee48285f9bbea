package rastercache

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errInjected = errors.New("injected failure")

type blockID struct{ band, col, row int }

// fakeStore is an in-memory BlockStore counting calls. Blocks never written
// are generated from pattern when seeded, zero otherwise.
type fakeStore struct {
	st     DatasetStructure
	seeded bool
	delay  time.Duration

	mu        sync.Mutex
	blocks    map[blockID][]byte
	reads     map[blockID]int
	writes    map[blockID]int
	failRead  map[blockID]bool
	failWrite map[blockID]bool
}

func newFakeStore(st DatasetStructure) *fakeStore {
	return &fakeStore{
		st:        st,
		blocks:    make(map[blockID][]byte),
		reads:     make(map[blockID]int),
		writes:    make(map[blockID]int),
		failRead:  make(map[blockID]bool),
		failWrite: make(map[blockID]bool),
	}
}

func byteStructure(sx, sy, bs, nbands int) DatasetStructure {
	return DatasetStructure{
		BandStructure: BandStructure{SizeX: sx, SizeY: sy, BlockSizeX: bs, BlockSizeY: bs, DataType: Byte},
		NBands:        nbands,
	}
}

// pattern is the value of pixel x,y of band in seeded Byte stores
func pattern(band, x, y int) byte {
	return byte((x*3 + y*5 + band*11) % 251)
}

func (f *fakeStore) Structure() DatasetStructure {
	return f.st
}

func (f *fakeStore) ReadBlock(ctx context.Context, band, col, row int, buf []byte) error {
	id := blockID{band, col, row}
	f.mu.Lock()
	f.reads[id]++
	fail := f.failRead[id]
	data, ok := f.blocks[id]
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if fail {
		return errInjected
	}
	if ok {
		copy(buf, data)
		return nil
	}
	if f.seeded {
		bw, bh := f.st.BlockSizeX, f.st.BlockSizeY
		for y := 0; y < bh; y++ {
			for x := 0; x < bw; x++ {
				buf[y*bw+x] = pattern(band, col*bw+x, row*bh+y)
			}
		}
	}
	return nil
}

func (f *fakeStore) WriteBlock(ctx context.Context, band, col, row int, data []byte) error {
	id := blockID{band, col, row}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes[id]++
	if f.failWrite[id] {
		return errInjected
	}
	f.blocks[id] = append([]byte(nil), data...)
	return nil
}

func (f *fakeStore) setFailRead(band, col, row int, fail bool) {
	f.mu.Lock()
	f.failRead[blockID{band, col, row}] = fail
	f.mu.Unlock()
}

func (f *fakeStore) setFailWrite(band, col, row int, fail bool) {
	f.mu.Lock()
	f.failWrite[blockID{band, col, row}] = fail
	f.mu.Unlock()
}

func (f *fakeStore) readCount(band, col, row int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[blockID{band, col, row}]
}

func (f *fakeStore) writeCount(band, col, row int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes[blockID{band, col, row}]
}

func (f *fakeStore) totalWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.writes {
		n += c
	}
	return n
}

func (f *fakeStore) stored(band, col, row int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocks[blockID{band, col, row}]
}
