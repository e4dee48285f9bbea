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
	"sort"
	"sync"
)

// Raster is a BlockStore attached to a Cache under a unique id. All its
// block accesses go through the cache. A Raster must be closed with Close,
// which persists its dirty blocks.
type Raster struct {
	id         string
	cache      *Cache
	store      BlockStore
	structure  DatasetStructure
	blockBytes int64
	opts       rasterOpts
	closeMu    sync.Mutex

	// guarded by cache.mu
	entries map[BlockKey]*entry
	closing bool
	closed  bool
}

// Open attaches store to the cache under id.
func (c *Cache) Open(id string, store BlockStore, opts ...OpenOption) (*Raster, error) {
	ro := rasterOpts{flushConcurrency: 1}
	for _, o := range opts {
		o(&ro)
	}
	st := store.Structure()
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("open %s: %w", id, err)
	}
	r := &Raster{
		id:         id,
		cache:      c,
		store:      store,
		structure:  st,
		blockBytes: st.BlockBytes(),
		opts:       ro,
		entries:    make(map[BlockKey]*entry),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrCacheClosed
	}
	if _, ok := c.rasters[id]; ok {
		return nil, fmt.Errorf("open %s: %w", id, ErrDuplicateRaster)
	}
	c.rasters[id] = r
	c.log.Debug("opened raster", Fields{"raster": id, "blockBytes": r.blockBytes})
	return r, nil
}

// ID returns the id the raster was opened with
func (r *Raster) ID() string {
	return r.id
}

// Structure returns the layout of the raster
func (r *Raster) Structure() DatasetStructure {
	return r.structure
}

func (r *Raster) checkBlock(band, col, row int) error {
	if band < 0 || band >= r.structure.NBands {
		return fmt.Errorf("band %d of %s: %w", band, r.id, ErrInvalidBand)
	}
	nx, ny := r.structure.BlockCount()
	if col < 0 || row < 0 || col >= nx || row >= ny {
		return fmt.Errorf("block %d,%d of %s: %w", col, row, r.id, ErrInvalidBlock)
	}
	return nil
}

// GetBlock returns a pinned handle to the decoded block col,row of band,
// reading it from the store on a cache miss. The block cannot be evicted
// until the handle is released.
//
// It fails with a *DecodeError if the store cannot produce the block and
// with a *CapacityError if the block cannot be admitted in the budget.
func (r *Raster) GetBlock(ctx context.Context, band, col, row int) (*BlockHandle, error) {
	if err := r.checkBlock(band, col, row); err != nil {
		return nil, err
	}
	e, err := r.cache.acquire(ctx, r, BlockKey{Raster: r.id, Band: band, Col: col, Row: row})
	if err != nil {
		return nil, err
	}
	return &BlockHandle{c: r.cache, e: e}, nil
}

// dirtyEntries pins and returns the dirty blocks of the raster in band,
// row, col order.
//
// REQUIRES: caller holds cache.mu
func (r *Raster) dirtyEntries() []*entry {
	var dirty []*entry
	for _, e := range r.entries {
		if e.dirty() {
			r.cache.pin(e)
			dirty = append(dirty, e)
		}
	}
	sortEntries(dirty)
	return dirty
}

func sortEntries(es []*entry) {
	sort.Slice(es, func(i, j int) bool {
		a, b := es[i].key, es[j].key
		if a.Band != b.Band {
			return a.Band < b.Band
		}
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.Col < b.Col
	})
}

// Flush writes every dirty block of the raster to its store and marks them
// clean. Blocks stay resident. Every dirty block is attempted; the ones that
// failed are listed in the returned *FlushError and stay dirty.
func (r *Raster) Flush(ctx context.Context) error {
	c := r.cache
	c.mu.Lock()
	if r.closed {
		c.mu.Unlock()
		return ErrRasterClosed
	}
	dirty := r.dirtyEntries()
	c.mu.Unlock()
	if len(dirty) == 0 {
		return nil
	}

	failed := c.writeAll(ctx, dirty, r.opts.flushConcurrency)

	c.mu.Lock()
	for _, e := range dirty {
		c.unpin(e)
	}
	c.mu.Unlock()
	if len(failed) > 0 {
		c.log.Error("flush failed", Fields{"raster": r.id, "failed": len(failed), "blocks": len(dirty)})
		return &FlushError{Failed: failed}
	}
	c.log.Debug("flushed raster", Fields{"raster": r.id, "blocks": len(dirty)})
	return nil
}

// Close flushes the raster and removes all its blocks from the cache,
// including blocks pinned by outstanding handles, which become detached.
//
// If the flush fails, Close returns the *FlushError and the raster is left
// open with its blocks resident, so that no modification is lost.
func (r *Raster) Close(ctx context.Context) error {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	c := r.cache

	c.mu.Lock()
	if r.closed {
		c.mu.Unlock()
		return ErrRasterClosed
	}
	r.closing = true
	c.mu.Unlock()

	reopen := func() {
		c.mu.Lock()
		r.closing = false
		c.mu.Unlock()
	}

	if err := r.Flush(ctx); err != nil {
		reopen()
		return err
	}

	//block writers still holding handles while checking nothing was
	//modified since the flush
	c.mu.Lock()
	all := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		c.pin(e)
		all = append(all, e)
	}
	c.mu.Unlock()
	sortEntries(all)
	for _, e := range all {
		e.mu.Lock()
	}
	unlockAll := func() {
		for _, e := range all {
			e.mu.Unlock()
		}
	}

	var failed []*WriteError
	c.mu.Lock()
	for _, e := range all {
		if !e.dirty() {
			continue
		}
		version := e.version.Load()
		c.mu.Unlock()
		err := r.store.WriteBlock(ctx, e.key.Band, e.key.Col, e.key.Row, e.data)
		c.mu.Lock()
		if werr := c.persisted(e, version, err); werr != nil {
			failed = append(failed, werr)
		}
	}
	if len(failed) > 0 {
		for _, e := range all {
			c.unpin(e)
		}
		r.closing = false
		c.mu.Unlock()
		unlockAll()
		c.log.Error("close failed", Fields{"raster": r.id, "failed": len(failed)})
		return &FlushError{Failed: failed}
	}
	for _, e := range all {
		c.unpin(e)
		e.detached.Store(true)
		c.drop(e)
	}
	r.closed = true
	r.closing = false
	delete(c.rasters, r.id)
	c.gauges()
	c.mu.Unlock()
	unlockAll()
	c.log.Debug("closed raster", Fields{"raster": r.id, "blocks": len(all)})
	return nil
}
