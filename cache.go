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
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/simplelru"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// entry is a resident decoded block.
//
// Lock order: Cache.mu is never held while acquiring entry.mu. Every access
// to data happens while the entry is pinned.
type entry struct {
	key    BlockKey
	raster *Raster
	size   int64

	mu   sync.RWMutex
	data []byte
	// version is bumped under mu.Lock each time data is modified
	version  atomic.Uint64
	detached atomic.Bool

	// guarded by Cache.mu
	flushed  uint64
	pins     int
	resident bool
}

// REQUIRES: caller holds Cache.mu or has the entry pinned with no writer
func (e *entry) dirty() bool {
	return e.version.Load() != e.flushed
}

// Cache is a bounded-memory cache of decoded raster blocks, shared by all the
// rasters opened on it. The byte budget is global to the Cache: one raster's
// access pattern may evict another raster's blocks.
//
// Blocks are evicted in least-recently-released order. A block is pinned
// (and not evictable) while a BlockHandle or a region operation uses it.
// Dirty blocks are written to their BlockStore before being evicted.
type Cache struct {
	mu       sync.Mutex
	max      int64
	used     int64
	entries  map[BlockKey]*entry
	lru      *simplelru.LRU // unpinned resident entries, oldest first
	rasters  map[string]*Raster
	closed   bool
	fetches  singleflight.Group
	log      Logger
	metrics  *Metrics
	counters counters
}

// New creates a Cache.
func New(opts ...Option) (*Cache, error) {
	co := cacheOpts{}
	for _, o := range opts {
		o(&co)
	}
	var max int64
	var err error
	if co.size != nil {
		max, err = co.size.Resolve()
	} else {
		max, err = defaultBudget()
	}
	if err != nil {
		return nil, err
	}
	lru, err := simplelru.NewLRU(math.MaxInt, nil)
	if err != nil {
		return nil, fmt.Errorf("simplelru.newlru: %w", err)
	}
	c := &Cache{
		max:     max,
		entries: make(map[BlockKey]*entry),
		lru:     lru,
		rasters: make(map[string]*Raster),
		log:     co.logger,
		metrics: co.metrics,
	}
	if c.log == nil {
		c.log = NopLogger{}
	}
	c.gauges()
	return c, nil
}

var defaultCache struct {
	once sync.Once
	c    *Cache
	err  error
}

// Default returns the process-wide Cache, created on first call with the
// budget read from RASTERCACHE_CACHEMAX (or 5% of the physical memory).
// Its budget can be changed at any time with SetCacheMax.
func Default() (*Cache, error) {
	defaultCache.once.Do(func() {
		defaultCache.c, defaultCache.err = New()
	})
	return defaultCache.c, defaultCache.err
}

// CacheMax returns the current budget in bytes
func (c *Cache) CacheMax() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.max
}

// CacheUsed returns the number of bytes held by resident blocks, including
// blocks currently being decoded
func (c *Cache) CacheUsed() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// SetCacheMax changes the budget. The new budget takes effect immediately:
// blocks are evicted (dirty ones being written back) until the resident
// bytes fit in it. If that is not possible because blocks are pinned or a
// write-back fails, the new budget is kept and a *CapacityError is returned;
// further admissions will keep evicting until the budget is met.
func (c *Cache) SetCacheMax(ctx context.Context, size CacheSize) error {
	max, err := size.Resolve()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.max = max
	err = c.makeRoom(ctx, 0)
	c.gauges()
	return err
}

// Stats returns a snapshot of the cache activity counters
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Stats{
		Hits:       c.counters.hits.Load(),
		Misses:     c.counters.misses.Load(),
		Evictions:  c.counters.evictions.Load(),
		Writebacks: c.counters.writebacks.Load(),
		Blocks:     len(c.entries),
		BytesUsed:  c.used,
		BytesMax:   c.max,
	}
	for _, e := range c.entries {
		if e.dirty() {
			st.Dirty++
		}
	}
	return st
}

// Rasters returns the ids of the rasters currently open on the cache
func (c *Cache) Rasters() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.rasters))
	for id := range c.rasters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FlushAll flushes every open raster. All rasters and all their dirty blocks
// are attempted; failures are reported in a single *FlushError.
func (c *Cache) FlushAll(ctx context.Context) error {
	var failed []*WriteError
	for _, r := range c.openRasters() {
		err := r.Flush(ctx)
		var ferr *FlushError
		switch {
		case err == nil, errors.Is(err, ErrRasterClosed):
		case errors.As(err, &ferr):
			failed = append(failed, ferr.Failed...)
		default:
			return err
		}
	}
	if len(failed) > 0 {
		return &FlushError{Failed: failed}
	}
	return nil
}

// Close flushes and closes every open raster, then marks the cache closed.
// If a raster fails to close it is left open, and so is the cache.
func (c *Cache) Close(ctx context.Context) error {
	var errs []error
	for _, r := range c.openRasters() {
		if err := r.Close(ctx); err != nil && !errors.Is(err, ErrRasterClosed) {
			errs = append(errs, fmt.Errorf("close %s: %w", r.id, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *Cache) openRasters() []*Raster {
	c.mu.Lock()
	defer c.mu.Unlock()
	rs := make([]*Raster, 0, len(c.rasters))
	for _, r := range c.rasters {
		rs = append(rs, r)
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].id < rs[j].id })
	return rs
}

// REQUIRES: caller holds c.mu
func (c *Cache) usable(r *Raster) error {
	if r.closing || r.closed {
		return ErrRasterClosed
	}
	if c.closed {
		return ErrCacheClosed
	}
	return nil
}

// REQUIRES: caller holds c.mu
func (c *Cache) pin(e *entry) {
	if e.pins == 0 && e.resident {
		c.lru.Remove(e.key)
	}
	e.pins++
}

// unpin makes e evictable again once its last pin is released. Clean entries
// released while the cache is over budget (after a shrink that could not
// complete) are dropped right away.
//
// REQUIRES: caller holds c.mu
func (c *Cache) unpin(e *entry) {
	e.pins--
	if e.pins != 0 || !e.resident {
		return
	}
	if c.used > c.max && !e.dirty() {
		c.drop(e)
		c.evicted()
		c.gauges()
		return
	}
	c.lru.Add(e.key, e)
}

// drop removes e from the index regardless of its state.
//
// REQUIRES: caller holds c.mu
func (c *Cache) drop(e *entry) {
	if !e.resident {
		return
	}
	if e.pins == 0 {
		c.lru.Remove(e.key)
	}
	delete(c.entries, e.key)
	delete(e.raster.entries, e.key)
	e.resident = false
	c.used -= e.size
}

// acquire returns the pinned resident entry for key, decoding it on a miss.
// Concurrent misses on the same block share a single decode.
func (c *Cache) acquire(ctx context.Context, r *Raster, key BlockKey) (*entry, error) {
	flight := fmt.Sprintf("%p/%d/%d/%d", r, key.Band, key.Col, key.Row)
	for {
		c.mu.Lock()
		if err := c.usable(r); err != nil {
			c.mu.Unlock()
			return nil, err
		}
		if e, ok := c.entries[key]; ok {
			c.pin(e)
			c.hit()
			c.mu.Unlock()
			return e, nil
		}
		c.mu.Unlock()

		v, err, _ := c.fetches.Do(flight, func() (interface{}, error) {
			//waiters must not be failed by the cancellation of the first caller
			return c.load(context.WithoutCancel(ctx), r, key)
		})
		if err != nil {
			return nil, err
		}
		e := v.(*entry)
		c.mu.Lock()
		if e.resident && c.entries[key] == e {
			c.pin(e)
			c.mu.Unlock()
			return e, nil
		}
		//evicted before we could pin it, look it up again
		c.mu.Unlock()
	}
}

// load reserves room for key's block, decodes it and makes it resident
func (c *Cache) load(ctx context.Context, r *Raster, key BlockKey) (*entry, error) {
	size := r.blockBytes
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return e, nil
	}
	if err := c.usable(r); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if err := c.makeRoom(ctx, size); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.used += size
	c.gauges()
	c.mu.Unlock()

	c.miss()
	buf := make([]byte, size)
	err := r.store.ReadBlock(ctx, key.Band, key.Col, key.Row, buf)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		err = c.usable(r)
	}
	if err != nil {
		c.used -= size
		c.gauges()
		if errors.Is(err, ErrRasterClosed) || errors.Is(err, ErrCacheClosed) {
			return nil, err
		}
		c.decodeFailed()
		return nil, &DecodeError{Key: key, Err: err}
	}
	e := &entry{
		key:      key,
		raster:   r,
		size:     size,
		data:     buf,
		resident: true,
	}
	c.entries[key] = e
	r.entries[key] = e
	c.lru.Add(key, e)
	return e, nil
}

// makeRoom evicts least recently used blocks until need more bytes fit in
// the budget. Dirty victims are written back with c.mu released.
//
// REQUIRES: caller holds c.mu
func (c *Cache) makeRoom(ctx context.Context, need int64) error {
	if need > c.max {
		return &CapacityError{Need: need, Used: c.used, Max: c.max}
	}
	for c.used+need > c.max {
		_, v, ok := c.lru.GetOldest()
		if !ok {
			return &CapacityError{Need: need, Used: c.used, Max: c.max}
		}
		e := v.(*entry)
		if !e.dirty() {
			c.drop(e)
			c.evicted()
			c.gauges()
			c.log.Debug("evicted block", Fields{"block": e.key.String()})
			continue
		}

		c.pin(e)
		c.mu.Unlock()
		version, err := c.persist(ctx, e)
		c.mu.Lock()
		werr := c.persisted(e, version, err)
		c.unpin(e)
		if werr != nil {
			return &CapacityError{Need: need, Used: c.used, Max: c.max, Err: werr}
		}
		if e.pins == 0 && e.resident && !e.dirty() {
			c.drop(e)
			c.evicted()
			c.gauges()
			c.log.Debug("evicted block", Fields{"block": e.key.String()})
		}
	}
	return nil
}

// persist writes the current content of a pinned entry to its store and
// returns the version that was written.
func (c *Cache) persist(ctx context.Context, e *entry) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	version := e.version.Load()
	err := e.raster.store.WriteBlock(ctx, e.key.Band, e.key.Col, e.key.Row, e.data)
	return version, err
}

// persisted records the outcome of persist.
//
// REQUIRES: caller holds c.mu
func (c *Cache) persisted(e *entry, version uint64, err error) *WriteError {
	if err != nil {
		c.writeFailed()
		c.log.Warn("block write-back failed", Fields{"block": e.key.String(), "err": err})
		return &WriteError{Key: e.key, Err: err}
	}
	if version > e.flushed {
		e.flushed = version
	}
	c.wroteBack()
	c.log.Debug("wrote block", Fields{"block": e.key.String()})
	return nil
}

// writeAll persists pinned entries, at most concurrency at a time. Every
// entry is attempted.
func (c *Cache) writeAll(ctx context.Context, entries []*entry, concurrency int) []*WriteError {
	versions := make([]uint64, len(entries))
	errs := make([]error, len(entries))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			versions[i], errs[i] = c.persist(ctx, e)
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	var failed []*WriteError
	for i, e := range entries {
		if werr := c.persisted(e, versions[i], errs[i]); werr != nil {
			failed = append(failed, werr)
		}
	}
	return failed
}
