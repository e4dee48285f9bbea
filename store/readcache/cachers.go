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

package readcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	bc "github.com/allegro/bigcache/v3"
	rc "github.com/dgraph-io/ristretto"
	lru "github.com/hashicorp/golang-lru"
)

// LRU is a Cacher holding a fixed number of objects
type LRU struct {
	c *lru.Cache
}

var _ Cacher = &LRU{}

func NewLRU(entries int) (*LRU, error) {
	c, err := lru.New(entries)
	if err != nil {
		return nil, fmt.Errorf("lru.new: %w", err)
	}
	return &LRU{c: c}, nil
}

func (l *LRU) Add(key string, data []byte) {
	l.c.Add(key, data)
}

func (l *LRU) Get(key string) ([]byte, bool) {
	cb, ok := l.c.Get(key)
	if !ok {
		return nil, ok
	}
	return cb.([]byte), ok
}

func (l *LRU) Remove(key string) {
	l.c.Remove(key)
}

func (l *LRU) Purge() {
	l.c.Purge()
}

// Ristretto is a Cacher bounded by the total size of the cached objects
type Ristretto struct {
	c *rc.Cache
}

var _ Cacher = &Ristretto{}

// NewRistretto creates a cache holding at most maxBytes of object data.
// expectedObjects is an estimation of the number of objects that will fit
// in the cache, used to size the admission counters.
func NewRistretto(maxBytes int64, expectedObjects int64) (*Ristretto, error) {
	if maxBytes <= 0 || expectedObjects <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: 10 * expectedObjects,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto.newcache: %w", err)
	}
	return &Ristretto{c: c}, nil
}

// Add waits for the object to be admitted (or rejected) so that a following
// Get observes it
func (r *Ristretto) Add(key string, data []byte) {
	r.c.Set(key, data, int64(len(data)))
	r.c.Wait()
}

func (r *Ristretto) Get(key string) ([]byte, bool) {
	v, ok := r.c.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	if !ok {
		//self-heal: drop unexpected entry shape
		r.c.Del(key)
		return nil, false
	}
	return b, true
}

func (r *Ristretto) Remove(key string) {
	r.c.Del(key)
	r.c.Wait()
}

func (r *Ristretto) Purge() {
	r.c.Clear()
}

// Close stops the ristretto goroutines
func (r *Ristretto) Close() {
	r.c.Close()
}

// BigCache is a Cacher storing objects off the go heap, in large byte
// arrays, to reduce GC pressure for very large caches
type BigCache struct {
	c *bc.BigCache
}

var _ Cacher = &BigCache{}

// NewBigCache creates a cache of at most maxMB megabytes whose entries
// expire after lifeWindow
func NewBigCache(ctx context.Context, maxMB int, lifeWindow time.Duration) (*BigCache, error) {
	conf := bc.DefaultConfig(lifeWindow)
	conf.HardMaxCacheSize = maxMB
	conf.Verbose = false
	c, err := bc.New(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("bigcache.new: %w", err)
	}
	return &BigCache{c: c}, nil
}

func (b *BigCache) Add(key string, data []byte) {
	//a failed Set only means the object is not cached
	_ = b.c.Set(key, data)
}

func (b *BigCache) Get(key string) ([]byte, bool) {
	data, err := b.c.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (b *BigCache) Remove(key string) {
	_ = b.c.Delete(key)
}

func (b *BigCache) Purge() {
	_ = b.c.Reset()
}

// Close stops the cleanup goroutine
func (b *BigCache) Close() error {
	return b.c.Close()
}
