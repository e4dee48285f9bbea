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

package readcache_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/airbusgeo/rastercache/store"
	"github.com/airbusgeo/rastercache/store/readcache"
	"github.com/airbusgeo/rastercache/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend failure")

// countingStore delays and counts the Gets reaching a memory store
type countingStore struct {
	*store.Memory
	delay time.Duration
	mu    sync.Mutex
	gets  map[string]int
	fail  bool
}

func newCountingStore() *countingStore {
	return &countingStore{Memory: store.NewMemory(), gets: make(map[string]int)}
}

func (c *countingStore) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	c.gets[key]++
	fail := c.fail
	c.mu.Unlock()
	time.Sleep(c.delay)
	if fail {
		return nil, errBackend
	}
	return c.Memory.Get(ctx, key)
}

func (c *countingStore) count(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gets[key]
}

func bytea(i int) []byte {
	return []byte{byte(i)}
}

func TestCache(t *testing.T) {
	_, err := readcache.NewLRU(0)
	assert.Error(t, err)
	cache, _ := readcache.NewLRU(4)
	for i := 0; i < 4; i++ {
		cache.Add(string(rune('a'+i)), bytea(i))
	}
	for i := 0; i < 4; i++ {
		b, ok := cache.Get(string(rune('a' + i)))
		if !ok {
			t.Errorf("object %d not found in cache", i)
		}
		if !bytes.Equal(b, bytea(i)) {
			t.Errorf("expected %v, got %v", bytea(i), b)
		}
	}
	cache.Add("f", bytea(5))
	b, ok := cache.Get("f")
	if !ok {
		t.Errorf("object 5 not found in cache")
	}
	if !bytes.Equal(b, bytea(5)) {
		t.Errorf("expected %v, got %v", bytea(5), b)
	}
	purged := false
	for i := 0; i < 4; i++ {
		_, ok := cache.Get(string(rune('a' + i)))
		if !ok {
			purged = true
		}
	}
	if !purged {
		t.Error("entry not purged")
	}
	cache.Remove("f")
	_, ok = cache.Get("f")
	assert.False(t, ok)
	cache.Purge()
	for i := 0; i < 4; i++ {
		_, ok := cache.Get(string(rune('a' + i)))
		assert.False(t, ok)
	}
}

func TestCoalescedGets(t *testing.T) {
	ctx := context.Background()
	back := newCountingStore()
	back.delay = 50 * time.Millisecond
	require.NoError(t, back.Memory.Put(ctx, "k", []byte("value")))
	rc, err := readcache.New(back)
	require.NoError(t, err)

	wg := sync.WaitGroup{}
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := rc.Get(ctx, "k")
			assert.NoError(t, err)
			assert.Equal(t, []byte("value"), data)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, back.count("k"))

	//returned data is a copy
	data, _ := rc.Get(ctx, "k")
	data[0] = 'X'
	data, _ = rc.Get(ctx, "k")
	assert.Equal(t, []byte("value"), data)
	assert.Equal(t, 1, back.count("k"))
}

func TestMissingKeys(t *testing.T) {
	ctx := context.Background()
	back := newCountingStore()
	rc, err := readcache.New(back, readcache.MaxCachedMissing(10))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := rc.Get(ctx, "sparse")
		assert.ErrorIs(t, err, store.ErrNotExist)
	}
	assert.Equal(t, 1, back.count("sparse"))

	require.NoError(t, rc.Put(ctx, "sparse", []byte("now here")))
	data, err := rc.Get(ctx, "sparse")
	require.NoError(t, err)
	assert.Equal(t, []byte("now here"), data)
	assert.Equal(t, 1, back.count("sparse"))

	require.NoError(t, rc.Delete(ctx, "sparse"))
	_, err = rc.Get(ctx, "sparse")
	assert.ErrorIs(t, err, store.ErrNotExist)
	assert.Equal(t, 1, back.count("sparse"))

	assert.Panics(t, func() { readcache.MaxCachedMissing(0) })
}

func TestBackendErrorsNotCached(t *testing.T) {
	ctx := context.Background()
	back := newCountingStore()
	require.NoError(t, back.Memory.Put(ctx, "k", []byte("v")))
	rc, err := readcache.New(back)
	require.NoError(t, err)

	back.fail = true
	_, err = rc.Get(ctx, "k")
	assert.ErrorIs(t, err, errBackend)
	back.mu.Lock()
	back.fail = false
	back.mu.Unlock()
	data, err := rc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), data)
	assert.Equal(t, 2, back.count("k"))

	rc.Purge()
	_, err = rc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 3, back.count("k"))
}

func TestCachers(t *testing.T) {
	ctx := context.Background()
	ris, err := readcache.NewRistretto(1<<20, 1000)
	require.NoError(t, err)
	defer ris.Close()
	big, err := readcache.NewBigCache(ctx, 16, time.Hour)
	require.NoError(t, err)
	defer big.Close()
	lru, err := readcache.NewLRU(100)
	require.NoError(t, err)

	_, err = readcache.NewRistretto(0, 10)
	assert.Error(t, err)

	for name, cacher := range map[string]readcache.Cacher{"lru": lru, "ristretto": ris, "bigcache": big} {
		t.Run(name, func(t *testing.T) {
			back := newCountingStore()
			rc, err := readcache.New(back, readcache.WithCacher(cacher))
			require.NoError(t, err)
			storetest.Run(t, rc, name+"/")

			require.NoError(t, rc.Put(ctx, "obj", []byte("payload")))
			data, err := rc.Get(ctx, "obj")
			require.NoError(t, err)
			assert.Equal(t, []byte("payload"), data)
			assert.Equal(t, 0, back.count("obj"), "served from cache after put")

			cacher.Remove("obj")
			data, err = rc.Get(ctx, "obj")
			require.NoError(t, err)
			assert.Equal(t, []byte("payload"), data)
			assert.Equal(t, 1, back.count("obj"))
		})
	}
}

type recordingLocker struct {
	mu    sync.Mutex
	locks int
}

func (l *recordingLocker) Lock(key interface{}) bool {
	l.mu.Lock()
	l.locks++
	l.mu.Unlock()
	return true
}

func (l *recordingLocker) Unlock(key interface{}) {}

func TestSetLocker(t *testing.T) {
	ctx := context.Background()
	rc, err := readcache.New(store.NewMemory())
	require.NoError(t, err)
	l := &recordingLocker{}
	rc.SetLocker(l)
	require.NoError(t, rc.Put(ctx, "a", []byte("b")))
	_, _ = rc.Get(ctx, "a")
	_, _ = rc.Get(ctx, "b")
	assert.Equal(t, 2, l.locks)
}
