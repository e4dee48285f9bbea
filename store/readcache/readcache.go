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

// Package readcache provides a read-through cache of encoded objects in front
// of a (typically remote) store.Store.
package readcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/airbusgeo/rastercache/store"
	lru "github.com/hashicorp/golang-lru"
	"github.com/vburenin/nsync"
)

// Cacher is the interface that wraps object caching functionality
//
// Add inserts data to the cache for the given key. Implementations may
// retain data.
//
// Get fetches the data for the given key. It returns the data and wether
// the data was found in the cache or not
//
// Remove drops the given key, Purge empties the cache.
type Cacher interface {
	Add(key string, data []byte)
	Get(key string) ([]byte, bool)
	Remove(key string)
	Purge()
}

// NamedOnceMutex is a locker on arbitrary lock names.
type NamedOnceMutex interface {
	//Lock tries to acquire a lock on a keyed resource. If the keyed resource is not already locked,
	//Lock aquires a lock to the resource and returns true. If the keyed resource is already locked,
	//Lock waits until the resource has been unlocked and returns false
	Lock(key interface{}) bool
	//Unlock a keyed resource. Should be called by a client whose call to Lock returned true once the
	//resource is ready for consumption by other clients
	Unlock(key interface{})
}

// Store caches the objects of an underlying store.Store, ensuring that
// concurrent Gets of the same key only result in a single call to the
// underlying store. Puts and Deletes go through to the underlying store and
// update the cache.
type Store struct {
	st      store.Store
	mu      NamedOnceMutex //*nsync.NamedOnceMutex
	cache   Cacher
	missing *lru.Cache
	maxMiss int
}

var _ store.Store = (*Store)(nil)

// Option is an option that can be passed to New
type Option func(o *Store)

// WithCacher allows to plugin a custom cache mechanism instead of the
// default lru cache of 1000 objects.
func WithCacher(c Cacher) Option {
	return func(o *Store) {
		o.cache = c
	}
}

// MaxCachedMissing sets the number of non-existing keys remembered, so that
// repeated reads of sparse blocks do not reach the underlying store.
// Defaults to 10000.
func MaxCachedMissing(n int) Option {
	if n < 1 {
		panic("invalid max cached missing")
	}
	return func(o *Store) {
		o.maxMiss = n
	}
}

// New wraps st
func New(st store.Store, opts ...Option) (*Store, error) {
	s := &Store{
		st:      st,
		mu:      nsync.NewNamedOnceMutex(),
		maxMiss: 10000,
	}
	for _, o := range opts {
		o(s)
	}
	var err error
	if s.cache == nil {
		if s.cache, err = NewLRU(1000); err != nil {
			return nil, err
		}
	}
	if s.missing, err = lru.New(s.maxMiss); err != nil {
		return nil, fmt.Errorf("lru.new: %w", err)
	}
	return s, nil
}

// SetLocker replaces the keyed mutex used to coalesce fetches
func (s *Store) SetLocker(mu NamedOnceMutex) {
	s.mu = mu
}

// Purge empties the cache
func (s *Store) Purge() {
	s.cache.Purge()
	s.missing.Purge()
}

func (s *Store) lookup(key string) ([]byte, bool, error) {
	if _, ok := s.missing.Get(key); ok {
		return nil, true, fmt.Errorf("%s: %w", key, store.ErrNotExist)
	}
	if data, ok := s.cache.Get(key); ok {
		return append([]byte(nil), data...), true, nil
	}
	return nil, false, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if data, ok, err := s.lookup(key); ok {
		return data, err
	}
	if s.mu.Lock(key) {
		defer s.mu.Unlock(key)
		//recheck, a Put may have completed since the lookup
		if data, ok, err := s.lookup(key); ok {
			return data, err
		}
		data, err := s.st.Get(ctx, key)
		if errors.Is(err, store.ErrNotExist) {
			s.missing.Add(key, struct{}{})
			return nil, err
		}
		if err != nil {
			return nil, err
		}
		s.cache.Add(key, append([]byte(nil), data...))
		return data, nil
	}
	//else (lock not acquired, recheck from cache)
	return s.Get(ctx, key)
}

// lock acquires the keyed lock, waiting for any in-flight fetch of key
func (s *Store) lock(key string) {
	for !s.mu.Lock(key) {
	}
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	s.lock(key)
	defer s.mu.Unlock(key)
	s.missing.Remove(key)
	if err := s.st.Put(ctx, key, data); err != nil {
		//the underlying object is in an unknown state
		s.cache.Remove(key)
		return err
	}
	s.cache.Add(key, append([]byte(nil), data...))
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.lock(key)
	defer s.mu.Unlock(key)
	s.cache.Remove(key)
	if err := s.st.Delete(ctx, key); err != nil {
		s.missing.Remove(key)
		return err
	}
	s.missing.Add(key, struct{}{})
	return nil
}
