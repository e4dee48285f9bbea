// Package storetest checks the behavior shared by all store.Store implementations
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/airbusgeo/rastercache/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises s. Keys are created under prefix, which should be unique to
// the test run for shared backends.
func Run(t *testing.T, s store.Store, prefix string) {
	ctx := context.Background()
	key := func(k string) string { return prefix + k }

	_, err := s.Get(ctx, key("missing"))
	assert.True(t, errors.Is(err, store.ErrNotExist), "get missing: %v", err)
	assert.NoError(t, s.Delete(ctx, key("missing")))

	data := []byte{0, 1, 2, 3, 255}
	require.NoError(t, s.Put(ctx, key("0/1/2"), data))
	data[0] = 42 //must not be retained
	got, err := s.Get(ctx, key("0/1/2"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 3, 255}, got)

	require.NoError(t, s.Put(ctx, key("0/1/2"), []byte("replaced")))
	got, err = s.Get(ctx, key("0/1/2"))
	require.NoError(t, err)
	assert.Equal(t, []byte("replaced"), got)

	require.NoError(t, s.Delete(ctx, key("0/1/2")))
	_, err = s.Get(ctx, key("0/1/2"))
	assert.True(t, errors.Is(err, store.ErrNotExist), "get deleted: %v", err)

	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := key(fmt.Sprintf("c/%d", i))
			if !assert.NoError(t, s.Put(ctx, k, []byte{byte(i)})) {
				return
			}
			got, err := s.Get(ctx, k)
			if assert.NoError(t, err) {
				assert.Equal(t, []byte{byte(i)}, got)
			}
			assert.NoError(t, s.Delete(ctx, k))
		}(i)
	}
	wg.Wait()
}
