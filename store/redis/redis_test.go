package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/airbusgeo/rastercache/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilClient(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestDialInvalidURL(t *testing.T) {
	_, err := Dial(context.Background(), "http://localhost", "")
	assert.Error(t, err)
}

// TestStore runs against the server at RASTERCACHE_TEST_REDIS, e.g.
// redis://localhost:6379/0
func TestStore(t *testing.T) {
	url := os.Getenv("RASTERCACHE_TEST_REDIS")
	if url == "" {
		t.Skip("RASTERCACHE_TEST_REDIS not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := Dial(ctx, url, fmt.Sprintf("rastercache-test-%d", time.Now().UnixNano()))
	require.NoError(t, err)
	defer s.Close()
	storetest.Run(t, s, "")
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
