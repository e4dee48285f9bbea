package rastercache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCacheSize(t *testing.T) {
	for _, tc := range []struct {
		in      string
		bytes   int64
		percent float64
	}{
		{in: "800", bytes: 800},
		{in: " 0 ", bytes: 0},
		{in: "20%", percent: 20},
		{in: "0.5 %", percent: 0.5},
		{in: "100%", percent: 100},
		{in: "512MB", bytes: 512 << 20},
		{in: "512m", bytes: 512 << 20},
		{in: "1.5k", bytes: 1536},
		{in: "2GiB", bytes: 2 << 30},
		{in: "1T", bytes: 1 << 40},
		{in: "64b", bytes: 64},
	} {
		cs, err := ParseCacheSize(tc.in)
		require.NoError(t, err, tc.in)
		if tc.percent > 0 {
			assert.True(t, cs.isPercent, tc.in)
			assert.Equal(t, tc.percent, cs.percent, tc.in)
			continue
		}
		n, err := cs.Resolve()
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.bytes, n, tc.in)
	}

	for _, in := range []string{"", "abc", "-1", "-5MB", "0%", "101%", "x%", "12XB", "1e%"} {
		_, err := ParseCacheSize(in)
		var cerr *ConfigError
		assert.True(t, errors.As(err, &cerr), "%q: got %v", in, err)
	}
}

func TestCacheSizeResolve(t *testing.T) {
	n, err := Bytes(1234).Resolve()
	require.NoError(t, err)
	assert.EqualValues(t, 1234, n)

	_, err = Bytes(-1).Resolve()
	assert.Error(t, err)
	_, err = PercentOfRAM(0).Resolve()
	assert.Error(t, err)
	_, err = PercentOfRAM(200).Resolve()
	assert.Error(t, err)

	if physicalMemory() > 0 {
		n, err = PercentOfRAM(10).Resolve()
		require.NoError(t, err)
		assert.Greater(t, n, int64(0))
		assert.Less(t, n, int64(physicalMemory()))
	}

	assert.Equal(t, "20%", PercentOfRAM(20).String())
	assert.Equal(t, "800", Bytes(800).String())
}

func TestCacheSizeFromEnv(t *testing.T) {
	t.Setenv(EnvCacheMax, "")
	_, ok, err := CacheSizeFromEnv()
	assert.NoError(t, err)
	assert.False(t, ok)

	t.Setenv(EnvCacheMax, "20%")
	cs, ok, err := CacheSizeFromEnv()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, PercentOfRAM(20), cs)

	t.Setenv(EnvCacheMax, "12 parsecs")
	_, _, err = CacheSizeFromEnv()
	assert.Error(t, err)
}

func TestDefaultBudget(t *testing.T) {
	t.Setenv(EnvCacheMax, "")
	n, err := defaultBudget()
	require.NoError(t, err)
	if physicalMemory() == 0 {
		assert.EqualValues(t, fallbackCacheSize, n)
	} else {
		assert.EqualValues(t, physicalMemory()*defaultPercent/100, n)
	}
}
