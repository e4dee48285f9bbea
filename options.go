package rastercache

type cacheOpts struct {
	size    *CacheSize
	logger  Logger
	metrics *Metrics
}

// Option is an option that can be passed to New
type Option func(o *cacheOpts)

// CacheMax sets the byte budget of the cache. Defaults to the value of the
// RASTERCACHE_CACHEMAX environment variable, or 5% of the physical memory.
func CacheMax(size CacheSize) Option {
	return func(o *cacheOpts) {
		o.size = &size
	}
}

// WithLogger sets the Logger used to report evictions, write-backs and
// their failures. Defaults to NopLogger.
func WithLogger(l Logger) Option {
	return func(o *cacheOpts) {
		o.logger = l
	}
}

// WithMetrics makes the cache update the given prometheus collectors
func WithMetrics(m *Metrics) Option {
	return func(o *cacheOpts) {
		o.metrics = m
	}
}

type outsidePolicy int

const (
	outsideError outsidePolicy = iota
	outsideFill
)

type rasterOpts struct {
	outside          outsidePolicy
	fill             float64
	flushConcurrency int
}

// OpenOption is an option that can be passed to Cache.Open
type OpenOption func(o *rasterOpts)

// ErrorOutside makes region reads extending outside the raster fail with
// ErrOutOfBounds before any block is accessed. This is the default.
func ErrorOutside() OpenOption {
	return func(o *rasterOpts) {
		o.outside = outsideError
	}
}

// FillOutside makes region reads extending outside the raster succeed, the
// pixels outside the raster being set to value converted to the band's data
// type. Writes outside the raster are always rejected with ErrOutOfBounds.
func FillOutside(value float64) OpenOption {
	return func(o *rasterOpts) {
		o.outside = outsideFill
		o.fill = value
	}
}

// FlushConcurrency sets the maximum number of concurrent WriteBlock calls
// issued by Flush. Defaults to 1 (sequential, row-major order).
func FlushConcurrency(n int) OpenOption {
	if n < 1 {
		panic("invalid flush concurrency")
	}
	return func(o *rasterOpts) {
		o.flushConcurrency = n
	}
}
